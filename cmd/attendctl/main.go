// Command attendctl administers the attendance database from the shell.
package main

func main() {
	Execute()
}
