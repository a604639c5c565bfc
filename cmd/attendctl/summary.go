package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"classattend/internal/attendance"
)

var summaryCmd = &cobra.Command{
	Use:   "summary <student-uid>",
	Short: "Print a student's attendance per subject",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	_, db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.GetIdentity(ctx, args[0]); err != nil {
		return fmt.Errorf("look up %s: %w", args[0], err)
	}

	counts, err := db.SubjectCounts(ctx, args[0])
	if err != nil {
		return fmt.Errorf("summarize %s: %w", args[0], err)
	}
	summary := attendance.Summarize(counts)
	if jsonOutput {
		return printJSON(summary)
	}
	if len(summary) == 0 {
		fmt.Println("No sessions scheduled yet.")
		return nil
	}
	fmt.Printf("%-24s %8s %9s %7s %8s\n", "SUBJECT", "SESSIONS", "ATTENDED", "ABSENT", "PERCENT")
	for _, s := range summary {
		fmt.Printf("%-24s %8d %9d %7d %7.1f%%\n", s.Subject, s.TotalSessions, s.LecturesAttended, s.Absent, s.AttendancePercent)
	}
	return nil
}
