package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"classattend/internal/auth"
	"classattend/internal/config"
)

var tokenCmd = &cobra.Command{
	Use:   "token <uid>",
	Short: "Mint an HS256 bearer token for local development",
	Long: `Mint a bearer token signed with JWT_SIGNING_KEY for the given uid.
Only useful when the API runs with AUTH_PROVIDER=jwt.

Examples:
  attendctl token teacher-1 --email ada@uni.edu
  attendctl token student-7 --ttl 2h`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().String("email", "", "Email claim")
	tokenCmd.Flags().Duration("ttl", 0, "Token lifetime (defaults to ACCESS_TTL)")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.AuthProvider != "jwt" {
		return errors.New("tokens can only be minted when AUTH_PROVIDER=jwt")
	}
	ttl, err := cmd.Flags().GetDuration("ttl")
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = cfg.AccessTTL
	}

	tok, exp, err := auth.Issue(args[0], mustGetString(cmd, "email"), cfg.JWTIssuer, cfg.JWTSigningKey, ttl)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(map[string]any{"token": tok, "expiresAt": exp.UTC().Format(time.RFC3339)})
	}
	fmt.Println(tok)
	return nil
}
