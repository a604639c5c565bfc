package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"classattend/internal/config"
	"classattend/internal/store"
)

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:   "attendctl",
	Short: "Administer the class attendance service",
	Long: `attendctl runs maintenance tasks against the attendance database:
schema migrations, session scheduling, attendance summaries and minting
development tokens. It reads the same environment as the API server.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
}

// openStore loads config and connects to the configured backend without
// migrating it.
func openStore(ctx context.Context) (config.App, store.Backend, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}
	db, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, cfg.SQLitePath, false)
	if err != nil {
		return cfg, nil, fmt.Errorf("failed to open %s database: %w", cfg.DatabaseDriver, err)
	}
	return cfg, db, nil
}
