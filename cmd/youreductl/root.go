package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"youredu/api/internal/config"
	"youredu/api/internal/store"
)

var (
	// Set during PersistentPreRunE.
	cfg config.Config

	databaseURL string
)

var rootCmd = &cobra.Command{
	Use:   "youreductl",
	Short: "YourEDU maintenance commands",
	Long: `youreductl runs one-off maintenance against a YourEDU database:
schema migrations, password hash imports and bulk resyncs.

Configuration is read from the environment and .env, the same way the API
server reads it.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		cfg = config.Load()
		if databaseURL != "" {
			cfg.DatabaseURL = databaseURL
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "db", "", "database URL (default: DATABASE_URL)")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(importHashesCmd)
	rootCmd.AddCommand(resyncCmd)
	rootCmd.AddCommand(reindexCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openDB(ctx context.Context) (*sql.DB, error) {
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db, nil
}
