package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"youredu/api/internal/store"
)

var rollbackSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Example: `  youreductl migrate up
  youreductl migrate up --db postgres://localhost/youredu`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
		if err != nil {
			return fmt.Errorf("applying migrations: %w", err)
		}
		if len(applied) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
			return nil
		}
		for _, version := range applied {
			fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", version)
		}
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if rollbackSteps < 1 {
			return fmt.Errorf("--steps must be at least 1")
		}
		ctx := cmd.Context()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		reverted, err := store.RollbackMigrations(ctx, db, cfg.MigrationsDir, rollbackSteps)
		if err != nil {
			return fmt.Errorf("rolling back migrations: %w", err)
		}
		for _, version := range reverted {
			fmt.Fprintf(cmd.OutOrStdout(), "reverted %s\n", version)
		}
		return nil
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&rollbackSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}
