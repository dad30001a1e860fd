package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"youredu/api/internal/app"
	"youredu/api/internal/search"
	"youredu/api/internal/store"
)

var resyncCmd = &cobra.Command{
	Use:   "resync-descriptions",
	Short: "Rebuild pulled-in course descriptions for every student",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		service := app.New(cfg, store.NewPostgresStore(db), app.Options{})
		defer service.Shutdown()

		report, err := service.ResyncAllDescriptions(ctx)
		fmt.Fprintf(cmd.OutOrStdout(), "synced %d of %d student(s)\n", report.Synced, report.Students)
		if len(report.Skipped) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "skipped (unknown grade level): %s\n", strings.Join(report.Skipped, ", "))
		}
		return err
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the Meilisearch indexes from Postgres",
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(cfg.MeiliURL) == "" {
			return fmt.Errorf("MEILI_URL is not set")
		}
		ctx := cmd.Context()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
		service := app.New(cfg, store.NewPostgresStore(db), app.Options{
			Search: search.NewService(meiliClient, search.NewPgFTS(db)),
		})
		defer service.Shutdown()

		count, err := service.ReindexAll(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "indexed %d document(s)\n", count)
		return nil
	},
}
