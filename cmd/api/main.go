package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"youredu/api/internal/app"
	"youredu/api/internal/blob"
	"youredu/api/internal/config"
	"youredu/api/internal/email"
	"youredu/api/internal/export"
	"youredu/api/internal/gitrepo"
	"youredu/api/internal/metrics"
	"youredu/api/internal/search"
	"youredu/api/internal/session"
	"youredu/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		log.Fatalf("migrations failed: %v", err)
	}
	for _, version := range applied {
		log.Printf("migrations: applied %s", version)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatalf("failed to create repos dir: %v", err)
	}

	blobs, err := blob.Open(ctx, blob.Config{
		Driver:    cfg.BlobDriver,
		Endpoint:  cfg.BlobEndpoint,
		AccessKey: cfg.BlobAccessKey,
		SecretKey: cfg.BlobSecretKey,
		Region:    cfg.BlobRegion,
		UseSSL:    cfg.BlobUseSSL,
		PublicURL: cfg.BlobPublicURL,
	})
	if err != nil {
		log.Fatalf("object storage setup failed: %v", err)
	}
	if err := blobs.EnsureBuckets(ctx, cfg.Buckets.All()...); err != nil {
		log.Printf("WARNING: ensure buckets: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}

	sender := email.Pick(cfg.ResendAPIKey, cfg.EmailFrom, email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !sender.Configured() {
		log.Printf("Email delivery disabled: neither RESEND_API_KEY nor SMTP_HOST is set")
	}

	opts := app.Options{
		Blob:     blobs,
		Notifier: email.NewNotifier(sender, cfg.AppURL, cfg.SupportEmail),
		Export:   export.NewService(export.ChromePDF),
		Search:   search.NewService(meiliClient, pgfts),
		History:  gitrepo.New(cfg.ReposDir),
		Metrics:  metrics.New(),
	}
	if loc, err := time.LoadLocation("America/Los_Angeles"); err == nil {
		opts.Location = loc
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Printf("WARNING: redis unavailable, falling back to PostgreSQL sessions: %v", err)
		} else {
			log.Printf("Using Redis for refresh tokens and PSA staging")
			defer redisStore.Close()
			opts.Sessions = redisStore
			opts.Staging = redisStore
		}
	}
	if opts.Sessions == nil {
		log.Printf("Using PostgreSQL for refresh token storage")
	}

	service := app.New(cfg, dataStore, opts)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("YourEDU API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	// Pending autosaves are written before the database closes.
	service.Shutdown()
}
