package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PoolOptions tunes the database/sql pool in front of pgx.
type PoolOptions struct {
	MaxOpen     int
	MaxIdle     int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

var DefaultPoolOptions = PoolOptions{
	MaxOpen:     20,
	MaxIdle:     10,
	MaxIdleTime: 5 * time.Minute,
	MaxLifetime: 30 * time.Minute,
}

func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	return OpenWithOptions(ctx, databaseURL, DefaultPoolOptions)
}

func OpenWithOptions(ctx context.Context, databaseURL string, opts PoolOptions) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(opts.MaxIdleTime)
	db.SetConnMaxLifetime(opts.MaxLifetime)
	db.SetMaxIdleConns(opts.MaxIdle)
	db.SetMaxOpenConns(opts.MaxOpen)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}
