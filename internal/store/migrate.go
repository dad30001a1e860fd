package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type migrationFile struct {
	version string
	path    string
}

// ApplyMigrations runs every pending *.up.sql file in lexical order, each in
// its own transaction, and returns the versions it applied.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrationsDir string) ([]string, error) {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}

	files, err := listMigrations(migrationsDir, ".up.sql")
	if err != nil {
		return nil, err
	}

	applied := make([]string, 0)
	for _, file := range files {
		migrated, err := isMigrated(ctx, db, file.version)
		if err != nil {
			return applied, err
		}
		if migrated {
			continue
		}

		if err := runInTx(ctx, db, file, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES($1)`, file.version)
			return err
		}); err != nil {
			return applied, err
		}
		applied = append(applied, file.version)
	}

	return applied, nil
}

// RollbackMigrations reverts the most recent applied migrations using their
// *.down.sql counterparts. steps <= 0 reverts everything.
func RollbackMigrations(ctx context.Context, db *sql.DB, migrationsDir string, steps int) ([]string, error) {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}

	downs, err := listMigrations(migrationsDir, ".down.sql")
	if err != nil {
		return nil, err
	}
	sort.Slice(downs, func(i, j int) bool { return downs[i].version > downs[j].version })

	reverted := make([]string, 0)
	for _, down := range downs {
		if steps > 0 && len(reverted) >= steps {
			break
		}
		upVersion := down.version + ".up.sql"
		migrated, err := isMigrated(ctx, db, upVersion)
		if err != nil {
			return reverted, err
		}
		if !migrated {
			continue
		}
		if err := runInTx(ctx, db, down, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version=$1`, upVersion)
			return err
		}); err != nil {
			return reverted, err
		}
		reverted = append(reverted, upVersion)
	}
	return reverted, nil
}

func listMigrations(migrationsDir, suffix string) ([]migrationFile, error) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	files := make([]migrationFile, 0)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		version := entry.Name()
		if suffix == ".down.sql" {
			version = strings.TrimSuffix(version, suffix)
		}
		files = append(files, migrationFile{version: version, path: filepath.Join(migrationsDir, entry.Name())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

func runInTx(ctx context.Context, db *sql.DB, file migrationFile, record func(*sql.Tx) error) error {
	contents, err := os.ReadFile(file.path)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file.version, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx %s: %w", file.version, err)
	}

	if statement := strings.TrimSpace(string(contents)); statement != "" {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("execute migration %s: %w", file.version, err)
		}
	}

	if err := record(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", file.version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", file.version, err)
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func isMigrated(ctx context.Context, db *sql.DB, version string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return exists, nil
}
