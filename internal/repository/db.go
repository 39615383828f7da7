// Package repository persists batches, extracted documents, and usage
// history. Postgres is the primary target; a file-backed SQLite database is
// used when no Postgres DSN is configured.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Config struct {
	DSN             string // postgres:// DSN; empty selects SQLite
	SQLitePath      string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// DB wraps the opened connection with the dialect needed for placeholder
// rebinding.
type DB struct {
	*sql.DB
	pool     *pgxpool.Pool
	postgres bool
}

// Open connects to Postgres through a pgx pool when a postgres DSN is
// configured, otherwise opens (and creates if needed) the SQLite file.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if strings.HasPrefix(cfg.DSN, "postgres://") || strings.HasPrefix(cfg.DSN, "postgresql://") {
		logger.Info("connecting to database", "dialect", "postgres")
		pc, err := pgxpool.ParseConfig(cfg.DSN)
		if err != nil {
			logger.Error("failed to parse database dsn", "error", err)
			return nil, err
		}
		if cfg.MaxConns > 0 {
			pc.MaxConns = cfg.MaxConns
		}
		pc.MinConns = cfg.MinConns
		pc.MaxConnLifetime = cfg.MaxConnLifetime
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
		pc.ConnConfig.RuntimeParams["application_name"] = "surveyscriber"

		if cfg.DialTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
			defer cancel()
		}
		pool, err := pgxpool.NewWithConfig(ctx, pc)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			return nil, err
		}
		db := stdlib.OpenDBFromPool(pool)
		logger.Info("successfully connected to database")
		return &DB{DB: db, pool: pool, postgres: true}, nil
	}

	path := cfg.SQLitePath
	if path == "" {
		path = "surveyscriber.db"
	}
	logger.Info("opening sqlite database", "path", path)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite is single-writer; serialize access through one conn.
	db.SetMaxOpenConns(1)
	return &DB{DB: db}, nil
}

// Close closes the database connections gracefully.
func (d *DB) Close(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := d.DB.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
	}
	if d.pool != nil {
		d.pool.Close()
	}
	logger.Info("database connections closed")
}

// rebind rewrites ? placeholders to $n for Postgres. Queries are written in
// the ? form so both dialects share one set of statements.
func (d *DB) rebind(query string) string {
	if !d.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		image_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'queued'
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL,
		source_file TEXT NOT NULL,
		fields TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS extraction_history (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL,
		status TEXT NOT NULL,
		rows INTEGER NOT NULL DEFAULT 0,
		excel_path TEXT,
		csv_path TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS usage_history (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL,
		provider TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL,
		images_processed INTEGER NOT NULL DEFAULT 0,
		prompt_tokens INTEGER NOT NULL,
		completion_tokens INTEGER NOT NULL,
		total_tokens INTEGER NOT NULL,
		cost_cents INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_batch ON documents (batch_id)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_created ON usage_history (created_at)`,
}

// Migrate applies the idempotent schema.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
