package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

func NewDB(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS gateway_documents (
		name       TEXT PRIMARY KEY,
		body       JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS scan_logs (
		id               BIGSERIAL PRIMARY KEY,
		request_id       TEXT NOT NULL,
		account_id       TEXT NOT NULL,
		outcome          TEXT NOT NULL,
		decision         TEXT NOT NULL DEFAULT '',
		risk             TEXT NOT NULL DEFAULT '',
		failure_kind     TEXT NOT NULL DEFAULT '',
		status_code      INTEGER NOT NULL DEFAULT 0,
		response_time_ms INTEGER NOT NULL,
		request_size     BIGINT NOT NULL,
		timestamp        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scan_logs_account_ts ON scan_logs(account_id, timestamp)`,
}

// Migrate creates the tables used by the gateway if they are missing.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

func (db *DB) Close() {
	db.Pool.Close()
}
