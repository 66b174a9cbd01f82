package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Close() {
	db.pool.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// RunMigrations runs database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS table_sessions (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL DEFAULT 'open',
			currency TEXT NOT NULL DEFAULT 'JPY',
			total_amount BIGINT NOT NULL DEFAULT 0,
			locked_by TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			closed_at TIMESTAMPTZ
		);

		CREATE TABLE IF NOT EXISTS table_participants (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES table_sessions(id) ON DELETE CASCADE,
			user_id TEXT,
			user_name TEXT NOT NULL DEFAULT '',
			user_avatar_url TEXT NOT NULL DEFAULT '',
			joined_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_table_participants_user
			ON table_participants(session_id, user_id) WHERE user_id IS NOT NULL;

		CREATE TABLE IF NOT EXISTS order_items (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES table_sessions(id) ON DELETE CASCADE,
			item_name TEXT NOT NULL,
			unit_price BIGINT NOT NULL CHECK (unit_price >= 0),
			ordered_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_order_items_session_id ON order_items(session_id);

		CREATE TABLE IF NOT EXISTS item_assignments (
			id TEXT PRIMARY KEY,
			order_item_id TEXT NOT NULL REFERENCES order_items(id) ON DELETE CASCADE,
			creditor_id TEXT NOT NULL REFERENCES table_participants(id),
			debtor_id TEXT REFERENCES table_participants(id),
			assigned_amount BIGINT NOT NULL CHECK (assigned_amount >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_item_assignments_claim
			ON item_assignments(order_item_id, creditor_id, COALESCE(debtor_id, ''));

		CREATE TABLE IF NOT EXISTS invoices (
			session_id TEXT NOT NULL REFERENCES table_sessions(id) ON DELETE CASCADE,
			participant_id TEXT NOT NULL,
			user_id TEXT,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (session_id, participant_id)
		);

		CREATE TABLE IF NOT EXISTS settlement_tasks (
			session_id TEXT NOT NULL REFERENCES table_sessions(id) ON DELETE CASCADE,
			debtor_id TEXT NOT NULL,
			creditor_id TEXT NOT NULL,
			amount BIGINT NOT NULL,
			paid BOOLEAN NOT NULL DEFAULT FALSE,
			paid_at TIMESTAMPTZ,
			PRIMARY KEY (session_id, debtor_id, creditor_id)
		);
	`)
	return err
}
