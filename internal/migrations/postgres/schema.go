// Package postgres bootstraps the relational ledger schema. Statements are
// idempotent so Apply can run on every deploy.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// The exclusion constraint is the arbiter for overlapping holds: the
// application re-checks, but only this guarantees one winner.
var statements = []string{
	`CREATE EXTENSION IF NOT EXISTS btree_gist`,

	`CREATE TABLE IF NOT EXISTS reservations (
		id          TEXT PRIMARY KEY,
		unit        INTEGER NOT NULL CHECK (unit >= 1),
		start_time  TIMESTAMPTZ NOT NULL,
		end_time    TIMESTAMPTZ NOT NULL,
		owner_id    TEXT NOT NULL,
		state       TEXT NOT NULL CHECK (state IN ('PENDING','CONFIRMED','CANCELLED','EXPIRED')),
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL,
		CONSTRAINT reservations_window_valid CHECK (end_time > start_time),
		CONSTRAINT reservations_no_overlap EXCLUDE USING gist (
			unit WITH =,
			tstzrange(start_time, end_time, '[)') WITH &&
		) WHERE (state IN ('PENDING','CONFIRMED'))
	)`,
	`CREATE INDEX IF NOT EXISTS reservations_owner_idx ON reservations (owner_id, start_time DESC)`,
	`CREATE INDEX IF NOT EXISTS reservations_pending_created_idx ON reservations (created_at) WHERE state = 'PENDING'`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id              TEXT PRIMARY KEY,
		reservation_id  TEXT NOT NULL UNIQUE REFERENCES reservations (id),
		owner_id        TEXT NOT NULL,
		amount_cents    BIGINT NOT NULL CHECK (amount_cents >= 0),
		currency        TEXT NOT NULL,
		state           TEXT NOT NULL CHECK (state IN ('PENDING','SUCCEEDED','FAILED')),
		created_at      TIMESTAMPTZ NOT NULL,
		settled_at      TIMESTAMPTZ,
		claimed_at      TIMESTAMPTZ
	)`,
	`ALTER TABLE transactions ADD COLUMN IF NOT EXISTS claimed_at TIMESTAMPTZ`,
	`CREATE INDEX IF NOT EXISTS transactions_owner_idx ON transactions (owner_id, created_at DESC)`,
}

// Apply creates the schema in a single transaction.
func Apply(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for i, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d failed: %w", i+1, err)
		}
	}
	return tx.Commit(ctx)
}
