// Package migrations applies the payments database schema. Statements are
// ordered, idempotent and identity-preserving: no migration rewrites row
// ids, so records keep their identity across schema evolution.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

// statements is the ordered schema definition. Timestamps are unix
// milliseconds; payment payloads are stored as serialized blobs next to the
// columns the queries filter and sort on.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS payments_incoming (
		id TEXT NOT NULL PRIMARY KEY,
		created_at INTEGER NOT NULL,
		received_at INTEGER,
		tx_id TEXT,
		data BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payments_outgoing (
		id TEXT NOT NULL PRIMARY KEY,
		created_at INTEGER NOT NULL,
		completed_at INTEGER,
		succeeded_at INTEGER,
		tx_id TEXT,
		data BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS onchain_transactions (
		tx_id TEXT NOT NULL PRIMARY KEY,
		locked_at INTEGER,
		confirmed_at INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS payments_metadata (
		payment_id TEXT NOT NULL PRIMARY KEY,
		user_description TEXT,
		user_notes TEXT,
		original_fiat_currency TEXT,
		original_fiat_rate TEXT,
		origin TEXT,
		modified_at INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS contacts (
		id TEXT NOT NULL PRIMARY KEY,
		name TEXT NOT NULL,
		photo_uri TEXT,
		use_offer_key INTEGER NOT NULL DEFAULT 0,
		offers TEXT,
		public_keys TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS payments_incoming_tx_id ON payments_incoming (tx_id)`,
	`CREATE INDEX IF NOT EXISTS payments_outgoing_tx_id ON payments_outgoing (tx_id)`,
	`CREATE INDEX IF NOT EXISTS payments_incoming_received_at ON payments_incoming (received_at)`,
	`CREATE INDEX IF NOT EXISTS payments_outgoing_completed_at ON payments_outgoing (completed_at)`,
}

// Count returns the number of schema statements.
func Count() int { return len(statements) }

// Apply executes every schema statement in order against db.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i, err)
		}
	}
	return nil
}
