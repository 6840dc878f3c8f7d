package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema bootstrap. Statements are idempotent so startup can run them
// unconditionally; the transaction log is append-only and never altered
// in place.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id             TEXT PRIMARY KEY,
		account_number TEXT NOT NULL UNIQUE,
		customer_id    TEXT NOT NULL,
		account_type   TEXT NOT NULL,
		currency       TEXT NOT NULL,
		balance        NUMERIC(20,4) NOT NULL DEFAULT 0,
		version        BIGINT NOT NULL DEFAULT 0,
		status         TEXT NOT NULL DEFAULT 'ACTIVE',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id               BIGSERIAL PRIMARY KEY,
		transaction_id   TEXT NOT NULL UNIQUE,
		account_id       TEXT NOT NULL REFERENCES accounts(id),
		type             TEXT NOT NULL,
		amount           NUMERIC(20,4) NOT NULL,
		balance_after    NUMERIC(20,4) NOT NULL,
		description      TEXT NOT NULL DEFAULT '',
		reference_number TEXT NOT NULL,
		status           TEXT NOT NULL,
		timestamp        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions (account_id, timestamp DESC, transaction_id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_reference ON transactions (reference_number)`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		key              TEXT PRIMARY KEY,
		operation        TEXT NOT NULL,
		reference_number TEXT NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// RunMigrations applies the ledger schema to the connected database.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	for _, ddl := range migrations {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}
