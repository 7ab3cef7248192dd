package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type migration struct {
	name string
	sql  string
}

// Statements are idempotent so Migrate can run on every start.
var migrations = []migration{
	{"turns", `
		CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			owner_id BIGINT NOT NULL,
			kind VARCHAR(64) NOT NULL,
			day VARCHAR(10) NOT NULL,
			seed TEXT NOT NULL,
			server_spec JSONB NOT NULL,
			client_spec JSONB NOT NULL,
			status VARCHAR(16) NOT NULL,
			score BIGINT,
			completion_ms BIGINT,
			penalties INT NOT NULL DEFAULT 0,
			flagged BOOLEAN NOT NULL DEFAULT FALSE,
			fraud_signals JSONB,
			invalid_reason VARCHAR(64),
			group_session_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_turns_owner_time ON turns(owner_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_turns_pool ON turns(day, kind, status, created_at);
		CREATE INDEX IF NOT EXISTS idx_turns_open ON turns(expires_at) WHERE status IN ('pending', 'active');
	`},
	{"turn_events", `
		CREATE TABLE IF NOT EXISTS turn_events (
			turn_id TEXT NOT NULL REFERENCES turns(id) ON DELETE CASCADE,
			idx INT NOT NULL,
			type VARCHAR(32) NOT NULL,
			client_ts BIGINT NOT NULL,
			server_ts TIMESTAMPTZ NOT NULL,
			payload JSONB,
			prev_hash TEXT,
			hash TEXT NOT NULL,
			PRIMARY KEY (turn_id, idx)
		);
	`},
	{"settlements", `
		CREATE TABLE IF NOT EXISTS settlements (
			id TEXT PRIMARY KEY,
			day VARCHAR(10) NOT NULL,
			kind VARCHAR(64) NOT NULL,
			cycle INT NOT NULL,
			status VARCHAR(16) NOT NULL,
			pool_total BIGINT NOT NULL,
			participant_count INT NOT NULL,
			winner_id BIGINT,
			winner_turn_id TEXT,
			winner_amount BIGINT NOT NULL,
			rebate_total BIGINT NOT NULL,
			sink_amount BIGINT NOT NULL,
			content_hash TEXT NOT NULL,
			idempotency_key TEXT NOT NULL UNIQUE,
			cycle_start TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ,
			CONSTRAINT settlements_conservation CHECK (winner_amount + rebate_total + sink_amount = pool_total)
		);
		CREATE INDEX IF NOT EXISTS idx_settlements_pool ON settlements(day, kind, status, completed_at DESC);
	`},
	{"pending_claims", `
		CREATE TABLE IF NOT EXISTS pending_claims (
			id TEXT PRIMARY KEY,
			owner_id BIGINT NOT NULL,
			type VARCHAR(32) NOT NULL,
			amount BIGINT NOT NULL CHECK (amount > 0),
			settlement_id TEXT,
			day VARCHAR(10) NOT NULL,
			metadata JSONB,
			ledger_entry_id BIGINT,
			claimed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_claims_unclaimed ON pending_claims(owner_id) WHERE claimed_at IS NULL;
		CREATE UNIQUE INDEX IF NOT EXISTS idx_claims_daily_grant ON pending_claims(owner_id, day) WHERE type = 'daily_grant';
	`},
	{"credit_ledger", `
		CREATE TABLE IF NOT EXISTS credit_ledger (
			id BIGSERIAL PRIMARY KEY,
			owner_id BIGINT NOT NULL,
			amount BIGINT NOT NULL,
			kind VARCHAR(32) NOT NULL,
			day VARCHAR(10) NOT NULL,
			settlement_id TEXT,
			turn_id TEXT,
			claim_id TEXT UNIQUE,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_owner ON credit_ledger(owner_id);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_turn_debit ON credit_ledger(turn_id) WHERE kind = 'turn_debit';
	`},
	{"daily_pools", `
		CREATE TABLE IF NOT EXISTS daily_pools (
			day VARCHAR(10) NOT NULL,
			kind VARCHAR(64) NOT NULL,
			status VARCHAR(16) NOT NULL,
			frozen_at TIMESTAMPTZ,
			settled_at TIMESTAMPTZ,
			settlement_id TEXT,
			PRIMARY KEY (day, kind)
		);
	`},
	{"treasury_snapshots", `
		CREATE TABLE IF NOT EXISTS treasury_snapshots (
			id BIGSERIAL PRIMARY KEY,
			account_id BIGINT NOT NULL,
			day VARCHAR(10) NOT NULL,
			balance BIGINT NOT NULL,
			settlement_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_treasury_account ON treasury_snapshots(account_id, created_at DESC);
	`},
}

// Migrate applies the schema.
func Migrate(ctx context.Context, db Execer) error {
	for i, m := range migrations {
		if _, err := db.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", i+1, m.name, err)
		}
		log.Debug().Int("step", i+1).Str("name", m.name).Msg("Migration applied")
	}
	log.Info().Int("steps", len(migrations)).Msg("Database schema up to date")
	return nil
}
