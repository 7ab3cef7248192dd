package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yogev77/tophuman-sub001/internal/model"
)

// TreasuryRepository records treasury balance snapshots.
type TreasuryRepository struct {
	pool *pgxpool.Pool
}

// NewTreasuryRepository creates a new TreasuryRepository instance.
func NewTreasuryRepository(pool *pgxpool.Pool) *TreasuryRepository {
	return &TreasuryRepository{pool: pool}
}

// Snapshot stores the account's current ledger balance against a settlement.
func (r *TreasuryRepository) Snapshot(ctx context.Context, accountID int64, day, settlementID string) (*model.TreasurySnapshot, error) {
	const query = `
		INSERT INTO treasury_snapshots (account_id, day, balance, settlement_id, created_at)
		SELECT $1, $2, COALESCE(SUM(amount), 0), $3, NOW()
		FROM credit_ledger WHERE owner_id = $1
		RETURNING id, account_id, day, balance, settlement_id, created_at
	`
	var s model.TreasurySnapshot
	err := r.pool.QueryRow(ctx, query, accountID, day, settlementID).Scan(
		&s.ID,
		&s.AccountID,
		&s.Day,
		&s.Balance,
		&s.SettlementID,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot treasury: %w", err)
	}
	return &s, nil
}

// Latest returns the most recent snapshot of an account.
func (r *TreasuryRepository) Latest(ctx context.Context, accountID int64) (*model.TreasurySnapshot, error) {
	const query = `
		SELECT id, account_id, day, balance, settlement_id, created_at
		FROM treasury_snapshots
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT 1
	`
	var s model.TreasurySnapshot
	err := r.pool.QueryRow(ctx, query, accountID).Scan(
		&s.ID,
		&s.AccountID,
		&s.Day,
		&s.Balance,
		&s.SettlementID,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to get treasury snapshot: %w", err)
	}
	return &s, nil
}
