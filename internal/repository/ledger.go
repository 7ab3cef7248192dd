package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yogev77/tophuman-sub001/internal/model"
)

const entryColumns = `id, owner_id, amount, kind, day, settlement_id, turn_id, claim_id, metadata, created_at`

// LedgerRepository handles the append-only credit ledger.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new LedgerRepository instance.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

func scanEntry(row rowScanner) (*model.CreditLedgerEntry, error) {
	var e model.CreditLedgerEntry
	err := row.Scan(
		&e.ID,
		&e.OwnerID,
		&e.Amount,
		&e.Kind,
		&e.Day,
		&e.SettlementID,
		&e.TurnID,
		&e.ClaimID,
		&e.Metadata,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

const insertEntry = `
	INSERT INTO credit_ledger (owner_id, amount, kind, day, settlement_id, turn_id, claim_id, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	RETURNING id, created_at
`

// Append writes an entry and fills in its ID and CreatedAt. An entry for a
// claim or turn debit that already exists returns ErrDuplicateEntry.
func (r *LedgerRepository) Append(ctx context.Context, e *model.CreditLedgerEntry) error {
	err := r.pool.QueryRow(ctx, insertEntry,
		e.OwnerID, e.Amount, e.Kind, e.Day, e.SettlementID, e.TurnID, e.ClaimID, e.Metadata,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// GetByClaim returns the entry that realized a claim.
func (r *LedgerRepository) GetByClaim(ctx context.Context, claimID string) (*model.CreditLedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM credit_ledger WHERE claim_id = $1`

	e, err := scanEntry(r.pool.QueryRow(ctx, query, claimID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return e, nil
}

// Balance sums the owner's entries.
func (r *LedgerRepository) Balance(ctx context.Context, ownerID int64) (int64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM credit_ledger WHERE owner_id = $1`

	var balance int64
	if err := r.pool.QueryRow(ctx, query, ownerID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// DebitTurn charges the owner for a turn. The balance check and the insert
// run under a per-owner advisory lock, so concurrent debits cannot overdraw.
func (r *LedgerRepository) DebitTurn(ctx context.Context, ownerID, cost int64, turnID, day string) (*model.CreditLedgerEntry, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ownerID); err != nil {
		return nil, fmt.Errorf("failed to lock owner: %w", err)
	}

	var balance int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM credit_ledger WHERE owner_id = $1`, ownerID,
	).Scan(&balance)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	if balance < cost {
		return nil, ErrInsufficientBalance
	}

	e := &model.CreditLedgerEntry{
		OwnerID: ownerID,
		Amount:  -cost,
		Kind:    model.LedgerTurnDebit,
		Day:     day,
		TurnID:  &turnID,
	}
	err = tx.QueryRow(ctx, insertEntry,
		e.OwnerID, e.Amount, e.Kind, e.Day, e.SettlementID, e.TurnID, e.ClaimID, e.Metadata,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEntry
		}
		return nil, fmt.Errorf("failed to insert debit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return e, nil
}

// History returns the owner's most recent entries, newest first.
func (r *LedgerRepository) History(ctx context.Context, ownerID int64, limit int) ([]*model.CreditLedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM credit_ledger WHERE owner_id = $1 ORDER BY id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger history: %w", err)
	}
	defer rows.Close()

	var entries []*model.CreditLedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}
	return entries, nil
}
