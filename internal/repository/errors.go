// Package repository provides the PostgreSQL implementations of the engine's stores.
package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Common errors for repository operations.
var (
	ErrTurnNotFound        = errors.New("turn not found")
	ErrStateConflict       = errors.New("row is not in the expected state")
	ErrEventConflict       = errors.New("event index already taken")
	ErrSettlementNotFound  = errors.New("settlement not found")
	ErrDuplicateSettlement = errors.New("settlement idempotency key already used")
	ErrSettlementLocked    = errors.New("pool is being settled by another session")
	ErrDuplicateClaim      = errors.New("claim already exists")
	ErrClaimRealized       = errors.New("claim already realized")
	ErrDuplicateEntry      = errors.New("ledger entry already exists")
	ErrEntryNotFound       = errors.New("ledger entry not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrPoolNotFound        = errors.New("pool not found")
	ErrSnapshotNotFound    = errors.New("treasury snapshot not found")
)

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
