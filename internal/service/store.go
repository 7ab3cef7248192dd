package service

import (
	"context"
	"time"

	"github.com/yogev77/tophuman-sub001/internal/model"
)

// TurnStore persists turns. Implemented by repository.TurnRepository.
type TurnStore interface {
	Create(ctx context.Context, t *model.Turn) error
	GetByID(ctx context.Context, id string) (*model.Turn, error)
	Delete(ctx context.Context, id string) error
	CountSince(ctx context.Context, ownerID int64, since time.Time) (int, error)
	Start(ctx context.Context, id string, startedAt, expiresAt time.Time) (*model.Turn, error)
	Finish(ctx context.Context, t *model.Turn, from model.TurnStatus) error
	ExpireOverdue(ctx context.Context, now time.Time) ([]*model.Turn, error)
	ListCompleted(ctx context.Context, day, kind string, after *time.Time) ([]*model.Turn, error)
	CountHigher(ctx context.Context, day, kind string, after *time.Time, score int64) (int, error)
}

// EventStore persists turn events.
type EventStore interface {
	Append(ctx context.Context, ev *model.TurnEvent) error
	List(ctx context.Context, turnID string) ([]*model.TurnEvent, error)
}

// SettlementStore persists settlements. TryLock excludes other processes
// from settling the same pool.
type SettlementStore interface {
	Create(ctx context.Context, s *model.Settlement) error
	Complete(ctx context.Context, id string, at time.Time) error
	LastCompleted(ctx context.Context, day, kind string) (*model.Settlement, error)
	ListByDay(ctx context.Context, day string) ([]*model.Settlement, error)
	DiscardProcessing(ctx context.Context, day, kind string) (int, error)
	TryLock(ctx context.Context, day, kind string) (func(), error)
}

// ClaimStore persists pending claims.
type ClaimStore interface {
	Create(ctx context.Context, c *model.PendingClaim) error
	ListUnclaimed(ctx context.Context, ownerID int64) ([]*model.PendingClaim, error)
	MarkClaimed(ctx context.Context, id string, entryID int64, at time.Time) error
}

// LedgerStore persists the credit ledger.
type LedgerStore interface {
	Append(ctx context.Context, e *model.CreditLedgerEntry) error
	GetByClaim(ctx context.Context, claimID string) (*model.CreditLedgerEntry, error)
	Balance(ctx context.Context, ownerID int64) (int64, error)
	DebitTurn(ctx context.Context, ownerID, cost int64, turnID, day string) (*model.CreditLedgerEntry, error)
}

// PoolStore persists daily pool state.
type PoolStore interface {
	Ensure(ctx context.Context, day, kind string) error
	Freeze(ctx context.Context, day, kind string, at time.Time) error
	Settle(ctx context.Context, day, kind, settlementID string, at time.Time) error
	Get(ctx context.Context, day, kind string) (*model.DailyPool, error)
}

// TreasuryStore records treasury snapshots.
type TreasuryStore interface {
	Snapshot(ctx context.Context, accountID int64, day, settlementID string) (*model.TreasurySnapshot, error)
}

// Stores groups the storage dependencies of the services.
type Stores struct {
	Turns       TurnStore
	Events      EventStore
	Settlements SettlementStore
	Claims      ClaimStore
	Ledger      LedgerStore
	Pools       PoolStore
	Treasury    TreasuryStore
}
