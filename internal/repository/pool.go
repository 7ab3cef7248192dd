package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yogev77/tophuman-sub001/internal/model"
)

// PoolRepository tracks the (day, kind) aggregation state.
type PoolRepository struct {
	pool *pgxpool.Pool
}

// NewPoolRepository creates a new PoolRepository instance.
func NewPoolRepository(pool *pgxpool.Pool) *PoolRepository {
	return &PoolRepository{pool: pool}
}

// Ensure creates the pool row in active state if it does not exist.
func (r *PoolRepository) Ensure(ctx context.Context, day, kind string) error {
	const query = `
		INSERT INTO daily_pools (day, kind, status) VALUES ($1, $2, 'active')
		ON CONFLICT (day, kind) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, day, kind); err != nil {
		return fmt.Errorf("failed to ensure pool: %w", err)
	}
	return nil
}

// Freeze marks a pool frozen for the duration of a settlement run. A pool
// settled in an earlier cycle freezes again for the next one.
func (r *PoolRepository) Freeze(ctx context.Context, day, kind string, at time.Time) error {
	const query = `
		INSERT INTO daily_pools (day, kind, status, frozen_at) VALUES ($1, $2, 'frozen', $3)
		ON CONFLICT (day, kind) DO UPDATE SET status = 'frozen', frozen_at = EXCLUDED.frozen_at
	`
	if _, err := r.pool.Exec(ctx, query, day, kind, at); err != nil {
		return fmt.Errorf("failed to freeze pool: %w", err)
	}
	return nil
}

// Settle records the settlement that closed the pool.
func (r *PoolRepository) Settle(ctx context.Context, day, kind, settlementID string, at time.Time) error {
	const query = `
		UPDATE daily_pools SET status = 'settled', settled_at = $3, settlement_id = $4
		WHERE day = $1 AND kind = $2
	`
	tag, err := r.pool.Exec(ctx, query, day, kind, at, settlementID)
	if err != nil {
		return fmt.Errorf("failed to settle pool: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPoolNotFound
	}
	return nil
}

// Get retrieves a pool.
func (r *PoolRepository) Get(ctx context.Context, day, kind string) (*model.DailyPool, error) {
	const query = `
		SELECT day, kind, status, frozen_at, settled_at, settlement_id
		FROM daily_pools
		WHERE day = $1 AND kind = $2
	`
	var p model.DailyPool
	err := r.pool.QueryRow(ctx, query, day, kind).Scan(
		&p.Day,
		&p.Kind,
		&p.Status,
		&p.FrozenAt,
		&p.SettledAt,
		&p.SettlementID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPoolNotFound
		}
		return nil, fmt.Errorf("failed to get pool: %w", err)
	}
	return &p, nil
}
