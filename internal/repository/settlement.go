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

const settlementColumns = `id, day, kind, cycle, status, pool_total, participant_count, winner_id,
	winner_turn_id, winner_amount, rebate_total, sink_amount, content_hash, idempotency_key,
	cycle_start, created_at, completed_at`

// SettlementRepository handles settlement records.
type SettlementRepository struct {
	pool *pgxpool.Pool
}

// NewSettlementRepository creates a new SettlementRepository instance.
func NewSettlementRepository(pool *pgxpool.Pool) *SettlementRepository {
	return &SettlementRepository{pool: pool}
}

func scanSettlement(row rowScanner) (*model.Settlement, error) {
	var s model.Settlement
	err := row.Scan(
		&s.ID,
		&s.Day,
		&s.Kind,
		&s.Cycle,
		&s.Status,
		&s.PoolTotal,
		&s.ParticipantCount,
		&s.WinnerID,
		&s.WinnerTurnID,
		&s.WinnerAmount,
		&s.RebateTotal,
		&s.SinkAmount,
		&s.ContentHash,
		&s.IdempotencyKey,
		&s.CycleStart,
		&s.CreatedAt,
		&s.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a settlement in processing state. A reused idempotency key
// returns ErrDuplicateSettlement.
func (r *SettlementRepository) Create(ctx context.Context, s *model.Settlement) error {
	const query = `
		INSERT INTO settlements (id, day, kind, cycle, status, pool_total, participant_count,
			winner_id, winner_turn_id, winner_amount, rebate_total, sink_amount, content_hash,
			idempotency_key, cycle_start, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.pool.Exec(ctx, query,
		s.ID, s.Day, s.Kind, s.Cycle, s.Status, s.PoolTotal, s.ParticipantCount,
		s.WinnerID, s.WinnerTurnID, s.WinnerAmount, s.RebateTotal, s.SinkAmount, s.ContentHash,
		s.IdempotencyKey, s.CycleStart, s.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSettlement
		}
		return fmt.Errorf("failed to create settlement: %w", err)
	}
	return nil
}

// Complete marks a processing settlement completed.
func (r *SettlementRepository) Complete(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE settlements SET status = 'completed', completed_at = $2
		WHERE id = $1 AND status = 'processing'
	`
	tag, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to complete settlement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStateConflict
	}
	return nil
}

// GetByID retrieves a settlement.
func (r *SettlementRepository) GetByID(ctx context.Context, id string) (*model.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE id = $1`

	s, err := scanSettlement(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettlementNotFound
		}
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	return s, nil
}

// LastCompleted returns the most recent completed settlement of a pool, or
// ErrSettlementNotFound when the pool has never settled.
func (r *SettlementRepository) LastCompleted(ctx context.Context, day, kind string) (*model.Settlement, error) {
	query := `
		SELECT ` + settlementColumns + `
		FROM settlements
		WHERE day = $1 AND kind = $2 AND status = 'completed'
		ORDER BY cycle DESC
		LIMIT 1
	`
	s, err := scanSettlement(r.pool.QueryRow(ctx, query, day, kind))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettlementNotFound
		}
		return nil, fmt.Errorf("failed to get last settlement: %w", err)
	}
	return s, nil
}

// ListByDay returns every settlement of a day ordered by kind and cycle.
func (r *SettlementRepository) ListByDay(ctx context.Context, day string) ([]*model.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE day = $1 ORDER BY kind, cycle`

	rows, err := r.pool.Query(ctx, query, day)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	defer rows.Close()

	var out []*model.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settlements: %w", err)
	}
	return out, nil
}

// settlementLockClass is the first key of the two-key advisory lock space
// used for pools. Turn debits lock the single-key space by owner ID.
const settlementLockClass = 7301

// TryLock takes a session-level advisory lock on the pool of (day, kind) so
// that only one process settles it at a time. It returns ErrSettlementLocked
// when another session holds the lock. The returned func releases it.
func (r *SettlementRepository) TryLock(ctx context.Context, day, kind string) (func(), error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	key := day + ":" + kind
	var ok bool
	err = conn.QueryRow(ctx,
		`SELECT pg_try_advisory_lock($1, hashtext($2))`, settlementLockClass, key,
	).Scan(&ok)
	if err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to lock pool: %w", err)
	}
	if !ok {
		conn.Release()
		return nil, ErrSettlementLocked
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1, hashtext($2))`, settlementLockClass, key); err != nil {
			// A closed connection is dropped by the pool, which ends the session and its lock.
			_ = conn.Conn().Close(ctx)
		}
		conn.Release()
	}, nil
}

// DiscardProcessing removes settlements of a pool left in processing state by
// a crashed run, together with their claims. Claims of a processing
// settlement are never listed for realization, so none of them can have been
// paid. A sink entry already written is reversed by a compensating entry,
// the ledger itself is never rewritten. It returns the number of settlements
// removed.
func (r *SettlementRepository) DiscardProcessing(ctx context.Context, day, kind string) (int, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT id FROM settlements WHERE day = $1 AND kind = $2 AND status = 'processing' FOR UPDATE`,
		day, kind,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to find stale settlements: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return 0, fmt.Errorf("failed to scan stale settlements: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM pending_claims WHERE settlement_id = ANY($1) AND claimed_at IS NULL`, ids,
	); err != nil {
		return 0, fmt.Errorf("failed to delete stale claims: %w", err)
	}

	const reverseSinks = `
		INSERT INTO credit_ledger (owner_id, amount, kind, day, settlement_id, metadata, created_at)
		SELECT owner_id, -SUM(amount), 'sink', day, settlement_id, '{"reversal":true}'::jsonb, NOW()
		FROM credit_ledger
		WHERE settlement_id = ANY($1) AND kind = 'sink'
		GROUP BY owner_id, day, settlement_id
		HAVING SUM(amount) <> 0
	`
	if _, err := tx.Exec(ctx, reverseSinks, ids); err != nil {
		return 0, fmt.Errorf("failed to reverse stale sink entries: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM settlements WHERE id = ANY($1)`, ids); err != nil {
		return 0, fmt.Errorf("failed to delete stale settlements: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(ids), nil
}
