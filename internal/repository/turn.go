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

const turnColumns = `id, owner_id, kind, day, seed, server_spec, client_spec, status, score,
	completion_ms, penalties, flagged, fraud_signals, invalid_reason, group_session_id,
	created_at, expires_at, started_at, completed_at`

// TurnRepository handles turn persistence.
type TurnRepository struct {
	pool *pgxpool.Pool
}

// NewTurnRepository creates a new TurnRepository instance.
func NewTurnRepository(pool *pgxpool.Pool) *TurnRepository {
	return &TurnRepository{pool: pool}
}

func scanTurn(row rowScanner) (*model.Turn, error) {
	var t model.Turn
	err := row.Scan(
		&t.ID,
		&t.OwnerID,
		&t.Kind,
		&t.Day,
		&t.Seed,
		&t.ServerSpec,
		&t.ClientSpec,
		&t.Status,
		&t.Score,
		&t.CompletionMs,
		&t.Penalties,
		&t.Flagged,
		&t.FraudSignals,
		&t.InvalidReason,
		&t.GroupSessionID,
		&t.CreatedAt,
		&t.ExpiresAt,
		&t.StartedAt,
		&t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func collectTurns(rows pgx.Rows) ([]*model.Turn, error) {
	defer rows.Close()
	var turns []*model.Turn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}
	return turns, nil
}

// Create inserts a new turn.
func (r *TurnRepository) Create(ctx context.Context, t *model.Turn) error {
	const query = `
		INSERT INTO turns (id, owner_id, kind, day, seed, server_spec, client_spec, status,
			penalties, flagged, group_session_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.pool.Exec(ctx, query,
		t.ID, t.OwnerID, t.Kind, t.Day, t.Seed, t.ServerSpec, t.ClientSpec, t.Status,
		t.Penalties, t.Flagged, t.GroupSessionID, t.CreatedAt, t.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create turn: %w", err)
	}
	return nil
}

// GetByID retrieves a turn. Returns ErrTurnNotFound if it does not exist.
func (r *TurnRepository) GetByID(ctx context.Context, id string) (*model.Turn, error) {
	query := `SELECT ` + turnColumns + ` FROM turns WHERE id = $1`

	t, err := scanTurn(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTurnNotFound
		}
		return nil, fmt.Errorf("failed to get turn: %w", err)
	}
	return t, nil
}

// Delete removes a turn. Only used to roll back a turn whose debit failed.
func (r *TurnRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM turns WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete turn: %w", err)
	}
	return nil
}

// CountSince counts the owner's turns created at or after since.
func (r *TurnRepository) CountSince(ctx context.Context, ownerID int64, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM turns WHERE owner_id = $1 AND created_at >= $2`

	var n int
	if err := r.pool.QueryRow(ctx, query, ownerID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count recent turns: %w", err)
	}
	return n, nil
}

// Start moves a pending turn to active. Returns ErrStateConflict if the turn
// is no longer pending.
func (r *TurnRepository) Start(ctx context.Context, id string, startedAt, expiresAt time.Time) (*model.Turn, error) {
	query := `
		UPDATE turns
		SET status = 'active', started_at = $2, expires_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + turnColumns

	t, err := scanTurn(r.pool.QueryRow(ctx, query, id, startedAt, expiresAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStateConflict
		}
		return nil, fmt.Errorf("failed to start turn: %w", err)
	}
	return t, nil
}

// Finish writes the terminal outcome carried by t, provided the stored turn
// is still in status from.
func (r *TurnRepository) Finish(ctx context.Context, t *model.Turn, from model.TurnStatus) error {
	const query = `
		UPDATE turns
		SET status = $3, score = $4, completion_ms = $5, penalties = $6, flagged = $7,
			fraud_signals = $8, invalid_reason = $9, completed_at = $10
		WHERE id = $1 AND status = $2
	`
	tag, err := r.pool.Exec(ctx, query,
		t.ID, from, t.Status, t.Score, t.CompletionMs, t.Penalties, t.Flagged,
		t.FraudSignals, t.InvalidReason, t.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to finish turn: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStateConflict
	}
	return nil
}

// ExpireOverdue closes every open turn whose deadline has passed: pending
// turns become expired, active ones invalid with reason timeout.
func (r *TurnRepository) ExpireOverdue(ctx context.Context, now time.Time) ([]*model.Turn, error) {
	query := `
		UPDATE turns
		SET status = CASE WHEN status = 'pending' THEN 'expired' ELSE 'invalid' END,
			invalid_reason = 'timeout',
			completed_at = $1
		WHERE status IN ('pending', 'active') AND expires_at < $1
		RETURNING ` + turnColumns

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire turns: %w", err)
	}
	return collectTurns(rows)
}

// ListCompleted returns the completed turns of a pool created strictly after
// after (nil means since the start of the day), oldest first.
func (r *TurnRepository) ListCompleted(ctx context.Context, day, kind string, after *time.Time) ([]*model.Turn, error) {
	query := `
		SELECT ` + turnColumns + `
		FROM turns
		WHERE day = $1 AND kind = $2 AND status = 'completed'
		  AND ($3::timestamptz IS NULL OR created_at > $3)
		ORDER BY created_at, id
	`
	rows, err := r.pool.Query(ctx, query, day, kind, after)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed turns: %w", err)
	}
	return collectTurns(rows)
}

// CountHigher counts unflagged completed turns in the cycle scoring above score.
func (r *TurnRepository) CountHigher(ctx context.Context, day, kind string, after *time.Time, score int64) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM turns
		WHERE day = $1 AND kind = $2 AND status = 'completed' AND NOT flagged
		  AND ($3::timestamptz IS NULL OR created_at > $3)
		  AND score > $4
	`
	var n int
	if err := r.pool.QueryRow(ctx, query, day, kind, after, score).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count higher scores: %w", err)
	}
	return n, nil
}

// ListByOwner returns the owner's most recent turns.
func (r *TurnRepository) ListByOwner(ctx context.Context, ownerID int64, limit int) ([]*model.Turn, error) {
	query := `SELECT ` + turnColumns + ` FROM turns WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	return collectTurns(rows)
}
