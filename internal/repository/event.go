package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yogev77/tophuman-sub001/internal/model"
)

// EventRepository handles the append-only turn event log.
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a new EventRepository instance.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// Append inserts an event. Two writers racing for the same index get
// ErrEventConflict for the loser.
func (r *EventRepository) Append(ctx context.Context, ev *model.TurnEvent) error {
	const query = `
		INSERT INTO turn_events (turn_id, idx, type, client_ts, server_ts, payload, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		ev.TurnID, ev.Index, ev.Type, ev.ClientTimestamp, ev.ServerTimestamp,
		ev.Payload, ev.PrevHash, ev.Hash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEventConflict
		}
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// List returns a turn's events in index order.
func (r *EventRepository) List(ctx context.Context, turnID string) ([]*model.TurnEvent, error) {
	const query = `
		SELECT turn_id, idx, type, client_ts, server_ts, payload, prev_hash, hash
		FROM turn_events
		WHERE turn_id = $1
		ORDER BY idx
	`
	rows, err := r.pool.Query(ctx, query, turnID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*model.TurnEvent
	for rows.Next() {
		var ev model.TurnEvent
		err := rows.Scan(
			&ev.TurnID,
			&ev.Index,
			&ev.Type,
			&ev.ClientTimestamp,
			&ev.ServerTimestamp,
			&ev.Payload,
			&ev.PrevHash,
			&ev.Hash,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}
