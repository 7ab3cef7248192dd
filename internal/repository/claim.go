package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yogev77/tophuman-sub001/internal/model"
)

const claimColumns = `id, owner_id, type, amount, settlement_id, day, metadata, ledger_entry_id, claimed_at, created_at`

// ClaimRepository handles pending claims.
type ClaimRepository struct {
	pool *pgxpool.Pool
}

// NewClaimRepository creates a new ClaimRepository instance.
func NewClaimRepository(pool *pgxpool.Pool) *ClaimRepository {
	return &ClaimRepository{pool: pool}
}

func collectClaims(rows pgx.Rows) ([]*model.PendingClaim, error) {
	defer rows.Close()
	var claims []*model.PendingClaim
	for rows.Next() {
		var c model.PendingClaim
		err := rows.Scan(
			&c.ID,
			&c.OwnerID,
			&c.Type,
			&c.Amount,
			&c.SettlementID,
			&c.Day,
			&c.Metadata,
			&c.LedgerEntryID,
			&c.ClaimedAt,
			&c.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating claims: %w", err)
	}
	return claims, nil
}

// Create inserts a claim. A second daily grant for the same owner and day
// returns ErrDuplicateClaim.
func (r *ClaimRepository) Create(ctx context.Context, c *model.PendingClaim) error {
	const query = `
		INSERT INTO pending_claims (id, owner_id, type, amount, settlement_id, day, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		c.ID, c.OwnerID, c.Type, c.Amount, c.SettlementID, c.Day, c.Metadata, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateClaim
		}
		return fmt.Errorf("failed to create claim: %w", err)
	}
	return nil
}

// ListUnclaimed returns the owner's unrealized claims, oldest first. Claims
// of a settlement that has not completed yet are held back.
func (r *ClaimRepository) ListUnclaimed(ctx context.Context, ownerID int64) ([]*model.PendingClaim, error) {
	const query = `
		SELECT c.id, c.owner_id, c.type, c.amount, c.settlement_id, c.day, c.metadata,
			c.ledger_entry_id, c.claimed_at, c.created_at
		FROM pending_claims c
		LEFT JOIN settlements s ON s.id = c.settlement_id
		WHERE c.owner_id = $1 AND c.claimed_at IS NULL
		  AND (c.settlement_id IS NULL OR s.status = 'completed')
		ORDER BY c.created_at, c.id
	`
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	return collectClaims(rows)
}

// ListBySettlement returns the claims a settlement produced.
func (r *ClaimRepository) ListBySettlement(ctx context.Context, settlementID string) ([]*model.PendingClaim, error) {
	query := `SELECT ` + claimColumns + ` FROM pending_claims WHERE settlement_id = $1 ORDER BY owner_id, type`

	rows, err := r.pool.Query(ctx, query, settlementID)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlement claims: %w", err)
	}
	return collectClaims(rows)
}

// MarkClaimed links a claim to the ledger entry that realized it. Returns
// ErrClaimRealized when the claim was already marked.
func (r *ClaimRepository) MarkClaimed(ctx context.Context, id string, entryID int64, at time.Time) error {
	const query = `
		UPDATE pending_claims SET claimed_at = $3, ledger_entry_id = $2
		WHERE id = $1 AND claimed_at IS NULL
	`
	tag, err := r.pool.Exec(ctx, query, id, entryID, at)
	if err != nil {
		return fmt.Errorf("failed to mark claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimRealized
	}
	return nil
}
