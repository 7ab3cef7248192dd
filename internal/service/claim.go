package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/yogev77/tophuman-sub001/internal/model"
	"github.com/yogev77/tophuman-sub001/internal/pkg/lock"
	"github.com/yogev77/tophuman-sub001/internal/pkg/metrics"
	"github.com/yogev77/tophuman-sub001/internal/repository"
)

// ClaimFailure names a claim that could not be realized.
type ClaimFailure struct {
	ClaimID string `json:"claim_id"`
	Error   string `json:"error"`
}

// ClaimResult is the outcome of realizing an owner's claims.
type ClaimResult struct {
	Claimed      []*model.PendingClaim `json:"claimed"`
	Failed       []ClaimFailure        `json:"failed,omitempty"`
	TotalClaimed int64                 `json:"total_claimed"`
	Balance      int64                 `json:"balance"`
}

// ClaimService turns pending claims into ledger entries.
type ClaimService struct {
	stores     Stores
	dailyGrant int64
	locks      *lock.KeyLock
	now        func() time.Time
}

// NewClaimService creates a new ClaimService instance.
func NewClaimService(stores Stores, dailyGrant int64) *ClaimService {
	return &ClaimService{
		stores:     stores,
		dailyGrant: dailyGrant,
		locks:      lock.New(),
		now:        time.Now,
	}
}

// ClaimAll realizes every unclaimed claim of the owner, each on its own: one
// failure neither rolls back nor blocks the others.
func (s *ClaimService) ClaimAll(ctx context.Context, ownerID int64) (*ClaimResult, error) {
	if ownerID <= 0 {
		return nil, ErrUnauthenticated
	}
	key := strconv.FormatInt(ownerID, 10)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	claims, err := s.stores.Claims.ListUnclaimed(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}

	res := &ClaimResult{Claimed: []*model.PendingClaim{}}
	for _, c := range claims {
		if err := s.realize(ctx, c); err != nil {
			if errors.Is(err, repository.ErrClaimRealized) {
				continue
			}
			metrics.ClaimFailures.WithLabelValues("realize").Inc()
			log.Error().Err(err).Str("claim_id", c.ID).Int64("owner_id", ownerID).Msg("Failed to realize claim")
			res.Failed = append(res.Failed, ClaimFailure{ClaimID: c.ID, Error: err.Error()})
			continue
		}
		res.Claimed = append(res.Claimed, c)
		res.TotalClaimed += c.Amount
	}

	res.Balance, err = s.stores.Ledger.Balance(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	if len(claims) > 0 {
		log.Info().
			Int64("owner_id", ownerID).
			Int("claimed", len(res.Claimed)).
			Int("failed", len(res.Failed)).
			Int64("total", res.TotalClaimed).
			Msg("Claims realized")
	}
	return res, nil
}

// realize writes the ledger entry of a claim, then stamps the claim. An entry
// left by an earlier attempt that died before the stamp is reused.
func (s *ClaimService) realize(ctx context.Context, c *model.PendingClaim) error {
	claimID := c.ID
	entry := &model.CreditLedgerEntry{
		OwnerID:      c.OwnerID,
		Amount:       c.Amount,
		Kind:         model.LedgerKindForClaim(c.Type),
		Day:          c.Day,
		SettlementID: c.SettlementID,
		ClaimID:      &claimID,
		Metadata:     c.Metadata,
	}
	err := s.stores.Ledger.Append(ctx, entry)
	if errors.Is(err, repository.ErrDuplicateEntry) {
		entry, err = s.stores.Ledger.GetByClaim(ctx, c.ID)
	}
	if err != nil {
		return err
	}

	now := s.now().UTC()
	if err := s.stores.Claims.MarkClaimed(ctx, c.ID, entry.ID, now); err != nil {
		return err
	}
	c.LedgerEntryID = &entry.ID
	c.ClaimedAt = &now
	return nil
}

// Balance returns the sum of the owner's ledger entries.
func (s *ClaimService) Balance(ctx context.Context, ownerID int64) (int64, error) {
	if ownerID <= 0 {
		return 0, ErrUnauthenticated
	}
	return s.stores.Ledger.Balance(ctx, ownerID)
}

// GrantDaily issues today's daily grant as a claim. Each owner gets one per
// UTC day.
func (s *ClaimService) GrantDaily(ctx context.Context, ownerID int64) (*model.PendingClaim, error) {
	if ownerID <= 0 {
		return nil, ErrUnauthenticated
	}
	now := s.now().UTC()
	c := &model.PendingClaim{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Type:      model.ClaimDailyGrant,
		Amount:    s.dailyGrant,
		Day:       model.DayOf(now),
		CreatedAt: now,
	}
	if err := s.stores.Claims.Create(ctx, c); err != nil {
		if errors.Is(err, repository.ErrDuplicateClaim) {
			return nil, ErrDailyAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to grant daily credits: %w", err)
	}
	log.Info().Int64("owner_id", ownerID).Int64("amount", c.Amount).Msg("Daily grant issued")
	return c, nil
}
