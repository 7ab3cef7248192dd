package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/model"
	"github.com/yogev77/tophuman-sub001/internal/pkg/lock"
	"github.com/yogev77/tophuman-sub001/internal/pkg/metrics"
	"github.com/yogev77/tophuman-sub001/internal/repository"
)

// KindResult is the settlement outcome of one kind.
type KindResult struct {
	Kind       string            `json:"kind"`
	Settlement *model.Settlement `json:"settlement,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Report aggregates a day's settlement run. A failed kind never fails the run.
type Report struct {
	Day     string       `json:"day"`
	Results []KindResult `json:"results"`
	Settled int          `json:"settled"`
	Empty   int          `json:"empty"`
	Failed  int          `json:"failed"`
}

// PoolView is the read model of one (day, kind) pool.
type PoolView struct {
	Day            string            `json:"day"`
	Kind           string            `json:"kind"`
	Status         model.PoolStatus  `json:"status"`
	CycleTurns     int               `json:"cycle_turns"`
	LastSettlement *model.Settlement `json:"last_settlement,omitempty"`
}

// SettlementService resolves daily pools into winner prizes, rebates and sink.
type SettlementService struct {
	games    *game.Registry
	stores   Stores
	shares   Shares
	treasury int64
	locks    *lock.KeyLock
	now      func() time.Time
}

// NewSettlementService creates a new SettlementService instance. Sink
// amounts are credited to the treasury account.
func NewSettlementService(games *game.Registry, stores Stores, shares Shares, treasury int64) *SettlementService {
	return &SettlementService{
		games:    games,
		stores:   stores,
		shares:   shares,
		treasury: treasury,
		locks:    lock.New(),
		now:      time.Now,
	}
}

// cycle returns the boundary and number of the cycle that the next settlement
// of the pool would close.
func (s *SettlementService) cycle(ctx context.Context, day, kind string) (*time.Time, int, *model.Settlement, error) {
	last, err := s.stores.Settlements.LastCompleted(ctx, day, kind)
	if err != nil {
		if errors.Is(err, repository.ErrSettlementNotFound) {
			return nil, 1, nil, nil
		}
		return nil, 0, nil, err
	}
	return last.CompletedAt, last.Cycle + 1, last, nil
}

// Settle resolves the current cycle of (day, kind). It returns nil when there
// is nothing to settle: no completed turn in the cycle, or no unflagged one.
func (s *SettlementService) Settle(ctx context.Context, day, kind string) (*model.Settlement, error) {
	key := day + ":" + kind
	if !s.locks.TryLock(key) {
		return nil, ErrSettlementInProgress
	}
	defer s.locks.Unlock(key)

	unlock, err := s.stores.Settlements.TryLock(ctx, day, kind)
	if err != nil {
		if errors.Is(err, repository.ErrSettlementLocked) {
			return nil, ErrSettlementInProgress
		}
		return nil, fmt.Errorf("failed to lock pool: %w", err)
	}
	defer unlock()

	if n, err := s.stores.Settlements.DiscardProcessing(ctx, day, kind); err != nil {
		return nil, fmt.Errorf("failed to clear stale settlements: %w", err)
	} else if n > 0 {
		log.Warn().Str("day", day).Str("kind", kind).Int("count", n).Msg("Discarded settlements left by a crashed run")
	}

	after, cycle, _, err := s.cycle(ctx, day, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to find cycle boundary: %w", err)
	}

	turns, err := s.stores.Turns.ListCompleted(ctx, day, kind, after)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycle turns: %w", err)
	}
	if len(turns) == 0 {
		metrics.Settlements.WithLabelValues(kind, "empty").Inc()
		return nil, nil
	}
	winner := PickWinner(turns)
	if winner == nil {
		metrics.Settlements.WithLabelValues(kind, "empty").Inc()
		log.Info().Str("day", day).Str("kind", kind).Int("turns", len(turns)).Msg("No eligible winner, pool carried over")
		return nil, nil
	}

	now := s.now().UTC()
	others := make(map[int64]int)
	participants := make(map[int64]bool)
	for _, t := range turns {
		participants[t.OwnerID] = true
		if t.Flagged || t.OwnerID == winner.OwnerID {
			continue
		}
		others[t.OwnerID]++
	}
	d := Distribute(int64(len(turns)), s.shares, others)

	winnerID, winnerTurn := winner.OwnerID, winner.ID
	st := &model.Settlement{
		ID:               uuid.NewString(),
		Day:              day,
		Kind:             kind,
		Cycle:            cycle,
		Status:           model.SettlementProcessing,
		PoolTotal:        d.PoolTotal,
		ParticipantCount: len(participants),
		WinnerID:         &winnerID,
		WinnerTurnID:     &winnerTurn,
		WinnerAmount:     d.WinnerAmount,
		RebateTotal:      d.RebateTotal,
		SinkAmount:       d.SinkAmount,
		ContentHash:      ContentHash(day, kind, winner, d),
		IdempotencyKey:   fmt.Sprintf("settle:%s:%s:%d", day, kind, cycle),
		CycleStart:       after,
		CreatedAt:        now,
	}
	if err := s.stores.Settlements.Create(ctx, st); err != nil {
		metrics.Settlements.WithLabelValues(kind, "failed").Inc()
		if errors.Is(err, repository.ErrDuplicateSettlement) {
			return nil, ErrSettlementInProgress
		}
		return nil, fmt.Errorf("failed to create settlement: %w", err)
	}
	if err := s.stores.Pools.Freeze(ctx, day, kind, now); err != nil {
		return nil, fmt.Errorf("failed to freeze pool: %w", err)
	}

	s.emitClaims(ctx, st, winner, d)

	if st.SinkAmount > 0 {
		sid := st.ID
		sink := &model.CreditLedgerEntry{
			OwnerID:      s.treasury,
			Amount:       st.SinkAmount,
			Kind:         model.LedgerSink,
			Day:          day,
			SettlementID: &sid,
		}
		if err := s.stores.Ledger.Append(ctx, sink); err != nil {
			metrics.ClaimFailures.WithLabelValues("sink").Inc()
			log.Error().Err(err).Str("settlement_id", st.ID).Int64("amount", st.SinkAmount).Msg("Failed to write sink entry")
		}
	}

	completed := s.now().UTC()
	if err := s.stores.Settlements.Complete(ctx, st.ID, completed); err != nil {
		return nil, fmt.Errorf("failed to complete settlement: %w", err)
	}
	st.Status = model.SettlementCompleted
	st.CompletedAt = &completed

	if err := s.stores.Pools.Settle(ctx, day, kind, st.ID, completed); err != nil {
		log.Warn().Err(err).Str("day", day).Str("kind", kind).Msg("Failed to mark pool settled")
	}
	if snap, err := s.stores.Treasury.Snapshot(ctx, s.treasury, day, st.ID); err != nil {
		log.Warn().Err(err).Str("settlement_id", st.ID).Msg("Failed to snapshot treasury")
	} else {
		log.Debug().Int64("balance", snap.Balance).Msg("Treasury snapshot recorded")
	}

	metrics.Settlements.WithLabelValues(kind, "settled").Inc()
	metrics.Payouts.WithLabelValues("winner").Add(float64(st.WinnerAmount))
	metrics.Payouts.WithLabelValues("rebate").Add(float64(st.RebateTotal))
	metrics.Payouts.WithLabelValues("sink").Add(float64(st.SinkAmount))

	log.Info().
		Str("settlement_id", st.ID).
		Str("day", day).
		Str("kind", kind).
		Int("cycle", cycle).
		Int64("pool", st.PoolTotal).
		Int64("winner_id", winnerID).
		Int64("winner_amount", st.WinnerAmount).
		Int64("rebates", st.RebateTotal).
		Int64("sink", st.SinkAmount).
		Msg("Pool settled")
	return st, nil
}

// emitClaims writes the winner and rebate claims. A failed insert is logged
// and does not stop its siblings.
func (s *SettlementService) emitClaims(ctx context.Context, st *model.Settlement, winner *model.Turn, d Distribution) {
	sid := st.ID
	write := func(c *model.PendingClaim) {
		if err := s.stores.Claims.Create(ctx, c); err != nil {
			metrics.ClaimFailures.WithLabelValues("emit").Inc()
			log.Error().
				Err(err).
				Str("settlement_id", sid).
				Int64("owner_id", c.OwnerID).
				Str("type", string(c.Type)).
				Int64("amount", c.Amount).
				Msg("Failed to write claim")
		}
	}

	if d.WinnerAmount > 0 {
		meta, _ := json.Marshal(map[string]any{"turn_id": winner.ID, "score": winner.Score, "cycle": st.Cycle})
		write(&model.PendingClaim{
			ID:           uuid.NewString(),
			OwnerID:      winner.OwnerID,
			Type:         model.ClaimPrizeWin,
			Amount:       d.WinnerAmount,
			SettlementID: &sid,
			Day:          st.Day,
			Metadata:     meta,
			CreatedAt:    st.CreatedAt,
		})
	}
	for _, r := range d.Rebates {
		if r.Amount == 0 {
			continue
		}
		meta, _ := json.Marshal(map[string]any{"turns": r.Turns, "weight": r.Weight, "cycle": st.Cycle})
		write(&model.PendingClaim{
			ID:           uuid.NewString(),
			OwnerID:      r.OwnerID,
			Type:         model.ClaimRebate,
			Amount:       r.Amount,
			SettlementID: &sid,
			Day:          st.Day,
			Metadata:     meta,
			CreatedAt:    st.CreatedAt,
		})
	}
}

// RunSettlement settles every registered kind for day independently.
func (s *SettlementService) RunSettlement(ctx context.Context, day string) (*Report, error) {
	if _, err := time.Parse(model.DayLayout, day); err != nil {
		return nil, ErrInvalidDay
	}

	report := &Report{Day: day}
	for _, kind := range s.games.Kinds() {
		st, err := s.Settle(ctx, day, kind)
		res := KindResult{Kind: kind, Settlement: st}
		switch {
		case err != nil:
			res.Error = err.Error()
			report.Failed++
			log.Error().Err(err).Str("day", day).Str("kind", kind).Msg("Settlement failed")
		case st == nil:
			report.Empty++
		default:
			report.Settled++
		}
		report.Results = append(report.Results, res)
	}

	log.Info().
		Str("day", day).
		Int("settled", report.Settled).
		Int("empty", report.Empty).
		Int("failed", report.Failed).
		Msg("Settlement run finished")
	return report, nil
}

// PoolStatus describes the pool of (day, kind) and its open cycle.
func (s *SettlementService) PoolStatus(ctx context.Context, day, kind string) (*PoolView, error) {
	if _, err := time.Parse(model.DayLayout, day); err != nil {
		return nil, ErrInvalidDay
	}
	if _, ok := s.games.Get(kind); !ok {
		return nil, ErrInvalidKind
	}

	view := &PoolView{Day: day, Kind: kind, Status: model.PoolActive}
	pool, err := s.stores.Pools.Get(ctx, day, kind)
	switch {
	case err == nil:
		view.Status = pool.Status
	case !errors.Is(err, repository.ErrPoolNotFound):
		return nil, err
	}

	after, _, last, err := s.cycle(ctx, day, kind)
	if err != nil {
		return nil, err
	}
	view.LastSettlement = last

	turns, err := s.stores.Turns.ListCompleted(ctx, day, kind, after)
	if err != nil {
		return nil, err
	}
	view.CycleTurns = len(turns)
	return view, nil
}
