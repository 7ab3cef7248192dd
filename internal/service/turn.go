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
	"github.com/yogev77/tophuman-sub001/internal/pkg/metrics"
	"github.com/yogev77/tophuman-sub001/internal/pkg/prng"
	"github.com/yogev77/tophuman-sub001/internal/repository"
)

// reasonInternal marks a turn whose stored challenge could not be replayed.
const reasonInternal = "internal"

const maxAppendAttempts = 5

// TokenIssuer signs turn tokens. Implemented by token.Manager.
type TokenIssuer interface {
	IssueTurn(turnID string, ownerID int64, kind string, expires time.Time) (string, error)
}

// TurnConfig holds the lifecycle limits of a turn.
type TurnConfig struct {
	Cost        int64
	StartWindow time.Duration
	Grace       time.Duration
	MaxEvents   int
	RateWindow  time.Duration
	RateLimit   int
}

// CreatedTurn is returned to the player when a turn is bought.
type CreatedTurn struct {
	TurnID     string          `json:"turn_id"`
	Token      string          `json:"turn_token"`
	Kind       string          `json:"kind"`
	ClientSpec json.RawMessage `json:"client_spec"`
	ExpiresAt  time.Time       `json:"expires_at"`
	TimeLimit  time.Duration   `json:"-"`
}

// Appended describes a stored event.
type Appended struct {
	Index           int       `json:"event_index"`
	ServerTimestamp time.Time `json:"server_ts"`
	Echo            any       `json:"echo,omitempty"`
}

// Completion is the terminal outcome of a turn.
type Completion struct {
	TurnID  string           `json:"turn_id"`
	Status  model.TurnStatus `json:"status"`
	Valid   bool             `json:"valid"`
	Score   *int64           `json:"score,omitempty"`
	Rank    *int             `json:"rank,omitempty"`
	Reason  string           `json:"reason,omitempty"`
	Flagged bool             `json:"flagged"`
}

// TurnService runs the turn lifecycle: create, start, append, complete.
type TurnService struct {
	games  *game.Registry
	stores Stores
	tokens TokenIssuer
	cfg    TurnConfig
	now    func() time.Time
}

// NewTurnService creates a new TurnService instance.
func NewTurnService(games *game.Registry, stores Stores, tokens TokenIssuer, cfg TurnConfig) *TurnService {
	return &TurnService{
		games:  games,
		stores: stores,
		tokens: tokens,
		cfg:    cfg,
		now:    time.Now,
	}
}

func (s *TurnService) clock() time.Time {
	// Postgres keeps microseconds; hashes must survive the round trip.
	return s.now().UTC().Truncate(time.Microsecond)
}

// CreateTurn buys a turn of kind for the owner: it generates the challenge,
// records the turn and debits its cost. The turn is removed again when the
// debit fails.
func (s *TurnService) CreateTurn(ctx context.Context, ownerID int64, kind string, groupSessionID *string) (*CreatedTurn, error) {
	if ownerID <= 0 {
		return nil, ErrUnauthenticated
	}
	g, ok := s.games.Get(kind)
	if !ok {
		return nil, ErrInvalidKind
	}
	now := s.clock()

	if s.cfg.RateLimit > 0 {
		n, err := s.stores.Turns.CountSince(ctx, ownerID, now.Add(-s.cfg.RateWindow))
		if err != nil {
			return nil, fmt.Errorf("failed to check turn rate: %w", err)
		}
		if n >= s.cfg.RateLimit {
			return nil, ErrRateLimited
		}
	}

	seed, err := prng.NewSeed(ownerID, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpecGeneration, err)
	}
	spec, err := g.Generate(seed)
	if err != nil {
		log.Error().Err(err).Str("kind", kind).Str("seed", seed).Msg("Challenge generation failed")
		return nil, fmt.Errorf("%w: %v", ErrSpecGeneration, err)
	}

	turn := &model.Turn{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		Kind:           kind,
		Day:            model.DayOf(now),
		Seed:           spec.Seed,
		ServerSpec:     spec.Server,
		ClientSpec:     spec.Client,
		Status:         model.TurnPending,
		GroupSessionID: groupSessionID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.cfg.StartWindow),
	}
	if err := s.stores.Turns.Create(ctx, turn); err != nil {
		return nil, err
	}

	if _, err := s.stores.Ledger.DebitTurn(ctx, ownerID, s.cfg.Cost, turn.ID, turn.Day); err != nil {
		if delErr := s.stores.Turns.Delete(ctx, turn.ID); delErr != nil {
			log.Error().Err(delErr).Str("turn_id", turn.ID).Msg("Failed to roll back turn after debit failure")
		}
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return nil, ErrInsufficientBalance
		}
		return nil, fmt.Errorf("failed to debit turn: %w", err)
	}

	if err := s.stores.Pools.Ensure(ctx, turn.Day, kind); err != nil {
		log.Warn().Err(err).Str("day", turn.Day).Str("kind", kind).Msg("Failed to ensure daily pool")
	}

	tokenExpiry := turn.ExpiresAt.Add(g.TimeLimit() + s.cfg.Grace)
	tok, err := s.tokens.IssueTurn(turn.ID, ownerID, kind, tokenExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to issue turn token: %w", err)
	}

	metrics.TurnsCreated.WithLabelValues(kind).Inc()
	log.Info().
		Str("turn_id", turn.ID).
		Int64("owner_id", ownerID).
		Str("kind", kind).
		Time("expires_at", turn.ExpiresAt).
		Msg("Turn created")

	return &CreatedTurn{
		TurnID:     turn.ID,
		Token:      tok,
		Kind:       kind,
		ClientSpec: turn.ClientSpec,
		ExpiresAt:  turn.ExpiresAt,
		TimeLimit:  g.TimeLimit(),
	}, nil
}

func (s *TurnService) load(ctx context.Context, ownerID int64, turnID string) (*model.Turn, game.Game, error) {
	t, err := s.stores.Turns.GetByID(ctx, turnID)
	if err != nil {
		if errors.Is(err, repository.ErrTurnNotFound) {
			return nil, nil, ErrTurnNotFound
		}
		return nil, nil, err
	}
	if t.OwnerID != ownerID {
		return nil, nil, ErrTurnNotFound
	}
	g, ok := s.games.Get(t.Kind)
	if !ok {
		return nil, nil, ErrInvalidKind
	}
	return t, g, nil
}

// StartTurn stamps the authoritative start time and opens the play budget.
func (s *TurnService) StartTurn(ctx context.Context, ownerID int64, turnID string) (*model.Turn, error) {
	t, g, err := s.load(ctx, ownerID, turnID)
	if err != nil {
		return nil, err
	}
	if t.Status != model.TurnPending {
		return nil, ErrTurnNotPending
	}
	now := s.clock()
	if now.After(t.ExpiresAt) {
		s.timeout(ctx, t, model.TurnExpired, now)
		return nil, ErrTurnTimedOut
	}

	started, err := s.stores.Turns.Start(ctx, t.ID, now, now.Add(g.TimeLimit()+s.cfg.Grace))
	if err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, ErrTurnNotPending
		}
		return nil, err
	}

	if _, _, err := s.append(ctx, started, nil, game.EventStart, now.UnixMilli(), nil, now, s.cfg.MaxEvents); err != nil {
		return nil, fmt.Errorf("failed to record start event: %w", err)
	}

	log.Info().Str("turn_id", t.ID).Time("expires_at", started.ExpiresAt).Msg("Turn started")
	return started, nil
}

// AppendEvent records one client action. Kinds that reveal their answer key
// step by step return the revealed part as the echo.
func (s *TurnService) AppendEvent(ctx context.Context, ownerID int64, turnID, typ string, clientTS int64, payload json.RawMessage) (*Appended, error) {
	if typ == "" || typ == game.EventStart || typ == game.EventSubmit {
		return nil, fmt.Errorf("%w: event type %q is not accepted", ErrInvalidPayload, typ)
	}
	payload, err := CanonicalPayload(payload)
	if err != nil {
		return nil, err
	}

	t, g, err := s.load(ctx, ownerID, turnID)
	if err != nil {
		return nil, err
	}
	if t.Status != model.TurnActive {
		return nil, ErrTurnNotActive
	}
	now := s.clock()
	if now.After(t.ExpiresAt) {
		s.timeout(ctx, t, model.TurnInvalid, now)
		return nil, ErrTurnTimedOut
	}

	// One slot stays reserved for the terminal submit.
	ev, echo, err := s.append(ctx, t, g, typ, clientTS, payload, now, s.cfg.MaxEvents-1)
	if err != nil {
		return nil, err
	}
	metrics.EventsAppended.Inc()
	return &Appended{Index: ev.Index, ServerTimestamp: ev.ServerTimestamp, Echo: echo}, nil
}

// append assigns the next index, links the hash chain and stores the event.
// A racing writer that takes the same index makes this one retry.
func (s *TurnService) append(
	ctx context.Context,
	t *model.Turn,
	g game.Game,
	typ string,
	clientTS int64,
	payload json.RawMessage,
	now time.Time,
	limit int,
) (*model.TurnEvent, any, error) {
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		events, err := s.stores.Events.List(ctx, t.ID)
		if err != nil {
			return nil, nil, err
		}
		if len(events) >= limit {
			return nil, nil, ErrEventCapExceeded
		}

		ev := &model.TurnEvent{
			TurnID:          t.ID,
			Index:           len(events),
			Type:            typ,
			ClientTimestamp: clientTS,
			ServerTimestamp: now,
			Payload:         payload,
		}
		if len(events) > 0 {
			prev := events[len(events)-1].Hash
			ev.PrevHash = &prev
		}
		ev.Hash = EventHash(ev)

		var echo any
		if r, ok := g.(game.Revealer); ok {
			echo, err = r.Reveal(t.ServerSpec, toGameEvents(events), toGameEvent(ev))
			if err != nil {
				return nil, nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			}
		}

		err = s.stores.Events.Append(ctx, ev)
		if errors.Is(err, repository.ErrEventConflict) {
			log.Debug().Str("turn_id", t.ID).Int("index", ev.Index).Msg("Event index taken, retrying")
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		return ev, echo, nil
	}
	return nil, nil, fmt.Errorf("failed to append event after %d attempts: %w", maxAppendAttempts, repository.ErrEventConflict)
}

// CompleteTurn closes the turn, replays its log and records the outcome.
// Every call on an active turn moves it to a terminal status.
func (s *TurnService) CompleteTurn(ctx context.Context, ownerID int64, turnID string) (*Completion, error) {
	t, g, err := s.load(ctx, ownerID, turnID)
	if err != nil {
		return nil, err
	}
	if t.Status != model.TurnActive {
		return nil, ErrTurnNotActive
	}
	now := s.clock()
	if now.After(t.ExpiresAt) {
		if !s.timeout(ctx, t, model.TurnInvalid, now) {
			return nil, ErrTurnNotActive
		}
		return &Completion{TurnID: t.ID, Status: model.TurnInvalid, Reason: string(game.ReasonTimeout)}, nil
	}

	if _, _, err := s.append(ctx, t, nil, game.EventSubmit, now.UnixMilli(), nil, now, s.cfg.MaxEvents); err != nil {
		return nil, fmt.Errorf("failed to record submit event: %w", err)
	}
	events, err := s.stores.Events.List(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	breaks := VerifyChain(events)

	res, err := g.Validate(t.ServerSpec, toGameEvents(events))
	if err != nil {
		log.Error().Err(err).Str("turn_id", t.ID).Str("kind", t.Kind).Msg("Stored challenge could not be replayed")
		res = &game.Result{Reason: reasonInternal}
	}

	t.CompletedAt = &now
	t.Penalties = res.Penalties
	// A broken chain flags the turn without rejecting it.
	t.Flagged = res.Flagged || len(breaks) > 0
	t.FraudSignals = fraudSignals(res, breaks)
	if res.Valid {
		score, elapsed := res.Score, res.CompletionMs
		t.Status = model.TurnCompleted
		t.Score = &score
		t.CompletionMs = &elapsed
	} else {
		reason := string(res.Reason)
		t.Status = model.TurnInvalid
		t.InvalidReason = &reason
	}

	if err := s.stores.Turns.Finish(ctx, t, model.TurnActive); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, ErrTurnNotActive
		}
		return nil, err
	}

	metrics.TurnsFinished.WithLabelValues(t.Kind, string(t.Status)).Inc()
	if res.Flagged {
		metrics.FraudFlags.WithLabelValues(t.Kind, string(res.Reason)).Inc()
	}
	if len(breaks) > 0 {
		metrics.ChainBreaks.WithLabelValues(t.Kind).Inc()
	}

	out := &Completion{
		TurnID:  t.ID,
		Status:  t.Status,
		Valid:   res.Valid,
		Score:   t.Score,
		Reason:  string(res.Reason),
		Flagged: t.Flagged,
	}
	if res.Valid {
		out.Rank = s.rank(ctx, t)
	}

	log.Info().
		Str("turn_id", t.ID).
		Str("kind", t.Kind).
		Str("status", string(t.Status)).
		Str("reason", out.Reason).
		Bool("flagged", t.Flagged).
		Int("chain_breaks", len(breaks)).
		Msg("Turn completed")
	return out, nil
}

// rank is 1 + the number of higher unflagged scores in the current cycle.
func (s *TurnService) rank(ctx context.Context, t *model.Turn) *int {
	var after *time.Time
	last, err := s.stores.Settlements.LastCompleted(ctx, t.Day, t.Kind)
	switch {
	case err == nil:
		after = last.CompletedAt
	case !errors.Is(err, repository.ErrSettlementNotFound):
		log.Warn().Err(err).Str("turn_id", t.ID).Msg("Failed to find cycle boundary for rank")
		return nil
	}
	higher, err := s.stores.Turns.CountHigher(ctx, t.Day, t.Kind, after, *t.Score)
	if err != nil {
		log.Warn().Err(err).Str("turn_id", t.ID).Msg("Failed to compute rank")
		return nil
	}
	rank := higher + 1
	return &rank
}

// timeout forces an overdue turn out of its current status. It reports
// whether this call made the transition.
func (s *TurnService) timeout(ctx context.Context, t *model.Turn, to model.TurnStatus, now time.Time) bool {
	from := t.Status
	reason := string(game.ReasonTimeout)
	t.Status = to
	t.InvalidReason = &reason
	t.CompletedAt = &now
	if err := s.stores.Turns.Finish(ctx, t, from); err != nil {
		if !errors.Is(err, repository.ErrStateConflict) {
			log.Error().Err(err).Str("turn_id", t.ID).Msg("Failed to time out turn")
		}
		return false
	}
	metrics.TurnsFinished.WithLabelValues(t.Kind, string(to)).Inc()
	log.Info().Str("turn_id", t.ID).Str("status", string(to)).Msg("Turn timed out")
	return true
}

// ExpireStale closes every overdue turn and returns how many were closed.
func (s *TurnService) ExpireStale(ctx context.Context) (int, error) {
	expired, err := s.stores.Turns.ExpireOverdue(ctx, s.clock())
	if err != nil {
		return 0, err
	}
	for _, t := range expired {
		metrics.TurnsFinished.WithLabelValues(t.Kind, string(t.Status)).Inc()
	}
	if len(expired) > 0 {
		log.Info().Int("count", len(expired)).Msg("Expired stale turns")
	}
	return len(expired), nil
}

func fraudSignals(res *game.Result, breaks []int) json.RawMessage {
	if !res.Flagged && len(res.Signals) == 0 && len(breaks) == 0 {
		return nil
	}
	doc := map[string]any{}
	if res.Flagged {
		doc["reason"] = res.Reason
	}
	if len(res.Signals) > 0 {
		doc["timing"] = res.Signals
	}
	if len(breaks) > 0 {
		doc["chain_breaks"] = breaks
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil
	}
	return b
}
