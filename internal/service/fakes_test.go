package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/model"
	"github.com/yogev77/tophuman-sub001/internal/repository"
)

var errInjected = errors.New("injected failure")

// memDB is an in-memory stand-in for the PostgreSQL repositories with the
// same conflict semantics.
type memDB struct {
	mu          sync.Mutex
	turns       map[string]*model.Turn
	events      map[string][]*model.TurnEvent
	settlements []*model.Settlement
	claims      []*model.PendingClaim
	entries     []*model.CreditLedgerEntry
	pools       map[string]*model.DailyPool
	snapshots   []*model.TreasurySnapshot
	poolLocks   map[string]bool

	eventConflicts int             // next N event appends lose the race
	failClaimOwner map[int64]bool  // claim inserts for these owners fail
	failEntryClaim map[string]bool // ledger appends for these claims fail
	failListKind   map[string]bool // ListCompleted fails for these kinds
	failComplete   bool            // settlements never reach completed
}

func newMemDB() *memDB {
	return &memDB{
		turns:          make(map[string]*model.Turn),
		events:         make(map[string][]*model.TurnEvent),
		pools:          make(map[string]*model.DailyPool),
		poolLocks:      make(map[string]bool),
		failClaimOwner: make(map[int64]bool),
		failEntryClaim: make(map[string]bool),
		failListKind:   make(map[string]bool),
	}
}

func (db *memDB) stores() Stores {
	return Stores{
		Turns:       memTurns{db},
		Events:      memEvents{db},
		Settlements: memSettlements{db},
		Claims:      memClaims{db},
		Ledger:      memLedger{db},
		Pools:       memPools{db},
		Treasury:    memTreasury{db},
	}
}

func (db *memDB) balance(ownerID int64) int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.balanceLocked(ownerID)
}

func (db *memDB) balanceLocked(ownerID int64) int64 {
	var sum int64
	for _, e := range db.entries {
		if e.OwnerID == ownerID {
			sum += e.Amount
		}
	}
	return sum
}

func (db *memDB) credit(ownerID, amount int64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.entries = append(db.entries, &model.CreditLedgerEntry{
		ID: int64(len(db.entries) + 1), OwnerID: ownerID, Amount: amount, Kind: model.LedgerDailyGrant,
	})
}

func (db *memDB) turn(id string) *model.Turn {
	db.mu.Lock()
	defer db.mu.Unlock()
	t := *db.turns[id]
	return &t
}

func (db *memDB) put(t *model.Turn) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c := *t
	db.turns[t.ID] = &c
}

type memTurns struct{ db *memDB }

func (m memTurns) Create(_ context.Context, t *model.Turn) error {
	m.db.put(t)
	return nil
}

func (m memTurns) GetByID(_ context.Context, id string) (*model.Turn, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	t, ok := m.db.turns[id]
	if !ok {
		return nil, repository.ErrTurnNotFound
	}
	c := *t
	return &c, nil
}

func (m memTurns) Delete(_ context.Context, id string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	delete(m.db.turns, id)
	return nil
}

func (m memTurns) CountSince(_ context.Context, ownerID int64, since time.Time) (int, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	n := 0
	for _, t := range m.db.turns {
		if t.OwnerID == ownerID && !t.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m memTurns) Start(_ context.Context, id string, startedAt, expiresAt time.Time) (*model.Turn, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	t, ok := m.db.turns[id]
	if !ok || t.Status != model.TurnPending {
		return nil, repository.ErrStateConflict
	}
	t.Status = model.TurnActive
	t.StartedAt = &startedAt
	t.ExpiresAt = expiresAt
	c := *t
	return &c, nil
}

func (m memTurns) Finish(_ context.Context, t *model.Turn, from model.TurnStatus) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	cur, ok := m.db.turns[t.ID]
	if !ok || cur.Status != from {
		return repository.ErrStateConflict
	}
	c := *t
	m.db.turns[t.ID] = &c
	return nil
}

func (m memTurns) ExpireOverdue(_ context.Context, now time.Time) ([]*model.Turn, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []*model.Turn
	reason := string(game.ReasonTimeout)
	for _, t := range m.db.turns {
		if (t.Status != model.TurnPending && t.Status != model.TurnActive) || !t.ExpiresAt.Before(now) {
			continue
		}
		if t.Status == model.TurnPending {
			t.Status = model.TurnExpired
		} else {
			t.Status = model.TurnInvalid
		}
		t.InvalidReason = &reason
		c := *t
		out = append(out, &c)
	}
	return out, nil
}

func (m memTurns) completed(day, kind string, after *time.Time) []*model.Turn {
	var out []*model.Turn
	for _, t := range m.db.turns {
		if t.Day != day || t.Kind != kind || t.Status != model.TurnCompleted {
			continue
		}
		if after != nil && !t.CreatedAt.After(*after) {
			continue
		}
		c := *t
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m memTurns) ListCompleted(_ context.Context, day, kind string, after *time.Time) ([]*model.Turn, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if m.db.failListKind[kind] {
		return nil, errInjected
	}
	return m.completed(day, kind, after), nil
}

func (m memTurns) CountHigher(_ context.Context, day, kind string, after *time.Time, score int64) (int, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	n := 0
	for _, t := range m.completed(day, kind, after) {
		if !t.Flagged && t.Score != nil && *t.Score > score {
			n++
		}
	}
	return n, nil
}

type memEvents struct{ db *memDB }

func (m memEvents) Append(_ context.Context, ev *model.TurnEvent) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if m.db.eventConflicts > 0 {
		m.db.eventConflicts--
		return repository.ErrEventConflict
	}
	if ev.Index != len(m.db.events[ev.TurnID]) {
		return repository.ErrEventConflict
	}
	c := *ev
	m.db.events[ev.TurnID] = append(m.db.events[ev.TurnID], &c)
	return nil
}

func (m memEvents) List(_ context.Context, turnID string) ([]*model.TurnEvent, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := make([]*model.TurnEvent, 0, len(m.db.events[turnID]))
	for _, ev := range m.db.events[turnID] {
		c := *ev
		out = append(out, &c)
	}
	return out, nil
}

type memSettlements struct{ db *memDB }

func (m memSettlements) Create(_ context.Context, s *model.Settlement) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, x := range m.db.settlements {
		if x.IdempotencyKey == s.IdempotencyKey {
			return repository.ErrDuplicateSettlement
		}
	}
	if s.WinnerAmount+s.RebateTotal+s.SinkAmount != s.PoolTotal {
		return fmt.Errorf("conservation check violated")
	}
	c := *s
	m.db.settlements = append(m.db.settlements, &c)
	return nil
}

func (m memSettlements) Complete(_ context.Context, id string, at time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if m.db.failComplete {
		return errInjected
	}
	for _, s := range m.db.settlements {
		if s.ID == id && s.Status == model.SettlementProcessing {
			s.Status = model.SettlementCompleted
			s.CompletedAt = &at
			return nil
		}
	}
	return repository.ErrStateConflict
}

func (m memSettlements) LastCompleted(_ context.Context, day, kind string) (*model.Settlement, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var last *model.Settlement
	for _, s := range m.db.settlements {
		if s.Day == day && s.Kind == kind && s.Status == model.SettlementCompleted {
			if last == nil || s.Cycle > last.Cycle {
				last = s
			}
		}
	}
	if last == nil {
		return nil, repository.ErrSettlementNotFound
	}
	c := *last
	return &c, nil
}

func (m memSettlements) ListByDay(_ context.Context, day string) ([]*model.Settlement, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []*model.Settlement
	for _, s := range m.db.settlements {
		if s.Day == day {
			c := *s
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m memSettlements) DiscardProcessing(_ context.Context, day, kind string) (int, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	stale := make(map[string]bool)
	kept := m.db.settlements[:0]
	for _, s := range m.db.settlements {
		if s.Day == day && s.Kind == kind && s.Status == model.SettlementProcessing {
			stale[s.ID] = true
			continue
		}
		kept = append(kept, s)
	}
	m.db.settlements = kept

	claims := m.db.claims[:0]
	for _, c := range m.db.claims {
		if c.SettlementID != nil && stale[*c.SettlementID] && c.ClaimedAt == nil {
			continue
		}
		claims = append(claims, c)
	}
	m.db.claims = claims

	sinks := make(map[string]*model.CreditLedgerEntry)
	for _, e := range m.db.entries {
		if e.SettlementID == nil || !stale[*e.SettlementID] || e.Kind != model.LedgerSink {
			continue
		}
		if r, ok := sinks[*e.SettlementID]; ok {
			r.Amount -= e.Amount
			continue
		}
		sid := *e.SettlementID
		sinks[sid] = &model.CreditLedgerEntry{
			OwnerID: e.OwnerID, Amount: -e.Amount, Kind: model.LedgerSink, Day: e.Day, SettlementID: &sid,
		}
	}
	for _, r := range sinks {
		if r.Amount == 0 {
			continue
		}
		r.ID = int64(len(m.db.entries) + 1)
		m.db.entries = append(m.db.entries, r)
	}
	return len(stale), nil
}

func (m memSettlements) TryLock(_ context.Context, day, kind string) (func(), error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	key := day + ":" + kind
	if m.db.poolLocks[key] {
		return nil, repository.ErrSettlementLocked
	}
	m.db.poolLocks[key] = true
	return func() {
		m.db.mu.Lock()
		defer m.db.mu.Unlock()
		delete(m.db.poolLocks, key)
	}, nil
}

type memClaims struct{ db *memDB }

func (m memClaims) Create(_ context.Context, c *model.PendingClaim) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if m.db.failClaimOwner[c.OwnerID] {
		return errInjected
	}
	if c.Type == model.ClaimDailyGrant {
		for _, x := range m.db.claims {
			if x.Type == model.ClaimDailyGrant && x.OwnerID == c.OwnerID && x.Day == c.Day {
				return repository.ErrDuplicateClaim
			}
		}
	}
	cp := *c
	m.db.claims = append(m.db.claims, &cp)
	return nil
}

func (m memClaims) ListUnclaimed(_ context.Context, ownerID int64) ([]*model.PendingClaim, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []*model.PendingClaim
	for _, c := range m.db.claims {
		if c.OwnerID == ownerID && c.ClaimedAt == nil && m.db.payableLocked(c) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m memClaims) MarkClaimed(_ context.Context, id string, entryID int64, at time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, c := range m.db.claims {
		if c.ID == id {
			if c.ClaimedAt != nil {
				return repository.ErrClaimRealized
			}
			c.ClaimedAt = &at
			c.LedgerEntryID = &entryID
			return nil
		}
	}
	return repository.ErrClaimRealized
}

// payableLocked reports whether the settlement behind c has completed.
func (db *memDB) payableLocked(c *model.PendingClaim) bool {
	if c.SettlementID == nil {
		return true
	}
	for _, s := range db.settlements {
		if s.ID == *c.SettlementID {
			return s.Status == model.SettlementCompleted
		}
	}
	return false
}

func (db *memDB) claimsOf(ownerID int64) []*model.PendingClaim {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []*model.PendingClaim
	for _, c := range db.claims {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out
}

type memLedger struct{ db *memDB }

func (m memLedger) Append(_ context.Context, e *model.CreditLedgerEntry) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if e.ClaimID != nil {
		if m.db.failEntryClaim[*e.ClaimID] {
			return errInjected
		}
		for _, x := range m.db.entries {
			if x.ClaimID != nil && *x.ClaimID == *e.ClaimID {
				return repository.ErrDuplicateEntry
			}
		}
	}
	e.ID = int64(len(m.db.entries) + 1)
	e.CreatedAt = time.Now()
	c := *e
	m.db.entries = append(m.db.entries, &c)
	return nil
}

func (m memLedger) GetByClaim(_ context.Context, claimID string) (*model.CreditLedgerEntry, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, e := range m.db.entries {
		if e.ClaimID != nil && *e.ClaimID == claimID {
			c := *e
			return &c, nil
		}
	}
	return nil, repository.ErrEntryNotFound
}

func (m memLedger) Balance(_ context.Context, ownerID int64) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return m.db.balanceLocked(ownerID), nil
}

func (m memLedger) DebitTurn(_ context.Context, ownerID, cost int64, turnID, day string) (*model.CreditLedgerEntry, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if m.db.balanceLocked(ownerID) < cost {
		return nil, repository.ErrInsufficientBalance
	}
	e := &model.CreditLedgerEntry{
		ID: int64(len(m.db.entries) + 1), OwnerID: ownerID, Amount: -cost, Kind: model.LedgerTurnDebit, Day: day, TurnID: &turnID,
	}
	m.db.entries = append(m.db.entries, e)
	c := *e
	return &c, nil
}

type memPools struct{ db *memDB }

func (m memPools) Ensure(_ context.Context, day, kind string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.pools[day+":"+kind]; !ok {
		m.db.pools[day+":"+kind] = &model.DailyPool{Day: day, Kind: kind, Status: model.PoolActive}
	}
	return nil
}

func (m memPools) Freeze(_ context.Context, day, kind string, at time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.pools[day+":"+kind]
	if !ok {
		p = &model.DailyPool{Day: day, Kind: kind}
		m.db.pools[day+":"+kind] = p
	}
	p.Status = model.PoolFrozen
	p.FrozenAt = &at
	return nil
}

func (m memPools) Settle(_ context.Context, day, kind, settlementID string, at time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.pools[day+":"+kind]
	if !ok {
		return repository.ErrPoolNotFound
	}
	p.Status = model.PoolSettled
	p.SettledAt = &at
	p.SettlementID = &settlementID
	return nil
}

func (m memPools) Get(_ context.Context, day, kind string) (*model.DailyPool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.pools[day+":"+kind]
	if !ok {
		return nil, repository.ErrPoolNotFound
	}
	c := *p
	return &c, nil
}

type memTreasury struct{ db *memDB }

func (m memTreasury) Snapshot(_ context.Context, accountID int64, day, settlementID string) (*model.TreasurySnapshot, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s := &model.TreasurySnapshot{
		ID:           int64(len(m.db.snapshots) + 1),
		AccountID:    accountID,
		Day:          day,
		Balance:      m.db.balanceLocked(accountID),
		SettlementID: settlementID,
	}
	m.db.snapshots = append(m.db.snapshots, s)
	return s, nil
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type stubTokens struct{}

func (stubTokens) IssueTurn(turnID string, _ int64, _ string, _ time.Time) (string, error) {
	return "tok-" + turnID, nil
}

// stubGame scores a turn by the number of "hit" events and reveals the answer
// on "peek".
type stubGame struct {
	kind   string
	limit  time.Duration
	result *game.Result
	err    error
}

type stubServer struct {
	Answer int `json:"answer"`
}

func (g *stubGame) Kind() string             { return g.kind }
func (g *stubGame) Name() string             { return "Stub " + g.kind }
func (g *stubGame) TimeLimit() time.Duration { return g.limit }

func (g *stubGame) Generate(seed string) (*game.Spec, error) {
	return game.NewSpec(seed, stubServer{Answer: 42}, map[string]string{"prompt": "?"})
}

func (g *stubGame) Validate(server json.RawMessage, events []game.Event) (*game.Result, error) {
	if g.err != nil {
		return nil, g.err
	}
	if g.result != nil {
		return g.result, nil
	}
	r, rejected := game.Open(events)
	if rejected != nil {
		return rejected, nil
	}
	hits := len(r.Inputs("hit"))
	if hits == 0 {
		return game.Invalid(game.ReasonNoInput), nil
	}
	return game.Valid(int64(hits*100), r.ElapsedMs, 0), nil
}

func (g *stubGame) Reveal(server json.RawMessage, _ []game.Event, ev game.Event) (any, error) {
	switch ev.Type {
	case "peek":
		spec, err := game.LoadServer[stubServer](server)
		if err != nil {
			return nil, err
		}
		return map[string]int{"answer": spec.Answer}, nil
	case "bogus":
		return nil, game.ErrBadPayload
	}
	return nil, nil
}

func newRegistry(games ...game.Game) *game.Registry {
	r := game.NewRegistry()
	for _, g := range games {
		if err := r.Register(g); err != nil {
			panic(err)
		}
	}
	return r
}
