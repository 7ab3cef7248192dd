package handler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/model"
	"github.com/yogev77/tophuman-sub001/internal/service"
)

// fakeContext implements the parts of tele.Context the handlers use.
type fakeContext struct {
	tele.Context
	sender   *tele.User
	chat     *tele.Chat
	args     []string
	callback *tele.Callback
	replies  []string
	markups  []*tele.ReplyMarkup
	answered int
}

func (f *fakeContext) Sender() *tele.User { return f.sender }
func (f *fakeContext) Chat() *tele.Chat   { return f.chat }
func (f *fakeContext) Args() []string     { return f.args }
func (f *fakeContext) Callback() *tele.Callback { return f.callback }

func (f *fakeContext) Reply(what interface{}, opts ...interface{}) error {
	f.replies = append(f.replies, what.(string))
	for _, o := range opts {
		if m, ok := o.(*tele.ReplyMarkup); ok {
			f.markups = append(f.markups, m)
		}
	}
	return nil
}

func (f *fakeContext) Send(what interface{}, opts ...interface{}) error {
	return f.Reply(what, opts...)
}

func (f *fakeContext) Respond(...*tele.CallbackResponse) error {
	f.answered++
	return nil
}

func (f *fakeContext) last() string {
	if len(f.replies) == 0 {
		return ""
	}
	return f.replies[len(f.replies)-1]
}

func privateCtx(userID int64, args ...string) *fakeContext {
	return &fakeContext{
		sender: &tele.User{ID: userID, Username: "player"},
		chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
		args:   args,
	}
}

type fakeClaims struct {
	balance  int64
	granted  bool
	claimErr error
	pending  []*model.PendingClaim
}

func (f *fakeClaims) ClaimAll(_ context.Context, _ int64) (*service.ClaimResult, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	res := &service.ClaimResult{Claimed: f.pending}
	for _, c := range f.pending {
		res.TotalClaimed += c.Amount
	}
	f.balance += res.TotalClaimed
	f.pending = nil
	res.Balance = f.balance
	return res, nil
}

func (f *fakeClaims) Balance(context.Context, int64) (int64, error) { return f.balance, nil }

func (f *fakeClaims) GrantDaily(_ context.Context, ownerID int64) (*model.PendingClaim, error) {
	if f.granted {
		return nil, service.ErrDailyAlreadyClaimed
	}
	f.granted = true
	c := &model.PendingClaim{ID: "d", OwnerID: ownerID, Type: model.ClaimDailyGrant, Amount: 5, Day: "2026-10-19"}
	f.pending = append(f.pending, c)
	return c, nil
}

type fakeTokens struct{}

func (fakeTokens) IssueUser(ownerID int64) (string, error) { return "jwt-for-owner", nil }

func TestHandleDaily(t *testing.T) {
	claims := &fakeClaims{balance: 3}
	h := NewAccountHandler(claims, fakeTokens{})

	c := privateCtx(7)
	require.NoError(t, h.HandleDaily(c))
	assert.Contains(t, c.last(), "+5 credits")
	assert.Contains(t, c.last(), "Balance: 8")

	require.NoError(t, h.HandleDaily(c))
	assert.Contains(t, c.last(), "already claimed")
}

func TestHandleDailyKeepsGrantWhenClaimFails(t *testing.T) {
	claims := &fakeClaims{claimErr: errors.New("db down")}
	h := NewAccountHandler(claims, fakeTokens{})

	c := privateCtx(7)
	require.NoError(t, h.HandleDaily(c))
	assert.Contains(t, c.last(), "/claim")
}

func TestHandleClaim(t *testing.T) {
	claims := &fakeClaims{pending: []*model.PendingClaim{
		{Day: "2026-10-18", Type: model.ClaimPrizeWin, Amount: 12},
		{Day: "2026-10-18", Type: model.ClaimRebate, Amount: 2},
	}}
	h := NewAccountHandler(claims, fakeTokens{})

	c := privateCtx(7)
	require.NoError(t, h.HandleClaim(c))
	assert.Contains(t, c.last(), "Claimed 14 credits from 2 claims")
	assert.Contains(t, c.last(), "prize_win: +12")

	require.NoError(t, h.HandleClaim(c))
	assert.Contains(t, c.last(), "Nothing to claim")
}

func TestHandleClaimInternalError(t *testing.T) {
	h := NewAccountHandler(&fakeClaims{claimErr: errors.New("db down")}, fakeTokens{})
	c := privateCtx(7)
	require.NoError(t, h.HandleClaim(c))
	assert.Contains(t, c.last(), "Something went wrong")
	assert.NotContains(t, c.last(), "db down")
}

func TestHandleTokenOnlyInPrivate(t *testing.T) {
	h := NewAccountHandler(&fakeClaims{}, fakeTokens{})

	group := privateCtx(7)
	group.chat = &tele.Chat{ID: -100, Type: tele.ChatGroup}
	require.NoError(t, h.HandleToken(group))
	assert.NotContains(t, group.last(), "jwt-for-owner")

	private := privateCtx(7)
	require.NoError(t, h.HandleToken(private))
	assert.Contains(t, private.last(), "jwt-for-owner")
}

func TestNilSenderIsIgnored(t *testing.T) {
	h := NewAccountHandler(&fakeClaims{}, fakeTokens{})
	c := &fakeContext{}
	require.NoError(t, h.HandleBalance(c))
	assert.Empty(t, c.replies)
}

type namedGame struct{ kind string }

func (g namedGame) Kind() string             { return g.kind }
func (g namedGame) Name() string             { return "Maze Run" }
func (g namedGame) TimeLimit() time.Duration { return 45 * time.Second }
func (g namedGame) Generate(seed string) (*game.Spec, error) {
	return game.NewSpec(seed, struct{}{}, struct{}{})
}
func (g namedGame) Validate(json.RawMessage, []game.Event) (*game.Result, error) {
	return game.Valid(1, 1, 0), nil
}

type fakePools struct{ day string }

func (f *fakePools) PoolStatus(_ context.Context, day, kind string) (*service.PoolView, error) {
	f.day = day
	if kind != "maze_run" {
		return nil, service.ErrInvalidKind
	}
	return &service.PoolView{
		Day: day, Kind: kind, Status: model.PoolActive, CycleTurns: 6,
		LastSettlement: &model.Settlement{Cycle: 2, PoolTotal: 10, WinnerAmount: 5},
	}, nil
}

func TestPoolHandler(t *testing.T) {
	games := game.NewRegistry()
	require.NoError(t, games.Register(namedGame{"maze_run"}))
	pools := &fakePools{}
	h := NewPoolHandler(pools, games)
	h.now = func() time.Time { return time.Date(2026, 10, 19, 23, 0, 0, 0, time.UTC) }

	c := privateCtx(7)
	require.NoError(t, h.HandleGames(c))
	assert.Contains(t, c.last(), "Maze Run (maze_run) - 45s")
	require.Len(t, c.markups, 1)
	require.Len(t, c.markups[0].InlineKeyboard, 1)
	assert.Equal(t, "pool:maze_run", c.markups[0].InlineKeyboard[0][0].Unique)

	require.NoError(t, h.HandlePool(privateCtx(7)))

	c = privateCtx(7, "maze_run")
	require.NoError(t, h.HandlePool(c))
	assert.Equal(t, "2026-10-19", pools.day)
	assert.Contains(t, c.last(), "Turns this cycle: 6")
	assert.Contains(t, c.last(), "cycle 2, pool 10, winner 5")

	c = privateCtx(7, "maze_run", "2026-10-01")
	require.NoError(t, h.HandlePool(c))
	assert.Equal(t, "2026-10-01", pools.day)

	c = privateCtx(7, "nope")
	require.NoError(t, h.HandlePool(c))
	assert.Contains(t, c.last(), "Unknown game")
}

type fakeSettler struct{ day string }

func (f *fakeSettler) RunSettlement(_ context.Context, day string) (*service.Report, error) {
	f.day = day
	if day == "bad" {
		return nil, service.ErrInvalidDay
	}
	return &service.Report{
		Day:     day,
		Settled: 1,
		Failed:  1,
		Results: []service.KindResult{
			{Kind: "maze_run", Settlement: &model.Settlement{Cycle: 1, PoolTotal: 9}},
			{Kind: "quick_math", Error: "internal"},
		},
	}, nil
}

func TestHandleSettle(t *testing.T) {
	settler := &fakeSettler{}
	h := NewAdminHandler(settler)
	h.now = func() time.Time { return time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC) }

	c := privateCtx(1)
	require.NoError(t, h.HandleSettle(c))
	assert.Equal(t, "2026-10-19", settler.day)
	assert.Contains(t, c.last(), "maze_run: cycle 1, pool 9")
	assert.Contains(t, c.last(), "quick_math: internal")

	c = privateCtx(1, "bad")
	require.NoError(t, h.HandleSettle(c))
	assert.Contains(t, c.last(), "2026-01-31")
}

func TestPoolCallback(t *testing.T) {
	games := game.NewRegistry()
	require.NoError(t, games.Register(namedGame{"maze_run"}))
	pools := &fakePools{}
	h := NewPoolHandler(pools, games)
	h.now = func() time.Time { return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC) }

	c := privateCtx(7)
	c.callback = &tele.Callback{Data: "\fpool:maze_run"}
	require.NoError(t, h.HandleCallback(c))
	assert.Equal(t, 1, c.answered)
	assert.Equal(t, "2026-10-19", pools.day)
	assert.Contains(t, c.last(), "maze_run pool")

	c = privateCtx(7)
	c.callback = &tele.Callback{Data: "shop_item:key"}
	require.NoError(t, h.HandleCallback(c))
	assert.Equal(t, 1, c.answered)
	assert.Empty(t, c.replies)
}

func TestBuildGamesPanel(t *testing.T) {
	var games []game.Game
	for _, k := range []string{"a", "b", "c"} {
		games = append(games, namedGame{k})
	}
	m := BuildGamesPanel(games)
	require.Len(t, m.InlineKeyboard, 2)
	assert.Len(t, m.InlineKeyboard[0], 2)
	assert.Len(t, m.InlineKeyboard[1], 1)
	assert.Equal(t, "pool:c", m.InlineKeyboard[1][0].Unique)
}

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data string
		kind string
		ok   bool
	}{
		{"pool:quick_math", "quick_math", true},
		{"\fpool:quick_math", "quick_math", true},
		{"pool:", "", false},
		{"other", "", false},
	}
	for _, tt := range tests {
		kind, ok := ParseCallback(tt.data)
		assert.Equal(t, tt.ok, ok, tt.data)
		assert.Equal(t, tt.kind, kind, tt.data)
	}
}
