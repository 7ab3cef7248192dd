package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"
	"pgregory.net/rapid"

	"github.com/yogev77/tophuman-sub001/internal/config"
)

type fakeContext struct {
	tele.Context
	sender  *tele.User
	chat    *tele.Chat
	text    string
	replies []string
}

func (f *fakeContext) Sender() *tele.User { return f.sender }
func (f *fakeContext) Chat() *tele.Chat   { return f.chat }
func (f *fakeContext) Text() string       { return f.text }
func (f *fakeContext) Reply(what interface{}, _ ...interface{}) error {
	f.replies = append(f.replies, what.(string))
	return nil
}

func groupCtx(chatID, userID int64) *fakeContext {
	return &fakeContext{
		sender: &tele.User{ID: userID},
		chat:   &tele.Chat{ID: chatID, Type: tele.ChatSuperGroup},
	}
}

func privateCtx(userID int64) *fakeContext {
	return &fakeContext{
		sender: &tele.User{ID: userID},
		chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
	}
}

// run reports whether the middleware let the update through.
func run(m tele.MiddlewareFunc, c tele.Context) bool {
	called := false
	_ = m(func(tele.Context) error {
		called = true
		return nil
	})(c)
	return called
}

func TestAdminMiddlewareProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		admins := rapid.SliceOfN(rapid.Int64Range(1, 1_000_000_000), 1, 10).Draw(t, "admins")
		userID := rapid.Int64Range(1, 1_000_000_000).Draw(t, "userID")
		cfg := &config.Config{Admin: config.AdminConfig{IDs: admins}}

		c := privateCtx(userID)
		passed := run(AdminMiddleware(cfg), c)

		if passed != cfg.IsAdmin(userID) {
			t.Fatalf("user %d admins %v: passed=%v", userID, admins, passed)
		}
		if !passed && len(c.replies) != 1 {
			t.Fatalf("rejected admin command must reply once, got %v", c.replies)
		}
	})
}

func TestWhitelistGroupProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		chats := rapid.SliceOfN(rapid.Int64Range(-1_000_000, -1), 0, 10).Draw(t, "chats")
		chatID := rapid.Int64Range(-1_000_000, -1).Draw(t, "chatID")
		cfg := &config.Config{Whitelist: config.WhitelistConfig{Chats: chats}}

		passed := run(WhitelistMiddleware(cfg, NewKnownUsers()), groupCtx(chatID, 5))
		if passed != cfg.IsChatAllowed(chatID) {
			t.Fatalf("chat %d whitelist %v: passed=%v", chatID, chats, passed)
		}
	})
}

func TestWhitelistPrivateChat(t *testing.T) {
	cfg := &config.Config{Whitelist: config.WhitelistConfig{Chats: []int64{-100}}}
	known := NewKnownUsers()
	mw := WhitelistMiddleware(cfg, known)

	assert.False(t, run(mw, privateCtx(7)), "unknown user")
	assert.False(t, run(mw, groupCtx(-200, 7)), "other group does not introduce the user")
	assert.False(t, run(mw, privateCtx(7)))

	require.True(t, run(mw, groupCtx(-100, 7)))
	assert.True(t, known.Has(7))
	assert.True(t, run(mw, privateCtx(7)), "user seen in a whitelisted group")

	open := WhitelistMiddleware(&config.Config{}, NewKnownUsers())
	assert.True(t, run(open, privateCtx(8)), "no whitelist")
}

func TestWhitelistIgnoresAnonymousUpdates(t *testing.T) {
	mw := WhitelistMiddleware(&config.Config{}, NewKnownUsers())
	assert.False(t, run(mw, &fakeContext{}))
}

func TestRecoveryMiddleware(t *testing.T) {
	c := privateCtx(7)
	err := RecoveryMiddleware()(func(tele.Context) error {
		panic("boom")
	})(c)

	require.NoError(t, err)
	require.Len(t, c.replies, 1)
	assert.Contains(t, c.replies[0], "Internal error")
}

type recordingRouter struct {
	middleware int
	endpoints  map[string]int
}

func (r *recordingRouter) Use(m ...tele.MiddlewareFunc) { r.middleware += len(m) }
func (r *recordingRouter) Handle(endpoint interface{}, _ tele.HandlerFunc, m ...tele.MiddlewareFunc) {
	r.endpoints[endpoint.(string)] = len(m)
}

func TestRegister(t *testing.T) {
	b := &Bot{cfg: &config.Config{}, known: NewKnownUsers()}
	r := &recordingRouter{endpoints: map[string]int{}}
	b.register(r)

	assert.Equal(t, 3, r.middleware)
	for _, cmd := range []string{"/start", "/balance", "/daily", "/claim", "/token", "/games", "/pool", tele.OnCallback} {
		n, ok := r.endpoints[cmd]
		assert.True(t, ok, cmd)
		assert.Zero(t, n, cmd)
	}
	assert.Equal(t, 1, r.endpoints["/settle"], "admin middleware on /settle")
}
