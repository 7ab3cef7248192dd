package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/service"
)

// PoolHandler shows the playable kinds and their pools.
type PoolHandler struct {
	pools Pools
	games *game.Registry
	now   func() time.Time
}

// NewPoolHandler creates a new PoolHandler.
func NewPoolHandler(pools Pools, games *game.Registry) *PoolHandler {
	return &PoolHandler{pools: pools, games: games, now: time.Now}
}

// HandleGames lists the enabled kinds with a pool button for each.
func (h *PoolHandler) HandleGames(c tele.Context) error {
	games := h.games.List()
	if len(games) == 0 {
		return c.Reply("📭 No games are enabled.")
	}
	return c.Reply(formatGames(games), BuildGamesPanel(games))
}

// HandleCallback answers a pool button.
func (h *PoolHandler) HandleCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil {
		return nil
	}
	kind, ok := ParseCallback(cb.Data)
	if !ok {
		return c.Respond()
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	view, err := h.pools.PoolStatus(ctx, today(h.now()), kind)
	if err != nil {
		_ = c.Respond()
		return replyError(c, "pool_callback", err)
	}
	_ = c.Respond()
	return c.Send(formatPool(view))
}

// HandlePool shows one pool.
// Format: /pool <kind> [day]
func (h *PoolHandler) HandlePool(c tele.Context) error {
	args := c.Args()
	if len(args) < 1 {
		return c.Reply("Usage: /pool <game> [YYYY-MM-DD]")
	}
	kind := args[0]
	day := today(h.now())
	if len(args) > 1 {
		day = args[1]
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	view, err := h.pools.PoolStatus(ctx, day, kind)
	if err != nil {
		return replyError(c, "pool", err)
	}
	return c.Reply(formatPool(view))
}

func formatPool(view *service.PoolView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🏊 %s pool, %s\n━━━━━━━━━━━━━━━\n", view.Kind, view.Day)
	fmt.Fprintf(&b, "Status: %s\n", view.Status)
	fmt.Fprintf(&b, "Turns this cycle: %d\n", view.CycleTurns)
	if st := view.LastSettlement; st != nil {
		fmt.Fprintf(&b, "Last settlement: cycle %d, pool %d, winner %d\n", st.Cycle, st.PoolTotal, st.WinnerAmount)
	}
	b.WriteString("━━━━━━━━━━━━━━━")
	return b.String()
}
