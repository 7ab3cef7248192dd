package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"
)

// AdminHandler handles operator commands. Access is checked by the bot's
// admin middleware.
type AdminHandler struct {
	settler Settler
	now     func() time.Time
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(settler Settler) *AdminHandler {
	return &AdminHandler{settler: settler, now: time.Now}
}

// HandleSettle settles every pool of a day.
// Format: /settle [YYYY-MM-DD]
func (h *AdminHandler) HandleSettle(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	day := today(h.now())
	if args := c.Args(); len(args) > 0 {
		day = args[0]
	}

	// Settling every kind takes longer than a single command.
	ctx, cancel := context.WithTimeout(context.Background(), 6*commandTimeout)
	defer cancel()

	report, err := h.settler.RunSettlement(ctx, day)
	if err != nil {
		return replyError(c, "settle", err)
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Str("day", day).
		Int("settled", report.Settled).
		Int("failed", report.Failed).
		Str("operation", "settle").
		Msg("Admin operation executed")

	var b strings.Builder
	fmt.Fprintf(&b, "✅ Settlement %s\nSettled: %d  Empty: %d  Failed: %d\n", day, report.Settled, report.Empty, report.Failed)
	for _, r := range report.Results {
		switch {
		case r.Error != "":
			fmt.Fprintf(&b, "❌ %s: %s\n", r.Kind, r.Error)
		case r.Settlement != nil:
			fmt.Fprintf(&b, "🏆 %s: cycle %d, pool %d\n", r.Kind, r.Settlement.Cycle, r.Settlement.PoolTotal)
		}
	}
	return c.Reply(strings.TrimRight(b.String(), "\n"))
}
