// Package handler provides Telegram bot command handlers.
//
// A Telegram user is an owner: the sender's Telegram ID is used as the owner
// id everywhere in the engine.
package handler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"github.com/yogev77/tophuman-sub001/internal/model"
	"github.com/yogev77/tophuman-sub001/internal/service"
)

// commandTimeout bounds the storage work behind one command.
const commandTimeout = 10 * time.Second

// Claims is implemented by service.ClaimService.
type Claims interface {
	ClaimAll(ctx context.Context, ownerID int64) (*service.ClaimResult, error)
	Balance(ctx context.Context, ownerID int64) (int64, error)
	GrantDaily(ctx context.Context, ownerID int64) (*model.PendingClaim, error)
}

// Pools is implemented by service.SettlementService.
type Pools interface {
	PoolStatus(ctx context.Context, day, kind string) (*service.PoolView, error)
}

// Settler is implemented by service.SettlementService.
type Settler interface {
	RunSettlement(ctx context.Context, day string) (*service.Report, error)
}

// TokenIssuer is implemented by token.Manager.
type TokenIssuer interface {
	IssueUser(ownerID int64) (string, error)
}

var friendly = map[error]string{
	service.ErrDailyAlreadyClaimed:  "⏰ Today's grant is already claimed. Come back tomorrow.",
	service.ErrInvalidKind:          "❌ Unknown game. Use /games to list them.",
	service.ErrInvalidDay:           "❌ Day must look like 2026-01-31.",
	service.ErrSettlementInProgress: "⏳ A settlement for that pool is already running.",
	service.ErrUnauthenticated:      "❌ Could not identify you.",
}

// replyError answers with a user-facing message for err and logs the rest.
func replyError(c tele.Context, op string, err error) error {
	for target, msg := range friendly {
		if errors.Is(err, target) {
			return c.Reply(msg)
		}
	}
	ev := log.Error().Err(err).Str("op", op)
	if s := c.Sender(); s != nil {
		ev = ev.Int64("user_id", s.ID)
	}
	ev.Msg("Command failed")
	return c.Reply("❌ Something went wrong, please try again later.")
}

func today(now time.Time) string {
	return now.UTC().Format(time.DateOnly)
}
