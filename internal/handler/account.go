package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"
)

// AccountHandler handles the owner's credits.
type AccountHandler struct {
	claims Claims
	tokens TokenIssuer
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(claims Claims, tokens TokenIssuer) *AccountHandler {
	return &AccountHandler{claims: claims, tokens: tokens}
}

// HandleStart greets the user and lists the commands.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	name := sender.Username
	if name == "" {
		name = sender.FirstName
	}
	return c.Reply(fmt.Sprintf(
		"👋 Welcome %s!\n\n"+
			"Buy a turn with credits, beat the challenge fast and top the daily pool.\n\n"+
			"/balance - your credits\n"+
			"/daily - claim today's free credits\n"+
			"/claim - collect prizes and rebates\n"+
			"/games - playable challenges\n"+
			"/pool <game> - today's pool\n"+
			"/token - API token for the game client (private chat)",
		name,
	))
}

// HandleBalance shows the ledger balance.
func (h *AccountHandler) HandleBalance(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	balance, err := h.claims.Balance(ctx, sender.ID)
	if err != nil {
		return replyError(c, "balance", err)
	}
	return c.Reply(fmt.Sprintf("💰 Balance: %d credits", balance))
}

// HandleDaily issues today's grant and realizes it right away.
func (h *AccountHandler) HandleDaily(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	grant, err := h.claims.GrantDaily(ctx, sender.ID)
	if err != nil {
		return replyError(c, "daily", err)
	}
	res, err := h.claims.ClaimAll(ctx, sender.ID)
	if err != nil {
		// The grant stays pending and is picked up by the next /claim.
		log.Warn().Err(err).Int64("user_id", sender.ID).Msg("Daily grant issued but not claimed")
		return c.Reply(fmt.Sprintf("✅ Daily grant of %d credits issued. Use /claim to collect it.", grant.Amount))
	}
	return c.Reply(fmt.Sprintf("✅ +%d credits\n💰 Balance: %d credits", grant.Amount, res.Balance))
}

// HandleClaim realizes every pending claim.
func (h *AccountHandler) HandleClaim(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	res, err := h.claims.ClaimAll(ctx, sender.ID)
	if err != nil {
		return replyError(c, "claim", err)
	}
	if len(res.Claimed) == 0 && len(res.Failed) == 0 {
		return c.Reply(fmt.Sprintf("📭 Nothing to claim.\n💰 Balance: %d credits", res.Balance))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ Claimed %d credits from %d claims\n", res.TotalClaimed, len(res.Claimed))
	for _, cl := range res.Claimed {
		fmt.Fprintf(&b, "• %s %s: +%d\n", cl.Day, cl.Type, cl.Amount)
	}
	if len(res.Failed) > 0 {
		fmt.Fprintf(&b, "⚠️ %d claims could not be collected, try again later\n", len(res.Failed))
	}
	fmt.Fprintf(&b, "💰 Balance: %d credits", res.Balance)
	return c.Reply(b.String())
}

// HandleToken sends a bearer token for the HTTP API. Only in private chat,
// so the token is never posted to a group.
func (h *AccountHandler) HandleToken(c tele.Context) error {
	sender, chat := c.Sender(), c.Chat()
	if sender == nil || chat == nil {
		return nil
	}
	if chat.Type != tele.ChatPrivate {
		return c.Reply("🔒 Ask me for a token in a private chat.")
	}

	raw, err := h.tokens.IssueUser(sender.ID)
	if err != nil {
		return replyError(c, "token", err)
	}
	log.Info().Int64("user_id", sender.ID).Msg("API token issued")
	return c.Reply("🔑 Your API token:\n" + raw)
}
