// Package bot wires the Telegram bot: middleware and command registration.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"github.com/yogev77/tophuman-sub001/internal/config"
	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/handler"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot   *tele.Bot
	cfg   *config.Config
	known *KnownUsers

	accountHandler *handler.AccountHandler
	poolHandler    *handler.PoolHandler
	adminHandler   *handler.AdminHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config  *config.Config
	Claims  handler.Claims
	Pools   handler.Pools
	Settler handler.Settler
	Tokens  handler.TokenIssuer
	Games   *game.Registry
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	teleBot, err := tele.NewBot(tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("Telegram handler error")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:            teleBot,
		cfg:            deps.Config,
		known:          NewKnownUsers(),
		accountHandler: handler.NewAccountHandler(deps.Claims, deps.Tokens),
		poolHandler:    handler.NewPoolHandler(deps.Pools, deps.Games),
		adminHandler:   handler.NewAdminHandler(deps.Settler),
	}
	b.register(b.bot)
	return b, nil
}

// router is the subset of *tele.Bot used for registration.
type router interface {
	Use(middleware ...tele.MiddlewareFunc)
	Handle(endpoint interface{}, h tele.HandlerFunc, m ...tele.MiddlewareFunc)
}

func (b *Bot) register(r router) {
	r.Use(RecoveryMiddleware(), WhitelistMiddleware(b.cfg, b.known), LoggingMiddleware())

	r.Handle("/start", b.accountHandler.HandleStart)
	r.Handle("/balance", b.accountHandler.HandleBalance)
	r.Handle("/daily", b.accountHandler.HandleDaily)
	r.Handle("/claim", b.accountHandler.HandleClaim)
	r.Handle("/token", b.accountHandler.HandleToken)
	r.Handle("/games", b.poolHandler.HandleGames)
	r.Handle("/pool", b.poolHandler.HandlePool)
	r.Handle(tele.OnCallback, b.poolHandler.HandleCallback)

	r.Handle("/settle", b.adminHandler.HandleSettle, AdminMiddleware(b.cfg))
}

// Start starts long polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Str("username", b.bot.Me.Username).Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
