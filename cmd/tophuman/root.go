package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yogev77/tophuman-sub001/internal/config"
	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/game/catalog"
	"github.com/yogev77/tophuman-sub001/internal/pkg/db"
	"github.com/yogev77/tophuman-sub001/internal/pkg/token"
	"github.com/yogev77/tophuman-sub001/internal/repository"
	"github.com/yogev77/tophuman-sub001/internal/service"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "tophuman",
		Short:         "Turn validation and settlement engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config", "directory containing config.yaml")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		setupLogging(&cfg.Log)
		return cfg, nil
	}

	root.AddCommand(
		newServeCmd(load),
		newSettleCmd(load),
		newSweepCmd(load),
		newMigrateCmd(load),
		newTokenCmd(load),
	)
	return root
}

type loader func() (*config.Config, error)

func setupLogging(cfg *config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if strings.EqualFold(cfg.Format, "json") {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// app holds the components shared by the subcommands.
type app struct {
	cfg         *config.Config
	db          *db.Pool
	games       *game.Registry
	tokens      *token.Manager
	turns       *service.TurnService
	settlements *service.SettlementService
	claims      *service.ClaimService
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	games, err := catalog.Build(cfg.Games, cfg.Turns.Kinds)
	if err != nil {
		return nil, fmt.Errorf("failed to build game catalog: %w", err)
	}
	log.Info().
		Int("game_count", games.Count()).
		Strs("games", games.Kinds()).
		Msg("Games registered")

	tokens, err := token.New(&token.Config{
		Secret: cfg.Auth.Secret,
		Issuer: cfg.Auth.Issuer,
		TTL:    cfg.Auth.TokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token manager: %w", err)
	}

	winner, rebate, err := cfg.Settlement.Shares()
	if err != nil {
		return nil, err
	}

	pool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	stores := service.Stores{
		Turns:       repository.NewTurnRepository(pool.Pool),
		Events:      repository.NewEventRepository(pool.Pool),
		Settlements: repository.NewSettlementRepository(pool.Pool),
		Claims:      repository.NewClaimRepository(pool.Pool),
		Ledger:      repository.NewLedgerRepository(pool.Pool),
		Pools:       repository.NewPoolRepository(pool.Pool),
		Treasury:    repository.NewTreasuryRepository(pool.Pool),
	}

	return &app{
		cfg:    cfg,
		db:     pool,
		games:  games,
		tokens: tokens,
		turns: service.NewTurnService(games, stores, tokens, service.TurnConfig{
			Cost:        cfg.Turns.Cost,
			StartWindow: cfg.Turns.StartWindow,
			Grace:       cfg.Turns.Grace,
			MaxEvents:   cfg.Turns.MaxEvents,
			RateWindow:  cfg.Turns.RateWindow,
			RateLimit:   cfg.Turns.RateLimit,
		}),
		settlements: service.NewSettlementService(games, stores, service.Shares{
			Winner:    winner,
			Rebate:    rebate,
			WeightCap: cfg.Settlement.WeightCap,
		}, cfg.Settlement.TreasuryAccount),
		claims: service.NewClaimService(stores, cfg.Daily.Grant),
	}, nil
}

func (a *app) Close() {
	a.db.Close()
}
