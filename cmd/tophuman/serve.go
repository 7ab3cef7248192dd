package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yogev77/tophuman-sub001/internal/api"
	"github.com/yogev77/tophuman-sub001/internal/bot"
	"github.com/yogev77/tophuman-sub001/internal/ops"
	"github.com/yogev77/tophuman-sub001/internal/pkg/db"
	"github.com/yogev77/tophuman-sub001/internal/pkg/ratelimit"
	"github.com/yogev77/tophuman-sub001/internal/scheduler"
)

func newServeCmd(load loader) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the public API, operator listener, scheduler and Telegram bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if migrate {
				if err := db.Migrate(ctx, a.db); err != nil {
					return err
				}
			}

			deps := api.Deps{
				Turns:       a.turns,
				Claims:      a.claims,
				Pools:       a.settlements,
				Games:       a.games,
				Tokens:      a.tokens,
				BurstLimit:  cfg.HTTP.BurstLimit,
				BurstWindow: cfg.HTTP.BurstWindow,
			}
			if cfg.Redis.Addr != "" {
				client, err := ratelimit.NewClient(ctx, &cfg.Redis)
				if err != nil {
					log.Warn().Err(err).Msg("Redis unavailable, burst limiting disabled")
				} else {
					defer client.Close()
					deps.Limiter = ratelimit.New(client)
				}
			}

			gin.SetMode(cfg.HTTP.Mode)
			public := &http.Server{
				Addr:         cfg.HTTP.Addr,
				Handler:      api.NewRouter(deps),
				ReadTimeout:  cfg.HTTP.ReadTimeout,
				WriteTimeout: cfg.HTTP.WriteTimeout,
			}
			operator := &http.Server{
				Addr:    cfg.Ops.Addr,
				Handler: ops.NewHandler(a.settlements, a.turns, a.db.Pool, cfg.Ops.AdminKey).Router(),
			}

			var wg sync.WaitGroup
			errc := make(chan error, 2)
			for name, srv := range map[string]*http.Server{"public": public, "ops": operator} {
				wg.Add(1)
				go func(name string, srv *http.Server) {
					defer wg.Done()
					log.Info().Str("listener", name).Str("addr", srv.Addr).Msg("HTTP server starting")
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						errc <- err
					}
				}(name, srv)
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				scheduler.New(a.settlements, a.turns, cfg.Settlement.Interval, cfg.Settlement.SweepInterval).Run(ctx)
			}()

			var telegram *bot.Bot
			if cfg.Bot.Token != "" {
				telegram, err = bot.New(&bot.Dependencies{
					Config:  cfg,
					Claims:  a.claims,
					Pools:   a.settlements,
					Settler: a.settlements,
					Tokens:  a.tokens,
					Games:   a.games,
				})
				if err != nil {
					return err
				}
				go telegram.Start()
			} else {
				log.Info().Msg("No bot token configured, Telegram bot disabled")
			}

			select {
			case <-ctx.Done():
				log.Info().Msg("Received shutdown signal")
			case err = <-errc:
				log.Error().Err(err).Msg("HTTP server failed")
				stop()
			}

			if telegram != nil {
				telegram.Stop()
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			for _, srv := range []*http.Server{public, operator} {
				if serr := srv.Shutdown(shutdownCtx); serr != nil {
					log.Warn().Err(serr).Str("addr", srv.Addr).Msg("HTTP server shutdown")
				}
			}
			wg.Wait()
			log.Info().Msg("Stopped gracefully")
			return err
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply the database schema on startup")
	return cmd
}
