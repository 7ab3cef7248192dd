package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yogev77/tophuman-sub001/internal/pkg/db"
	"github.com/yogev77/tophuman-sub001/internal/pkg/token"
)

func newSettleCmd(load loader) *cobra.Command {
	var day string

	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Settle every pool of a day and print the report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if day == "" {
				day = time.Now().UTC().Format(time.DateOnly)
			}
			report, err := a.settlements.RunSettlement(cmd.Context(), day)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "UTC day to settle (YYYY-MM-DD), defaults to today")
	return cmd
}

func newSweepCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Time out overdue turns",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.turns.ExpireStale(cmd.Context())
			if err != nil {
				return err
			}
			log.Info().Int("expired", n).Msg("Sweep finished")
			return nil
		},
	}
}

func newMigrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			pool, err := db.NewPool(cmd.Context(), &cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()
			return db.Migrate(cmd.Context(), pool)
		},
	}
}

func newTokenCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "token <owner-id>",
		Short: "Issue a bearer token for an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || ownerID <= 0 {
				return fmt.Errorf("invalid owner id %q", args[0])
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			tokens, err := token.New(&token.Config{
				Secret: cfg.Auth.Secret,
				Issuer: cfg.Auth.Issuer,
				TTL:    cfg.Auth.TokenTTL,
			})
			if err != nil {
				return err
			}

			raw, err := tokens.IssueUser(ownerID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		},
	}
}
