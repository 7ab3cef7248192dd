// Package scheduler drives the periodic background work: settling open
// pools and timing out abandoned turns.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yogev77/tophuman-sub001/internal/service"
)

// Settler is implemented by service.SettlementService.
type Settler interface {
	RunSettlement(ctx context.Context, day string) (*service.Report, error)
}

// Sweeper is implemented by service.TurnService.
type Sweeper interface {
	ExpireStale(ctx context.Context) (int, error)
}

// Scheduler runs settlement and sweeping on independent tickers.
type Scheduler struct {
	settler     Settler
	sweeper     Sweeper
	settleEvery time.Duration
	sweepEvery  time.Duration
	now         func() time.Time
}

// New creates a Scheduler. A non-positive interval disables that job.
func New(settler Settler, sweeper Sweeper, settleEvery, sweepEvery time.Duration) *Scheduler {
	return &Scheduler{
		settler:     settler,
		sweeper:     sweeper,
		settleEvery: settleEvery,
		sweepEvery:  sweepEvery,
		now:         time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	settle := tick(s.settleEvery)
	sweep := tick(s.sweepEvery)
	defer settle.Stop()
	defer sweep.Stop()

	log.Info().
		Dur("settle_every", s.settleEvery).
		Dur("sweep_every", s.sweepEvery).
		Msg("Scheduler started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Scheduler stopped")
			return
		case <-settle.C:
			s.SettleDue(ctx)
		case <-sweep.C:
			s.Sweep(ctx)
		}
	}
}

// SettleDue settles yesterday and today (UTC). Yesterday is included so the
// last cycle of a day is closed after midnight.
func (s *Scheduler) SettleDue(ctx context.Context) {
	today := s.now().UTC()
	for _, day := range []string{
		today.AddDate(0, 0, -1).Format(time.DateOnly),
		today.Format(time.DateOnly),
	} {
		report, err := s.settler.RunSettlement(ctx, day)
		if err != nil {
			log.Error().Err(err).Str("day", day).Msg("Scheduled settlement failed")
			continue
		}
		if report.Settled > 0 || report.Failed > 0 {
			log.Info().
				Str("day", day).
				Int("settled", report.Settled).
				Int("failed", report.Failed).
				Msg("Scheduled settlement")
		}
	}
}

// Sweep times out overdue turns.
func (s *Scheduler) Sweep(ctx context.Context) {
	n, err := s.sweeper.ExpireStale(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Turn sweep failed")
		return
	}
	if n > 0 {
		log.Debug().Int("expired", n).Msg("Swept overdue turns")
	}
}

type ticker struct {
	C    <-chan time.Time
	stop func()
}

func (t ticker) Stop() {
	if t.stop != nil {
		t.stop()
	}
}

// tick returns a ticker that never fires when every is not positive.
func tick(every time.Duration) ticker {
	if every <= 0 {
		return ticker{}
	}
	t := time.NewTicker(every)
	return ticker{C: t.C, stop: t.Stop}
}
