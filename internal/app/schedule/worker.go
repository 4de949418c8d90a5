package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"stayhub/internal/app/commands"
	payouthandlers "stayhub/internal/app/handlers/payout"
)

var ErrWorkerNotConfigured = errors.New("schedule: worker missing dependencies")

// Worker drives the payout lifecycle on a timer: every tick backfills
// payouts missing for paid bookings, releases scheduled payouts whose hold
// delay elapsed, then disburses everything ready. Commands go through the
// regular bus so middleware (transactions, outbox flush) applies the same
// as for API traffic.
type Worker struct {
	Bus      commands.Bus
	Interval time.Duration
	Logger   *slog.Logger
}

func (w *Worker) Run(ctx context.Context) error {
	if w.Bus == nil {
		return ErrWorkerNotConfigured
	}
	ticker := time.NewTicker(w.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	now := time.Now().UTC()
	if _, err := commands.Dispatch[payouthandlers.SweepMissingPayoutsCommand, *payouthandlers.SweepMissingPayoutsResult](ctx, w.Bus, payouthandlers.SweepMissingPayoutsCommand{Now: now}); err != nil {
		if w.Logger != nil {
			w.Logger.Error("backfilling missing payouts failed", "error", err)
		}
		return
	}
	if _, err := commands.Dispatch[payouthandlers.AdvanceScheduledCommand, *payouthandlers.AdvanceScheduledResult](ctx, w.Bus, payouthandlers.AdvanceScheduledCommand{Now: now}); err != nil {
		if w.Logger != nil {
			w.Logger.Error("advancing scheduled payouts failed", "error", err)
		}
		return
	}
	res, err := commands.Dispatch[payouthandlers.ExecuteReadyCommand, *payouthandlers.ExecuteReadyResult](ctx, w.Bus, payouthandlers.ExecuteReadyCommand{Now: now})
	if err != nil {
		if w.Logger != nil {
			w.Logger.Error("executing ready payouts failed", "error", err)
		}
		return
	}
	if w.Logger != nil && res != nil && (res.Completed > 0 || res.Failed > 0 || res.Deferred > 0) {
		w.Logger.Info("payout cycle finished", "completed", res.Completed, "failed", res.Failed, "deferred", res.Deferred)
	}
}

func (w *Worker) interval() time.Duration {
	if w.Interval <= 0 {
		return time.Minute
	}
	return w.Interval
}
