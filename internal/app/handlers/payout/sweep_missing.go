package payout

import (
	"context"
	"log/slog"
	"time"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/outbox"
	"stayhub/internal/app/uow"
	domainbilling "stayhub/internal/domain/billing"
)

const sweepMissingKey = "payout.sweep_missing"

type SweepMissingPayoutsCommand struct {
	Now time.Time
}

func (c SweepMissingPayoutsCommand) Key() string { return sweepMissingKey }

type SweepMissingPayoutsResult struct {
	Scheduled int `json:"scheduled"`
}

// SweepMissingPayoutsHandler backfills disbursements for confirmed, paid
// bookings that never got one, typically because the process died between
// the payment confirmation and the payout write. The payout worker runs it
// every tick; bookings already covered by a live payout are skipped.
type SweepMissingPayoutsHandler struct {
	Subscriptions subscriptionsPort
	Outbox        outbox.Outbox
	Encoder       outbox.EventEncoder
	Logger        *slog.Logger
}

func (h *SweepMissingPayoutsHandler) Handle(ctx context.Context, cmd SweepMissingPayoutsCommand) (*SweepMissingPayoutsResult, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	now := cmd.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	candidates, err := unit.Bookings().ConfirmedPaidWithoutPayout(ctx)
	if err != nil {
		return nil, err
	}

	scheduled := 0
	for _, b := range candidates {
		tier := domainbilling.TierFree
		if h.Subscriptions != nil {
			if active, err := h.Subscriptions.ActiveTier(ctx, b.OwnerID); err == nil {
				tier = active
			}
		}
		p, err := ScheduleForBooking(ctx, unit, b, tier, now)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		evs := p.PendingEvents()
		p.ClearEvents()
		if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, evs); err != nil {
			return nil, err
		}
		scheduled++
	}
	if h.Logger != nil && scheduled > 0 {
		h.Logger.Info("missing payouts backfilled", "count", scheduled)
	}
	return &SweepMissingPayoutsResult{Scheduled: scheduled}, nil
}

var _ commands.Handler[SweepMissingPayoutsCommand, *SweepMissingPayoutsResult] = (*SweepMissingPayoutsHandler)(nil)
