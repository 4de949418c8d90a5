package payout

import (
	"context"
	"log/slog"
	"time"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/uow"
)

const advanceScheduledKey = "payout.advance_scheduled"

type AdvanceScheduledCommand struct {
	Now time.Time
}

func (c AdvanceScheduledCommand) Key() string { return advanceScheduledKey }

type AdvanceScheduledResult struct {
	Advanced int `json:"advanced"`
}

// AdvanceScheduledHandler releases scheduled payouts whose hold delay has
// elapsed. The payout worker dispatches it on every tick; admins can trigger
// it out of band.
type AdvanceScheduledHandler struct {
	Logger *slog.Logger
}

func (h *AdvanceScheduledHandler) Handle(ctx context.Context, cmd AdvanceScheduledCommand) (*AdvanceScheduledResult, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	now := cmd.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	due, err := unit.Payouts().DueScheduled(ctx, now)
	if err != nil {
		return nil, err
	}
	advanced := 0
	for _, p := range due {
		if err := p.MarkReady(now); err != nil {
			continue
		}
		if err := unit.Payouts().Save(ctx, p); err != nil {
			return nil, err
		}
		advanced++
	}
	if h.Logger != nil && advanced > 0 {
		h.Logger.Info("scheduled payouts released", "count", advanced)
	}
	return &AdvanceScheduledResult{Advanced: advanced}, nil
}

var _ commands.Handler[AdvanceScheduledCommand, *AdvanceScheduledResult] = (*AdvanceScheduledHandler)(nil)
