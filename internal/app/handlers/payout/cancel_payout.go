package payout

import (
	"context"
	"time"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/outbox"
	"stayhub/internal/app/uow"
)

const cancelPayoutKey = "payout.cancel"

type CancelPayoutCommand struct {
	PayoutID string
	Reason   string
}

func (c CancelPayoutCommand) Key() string { return cancelPayoutKey }

type CancelPayoutResult struct {
	PayoutID string `json:"payout_id"`
	Status   string `json:"status"`
}

// CancelPayoutHandler stops a not-yet-processing payout, admin only.
type CancelPayoutHandler struct {
	Outbox  outbox.Outbox
	Encoder outbox.EventEncoder
}

func (h *CancelPayoutHandler) Handle(ctx context.Context, cmd CancelPayoutCommand) (*CancelPayoutResult, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	now := time.Now().UTC()

	p, err := unit.Payouts().ByID(ctx, cmd.PayoutID)
	if err != nil {
		return nil, err
	}
	if err := p.Cancel(cmd.Reason, now); err != nil {
		return nil, err
	}
	if err := unit.Payouts().Save(ctx, p); err != nil {
		return nil, err
	}

	evs := p.PendingEvents()
	p.ClearEvents()
	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, evs); err != nil {
		return nil, err
	}

	return &CancelPayoutResult{PayoutID: p.ID, Status: string(p.Status)}, nil
}

var _ commands.Handler[CancelPayoutCommand, *CancelPayoutResult] = (*CancelPayoutHandler)(nil)
