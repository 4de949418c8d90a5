package booking

import (
	"context"
	"time"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/outbox"
	"stayhub/internal/app/policies"
	"stayhub/internal/app/uow"
	domainbilling "stayhub/internal/domain/billing"
	domainbooking "stayhub/internal/domain/booking"
	domainpayout "stayhub/internal/domain/payout"

	payouthandlers "stayhub/internal/app/handlers/payout"
)

const confirmBookingKey = "booking.confirm"

type ConfirmBookingCommand struct {
	BookingID string
}

func (c ConfirmBookingCommand) Key() string { return confirmBookingKey }

type ConfirmBookingResult struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
	PayoutID  string `json:"payout_id,omitempty"`
}

// ConfirmBookingHandler transitions a paid booking to confirmed, blocks the
// availability calendar and schedules the owner's payout, all in one
// transaction.
type ConfirmBookingHandler struct {
	Subscriptions policies.Subscriptions
	Outbox        outbox.Outbox
	Encoder       outbox.EventEncoder
}

func (h *ConfirmBookingHandler) Handle(ctx context.Context, cmd ConfirmBookingCommand) (*ConfirmBookingResult, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	now := time.Now().UTC()

	b, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		return nil, err
	}

	p, err := confirmAndSchedule(ctx, unit, b, h.Subscriptions, now)
	if err != nil {
		return nil, err
	}

	if err := drainEvents(ctx, h.Outbox, h.Encoder, b, p); err != nil {
		return nil, err
	}

	res := &ConfirmBookingResult{BookingID: string(b.ID), Status: string(b.Status)}
	if p != nil {
		res.PayoutID = p.ID
	}
	return res, nil
}

// confirmAndSchedule runs the shared confirmation flow: guard the state
// machine, ensure no overlapping confirmed stay holds the calendar, block the
// interval and schedule the payout. The webhook path reuses it after a
// successful charge.
func confirmAndSchedule(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking, subs policies.Subscriptions, now time.Time) (*domainpayout.Payout, error) {
	if overlap, err := unit.Calendar().HasOverlap(ctx, b.PropertyID, b.Range); err != nil {
		return nil, err
	} else if overlap {
		return nil, policies.ErrCalendarConflict
	}
	if err := b.Confirm(now); err != nil {
		return nil, err
	}
	if err := unit.Bookings().Save(ctx, b); err != nil {
		return nil, err
	}
	if err := unit.Calendar().Block(ctx, b.PropertyID, b.Range, b.ID); err != nil {
		return nil, err
	}

	tier := domainbilling.TierFree
	if subs != nil {
		if active, err := subs.ActiveTier(ctx, b.OwnerID); err == nil {
			tier = active
		}
	}
	return payouthandlers.ScheduleForBooking(ctx, unit, b, tier, now)
}

// drainEvents stages pending events from the touched aggregates.
func drainEvents(ctx context.Context, box outbox.Outbox, enc outbox.EventEncoder, b *domainbooking.Booking, p *domainpayout.Payout) error {
	evs := b.PendingEvents()
	b.ClearEvents()
	if p != nil {
		evs = append(evs, p.PendingEvents()...)
		p.ClearEvents()
	}
	return outbox.RecordDomainEvents(ctx, box, enc, evs)
}

var _ commands.Handler[ConfirmBookingCommand, *ConfirmBookingResult] = (*ConfirmBookingHandler)(nil)
