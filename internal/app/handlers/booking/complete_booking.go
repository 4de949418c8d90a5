package booking

import (
	"context"
	"time"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/outbox"
	"stayhub/internal/app/uow"
	domainbooking "stayhub/internal/domain/booking"
)

const completeBookingKey = "booking.complete"

type CompleteBookingCommand struct {
	BookingID string
}

func (c CompleteBookingCommand) Key() string { return completeBookingKey }

type CompleteBookingResult struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

// CompleteBookingHandler closes a confirmed booking once the stay ended.
type CompleteBookingHandler struct {
	Outbox  outbox.Outbox
	Encoder outbox.EventEncoder
}

func (h *CompleteBookingHandler) Handle(ctx context.Context, cmd CompleteBookingCommand) (*CompleteBookingResult, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	now := time.Now().UTC()

	b, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		return nil, err
	}
	if err := b.Complete(now); err != nil {
		return nil, err
	}
	if err := unit.Bookings().Save(ctx, b); err != nil {
		return nil, err
	}

	if err := drainEvents(ctx, h.Outbox, h.Encoder, b, nil); err != nil {
		return nil, err
	}

	return &CompleteBookingResult{BookingID: string(b.ID), Status: string(b.Status)}, nil
}

var _ commands.Handler[CompleteBookingCommand, *CompleteBookingResult] = (*CompleteBookingHandler)(nil)
