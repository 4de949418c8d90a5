package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/outbox"
	"stayhub/internal/app/policies"
	"stayhub/internal/app/uow"
	domainbooking "stayhub/internal/domain/booking"
)

const processGatewayEventKey = "booking.gateway_event"

var ErrUnknownReference = errors.New("booking: no transaction matches the gateway reference")

type ProcessGatewayEventCommand struct {
	Reference string
	Status    policies.ChargeStatus
}

func (c ProcessGatewayEventCommand) Key() string { return processGatewayEventKey }

type ProcessGatewayEventResult struct {
	BookingID     string `json:"booking_id"`
	PaymentStatus string `json:"payment_status"`
	BookingStatus string `json:"booking_status"`
}

// ProcessGatewayEventHandler projects a verified gateway notification onto the
// ledger and the booking. A completed charge marks the booking paid, confirms
// it and schedules the payout; a failed charge only flips the payment status.
// Signature verification happens at the transport edge before dispatch.
type ProcessGatewayEventHandler struct {
	Subscriptions policies.Subscriptions
	Outbox        outbox.Outbox
	Encoder       outbox.EventEncoder
	Logger        *slog.Logger
}

func (h *ProcessGatewayEventHandler) Handle(ctx context.Context, cmd ProcessGatewayEventCommand) (*ProcessGatewayEventResult, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	now := time.Now().UTC()

	row, err := unit.Transactions().ByExternalRef(ctx, cmd.Reference)
	if err != nil {
		return nil, errors.Join(ErrUnknownReference, err)
	}
	b, err := unit.Bookings().ByID(ctx, row.BookingID)
	if err != nil {
		return nil, err
	}

	switch cmd.Status {
	case policies.ChargeCompleted:
		if !row.IsTerminal() {
			if err := row.MarkCompleted(cmd.Reference, now); err != nil {
				return nil, err
			}
			if err := unit.Transactions().Save(ctx, row); err != nil {
				return nil, err
			}
		}
		if err := b.SetPaymentStatus(domainbooking.PaymentPaid, now); err != nil {
			return nil, err
		}
		if b.Status == domainbooking.StatusPending {
			p, err := confirmAndSchedule(ctx, unit, b, h.Subscriptions, now)
			if err != nil {
				return nil, err
			}
			if err := drainEvents(ctx, h.Outbox, h.Encoder, b, p); err != nil {
				return nil, err
			}
			return h.result(b), nil
		}
		if err := unit.Bookings().Save(ctx, b); err != nil {
			return nil, err
		}
	case policies.ChargeFailed, policies.ChargeCancelled:
		if !row.IsTerminal() {
			if err := row.MarkFailed("gateway reported "+string(cmd.Status), now); err != nil {
				return nil, err
			}
			if err := unit.Transactions().Save(ctx, row); err != nil {
				return nil, err
			}
		}
		if err := b.SetPaymentStatus(domainbooking.PaymentFailed, now); err != nil {
			return nil, err
		}
		if err := unit.Bookings().Save(ctx, b); err != nil {
			return nil, err
		}
	default:
		// pending/processing notifications carry no state change we track
		if h.Logger != nil {
			h.Logger.Debug("ignoring gateway notification", "reference", cmd.Reference, "status", cmd.Status)
		}
		return h.result(b), nil
	}

	if err := drainEvents(ctx, h.Outbox, h.Encoder, b, nil); err != nil {
		return nil, err
	}
	return h.result(b), nil
}

func (h *ProcessGatewayEventHandler) result(b *domainbooking.Booking) *ProcessGatewayEventResult {
	return &ProcessGatewayEventResult{
		BookingID:     string(b.ID),
		PaymentStatus: string(b.PaymentStatus),
		BookingStatus: string(b.Status),
	}
}

var _ commands.Handler[ProcessGatewayEventCommand, *ProcessGatewayEventResult] = (*ProcessGatewayEventHandler)(nil)
