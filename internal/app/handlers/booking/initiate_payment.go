package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/handlers/support"
	"stayhub/internal/app/middleware"
	"stayhub/internal/app/policies"
	"stayhub/internal/app/uow"
	domainbilling "stayhub/internal/domain/billing"
	domainbooking "stayhub/internal/domain/booking"
)

const initiatePaymentKey = "booking.initiate_payment"

var (
	ErrPaymentNotDue   = errors.New("booking: payment can only be initiated for a pending unpaid booking")
	ErrExternalBooking = errors.New("booking: externally sourced bookings carry no charge")
)

type InitiatePaymentCommand struct {
	BookingID       string
	IdempotencyKeyV string
}

func (c InitiatePaymentCommand) Key() string { return initiatePaymentKey }

func (c InitiatePaymentCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c InitiatePaymentCommand) ResultPrototype() any { return &InitiatePaymentResult{} }

// ManagesOwnTransaction: charge initialization is a gateway round trip and
// must not run inside an ambient database transaction.
func (c InitiatePaymentCommand) ManagesOwnTransaction() {}

type InitiatePaymentResult struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirect_url"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// InitiatePaymentHandler asks the gateway for a hosted charge and records the
// pending ledger row. Completion arrives later through the webhook.
type InitiatePaymentHandler struct {
	UoWFactory uow.UoWFactory
	Gateway    policies.PaymentGateway
	Tenants    policies.TenantDirectory
}

func (h *InitiatePaymentHandler) Handle(ctx context.Context, cmd InitiatePaymentCommand) (*InitiatePaymentResult, error) {
	var b *domainbooking.Booking
	err := support.RunInUnit(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		loaded, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(cmd.BookingID))
		if err != nil {
			return err
		}
		if loaded.ExternalSource {
			return ErrExternalBooking
		}
		if loaded.Status != domainbooking.StatusPending {
			return ErrPaymentNotDue
		}
		switch loaded.PaymentStatus {
		case domainbooking.PaymentPending, domainbooking.PaymentFailed:
		default:
			return ErrPaymentNotDue
		}
		b = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	customer, err := h.Tenants.Customer(ctx, b.TenantID)
	if err != nil {
		return nil, err
	}

	intent, err := h.Gateway.InitializeCharge(ctx, b.Price.Total, customer, map[string]string{
		"booking_id": string(b.ID),
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = support.RunInUnit(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		row := domainbilling.NewTransaction(uuid.NewString(), domainbilling.TransactionPayment, b.Price.Total, b.TenantID, b.ID, "tenant charge for stay", now)
		row.ExternalRef = intent.Reference
		return unit.Transactions().Save(ctx, row)
	})
	if err != nil {
		return nil, err
	}

	return &InitiatePaymentResult{
		Reference:   intent.Reference,
		RedirectURL: intent.RedirectURL,
		Amount:      b.Price.Total.Amount,
		Currency:    b.Price.Total.Currency,
	}, nil
}

var _ commands.Handler[InitiatePaymentCommand, *InitiatePaymentResult] = (*InitiatePaymentHandler)(nil)
var _ middleware.IdempotentCommand = InitiatePaymentCommand{}
var _ middleware.SelfManagedTx = InitiatePaymentCommand{}
