package booking

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/middleware"
	"stayhub/internal/app/outbox"
	"stayhub/internal/app/uow"
	domainbooking "stayhub/internal/domain/booking"
	domainpricing "stayhub/internal/domain/pricing"
	domainrange "stayhub/internal/domain/shared/daterange"
)

const createBookingKey = "booking.create"

var ErrDatesUnavailable = errors.New("booking: the requested dates are no longer available")

type CreateBookingCommand struct {
	CommandID       string
	PropertyID      string
	TenantID        string
	CheckIn         time.Time
	CheckOut        time.Time
	Guests          int
	PromoCode       string
	ExternalSource  bool
	IdempotencyKeyV string
}

func (c CreateBookingCommand) Key() string { return createBookingKey }

func (c CreateBookingCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c CreateBookingCommand) ResultPrototype() any { return &CreateBookingResult{} }

type CreateBookingResult struct {
	BookingID       string `json:"booking_id"`
	Nights          int    `json:"nights"`
	Currency        string `json:"currency"`
	BasePrice       int64  `json:"base_price"`
	CleaningFee     int64  `json:"cleaning_fee"`
	SecurityDeposit int64  `json:"security_deposit"`
	ServiceFee      int64  `json:"service_fee"`
	DiscountAmount  int64  `json:"discount_amount"`
	Total           int64  `json:"total"`
}

type CreateBookingHandler struct {
	Outbox  outbox.Outbox
	Encoder outbox.EventEncoder
}

func (h *CreateBookingHandler) Handle(ctx context.Context, cmd CreateBookingCommand) (*CreateBookingResult, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	now := time.Now().UTC()

	dr, err := domainrange.New(cmd.CheckIn, cmd.CheckOut)
	if err != nil {
		return nil, err
	}

	property, err := unit.Properties().Financials(ctx, cmd.PropertyID)
	if err != nil {
		return nil, err
	}

	if overlap, err := unit.Calendar().HasOverlap(ctx, property.PropertyID, dr); err != nil {
		return nil, err
	} else if overlap {
		return nil, ErrDatesUnavailable
	}

	discount := decimal.Zero
	var promo *domainbooking.PromoCode
	if cmd.PromoCode != "" && !cmd.ExternalSource {
		promo, err = unit.Promos().ByCode(ctx, cmd.PromoCode)
		if err != nil {
			return nil, err
		}
		if err := promo.Validate(property.PropertyID, property.OwnerID, cmd.TenantID, now); err != nil {
			return nil, err
		}
		discount = promo.DiscountPercent
	}

	var price domainpricing.Quote
	if cmd.ExternalSource {
		price = domainpricing.ZeroQuote(property.Rates.Nightly.Currency, dr.Nights())
	} else {
		price, err = domainpricing.Compute(domainpricing.Input{
			Range:           dr,
			Rates:           property.Rates,
			DiscountPercent: discount,
			PromoCode:       cmd.PromoCode,
			Now:             now,
		})
		if err != nil {
			return nil, err
		}
	}

	b, err := domainbooking.NewBooking(domainbooking.CreateParams{
		ID:             domainbooking.BookingID(cmd.CommandID),
		PropertyID:     property.PropertyID,
		OwnerID:        property.OwnerID,
		TenantID:       cmd.TenantID,
		Range:          dr,
		Guests:         cmd.Guests,
		Capacity:       property.Capacity,
		Price:          price,
		Policy:         property.Policy,
		ExternalSource: cmd.ExternalSource,
		CreatedAt:      now,
	})
	if err != nil {
		return nil, err
	}

	if err := unit.Bookings().Save(ctx, b); err != nil {
		return nil, err
	}
	if promo != nil {
		promo.Consume()
		if err := unit.Promos().Save(ctx, promo); err != nil {
			return nil, err
		}
	}

	evs := b.PendingEvents()
	b.ClearEvents()
	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, evs); err != nil {
		return nil, err
	}

	return &CreateBookingResult{
		BookingID:       string(b.ID),
		Nights:          b.Price.Nights,
		Currency:        b.Price.Total.Currency,
		BasePrice:       b.Price.BasePrice.Amount,
		CleaningFee:     b.Price.CleaningFee.Amount,
		SecurityDeposit: b.Price.SecurityDeposit.Amount,
		ServiceFee:      b.Price.ServiceFee.Amount,
		DiscountAmount:  b.Price.DiscountAmount.Amount,
		Total:           b.Price.Total.Amount,
	}, nil
}

var _ commands.Handler[CreateBookingCommand, *CreateBookingResult] = (*CreateBookingHandler)(nil)
var _ middleware.IdempotentCommand = CreateBookingCommand{}
