package booking

import (
	"context"
	"errors"
	"time"

	handlersupport "stayhub/internal/app/handlers/support"
	"stayhub/internal/app/queries"
	"stayhub/internal/app/uow"
	domainbilling "stayhub/internal/domain/billing"
	domainbooking "stayhub/internal/domain/booking"
)

const getBookingKey = "booking.get"

type GetBookingQuery struct {
	BookingID string
}

func (q GetBookingQuery) Key() string { return getBookingKey }

type PriceBreakdown struct {
	Nights          int    `json:"nights"`
	Currency        string `json:"currency"`
	BasePrice       int64  `json:"base_price"`
	CleaningFee     int64  `json:"cleaning_fee"`
	SecurityDeposit int64  `json:"security_deposit"`
	ServiceFee      int64  `json:"service_fee"`
	DiscountAmount  int64  `json:"discount_amount"`
	Total           int64  `json:"total"`
	PromoCode       string `json:"promo_code,omitempty"`
}

type CommissionView struct {
	OwnerAmount  int64  `json:"owner_amount"`
	TenantAmount int64  `json:"tenant_amount"`
	OwnerRate    string `json:"owner_rate"`
}

type PayoutView struct {
	PayoutID    string    `json:"payout_id"`
	Status      string    `json:"status"`
	Amount      int64     `json:"amount"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

type BookingView struct {
	BookingID     string          `json:"booking_id"`
	PropertyID    string          `json:"property_id"`
	TenantID      string          `json:"tenant_id,omitempty"`
	OwnerID       string          `json:"owner_id"`
	CheckIn       time.Time       `json:"check_in"`
	CheckOut      time.Time       `json:"check_out"`
	Guests        int             `json:"guests"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	Policy        string          `json:"cancellation_policy"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	CancelledBy   string          `json:"cancelled_by,omitempty"`
	Price         PriceBreakdown  `json:"price"`
	Commission    *CommissionView `json:"commission,omitempty"`
	Payouts       []PayoutView    `json:"payouts,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// GetBookingHandler assembles the financial view of one booking: status,
// itemized price, commission split and any payouts referencing it.
type GetBookingHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *GetBookingHandler) Handle(ctx context.Context, q GetBookingQuery) (BookingView, error) {
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return BookingView{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	b, err := unit.Bookings().ByID(execCtx, domainbooking.BookingID(q.BookingID))
	if err != nil {
		return BookingView{}, err
	}

	view := BookingView{
		BookingID:     string(b.ID),
		PropertyID:    b.PropertyID,
		TenantID:      b.TenantID,
		OwnerID:       b.OwnerID,
		CheckIn:       b.Range.CheckIn,
		CheckOut:      b.Range.CheckOut,
		Guests:        b.Guests,
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		Policy:        string(b.Policy),
		CancelledAt:   b.CancelledAt,
		CancelledBy:   b.CancelledBy,
		CreatedAt:     b.CreatedAt,
		Price: PriceBreakdown{
			Nights:          b.Price.Nights,
			Currency:        b.Price.Total.Currency,
			BasePrice:       b.Price.BasePrice.Amount,
			CleaningFee:     b.Price.CleaningFee.Amount,
			SecurityDeposit: b.Price.SecurityDeposit.Amount,
			ServiceFee:      b.Price.ServiceFee.Amount,
			DiscountAmount:  b.Price.DiscountAmount.Amount,
			Total:           b.Price.Total.Amount,
			PromoCode:       b.Price.PromoCode,
		},
	}

	if commission, err := unit.Commissions().ByBooking(execCtx, b.ID); err == nil {
		view.Commission = &CommissionView{
			OwnerAmount:  commission.OwnerAmount.Amount,
			TenantAmount: commission.TenantAmount.Amount,
			OwnerRate:    commission.OwnerRate.String(),
		}
	} else if !errors.Is(err, domainbilling.ErrCommissionNotFound) {
		return BookingView{}, err
	}

	if payouts, err := unit.Payouts().LiveByBooking(execCtx, b.ID); err == nil {
		for _, p := range payouts {
			view.Payouts = append(view.Payouts, PayoutView{
				PayoutID:    p.ID,
				Status:      string(p.Status),
				Amount:      p.Amount.Amount,
				ScheduledAt: p.ScheduledAt,
			})
		}
	} else {
		return BookingView{}, err
	}

	return view, nil
}

var _ queries.Handler[GetBookingQuery, BookingView] = (*GetBookingHandler)(nil)
