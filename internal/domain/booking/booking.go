package booking

import (
	"context"
	"errors"
	"time"

	"stayhub/internal/domain/cancellation"
	"stayhub/internal/domain/pricing"
	"stayhub/internal/domain/shared/daterange"
	"stayhub/internal/domain/shared/events"
)

var (
	ErrInvalidGuests     = errors.New("booking: guests count must be positive")
	ErrGuestsExceeded    = errors.New("booking: guests count exceeds property capacity")
	ErrInvalidState      = errors.New("booking: invalid state transition")
	ErrPaymentRequired   = errors.New("booking: confirmation requires a paid booking")
	ErrCheckOutNotPassed = errors.New("booking: stay has not ended yet")
	ErrCheckInPassed     = errors.New("booking: check-in date has already passed")
	ErrBookingNotFound   = errors.New("booking: not found")
)

type BookingID string

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentPaid       PaymentStatus = "paid"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentFailed     PaymentStatus = "failed"
)

// Booking is the financial aggregate for a stay. The price breakdown is
// computed once at creation; status and payment status only move through the
// transition methods below.
type Booking struct {
	ID         BookingID
	PropertyID string
	OwnerID    string
	// TenantID is empty for bookings imported from external channels.
	TenantID string
	Range    daterange.DateRange
	Guests   int
	Price    pricing.Quote
	Policy   cancellation.PolicyTier

	Status        Status
	PaymentStatus PaymentStatus

	// ExternalSource marks bookings synced from outside; their price fields
	// are pinned to zero.
	ExternalSource bool

	CancelledAt *time.Time
	CancelledBy string

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id BookingID) (*Booking, error)
	Save(ctx context.Context, booking *Booking) error
	ConfirmedPaidWithoutPayout(ctx context.Context) ([]*Booking, error)
}

type CreateParams struct {
	ID             BookingID
	PropertyID     string
	OwnerID        string
	TenantID       string
	Range          daterange.DateRange
	Guests         int
	Capacity       int
	Price          pricing.Quote
	Policy         cancellation.PolicyTier
	ExternalSource bool
	CreatedAt      time.Time
}

func NewBooking(params CreateParams) (*Booking, error) {
	if params.Guests <= 0 {
		return nil, ErrInvalidGuests
	}
	if params.Capacity > 0 && params.Guests > params.Capacity {
		return nil, ErrGuestsExceeded
	}
	if params.TenantID == "" && !params.ExternalSource {
		return nil, errors.New("booking: tenant id required")
	}
	if err := params.Price.Verify(); err != nil {
		return nil, err
	}
	if params.ExternalSource && !params.Price.Total.IsZero() {
		return nil, errors.New("booking: externally sourced bookings must carry zero prices")
	}
	if !params.ExternalSource && !params.Price.Total.IsPositive() {
		return nil, errors.New("booking: total must be positive")
	}
	now := params.CreatedAt.UTC()
	b := &Booking{
		ID:             params.ID,
		PropertyID:     params.PropertyID,
		OwnerID:        params.OwnerID,
		TenantID:       params.TenantID,
		Range:          params.Range,
		Guests:         params.Guests,
		Price:          params.Price,
		Policy:         params.Policy,
		Status:         StatusPending,
		PaymentStatus:  PaymentPending,
		ExternalSource: params.ExternalSource,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	b.Record(BookingCreated{
		BookingID:  b.ID,
		PropertyID: b.PropertyID,
		TenantID:   b.TenantID,
		Range:      b.Range,
		Guests:     b.Guests,
		Total:      b.Price.Total,
		At:         now,
	})
	return b, nil
}

// Confirm moves a pending booking to confirmed. The payment must have
// completed first; the caller blocks the availability calendar in the same
// transaction.
func (b *Booking) Confirm(now time.Time) error {
	if b.Status != StatusPending {
		return ErrInvalidState
	}
	if b.PaymentStatus != PaymentPaid {
		return ErrPaymentRequired
	}
	b.Status = StatusConfirmed
	b.UpdatedAt = now.UTC()
	b.Record(BookingConfirmed{BookingID: b.ID, PropertyID: b.PropertyID, Range: b.Range, Total: b.Price.Total, At: b.UpdatedAt})
	return nil
}

// Complete closes a confirmed booking once the stay has ended.
func (b *Booking) Complete(now time.Time) error {
	if b.Status != StatusConfirmed {
		return ErrInvalidState
	}
	if !b.Range.CheckOutPassed(now) {
		return ErrCheckOutNotPassed
	}
	b.Status = StatusCompleted
	b.UpdatedAt = now.UTC()
	b.Record(BookingCompleted{BookingID: b.ID, At: b.UpdatedAt})
	return nil
}

// Cancel transitions to cancelled, recording when and by whom. Refund math is
// the cancellation engine's job; this only guards the state machine.
func (b *Booking) Cancel(actorID, reason string, now time.Time) error {
	switch b.Status {
	case StatusPending, StatusConfirmed:
	default:
		return ErrInvalidState
	}
	if b.Range.CheckInPassed(now) {
		return ErrCheckInPassed
	}
	at := now.UTC()
	b.Status = StatusCancelled
	b.CancelledAt = &at
	b.CancelledBy = actorID
	b.UpdatedAt = at
	b.Record(BookingCancelled{BookingID: b.ID, PropertyID: b.PropertyID, CancelledBy: actorID, Reason: reason, At: at})
	return nil
}

// SetPaymentStatus projects a gateway outcome onto the booking. Moving away
// from refunded is not allowed.
func (b *Booking) SetPaymentStatus(status PaymentStatus, now time.Time) error {
	if b.PaymentStatus == status {
		return nil
	}
	if b.PaymentStatus == PaymentRefunded {
		return ErrInvalidState
	}
	b.PaymentStatus = status
	b.UpdatedAt = now.UTC()
	if status == PaymentPaid {
		b.Record(BookingPaid{BookingID: b.ID, Total: b.Price.Total, At: b.UpdatedAt})
	}
	return nil
}

// CancellableBy is true for the tenant, the owner, and anyone the surrounding
// system has already authorized (empty actor means administrative).
func (b *Booking) CancellableBy(actorID string) bool {
	if actorID == "" {
		return true
	}
	return actorID == b.TenantID || actorID == b.OwnerID
}
