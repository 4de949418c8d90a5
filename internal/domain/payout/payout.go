package payout

import (
	"context"
	"errors"
	"time"

	"stayhub/internal/domain/booking"
	"stayhub/internal/domain/shared/events"
	"stayhub/internal/domain/shared/money"
)

var (
	ErrPayoutNotFound  = errors.New("payout: not found")
	ErrInvalidState    = errors.New("payout: invalid state transition")
	ErrNegativeAmount  = errors.New("payout: recomputed amount is negative")
	ErrBookingNotBatch = errors.New("payout: booking is not part of this payout")
	ErrAlreadyLive     = errors.New("payout: a live payout already references this booking")
)

// HoldDelay is the anti-escrow period between check-in and disbursement.
const HoldDelay = 24 * time.Hour

type Status string

const (
	StatusPending    Status = "pending"
	StatusScheduled  Status = "scheduled"
	StatusReady      Status = "ready"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Payout is a disbursement of net proceeds to an owner. It may batch several
// bookings; at most one non-terminal payout may reference a given booking.
type Payout struct {
	ID      string
	OwnerID string
	Amount  money.Money
	Status  Status
	// BookingIDs lists the bookings whose proceeds this payout carries.
	BookingIDs  []booking.BookingID
	ScheduledAt time.Time
	PeriodStart time.Time
	PeriodEnd   time.Time
	ExternalRef string
	// FailureReason is kept verbatim for manual intervention; failed payouts
	// never retry on their own.
	FailureReason string
	Notes         []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ProcessedAt   *time.Time
	Version       int64
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id string) (*Payout, error)
	// Save persists with optimistic concurrency on Version; a stale write
	// must fail so racing workers cannot advance the same payout twice.
	Save(ctx context.Context, p *Payout) error
	// LiveByBooking returns non-terminal payouts referencing the booking.
	LiveByBooking(ctx context.Context, id booking.BookingID) ([]*Payout, error)
	DueScheduled(ctx context.Context, now time.Time) ([]*Payout, error)
	ListReady(ctx context.Context) ([]*Payout, error)
}

type ScheduleParams struct {
	ID          string
	OwnerID     string
	Amount      money.Money
	BookingID   booking.BookingID
	ScheduledAt time.Time
	PeriodStart time.Time
	PeriodEnd   time.Time
	Now         time.Time
}

// NewScheduled creates a payout waiting for its anti-escrow delay to elapse.
func NewScheduled(params ScheduleParams) (*Payout, error) {
	if params.Amount.IsNegative() {
		return nil, ErrNegativeAmount
	}
	now := params.Now.UTC()
	p := &Payout{
		ID:          params.ID,
		OwnerID:     params.OwnerID,
		Amount:      params.Amount,
		Status:      StatusScheduled,
		BookingIDs:  []booking.BookingID{params.BookingID},
		ScheduledAt: params.ScheduledAt.UTC(),
		PeriodStart: params.PeriodStart,
		PeriodEnd:   params.PeriodEnd,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	p.Record(PayoutScheduled{PayoutID: p.ID, OwnerID: p.OwnerID, Amount: p.Amount, ScheduledAt: p.ScheduledAt, At: now})
	return p, nil
}

// NewCompensation creates an immediately-ready payout owed to an owner after a
// cancellation outside the full-refund window.
func NewCompensation(id, ownerID string, amount money.Money, bookingID booking.BookingID, periodStart, periodEnd time.Time, now time.Time) (*Payout, error) {
	if !amount.IsPositive() {
		return nil, ErrNegativeAmount
	}
	ts := now.UTC()
	p := &Payout{
		ID:          id,
		OwnerID:     ownerID,
		Amount:      amount,
		Status:      StatusReady,
		BookingIDs:  []booking.BookingID{bookingID},
		ScheduledAt: ts,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	p.AddNote("compensation for cancelled booking " + string(bookingID))
	p.Record(PayoutScheduled{PayoutID: p.ID, OwnerID: p.OwnerID, Amount: p.Amount, ScheduledAt: p.ScheduledAt, At: ts})
	return p, nil
}

func (p *Payout) IsTerminal() bool {
	switch p.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// MarkReady releases a payout for execution once its scheduled time elapsed.
func (p *Payout) MarkReady(now time.Time) error {
	if p.Status != StatusScheduled && p.Status != StatusPending {
		return ErrInvalidState
	}
	p.Status = StatusReady
	p.UpdatedAt = now.UTC()
	return nil
}

// BeginProcessing claims the payout for a disbursement attempt.
func (p *Payout) BeginProcessing(now time.Time) error {
	if p.Status != StatusReady {
		return ErrInvalidState
	}
	p.Status = StatusProcessing
	p.UpdatedAt = now.UTC()
	return nil
}

// ReturnToPending backs off a processing payout that cannot be executed yet,
// e.g. the owner has no payout account on file.
func (p *Payout) ReturnToPending(note string, now time.Time) error {
	if p.Status != StatusProcessing {
		return ErrInvalidState
	}
	p.Status = StatusPending
	p.AddNote(note)
	p.UpdatedAt = now.UTC()
	return nil
}

func (p *Payout) Complete(externalRef string, now time.Time) error {
	if p.Status != StatusProcessing {
		return ErrInvalidState
	}
	ts := now.UTC()
	p.Status = StatusCompleted
	p.ExternalRef = externalRef
	p.ProcessedAt = &ts
	p.UpdatedAt = ts
	p.Record(PayoutCompleted{PayoutID: p.ID, OwnerID: p.OwnerID, Amount: p.Amount, ExternalRef: externalRef, At: ts})
	return nil
}

func (p *Payout) Fail(reason string, now time.Time) error {
	if p.Status != StatusProcessing {
		return ErrInvalidState
	}
	p.Status = StatusFailed
	p.FailureReason = reason
	p.UpdatedAt = now.UTC()
	p.Record(PayoutFailed{PayoutID: p.ID, OwnerID: p.OwnerID, Reason: reason, At: p.UpdatedAt})
	return nil
}

// Cancel is reachable from pending, scheduled and ready.
func (p *Payout) Cancel(reason string, now time.Time) error {
	switch p.Status {
	case StatusPending, StatusScheduled, StatusReady:
	default:
		return ErrInvalidState
	}
	p.Status = StatusCancelled
	p.AddNote(reason)
	p.UpdatedAt = now.UTC()
	p.Record(PayoutCancelled{PayoutID: p.ID, OwnerID: p.OwnerID, Reason: reason, At: p.UpdatedAt})
	return nil
}

// Reprice replaces the amount of an in-flight payout, used when a cancellation
// converts proceeds to compensation or shrinks a batch. Negative amounts are
// rejected, never clamped.
func (p *Payout) Reprice(amount money.Money, note string, now time.Time) error {
	switch p.Status {
	case StatusPending, StatusScheduled, StatusReady:
	default:
		return ErrInvalidState
	}
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	p.Amount = amount
	p.AddNote(note)
	p.UpdatedAt = now.UTC()
	return nil
}

// RemoveBooking drops a cancelled booking from a batched payout.
func (p *Payout) RemoveBooking(id booking.BookingID) error {
	for i, existing := range p.BookingIDs {
		if existing == id {
			p.BookingIDs = append(p.BookingIDs[:i], p.BookingIDs[i+1:]...)
			return nil
		}
	}
	return ErrBookingNotBatch
}

// Covers reports whether the payout references the booking.
func (p *Payout) Covers(id booking.BookingID) bool {
	for _, existing := range p.BookingIDs {
		if existing == id {
			return true
		}
	}
	return false
}

func (p *Payout) AddNote(note string) {
	if note == "" {
		return
	}
	p.Notes = append(p.Notes, note)
}
