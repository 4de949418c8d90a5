package payout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/outbox"
	"stayhub/internal/app/uow"
	domainbilling "stayhub/internal/domain/billing"
	domainbooking "stayhub/internal/domain/booking"
	domainpayout "stayhub/internal/domain/payout"
)

const schedulePayoutKey = "payout.schedule"

var ErrBookingNotEligible = errors.New("payout: booking is not confirmed and paid")

// ScheduleForBooking creates the disbursement for a confirmed, paid booking:
// net amount is the booking total minus the owner-side commission, released
// after the hold delay past check-in. Already-covered bookings are skipped, so
// repeated calls cannot double-pay.
func ScheduleForBooking(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking, tier domainbilling.SubscriptionTier, now time.Time) (*domainpayout.Payout, error) {
	return ScheduleForBookingAt(ctx, unit, b, tier, time.Time{}, now)
}

// ScheduleForBookingAt is ScheduleForBooking with an admin-supplied release
// time; a zero at falls back to check-in plus the hold delay.
func ScheduleForBookingAt(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking, tier domainbilling.SubscriptionTier, at, now time.Time) (*domainpayout.Payout, error) {
	if b.ExternalSource || !b.Price.Total.IsPositive() {
		return nil, nil
	}
	live, err := unit.Payouts().LiveByBooking(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if len(live) > 0 {
		return nil, nil
	}

	commission, err := EnsureCommission(ctx, unit, b, tier, now)
	if err != nil {
		return nil, err
	}
	amount, err := b.Price.Total.Sub(commission.OwnerAmount)
	if err != nil {
		return nil, err
	}

	releaseAt := at
	if releaseAt.IsZero() {
		releaseAt = b.Range.CheckIn.Add(domainpayout.HoldDelay)
	}
	p, err := domainpayout.NewScheduled(domainpayout.ScheduleParams{
		ID:          uuid.NewString(),
		OwnerID:     b.OwnerID,
		Amount:      amount,
		BookingID:   b.ID,
		ScheduledAt: releaseAt,
		PeriodStart: b.Range.CheckIn,
		PeriodEnd:   b.Range.CheckOut,
		Now:         now,
	})
	if err != nil {
		return nil, err
	}
	if !p.ScheduledAt.After(now) {
		if err := p.MarkReady(now); err != nil {
			return nil, err
		}
	}
	if err := unit.Payouts().Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// EnsureCommission loads the commission for a booking, computing and storing
// it on first use.
func EnsureCommission(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking, tier domainbilling.SubscriptionTier, now time.Time) (*domainbilling.Commission, error) {
	commission, err := unit.Commissions().ByBooking(ctx, b.ID)
	if err == nil {
		return commission, nil
	}
	if !errors.Is(err, domainbilling.ErrCommissionNotFound) {
		return nil, err
	}
	commission, err = domainbilling.ComputeCommission(uuid.NewString(), b, tier, now)
	if err != nil {
		return nil, err
	}
	if err := unit.Commissions().Upsert(ctx, commission); err != nil {
		return nil, err
	}
	return commission, nil
}

type SchedulePayoutCommand struct {
	BookingID string
	// At overrides the computed release time, admin use only.
	At time.Time
}

func (c SchedulePayoutCommand) Key() string { return schedulePayoutKey }

type SchedulePayoutResult struct {
	PayoutID    string    `json:"payout_id"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// SchedulePayoutHandler is the administrative entry point for scheduling a
// single booking's payout; the webhook and confirmation flows call
// ScheduleForBooking directly.
type SchedulePayoutHandler struct {
	Subscriptions subscriptionsPort
	Outbox        outbox.Outbox
	Encoder       outbox.EventEncoder
}

type subscriptionsPort interface {
	ActiveTier(ctx context.Context, ownerID string) (domainbilling.SubscriptionTier, error)
}

func (h *SchedulePayoutHandler) Handle(ctx context.Context, cmd SchedulePayoutCommand) (*SchedulePayoutResult, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	now := time.Now().UTC()

	b, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		return nil, err
	}
	if b.Status != domainbooking.StatusConfirmed || b.PaymentStatus != domainbooking.PaymentPaid {
		return nil, ErrBookingNotEligible
	}

	tier := domainbilling.TierFree
	if h.Subscriptions != nil {
		if active, err := h.Subscriptions.ActiveTier(ctx, b.OwnerID); err == nil {
			tier = active
		}
	}

	p, err := ScheduleForBookingAt(ctx, unit, b, tier, cmd.At, now)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domainpayout.ErrAlreadyLive
	}

	evs := p.PendingEvents()
	p.ClearEvents()
	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, evs); err != nil {
		return nil, err
	}

	return &SchedulePayoutResult{
		PayoutID:    p.ID,
		Amount:      p.Amount.Amount,
		Currency:    p.Amount.Currency,
		Status:      string(p.Status),
		ScheduledAt: p.ScheduledAt,
	}, nil
}

var _ commands.Handler[SchedulePayoutCommand, *SchedulePayoutResult] = (*SchedulePayoutHandler)(nil)
