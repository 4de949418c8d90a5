package cancellation

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"stayhub/internal/domain/shared/daterange"
	"stayhub/internal/domain/shared/money"
)

var ErrUnknownPolicy = errors.New("cancellation: unknown policy tier")

// DefaultGracePeriod applies when no grace period is configured.
const DefaultGracePeriod = 30 * time.Minute

// PolicyTier keys the per-property refund schedule.
type PolicyTier string

const (
	PolicyFlexible PolicyTier = "flexible"
	PolicyModerate PolicyTier = "moderate"
	PolicyStrict   PolicyTier = "strict"
)

// schedule expresses a refund ladder in whole days before check-in.
type schedule struct {
	fullRefundDays    int
	partialRefundDays int
	partialRate       decimal.Decimal
}

var half = decimal.NewFromFloat(0.5)

var schedules = map[PolicyTier]schedule{
	PolicyFlexible: {fullRefundDays: 1, partialRefundDays: 0, partialRate: half},
	PolicyModerate: {fullRefundDays: 5, partialRefundDays: 0, partialRate: half},
	PolicyStrict:   {fullRefundDays: 14, partialRefundDays: 7, partialRate: half},
}

// Valid reports whether the tier is a known policy.
func (t PolicyTier) Valid() bool {
	_, ok := schedules[t]
	return ok
}

// Assessment carries everything the refund computation needs; the engine holds
// no state of its own.
type Assessment struct {
	Policy      PolicyTier
	Range       daterange.DateRange
	BasePrice   money.Money
	CleaningFee money.Money
	// Paid is true when the tenant's charge completed. Unpaid bookings get a
	// zero refund and owe no compensation.
	Paid        bool
	BookedAt    time.Time
	CancelAt    time.Time
	GracePeriod time.Duration
	// OwnerRate is the owner-side commission rate deducted from compensation.
	OwnerRate decimal.Decimal
}

// Outcome is the result of assessing a cancellation.
type Outcome struct {
	RefundPercent      decimal.Decimal
	RefundAmount       money.Money
	OwnerCompensation  money.Money
	GracePeriodApplied bool
	DaysBeforeCheckIn  int
}

var one = decimal.NewFromInt(1)

// Assess computes the refund and owner compensation for cancelling at
// CancelAt. The refundable base is base price plus cleaning fee; service fee
// and security deposit are never refunded. Within the grace period after
// booking the refund is always 100% regardless of tier.
func Assess(in Assessment) (Outcome, error) {
	grace := in.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	withinGrace := !in.BookedAt.IsZero() && !in.CancelAt.After(in.BookedAt.Add(grace))

	days := in.Range.DaysUntilCheckIn(in.CancelAt)

	var percent decimal.Decimal
	switch {
	case withinGrace:
		percent = one
	default:
		sched, ok := schedules[in.Policy]
		if !ok {
			return Outcome{}, ErrUnknownPolicy
		}
		switch {
		case days >= sched.fullRefundDays:
			percent = one
		case days >= sched.partialRefundDays:
			percent = sched.partialRate
		default:
			percent = decimal.Zero
		}
	}

	out := Outcome{
		RefundPercent:      percent,
		RefundAmount:       money.Zero(in.BasePrice.Currency),
		OwnerCompensation:  money.Zero(in.BasePrice.Currency),
		GracePeriodApplied: withinGrace,
		DaysBeforeCheckIn:  days,
	}

	if in.Paid && percent.IsPositive() {
		refundable, err := in.BasePrice.Add(in.CleaningFee)
		if err != nil {
			return Outcome{}, err
		}
		out.RefundAmount = refundable.ApplyRateFloor(percent)
	}

	if in.Paid && percent.LessThan(one) {
		// The owner keeps the non-refunded share of the base price, net of
		// the platform's owner-side commission.
		kept := in.BasePrice.ApplyRateFloor(one.Sub(percent))
		commission := kept.ApplyRateFloor(in.OwnerRate)
		comp, err := kept.Sub(commission)
		if err != nil {
			return Outcome{}, err
		}
		out.OwnerCompensation = comp
	}

	return out, nil
}
