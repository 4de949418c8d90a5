package billing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"stayhub/internal/domain/booking"
	"stayhub/internal/domain/shared/money"
)

var ErrCommissionNotFound = errors.New("billing: commission not found")

// SubscriptionTier is the owner's active subscription level; it drives the
// owner-side commission rate.
type SubscriptionTier string

const (
	TierFree      SubscriptionTier = "free"
	TierMonthly   SubscriptionTier = "monthly"
	TierQuarterly SubscriptionTier = "quarterly"
	TierYearly    SubscriptionTier = "yearly"
)

var ownerRates = map[SubscriptionTier]decimal.Decimal{
	TierFree:      decimal.NewFromFloat(0.03),
	TierMonthly:   decimal.NewFromFloat(0.02),
	TierQuarterly: decimal.NewFromFloat(0.015),
	TierYearly:    decimal.NewFromFloat(0.01),
}

// TenantRate mirrors the service fee already charged to the tenant at pricing
// time.
var TenantRate = decimal.NewFromFloat(0.07)

// OwnerRateFor resolves the owner commission rate for a tier, defaulting to
// the free tier for anything unknown.
func OwnerRateFor(tier SubscriptionTier) decimal.Decimal {
	if rate, ok := ownerRates[tier]; ok {
		return rate
	}
	return ownerRates[TierFree]
}

// Commission is the platform's cut for one booking, one-to-one with the
// booking and computed lazily the first time any consumer needs it.
type Commission struct {
	ID          string
	BookingID   booking.BookingID
	OwnerAmount money.Money
	// TenantAmount equals the booking's service fee.
	TenantAmount money.Money
	TotalAmount  money.Money
	OwnerRate    decimal.Decimal
	TenantRate   decimal.Decimal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CommissionRepository interface {
	ByBooking(ctx context.Context, id booking.BookingID) (*Commission, error)
	// Upsert persists keyed by booking id; recomputation overwrites in place.
	Upsert(ctx context.Context, commission *Commission) error
}

// ComputeCommission derives the commission split from the booking's price and
// the owner's tier. Same inputs always produce the same outputs, so upserting
// the result is idempotent.
func ComputeCommission(id string, b *booking.Booking, tier SubscriptionTier, now time.Time) (*Commission, error) {
	ownerRate := OwnerRateFor(tier)
	ownerAmount := b.Price.BasePrice.ApplyRateRound(ownerRate)
	tenantAmount := b.Price.ServiceFee
	total, err := ownerAmount.Add(tenantAmount)
	if err != nil {
		return nil, err
	}
	ts := now.UTC()
	return &Commission{
		ID:           id,
		BookingID:    b.ID,
		OwnerAmount:  ownerAmount,
		TenantAmount: tenantAmount,
		TotalAmount:  total,
		OwnerRate:    ownerRate,
		TenantRate:   TenantRate,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}, nil
}
