package policies

import (
	"context"
	"errors"

	"stayhub/internal/domain/billing"
	"stayhub/internal/domain/cancellation"
	"stayhub/internal/domain/pricing"
)

var (
	ErrPropertyNotFound = errors.New("directory: property not found")
	ErrNoPayoutAccount  = errors.New("directory: owner has no payout account on file")
	ErrTenantNotFound   = errors.New("directory: tenant not found")
)

// PropertyFinancials is the slice of a listing the pricing and cancellation
// engines need; listing CRUD itself lives outside this module.
type PropertyFinancials struct {
	PropertyID string
	OwnerID    string
	Capacity   int
	Rates      pricing.Rates
	Policy     cancellation.PolicyTier
}

// Properties resolves the financial view of a listing.
type Properties interface {
	Financials(ctx context.Context, propertyID string) (PropertyFinancials, error)
}

// Subscriptions looks up an owner's active subscription tier for commission
// computation.
type Subscriptions interface {
	ActiveTier(ctx context.Context, ownerID string) (billing.SubscriptionTier, error)
}

// PayoutAccounts resolves where an owner gets paid.
type PayoutAccounts interface {
	Details(ctx context.Context, ownerID string) (RecipientDetails, error)
}

// TenantDirectory resolves the customer identity sent to the gateway with a
// charge.
type TenantDirectory interface {
	Customer(ctx context.Context, tenantID string) (Customer, error)
}

// Settings exposes runtime-tunable system configuration, at minimum the
// cancellation grace period in minutes.
type Settings interface {
	Get(ctx context.Context, key, def string) string
}

// Setting keys used by the financial core.
const (
	SettingGracePeriodMinutes = "CANCELLATION_GRACE_PERIOD_MINUTES"
)
