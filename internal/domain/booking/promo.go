package booking

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrPromoNotFound  = errors.New("booking: promo code not found")
	ErrPromoInactive  = errors.New("booking: promo code is no longer active")
	ErrPromoExpired   = errors.New("booking: promo code has expired")
	ErrPromoWrongUser = errors.New("booking: promo code is not valid for this tenant")
)

// PromoCode is a per-property discount voucher. A code is consumed exactly
// once per successful booking and reactivated if that booking is cancelled.
type PromoCode struct {
	Code       string
	PropertyID string
	// TenantID restricts the code to a single tenant when set.
	TenantID        string
	DiscountPercent decimal.Decimal
	Active          bool
	ExpiresAt       time.Time
	CreatedAt       time.Time
}

type PromoRepository interface {
	ByCode(ctx context.Context, code string) (*PromoCode, error)
	Save(ctx context.Context, promo *PromoCode) error
}

// Validate checks activity, expiry and tenant eligibility. The property owner
// can never redeem a code against their own property.
func (p *PromoCode) Validate(propertyID, ownerID, tenantID string, now time.Time) error {
	if !p.Active {
		return ErrPromoInactive
	}
	if !now.Before(p.ExpiresAt) {
		return ErrPromoExpired
	}
	if p.PropertyID != propertyID {
		return ErrPromoWrongUser
	}
	if tenantID == ownerID {
		return ErrPromoWrongUser
	}
	if p.TenantID != "" && p.TenantID != tenantID {
		return ErrPromoWrongUser
	}
	return nil
}

// Consume deactivates the code after a successful booking.
func (p *PromoCode) Consume() {
	p.Active = false
}

// Reactivate restores the code when the consuming booking is cancelled.
func (p *PromoCode) Reactivate() {
	p.Active = true
}
