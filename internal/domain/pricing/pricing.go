package pricing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"stayhub/internal/domain/shared/daterange"
	"stayhub/internal/domain/shared/money"
)

var (
	ErrNoNights          = errors.New("pricing: stay must cover at least one night")
	ErrCheckInInPast     = errors.New("pricing: check-in date is in the past")
	ErrCurrencyUnset     = errors.New("pricing: currency must be defined")
	ErrNegativeComponent = errors.New("pricing: fee components cannot be negative")
	ErrTotalMismatch     = errors.New("pricing: total does not match components")
)

// ServiceFeeRate is the fixed tenant-side service fee charged on the
// discounted base price.
var ServiceFeeRate = decimal.NewFromFloat(0.07)

// Rates carries a property's tariff card. Weekly and Monthly are optional;
// a zero amount disables the tier.
type Rates struct {
	Nightly         money.Money
	Weekly          money.Money
	Monthly         money.Money
	CleaningFee     money.Money
	SecurityDeposit money.Money
}

// Quote is the itemized outcome of pricing a stay. Total always equals
// base + cleaning + deposit + service fee - discount.
type Quote struct {
	Nights          int
	BasePrice       money.Money
	CleaningFee     money.Money
	SecurityDeposit money.Money
	ServiceFee      money.Money
	DiscountAmount  money.Money
	Total           money.Money
	PromoCode       string
}

// Input describes a pricing request. DiscountPercent is the already-validated
// promo discount expressed as a fraction (0.10 for 10%); eligibility checks
// belong to the caller.
type Input struct {
	Range           daterange.DateRange
	Rates           Rates
	DiscountPercent decimal.Decimal
	PromoCode       string
	Now             time.Time
}

// Compute prices a stay with tiered month/week/night rates, an optional promo
// discount and the fixed service fee. All arithmetic is integer or decimal;
// repeated calls with the same input produce identical totals.
func Compute(in Input) (Quote, error) {
	if err := in.Range.Validate(); err != nil {
		return Quote{}, err
	}
	nights := in.Range.Nights()
	if nights <= 0 {
		return Quote{}, ErrNoNights
	}
	if in.Range.CheckInPassed(in.Now) {
		return Quote{}, ErrCheckInInPast
	}
	currency := in.Rates.Nightly.Currency
	if currency == "" {
		return Quote{}, ErrCurrencyUnset
	}
	if in.Rates.CleaningFee.IsNegative() || in.Rates.SecurityDeposit.IsNegative() {
		return Quote{}, ErrNegativeComponent
	}

	base := basePrice(nights, in.Rates)

	discount := money.Zero(currency)
	if in.DiscountPercent.IsPositive() {
		discount = base.ApplyRateFloor(in.DiscountPercent)
	}

	discounted, err := base.Sub(discount)
	if err != nil {
		return Quote{}, err
	}
	serviceFee := discounted.ApplyRateRound(ServiceFeeRate)

	q := Quote{
		Nights:          nights,
		BasePrice:       base,
		CleaningFee:     orZero(in.Rates.CleaningFee, currency),
		SecurityDeposit: orZero(in.Rates.SecurityDeposit, currency),
		ServiceFee:      serviceFee,
		DiscountAmount:  discount,
		PromoCode:       in.PromoCode,
	}
	if err := q.RecalculateTotal(); err != nil {
		return Quote{}, err
	}
	return q, nil
}

// basePrice consumes nights by the largest available tier first: whole months
// on the monthly rate, then whole weeks on the weekly rate, then nightly.
func basePrice(nights int, rates Rates) money.Money {
	currency := rates.Nightly.Currency
	total := money.Zero(currency)
	remaining := int64(nights)

	if rates.Monthly.IsPositive() && remaining >= 30 {
		months := remaining / 30
		total, _ = total.Add(rates.Monthly.Multiply(months))
		remaining %= 30
	}
	if rates.Weekly.IsPositive() && remaining >= 7 {
		weeks := remaining / 7
		total, _ = total.Add(rates.Weekly.Multiply(weeks))
		remaining %= 7
	}
	if remaining > 0 {
		total, _ = total.Add(rates.Nightly.Multiply(remaining))
	}
	return total
}

// RecalculateTotal recomputes Total from the components, enforcing the pricing
// invariant. The total is computed once at booking creation and verified, never
// silently replaced, afterwards.
func (q *Quote) RecalculateTotal() error {
	if q.BasePrice.Currency == "" {
		return ErrCurrencyUnset
	}
	if q.CleaningFee.IsNegative() || q.SecurityDeposit.IsNegative() || q.ServiceFee.IsNegative() || q.DiscountAmount.IsNegative() {
		return ErrNegativeComponent
	}
	total := q.BasePrice
	var err error
	for _, add := range []money.Money{q.CleaningFee, q.SecurityDeposit, q.ServiceFee} {
		total, err = total.Add(add)
		if err != nil {
			return err
		}
	}
	total, err = total.Sub(q.DiscountAmount)
	if err != nil {
		return err
	}
	q.Total = total
	return nil
}

// Verify checks the stored total against the components without mutating the quote.
func (q Quote) Verify() error {
	clone := q
	if err := clone.RecalculateTotal(); err != nil {
		return err
	}
	if clone.Total != q.Total {
		return ErrTotalMismatch
	}
	return nil
}

// ZeroQuote is the pinned all-zero price carried by externally sourced bookings.
func ZeroQuote(currency string, nights int) Quote {
	zero := money.Zero(currency)
	return Quote{
		Nights:          nights,
		BasePrice:       zero,
		CleaningFee:     zero,
		SecurityDeposit: zero,
		ServiceFee:      zero,
		DiscountAmount:  zero,
		Total:           zero,
	}
}

func orZero(m money.Money, currency string) money.Money {
	if m.Currency == "" {
		return money.Zero(currency)
	}
	return m
}
