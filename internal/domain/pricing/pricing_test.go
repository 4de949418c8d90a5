package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayhub/internal/domain/shared/daterange"
	"stayhub/internal/domain/shared/money"
)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func stay(t *testing.T, nights int) daterange.DateRange {
	t.Helper()
	checkIn := now.AddDate(0, 0, 7)
	dr, err := daterange.New(checkIn, checkIn.AddDate(0, 0, nights))
	require.NoError(t, err)
	return dr
}

func xaf(amount int64) money.Money {
	return money.Must(amount, "XAF")
}

func TestComputeTieredRates(t *testing.T) {
	rates := Rates{
		Nightly:         xaf(10_000),
		Weekly:          xaf(60_000),
		CleaningFee:     xaf(2_000),
		SecurityDeposit: xaf(5_000),
	}

	q, err := Compute(Input{Range: stay(t, 10), Rates: rates, Now: now})
	require.NoError(t, err)

	// one week at the weekly rate plus three nights
	assert.Equal(t, 10, q.Nights)
	assert.Equal(t, int64(90_000), q.BasePrice.Amount)
	assert.Equal(t, int64(6_300), q.ServiceFee.Amount)
	assert.Equal(t, int64(103_300), q.Total.Amount)
	assert.NoError(t, q.Verify())
}

func TestComputeMonthlyTier(t *testing.T) {
	rates := Rates{
		Nightly: xaf(10_000),
		Weekly:  xaf(60_000),
		Monthly: xaf(200_000),
	}

	q, err := Compute(Input{Range: stay(t, 68), Rates: rates, Now: now})
	require.NoError(t, err)

	// two months, one week, one night
	assert.Equal(t, int64(2*200_000+60_000+10_000), q.BasePrice.Amount)
}

func TestComputeNightlyOnlyWhenTiersDisabled(t *testing.T) {
	q, err := Compute(Input{Range: stay(t, 10), Rates: Rates{Nightly: xaf(10_000)}, Now: now})
	require.NoError(t, err)
	assert.Equal(t, int64(100_000), q.BasePrice.Amount)
}

func TestComputePromoDiscount(t *testing.T) {
	rates := Rates{Nightly: xaf(10_000), CleaningFee: xaf(2_000)}
	q, err := Compute(Input{
		Range:           stay(t, 5),
		Rates:           rates,
		DiscountPercent: decimal.NewFromFloat(0.10),
		PromoCode:       "WELCOME10",
		Now:             now,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(50_000), q.BasePrice.Amount)
	assert.Equal(t, int64(5_000), q.DiscountAmount.Amount)
	// service fee applies to the discounted base
	assert.Equal(t, int64(3_150), q.ServiceFee.Amount)
	assert.Equal(t, int64(50_000+2_000+3_150-5_000), q.Total.Amount)
	assert.Equal(t, "WELCOME10", q.PromoCode)
}

func TestComputeIsDeterministic(t *testing.T) {
	in := Input{
		Range:           stay(t, 12),
		Rates:           Rates{Nightly: xaf(9_990), Weekly: xaf(59_990), CleaningFee: xaf(1_500)},
		DiscountPercent: decimal.NewFromFloat(0.07),
		Now:             now,
	}
	first, err := Compute(in)
	require.NoError(t, err)
	for range 10 {
		q, err := Compute(in)
		require.NoError(t, err)
		assert.Equal(t, first, q)
	}
}

func TestComputeRejectsPastCheckIn(t *testing.T) {
	checkIn := now.AddDate(0, 0, -2)
	dr, err := daterange.New(checkIn, checkIn.AddDate(0, 0, 3))
	require.NoError(t, err)

	_, err = Compute(Input{Range: dr, Rates: Rates{Nightly: xaf(10_000)}, Now: now})
	assert.ErrorIs(t, err, ErrCheckInInPast)
}

func TestComputeRejectsInvalidRange(t *testing.T) {
	_, err := Compute(Input{Range: daterange.DateRange{CheckIn: now, CheckOut: now}, Rates: Rates{Nightly: xaf(10_000)}, Now: now})
	assert.ErrorIs(t, err, daterange.ErrInvalidRange)
}

func TestVerifyDetectsTampering(t *testing.T) {
	q, err := Compute(Input{Range: stay(t, 3), Rates: Rates{Nightly: xaf(10_000)}, Now: now})
	require.NoError(t, err)

	q.Total = xaf(1)
	assert.ErrorIs(t, q.Verify(), ErrTotalMismatch)
}

func TestZeroQuote(t *testing.T) {
	q := ZeroQuote("XAF", 4)
	assert.Equal(t, 4, q.Nights)
	assert.True(t, q.Total.IsZero())
	assert.NoError(t, q.Verify())
}
