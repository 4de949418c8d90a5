package cancellation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayhub/internal/domain/shared/daterange"
	"stayhub/internal/domain/shared/money"
)

func xaf(amount int64) money.Money {
	return money.Must(amount, "XAF")
}

func assessment(t *testing.T, tier PolicyTier, daysBefore int) Assessment {
	t.Helper()
	cancelAt := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	checkIn := cancelAt.AddDate(0, 0, daysBefore)
	dr, err := daterange.New(checkIn, checkIn.AddDate(0, 0, 10))
	require.NoError(t, err)
	return Assessment{
		Policy:      tier,
		Range:       dr,
		BasePrice:   xaf(90_000),
		CleaningFee: xaf(2_000),
		Paid:        true,
		BookedAt:    cancelAt.AddDate(0, 0, -3),
		CancelAt:    cancelAt,
		OwnerRate:   decimal.NewFromFloat(0.03),
	}
}

func TestAssessModeratePartialRefund(t *testing.T) {
	out, err := Assess(assessment(t, PolicyModerate, 3))
	require.NoError(t, err)

	// 50% of base + cleaning
	assert.Equal(t, int64(46_000), out.RefundAmount.Amount)
	assert.True(t, out.RefundPercent.Equal(decimal.NewFromFloat(0.5)))
	assert.Equal(t, 3, out.DaysBeforeCheckIn)
	assert.False(t, out.GracePeriodApplied)

	// owner keeps half the base price minus 3% commission
	assert.Equal(t, int64(45_000-1_350), out.OwnerCompensation.Amount)
}

func TestAssessModerateFullRefund(t *testing.T) {
	out, err := Assess(assessment(t, PolicyModerate, 5))
	require.NoError(t, err)
	assert.Equal(t, int64(92_000), out.RefundAmount.Amount)
	assert.True(t, out.OwnerCompensation.IsZero())
}

func TestAssessStrictLadder(t *testing.T) {
	cases := []struct {
		daysBefore int
		refund     int64
	}{
		{14, 92_000},
		{8, 46_000},
		{7, 46_000},
		{6, 0},
		{0, 0},
	}
	for _, tc := range cases {
		out, err := Assess(assessment(t, PolicyStrict, tc.daysBefore))
		require.NoError(t, err)
		assert.Equal(t, tc.refund, out.RefundAmount.Amount, "days before %d", tc.daysBefore)
	}
}

func TestAssessFlexible(t *testing.T) {
	out, err := Assess(assessment(t, PolicyFlexible, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(92_000), out.RefundAmount.Amount)

	out, err = Assess(assessment(t, PolicyFlexible, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(46_000), out.RefundAmount.Amount)
}

func TestAssessGracePeriodOverridesTier(t *testing.T) {
	in := assessment(t, PolicyStrict, 1)
	in.BookedAt = in.CancelAt.Add(-10 * time.Minute)
	out, err := Assess(in)
	require.NoError(t, err)

	assert.True(t, out.GracePeriodApplied)
	assert.Equal(t, int64(92_000), out.RefundAmount.Amount)
	assert.True(t, out.OwnerCompensation.IsZero())
}

func TestAssessGracePeriodConfigurable(t *testing.T) {
	in := assessment(t, PolicyStrict, 1)
	in.BookedAt = in.CancelAt.Add(-2 * time.Hour)
	in.GracePeriod = 3 * time.Hour
	out, err := Assess(in)
	require.NoError(t, err)
	assert.True(t, out.GracePeriodApplied)
}

func TestAssessUnpaidBookingRefundsNothing(t *testing.T) {
	in := assessment(t, PolicyFlexible, 10)
	in.Paid = false
	out, err := Assess(in)
	require.NoError(t, err)
	assert.True(t, out.RefundAmount.IsZero())
	assert.True(t, out.OwnerCompensation.IsZero())
	assert.True(t, out.RefundPercent.Equal(decimal.NewFromInt(1)))
}

func TestAssessUnknownPolicy(t *testing.T) {
	in := assessment(t, PolicyTier("premium"), 3)
	_, err := Assess(in)
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}
