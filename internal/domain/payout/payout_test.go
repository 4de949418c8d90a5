package payout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayhub/internal/domain/booking"
	"stayhub/internal/domain/shared/money"
)

var testNow = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func newScheduled(t *testing.T) *Payout {
	t.Helper()
	p, err := NewScheduled(ScheduleParams{
		ID:          "po_1",
		OwnerID:     "owner_1",
		Amount:      money.Must(94_000, "XAF"),
		BookingID:   "bk_1",
		ScheduledAt: testNow.AddDate(0, 0, 5),
		Now:         testNow,
	})
	require.NoError(t, err)
	return p
}

func TestNewScheduledRecordsEvent(t *testing.T) {
	p := newScheduled(t)
	assert.Equal(t, StatusScheduled, p.Status)
	assert.True(t, p.Covers("bk_1"))

	evs := p.PendingEvents()
	require.Len(t, evs, 1)
	assert.Equal(t, "payout.scheduled", evs[0].EventName())
}

func TestNewScheduledRejectsNegativeAmount(t *testing.T) {
	_, err := NewScheduled(ScheduleParams{
		ID: "po_1", OwnerID: "owner_1",
		Amount: money.Money{Amount: -1, Currency: "XAF"},
		Now:    testNow,
	})
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestLifecycleHappyPath(t *testing.T) {
	p := newScheduled(t)
	require.NoError(t, p.MarkReady(testNow))
	require.NoError(t, p.BeginProcessing(testNow))
	require.NoError(t, p.Complete("trf.1", testNow))

	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, "trf.1", p.ExternalRef)
	require.NotNil(t, p.ProcessedAt)
	assert.True(t, p.IsTerminal())
}

func TestClaimIsExclusiveToReady(t *testing.T) {
	p := newScheduled(t)
	assert.ErrorIs(t, p.BeginProcessing(testNow), ErrInvalidState)

	require.NoError(t, p.MarkReady(testNow))
	require.NoError(t, p.BeginProcessing(testNow))
	assert.ErrorIs(t, p.BeginProcessing(testNow), ErrInvalidState)
}

func TestFailKeepsReason(t *testing.T) {
	p := newScheduled(t)
	require.NoError(t, p.MarkReady(testNow))
	require.NoError(t, p.BeginProcessing(testNow))
	require.NoError(t, p.Fail("transfer rejected", testNow))

	assert.Equal(t, StatusFailed, p.Status)
	assert.Equal(t, "transfer rejected", p.FailureReason)
	assert.ErrorIs(t, p.MarkReady(testNow), ErrInvalidState)
}

func TestReturnToPendingAndRelease(t *testing.T) {
	p := newScheduled(t)
	require.NoError(t, p.MarkReady(testNow))
	require.NoError(t, p.BeginProcessing(testNow))
	require.NoError(t, p.ReturnToPending("owner has no payout account", testNow))

	assert.Equal(t, StatusPending, p.Status)
	assert.Contains(t, p.Notes, "owner has no payout account")

	require.NoError(t, p.MarkReady(testNow))
	assert.Equal(t, StatusReady, p.Status)
}

func TestCancelOnlyBeforeProcessing(t *testing.T) {
	p := newScheduled(t)
	require.NoError(t, p.Cancel("booking cancelled", testNow))
	assert.Equal(t, StatusCancelled, p.Status)

	p2 := newScheduled(t)
	require.NoError(t, p2.MarkReady(testNow))
	require.NoError(t, p2.BeginProcessing(testNow))
	assert.ErrorIs(t, p2.Cancel("too late", testNow), ErrInvalidState)
}

func TestRepriceRejectsNegative(t *testing.T) {
	p := newScheduled(t)
	require.NoError(t, p.Reprice(money.Must(10_000, "XAF"), "batch shrunk", testNow))
	assert.Equal(t, int64(10_000), p.Amount.Amount)

	err := p.Reprice(money.Money{Amount: -5, Currency: "XAF"}, "", testNow)
	assert.ErrorIs(t, err, ErrNegativeAmount)
	assert.Equal(t, int64(10_000), p.Amount.Amount)
}

func TestRemoveBooking(t *testing.T) {
	p := newScheduled(t)
	p.BookingIDs = append(p.BookingIDs, booking.BookingID("bk_2"))

	require.NoError(t, p.RemoveBooking("bk_1"))
	assert.False(t, p.Covers("bk_1"))
	assert.True(t, p.Covers("bk_2"))

	assert.ErrorIs(t, p.RemoveBooking("bk_1"), ErrBookingNotBatch)
}

func TestNewCompensationIsImmediatelyReady(t *testing.T) {
	p, err := NewCompensation("po_c", "owner_1", money.Must(43_650, "XAF"), "bk_1", testNow, testNow, testNow)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, p.Status)
	require.NotEmpty(t, p.Notes)

	_, err = NewCompensation("po_c", "owner_1", money.Zero("XAF"), "bk_1", testNow, testNow, testNow)
	assert.ErrorIs(t, err, ErrNegativeAmount)
}
