package payout_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayhub/internal/app/commands"
	payoutapp "stayhub/internal/app/handlers/payout"
	"stayhub/internal/app/middleware"
	"stayhub/internal/app/outbox"
	"stayhub/internal/app/policies"
	domainbilling "stayhub/internal/domain/billing"
	domainbooking "stayhub/internal/domain/booking"
	domaincancel "stayhub/internal/domain/cancellation"
	domainpayout "stayhub/internal/domain/payout"
	"stayhub/internal/domain/pricing"
	"stayhub/internal/domain/shared/daterange"
	"stayhub/internal/domain/shared/money"
	"stayhub/internal/infra/storage/memory"
)

type env struct {
	bookings      *memory.BookingRepository
	payouts       *memory.PayoutRepository
	commissions   *memory.CommissionRepository
	transactions  *memory.TransactionRepository
	subscriptions *memory.SubscriptionDirectory
	accounts      *memory.PayoutAccountDirectory
	gateway       *memory.Gateway
	outbox        *memory.Outbox
	factory       memory.Factory
	bus           commands.Bus
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		bookings:      memory.NewBookingRepository(),
		payouts:       memory.NewPayoutRepository(),
		commissions:   memory.NewCommissionRepository(),
		transactions:  memory.NewTransactionRepository(),
		subscriptions: memory.NewSubscriptionDirectory(),
		accounts:      memory.NewPayoutAccountDirectory(),
		gateway:       memory.NewGateway(),
		outbox:        memory.NewOutbox(),
	}
	factory := memory.Factory{
		BookingRepo:     e.bookings,
		PromoRepo:       memory.NewPromoRepository(),
		PayoutRepo:      e.payouts,
		CommissionRepo:  e.commissions,
		TransactionRepo: e.transactions,
		PropertiesDir:   memory.NewPropertyDirectory(),
		CalendarSvc:     memory.NewCalendar(),
	}
	e.factory = factory
	encoder := outbox.JSONEventEncoder{}

	bus := commands.NewInMemoryBus()
	commands.RegisterHandler(bus, payoutapp.SchedulePayoutCommand{}.Key(), &payoutapp.SchedulePayoutHandler{
		Subscriptions: e.subscriptions, Outbox: e.outbox, Encoder: encoder,
	})
	commands.RegisterHandler(bus, payoutapp.SweepMissingPayoutsCommand{}.Key(), &payoutapp.SweepMissingPayoutsHandler{
		Subscriptions: e.subscriptions, Outbox: e.outbox, Encoder: encoder,
	})
	commands.RegisterHandler(bus, payoutapp.AdvanceScheduledCommand{}.Key(), &payoutapp.AdvanceScheduledHandler{})
	commands.RegisterHandler(bus, payoutapp.ExecuteReadyCommand{}.Key(), &payoutapp.ExecuteReadyHandler{
		UoWFactory: factory, Gateway: e.gateway, Accounts: e.accounts,
		Outbox: e.outbox, Encoder: encoder,
	})
	commands.RegisterHandler(bus, payoutapp.CancelPayoutCommand{}.Key(), &payoutapp.CancelPayoutHandler{
		Outbox: e.outbox, Encoder: encoder,
	})

	e.bus = middleware.ChainCommands(
		bus,
		middleware.Idempotency(memory.NewIdempotencyStore(), nil),
		middleware.Transaction(factory, nil),
		middleware.OutboxFlush(e.outbox),
	)
	e.accounts.Put(policies.RecipientDetails{
		OwnerID: "owner_1", Channel: "cm.mobile", Number: "+237699999999", Name: "Owner One", Country: "CM",
	})
	return e
}

// confirmedBooking stores a confirmed, paid booking ready for payout
// scheduling.
func (e *env) confirmedBooking(t *testing.T, id string, daysAhead int) *domainbooking.Booking {
	t.Helper()
	now := time.Now().UTC()
	checkIn := now.AddDate(0, 0, daysAhead)
	dr, err := daterange.New(checkIn, checkIn.AddDate(0, 0, 10))
	require.NoError(t, err)
	q, err := pricing.Compute(pricing.Input{
		Range: dr,
		Rates: pricing.Rates{
			Nightly:         money.Must(10_000, "XAF"),
			Weekly:          money.Must(60_000, "XAF"),
			CleaningFee:     money.Must(2_000, "XAF"),
			SecurityDeposit: money.Must(5_000, "XAF"),
		},
		Now: now,
	})
	require.NoError(t, err)
	b, err := domainbooking.NewBooking(domainbooking.CreateParams{
		ID: domainbooking.BookingID(id), PropertyID: "prop_1", OwnerID: "owner_1", TenantID: "tenant_1",
		Range: dr, Guests: 2, Price: q, Policy: domaincancel.PolicyModerate, CreatedAt: now,
	})
	require.NoError(t, err)
	require.NoError(t, b.SetPaymentStatus(domainbooking.PaymentPaid, now))
	require.NoError(t, b.Confirm(now))
	b.ClearEvents()
	require.NoError(t, e.bookings.Save(context.Background(), b))
	return b
}

func (e *env) schedule(t *testing.T, bookingID string) *payoutapp.SchedulePayoutResult {
	t.Helper()
	res, err := commands.Dispatch[payoutapp.SchedulePayoutCommand, *payoutapp.SchedulePayoutResult](context.Background(), e.bus, payoutapp.SchedulePayoutCommand{
		BookingID: bookingID,
	})
	require.NoError(t, err)
	return res
}

func TestSchedulePayoutComputesNetAmount(t *testing.T) {
	e := newEnv(t)
	b := e.confirmedBooking(t, "bk_1", 5)

	res := e.schedule(t, "bk_1")
	// total minus the free-tier 3% owner commission on the base price
	assert.Equal(t, int64(103_300-2_700), res.Amount)
	assert.Equal(t, string(domainpayout.StatusScheduled), res.Status)
	assert.Equal(t, b.Range.CheckIn.Add(domainpayout.HoldDelay), res.ScheduledAt)
}

func TestSchedulePayoutRespectsSubscriptionTier(t *testing.T) {
	e := newEnv(t)
	e.subscriptions.Put("owner_1", domainbilling.TierYearly)
	e.confirmedBooking(t, "bk_1", 5)

	res := e.schedule(t, "bk_1")
	// 1% owner commission on the yearly tier
	assert.Equal(t, int64(103_300-900), res.Amount)
}

func TestSchedulePayoutHonorsExplicitReleaseTime(t *testing.T) {
	e := newEnv(t)
	e.confirmedBooking(t, "bk_1", 5)

	at := time.Now().UTC().Add(-time.Minute)
	res, err := commands.Dispatch[payoutapp.SchedulePayoutCommand, *payoutapp.SchedulePayoutResult](context.Background(), e.bus, payoutapp.SchedulePayoutCommand{
		BookingID: "bk_1",
		At:        at,
	})
	require.NoError(t, err)
	// a release time already in the past makes the payout ready right away
	assert.Equal(t, string(domainpayout.StatusReady), res.Status)
	assert.Equal(t, at, res.ScheduledAt)
}

func TestSchedulePayoutIsIdempotentPerBooking(t *testing.T) {
	e := newEnv(t)
	e.confirmedBooking(t, "bk_1", 5)
	e.schedule(t, "bk_1")

	_, err := commands.Dispatch[payoutapp.SchedulePayoutCommand, *payoutapp.SchedulePayoutResult](context.Background(), e.bus, payoutapp.SchedulePayoutCommand{
		BookingID: "bk_1",
	})
	assert.ErrorIs(t, err, domainpayout.ErrAlreadyLive)
}

func TestConcurrentScheduleCreatesSingleLivePayout(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := e.confirmedBooking(t, "bk_1", 5)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := commands.Dispatch[payoutapp.SchedulePayoutCommand, *payoutapp.SchedulePayoutResult](ctx, e.bus, payoutapp.SchedulePayoutCommand{
				BookingID: "bk_1",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domainpayout.ErrAlreadyLive)
	}
	assert.Equal(t, 1, succeeded)

	live, err := e.payouts.LiveByBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestSweepBackfillsMissingPayouts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	covered := e.confirmedBooking(t, "bk_covered", 5)
	missed := e.confirmedBooking(t, "bk_missed", 7)
	e.schedule(t, "bk_covered")

	res, err := commands.Dispatch[payoutapp.SweepMissingPayoutsCommand, *payoutapp.SweepMissingPayoutsResult](ctx, e.bus, payoutapp.SweepMissingPayoutsCommand{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scheduled)

	for _, b := range []*domainbooking.Booking{covered, missed} {
		live, err := e.payouts.LiveByBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Len(t, live, 1, "booking %s", b.ID)
	}

	again, err := commands.Dispatch[payoutapp.SweepMissingPayoutsCommand, *payoutapp.SweepMissingPayoutsResult](ctx, e.bus, payoutapp.SweepMissingPayoutsCommand{})
	require.NoError(t, err)
	assert.Zero(t, again.Scheduled)
}

func TestSchedulePayoutRejectsUnpaidBooking(t *testing.T) {
	e := newEnv(t)
	now := time.Now().UTC()
	checkIn := now.AddDate(0, 0, 5)
	dr, err := daterange.New(checkIn, checkIn.AddDate(0, 0, 3))
	require.NoError(t, err)
	q, err := pricing.Compute(pricing.Input{Range: dr, Rates: pricing.Rates{Nightly: money.Must(10_000, "XAF")}, Now: now})
	require.NoError(t, err)
	b, err := domainbooking.NewBooking(domainbooking.CreateParams{
		ID: "bk_unpaid", PropertyID: "prop_1", OwnerID: "owner_1", TenantID: "tenant_1",
		Range: dr, Guests: 1, Price: q, CreatedAt: now,
	})
	require.NoError(t, err)
	b.ClearEvents()
	require.NoError(t, e.bookings.Save(context.Background(), b))

	_, err = commands.Dispatch[payoutapp.SchedulePayoutCommand, *payoutapp.SchedulePayoutResult](context.Background(), e.bus, payoutapp.SchedulePayoutCommand{
		BookingID: "bk_unpaid",
	})
	assert.ErrorIs(t, err, payoutapp.ErrBookingNotEligible)
}

func TestAdvanceReleasesDuePayouts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := e.confirmedBooking(t, "bk_1", 5)
	res := e.schedule(t, "bk_1")

	// before the hold delay elapses nothing moves
	adv, err := commands.Dispatch[payoutapp.AdvanceScheduledCommand, *payoutapp.AdvanceScheduledResult](ctx, e.bus, payoutapp.AdvanceScheduledCommand{
		Now: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Zero(t, adv.Advanced)

	adv, err = commands.Dispatch[payoutapp.AdvanceScheduledCommand, *payoutapp.AdvanceScheduledResult](ctx, e.bus, payoutapp.AdvanceScheduledCommand{
		Now: b.Range.CheckIn.Add(domainpayout.HoldDelay + time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, adv.Advanced)

	p, err := e.payouts.ByID(ctx, res.PayoutID)
	require.NoError(t, err)
	assert.Equal(t, domainpayout.StatusReady, p.Status)
}

func TestExecuteReadyDisburses(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := e.confirmedBooking(t, "bk_1", 5)
	scheduled := e.schedule(t, "bk_1")
	releaseAt := b.Range.CheckIn.Add(domainpayout.HoldDelay + time.Minute)
	_, err := commands.Dispatch[payoutapp.AdvanceScheduledCommand, *payoutapp.AdvanceScheduledResult](ctx, e.bus, payoutapp.AdvanceScheduledCommand{Now: releaseAt})
	require.NoError(t, err)

	res, err := commands.Dispatch[payoutapp.ExecuteReadyCommand, *payoutapp.ExecuteReadyResult](ctx, e.bus, payoutapp.ExecuteReadyCommand{Now: releaseAt})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Completed)

	p, err := e.payouts.ByID(ctx, scheduled.PayoutID)
	require.NoError(t, err)
	assert.Equal(t, domainpayout.StatusCompleted, p.Status)
	assert.NotEmpty(t, p.ExternalRef)

	// the disbursement landed in the ledger
	row, err := e.transactions.LatestByBooking(ctx, "bk_1", domainbilling.TransactionPayout)
	require.NoError(t, err)
	assert.Equal(t, p.Amount, row.Amount)
	assert.Equal(t, p.ID, row.PayoutID)

	// money actually left through the gateway
	assert.Len(t, e.gateway.Transfers(), 1)

	// a second run finds nothing to do
	res, err = commands.Dispatch[payoutapp.ExecuteReadyCommand, *payoutapp.ExecuteReadyResult](ctx, e.bus, payoutapp.ExecuteReadyCommand{Now: releaseAt})
	require.NoError(t, err)
	assert.Zero(t, res.Completed+res.Failed+res.Deferred)
}

func TestExecuteReturnsToPendingWithoutAccount(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := e.confirmedBooking(t, "bk_other", 5)
	b.OwnerID = "owner_without_account"
	require.NoError(t, e.bookings.Save(ctx, b))

	p, err := domainpayout.NewScheduled(domainpayout.ScheduleParams{
		ID: "po_na", OwnerID: "owner_without_account",
		Amount: money.Must(50_000, "XAF"), BookingID: "bk_other",
		ScheduledAt: time.Now().UTC().Add(-time.Hour), Now: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, p.MarkReady(time.Now().UTC()))
	p.ClearEvents()
	require.NoError(t, e.payouts.Save(ctx, p))

	res, err := commands.Dispatch[payoutapp.ExecuteReadyCommand, *payoutapp.ExecuteReadyResult](ctx, e.bus, payoutapp.ExecuteReadyCommand{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deferred)

	stored, err := e.payouts.ByID(ctx, "po_na")
	require.NoError(t, err)
	assert.Equal(t, domainpayout.StatusPending, stored.Status)
	assert.Contains(t, stored.Notes, "owner has no payout account on file")
}

type unavailableAccounts struct{}

func (unavailableAccounts) Details(context.Context, string) (policies.RecipientDetails, error) {
	return policies.RecipientDetails{}, errors.New("directory temporarily unavailable")
}

func TestExecuteReleasesClaimOnDirectoryError(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := e.confirmedBooking(t, "bk_1", 5)
	scheduled := e.schedule(t, "bk_1")
	releaseAt := b.Range.CheckIn.Add(domainpayout.HoldDelay + time.Minute)
	_, err := commands.Dispatch[payoutapp.AdvanceScheduledCommand, *payoutapp.AdvanceScheduledResult](ctx, e.bus, payoutapp.AdvanceScheduledCommand{Now: releaseAt})
	require.NoError(t, err)

	flaky := &payoutapp.ExecuteReadyHandler{
		UoWFactory: e.factory, Gateway: e.gateway, Accounts: unavailableAccounts{},
		Outbox: e.outbox, Encoder: outbox.JSONEventEncoder{},
	}
	res, err := flaky.Handle(ctx, payoutapp.ExecuteReadyCommand{Now: releaseAt})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deferred)

	// the claim was released, not stranded in processing
	p, err := e.payouts.ByID(ctx, scheduled.PayoutID)
	require.NoError(t, err)
	assert.Equal(t, domainpayout.StatusPending, p.Status)
	assert.Contains(t, p.Notes, "payout account lookup failed: directory temporarily unavailable")

	// once the directory recovers the payout is still payable
	require.NoError(t, p.MarkReady(releaseAt))
	require.NoError(t, e.payouts.Save(ctx, p))
	res2, err := commands.Dispatch[payoutapp.ExecuteReadyCommand, *payoutapp.ExecuteReadyResult](ctx, e.bus, payoutapp.ExecuteReadyCommand{Now: releaseAt})
	require.NoError(t, err)
	assert.Equal(t, 1, res2.Completed)
}

func TestExecuteMarksFailedOnTransferError(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := e.confirmedBooking(t, "bk_1", 5)
	scheduled := e.schedule(t, "bk_1")
	releaseAt := b.Range.CheckIn.Add(domainpayout.HoldDelay + time.Minute)
	_, err := commands.Dispatch[payoutapp.AdvanceScheduledCommand, *payoutapp.AdvanceScheduledResult](ctx, e.bus, payoutapp.AdvanceScheduledCommand{Now: releaseAt})
	require.NoError(t, err)

	e.gateway.FailTransfers = true
	res, err := commands.Dispatch[payoutapp.ExecuteReadyCommand, *payoutapp.ExecuteReadyResult](ctx, e.bus, payoutapp.ExecuteReadyCommand{Now: releaseAt})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	p, err := e.payouts.ByID(ctx, scheduled.PayoutID)
	require.NoError(t, err)
	assert.Equal(t, domainpayout.StatusFailed, p.Status)
	assert.NotEmpty(t, p.FailureReason)

	// failed payouts stay put until manual intervention
	res, err = commands.Dispatch[payoutapp.ExecuteReadyCommand, *payoutapp.ExecuteReadyResult](ctx, e.bus, payoutapp.ExecuteReadyCommand{Now: releaseAt})
	require.NoError(t, err)
	assert.Zero(t, res.Failed)
}

func TestCancelPayout(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.confirmedBooking(t, "bk_1", 5)
	scheduled := e.schedule(t, "bk_1")

	res, err := commands.Dispatch[payoutapp.CancelPayoutCommand, *payoutapp.CancelPayoutResult](ctx, e.bus, payoutapp.CancelPayoutCommand{
		PayoutID: scheduled.PayoutID,
		Reason:   "manual hold",
	})
	require.NoError(t, err)
	assert.Equal(t, string(domainpayout.StatusCancelled), res.Status)

	p, err := e.payouts.ByID(ctx, scheduled.PayoutID)
	require.NoError(t, err)
	assert.Contains(t, p.Notes, "manual hold")
}
