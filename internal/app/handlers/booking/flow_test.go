package booking_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayhub/internal/app/commands"
	bookingapp "stayhub/internal/app/handlers/booking"
	payoutapp "stayhub/internal/app/handlers/payout"
	"stayhub/internal/app/middleware"
	"stayhub/internal/app/outbox"
	"stayhub/internal/app/policies"
	domainbilling "stayhub/internal/domain/billing"
	domainbooking "stayhub/internal/domain/booking"
	domaincancel "stayhub/internal/domain/cancellation"
	domainpayout "stayhub/internal/domain/payout"
	"stayhub/internal/domain/pricing"
	"stayhub/internal/domain/shared/money"
	"stayhub/internal/infra/storage/memory"
)

type env struct {
	bookings     *memory.BookingRepository
	promos       *memory.PromoRepository
	payouts      *memory.PayoutRepository
	transactions *memory.TransactionRepository
	properties   *memory.PropertyDirectory
	accounts     *memory.PayoutAccountDirectory
	tenants      *memory.TenantDirectory
	settings     *memory.SettingsStore
	calendar     *memory.Calendar
	gateway      *memory.Gateway
	outbox       *memory.Outbox
	bus          commands.Bus
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		bookings:     memory.NewBookingRepository(),
		promos:       memory.NewPromoRepository(),
		payouts:      memory.NewPayoutRepository(),
		transactions: memory.NewTransactionRepository(),
		properties:   memory.NewPropertyDirectory(),
		accounts:     memory.NewPayoutAccountDirectory(),
		tenants:      memory.NewTenantDirectory(),
		settings:     memory.NewSettingsStore(),
		calendar:     memory.NewCalendar(),
		gateway:      memory.NewGateway(),
		outbox:       memory.NewOutbox(),
	}
	subscriptions := memory.NewSubscriptionDirectory()
	factory := memory.Factory{
		BookingRepo:     e.bookings,
		PromoRepo:       e.promos,
		PayoutRepo:      e.payouts,
		CommissionRepo:  memory.NewCommissionRepository(),
		TransactionRepo: e.transactions,
		PropertiesDir:   e.properties,
		CalendarSvc:     e.calendar,
	}
	encoder := outbox.JSONEventEncoder{}

	bus := commands.NewInMemoryBus()
	commands.RegisterHandler(bus, bookingapp.CreateBookingCommand{}.Key(), &bookingapp.CreateBookingHandler{
		Outbox: e.outbox, Encoder: encoder,
	})
	commands.RegisterHandler(bus, bookingapp.ConfirmBookingCommand{}.Key(), &bookingapp.ConfirmBookingHandler{
		Subscriptions: subscriptions, Outbox: e.outbox, Encoder: encoder,
	})
	commands.RegisterHandler(bus, bookingapp.CompleteBookingCommand{}.Key(), &bookingapp.CompleteBookingHandler{
		Outbox: e.outbox, Encoder: encoder,
	})
	commands.RegisterHandler(bus, bookingapp.CancelBookingCommand{}.Key(), &bookingapp.CancelBookingHandler{
		UoWFactory: factory, Gateway: e.gateway, Subscriptions: subscriptions,
		Settings: e.settings, Outbox: e.outbox, Encoder: encoder,
	})
	commands.RegisterHandler(bus, bookingapp.InitiatePaymentCommand{}.Key(), &bookingapp.InitiatePaymentHandler{
		UoWFactory: factory, Gateway: e.gateway, Tenants: e.tenants,
	})
	commands.RegisterHandler(bus, bookingapp.ProcessGatewayEventCommand{}.Key(), &bookingapp.ProcessGatewayEventHandler{
		Subscriptions: subscriptions, Outbox: e.outbox, Encoder: encoder,
	})
	commands.RegisterHandler(bus, bookingapp.ReconcilePaymentCommand{}.Key(), &bookingapp.ReconcilePaymentHandler{
		UoWFactory: factory, Gateway: e.gateway, Subscriptions: subscriptions,
		Outbox: e.outbox, Encoder: encoder,
	})
	commands.RegisterHandler(bus, payoutapp.ExecuteReadyCommand{}.Key(), &payoutapp.ExecuteReadyHandler{
		UoWFactory: factory, Gateway: e.gateway, Accounts: e.accounts,
		Outbox: e.outbox, Encoder: encoder,
	})

	e.bus = middleware.ChainCommands(
		bus,
		middleware.Idempotency(memory.NewIdempotencyStore(), nil),
		middleware.Transaction(factory, nil),
		middleware.OutboxFlush(e.outbox),
	)

	e.properties.Put(policies.PropertyFinancials{
		PropertyID: "prop_1",
		OwnerID:    "owner_1",
		Capacity:   4,
		Rates: pricing.Rates{
			Nightly:         money.Must(10_000, "XAF"),
			Weekly:          money.Must(60_000, "XAF"),
			CleaningFee:     money.Must(2_000, "XAF"),
			SecurityDeposit: money.Must(5_000, "XAF"),
		},
		Policy: domaincancel.PolicyModerate,
	})
	e.tenants.Put("tenant_1", policies.Customer{
		Email: "tenant@example.com", Phone: "+237650000000", Name: "Tenant One",
	})
	e.accounts.Put(policies.RecipientDetails{
		OwnerID: "owner_1", Channel: "cm.mobile", Number: "+237699999999", Name: "Owner One", Country: "CM",
	})
	return e
}

func (e *env) createBooking(t *testing.T, id string, daysAhead, nights int) *bookingapp.CreateBookingResult {
	t.Helper()
	checkIn := time.Now().UTC().AddDate(0, 0, daysAhead)
	res, err := commands.Dispatch[bookingapp.CreateBookingCommand, *bookingapp.CreateBookingResult](context.Background(), e.bus, bookingapp.CreateBookingCommand{
		CommandID:  id,
		PropertyID: "prop_1",
		TenantID:   "tenant_1",
		CheckIn:    checkIn,
		CheckOut:   checkIn.AddDate(0, 0, nights),
		Guests:     2,
	})
	require.NoError(t, err)
	return res
}

func (e *env) payAndConfirm(t *testing.T, bookingID string) {
	t.Helper()
	pay, err := commands.Dispatch[bookingapp.InitiatePaymentCommand, *bookingapp.InitiatePaymentResult](context.Background(), e.bus, bookingapp.InitiatePaymentCommand{
		BookingID: bookingID,
	})
	require.NoError(t, err)

	res, err := commands.Dispatch[bookingapp.ProcessGatewayEventCommand, *bookingapp.ProcessGatewayEventResult](context.Background(), e.bus, bookingapp.ProcessGatewayEventCommand{
		Reference: pay.Reference,
		Status:    policies.ChargeCompleted,
	})
	require.NoError(t, err)
	require.Equal(t, string(domainbooking.StatusConfirmed), res.BookingStatus)
}

func TestBookingLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res := e.createBooking(t, "bk_1", 30, 10)
	assert.Equal(t, 10, res.Nights)
	assert.Equal(t, int64(90_000), res.BasePrice)
	assert.Equal(t, int64(6_300), res.ServiceFee)
	assert.Equal(t, int64(103_300), res.Total)

	pay, err := commands.Dispatch[bookingapp.InitiatePaymentCommand, *bookingapp.InitiatePaymentResult](ctx, e.bus, bookingapp.InitiatePaymentCommand{BookingID: "bk_1"})
	require.NoError(t, err)
	require.NotEmpty(t, pay.Reference)
	assert.Equal(t, int64(103_300), pay.Amount)

	hook, err := commands.Dispatch[bookingapp.ProcessGatewayEventCommand, *bookingapp.ProcessGatewayEventResult](ctx, e.bus, bookingapp.ProcessGatewayEventCommand{
		Reference: pay.Reference,
		Status:    policies.ChargeCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, string(domainbooking.StatusConfirmed), hook.BookingStatus)
	assert.Equal(t, string(domainbooking.PaymentPaid), hook.PaymentStatus)

	b, err := e.bookings.ByID(ctx, "bk_1")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatusConfirmed, b.Status)

	// payout scheduled for total minus the 3% owner commission
	live, err := e.payouts.LiveByBooking(ctx, "bk_1")
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, domainpayout.StatusScheduled, live[0].Status)
	assert.Equal(t, int64(103_300-2_700), live[0].Amount.Amount)
	assert.Equal(t, b.Range.CheckIn.Add(domainpayout.HoldDelay), live[0].ScheduledAt)

	// the calendar now rejects overlapping stays
	_, err = commands.Dispatch[bookingapp.CreateBookingCommand, *bookingapp.CreateBookingResult](ctx, e.bus, bookingapp.CreateBookingCommand{
		CommandID:  "bk_overlap",
		PropertyID: "prop_1",
		TenantID:   "tenant_1",
		CheckIn:    b.Range.CheckIn.AddDate(0, 0, 2),
		CheckOut:   b.Range.CheckIn.AddDate(0, 0, 12),
		Guests:     1,
	})
	assert.ErrorIs(t, err, bookingapp.ErrDatesUnavailable)

	// the middleware flushed every staged event; nothing was lost on the way
	assert.NotEmpty(t, e.outbox.Published())
	assert.Empty(t, e.outbox.Staged())
}

func TestCreateBookingIdempotency(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	checkIn := time.Now().UTC().AddDate(0, 0, 14)

	cmd := bookingapp.CreateBookingCommand{
		CommandID:       "bk_a",
		PropertyID:      "prop_1",
		TenantID:        "tenant_1",
		CheckIn:         checkIn,
		CheckOut:        checkIn.AddDate(0, 0, 4),
		Guests:          2,
		IdempotencyKeyV: "key-123",
	}
	first, err := commands.Dispatch[bookingapp.CreateBookingCommand, *bookingapp.CreateBookingResult](ctx, e.bus, cmd)
	require.NoError(t, err)

	cmd.CommandID = "bk_b"
	second, err := commands.Dispatch[bookingapp.CreateBookingCommand, *bookingapp.CreateBookingResult](ctx, e.bus, cmd)
	require.NoError(t, err)

	assert.Equal(t, first.BookingID, second.BookingID)
	_, err = e.bookings.ByID(ctx, "bk_b")
	assert.ErrorIs(t, err, domainbooking.ErrBookingNotFound)
}

func TestPromoConsumedAndRestoredOnCancel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.promos.Save(ctx, &domainbooking.PromoCode{
		Code:            "WELCOME10",
		PropertyID:      "prop_1",
		DiscountPercent: decimal.NewFromFloat(0.10),
		Active:          true,
		ExpiresAt:       time.Now().UTC().AddDate(0, 2, 0),
	}))

	checkIn := time.Now().UTC().AddDate(0, 0, 20)
	res, err := commands.Dispatch[bookingapp.CreateBookingCommand, *bookingapp.CreateBookingResult](ctx, e.bus, bookingapp.CreateBookingCommand{
		CommandID:  "bk_promo",
		PropertyID: "prop_1",
		TenantID:   "tenant_1",
		CheckIn:    checkIn,
		CheckOut:   checkIn.AddDate(0, 0, 5),
		Guests:     2,
		PromoCode:  "WELCOME10",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5_000), res.DiscountAmount)

	promo, err := e.promos.ByCode(ctx, "WELCOME10")
	require.NoError(t, err)
	assert.False(t, promo.Active)

	// a second redemption is rejected while consumed
	_, err = commands.Dispatch[bookingapp.CreateBookingCommand, *bookingapp.CreateBookingResult](ctx, e.bus, bookingapp.CreateBookingCommand{
		CommandID:  "bk_promo2",
		PropertyID: "prop_1",
		TenantID:   "tenant_1",
		CheckIn:    checkIn.AddDate(0, 1, 0),
		CheckOut:   checkIn.AddDate(0, 1, 5),
		Guests:     2,
		PromoCode:  "WELCOME10",
	})
	assert.ErrorIs(t, err, domainbooking.ErrPromoInactive)

	e.payAndConfirm(t, "bk_promo")
	_, err = commands.Dispatch[bookingapp.CancelBookingCommand, *bookingapp.CancelBookingResult](ctx, e.bus, bookingapp.CancelBookingCommand{
		BookingID: "bk_promo",
		ActorID:   "tenant_1",
	})
	require.NoError(t, err)

	promo, err = e.promos.ByCode(ctx, "WELCOME10")
	require.NoError(t, err)
	assert.True(t, promo.Active)
}

func TestCancelWithinGraceRefundsEverything(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.createBooking(t, "bk_1", 30, 10)
	e.payAndConfirm(t, "bk_1")

	res, err := commands.Dispatch[bookingapp.CancelBookingCommand, *bookingapp.CancelBookingResult](ctx, e.bus, bookingapp.CancelBookingCommand{
		BookingID: "bk_1",
		ActorID:   "tenant_1",
		Reason:    "changed plans",
	})
	require.NoError(t, err)

	assert.True(t, res.GracePeriodApplied)
	assert.Equal(t, int64(92_000), res.RefundAmount)
	assert.Zero(t, res.OwnerCompensation)
	assert.Equal(t, string(domainbilling.TransactionCompleted), res.RefundStatus)

	b, err := e.bookings.ByID(ctx, "bk_1")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatusCancelled, b.Status)
	assert.Equal(t, domainbooking.PaymentRefunded, b.PaymentStatus)

	// money went back through the gateway
	assert.Len(t, e.gateway.Refunds(), 1)

	// the scheduled payout was cancelled, not paid
	live, err := e.payouts.LiveByBooking(ctx, "bk_1")
	require.NoError(t, err)
	assert.Empty(t, live)

	// the dates are bookable again
	e.createBooking(t, "bk_again", 30, 10)
}

func TestCancelOutsideGraceCompensatesOwner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.createBooking(t, "bk_1", 3, 10)
	e.payAndConfirm(t, "bk_1")

	// push the booking out of its grace period
	b, err := e.bookings.ByID(ctx, "bk_1")
	require.NoError(t, err)
	b.CreatedAt = b.CreatedAt.Add(-48 * time.Hour)
	require.NoError(t, e.bookings.Save(ctx, b))

	res, err := commands.Dispatch[bookingapp.CancelBookingCommand, *bookingapp.CancelBookingResult](ctx, e.bus, bookingapp.CancelBookingCommand{
		BookingID: "bk_1",
		ActorID:   "tenant_1",
	})
	require.NoError(t, err)

	// moderate policy, 3 days out: 50% of base + cleaning
	assert.False(t, res.GracePeriodApplied)
	assert.Equal(t, "0.5", res.RefundPercent)
	assert.Equal(t, int64(46_000), res.RefundAmount)
	// owner keeps half the base minus the 3% commission
	assert.Equal(t, int64(45_000-1_350), res.OwnerCompensation)

	live, err := e.payouts.LiveByBooking(ctx, "bk_1")
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, domainpayout.StatusScheduled, live[0].Status)
	assert.Equal(t, res.OwnerCompensation, live[0].Amount.Amount)
}

func TestCancelRefundFailureParksForReview(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.createBooking(t, "bk_1", 30, 10)
	e.payAndConfirm(t, "bk_1")
	e.gateway.FailRefunds = true

	res, err := commands.Dispatch[bookingapp.CancelBookingCommand, *bookingapp.CancelBookingResult](ctx, e.bus, bookingapp.CancelBookingCommand{
		BookingID: "bk_1",
		ActorID:   "tenant_1",
	})
	require.NoError(t, err)
	assert.Equal(t, string(domainbilling.TransactionPending), res.RefundStatus)

	// the cancellation itself held
	b, err := e.bookings.ByID(ctx, "bk_1")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatusCancelled, b.Status)
	assert.Equal(t, domainbooking.PaymentRefunded, b.PaymentStatus)

	row, err := e.transactions.LatestByBooking(ctx, "bk_1", domainbilling.TransactionRefund)
	require.NoError(t, err)
	assert.Equal(t, domainbilling.TransactionPending, row.Status)
	assert.Contains(t, row.ReviewNote, "gateway refund failed")
}

func TestCancelByStrangerRejected(t *testing.T) {
	e := newEnv(t)
	e.createBooking(t, "bk_1", 30, 10)

	_, err := commands.Dispatch[bookingapp.CancelBookingCommand, *bookingapp.CancelBookingResult](context.Background(), e.bus, bookingapp.CancelBookingCommand{
		BookingID: "bk_1",
		ActorID:   "stranger",
	})
	assert.ErrorIs(t, err, bookingapp.ErrCancelNotAllowed)
}

func TestReconcileConfirmsWhenWebhookLost(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.createBooking(t, "bk_1", 30, 10)

	pay, err := commands.Dispatch[bookingapp.InitiatePaymentCommand, *bookingapp.InitiatePaymentResult](ctx, e.bus, bookingapp.InitiatePaymentCommand{BookingID: "bk_1"})
	require.NoError(t, err)

	// no webhook arrives; support reconciles against the gateway instead
	res, err := commands.Dispatch[bookingapp.ReconcilePaymentCommand, *bookingapp.ProcessGatewayEventResult](ctx, e.bus, bookingapp.ReconcilePaymentCommand{
		Reference: pay.Reference,
	})
	require.NoError(t, err)
	assert.Equal(t, string(domainbooking.StatusConfirmed), res.BookingStatus)
	assert.Equal(t, string(domainbooking.PaymentPaid), res.PaymentStatus)

	live, err := e.payouts.LiveByBooking(ctx, "bk_1")
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestReconcileUnknownChargeSurfacesGatewayError(t *testing.T) {
	e := newEnv(t)

	_, err := commands.Dispatch[bookingapp.ReconcilePaymentCommand, *bookingapp.ProcessGatewayEventResult](context.Background(), e.bus, bookingapp.ReconcilePaymentCommand{
		Reference: "ch_nope",
	})
	assert.ErrorIs(t, err, policies.ErrGateway)
}

func TestWebhookUnknownReference(t *testing.T) {
	e := newEnv(t)
	_, err := commands.Dispatch[bookingapp.ProcessGatewayEventCommand, *bookingapp.ProcessGatewayEventResult](context.Background(), e.bus, bookingapp.ProcessGatewayEventCommand{
		Reference: "trx.unknown",
		Status:    policies.ChargeCompleted,
	})
	assert.ErrorIs(t, err, bookingapp.ErrUnknownReference)
}

func TestFailedChargeDoesNotConfirm(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.createBooking(t, "bk_1", 30, 10)
	pay, err := commands.Dispatch[bookingapp.InitiatePaymentCommand, *bookingapp.InitiatePaymentResult](ctx, e.bus, bookingapp.InitiatePaymentCommand{BookingID: "bk_1"})
	require.NoError(t, err)

	hook, err := commands.Dispatch[bookingapp.ProcessGatewayEventCommand, *bookingapp.ProcessGatewayEventResult](ctx, e.bus, bookingapp.ProcessGatewayEventCommand{
		Reference: pay.Reference,
		Status:    policies.ChargeFailed,
	})
	require.NoError(t, err)
	assert.Equal(t, string(domainbooking.StatusPending), hook.BookingStatus)
	assert.Equal(t, string(domainbooking.PaymentFailed), hook.PaymentStatus)

	// a failed payment can be retried
	retry, err := commands.Dispatch[bookingapp.InitiatePaymentCommand, *bookingapp.InitiatePaymentResult](ctx, e.bus, bookingapp.InitiatePaymentCommand{BookingID: "bk_1"})
	require.NoError(t, err)
	assert.NotEqual(t, pay.Reference, retry.Reference)
}

func TestExternalBookingSkipsPaymentAndPayout(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	checkIn := time.Now().UTC().AddDate(0, 0, 10)

	res, err := commands.Dispatch[bookingapp.CreateBookingCommand, *bookingapp.CreateBookingResult](ctx, e.bus, bookingapp.CreateBookingCommand{
		CommandID:      "bk_ext",
		PropertyID:     "prop_1",
		CheckIn:        checkIn,
		CheckOut:       checkIn.AddDate(0, 0, 5),
		Guests:         2,
		ExternalSource: true,
	})
	require.NoError(t, err)
	assert.Zero(t, res.Total)

	_, err = commands.Dispatch[bookingapp.InitiatePaymentCommand, *bookingapp.InitiatePaymentResult](ctx, e.bus, bookingapp.InitiatePaymentCommand{BookingID: "bk_ext"})
	assert.ErrorIs(t, err, bookingapp.ErrExternalBooking)
}
