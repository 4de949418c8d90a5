package memory

import (
	"context"
	"errors"

	"stayhub/internal/app/policies"
	"stayhub/internal/app/uow"
	domainbilling "stayhub/internal/domain/billing"
	domainbooking "stayhub/internal/domain/booking"
	domainpayout "stayhub/internal/domain/payout"
)

// ErrFactoryMisconfigured indicates missing repositories.
var ErrFactoryMisconfigured = errors.New("memory: unit of work factory misconfigured")

// Factory wires in-memory repositories into a unit-of-work boundary.
type Factory struct {
	BookingRepo     domainbooking.Repository
	PromoRepo       domainbooking.PromoRepository
	PayoutRepo      domainpayout.Repository
	CommissionRepo  domainbilling.CommissionRepository
	TransactionRepo domainbilling.TransactionRepository
	PropertiesDir   policies.Properties
	CalendarSvc     policies.Calendar
}

// Begin starts a lightweight transaction boundary. No isolation is provided
// but the abstraction matches the application ports.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.BookingRepo == nil || f.PromoRepo == nil || f.PayoutRepo == nil ||
		f.CommissionRepo == nil || f.TransactionRepo == nil ||
		f.PropertiesDir == nil || f.CalendarSvc == nil {
		return nil, ErrFactoryMisconfigured
	}
	return &Unit{
		bookings:     f.BookingRepo,
		promos:       f.PromoRepo,
		payouts:      f.PayoutRepo,
		commissions:  f.CommissionRepo,
		transactions: f.TransactionRepo,
		properties:   f.PropertiesDir,
		calendar:     f.CalendarSvc,
	}, nil
}

// Unit is a lightweight uow.UnitOfWork backed by in-memory stores.
type Unit struct {
	bookings     domainbooking.Repository
	promos       domainbooking.PromoRepository
	payouts      domainpayout.Repository
	commissions  domainbilling.CommissionRepository
	transactions domainbilling.TransactionRepository
	properties   policies.Properties
	calendar     policies.Calendar
}

func (u *Unit) Bookings() domainbooking.Repository { return u.bookings }

func (u *Unit) Promos() domainbooking.PromoRepository { return u.promos }

func (u *Unit) Payouts() domainpayout.Repository { return u.payouts }

func (u *Unit) Commissions() domainbilling.CommissionRepository { return u.commissions }

func (u *Unit) Transactions() domainbilling.TransactionRepository { return u.transactions }

func (u *Unit) Properties() policies.Properties { return u.properties }

func (u *Unit) Calendar() policies.Calendar { return u.calendar }

func (u *Unit) Commit(ctx context.Context) error { return nil }

func (u *Unit) Rollback(ctx context.Context) error { return nil }
