package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"stayhub/internal/app/policies"
	"stayhub/internal/app/uow"
	domainbilling "stayhub/internal/domain/billing"
	domainbooking "stayhub/internal/domain/booking"
	domainpayout "stayhub/internal/domain/payout"
)

var ErrUnitOfWorkNotConfigured = errors.New("mongo: unit of work factory missing database")

// Factory wires Mongo transactions into the generic UnitOfWork interface.
// Directory ports (properties, calendar) may be backed elsewhere; they ride
// the same boundary through the session context.
type Factory struct {
	DB *mongo.Database

	BookingRepo     domainbooking.Repository
	PromoRepo       domainbooking.PromoRepository
	PayoutRepo      domainpayout.Repository
	CommissionRepo  domainbilling.CommissionRepository
	TransactionRepo domainbilling.TransactionRepository
	PropertiesDir   policies.Properties
	CalendarSvc     policies.Calendar
}

// Begin starts a MongoDB session/transaction.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.DB == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	session, err := f.DB.Client().StartSession()
	if err != nil {
		return nil, err
	}
	txnOpts := options.Transaction().SetReadConcern(f.DB.ReadConcern()).SetWriteConcern(f.DB.WriteConcern())
	if err := session.StartTransaction(txnOpts); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	return &Unit{
		db:           f.DB,
		session:      session,
		bookings:     f.BookingRepo,
		promos:       f.PromoRepo,
		payouts:      f.PayoutRepo,
		commissions:  f.CommissionRepo,
		transactions: f.TransactionRepo,
		properties:   f.PropertiesDir,
		calendar:     f.CalendarSvc,
	}, nil
}

type Unit struct {
	db      *mongo.Database
	session mongo.Session

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

func (u *Unit) Commit(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	return u.session.CommitTransaction(ctx)
}

func (u *Unit) Rollback(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	return u.session.AbortTransaction(ctx)
}

// InjectContext ensures the Mongo session is available in context for
// downstream repositories.
func (u *Unit) InjectContext(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, u.session)
}
