package uow

import (
	"context"
	"errors"

	"stayhub/internal/app/policies"
	domainbilling "stayhub/internal/domain/billing"
	domainbooking "stayhub/internal/domain/booking"
	domainpayout "stayhub/internal/domain/payout"
)

// ErrConcurrentUpdate reports a lost optimistic-concurrency race: the
// aggregate changed between load and save. Callers retry or surface a
// conflict.
var ErrConcurrentUpdate = errors.New("uow: concurrent update detected")

// UnitOfWork coordinates the financial repositories inside one transaction
// boundary. Calendar mutations ride the same boundary so a confirmation block
// or a cancellation release commits together with the booking.
type UnitOfWork interface {
	Bookings() domainbooking.Repository
	Promos() domainbooking.PromoRepository
	Payouts() domainpayout.Repository
	Commissions() domainbilling.CommissionRepository
	Transactions() domainbilling.TransactionRepository
	Properties() policies.Properties
	Calendar() policies.Calendar

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UoWFactory starts unit of work instances.
type UoWFactory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

// TxOptions configure transaction boundaries.
type TxOptions struct {
	ReadOnly bool
}

// ErrUnitOfWorkMissing means a handler ran outside the transaction
// middleware and found no unit of work on its context.
var ErrUnitOfWorkMissing = errors.New("uow: no unit of work in context")

type unitKey struct{}

// ContextWithUnitOfWork attaches the unit to the context for the duration of
// a command. The transaction middleware is the only writer.
func ContextWithUnitOfWork(ctx context.Context, unit UnitOfWork) context.Context {
	return context.WithValue(ctx, unitKey{}, unit)
}

// FromContext returns the ambient unit of work, if any.
func FromContext(ctx context.Context) (UnitOfWork, bool) {
	unit, ok := ctx.Value(unitKey{}).(UnitOfWork)
	return unit, ok
}
