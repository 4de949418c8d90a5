package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"stayhub/internal/app/uow"
	domainbilling "stayhub/internal/domain/billing"
	domainbooking "stayhub/internal/domain/booking"
	domainpayout "stayhub/internal/domain/payout"
)

// ErrConcurrentUpdate is returned when a stale aggregate version is saved.
var ErrConcurrentUpdate = uow.ErrConcurrentUpdate

// BookingRepository is an in-memory implementation for dev mode and tests.
type BookingRepository struct {
	mu    sync.RWMutex
	items map[domainbooking.BookingID]domainbooking.Booking
}

func NewBookingRepository() *BookingRepository {
	return &BookingRepository{items: make(map[domainbooking.BookingID]domainbooking.Booking)}
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.items[id]
	if !ok {
		return nil, domainbooking.ErrBookingNotFound
	}
	clone := b
	return &clone, nil
}

func (r *BookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.items[b.ID]
	if ok && existing.Version != b.Version {
		return ErrConcurrentUpdate
	}
	b.Version++
	clone := *b
	r.items[b.ID] = clone
	return nil
}

func (r *BookingRepository) ConfirmedPaidWithoutPayout(ctx context.Context) ([]*domainbooking.Booking, error) {
	// The memory flavor cannot join against payouts; callers filter through
	// LiveByBooking themselves.
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domainbooking.Booking
	for _, b := range r.items {
		if b.Status == domainbooking.StatusConfirmed && b.PaymentStatus == domainbooking.PaymentPaid {
			clone := b
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// PromoRepository keeps promo codes in memory.
type PromoRepository struct {
	mu    sync.RWMutex
	items map[string]domainbooking.PromoCode
}

func NewPromoRepository() *PromoRepository {
	return &PromoRepository{items: make(map[string]domainbooking.PromoCode)}
}

func (r *PromoRepository) ByCode(ctx context.Context, code string) (*domainbooking.PromoCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.items[code]
	if !ok {
		return nil, domainbooking.ErrPromoNotFound
	}
	clone := p
	return &clone, nil
}

func (r *PromoRepository) Save(ctx context.Context, promo *domainbooking.PromoCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[promo.Code] = *promo
	return nil
}

// PayoutRepository keeps payouts in memory with optimistic concurrency.
type PayoutRepository struct {
	mu    sync.RWMutex
	items map[string]domainpayout.Payout
}

func NewPayoutRepository() *PayoutRepository {
	return &PayoutRepository{items: make(map[string]domainpayout.Payout)}
}

func (r *PayoutRepository) ByID(ctx context.Context, id string) (*domainpayout.Payout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.items[id]
	if !ok {
		return nil, domainpayout.ErrPayoutNotFound
	}
	clone := clonePayout(p)
	return &clone, nil
}

func (r *PayoutRepository) Save(ctx context.Context, p *domainpayout.Payout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.items[p.ID]
	if ok && existing.Version != p.Version {
		return ErrConcurrentUpdate
	}
	if !ok && !p.IsTerminal() {
		// One live payout per booking, enforced at the insert so two
		// racing schedulers cannot both get past the read-side check.
		for _, other := range r.items {
			if other.IsTerminal() {
				continue
			}
			for _, id := range p.BookingIDs {
				if other.Covers(id) {
					return domainpayout.ErrAlreadyLive
				}
			}
		}
	}
	p.Version++
	r.items[p.ID] = clonePayout(*p)
	return nil
}

func (r *PayoutRepository) LiveByBooking(ctx context.Context, id domainbooking.BookingID) ([]*domainpayout.Payout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domainpayout.Payout
	for _, p := range r.items {
		if p.IsTerminal() || !p.Covers(id) {
			continue
		}
		clone := clonePayout(p)
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *PayoutRepository) DueScheduled(ctx context.Context, now time.Time) ([]*domainpayout.Payout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domainpayout.Payout
	for _, p := range r.items {
		if p.Status == domainpayout.StatusScheduled && !p.ScheduledAt.After(now) {
			clone := clonePayout(p)
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (r *PayoutRepository) ListReady(ctx context.Context) ([]*domainpayout.Payout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domainpayout.Payout
	for _, p := range r.items {
		if p.Status == domainpayout.StatusReady {
			clone := clonePayout(p)
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func clonePayout(p domainpayout.Payout) domainpayout.Payout {
	clone := p
	clone.BookingIDs = append([]domainbooking.BookingID(nil), p.BookingIDs...)
	clone.Notes = append([]string(nil), p.Notes...)
	return clone
}

// CommissionRepository keeps commissions keyed by booking.
type CommissionRepository struct {
	mu    sync.RWMutex
	items map[domainbooking.BookingID]domainbilling.Commission
}

func NewCommissionRepository() *CommissionRepository {
	return &CommissionRepository{items: make(map[domainbooking.BookingID]domainbilling.Commission)}
}

func (r *CommissionRepository) ByBooking(ctx context.Context, id domainbooking.BookingID) (*domainbilling.Commission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.items[id]
	if !ok {
		return nil, domainbilling.ErrCommissionNotFound
	}
	clone := c
	return &clone, nil
}

func (r *CommissionRepository) Upsert(ctx context.Context, commission *domainbilling.Commission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[commission.BookingID] = *commission
	return nil
}

// TransactionRepository keeps ledger rows in memory.
type TransactionRepository struct {
	mu    sync.RWMutex
	items map[string]domainbilling.Transaction
}

func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{items: make(map[string]domainbilling.Transaction)}
}

func (r *TransactionRepository) ByID(ctx context.Context, id string) (*domainbilling.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.items[id]
	if !ok {
		return nil, domainbilling.ErrTransactionNotFound
	}
	clone := t
	return &clone, nil
}

func (r *TransactionRepository) ByExternalRef(ctx context.Context, ref string) (*domainbilling.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.items {
		if t.ExternalRef == ref {
			clone := t
			return &clone, nil
		}
	}
	return nil, domainbilling.ErrTransactionNotFound
}

func (r *TransactionRepository) LatestByBooking(ctx context.Context, id domainbooking.BookingID, txType domainbilling.TransactionType) (*domainbilling.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *domainbilling.Transaction
	for _, t := range r.items {
		if t.BookingID != id || t.Type != txType {
			continue
		}
		if latest == nil || t.CreatedAt.After(latest.CreatedAt) {
			clone := t
			latest = &clone
		}
	}
	if latest == nil {
		return nil, domainbilling.ErrTransactionNotFound
	}
	return latest, nil
}

func (r *TransactionRepository) Save(ctx context.Context, tx *domainbilling.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[tx.ID] = *tx
	return nil
}
