package memory

import (
	"context"
	"sync"

	"stayhub/internal/app/policies"
	domainbilling "stayhub/internal/domain/billing"
	domainbooking "stayhub/internal/domain/booking"
	"stayhub/internal/domain/shared/daterange"
)

// PropertyDirectory serves property financials from a fixed map, standing in
// for the listing subsystem.
type PropertyDirectory struct {
	mu    sync.RWMutex
	items map[string]policies.PropertyFinancials
}

func NewPropertyDirectory() *PropertyDirectory {
	return &PropertyDirectory{items: make(map[string]policies.PropertyFinancials)}
}

func (d *PropertyDirectory) Put(p policies.PropertyFinancials) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items[p.PropertyID] = p
}

func (d *PropertyDirectory) Financials(ctx context.Context, propertyID string) (policies.PropertyFinancials, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.items[propertyID]
	if !ok {
		return policies.PropertyFinancials{}, policies.ErrPropertyNotFound
	}
	return p, nil
}

// SubscriptionDirectory maps owners to subscription tiers, defaulting to free.
type SubscriptionDirectory struct {
	mu    sync.RWMutex
	items map[string]domainbilling.SubscriptionTier
}

func NewSubscriptionDirectory() *SubscriptionDirectory {
	return &SubscriptionDirectory{items: make(map[string]domainbilling.SubscriptionTier)}
}

func (d *SubscriptionDirectory) Put(ownerID string, tier domainbilling.SubscriptionTier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items[ownerID] = tier
}

func (d *SubscriptionDirectory) ActiveTier(ctx context.Context, ownerID string) (domainbilling.SubscriptionTier, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if tier, ok := d.items[ownerID]; ok {
		return tier, nil
	}
	return domainbilling.TierFree, nil
}

// PayoutAccountDirectory keeps owner payout destinations.
type PayoutAccountDirectory struct {
	mu    sync.RWMutex
	items map[string]policies.RecipientDetails
}

func NewPayoutAccountDirectory() *PayoutAccountDirectory {
	return &PayoutAccountDirectory{items: make(map[string]policies.RecipientDetails)}
}

func (d *PayoutAccountDirectory) Put(details policies.RecipientDetails) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items[details.OwnerID] = details
}

func (d *PayoutAccountDirectory) Details(ctx context.Context, ownerID string) (policies.RecipientDetails, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	details, ok := d.items[ownerID]
	if !ok {
		return policies.RecipientDetails{}, policies.ErrNoPayoutAccount
	}
	return details, nil
}

// TenantDirectory keeps tenant contact details for gateway charges.
type TenantDirectory struct {
	mu    sync.RWMutex
	items map[string]policies.Customer
}

func NewTenantDirectory() *TenantDirectory {
	return &TenantDirectory{items: make(map[string]policies.Customer)}
}

func (d *TenantDirectory) Put(tenantID string, c policies.Customer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items[tenantID] = c
}

func (d *TenantDirectory) Customer(ctx context.Context, tenantID string) (policies.Customer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.items[tenantID]
	if !ok {
		return policies.Customer{}, policies.ErrTenantNotFound
	}
	return c, nil
}

// SettingsStore is a key/value map of runtime settings.
type SettingsStore struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewSettingsStore() *SettingsStore {
	return &SettingsStore{items: make(map[string]string)}
}

func (s *SettingsStore) Put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
}

func (s *SettingsStore) Get(ctx context.Context, key, def string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.items[key]; ok {
		return v
	}
	return def
}

type calendarBlock struct {
	propertyID string
	r          daterange.DateRange
}

// Calendar is an in-memory availability calendar keyed by booking.
type Calendar struct {
	mu     sync.RWMutex
	blocks map[domainbooking.BookingID]calendarBlock
}

func NewCalendar() *Calendar {
	return &Calendar{blocks: make(map[domainbooking.BookingID]calendarBlock)}
}

func (c *Calendar) Block(ctx context.Context, propertyID string, r daterange.DateRange, id domainbooking.BookingID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for existingID, b := range c.blocks {
		if existingID == id {
			continue
		}
		if b.propertyID == propertyID && b.r.Overlaps(r) {
			return policies.ErrCalendarConflict
		}
	}
	c.blocks[id] = calendarBlock{propertyID: propertyID, r: r}
	return nil
}

func (c *Calendar) Unblock(ctx context.Context, id domainbooking.BookingID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.blocks, id)
	return nil
}

func (c *Calendar) HasOverlap(ctx context.Context, propertyID string, r daterange.DateRange) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, b := range c.blocks {
		if b.propertyID == propertyID && b.r.Overlaps(r) {
			return true, nil
		}
	}
	return false, nil
}

var (
	_ policies.Properties      = (*PropertyDirectory)(nil)
	_ policies.Subscriptions   = (*SubscriptionDirectory)(nil)
	_ policies.PayoutAccounts  = (*PayoutAccountDirectory)(nil)
	_ policies.TenantDirectory = (*TenantDirectory)(nil)
	_ policies.Settings        = (*SettingsStore)(nil)
	_ policies.Calendar        = (*Calendar)(nil)
)
