package billing

import (
	"context"
	"errors"
	"time"

	"stayhub/internal/domain/booking"
	"stayhub/internal/domain/shared/money"
)

var (
	ErrTransactionNotFound = errors.New("billing: transaction not found")
	ErrTransactionFinal    = errors.New("billing: transaction already reached a terminal status")
)

type TransactionType string

const (
	TransactionPayment    TransactionType = "payment"
	TransactionRefund     TransactionType = "refund"
	TransactionPayout     TransactionType = "payout"
	TransactionCommission TransactionType = "commission"
	TransactionAdjustment TransactionType = "adjustment"
)

type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "pending"
	TransactionProcessing TransactionStatus = "processing"
	TransactionCompleted  TransactionStatus = "completed"
	TransactionFailed     TransactionStatus = "failed"
	TransactionCancelled  TransactionStatus = "cancelled"
)

// Transaction is an append-only ledger row for a financial event. Terminal
// rows never change again except to attach a late external reference.
type Transaction struct {
	ID          string
	Type        TransactionType
	Status      TransactionStatus
	Amount      money.Money
	UserID      string
	BookingID   booking.BookingID
	PayoutID    string
	ExternalRef string
	Description string
	// ReviewNote carries the reason a row is parked for manual review.
	ReviewNote  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
}

type TransactionRepository interface {
	ByID(ctx context.Context, id string) (*Transaction, error)
	ByExternalRef(ctx context.Context, ref string) (*Transaction, error)
	LatestByBooking(ctx context.Context, id booking.BookingID, txType TransactionType) (*Transaction, error)
	Save(ctx context.Context, tx *Transaction) error
}

func NewTransaction(id string, txType TransactionType, amount money.Money, userID string, bookingID booking.BookingID, description string, now time.Time) *Transaction {
	ts := now.UTC()
	return &Transaction{
		ID:          id,
		Type:        txType,
		Status:      TransactionPending,
		Amount:      amount,
		UserID:      userID,
		BookingID:   bookingID,
		Description: description,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
}

func (t *Transaction) IsTerminal() bool {
	switch t.Status {
	case TransactionCompleted, TransactionFailed, TransactionCancelled:
		return true
	}
	return false
}

func (t *Transaction) MarkProcessing(now time.Time) error {
	if t.IsTerminal() {
		return ErrTransactionFinal
	}
	t.Status = TransactionProcessing
	t.UpdatedAt = now.UTC()
	return nil
}

func (t *Transaction) MarkCompleted(externalRef string, now time.Time) error {
	if t.IsTerminal() {
		return ErrTransactionFinal
	}
	ts := now.UTC()
	t.Status = TransactionCompleted
	if externalRef != "" {
		t.ExternalRef = externalRef
	}
	t.ProcessedAt = &ts
	t.UpdatedAt = ts
	return nil
}

func (t *Transaction) MarkFailed(reason string, now time.Time) error {
	if t.IsTerminal() {
		return ErrTransactionFinal
	}
	t.Status = TransactionFailed
	t.ReviewNote = reason
	t.UpdatedAt = now.UTC()
	return nil
}

// ParkForReview leaves the row pending with a note for manual handling, the
// path taken when a gateway refund fails mid-cancellation.
func (t *Transaction) ParkForReview(note string, now time.Time) error {
	if t.IsTerminal() {
		return ErrTransactionFinal
	}
	t.Status = TransactionPending
	t.ReviewNote = note
	t.UpdatedAt = now.UTC()
	return nil
}

// AttachExternalRef is the only mutation allowed on a terminal row.
func (t *Transaction) AttachExternalRef(ref string, now time.Time) {
	if ref == "" || t.ExternalRef != "" {
		return
	}
	t.ExternalRef = ref
	t.UpdatedAt = now.UTC()
}
