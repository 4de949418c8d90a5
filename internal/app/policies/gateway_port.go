package policies

import (
	"context"
	"errors"

	"stayhub/internal/domain/shared/money"
)

// ErrGateway wraps every failure coming back from the payment provider so
// orchestration code can contain it per-step.
var ErrGateway = errors.New("gateway: call failed")

// ChargeStatus is the provider-neutral status of a charge or transfer.
type ChargeStatus string

const (
	ChargePending    ChargeStatus = "pending"
	ChargeProcessing ChargeStatus = "processing"
	ChargeCompleted  ChargeStatus = "completed"
	ChargeFailed     ChargeStatus = "failed"
	ChargeCancelled  ChargeStatus = "cancelled"
)

// Customer identifies the paying tenant towards the gateway.
type Customer struct {
	Email string
	Phone string
	Name  string
}

// ChargeIntent is the result of initializing a charge; completion arrives
// later through a webhook.
type ChargeIntent struct {
	Reference   string
	RedirectURL string
}

// TransferResult reports an initiated disbursement.
type TransferResult struct {
	Reference string
	Status    ChargeStatus
}

// RecipientDetails carries an owner's payout destination.
type RecipientDetails struct {
	OwnerID string
	Channel string
	Number  string
	Email   string
	Name    string
	Country string
}

// PaymentGateway is the narrow contract the financial core needs from the
// payment provider. Every call is blocking I/O with a bounded timeout and may
// fail; completion of charges and transfers must never be assumed synchronous.
type PaymentGateway interface {
	InitializeCharge(ctx context.Context, amount money.Money, customer Customer, metadata map[string]string) (ChargeIntent, error)
	VerifyCharge(ctx context.Context, reference string) (ChargeStatus, error)
	Refund(ctx context.Context, originalRef string, amount money.Money, metadata map[string]string) (string, error)
	EnsureRecipient(ctx context.Context, details RecipientDetails) (string, error)
	InitiateTransfer(ctx context.Context, amount money.Money, recipientID string, metadata map[string]string) (TransferResult, error)
	VerifyWebhookSignature(rawBody []byte, signature string) bool
}
