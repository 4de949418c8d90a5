package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"stayhub/internal/app/policies"
	"stayhub/internal/domain/shared/money"
)

// Gateway is a fake payment provider for dev mode and tests. Charges and
// transfers succeed immediately unless a failure is injected.
type Gateway struct {
	mu         sync.Mutex
	seq        atomic.Int64
	charges    map[string]money.Money
	refunds    map[string]money.Money
	transfers  map[string]money.Money
	recipients map[string]string

	FailRefunds   bool
	FailTransfers bool
	WebhookSecret string
}

func NewGateway() *Gateway {
	return &Gateway{
		charges:    make(map[string]money.Money),
		refunds:    make(map[string]money.Money),
		transfers:  make(map[string]money.Money),
		recipients: make(map[string]string),
	}
}

func (g *Gateway) InitializeCharge(ctx context.Context, amount money.Money, customer policies.Customer, metadata map[string]string) (policies.ChargeIntent, error) {
	ref := g.nextRef("ch")
	g.mu.Lock()
	g.charges[ref] = amount
	g.mu.Unlock()
	return policies.ChargeIntent{Reference: ref, RedirectURL: "https://pay.example/" + ref}, nil
}

func (g *Gateway) VerifyCharge(ctx context.Context, reference string) (policies.ChargeStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.charges[reference]; !ok {
		return "", fmt.Errorf("%w: unknown charge %s", policies.ErrGateway, reference)
	}
	return policies.ChargeCompleted, nil
}

func (g *Gateway) Refund(ctx context.Context, originalRef string, amount money.Money, metadata map[string]string) (string, error) {
	if g.FailRefunds {
		return "", fmt.Errorf("%w: refund rejected", policies.ErrGateway)
	}
	ref := g.nextRef("rf")
	g.mu.Lock()
	g.refunds[ref] = amount
	g.mu.Unlock()
	return ref, nil
}

func (g *Gateway) EnsureRecipient(ctx context.Context, details policies.RecipientDetails) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.recipients[details.OwnerID]; ok {
		return id, nil
	}
	id := fmt.Sprintf("rcp_%s", details.OwnerID)
	g.recipients[details.OwnerID] = id
	return id, nil
}

func (g *Gateway) InitiateTransfer(ctx context.Context, amount money.Money, recipientID string, metadata map[string]string) (policies.TransferResult, error) {
	if g.FailTransfers {
		return policies.TransferResult{}, fmt.Errorf("%w: transfer rejected", policies.ErrGateway)
	}
	ref := g.nextRef("tr")
	g.mu.Lock()
	g.transfers[ref] = amount
	g.mu.Unlock()
	return policies.TransferResult{Reference: ref, Status: policies.ChargeCompleted}, nil
}

func (g *Gateway) VerifyWebhookSignature(rawBody []byte, signature string) bool {
	if g.WebhookSecret == "" {
		return true
	}
	return signature == g.WebhookSecret
}

// Refunds returns the refunds issued so far, keyed by reference.
func (g *Gateway) Refunds() map[string]money.Money {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]money.Money, len(g.refunds))
	for k, v := range g.refunds {
		out[k] = v
	}
	return out
}

// Transfers returns the transfers issued so far, keyed by reference.
func (g *Gateway) Transfers() map[string]money.Money {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]money.Money, len(g.transfers))
	for k, v := range g.transfers {
		out[k] = v
	}
	return out
}

func (g *Gateway) nextRef(prefix string) string {
	return fmt.Sprintf("%s_%06d", prefix, g.seq.Add(1))
}

var _ policies.PaymentGateway = (*Gateway)(nil)
