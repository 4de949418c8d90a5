package payout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/handlers/support"
	"stayhub/internal/app/middleware"
	"stayhub/internal/app/outbox"
	"stayhub/internal/app/policies"
	"stayhub/internal/app/uow"
	domainbilling "stayhub/internal/domain/billing"
	domainbooking "stayhub/internal/domain/booking"
	domainpayout "stayhub/internal/domain/payout"
)

const executeReadyKey = "payout.execute_ready"

type ExecuteReadyCommand struct {
	Now time.Time
}

func (c ExecuteReadyCommand) Key() string { return executeReadyKey }

// ManagesOwnTransaction: each payout is claimed, transferred and finalized in
// separate short transactions so the gateway round trip never holds a lock.
func (c ExecuteReadyCommand) ManagesOwnTransaction() {}

type ExecuteReadyResult struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Deferred  int `json:"deferred"`
}

// ExecuteReadyHandler disburses every ready payout through the payment
// gateway. A payout is claimed (ready -> processing) before the transfer; the
// optimistic version check on Save makes the claim exclusive, so concurrent
// workers cannot pay the same payout twice.
type ExecuteReadyHandler struct {
	UoWFactory uow.UoWFactory
	Gateway    policies.PaymentGateway
	Accounts   policies.PayoutAccounts
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Logger     *slog.Logger
}

func (h *ExecuteReadyHandler) Handle(ctx context.Context, cmd ExecuteReadyCommand) (*ExecuteReadyResult, error) {
	now := cmd.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var readyIDs []string
	err := support.RunInUnit(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		ready, err := unit.Payouts().ListReady(ctx)
		if err != nil {
			return err
		}
		for _, p := range ready {
			readyIDs = append(readyIDs, p.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &ExecuteReadyResult{}
	for _, id := range readyIDs {
		outcome, err := h.executeOne(ctx, id, now)
		if err != nil {
			if h.Logger != nil {
				h.Logger.Error("payout execution errored", "payout_id", id, "error", err)
			}
			continue
		}
		switch outcome {
		case outcomeCompleted:
			result.Completed++
		case outcomeFailed:
			result.Failed++
		case outcomeDeferred:
			result.Deferred++
		}
	}
	return result, nil
}

type executionOutcome int

const (
	outcomeSkipped executionOutcome = iota
	outcomeCompleted
	outcomeFailed
	outcomeDeferred
)

func (h *ExecuteReadyHandler) executeOne(ctx context.Context, payoutID string, now time.Time) (executionOutcome, error) {
	var (
		claimed *domainpayout.Payout
		details policies.RecipientDetails
	)

	// Claim first. A version conflict here means another worker got it.
	err := support.RunInUnit(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		p, err := unit.Payouts().ByID(ctx, payoutID)
		if err != nil {
			return err
		}
		if err := p.BeginProcessing(now); err != nil {
			return err
		}
		if err := unit.Payouts().Save(ctx, p); err != nil {
			return err
		}
		claimed = p
		return nil
	})
	if err != nil {
		if errors.Is(err, domainpayout.ErrInvalidState) {
			return outcomeSkipped, nil
		}
		return outcomeSkipped, err
	}

	// Any directory problem releases the claim: a payout stuck in
	// processing has no recovery path, so transient lookup failures defer
	// exactly like a missing account.
	deferNote := ""
	if h.Accounts == nil {
		deferNote = "owner has no payout account on file"
	} else if details, err = h.Accounts.Details(ctx, claimed.OwnerID); err != nil {
		if errors.Is(err, policies.ErrNoPayoutAccount) {
			deferNote = "owner has no payout account on file"
		} else {
			deferNote = "payout account lookup failed: " + err.Error()
		}
	}
	if deferNote != "" {
		err := support.RunInUnit(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
			p, err := unit.Payouts().ByID(ctx, payoutID)
			if err != nil {
				return err
			}
			if err := p.ReturnToPending(deferNote, now); err != nil {
				return err
			}
			return unit.Payouts().Save(ctx, p)
		})
		if err != nil {
			return outcomeSkipped, err
		}
		return outcomeDeferred, nil
	}

	transferRef, transferErr := h.transfer(ctx, claimed, details)

	var outcome executionOutcome
	err = support.RunInUnit(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		p, err := unit.Payouts().ByID(ctx, payoutID)
		if err != nil {
			return err
		}
		if transferErr != nil {
			if err := p.Fail(transferErr.Error(), now); err != nil {
				return err
			}
			outcome = outcomeFailed
		} else {
			if err := p.Complete(transferRef, now); err != nil {
				return err
			}
			if err := h.recordLedgerRow(ctx, unit, p, transferRef, now); err != nil {
				return err
			}
			outcome = outcomeCompleted
		}
		if err := unit.Payouts().Save(ctx, p); err != nil {
			return err
		}
		evs := p.PendingEvents()
		p.ClearEvents()
		return outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, evs)
	})
	if err != nil {
		return outcomeSkipped, err
	}
	return outcome, nil
}

func (h *ExecuteReadyHandler) transfer(ctx context.Context, p *domainpayout.Payout, details policies.RecipientDetails) (string, error) {
	recipientID, err := h.Gateway.EnsureRecipient(ctx, details)
	if err != nil {
		return "", err
	}
	res, err := h.Gateway.InitiateTransfer(ctx, p.Amount, recipientID, map[string]string{"payout_id": p.ID})
	if err != nil {
		return "", err
	}
	return res.Reference, nil
}

func (h *ExecuteReadyHandler) recordLedgerRow(ctx context.Context, unit uow.UnitOfWork, p *domainpayout.Payout, ref string, now time.Time) error {
	// batched payouts span bookings, so the link is only set when unambiguous
	var bookingID domainbooking.BookingID
	if len(p.BookingIDs) == 1 {
		bookingID = p.BookingIDs[0]
	}
	row := domainbilling.NewTransaction(uuid.NewString(), domainbilling.TransactionPayout, p.Amount, p.OwnerID, bookingID, "owner payout disbursement", now)
	row.PayoutID = p.ID
	if err := row.MarkCompleted(ref, now); err != nil {
		return err
	}
	return unit.Transactions().Save(ctx, row)
}

var _ commands.Handler[ExecuteReadyCommand, *ExecuteReadyResult] = (*ExecuteReadyHandler)(nil)
var _ middleware.SelfManagedTx = ExecuteReadyCommand{}
