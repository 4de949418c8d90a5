package booking

import (
	"context"
	"log/slog"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/handlers/support"
	"stayhub/internal/app/outbox"
	"stayhub/internal/app/policies"
	"stayhub/internal/app/uow"
)

const reconcilePaymentKey = "booking.reconcile_payment"

type ReconcilePaymentCommand struct {
	Reference string
}

func (c ReconcilePaymentCommand) Key() string { return reconcilePaymentKey }

// ManagesOwnTransaction: the status check is a gateway round trip and must
// not run inside a database transaction.
func (c ReconcilePaymentCommand) ManagesOwnTransaction() {}

// ReconcilePaymentHandler asks the gateway for the authoritative status of a
// charge and projects it exactly like a webhook notification would. Support
// runs it when a webhook was lost or a customer disputes a payment state.
type ReconcilePaymentHandler struct {
	UoWFactory    uow.UoWFactory
	Gateway       policies.PaymentGateway
	Subscriptions policies.Subscriptions
	Outbox        outbox.Outbox
	Encoder       outbox.EventEncoder
	Logger        *slog.Logger
}

func (h *ReconcilePaymentHandler) Handle(ctx context.Context, cmd ReconcilePaymentCommand) (*ProcessGatewayEventResult, error) {
	status, err := h.Gateway.VerifyCharge(ctx, cmd.Reference)
	if err != nil {
		return nil, err
	}
	if h.Logger != nil {
		h.Logger.Info("charge verified against gateway", "reference", cmd.Reference, "status", status)
	}

	projector := &ProcessGatewayEventHandler{
		Subscriptions: h.Subscriptions,
		Outbox:        h.Outbox,
		Encoder:       h.Encoder,
		Logger:        h.Logger,
	}
	var res *ProcessGatewayEventResult
	err = support.RunInUnit(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		res, err = projector.Handle(ctx, ProcessGatewayEventCommand{Reference: cmd.Reference, Status: status})
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

var _ commands.Handler[ReconcilePaymentCommand, *ProcessGatewayEventResult] = (*ReconcilePaymentHandler)(nil)
