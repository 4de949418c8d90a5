package ginserver

import (
	"encoding/json"
	"io"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"stayhub/internal/app/commands"
	bookingapp "stayhub/internal/app/handlers/booking"
	"stayhub/internal/app/policies"
	"stayhub/internal/infra/gateway/notchpay"
)

// SignatureVerifier authenticates a webhook body against its signature
// header.
type SignatureVerifier interface {
	VerifyWebhookSignature(rawBody []byte, signature string) bool
}

// WebhookHandler receives asynchronous payment notifications. The raw body is
// verified against the provider signature before anything is dispatched;
// unknown event types are acknowledged and dropped.
type WebhookHandler struct {
	Commands commands.Bus
	Verifier SignatureVerifier
}

type gatewayEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
	} `json:"data"`
}

func (h WebhookHandler) Gateway(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	if h.Verifier == nil || !h.Verifier.VerifyWebhookSignature(raw, c.GetHeader(notchpay.SignatureHeader)) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var evt gatewayEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	status, handled := chargeStatusForEvent(evt.Event)
	if !handled || evt.Data.Reference == "" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	cmd := bookingapp.ProcessGatewayEventCommand{
		Reference: evt.Data.Reference,
		Status:    status,
	}
	result, err := commands.Dispatch[bookingapp.ProcessGatewayEventCommand, *bookingapp.ProcessGatewayEventResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Reconcile asks the gateway for the authoritative charge status instead of
// trusting a stored one. Support uses it when a webhook went missing.
func (h WebhookHandler) Reconcile(c *gin.Context) {
	reference := c.Param("reference")
	if reference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference is required"})
		return
	}
	cmd := bookingapp.ReconcilePaymentCommand{Reference: reference}
	result, err := commands.Dispatch[bookingapp.ReconcilePaymentCommand, *bookingapp.ProcessGatewayEventResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func chargeStatusForEvent(event string) (policies.ChargeStatus, bool) {
	switch event {
	case "payment.success", "payment.complete":
		return policies.ChargeCompleted, true
	case "payment.failed":
		return policies.ChargeFailed, true
	case "payment.canceled", "payment.cancelled":
		return policies.ChargeCancelled, true
	default:
		return "", false
	}
}

var _ WebhookHTTP = WebhookHandler{}
