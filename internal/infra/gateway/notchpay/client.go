package notchpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"stayhub/internal/app/policies"
	"stayhub/internal/domain/shared/money"
)

// SignatureHeader carries the webhook HMAC computed over the raw body.
const SignatureHeader = "X-Notch-Signature"

// Client talks to the NotchPay REST API. Charges authenticate with the public
// key, transfers and recipient management with the secret key.
type Client struct {
	HTTP       *http.Client
	BaseURL    string
	PublicKey  string
	SecretKey  string
	WebhookKey string
	Logger     *slog.Logger
}

func (c *Client) InitializeCharge(ctx context.Context, amount money.Money, customer policies.Customer, metadata map[string]string) (policies.ChargeIntent, error) {
	payload := map[string]any{
		"currency":    amount.Currency,
		"amount":      amount.Amount,
		"description": "stay payment",
		"customer": map[string]string{
			"email": customer.Email,
			"phone": customer.Phone,
			"name":  customer.Name,
		},
	}
	if len(metadata) > 0 {
		payload["metadata"] = metadata
	}

	var resp struct {
		Transaction struct {
			Reference string `json:"reference"`
		} `json:"transaction"`
		AuthorizationURL string `json:"authorization_url"`
	}
	if err := c.do(ctx, http.MethodPost, "/payments", c.PublicKey, payload, &resp); err != nil {
		return policies.ChargeIntent{}, err
	}
	return policies.ChargeIntent{
		Reference:   resp.Transaction.Reference,
		RedirectURL: resp.AuthorizationURL,
	}, nil
}

func (c *Client) VerifyCharge(ctx context.Context, reference string) (policies.ChargeStatus, error) {
	var resp struct {
		Transaction struct {
			Status string `json:"status"`
		} `json:"transaction"`
	}
	if err := c.do(ctx, http.MethodGet, "/payments/"+reference, c.PublicKey, nil, &resp); err != nil {
		return "", err
	}
	return mapStatus(resp.Transaction.Status), nil
}

func (c *Client) Refund(ctx context.Context, originalRef string, amount money.Money, metadata map[string]string) (string, error) {
	payload := map[string]any{
		"payment":  originalRef,
		"currency": amount.Currency,
		"amount":   amount.Amount,
	}
	if len(metadata) > 0 {
		payload["metadata"] = metadata
	}
	var resp struct {
		Refund struct {
			Reference string `json:"reference"`
		} `json:"refund"`
	}
	if err := c.do(ctx, http.MethodPost, "/refunds", c.SecretKey, payload, &resp); err != nil {
		return "", err
	}
	return resp.Refund.Reference, nil
}

func (c *Client) EnsureRecipient(ctx context.Context, details policies.RecipientDetails) (string, error) {
	var list struct {
		Data []struct {
			ID        string `json:"id"`
			Reference string `json:"reference"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/recipients", c.SecretKey, nil, &list); err != nil {
		return "", err
	}
	for _, existing := range list.Data {
		if existing.Reference == details.OwnerID {
			return existing.ID, nil
		}
	}

	payload := map[string]any{
		"channel":   details.Channel,
		"number":    details.Number,
		"email":     details.Email,
		"name":      details.Name,
		"country":   details.Country,
		"reference": details.OwnerID,
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/recipients", c.SecretKey, payload, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (c *Client) InitiateTransfer(ctx context.Context, amount money.Money, recipientID string, metadata map[string]string) (policies.TransferResult, error) {
	payload := map[string]any{
		"currency":  amount.Currency,
		"amount":    amount.Amount,
		"recipient": recipientID,
	}
	if len(metadata) > 0 {
		payload["metadata"] = metadata
	}
	var resp struct {
		Transaction struct {
			Reference string `json:"reference"`
			Status    string `json:"status"`
		} `json:"transaction"`
	}
	if err := c.do(ctx, http.MethodPost, "/transfers", c.SecretKey, payload, &resp); err != nil {
		return policies.TransferResult{}, err
	}
	return policies.TransferResult{
		Reference: resp.Transaction.Reference,
		Status:    mapStatus(resp.Transaction.Status),
	}, nil
}

// VerifyWebhookSignature compares the HMAC-SHA256 of the raw body against the
// provided header in constant time.
func (c *Client) VerifyWebhookSignature(rawBody []byte, signature string) bool {
	if signature == "" || c.WebhookKey == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.WebhookKey))
	mac.Write(rawBody)
	computed := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(computed), []byte(signature))
}

func (c *Client) do(ctx context.Context, method, path, key string, payload, out any) error {
	if c.HTTP == nil || c.BaseURL == "" {
		return fmt.Errorf("%w: notchpay client not configured", policies.ErrGateway)
	}
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", key)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.logError(method, path, err)
		return errors.Join(policies.ErrGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("%w: %s %s returned status %d: %s", policies.ErrGateway, method, path, resp.StatusCode, string(snippet))
		c.logError(method, path, err)
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.logError(method, path, err)
		return errors.Join(policies.ErrGateway, err)
	}
	return nil
}

func (c *Client) logError(method, path string, err error) {
	if c.Logger == nil {
		return
	}
	c.Logger.Error("notchpay request failed", "method", method, "path", path, "error", err)
}

func mapStatus(raw string) policies.ChargeStatus {
	switch raw {
	case "complete", "completed", "success", "successful":
		return policies.ChargeCompleted
	case "failed", "rejected", "expired":
		return policies.ChargeFailed
	case "canceled", "cancelled":
		return policies.ChargeCancelled
	case "processing":
		return policies.ChargeProcessing
	default:
		return policies.ChargePending
	}
}

var _ policies.PaymentGateway = (*Client)(nil)
