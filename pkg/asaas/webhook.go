package asaas

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Gateway-Signature"

// Webhook event types handled by the billing engine.
const (
	EventPaymentConfirmed        = "PAYMENT_CONFIRMED"
	EventPaymentReceived         = "PAYMENT_RECEIVED"
	EventPaymentOverdue          = "PAYMENT_OVERDUE"
	EventPaymentDeleted          = "PAYMENT_DELETED"
	EventPaymentRefunded         = "PAYMENT_REFUNDED"
	EventSubscriptionDeleted     = "SUBSCRIPTION_DELETED"
	EventSubscriptionInactivated = "SUBSCRIPTION_INACTIVATED"
)

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// WebhookEvent is the envelope the gateway posts to the webhook endpoint.
type WebhookEvent struct {
	ID           string        `json:"id"`
	Event        string        `json:"event"`
	DateCreated  string        `json:"dateCreated"`
	Payment      *Payment      `json:"payment,omitempty"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

// SubscriptionID returns the gateway subscription the event refers to.
func (e WebhookEvent) SubscriptionID() string {
	if e.Subscription != nil && e.Subscription.ID != "" {
		return e.Subscription.ID
	}
	if e.Payment != nil {
		return e.Payment.Subscription
	}
	return ""
}

// Sign computes the signature the gateway attaches to a payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares the header against the expected HMAC in constant time.
func VerifySignature(secret string, payload []byte, header string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}
	if strings.TrimSpace(secret) == "" {
		return fmt.Errorf("%w: signing secret not configured", ErrInvalidSignature)
	}
	provided, err := hex.DecodeString(strings.TrimPrefix(header, "sha256="))
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// ParseWebhookEvent decodes a verified webhook body.
func ParseWebhookEvent(payload []byte) (WebhookEvent, error) {
	var evt WebhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return WebhookEvent{}, fmt.Errorf("decode webhook event: %w", err)
	}
	if strings.TrimSpace(evt.ID) == "" {
		return WebhookEvent{}, errors.New("webhook event id is required")
	}
	if strings.TrimSpace(evt.Event) == "" {
		return WebhookEvent{}, errors.New("webhook event type is required")
	}
	return evt, nil
}
