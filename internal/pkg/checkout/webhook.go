package checkout

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Webhook event types sent by the provider. Delivery is at-least-once:
// duplicates and out-of-order events are expected.
const (
	EventSessionCompleted = "checkout.session.completed"
	EventSessionFailed    = "checkout.session.failed"
	EventSessionExpired   = "checkout.session.expired"
)

// WebhookEvent is a provider completion notification
type WebhookEvent struct {
	EventType  string  `json:"event_type"`
	SessionID  string  `json:"session_id"`
	PaymentRef string  `json:"payment_ref,omitempty"`
	AmountPaid float64 `json:"amount_paid,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// ParseWebhook decodes and minimally validates a webhook payload
func ParseWebhook(payload []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}

	if strings.TrimSpace(event.SessionID) == "" {
		return nil, fmt.Errorf("invalid webhook payload: missing session_id")
	}
	if !strings.HasPrefix(event.EventType, "checkout.session.") {
		return nil, fmt.Errorf("invalid webhook payload: unsupported event_type %q", event.EventType)
	}

	return &event, nil
}

// Succeeded reports whether the event confirms a completed payment
func (e *WebhookEvent) Succeeded() bool {
	return e.EventType == EventSessionCompleted
}

// Terminal reports whether the event ends the session lifecycle
func (e *WebhookEvent) Terminal() bool {
	switch e.EventType {
	case EventSessionCompleted, EventSessionFailed, EventSessionExpired:
		return true
	}
	return false
}
