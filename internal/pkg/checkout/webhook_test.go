package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseWebhook(t *testing.T) {
	event, err := ParseWebhook([]byte(`{
		"event_type": "checkout.session.completed",
		"session_id": "cs_123",
		"payment_ref": "pay_456",
		"amount_paid": 14900
	}`))
	assert.NoError(t, err)
	assert.Equal(t, "cs_123", event.SessionID)
	assert.Equal(t, "pay_456", event.PaymentRef)
	assert.True(t, event.Succeeded())
	assert.True(t, event.Terminal())
}

func TestParseWebhookRejectsMissingSession(t *testing.T) {
	_, err := ParseWebhook([]byte(`{"event_type":"checkout.session.completed"}`))
	assert.Error(t, err)
}

func TestParseWebhookRejectsForeignEvent(t *testing.T) {
	_, err := ParseWebhook([]byte(`{"event_type":"invoice.paid","session_id":"cs_123"}`))
	assert.Error(t, err)
}

func TestParseWebhookRejectsGarbage(t *testing.T) {
	_, err := ParseWebhook([]byte(`not json`))
	assert.Error(t, err)
}

func TestWebhookEventClassification(t *testing.T) {
	failed := &WebhookEvent{EventType: EventSessionFailed, SessionID: "cs_1"}
	assert.False(t, failed.Succeeded())
	assert.True(t, failed.Terminal())

	expired := &WebhookEvent{EventType: EventSessionExpired, SessionID: "cs_1"}
	assert.False(t, expired.Succeeded())
	assert.True(t, expired.Terminal())

	other := &WebhookEvent{EventType: "checkout.session.updated", SessionID: "cs_1"}
	assert.False(t, other.Succeeded())
	assert.False(t, other.Terminal())
}
