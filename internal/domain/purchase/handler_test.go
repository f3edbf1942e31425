package purchase_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jobdesk/jobdesk-api/internal/domain/purchase"
	"github.com/jobdesk/jobdesk-api/internal/pkg/checkout"
)

const webhookSecret = "whsec_test"

func postWebhook(handler *purchase.Handler, payload, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/checkout", strings.NewReader(payload))
	if signature != "" {
		req.Header.Set("X-Signature", signature)
	}
	w := httptest.NewRecorder()
	handler.Webhook(w, req)
	return w
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	handler := purchase.NewHandler(nil, webhookSecret)

	payload := `{"event_type":"checkout.session.completed","session_id":"cs_1"}`
	w := postWebhook(handler, payload, "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postWebhook(handler, payload, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	handler := purchase.NewHandler(nil, webhookSecret)

	payload := `{"event_type":"checkout.session.completed"}`
	sig := checkout.GenerateSignature([]byte(payload), webhookSecret)

	w := postWebhook(handler, payload, sig)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
