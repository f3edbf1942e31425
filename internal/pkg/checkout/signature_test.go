package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignatureRoundTrip(t *testing.T) {
	payload := []byte(`{"session_id":"cs_123","event_type":"checkout.session.completed"}`)
	secret := "whsec_test"

	sig := GenerateSignature(payload, secret)
	assert.NotEmpty(t, sig)
	assert.True(t, VerifySignature(payload, sig, secret))
}

func TestSignatureRejectsTampering(t *testing.T) {
	payload := []byte(`{"session_id":"cs_123","amount_paid":100}`)
	secret := "whsec_test"
	sig := GenerateSignature(payload, secret)

	tampered := []byte(`{"session_id":"cs_123","amount_paid":999}`)
	assert.False(t, VerifySignature(tampered, sig, secret))
	assert.False(t, VerifySignature(payload, sig, "other_secret"))
	assert.False(t, VerifySignature(payload, "", secret))
	assert.False(t, VerifySignature(payload, "not-hex", secret))
}
