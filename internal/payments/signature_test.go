package payments

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign(t *testing.T) {
	sig := Sign([]byte(`{"type":"payment.completed"}`), []byte("secret"))
	assert.True(t, strings.HasPrefix(sig, "sha256="))
	assert.Len(t, sig, len("sha256=")+64)
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"type":"payment.completed","processor_ref":"ch_1"}`)
	secret := []byte("webhook-secret")
	sig := Sign(payload, secret)

	assert.True(t, VerifySignature(payload, sig, secret))
	assert.False(t, VerifySignature(payload, sig, []byte("wrong-secret")))
	assert.False(t, VerifySignature([]byte(`{"tampered":true}`), sig, secret))
	assert.False(t, VerifySignature(payload, "", secret))
	assert.False(t, VerifySignature(payload, "sha256=deadbeef", secret))
	assert.False(t, VerifySignature(payload, strings.TrimPrefix(sig, "sha256="), secret))
}
