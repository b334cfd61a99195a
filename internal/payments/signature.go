package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the webhook signature on incoming requests.
const SignatureHeader = "X-Granta-Signature"

// Sign computes the signature for a payload: sha256= followed by the hex
// HMAC-SHA256 of the raw body under the shared secret.
func Sign(payload, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature verifies an incoming webhook signature in constant time.
func VerifySignature(payload []byte, signature string, secret []byte) bool {
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
