package entitlement

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	// TokenPrefix is the prefix for all Granta download tokens.
	TokenPrefix = "ent_"
	// tokenBytes is the entropy of the token body. 32 bytes encodes to 43
	// URL-safe characters.
	tokenBytes = 32
)

// GenerateToken returns a fresh opaque download token: the ent_ prefix
// followed by 256 bits of URL-safe random data.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate download token: %w", err)
	}
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// IsValidTokenFormat checks whether a string is shaped like a download token.
// Used to reject junk before hitting the database.
func IsValidTokenFormat(token string) bool {
	if !strings.HasPrefix(token, TokenPrefix) {
		return false
	}
	body := strings.TrimPrefix(token, TokenPrefix)
	if len(body) != base64.RawURLEncoding.EncodedLen(tokenBytes) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(body)
	return err == nil
}
