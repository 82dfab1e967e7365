package auth

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateTokenKey produces an opaque 40-character hex bearer token.
// Tokens carry no claims; they are looked up server-side, which keeps
// logout (deletion) and token-per-user reuse possible.
func GenerateTokenKey() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
