package sessions

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// TokenBytes is the entropy of a session token
const TokenBytes = 32

// TokenGenerator returns a new unguessable session token
type TokenGenerator func() (string, error)

// NewToken returns 32 random bytes, hex encoded
func NewToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
