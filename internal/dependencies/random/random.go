package random

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// Random provides identifier and nonce generation that can be mocked for testing
type Random interface {
	// UUID returns a new random (version 4) UUID in canonical form
	UUID() string

	// Nonce returns n random bytes hex-encoded
	Nonce(n int) string
}

// CryptoRandom implements Random using crypto/rand
type CryptoRandom struct{}

// New creates a new CryptoRandom
func New() *CryptoRandom {
	return &CryptoRandom{}
}

// UUID returns a new random UUID
func (r *CryptoRandom) UUID() string {
	return uuid.NewString()
}

// Nonce returns n cryptographically random bytes, hex-encoded
func (r *CryptoRandom) Nonce(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand.Read does not fail on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b)
}
