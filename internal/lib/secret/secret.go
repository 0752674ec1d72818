// Package secret holds the credential hashing primitives: slow adaptive
// hashing for passwords and fast digesting for opaque refresh secrets.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// tokenBytes is the entropy of a raw refresh secret (256 bits).
const tokenBytes = 32

// Hasher hashes passwords with bcrypt and refresh secrets with
// peppered SHA-256. Refresh secrets are already high-entropy random
// values, so a fast digest is enough there.
type Hasher struct {
	bcryptCost int
	pepper     string
}

// NewHasher builds a Hasher. cost outside bcrypt's valid range falls
// back to bcrypt.DefaultCost.
func NewHasher(cost int, pepper string) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{bcryptCost: cost, pepper: pepper}
}

// HashPassword returns the bcrypt hash of a raw password.
func (h *Hasher) HashPassword(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("bcrypt: %w", err)
	}
	return hash, nil
}

// VerifyPassword reports whether password matches hash.
// bcrypt's comparison does not leak timing on mismatch position.
func (h *Hasher) VerifyPassword(password string, hash []byte) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// GenerateToken produces a raw refresh secret: 32 bytes from the
// CSPRNG, URL-safe base64. An entropy source failure is returned as
// an error, never papered over with a weaker source.
func (h *Hasher) GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("secure random unavailable: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken computes the peppered SHA-256 digest of a raw refresh
// secret. This is the only form that ever reaches storage.
func (h *Hasher) HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw + h.pepper))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
