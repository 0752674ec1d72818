package models

import "time"

// RefreshToken represents a refresh token stored in the database.
// Only the hash of the raw secret is ever persisted; the raw value
// leaves the process exactly once, at creation.
type RefreshToken struct {
	ID             string
	TokenHash      string
	UserID         string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	RevokedAt      *time.Time
	ReplacedByHash *string
}

// Active reports whether the token is neither revoked nor expired at now.
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && t.ExpiresAt.After(now)
}
