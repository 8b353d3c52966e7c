package domain

import "time"

// RefreshToken is an opaque session credential with rotation support.
// The token value itself is the primary key; there is no derived identifier.
// UserAgent and IP are captured at issuance for audit only.
type RefreshToken struct {
	Token           string
	UserID          string
	ExpiresAt       time.Time
	CreatedAt       time.Time
	RevokedAt       *time.Time
	ReplacedByToken *string
	UserAgent       *string
	IP              *string
}

// IsExpired reports whether the token has elapsed its validity window.
func (t RefreshToken) IsExpired(at time.Time) bool {
	return !t.ExpiresAt.After(at)
}

// IsRevoked reports whether the token has been revoked.
func (t RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsActive reports whether the token can still be presented for rotation:
// not revoked and not expired at the supplied moment.
func (t RefreshToken) IsActive(at time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(at)
}

// WasRotated reports whether the token was revoked as part of rotation.
// Presenting such a token again is the replay signal that triggers
// whole-chain revocation for the owning user.
func (t RefreshToken) WasRotated() bool {
	return t.RevokedAt != nil && t.ReplacedByToken != nil
}

// Revoke marks the token as revoked. Returns true when the token
// transitioned to the revoked state; revoking twice is a no-op.
func (t *RefreshToken) Revoke(at time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	revoked := at
	t.RevokedAt = &revoked
	return true
}
