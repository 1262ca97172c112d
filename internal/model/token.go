package model

import (
	"time"

	"github.com/google/uuid"
)

// TokenKind discriminates the opaque single-use tokens sharing user_tokens.
type TokenKind string

const (
	TokenApproval      TokenKind = "approval"
	TokenPasswordReset TokenKind = "password_reset"
)

// OpaqueToken is the stored record behind an approval or password-reset link.
type OpaqueToken struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Kind      TokenKind  `json:"kind" db:"kind"`
	Email     string     `json:"email" db:"email"`
	Token     string     `json:"-" db:"token"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	Used      bool       `json:"used" db:"used"`
	UsedAt    *time.Time `json:"used_at,omitempty" db:"used_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// Expired reports whether the token is past its expiry at now. Expiry is
// always checked actively; the reaper only removes old rows.
func (t *OpaqueToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
