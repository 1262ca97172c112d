// Package token issues and checks the two kinds of link tokens the portal
// hands out: opaque single-use values backed by the token store, and signed
// claim tokens whose liveness is mirrored on the invited account.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Token is what callers hand to the notifier or return to an admin.
type Token interface {
	String() string
	ExpiresAt() time.Time
}

// Clock returns the current time. Tests swap it to move through TTLs.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// Fingerprint is a short digest safe to put in logs in place of a token.
func Fingerprint(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:4])
}
