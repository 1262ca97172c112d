package security

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrHashingFailed    = errors.New("password hashing failed")
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrPasswordMismatch = errors.New("passwords do not match")
	MinPasswordLen      = 8
)

// MaxPasswordLen is the longest input bcrypt accepts, in bytes.
const MaxPasswordLen = 72

// PlaceholderHash is stored for identities that have not chosen a password
// yet. It is not a valid bcrypt hash, so Compare always fails against it.
const PlaceholderHash = "!unset"

// IsPlaceholder reports whether hash is the unusable placeholder credential.
func IsPlaceholder(hash string) bool {
	return hash == "" || strings.HasPrefix(hash, "!")
}

// PasswordHasher provides interface for password operations
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hashedPassword, password string) error
}

type bcryptHasher struct {
	cost   int
	minLen int
}

// NewBcryptHasher creates a new password hasher using bcrypt
func NewBcryptHasher(cost, minLen int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	if minLen <= 0 {
		minLen = MinPasswordLen
	}
	return &bcryptHasher{cost: cost, minLen: minLen}
}

func (b *bcryptHasher) Hash(password string) (string, error) {
	if len(password) < b.minLen {
		return "", fmt.Errorf("%w: must be at least %d characters", ErrPasswordTooShort, b.minLen)
	}
	if len(password) > MaxPasswordLen {
		return "", fmt.Errorf("%w: must be at most %d bytes", ErrPasswordTooLong, MaxPasswordLen)
	}

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", ErrHashingFailed
	}
	return string(bytes), nil
}

func (b *bcryptHasher) Compare(hashedPassword, password string) error {
	if IsPlaceholder(hashedPassword) {
		return bcrypt.ErrMismatchedHashAndPassword
	}
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// CheckNewPassword applies the shared rules for a password chosen through a
// token-gated flow.
func CheckNewPassword(password, confirm string, minLen int) error {
	if minLen <= 0 {
		minLen = MinPasswordLen
	}
	if password != confirm {
		return ErrPasswordMismatch
	}
	if len(password) < minLen {
		return fmt.Errorf("%w: must be at least %d characters", ErrPasswordTooShort, minLen)
	}
	if len(password) > MaxPasswordLen {
		return fmt.Errorf("%w: must be at most %d bytes", ErrPasswordTooLong, MaxPasswordLen)
	}
	return nil
}
