package security

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost, 8)

	hash, err := h.Hash("correct-horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct-horse", hash)

	assert.NoError(t, h.Compare(hash, "correct-horse"))
	assert.Error(t, h.Compare(hash, "wrong-horse"))
}

func TestBcryptHasherRejectsShortPassword(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost, 10)

	_, err := h.Hash("short")
	assert.True(t, errors.Is(err, ErrPasswordTooShort))
}

func TestPlaceholderNeverMatches(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost, 8)

	assert.True(t, IsPlaceholder(PlaceholderHash))
	assert.True(t, IsPlaceholder(""))
	assert.Error(t, h.Compare(PlaceholderHash, "!unset"))
	assert.Error(t, h.Compare(PlaceholderHash, ""))
}

func TestCheckNewPassword(t *testing.T) {
	assert.NoError(t, CheckNewPassword("s3cure-pass", "s3cure-pass", 8))
	assert.ErrorIs(t, CheckNewPassword("s3cure-pass", "s3cure-pas", 8), ErrPasswordMismatch)
	assert.ErrorIs(t, CheckNewPassword("abc", "abc", 8), ErrPasswordTooShort)
	assert.NoError(t, CheckNewPassword("abcdefgh", "abcdefgh", 0))

	long := strings.Repeat("a", MaxPasswordLen+1)
	assert.ErrorIs(t, CheckNewPassword(long, long, 8), ErrPasswordTooLong)
	edge := strings.Repeat("a", MaxPasswordLen)
	assert.NoError(t, CheckNewPassword(edge, edge, 8))
}

func TestBcryptHasherRejectsLongPassword(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost, 8)

	_, err := h.Hash(strings.Repeat("a", 80))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}
