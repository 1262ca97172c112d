package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/jwalitptl/careportal-api/internal/model"
	"github.com/jwalitptl/careportal-api/internal/repository"
	apperrors "github.com/jwalitptl/careportal-api/pkg/errors"
)

// OpaqueSize is the number of random bytes behind an opaque token.
const OpaqueSize = 32

// Opaque is an issued approval or password-reset token.
type Opaque struct {
	value     string
	expiresAt time.Time
	record    *model.OpaqueToken
}

func (o *Opaque) String() string { return o.value }

func (o *Opaque) ExpiresAt() time.Time { return o.expiresAt }

// Record is the stored row behind the token.
func (o *Opaque) Record() *model.OpaqueToken { return o.record }

// OpaqueIssuer mints opaque tokens and consumes them through a
// TokenRepository. The repository is passed per call so issuance can join
// the caller's transaction.
type OpaqueIssuer struct {
	random io.Reader
	now    Clock
}

func NewOpaqueIssuer(now Clock) *OpaqueIssuer {
	if now == nil {
		now = systemClock
	}
	return &OpaqueIssuer{random: rand.Reader, now: now}
}

// Issue persists a fresh token for email. Nothing is returned unless the
// write succeeded, so a caller can never mail a link the store will reject.
func (i *OpaqueIssuer) Issue(ctx context.Context, tokens repository.TokenRepository, kind model.TokenKind, email string, ttl time.Duration) (*Opaque, error) {
	buf := make([]byte, OpaqueSize)
	if _, err := io.ReadFull(i.random, buf); err != nil {
		return nil, apperrors.Internal(fmt.Errorf("generate token: %w", err))
	}

	now := i.now()
	record := &model.OpaqueToken{
		Kind:      kind,
		Email:     email,
		Token:     hex.EncodeToString(buf),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := tokens.Create(ctx, record); err != nil {
		return nil, err
	}
	return &Opaque{value: record.Token, expiresAt: record.ExpiresAt, record: record}, nil
}

// Consume marks the token used exactly once. email may be empty when the
// flow identifies the account by token alone.
func (i *OpaqueIssuer) Consume(ctx context.Context, tokens repository.TokenRepository, kind model.TokenKind, value, email string) (*model.OpaqueToken, error) {
	if !wellFormed(value) {
		return nil, apperrors.InvalidToken("invalid token", nil)
	}
	return tokens.Consume(ctx, kind, value, email, i.now())
}

// Peek reports whether the token would be accepted right now without
// consuming it.
func (i *OpaqueIssuer) Peek(ctx context.Context, tokens repository.TokenRepository, kind model.TokenKind, value, email string) (*model.OpaqueToken, error) {
	if !wellFormed(value) {
		return nil, apperrors.InvalidToken("invalid token", nil)
	}
	t, err := tokens.Get(ctx, kind, value)
	if err != nil {
		return nil, err
	}
	now := i.now()
	if (email != "" && t.Email != model.NormalizeEmail(email)) || t.Used || t.Expired(now) {
		return nil, repository.ClassifyTokenMiss(t, email, now)
	}
	return t, nil
}

func wellFormed(value string) bool {
	if len(value) != OpaqueSize*2 {
		return false
	}
	_, err := hex.DecodeString(value)
	return err == nil
}
