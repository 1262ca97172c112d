package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/jwalitptl/careportal-api/pkg/errors"
)

// TypeRelativeSetup discriminates relative invitation tokens from every
// other token signed with the same key.
const TypeRelativeSetup = "relative-setup"

// RelativeSetupClaims is the payload of a relative invitation link. The ID
// (jti) is mirrored on the relative account; a resend replaces it.
type RelativeSetupClaims struct {
	UserID           uuid.UUID `json:"userId"`
	Email            string    `json:"email"`
	Type             string    `json:"type"`
	PatientID        uuid.UUID `json:"patientId"`
	PatientProfileID uuid.UUID `json:"patientProfileId,omitempty"`
	PatientName      string    `json:"patientName"`
	RelativeName     string    `json:"relativeName"`
	Relationship     string    `json:"relationship"`
	AccessLevel      string    `json:"accessLevel"`
	jwt.RegisteredClaims
}

// Claim is an issued, signed claim token.
type Claim struct {
	raw    string
	claims *RelativeSetupClaims
}

func (c *Claim) String() string { return c.raw }

func (c *Claim) ExpiresAt() time.Time { return c.claims.ExpiresAt.Time }

// ID is the jti the account mirrors to detect superseded links.
func (c *Claim) ID() string { return c.claims.ID }

func (c *Claim) Claims() *RelativeSetupClaims { return c.claims }

// ClaimIssuer signs and verifies claim tokens with a process-wide HMAC key.
// Rotating the key invalidates every outstanding token.
type ClaimIssuer struct {
	secret []byte
	issuer string
	now    Clock
}

func NewClaimIssuer(secret, issuer string, now Clock) *ClaimIssuer {
	if now == nil {
		now = systemClock
	}
	return &ClaimIssuer{secret: []byte(secret), issuer: issuer, now: now}
}

// Issue signs claims with a fresh jti and the given ttl.
func (i *ClaimIssuer) Issue(claims RelativeSetupClaims, ttl time.Duration) (*Claim, error) {
	now := i.now()
	claims.Type = TypeRelativeSetup
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    i.issuer,
		Subject:   claims.UserID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(i.secret)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("sign claim token: %w", err))
	}
	return &Claim{raw: raw, claims: &claims}, nil
}

// Verify checks signature, algorithm and type. It proves authenticity only;
// callers must still check the account-side invitation state.
func (i *ClaimIssuer) Verify(raw, expectedType string) (*RelativeSetupClaims, error) {
	claims := &RelativeSetupClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, apperrors.Expired("invitation link has expired")
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, apperrors.InvalidToken("malformed invitation token", err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, apperrors.InvalidToken("invalid invitation signature", err)
		default:
			return nil, apperrors.InvalidToken("invalid invitation token", err)
		}
	}
	if claims.Type != expectedType {
		return nil, apperrors.InvalidToken("token type mismatch", nil)
	}
	if claims.UserID == uuid.Nil || claims.ID == "" {
		return nil, apperrors.InvalidToken("malformed invitation token", nil)
	}
	return claims, nil
}
