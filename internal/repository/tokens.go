package repository

import (
	"time"

	"github.com/jwalitptl/careportal-api/internal/model"
	apperrors "github.com/jwalitptl/careportal-api/pkg/errors"
)

// ClassifyTokenMiss explains why a stored token could not be consumed. An
// email mismatch reads as an unknown token so callers cannot probe which
// addresses hold live links.
func ClassifyTokenMiss(t *model.OpaqueToken, email string, now time.Time) error {
	switch {
	case email != "" && t.Email != model.NormalizeEmail(email):
		return apperrors.InvalidToken("invalid token", nil)
	case t.Used:
		return apperrors.AlreadyUsed("this link has already been used")
	case t.Expired(now):
		return apperrors.Expired("this link has expired")
	default:
		return apperrors.InvalidToken("invalid token", nil)
	}
}
