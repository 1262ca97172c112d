package account

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/careportal-api/internal/model"
	apperrors "github.com/jwalitptl/careportal-api/pkg/errors"
)

func TestPasswordReset_Flow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doctor := f.seed(t, model.RoleDoctor, "d@x.com", "Doc", "Tor")

	res, err := f.svc.SendPasswordReset(ctx, doctor.ID, uuid.New())
	require.NoError(t, err)
	assert.True(t, res.EmailSent)
	assert.Empty(t, res.ResetToken)
	assert.Equal(t, f.now.Add(24*time.Hour), res.ExpiresAt)

	mail := f.mailer.last(t)
	assert.Equal(t, "password_reset", mail.template)
	tok := tokenFrom(t, mail.link)

	require.NoError(t, f.svc.ResetPassword(ctx, tok, "correct-horse", "correct-horse"))

	updated := f.actor(t, doctor.ID)
	assert.NoError(t, f.hasher.Compare(updated.PasswordHash, "correct-horse"))
	require.NotNil(t, updated.PasswordChangedAt)
	assert.Equal(t, f.now, *updated.PasswordChangedAt)

	err = f.svc.ResetPassword(ctx, tok, "another-pass", "another-pass")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrAlreadyUsed))
}

func TestResetPassword_ExpiresAfterOneDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doctor := f.seed(t, model.RoleDoctor, "d@x.com", "Doc", "Tor")

	_, err := f.svc.SendPasswordReset(ctx, doctor.ID, uuid.New())
	require.NoError(t, err)
	tok := tokenFrom(t, f.mailer.last(t).link)

	f.advance(25 * time.Hour)
	err = f.svc.ResetPassword(ctx, tok, "correct-horse", "correct-horse")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrExpired))
	assert.Error(t, f.hasher.Compare(f.actor(t, doctor.ID).PasswordHash, "correct-horse"))
}

func TestResetPassword_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doctor := f.seed(t, model.RoleDoctor, "d@x.com", "Doc", "Tor")
	_, err := f.svc.SendPasswordReset(ctx, doctor.ID, uuid.New())
	require.NoError(t, err)
	tok := tokenFrom(t, f.mailer.last(t).link)

	err = f.svc.ResetPassword(ctx, tok, "correct-horse", "correct-horsf")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrValidation))

	err = f.svc.ResetPassword(ctx, tok, "short", "short")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrValidation))

	long := strings.Repeat("x", 73)
	err = f.svc.ResetPassword(ctx, tok, long, long)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrValidation))

	// Validation failures leave the link usable.
	assert.NoError(t, f.svc.ResetPassword(ctx, tok, "correct-horse", "correct-horse"))
}

func TestResetPassword_RevokesSiblingTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doctor := f.seed(t, model.RoleDoctor, "d@x.com", "Doc", "Tor")

	sibling, err := f.svc.opaque.Issue(ctx, f.store.Tokens(), model.TokenPasswordReset, doctor.Email, time.Hour)
	require.NoError(t, err)
	used, err := f.svc.opaque.Issue(ctx, f.store.Tokens(), model.TokenPasswordReset, doctor.Email, time.Hour)
	require.NoError(t, err)

	require.NoError(t, f.svc.ResetPassword(ctx, used.String(), "correct-horse", "correct-horse"))

	err = f.svc.ResetPassword(ctx, sibling.String(), "correct-horse", "correct-horse")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidToken))
}

func TestSendPasswordReset_RevokesEarlierLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doctor := f.seed(t, model.RoleDoctor, "d@x.com", "Doc", "Tor")

	_, err := f.svc.SendPasswordReset(ctx, doctor.ID, uuid.New())
	require.NoError(t, err)
	first := tokenFrom(t, f.mailer.last(t).link)
	_, err = f.svc.SendPasswordReset(ctx, doctor.ID, uuid.New())
	require.NoError(t, err)

	err = f.svc.ResetPassword(ctx, first, "correct-horse", "correct-horse")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidToken))
}

func TestSendPasswordReset_NotADoctor(t *testing.T) {
	f := newFixture(t)
	patient := f.seed(t, model.RolePatient, "p@x.com", "Pat", "Ient")

	_, err := f.svc.SendPasswordReset(context.Background(), patient.ID, uuid.New())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
}

func TestSendPasswordReset_MailFailure(t *testing.T) {
	f := newFixture(t)
	f.mailer.fail = true
	doctor := f.seed(t, model.RoleDoctor, "d@x.com", "Doc", "Tor")

	res, err := f.svc.SendPasswordReset(context.Background(), doctor.ID, uuid.New())
	require.NoError(t, err)
	assert.False(t, res.EmailSent)
	assert.Len(t, res.ResetToken, 64)
	assert.Contains(t, res.ResetLink, "/reset-password?")
}

func TestForgotPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, model.RoleDoctor, "d@x.com", "Doc", "Tor")
	f.seed(t, model.RolePatient, "p@x.com", "Pat", "Ient")

	f.svc.ForgotPassword(ctx, "nobody@x.com")
	f.svc.ForgotPassword(ctx, "p@x.com")
	assert.Zero(t, f.mailer.count())

	f.svc.ForgotPassword(ctx, " D@x.com ")
	require.Equal(t, 1, f.mailer.count())
	assert.Equal(t, "d@x.com", f.mailer.last(t).to)
}
