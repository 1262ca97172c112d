package account

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/careportal-api/internal/model"
	"github.com/jwalitptl/careportal-api/internal/repository"
	"github.com/jwalitptl/careportal-api/internal/token"
	apperrors "github.com/jwalitptl/careportal-api/pkg/errors"
	"github.com/jwalitptl/careportal-api/pkg/security"
)

// ResetResult reports a reset link issued by an admin. Token and link are
// only set when the mail failed.
type ResetResult struct {
	DoctorID   uuid.UUID `json:"doctor_id"`
	Email      string    `json:"email"`
	EmailSent  bool      `json:"email_sent"`
	ExpiresAt  time.Time `json:"expires_at"`
	ResetToken string    `json:"reset_token,omitempty"`
	ResetLink  string    `json:"reset_link,omitempty"`
}

// SendPasswordReset mails a doctor a fresh reset link on an admin's behalf.
func (s *Service) SendPasswordReset(ctx context.Context, doctorID, adminID uuid.UUID) (*ResetResult, error) {
	doctor, err := s.store.Actors().Get(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.Is(model.RoleDoctor) {
		return nil, apperrors.NotFound("doctor", nil)
	}

	issued, link, sent, err := s.issueReset(ctx, doctor)
	if err != nil {
		return nil, err
	}

	result := &ResetResult{
		DoctorID:  doctor.ID,
		Email:     doctor.Email,
		EmailSent: sent,
		ExpiresAt: issued.ExpiresAt(),
	}
	if !sent {
		result.ResetToken = issued.String()
		result.ResetLink = link
	}
	s.log.WithContext(ctx).Info("password reset issued by admin",
		"doctor_id", doctor.ID.String(),
		"admin_id", adminID.String(),
		"email_sent", sent,
	)
	return result, nil
}

// ForgotPassword is the self-service entry point. It never reports whether
// the address belongs to a doctor.
func (s *Service) ForgotPassword(ctx context.Context, email string) {
	doctor, err := s.store.Actors().GetByEmail(ctx, email, model.RoleDoctor)
	if err != nil {
		if !apperrors.HasCode(err, apperrors.ErrNotFound) {
			s.log.WithContext(ctx).Error(err, "forgot password lookup failed")
		}
		return
	}
	if _, _, _, err := s.issueReset(ctx, doctor); err != nil {
		s.log.WithContext(ctx).Error(err, "forgot password issuance failed", "doctor_id", doctor.ID.String())
	}
}

func (s *Service) issueReset(ctx context.Context, doctor *model.Actor) (*token.Opaque, string, bool, error) {
	var issued *token.Opaque
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if _, err := tx.Tokens().RevokeForEmail(ctx, model.TokenPasswordReset, doctor.Email); err != nil {
			return err
		}
		var err error
		issued, err = s.opaque.Issue(ctx, tx.Tokens(), model.TokenPasswordReset, doctor.Email, s.cfg.ResetTTL)
		return err
	})
	if err != nil {
		return nil, "", false, err
	}
	s.metrics.TokenIssued(string(model.TokenPasswordReset))

	link := s.link("/reset-password", url.Values{"token": {issued.String()}, "email": {doctor.Email}})
	sendErr := s.mailer.SendPasswordReset(ctx, doctor.Email, doctor.FullName(), link, issued.ExpiresAt())
	return issued, link, s.notified(ctx, "password_reset", doctor.Email, issued, sendErr), nil
}

// ResetPassword redeems a reset link and replaces the doctor's password.
// Every other outstanding reset link for the address is revoked.
func (s *Service) ResetPassword(ctx context.Context, value, password, confirm string) error {
	if err := security.CheckNewPassword(password, confirm, s.cfg.MinPasswordLength); err != nil {
		return passwordError(err)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return passwordError(err)
	}

	now := s.now()
	var doctor *model.Actor
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Store) error {
		rec, err := s.opaque.Consume(ctx, tx.Tokens(), model.TokenPasswordReset, value, "")
		if err != nil {
			return err
		}
		d, err := tx.Actors().GetByEmail(ctx, rec.Email, model.RoleDoctor)
		if err != nil {
			return err
		}
		if err := tx.Actors().SetPassword(ctx, d.ID, hash, now); err != nil {
			return err
		}
		if _, err := tx.Tokens().RevokeForEmail(ctx, model.TokenPasswordReset, rec.Email); err != nil {
			return err
		}
		doctor = d
		return nil
	})
	s.metrics.TokenConsumed(string(model.TokenPasswordReset), consumeResult(err))
	if err != nil {
		return err
	}

	s.log.WithContext(ctx).Info("doctor password reset", "doctor_id", doctor.ID.String())
	s.metrics.AccountTransition("password_reset")
	s.events.Publish(ctx, model.EventPasswordReset, doctor.ID, nil, nil)
	return nil
}

func passwordError(err error) error {
	switch {
	case errors.Is(err, security.ErrPasswordMismatch):
		return apperrors.Validation("passwords do not match")
	case errors.Is(err, security.ErrPasswordTooShort), errors.Is(err, security.ErrPasswordTooLong):
		return apperrors.Validation(err.Error())
	default:
		return apperrors.Internal(err)
	}
}
