package account

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/careportal-api/internal/email"
	"github.com/jwalitptl/careportal-api/internal/model"
	"github.com/jwalitptl/careportal-api/internal/repository"
	"github.com/jwalitptl/careportal-api/internal/token"
	"github.com/jwalitptl/careportal-api/pkg/auth"
	apperrors "github.com/jwalitptl/careportal-api/pkg/errors"
	"github.com/jwalitptl/careportal-api/pkg/security"
)

type CreateRelativeInput struct {
	PatientID      uuid.UUID
	EmergencyEmail string
	AccessLevel    model.AccessLevel
	AdminNotes     string
}

// InvitationResult reports an issued invitation. SetupToken and SetupLink
// are only set when the mail failed.
type InvitationResult struct {
	RelativeID uuid.UUID `json:"relative_id"`
	Email      string    `json:"email"`
	EmailSent  bool      `json:"email_sent"`
	ExpiresAt  time.Time `json:"expires_at"`
	SetupToken string    `json:"setup_token,omitempty"`
	SetupLink  string    `json:"setup_link,omitempty"`
}

// InvitationPreview is the safe subset of an invitation shown on the setup
// page.
type InvitationPreview struct {
	Email        string            `json:"email"`
	FirstName    string            `json:"first_name"`
	LastName     string            `json:"last_name"`
	PatientName  string            `json:"patient_name"`
	Relationship string            `json:"relationship"`
	AccessLevel  model.AccessLevel `json:"access_level"`
	ExpiresAt    time.Time         `json:"expires_at"`
}

// SetupResult is returned once a relative has chosen a password. The
// access token lets the client sign in straight away.
type SetupResult struct {
	Relative    *model.Actor `json:"user"`
	AccessToken string       `json:"access_token,omitempty"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
}

// CreateRelative derives a relative account from one of the patient's
// emergency contacts and mails the contact a setup link.
func (s *Service) CreateRelative(ctx context.Context, in CreateRelativeInput, adminID uuid.UUID) (*InvitationResult, error) {
	level := in.AccessLevel
	if level == "" {
		level = model.AccessViewOnly
	}
	if !level.Valid() {
		return nil, apperrors.Validation("access level must be one of view_only, caretaker, emergency_only")
	}
	addr := model.NormalizeEmail(in.EmergencyEmail)
	if addr == "" {
		return nil, apperrors.Validation("emergency contact email is required")
	}

	now := s.now()
	var (
		relative *model.Actor
		patient  *model.Actor
		issued   *token.Claim
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Store) error {
		p, err := tx.Actors().Get(ctx, in.PatientID)
		if err != nil {
			return err
		}
		if !p.Is(model.RolePatient) {
			return apperrors.NotFound("patient", nil)
		}

		contact, err := matchContact(ctx, tx, p.ID, addr)
		if err != nil {
			return err
		}

		owners, err := tx.Actors().ListByEmail(ctx, addr)
		if err != nil {
			return err
		}
		for _, o := range owners {
			if o.Is(model.RoleRelative) {
				return apperrors.Conflict("a relative account already exists for this email")
			}
		}
		if len(owners) > 0 {
			return apperrors.Conflict("this email is already registered as a different user type")
		}

		pending := model.InvitationPending
		relationship := contact.Relationship
		notes := in.AdminNotes
		r := &model.Actor{
			Email:                   addr,
			FirstName:               contact.FirstName,
			LastName:                contact.LastName,
			Phone:                   contact.Phone,
			PasswordHash:            security.PlaceholderHash,
			Role:                    model.RoleRelative,
			IsFirstLogin:            true,
			IsEmergencyContact:      true,
			RelationshipToPatient:   &relationship,
			MonitoredPatient:        &p.ID,
			MonitoredPatientProfile: &contact.ID,
			InvitationStatus:        &pending,
			AccessLevel:             &level,
		}
		r.CreatedAt = now
		if notes != "" {
			r.AdminNotes = &notes
		}
		if err := tx.Actors().Create(ctx, r); err != nil {
			return err
		}

		issued, err = s.issueInvitation(ctx, tx, r, p, now)
		if err != nil {
			return err
		}
		relative, patient = r, p
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := s.sendInvitation(ctx, relative, patient, issued)
	s.log.WithContext(ctx).Info("relative account created",
		"relative_id", relative.ID.String(),
		"patient_id", patient.ID.String(),
		"admin_id", adminID.String(),
		"email_sent", result.EmailSent,
	)
	s.metrics.AccountTransition("relative_invited")
	s.events.Publish(ctx, model.EventRelativeInvited, relative.ID, &adminID, map[string]interface{}{
		"patient_id":   patient.ID.String(),
		"access_level": string(level),
		"email_sent":   result.EmailSent,
	})
	return result, nil
}

func matchContact(ctx context.Context, tx repository.Store, patientID uuid.UUID, addr string) (*model.EmergencyContact, error) {
	contacts, err := tx.EmergencyContacts().ListForPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		return nil, apperrors.Validation("patient has no emergency contact on file")
	}
	for _, c := range contacts {
		if model.NormalizeEmail(c.Email) == addr {
			return c, nil
		}
	}
	return nil, apperrors.Validation("email does not match the patient's emergency contact")
}

// issueInvitation signs a setup token for r and mirrors its id and expiry
// on the account. Any earlier link stops working.
func (s *Service) issueInvitation(ctx context.Context, tx repository.Store, r, patient *model.Actor, now time.Time) (*token.Claim, error) {
	claims := token.RelativeSetupClaims{
		UserID:       r.ID,
		Email:        r.Email,
		PatientID:    patient.ID,
		PatientName:  patient.FullName(),
		RelativeName: r.FullName(),
		Relationship: r.Relationship(),
		AccessLevel:  string(r.Access()),
	}
	if r.MonitoredPatientProfile != nil {
		claims.PatientProfileID = *r.MonitoredPatientProfile
	}
	issued, err := s.claims.Issue(claims, s.cfg.InvitationTTL)
	if err != nil {
		return nil, err
	}
	if err := tx.Actors().SetInvitation(ctx, r.ID, issued.ID(), issued.ExpiresAt(), now); err != nil {
		return nil, err
	}
	s.metrics.TokenIssued(token.TypeRelativeSetup)
	return issued, nil
}

func (s *Service) sendInvitation(ctx context.Context, relative, patient *model.Actor, issued *token.Claim) *InvitationResult {
	link := s.link("/relative-setup", url.Values{"token": {issued.String()}})
	sendErr := s.mailer.SendRelativeInvitation(ctx, email.RelativeInvitation{
		To:           relative.Email,
		RelativeName: relative.FullName(),
		PatientName:  patient.FullName(),
		Relationship: relative.Relationship(),
		AccessLevel:  string(relative.Access()),
		SetupLink:    link,
		ExpiresAt:    issued.ExpiresAt(),
	})

	result := &InvitationResult{
		RelativeID: relative.ID,
		Email:      relative.Email,
		EmailSent:  s.notified(ctx, "relative_invitation", relative.Email, issued, sendErr),
		ExpiresAt:  issued.ExpiresAt(),
	}
	if !result.EmailSent {
		result.SetupToken = issued.String()
		result.SetupLink = link
	}
	return result
}

// liveInvitation loads the relative a verified token names and checks that
// the account still considers this exact token the live one.
func (s *Service) liveInvitation(ctx context.Context, actors repository.ActorRepository, claims *token.RelativeSetupClaims) (*model.Actor, error) {
	r, err := actors.Get(ctx, claims.UserID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrNotFound) {
			return nil, apperrors.InvalidToken("invitation is no longer valid", nil)
		}
		return nil, err
	}
	if !r.Is(model.RoleRelative) {
		return nil, apperrors.InvalidToken("invitation is no longer valid", nil)
	}
	if r.InvitationState() != model.InvitationPending {
		return nil, apperrors.AlreadyCompleted("account setup has already been completed")
	}
	if r.InvitationExpires == nil || !s.now().Before(*r.InvitationExpires) {
		return nil, apperrors.Expired("invitation link has expired")
	}
	if r.InvitationToken == nil || *r.InvitationToken != claims.ID {
		return nil, apperrors.InvalidToken("this invitation link has been replaced by a newer one", nil)
	}
	return r, nil
}

// VerifyInvitation checks a setup link without changing anything.
func (s *Service) VerifyInvitation(ctx context.Context, raw string) (*InvitationPreview, error) {
	claims, err := s.claims.Verify(raw, token.TypeRelativeSetup)
	if err != nil {
		return nil, err
	}
	r, err := s.liveInvitation(ctx, s.store.Actors(), claims)
	if err != nil {
		return nil, err
	}
	return &InvitationPreview{
		Email:        r.Email,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		PatientName:  claims.PatientName,
		Relationship: r.Relationship(),
		AccessLevel:  r.Access(),
		ExpiresAt:    *r.InvitationExpires,
	}, nil
}

// CompleteSetup sets the relative's password and accepts the invitation.
// A second call with the same link fails with AlreadyCompleted.
func (s *Service) CompleteSetup(ctx context.Context, raw, password, confirm string) (*SetupResult, error) {
	claims, err := s.claims.Verify(raw, token.TypeRelativeSetup)
	if err != nil {
		return nil, err
	}
	if _, err := s.liveInvitation(ctx, s.store.Actors(), claims); err != nil {
		return nil, err
	}
	if err := security.CheckNewPassword(password, confirm, s.cfg.MinPasswordLength); err != nil {
		return nil, passwordError(err)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, passwordError(err)
	}

	now := s.now()
	var relative *model.Actor
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if _, err := s.liveInvitation(ctx, tx.Actors(), claims); err != nil {
			return err
		}
		if err := tx.Actors().CompleteSetup(ctx, claims.UserID, hash, now); err != nil {
			return err
		}
		relative, err = tx.Actors().Get(ctx, claims.UserID)
		return err
	})
	s.metrics.TokenConsumed(token.TypeRelativeSetup, consumeResult(err))
	if err != nil {
		return nil, err
	}

	result := &SetupResult{Relative: relative}
	if s.sessions != nil {
		access, exp, err := s.sessions.GenerateAccessToken(auth.Subject{
			ID:    relative.ID,
			Email: relative.Email,
			Role:  string(relative.Role),
		})
		if err != nil {
			s.log.WithContext(ctx).Error(err, "failed to issue session after setup", "relative_id", relative.ID.String())
		} else {
			result.AccessToken = access
			result.ExpiresAt = &exp
		}
	}

	s.log.WithContext(ctx).Info("relative setup completed", "relative_id", relative.ID.String())
	s.metrics.AccountTransition("relative_accepted")
	s.events.Publish(ctx, model.EventRelativeAccepted, relative.ID, nil, nil)
	return result, nil
}

// ResendInvitation issues a replacement setup link on an admin's behalf.
func (s *Service) ResendInvitation(ctx context.Context, relativeID, adminID uuid.UUID) (*InvitationResult, error) {
	result, err := s.reissue(ctx, func(actors repository.ActorRepository) (*model.Actor, error) {
		r, err := actors.Get(ctx, relativeID)
		if err != nil {
			return nil, err
		}
		if !r.Is(model.RoleRelative) {
			return nil, apperrors.NotFound("relative", nil)
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithContext(ctx).Info("relative invitation resent",
		"relative_id", relativeID.String(),
		"admin_id", adminID.String(),
		"email_sent", result.EmailSent,
	)
	return result, nil
}

// ResendInvitationByEmail is the public resend. It reports nothing about
// whether a pending invitation exists.
func (s *Service) ResendInvitationByEmail(ctx context.Context, addr string) {
	_, err := s.reissue(ctx, func(actors repository.ActorRepository) (*model.Actor, error) {
		return actors.GetByEmail(ctx, addr, model.RoleRelative)
	})
	if err != nil && !apperrors.HasCode(err, apperrors.ErrNotFound) && !apperrors.HasCode(err, apperrors.ErrAlreadyCompleted) {
		s.log.WithContext(ctx).Error(err, "public invitation resend failed")
	}
}

// RequestSetupHelp records that someone is stuck on the setup page so an
// admin can follow up.
func (s *Service) RequestSetupHelp(ctx context.Context, addr, message string) {
	s.log.WithContext(ctx).Info("relative setup help requested",
		"email", model.NormalizeEmail(addr),
		"message", message,
	)
}

func (s *Service) reissue(ctx context.Context, find func(repository.ActorRepository) (*model.Actor, error)) (*InvitationResult, error) {
	now := s.now()
	var (
		relative *model.Actor
		patient  *model.Actor
		issued   *token.Claim
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Store) error {
		r, err := find(tx.Actors())
		if err != nil {
			return err
		}
		if r.InvitationState() != model.InvitationPending {
			return apperrors.AlreadyCompleted("invitation has already been accepted")
		}
		if r.MonitoredPatient == nil {
			return apperrors.NotFound("patient", nil)
		}
		p, err := tx.Actors().Get(ctx, *r.MonitoredPatient)
		if err != nil {
			return err
		}
		issued, err = s.issueInvitation(ctx, tx, r, p, now)
		if err != nil {
			return err
		}
		relative, patient = r, p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.sendInvitation(ctx, relative, patient, issued), nil
}

// RelativeRequests lists emergency contacts an admin can still turn into
// relative accounts.
func (s *Service) RelativeRequests(ctx context.Context, page model.Pagination) ([]*model.RelativeRequest, int, error) {
	return s.store.EmergencyContacts().ListWithoutRelative(ctx, page)
}

// ListRelatives filters by pending, accepted or active (profile completed).
func (s *Service) ListRelatives(ctx context.Context, status string, page model.Pagination) ([]*model.Actor, int, error) {
	filter := &model.ActorFilter{Role: model.RoleRelative, Pagination: page}
	switch status {
	case "":
	case "pending":
		filter.InvitationStatus = model.InvitationPending
	case "accepted":
		filter.InvitationStatus = model.InvitationAccepted
	case "active":
		completed := true
		filter.ProfileCompleted = &completed
	default:
		return nil, 0, apperrors.Validation("status must be one of pending, accepted, active")
	}
	return s.store.Actors().List(ctx, filter)
}
