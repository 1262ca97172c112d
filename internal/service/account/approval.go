package account

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/careportal-api/internal/model"
	"github.com/jwalitptl/careportal-api/internal/repository"
	"github.com/jwalitptl/careportal-api/internal/token"
	apperrors "github.com/jwalitptl/careportal-api/pkg/errors"
)

// ApprovalResult reports an approval request. The activation token and
// link are only set when the mail could not be sent, so an admin can pass
// them on by hand.
type ApprovalResult struct {
	PatientID       uuid.UUID `json:"patient_id"`
	Email           string    `json:"email"`
	PatientNumber   string    `json:"patient_number,omitempty"`
	EmailSent       bool      `json:"email_sent"`
	ExpiresAt       time.Time `json:"expires_at"`
	ActivationToken string    `json:"activation_token,omitempty"`
	ActivationLink  string    `json:"activation_link,omitempty"`
}

// ActivationPreview is what the activation page shows before the patient
// confirms.
type ActivationPreview struct {
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PendingApprovals lists patients that have not been activated yet.
func (s *Service) PendingApprovals(ctx context.Context, page model.Pagination) ([]*model.Actor, int, error) {
	approved := false
	return s.store.Actors().List(ctx, &model.ActorFilter{
		Role:       model.RolePatient,
		IsApproved: &approved,
		Pagination: page,
	})
}

func (s *Service) ApprovalStatistics(ctx context.Context) (*model.ApprovalStatistics, error) {
	return s.store.Actors().ApprovalStatistics(ctx)
}

// RequestApproval issues a fresh activation link for an unapproved patient.
// Earlier unused links stop working.
func (s *Service) RequestApproval(ctx context.Context, patientID, adminID uuid.UUID) (*ApprovalResult, error) {
	now := s.now()

	var (
		patient *model.Actor
		issued  *token.Opaque
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Store) error {
		p, err := tx.Actors().Get(ctx, patientID)
		if err != nil {
			return err
		}
		if !p.Is(model.RolePatient) {
			return apperrors.NotFound("patient", nil)
		}
		if p.IsApproved {
			return apperrors.AlreadyActivated("patient is already approved")
		}

		number := ""
		if p.PatientNumber == nil {
			seq, err := tx.Actors().NextPatientSequence(ctx, now.Year())
			if err != nil {
				return err
			}
			number = patientNumber(now.Year(), seq)
			p.PatientNumber = &number
		}
		if err := tx.Actors().MarkApprovalRequested(ctx, p.ID, adminID, number, now); err != nil {
			return err
		}

		if _, err := tx.Tokens().RevokeForEmail(ctx, model.TokenApproval, p.Email); err != nil {
			return err
		}
		issued, err = s.opaque.Issue(ctx, tx.Tokens(), model.TokenApproval, p.Email, s.cfg.ApprovalTTL)
		if err != nil {
			return err
		}
		patient = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.TokenIssued(string(model.TokenApproval))

	link := s.link("/activate", url.Values{"token": {issued.String()}, "email": {patient.Email}})
	sendErr := s.mailer.SendActivation(ctx, patient.Email, patient.FullName(), link, issued.ExpiresAt())

	result := &ApprovalResult{
		PatientID: patient.ID,
		Email:     patient.Email,
		EmailSent: s.notified(ctx, "activation", patient.Email, issued, sendErr),
		ExpiresAt: issued.ExpiresAt(),
	}
	if patient.PatientNumber != nil {
		result.PatientNumber = *patient.PatientNumber
	}
	if !result.EmailSent {
		result.ActivationToken = issued.String()
		result.ActivationLink = link
	}

	s.log.WithContext(ctx).Info("patient approval requested",
		"patient_id", patient.ID.String(),
		"admin_id", adminID.String(),
		"token_fp", token.Fingerprint(issued.String()),
		"email_sent", result.EmailSent,
	)
	s.metrics.AccountTransition("approval_requested")
	s.events.Publish(ctx, model.EventApprovalRequested, patient.ID, &adminID, map[string]interface{}{
		"email_sent":     result.EmailSent,
		"patient_number": result.PatientNumber,
	})
	return result, nil
}

// VerifyActivation checks an activation link without using it up.
func (s *Service) VerifyActivation(ctx context.Context, value, email string) (*ActivationPreview, error) {
	patient, err := s.store.Actors().GetByEmail(ctx, email, model.RolePatient)
	if err != nil {
		return nil, err
	}
	if patient.IsApproved {
		return nil, apperrors.AlreadyActivated("account is already activated")
	}
	t, err := s.opaque.Peek(ctx, s.store.Tokens(), model.TokenApproval, value, email)
	if err != nil {
		return nil, err
	}
	return &ActivationPreview{
		Email:     patient.Email,
		FirstName: patient.FirstName,
		LastName:  patient.LastName,
		ExpiresAt: t.ExpiresAt,
	}, nil
}

// Activate redeems an activation link and approves the patient.
func (s *Service) Activate(ctx context.Context, value, email string) (*model.Actor, error) {
	now := s.now()

	var patient *model.Actor
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Store) error {
		p, err := tx.Actors().GetByEmail(ctx, email, model.RolePatient)
		if err != nil {
			return err
		}
		if p.IsApproved {
			return apperrors.AlreadyActivated("account is already activated")
		}
		if _, err := s.opaque.Consume(ctx, tx.Tokens(), model.TokenApproval, value, email); err != nil {
			return err
		}
		if err := tx.Actors().Activate(ctx, p.ID, now); err != nil {
			return err
		}
		patient, err = tx.Actors().Get(ctx, p.ID)
		return err
	})
	s.metrics.TokenConsumed(string(model.TokenApproval), consumeResult(err))
	if err != nil {
		return nil, err
	}

	s.log.WithContext(ctx).Info("patient account activated", "patient_id", patient.ID.String())
	s.metrics.AccountTransition("activated")
	s.events.Publish(ctx, model.EventAccountActivated, patient.ID, nil, nil)
	return patient, nil
}

// Reject removes an unapproved patient registration together with its
// tokens and doctor requests. The patient is told why when mail works.
func (s *Service) Reject(ctx context.Context, patientID, adminID uuid.UUID, reason string) error {
	var patient *model.Actor
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Store) error {
		p, err := tx.Actors().Get(ctx, patientID)
		if err != nil {
			return err
		}
		if !p.Is(model.RolePatient) {
			return apperrors.NotFound("patient", nil)
		}
		if p.IsApproved {
			return apperrors.AlreadyActivated("an activated patient cannot be rejected")
		}
		if _, err := tx.Tokens().DeleteForEmail(ctx, p.Email); err != nil {
			return err
		}
		if err := tx.Assignments().DeleteForPatient(ctx, p.ID); err != nil {
			return err
		}
		if err := tx.Actors().Delete(ctx, p.ID); err != nil {
			return err
		}
		patient = p
		return nil
	})
	if err != nil {
		return err
	}

	sendErr := s.mailer.SendRejection(ctx, patient.Email, patient.FullName(), reason)
	s.metrics.Notification("rejection", sendErr == nil)
	if sendErr != nil {
		s.log.WithContext(ctx).Warn("rejection notice not delivered", "to", patient.Email, "error", sendErr.Error())
	}

	s.log.WithContext(ctx).Info("patient registration rejected",
		"patient_id", patient.ID.String(),
		"admin_id", adminID.String(),
		"reason", reason,
	)
	s.metrics.AccountTransition("rejected")
	s.events.Publish(ctx, model.EventPatientRejected, patient.ID, &adminID, map[string]interface{}{
		"reason": reason,
	})
	return nil
}

func patientNumber(year, seq int) string {
	return fmt.Sprintf("PT%d-%04d", year, seq)
}
