// Package assignment pairs patients with doctors. A patient asks, the
// doctor accepts or rejects, and an accepted request moves the patient
// into that doctor's set in one transaction.
package assignment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/careportal-api/internal/model"
	"github.com/jwalitptl/careportal-api/internal/repository"
	"github.com/jwalitptl/careportal-api/internal/service/event"
	apperrors "github.com/jwalitptl/careportal-api/pkg/errors"
	"github.com/jwalitptl/careportal-api/pkg/logger"
	"github.com/jwalitptl/careportal-api/pkg/metrics"
)

type Service struct {
	store   repository.Store
	events  event.Publisher
	metrics *metrics.Metrics
	log     *logger.Logger
	now     func() time.Time
}

func NewService(store repository.Store, events event.Publisher, m *metrics.Metrics, log *logger.Logger) *Service {
	if events == nil {
		events = event.Nop()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:   store,
		events:  events,
		metrics: m,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RequestDoctor files a pending request from a patient to a doctor.
func (s *Service) RequestDoctor(ctx context.Context, patientID, doctorID uuid.UUID) (*model.PendingRequest, error) {
	now := s.now()
	var req *model.PendingRequest
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Store) error {
		patient, err := tx.Actors().Get(ctx, patientID)
		if err != nil {
			return err
		}
		if !patient.Can(model.CapRequestDoctor) {
			return apperrors.Forbidden("only patients can request a doctor")
		}
		doctor, err := tx.Actors().Get(ctx, doctorID)
		if err != nil {
			if apperrors.HasCode(err, apperrors.ErrNotFound) {
				return apperrors.NotFound("doctor", nil)
			}
			return err
		}
		if !doctor.Is(model.RoleDoctor) {
			return apperrors.NotFound("doctor", nil)
		}

		assigned, err := tx.Assignments().IsAssigned(ctx, doctorID, patientID)
		if err != nil {
			return err
		}
		if assigned || patient.IsAssignedTo(doctorID) {
			return apperrors.Conflict("you are already assigned to this doctor")
		}

		req = &model.PendingRequest{
			DoctorID:    doctorID,
			PatientID:   patientID,
			PatientName: patient.FullName(),
			Status:      model.RequestPending,
			RequestedAt: now,
		}
		return tx.Assignments().CreateRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithContext(ctx).Info("doctor requested",
		"patient_id", patientID.String(),
		"doctor_id", doctorID.String(),
	)
	s.metrics.AssignmentTransition(string(model.RequestPending))
	s.events.Publish(ctx, model.EventDoctorRequested, req.ID, &patientID, map[string]interface{}{
		"doctor_id": doctorID.String(),
	})
	return req, nil
}

// AcceptRequest assigns the patient to the doctor, taking the patient out
// of any previous doctor's set.
func (s *Service) AcceptRequest(ctx context.Context, doctorID, patientID uuid.UUID) (*model.PendingRequest, error) {
	now := s.now()
	var decided *model.PendingRequest
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Store) error {
		req, err := s.decidable(ctx, tx, doctorID, patientID)
		if err != nil {
			return err
		}
		decided, err = tx.Assignments().Decide(ctx, req.ID, model.RequestAccepted, now)
		if err != nil {
			return err
		}
		return tx.Assignments().Assign(ctx, doctorID, patientID, now)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithContext(ctx).Info("doctor request accepted",
		"patient_id", patientID.String(),
		"doctor_id", doctorID.String(),
	)
	s.metrics.AssignmentTransition(string(model.RequestAccepted))
	s.events.Publish(ctx, model.EventRequestAccepted, decided.ID, &doctorID, map[string]interface{}{
		"patient_id": patientID.String(),
	})
	return decided, nil
}

// RejectRequest closes the request and changes nothing else.
func (s *Service) RejectRequest(ctx context.Context, doctorID, patientID uuid.UUID) (*model.PendingRequest, error) {
	now := s.now()
	var decided *model.PendingRequest
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Store) error {
		req, err := s.decidable(ctx, tx, doctorID, patientID)
		if err != nil {
			return err
		}
		decided, err = tx.Assignments().Decide(ctx, req.ID, model.RequestRejected, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithContext(ctx).Info("doctor request rejected",
		"patient_id", patientID.String(),
		"doctor_id", doctorID.String(),
	)
	s.metrics.AssignmentTransition(string(model.RequestRejected))
	s.events.Publish(ctx, model.EventRequestRejected, decided.ID, &doctorID, map[string]interface{}{
		"patient_id": patientID.String(),
	})
	return decided, nil
}

func (s *Service) decidable(ctx context.Context, tx repository.Store, doctorID, patientID uuid.UUID) (*model.PendingRequest, error) {
	doctor, err := tx.Actors().Get(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	req, err := tx.Assignments().FindPending(ctx, doctorID, patientID)
	if err != nil {
		return nil, err
	}
	if !doctor.CanAccept(req) {
		return nil, apperrors.Forbidden("you cannot decide this request")
	}
	return req, nil
}

func (s *Service) PendingRequests(ctx context.Context, doctorID uuid.UUID) ([]*model.PendingRequest, error) {
	return s.store.Assignments().PendingForDoctor(ctx, doctorID)
}

func (s *Service) AssignedPatients(ctx context.Context, doctorID uuid.UUID) ([]*model.AssignedPatient, error) {
	return s.store.Assignments().AssignedPatients(ctx, doctorID)
}

func (s *Service) RequestedDoctors(ctx context.Context, patientID uuid.UUID) ([]*model.DoctorSummary, error) {
	return s.store.Assignments().RequestedDoctors(ctx, patientID)
}

// MyDoctor returns the doctor the patient is assigned to.
func (s *Service) MyDoctor(ctx context.Context, patientID uuid.UUID) (*model.DoctorSummary, error) {
	patient, err := s.store.Actors().Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if patient.AssignedDoctor == nil {
		return nil, apperrors.NotFound("assigned doctor", nil)
	}
	doctor, err := s.store.Actors().Get(ctx, *patient.AssignedDoctor)
	if err != nil {
		return nil, err
	}
	return &model.DoctorSummary{
		ID:             doctor.ID,
		FirstName:      doctor.FirstName,
		LastName:       doctor.LastName,
		Email:          doctor.Email,
		Specialization: doctor.Specialization,
		Status:         model.RequestAccepted,
	}, nil
}
