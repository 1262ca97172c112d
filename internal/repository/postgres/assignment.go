package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/careportal-api/internal/model"
	apperrors "github.com/jwalitptl/careportal-api/pkg/errors"
)

const requestColumns = `id, doctor_id, patient_id, patient_name, status, requested_at, decided_at`

type assignmentRepository struct {
	BaseRepository
}

// CreateRequest relies on the partial unique index over pending
// (doctor_id, patient_id) pairs to reject duplicates.
func (r *assignmentRepository) CreateRequest(ctx context.Context, req *model.PendingRequest) error {
	query := `
		INSERT INTO doctor_requests (` + requestColumns + `)
		VALUES (:id, :doctor_id, :patient_id, :patient_name, :status, :requested_at, :decided_at)`

	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.Status == "" {
		req.Status = model.RequestPending
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, req); err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict("a request to this doctor is already pending")
		}
		return storageErr("create doctor request", err)
	}
	return nil
}

func (r *assignmentRepository) FindPending(ctx context.Context, doctorID, patientID uuid.UUID) (*model.PendingRequest, error) {
	query := `
		SELECT ` + requestColumns + ` FROM doctor_requests
		WHERE doctor_id = $1 AND patient_id = $2 AND status = 'pending'`

	var req model.PendingRequest
	if err := r.get(ctx, &req, query, doctorID, patientID); err != nil {
		if isNoRows(err) {
			return nil, apperrors.NotFound("pending request", err)
		}
		return nil, storageErr("find pending request", err)
	}
	return &req, nil
}

func (r *assignmentRepository) Decide(ctx context.Context, id uuid.UUID, status model.RequestStatus, at time.Time) (*model.PendingRequest, error) {
	query := `
		UPDATE doctor_requests SET status = $2, decided_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + requestColumns

	var req model.PendingRequest
	if err := r.get(ctx, &req, query, id, status, at); err != nil {
		if isNoRows(err) {
			return nil, apperrors.NotFound("pending request", err)
		}
		return nil, storageErr("decide request", err)
	}
	return &req, nil
}

func (r *assignmentRepository) PendingForDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.PendingRequest, error) {
	query := `
		SELECT ` + requestColumns + ` FROM doctor_requests
		WHERE doctor_id = $1 AND status = 'pending'
		ORDER BY requested_at DESC`

	reqs := []*model.PendingRequest{}
	if err := r.selectAll(ctx, &reqs, query, doctorID); err != nil {
		return nil, storageErr("list pending requests", err)
	}
	return reqs, nil
}

func (r *assignmentRepository) RequestedDoctors(ctx context.Context, patientID uuid.UUID) ([]*model.DoctorSummary, error) {
	query := `
		SELECT a.id, a.first_name, a.last_name, a.email, a.specialization, dr.status
		FROM doctor_requests dr
		JOIN actors a ON a.id = dr.doctor_id
		WHERE dr.patient_id = $1 AND dr.status = 'pending'
		ORDER BY dr.requested_at DESC`

	doctors := []*model.DoctorSummary{}
	if err := r.selectAll(ctx, &doctors, query, patientID); err != nil {
		return nil, storageErr("list requested doctors", err)
	}
	return doctors, nil
}

// Assign keeps doctor_patients and actors.assigned_doctor in step. It must
// run inside a transaction.
func (r *assignmentRepository) Assign(ctx context.Context, doctorID, patientID uuid.UUID, at time.Time) error {
	if _, err := r.exec(ctx, `DELETE FROM doctor_patients WHERE patient_id = $1 AND doctor_id <> $2`, patientID, doctorID); err != nil {
		return storageErr("release previous doctor", err)
	}

	insert := `
		INSERT INTO doctor_patients (doctor_id, patient_id, assigned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (doctor_id, patient_id) DO NOTHING`
	if _, err := r.exec(ctx, insert, doctorID, patientID, at); err != nil {
		return storageErr("assign patient", err)
	}

	n, err := r.exec(ctx, `UPDATE actors SET assigned_doctor = $2, updated_at = $3 WHERE id = $1 AND role = 'patient'`,
		patientID, doctorID, at)
	if err != nil {
		return storageErr("set assigned doctor", err)
	}
	if n == 0 {
		return apperrors.NotFound("patient", nil)
	}
	return nil
}

func (r *assignmentRepository) IsAssigned(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM doctor_patients WHERE doctor_id = $1 AND patient_id = $2)`

	var ok bool
	if err := r.get(ctx, &ok, query, doctorID, patientID); err != nil {
		return false, storageErr("check assignment", err)
	}
	return ok, nil
}

func (r *assignmentRepository) AssignedPatients(ctx context.Context, doctorID uuid.UUID) ([]*model.AssignedPatient, error) {
	query := `
		SELECT a.id AS patient_id, a.first_name, a.last_name, a.email, a.phone, a.patient_number, dp.assigned_at
		FROM doctor_patients dp
		JOIN actors a ON a.id = dp.patient_id
		WHERE dp.doctor_id = $1
		ORDER BY dp.assigned_at DESC`

	patients := []*model.AssignedPatient{}
	if err := r.selectAll(ctx, &patients, query, doctorID); err != nil {
		return nil, storageErr("list assigned patients", err)
	}
	return patients, nil
}

func (r *assignmentRepository) DeleteForPatient(ctx context.Context, patientID uuid.UUID) error {
	if _, err := r.exec(ctx, `DELETE FROM doctor_requests WHERE patient_id = $1`, patientID); err != nil {
		return storageErr("delete patient requests", err)
	}
	if _, err := r.exec(ctx, `DELETE FROM doctor_patients WHERE patient_id = $1`, patientID); err != nil {
		return storageErr("delete patient assignment", err)
	}
	return nil
}
