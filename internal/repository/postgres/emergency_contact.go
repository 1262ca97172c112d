package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/careportal-api/internal/model"
)

const contactColumns = `id, patient_id, first_name, last_name, email, phone, relationship, created_at, updated_at`

type emergencyContactRepository struct {
	BaseRepository
}

func (r *emergencyContactRepository) Create(ctx context.Context, contact *model.EmergencyContact) error {
	query := `
		INSERT INTO emergency_contacts (` + contactColumns + `)
		VALUES (:id, :patient_id, :first_name, :last_name, :email, :phone, :relationship, :created_at, :updated_at)`

	if contact.ID == uuid.Nil {
		contact.ID = uuid.New()
	}
	contact.CreatedAt = time.Now().UTC()
	contact.UpdatedAt = contact.CreatedAt
	contact.Email = model.NormalizeEmail(contact.Email)

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, contact); err != nil {
		return storageErr("create emergency contact", err)
	}
	return nil
}

func (r *emergencyContactRepository) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]*model.EmergencyContact, error) {
	query := `SELECT ` + contactColumns + ` FROM emergency_contacts WHERE patient_id = $1 ORDER BY created_at`

	contacts := []*model.EmergencyContact{}
	if err := r.selectAll(ctx, &contacts, query, patientID); err != nil {
		return nil, storageErr("list emergency contacts", err)
	}
	return contacts, nil
}

const withoutRelative = `
	FROM emergency_contacts ec
	JOIN actors p ON p.id = ec.patient_id
	WHERE NOT EXISTS (
		SELECT 1 FROM actors r WHERE r.role = 'relative' AND r.email = ec.email
	)`

func (r *emergencyContactRepository) ListWithoutRelative(ctx context.Context, page model.Pagination) ([]*model.RelativeRequest, int, error) {
	var total int
	if err := r.get(ctx, &total, `SELECT COUNT(*)`+withoutRelative); err != nil {
		return nil, 0, storageErr("count relative requests", err)
	}

	page = page.Normalize(100)
	query := `
		SELECT ec.id, ec.patient_id, ec.first_name, ec.last_name, ec.email, ec.phone, ec.relationship,
			ec.created_at, ec.updated_at,
			TRIM(p.first_name || ' ' || p.last_name) AS patient_name,
			p.email AS patient_email,
			p.patient_number` + withoutRelative + `
		ORDER BY ec.created_at DESC
		LIMIT $1 OFFSET $2`

	requests := []*model.RelativeRequest{}
	if err := r.selectAll(ctx, &requests, query, page.PageSize, page.Offset()); err != nil {
		return nil, 0, storageErr("list relative requests", err)
	}
	return requests, total, nil
}
