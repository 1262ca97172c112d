package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/careportal-api/internal/model"
	apperrors "github.com/jwalitptl/careportal-api/pkg/errors"
)

const actorColumns = `
	id, email, first_name, last_name, phone, password_hash, role,
	profile_completed, is_first_login, password_changed_at,
	is_approved, email_verified, approved_at, approved_by, patient_number, assigned_doctor,
	specialization,
	is_emergency_contact, relationship_to_patient, monitored_patient, monitored_patient_profile,
	invitation_token, invitation_expires, invitation_sent_at, invitation_status, access_level, admin_notes,
	created_at, updated_at`

type actorRepository struct {
	BaseRepository
}

func (r *actorRepository) Create(ctx context.Context, actor *model.Actor) error {
	query := `
		INSERT INTO actors (` + actorColumns + `
		) VALUES (
			:id, :email, :first_name, :last_name, :phone, :password_hash, :role,
			:profile_completed, :is_first_login, :password_changed_at,
			:is_approved, :email_verified, :approved_at, :approved_by, :patient_number, :assigned_doctor,
			:specialization,
			:is_emergency_contact, :relationship_to_patient, :monitored_patient, :monitored_patient_profile,
			:invitation_token, :invitation_expires, :invitation_sent_at, :invitation_status, :access_level, :admin_notes,
			:created_at, :updated_at
		)`

	if actor.ID == uuid.Nil {
		actor.ID = uuid.New()
	}
	now := time.Now().UTC()
	if actor.CreatedAt.IsZero() {
		actor.CreatedAt = now
	}
	actor.UpdatedAt = actor.CreatedAt
	actor.Email = model.NormalizeEmail(actor.Email)

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, actor); err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict(fmt.Sprintf("an account with email %s already exists", actor.Email))
		}
		return storageErr("create actor", err)
	}
	return nil
}

func (r *actorRepository) Get(ctx context.Context, id uuid.UUID) (*model.Actor, error) {
	query := `SELECT ` + actorColumns + ` FROM actors WHERE id = $1`

	var actor model.Actor
	if err := r.get(ctx, &actor, query, id); err != nil {
		if isNoRows(err) {
			return nil, apperrors.NotFound("account", err)
		}
		return nil, storageErr("get actor", err)
	}
	return &actor, nil
}

func (r *actorRepository) GetByEmail(ctx context.Context, email string, role model.Role) (*model.Actor, error) {
	query := `SELECT ` + actorColumns + ` FROM actors WHERE email = $1 AND role = $2`

	var actor model.Actor
	if err := r.get(ctx, &actor, query, model.NormalizeEmail(email), role); err != nil {
		if isNoRows(err) {
			return nil, apperrors.NotFound("account", err)
		}
		return nil, storageErr("get actor by email", err)
	}
	return &actor, nil
}

func (r *actorRepository) ListByEmail(ctx context.Context, email string) ([]*model.Actor, error) {
	query := `SELECT ` + actorColumns + ` FROM actors WHERE email = $1 ORDER BY created_at`

	var actors []*model.Actor
	if err := r.selectAll(ctx, &actors, query, model.NormalizeEmail(email)); err != nil {
		return nil, storageErr("list actors by email", err)
	}
	return actors, nil
}

func (r *actorRepository) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := r.exec(ctx, `DELETE FROM actors WHERE id = $1`, id)
	if err != nil {
		return storageErr("delete actor", err)
	}
	if n == 0 {
		return apperrors.NotFound("account", nil)
	}
	return nil
}

func (r *actorRepository) List(ctx context.Context, filter *model.ActorFilter) ([]*model.Actor, int, error) {
	if filter == nil {
		filter = &model.ActorFilter{}
	}
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Role != "" {
		add("role = $%d", filter.Role)
	}
	if filter.IsApproved != nil {
		add("is_approved = $%d", *filter.IsApproved)
	}
	if filter.InvitationStatus != "" {
		add("invitation_status = $%d", filter.InvitationStatus)
	}
	if filter.ProfileCompleted != nil {
		add("profile_completed = $%d", *filter.ProfileCompleted)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.get(ctx, &total, `SELECT COUNT(*) FROM actors`+where, args...); err != nil {
		return nil, 0, storageErr("count actors", err)
	}

	page := filter.Pagination.Normalize(100)
	query := fmt.Sprintf(`SELECT %s FROM actors%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		actorColumns, where, len(args)+1, len(args)+2)
	args = append(args, page.PageSize, page.Offset())

	actors := []*model.Actor{}
	if err := r.selectAll(ctx, &actors, query, args...); err != nil {
		return nil, 0, storageErr("list actors", err)
	}
	return actors, total, nil
}

func (r *actorRepository) MarkApprovalRequested(ctx context.Context, id, adminID uuid.UUID, patientNumber string, at time.Time) error {
	query := `
		UPDATE actors SET
			approved_at = $2,
			approved_by = $3,
			patient_number = COALESCE(patient_number, NULLIF($4, '')),
			updated_at = $2
		WHERE id = $1 AND role = 'patient' AND is_approved = false`

	n, err := r.exec(ctx, query, id, at, adminID, patientNumber)
	if err != nil {
		return storageErr("mark approval requested", err)
	}
	if n == 0 {
		return apperrors.AlreadyActivated("patient is already approved")
	}
	return nil
}

func (r *actorRepository) Activate(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE actors SET
			is_approved = true,
			email_verified = true,
			approved_at = COALESCE(approved_at, $2),
			updated_at = $2
		WHERE id = $1 AND role = 'patient' AND is_approved = false`

	n, err := r.exec(ctx, query, id, at)
	if err != nil {
		return storageErr("activate account", err)
	}
	if n == 0 {
		return apperrors.AlreadyActivated("account is already activated")
	}
	return nil
}

func (r *actorRepository) SetPassword(ctx context.Context, id uuid.UUID, hash string, at time.Time) error {
	query := `
		UPDATE actors SET
			password_hash = $2,
			password_changed_at = $3,
			updated_at = $3
		WHERE id = $1`

	n, err := r.exec(ctx, query, id, hash, at)
	if err != nil {
		return storageErr("set password", err)
	}
	if n == 0 {
		return apperrors.NotFound("account", nil)
	}
	return nil
}

func (r *actorRepository) SetInvitation(ctx context.Context, id uuid.UUID, tokenID string, expires, sentAt time.Time) error {
	query := `
		UPDATE actors SET
			invitation_token = $2,
			invitation_expires = $3,
			invitation_sent_at = $4,
			updated_at = $4
		WHERE id = $1 AND role = 'relative' AND invitation_status = 'pending'`

	n, err := r.exec(ctx, query, id, tokenID, expires, sentAt)
	if err != nil {
		return storageErr("set invitation", err)
	}
	if n == 0 {
		return apperrors.AlreadyCompleted("invitation has already been accepted")
	}
	return nil
}

func (r *actorRepository) CompleteSetup(ctx context.Context, id uuid.UUID, hash string, at time.Time) error {
	query := `
		UPDATE actors SET
			password_hash = $2,
			password_changed_at = $3,
			profile_completed = true,
			invitation_status = 'accepted',
			invitation_token = NULL,
			is_first_login = false,
			updated_at = $3
		WHERE id = $1
			AND role = 'relative'
			AND invitation_status = 'pending'
			AND profile_completed = false`

	n, err := r.exec(ctx, query, id, hash, at)
	if err != nil {
		return storageErr("complete setup", err)
	}
	if n == 0 {
		return apperrors.AlreadyCompleted("account setup has already been completed")
	}
	return nil
}

func (r *actorRepository) NextPatientSequence(ctx context.Context, year int) (int, error) {
	query := `
		INSERT INTO patient_number_sequences (year, value) VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET value = patient_number_sequences.value + 1
		RETURNING value`

	var seq int
	if err := r.get(ctx, &seq, query, year); err != nil {
		return 0, storageErr("next patient number", err)
	}
	return seq, nil
}

func (r *actorRepository) ApprovalStatistics(ctx context.Context) (*model.ApprovalStatistics, error) {
	query := `
		SELECT
			COUNT(*) AS total_patients,
			COUNT(*) FILTER (WHERE is_approved) AS approved_patients,
			COUNT(*) FILTER (WHERE NOT is_approved) AS pending_approvals
		FROM actors
		WHERE role = 'patient'`

	var stats model.ApprovalStatistics
	if err := r.get(ctx, &stats, query); err != nil {
		return nil, storageErr("approval statistics", err)
	}
	if stats.TotalPatients > 0 {
		stats.ApprovalRate = float64(stats.ApprovedPatients) / float64(stats.TotalPatients) * 100
	}
	return &stats, nil
}
