package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/careportal-api/internal/model"
	"github.com/jwalitptl/careportal-api/internal/repository"
	apperrors "github.com/jwalitptl/careportal-api/pkg/errors"
)

func setupMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := sqlx.NewDb(mockDB, "postgres")
	return NewStore(db, time.Second), mock
}

var tokenRowColumns = []string{"id", "kind", "email", "token", "expires_at", "used", "used_at", "created_at"}

func TestTokenConsume_Success(t *testing.T) {
	store, mock := setupMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(tokenRowColumns).
		AddRow(uuid.New().String(), "approval", "a@x.com", "tok", now.Add(time.Hour), true, now, now.Add(-time.Hour))
	mock.ExpectQuery(`UPDATE user_tokens SET used = true`).
		WithArgs("tok", model.TokenApproval, "a@x.com", now).
		WillReturnRows(rows)

	tok, err := store.Tokens().Consume(context.Background(), model.TokenApproval, "tok", "A@x.com ", now)
	require.NoError(t, err)
	assert.True(t, tok.Used)
	assert.Equal(t, "a@x.com", tok.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenConsume_ClassifiesMiss(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name    string
		used    bool
		expires time.Time
		want    apperrors.ErrorCode
	}{
		{"already used", true, now.Add(time.Hour), apperrors.ErrAlreadyUsed},
		{"expired", false, now.Add(-time.Minute), apperrors.ErrExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := setupMockStore(t)

			mock.ExpectQuery(`UPDATE user_tokens SET used = true`).
				WillReturnRows(sqlmock.NewRows(tokenRowColumns))
			mock.ExpectQuery(`SELECT id, kind, email, token`).
				WithArgs("tok", model.TokenPasswordReset).
				WillReturnRows(sqlmock.NewRows(tokenRowColumns).
					AddRow(uuid.New().String(), "password_reset", "d@x.com", "tok", tt.expires, tt.used, nil, now.Add(-time.Hour)))

			_, err := store.Tokens().Consume(context.Background(), model.TokenPasswordReset, "tok", "", now)
			require.Error(t, err)
			assert.Equal(t, tt.want, apperrors.CodeOf(err))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTokenConsume_UnknownToken(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery(`UPDATE user_tokens SET used = true`).
		WillReturnRows(sqlmock.NewRows(tokenRowColumns))
	mock.ExpectQuery(`SELECT id, kind, email, token`).
		WillReturnRows(sqlmock.NewRows(tokenRowColumns))

	_, err := store.Tokens().Consume(context.Background(), model.TokenApproval, "nope", "a@x.com", time.Now())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidToken))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRevokeForEmail(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectExec(`DELETE FROM user_tokens WHERE kind = \$1 AND email = \$2 AND used = false`).
		WithArgs(model.TokenApproval, "a@x.com").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := store.Tokens().RevokeForEmail(context.Background(), model.TokenApproval, "a@x.com")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActorCreate_DuplicateEmailIsConflict(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectExec(`INSERT INTO actors`).
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err := store.Actors().Create(context.Background(), &model.Actor{Email: "r@y.com", Role: model.RoleRelative})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActorActivate_AlreadyApproved(t *testing.T) {
	store, mock := setupMockStore(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE actors SET is_approved = true`).
		WithArgs(id, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Actors().Activate(context.Background(), id, time.Now())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrAlreadyActivated))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActorCompleteSetup_Conditional(t *testing.T) {
	store, mock := setupMockStore(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE actors SET password_hash = \$2`).
		WithArgs(id, "hash", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE actors SET password_hash = \$2`).
		WithArgs(id, "hash", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Actors().CompleteSetup(context.Background(), id, "hash", time.Now()))
	err := store.Actors().CompleteSetup(context.Background(), id, "hash", time.Now())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrAlreadyCompleted))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActorGet_NotFound(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM actors WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Actors().Get(context.Background(), uuid.New())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNextPatientSequence(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery(`INSERT INTO patient_number_sequences`).
		WithArgs(2026).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(7))

	seq, err := store.Actors().NextPatientSequence(context.Background(), 2026)
	require.NoError(t, err)
	assert.Equal(t, 7, seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalStatistics(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery(`SELECT COUNT`).
		WillReturnRows(sqlmock.NewRows([]string{"total_patients", "approved_patients", "pending_approvals"}).
			AddRow(4, 3, 1))

	stats, err := store.Actors().ApprovalStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalPatients)
	assert.InDelta(t, 75.0, stats.ApprovalRate, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx_AssignCommits(t *testing.T) {
	store, mock := setupMockStore(t)
	doctorID, patientID := uuid.New(), uuid.New()
	requestID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE doctor_requests SET status = \$2`).
		WithArgs(requestID, model.RequestAccepted, now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "doctor_id", "patient_id", "patient_name", "status", "requested_at", "decided_at"}).
			AddRow(requestID.String(), doctorID.String(), patientID.String(), "Pat", "accepted", now.Add(-time.Hour), now))
	mock.ExpectExec(`DELETE FROM doctor_patients WHERE patient_id = \$1 AND doctor_id <> \$2`).
		WithArgs(patientID, doctorID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO doctor_patients`).
		WithArgs(doctorID, patientID, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE actors SET assigned_doctor = \$2`).
		WithArgs(patientID, doctorID, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.RunInTx(context.Background(), func(ctx context.Context, tx repository.Store) error {
		if _, err := tx.Assignments().Decide(ctx, requestID, model.RequestAccepted, now); err != nil {
			return err
		}
		return tx.Assignments().Assign(ctx, doctorID, patientID, now)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	store, mock := setupMockStore(t)
	doctorID, patientID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM doctor_patients`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO doctor_patients`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := store.RunInTx(context.Background(), func(ctx context.Context, tx repository.Store) error {
		return tx.Assignments().Assign(ctx, doctorID, patientID, time.Now())
	})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrStorage))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRequest_PendingDuplicate(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectExec(`INSERT INTO doctor_requests`).
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err := store.Assignments().CreateRequest(context.Background(), &model.PendingRequest{
		DoctorID:  uuid.New(),
		PatientID: uuid.New(),
	})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActorList_EmptyPageIsNotNil(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM actors WHERE role = \$1`).
		WithArgs(model.RoleRelative).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT .* FROM actors WHERE role = \$1 ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs(model.RoleRelative, 10, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	list, total, err := store.Actors().List(context.Background(), &model.ActorFilter{Role: model.RoleRelative})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NotNil(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListWithoutRelative(t *testing.T) {
	store, mock := setupMockStore(t)
	now := time.Now().UTC()
	contactID, patientID := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT COUNT\(\*\)\s+FROM emergency_contacts ec\s+JOIN actors p .*NOT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`SELECT ec.id, .* FROM emergency_contacts ec .*r.role = 'relative' AND r.email = ec.email.* LIMIT \$1 OFFSET \$2`).
		WithArgs(2, 2).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "patient_id", "first_name", "last_name", "email", "phone", "relationship",
			"created_at", "updated_at", "patient_name", "patient_email", "patient_number",
		}).AddRow(contactID.String(), patientID.String(), "Rita", "Ient", "rita@y.com", "555", "sister",
			now, now, "Pat Ient", "p@x.com", "P-2026-0001"))

	list, total, err := store.EmergencyContacts().ListWithoutRelative(context.Background(), model.Pagination{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, list, 1)
	assert.Equal(t, contactID, list[0].ID)
	assert.Equal(t, patientID, list[0].PatientID)
	assert.Equal(t, "Pat Ient", list[0].PatientName)
	require.NotNil(t, list[0].PatientNumber)
	assert.Equal(t, "P-2026-0001", *list[0].PatientNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}
