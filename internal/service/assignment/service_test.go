package assignment

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/careportal-api/internal/model"
	"github.com/jwalitptl/careportal-api/internal/repository/memory"
	apperrors "github.com/jwalitptl/careportal-api/pkg/errors"
	"github.com/jwalitptl/careportal-api/pkg/logger"
	"github.com/jwalitptl/careportal-api/pkg/metrics"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(_ context.Context, eventType string, subjectID uuid.UUID, actorID *uuid.UUID, data map[string]interface{}) {
	m.Called(eventType, subjectID)
}

func setup(t *testing.T) (*Service, *memory.Store, *mockPublisher) {
	t.Helper()
	store := memory.NewStore()
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return()
	return NewService(store, pub, metrics.New("test"), logger.Nop()), store, pub
}

func seed(t *testing.T, store *memory.Store, role model.Role, email string) *model.Actor {
	t.Helper()
	a := &model.Actor{Email: email, FirstName: string(role), LastName: "Test", Role: role}
	require.NoError(t, store.Actors().Create(context.Background(), a))
	return a
}

func assignedIDs(t *testing.T, svc *Service, doctorID uuid.UUID) []uuid.UUID {
	t.Helper()
	patients, err := svc.AssignedPatients(context.Background(), doctorID)
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(patients))
	for _, p := range patients {
		ids = append(ids, p.PatientID)
	}
	return ids
}

func TestPairing_RequestAcceptMove(t *testing.T) {
	svc, store, pub := setup(t)
	ctx := context.Background()
	patient := seed(t, store, model.RolePatient, "p@x.com")
	first := seed(t, store, model.RoleDoctor, "d1@x.com")
	second := seed(t, store, model.RoleDoctor, "d2@x.com")

	req, err := svc.RequestDoctor(ctx, patient.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, req.Status)
	pub.AssertCalled(t, "Publish", model.EventDoctorRequested, req.ID)

	_, err = svc.RequestDoctor(ctx, patient.ID, first.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConflict))

	requested, err := svc.RequestedDoctors(ctx, patient.ID)
	require.NoError(t, err)
	require.Len(t, requested, 1)
	assert.Equal(t, first.ID, requested[0].ID)

	pending, err := svc.PendingRequests(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	accepted, err := svc.AcceptRequest(ctx, first.ID, patient.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestAccepted, accepted.Status)
	assert.NotNil(t, accepted.DecidedAt)
	pub.AssertCalled(t, "Publish", model.EventRequestAccepted, accepted.ID)

	assert.Equal(t, []uuid.UUID{patient.ID}, assignedIDs(t, svc, first.ID))
	p, err := store.Actors().Get(ctx, patient.ID)
	require.NoError(t, err)
	assert.True(t, p.IsAssignedTo(first.ID))

	requested, err = svc.RequestedDoctors(ctx, patient.ID)
	require.NoError(t, err)
	assert.Empty(t, requested)

	mine, err := svc.MyDoctor(ctx, patient.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, mine.ID)

	_, err = svc.RequestDoctor(ctx, patient.ID, first.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConflict))

	_, err = svc.RequestDoctor(ctx, patient.ID, second.ID)
	require.NoError(t, err)
	_, err = svc.AcceptRequest(ctx, second.ID, patient.ID)
	require.NoError(t, err)

	assert.Empty(t, assignedIDs(t, svc, first.ID))
	assert.Equal(t, []uuid.UUID{patient.ID}, assignedIDs(t, svc, second.ID))
	p, err = store.Actors().Get(ctx, patient.ID)
	require.NoError(t, err)
	assert.True(t, p.IsAssignedTo(second.ID))
}

func TestRejectRequest_LeavesAssignmentAlone(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()
	patient := seed(t, store, model.RolePatient, "p@x.com")
	current := seed(t, store, model.RoleDoctor, "d1@x.com")
	other := seed(t, store, model.RoleDoctor, "d2@x.com")

	_, err := svc.RequestDoctor(ctx, patient.ID, current.ID)
	require.NoError(t, err)
	_, err = svc.AcceptRequest(ctx, current.ID, patient.ID)
	require.NoError(t, err)

	_, err = svc.RequestDoctor(ctx, patient.ID, other.ID)
	require.NoError(t, err)
	rejected, err := svc.RejectRequest(ctx, other.ID, patient.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestRejected, rejected.Status)

	assert.Equal(t, []uuid.UUID{patient.ID}, assignedIDs(t, svc, current.ID))
	assert.Empty(t, assignedIDs(t, svc, other.ID))
	p, err := store.Actors().Get(ctx, patient.ID)
	require.NoError(t, err)
	assert.True(t, p.IsAssignedTo(current.ID))

	_, err = svc.RejectRequest(ctx, other.ID, patient.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))

	// A rejected request can be filed again.
	_, err = svc.RequestDoctor(ctx, patient.ID, other.ID)
	assert.NoError(t, err)
}

func TestDecide_RequiresPendingRequestForThatDoctor(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()
	patient := seed(t, store, model.RolePatient, "p@x.com")
	addressee := seed(t, store, model.RoleDoctor, "d1@x.com")
	bystander := seed(t, store, model.RoleDoctor, "d2@x.com")

	_, err := svc.AcceptRequest(ctx, addressee.ID, patient.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))

	_, err = svc.RequestDoctor(ctx, patient.ID, addressee.ID)
	require.NoError(t, err)

	_, err = svc.AcceptRequest(ctx, bystander.ID, patient.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
	assert.Empty(t, assignedIDs(t, svc, bystander.ID))
}

func TestRequestDoctor_Roles(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()
	patient := seed(t, store, model.RolePatient, "p@x.com")
	doctor := seed(t, store, model.RoleDoctor, "d@x.com")
	relative := seed(t, store, model.RoleRelative, "r@x.com")

	_, err := svc.RequestDoctor(ctx, relative.ID, doctor.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))

	_, err = svc.RequestDoctor(ctx, patient.ID, relative.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))

	_, err = svc.RequestDoctor(ctx, patient.ID, uuid.New())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
}

func TestAcceptRequest_Concurrent(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()
	patient := seed(t, store, model.RolePatient, "p@x.com")
	doctor := seed(t, store, model.RoleDoctor, "d@x.com")
	_, err := svc.RequestDoctor(ctx, patient.ID, doctor.ID)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		notFound int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AcceptRequest(ctx, doctor.ID, patient.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case apperrors.HasCode(err, apperrors.ErrNotFound):
				notFound++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, 7, notFound)
	assert.Equal(t, []uuid.UUID{patient.ID}, assignedIDs(t, svc, doctor.ID))
}

func TestMyDoctor_Unassigned(t *testing.T) {
	svc, store, _ := setup(t)
	patient := seed(t, store, model.RolePatient, "p@x.com")

	_, err := svc.MyDoctor(context.Background(), patient.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
}
