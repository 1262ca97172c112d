package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/careportal-api/internal/model"
)

// All repository interfaces in one file
type (
	// ActorRepository stores every identity regardless of role. Email is
	// unique per role; Create returns a Conflict error otherwise.
	ActorRepository interface {
		Create(ctx context.Context, actor *model.Actor) error
		Get(ctx context.Context, id uuid.UUID) (*model.Actor, error)
		GetByEmail(ctx context.Context, email string, role model.Role) (*model.Actor, error)
		ListByEmail(ctx context.Context, email string) ([]*model.Actor, error)
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, filter *model.ActorFilter) ([]*model.Actor, int, error)

		// MarkApprovalRequested stamps the provisional approval fields and
		// sets the patient number if none is assigned yet.
		MarkApprovalRequested(ctx context.Context, id, adminID uuid.UUID, patientNumber string, at time.Time) error
		// Activate flips is_approved only while it is still false.
		// Returns AlreadyActivated otherwise.
		Activate(ctx context.Context, id uuid.UUID, at time.Time) error
		SetPassword(ctx context.Context, id uuid.UUID, hash string, at time.Time) error
		SetInvitation(ctx context.Context, id uuid.UUID, tokenID string, expires, sentAt time.Time) error
		// CompleteSetup sets the credential and accepts the invitation only
		// while it is pending. Returns AlreadyCompleted otherwise.
		CompleteSetup(ctx context.Context, id uuid.UUID, hash string, at time.Time) error
		NextPatientSequence(ctx context.Context, year int) (int, error)
		ApprovalStatistics(ctx context.Context) (*model.ApprovalStatistics, error)
	}

	// TokenRepository stores opaque single-use tokens.
	TokenRepository interface {
		Create(ctx context.Context, token *model.OpaqueToken) error
		Get(ctx context.Context, kind model.TokenKind, token string) (*model.OpaqueToken, error)
		// Consume marks the token used in one conditional write. An empty
		// email matches any. Failures carry InvalidToken, Expired or
		// AlreadyUsed.
		Consume(ctx context.Context, kind model.TokenKind, token, email string, now time.Time) (*model.OpaqueToken, error)
		RevokeForEmail(ctx context.Context, kind model.TokenKind, email string) (int64, error)
		DeleteForEmail(ctx context.Context, email string) (int64, error)
		DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	}

	// AssignmentRepository holds doctor requests and the doctor/patient
	// relation.
	AssignmentRepository interface {
		CreateRequest(ctx context.Context, req *model.PendingRequest) error
		FindPending(ctx context.Context, doctorID, patientID uuid.UUID) (*model.PendingRequest, error)
		// Decide moves a pending request to status. Returns NotFound when
		// no pending request matches.
		Decide(ctx context.Context, id uuid.UUID, status model.RequestStatus, at time.Time) (*model.PendingRequest, error)
		PendingForDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.PendingRequest, error)
		RequestedDoctors(ctx context.Context, patientID uuid.UUID) ([]*model.DoctorSummary, error)
		// Assign places patientID in doctorID's set, removing it from any
		// other doctor's set first.
		Assign(ctx context.Context, doctorID, patientID uuid.UUID, at time.Time) error
		IsAssigned(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error)
		AssignedPatients(ctx context.Context, doctorID uuid.UUID) ([]*model.AssignedPatient, error)
		DeleteForPatient(ctx context.Context, patientID uuid.UUID) error
	}

	EmergencyContactRepository interface {
		Create(ctx context.Context, contact *model.EmergencyContact) error
		ListForPatient(ctx context.Context, patientID uuid.UUID) ([]*model.EmergencyContact, error)
		// ListWithoutRelative pages through contacts whose email has no
		// relative account, newest first.
		ListWithoutRelative(ctx context.Context, page model.Pagination) ([]*model.RelativeRequest, int, error)
	}

	// Store groups the repositories and runs them inside one transaction.
	Store interface {
		Actors() ActorRepository
		Tokens() TokenRepository
		Assignments() AssignmentRepository
		EmergencyContacts() EmergencyContactRepository
		// RunInTx commits when fn returns nil and rolls back otherwise.
		RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
		Ping(ctx context.Context) error
	}
)
