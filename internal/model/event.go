package model

import (
	"time"

	"github.com/google/uuid"
)

// Domain event types published after successful transitions.
const (
	EventApprovalRequested = "account.approval_requested"
	EventAccountActivated  = "account.activated"
	EventPatientRejected   = "account.rejected"
	EventPasswordReset     = "account.password_reset"
	EventRelativeInvited   = "relative.invited"
	EventRelativeAccepted  = "relative.accepted"
	EventDoctorRequested   = "assignment.requested"
	EventRequestAccepted   = "assignment.accepted"
	EventRequestRejected   = "assignment.rejected"
)

// DomainEvent is the message body published on the broker.
type DomainEvent struct {
	ID         uuid.UUID              `json:"id"`
	Type       string                 `json:"type"`
	SubjectID  uuid.UUID              `json:"subject_id"`
	ActorID    *uuid.UUID             `json:"actor_id,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}
