package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Actor is any identity record: admin, doctor, patient or relative.
// Role-specific columns are nullable and only meaningful for that role.
type Actor struct {
	Base
	Email             string     `json:"email" db:"email"`
	FirstName         string     `json:"first_name" db:"first_name"`
	LastName          string     `json:"last_name" db:"last_name"`
	Phone             string     `json:"phone" db:"phone"`
	PasswordHash      string     `json:"-" db:"password_hash"`
	Role              Role       `json:"role" db:"role"`
	ProfileCompleted  bool       `json:"profile_completed" db:"profile_completed"`
	IsFirstLogin      bool       `json:"is_first_login" db:"is_first_login"`
	PasswordChangedAt *time.Time `json:"password_changed_at,omitempty" db:"password_changed_at"`

	// patient
	IsApproved     bool       `json:"is_approved" db:"is_approved"`
	EmailVerified  bool       `json:"email_verified" db:"email_verified"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	ApprovedBy     *uuid.UUID `json:"approved_by,omitempty" db:"approved_by"`
	PatientNumber  *string    `json:"patient_number,omitempty" db:"patient_number"`
	AssignedDoctor *uuid.UUID `json:"assigned_doctor,omitempty" db:"assigned_doctor"`

	// doctor
	Specialization *string `json:"specialization,omitempty" db:"specialization"`

	// relative
	IsEmergencyContact      bool              `json:"is_emergency_contact" db:"is_emergency_contact"`
	RelationshipToPatient   *string           `json:"relationship_to_patient,omitempty" db:"relationship_to_patient"`
	MonitoredPatient        *uuid.UUID        `json:"monitored_patient,omitempty" db:"monitored_patient"`
	MonitoredPatientProfile *uuid.UUID        `json:"monitored_patient_profile,omitempty" db:"monitored_patient_profile"`
	InvitationToken         *string           `json:"-" db:"invitation_token"`
	InvitationExpires       *time.Time        `json:"invitation_expires,omitempty" db:"invitation_expires"`
	InvitationSentAt        *time.Time        `json:"invitation_sent_at,omitempty" db:"invitation_sent_at"`
	InvitationStatus        *InvitationStatus `json:"invitation_status,omitempty" db:"invitation_status"`
	AccessLevel             *AccessLevel      `json:"access_level,omitempty" db:"access_level"`
	AdminNotes              *string           `json:"admin_notes,omitempty" db:"admin_notes"`
}

// FullName joins first and last name.
func (a *Actor) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// Is reports whether the actor has role r.
func (a *Actor) Is(r Role) bool {
	return a != nil && a.Role == r
}

// Can reports whether the actor's role grants c.
func (a *Actor) Can(c Capability) bool {
	return a != nil && a.Role.Can(c)
}

// CanAccept reports whether this actor may decide req: it must be a doctor,
// the addressee of the request, and the request must still be pending.
func (a *Actor) CanAccept(req *PendingRequest) bool {
	if a == nil || req == nil {
		return false
	}
	return a.Can(CapDecideRequests) && req.DoctorID == a.ID && req.Status == RequestPending
}

// IsAssignedTo reports whether the patient's back-pointer names doctorID.
func (a *Actor) IsAssignedTo(doctorID uuid.UUID) bool {
	return a.AssignedDoctor != nil && *a.AssignedDoctor == doctorID
}

// InvitationState returns the invitation status, empty when unset.
func (a *Actor) InvitationState() InvitationStatus {
	if a.InvitationStatus == nil {
		return ""
	}
	return *a.InvitationStatus
}

// Access returns the relative access level, defaulting to view_only.
func (a *Actor) Access() AccessLevel {
	if a.AccessLevel == nil || !a.AccessLevel.Valid() {
		return AccessViewOnly
	}
	return *a.AccessLevel
}

// Relationship returns the relationship label, empty when unset.
func (a *Actor) Relationship() string {
	if a.RelationshipToPatient == nil {
		return ""
	}
	return *a.RelationshipToPatient
}

// ActorFilter narrows actor listings.
type ActorFilter struct {
	Role             Role
	IsApproved       *bool
	InvitationStatus InvitationStatus
	ProfileCompleted *bool
	Pagination
}

// ApprovalStatistics summarises patient approval state for the admin view.
type ApprovalStatistics struct {
	TotalPatients    int     `json:"total_patients" db:"total_patients"`
	ApprovedPatients int     `json:"approved_patients" db:"approved_patients"`
	PendingApprovals int     `json:"pending_approvals" db:"pending_approvals"`
	ApprovalRate     float64 `json:"approval_rate"`
}

// EmergencyContact is the patient-owned contact record a relative account is
// derived from.
type EmergencyContact struct {
	Base
	PatientID    uuid.UUID `json:"patient_id" db:"patient_id"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	Email        string    `json:"email" db:"email"`
	Phone        string    `json:"phone" db:"phone"`
	Relationship string    `json:"relationship" db:"relationship"`
}

// RelativeRequest is an emergency contact that has no relative account yet,
// together with the patient who listed it.
type RelativeRequest struct {
	EmergencyContact
	PatientName   string  `json:"patient_name" db:"patient_name"`
	PatientEmail  string  `json:"patient_email" db:"patient_email"`
	PatientNumber *string `json:"patient_number,omitempty" db:"patient_number"`
}

// NormalizeEmail is the canonical form emails are stored and compared in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
