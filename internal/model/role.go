package model

import "fmt"

// Role is the kind of identity an Actor represents.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleDoctor   Role = "doctor"
	RolePatient  Role = "patient"
	RoleRelative Role = "relative"
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleDoctor, RolePatient, RoleRelative:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string { return string(r) }

// Capability names an action a role may perform.
type Capability string

const (
	CapApprovePatients   Capability = "patients:approve"
	CapManageRelatives   Capability = "relatives:manage"
	CapManageDoctors     Capability = "doctors:manage"
	CapRequestDoctor     Capability = "assignment:request"
	CapDecideRequests    Capability = "assignment:decide"
	CapViewAssignedCases Capability = "assignment:view"
)

var roleCapabilities = map[Role][]Capability{
	RoleAdmin:   {CapApprovePatients, CapManageRelatives, CapManageDoctors},
	RoleDoctor:  {CapDecideRequests, CapViewAssignedCases},
	RolePatient: {CapRequestDoctor},
}

// Can reports whether the role grants c.
func (r Role) Can(c Capability) bool {
	for _, granted := range roleCapabilities[r] {
		if granted == c {
			return true
		}
	}
	return false
}

// AccessLevel scopes what a relative may see of the monitored patient.
type AccessLevel string

const (
	AccessViewOnly      AccessLevel = "view_only"
	AccessCaretaker     AccessLevel = "caretaker"
	AccessEmergencyOnly AccessLevel = "emergency_only"
)

// Valid reports whether a is one of the known levels.
func (a AccessLevel) Valid() bool {
	switch a {
	case AccessViewOnly, AccessCaretaker, AccessEmergencyOnly:
		return true
	}
	return false
}

// InvitationStatus is the relative invitation lifecycle.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
)
