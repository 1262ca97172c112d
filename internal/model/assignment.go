package model

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the lifecycle of a doctor pairing request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

// PendingRequest is a patient's request to be paired with a doctor.
type PendingRequest struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	DoctorID    uuid.UUID     `json:"doctor_id" db:"doctor_id"`
	PatientID   uuid.UUID     `json:"patient_id" db:"patient_id"`
	PatientName string        `json:"patient_name" db:"patient_name"`
	Status      RequestStatus `json:"status" db:"status"`
	RequestedAt time.Time     `json:"requested_at" db:"requested_at"`
	DecidedAt   *time.Time    `json:"decided_at,omitempty" db:"decided_at"`
}

// AssignedPatient is the doctor-side projection of an assignment.
type AssignedPatient struct {
	PatientID     uuid.UUID `json:"id" db:"patient_id"`
	FirstName     string    `json:"first_name" db:"first_name"`
	LastName      string    `json:"last_name" db:"last_name"`
	Email         string    `json:"email" db:"email"`
	Phone         string    `json:"phone" db:"phone"`
	PatientNumber *string   `json:"patient_number,omitempty" db:"patient_number"`
	AssignedAt    time.Time `json:"assigned_at" db:"assigned_at"`
}

// DoctorSummary is the patient-side projection of a doctor.
type DoctorSummary struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	FirstName      string        `json:"first_name" db:"first_name"`
	LastName       string        `json:"last_name" db:"last_name"`
	Email          string        `json:"email" db:"email"`
	Specialization *string       `json:"specialization,omitempty" db:"specialization"`
	Status         RequestStatus `json:"status,omitempty" db:"status"`
}
