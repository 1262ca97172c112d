package email

import (
	"context"
	"time"
)

// RelativeInvitation carries what the invitation mail shows the relative.
type RelativeInvitation struct {
	To           string
	RelativeName string
	PatientName  string
	Relationship string
	AccessLevel  string
	SetupLink    string
	ExpiresAt    time.Time
}

// Service delivers account-provisioning mail. Callers treat a returned
// error as "not sent" and fall back to surfacing the link to an admin.
type Service interface {
	SendActivation(ctx context.Context, to, name, link string, expiresAt time.Time) error
	SendRejection(ctx context.Context, to, name, reason string) error
	SendPasswordReset(ctx context.Context, to, name, link string, expiresAt time.Time) error
	SendRelativeInvitation(ctx context.Context, inv RelativeInvitation) error
}
