package email

import (
	"context"
	"errors"
	"time"

	"github.com/jwalitptl/careportal-api/pkg/logger"
)

// ErrNotDelivered is returned by the log mailer so callers take the same
// path as a failed send and surface links to the admin.
var ErrNotDelivered = errors.New("email delivery disabled")

type logService struct {
	log *logger.Logger
}

// NewLogService records mail metadata without sending. Used when SMTP is
// disabled.
func NewLogService(log *logger.Logger) Service {
	return &logService{log: log}
}

func (s *logService) SendActivation(ctx context.Context, to, name, _ string, _ time.Time) error {
	return s.record(ctx, to, "activation")
}

func (s *logService) SendRejection(ctx context.Context, to, _, _ string) error {
	return s.record(ctx, to, "rejection")
}

func (s *logService) SendPasswordReset(ctx context.Context, to, _, _ string, _ time.Time) error {
	return s.record(ctx, to, "password_reset")
}

func (s *logService) SendRelativeInvitation(ctx context.Context, inv RelativeInvitation) error {
	return s.record(ctx, inv.To, "relative_invitation")
}

func (s *logService) record(ctx context.Context, to, tmpl string) error {
	s.log.WithContext(ctx).Info("email not sent, smtp disabled", "to", to, "template", tmpl)
	return ErrNotDelivered
}
