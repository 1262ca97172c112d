// Package account drives actors through their provisioning lifecycles:
// patient approval and activation, doctor password reset, and relative
// invitation. Every link it mails is persisted before the mail is sent.
package account

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/jwalitptl/careportal-api/internal/email"
	"github.com/jwalitptl/careportal-api/internal/repository"
	"github.com/jwalitptl/careportal-api/internal/service/event"
	"github.com/jwalitptl/careportal-api/internal/token"
	"github.com/jwalitptl/careportal-api/pkg/auth"
	apperrors "github.com/jwalitptl/careportal-api/pkg/errors"
	"github.com/jwalitptl/careportal-api/pkg/logger"
	"github.com/jwalitptl/careportal-api/pkg/metrics"
	"github.com/jwalitptl/careportal-api/pkg/security"
)

// Config holds the lifecycle parameters.
type Config struct {
	ApprovalTTL       time.Duration
	ResetTTL          time.Duration
	InvitationTTL     time.Duration
	MinPasswordLength int
	// FrontendURL is the base every mailed link is built on.
	FrontendURL string
}

// Deps are the collaborators the service calls.
type Deps struct {
	Store    repository.Store
	Opaque   *token.OpaqueIssuer
	Claims   *token.ClaimIssuer
	Hasher   security.PasswordHasher
	Sessions auth.JWTService
	Mailer   email.Service
	Events   event.Publisher
	Metrics  *metrics.Metrics
	Logger   *logger.Logger
	Clock    token.Clock
}

type Service struct {
	store    repository.Store
	opaque   *token.OpaqueIssuer
	claims   *token.ClaimIssuer
	hasher   security.PasswordHasher
	sessions auth.JWTService
	mailer   email.Service
	events   event.Publisher
	metrics  *metrics.Metrics
	log      *logger.Logger
	now      token.Clock
	cfg      Config
}

func NewService(deps Deps, cfg Config) *Service {
	if deps.Events == nil {
		deps.Events = event.Nop()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}
	if deps.Opaque == nil {
		deps.Opaque = token.NewOpaqueIssuer(deps.Clock)
	}
	if cfg.ApprovalTTL <= 0 {
		cfg.ApprovalTTL = 7 * 24 * time.Hour
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = 24 * time.Hour
	}
	if cfg.InvitationTTL <= 0 {
		cfg.InvitationTTL = 7 * 24 * time.Hour
	}
	if cfg.MinPasswordLength <= 0 {
		cfg.MinPasswordLength = security.MinPasswordLen
	}
	return &Service{
		store:    deps.Store,
		opaque:   deps.Opaque,
		claims:   deps.Claims,
		hasher:   deps.Hasher,
		sessions: deps.Sessions,
		mailer:   deps.Mailer,
		events:   deps.Events,
		metrics:  deps.Metrics,
		log:      deps.Logger,
		now:      deps.Clock,
		cfg:      cfg,
	}
}

// link builds a frontend URL carrying query params.
func (s *Service) link(path string, query url.Values) string {
	return strings.TrimRight(s.cfg.FrontendURL, "/") + path + "?" + query.Encode()
}

// notified records the outcome of a send and reports whether it went out.
// The token itself is never logged.
func (s *Service) notified(ctx context.Context, template, to string, t token.Token, err error) bool {
	s.metrics.Notification(template, err == nil)
	if err != nil {
		s.log.WithContext(ctx).Warn("notification not delivered",
			"template", template,
			"to", to,
			"token_fp", token.Fingerprint(t.String()),
			"error", err.Error(),
		)
		return false
	}
	return true
}

// consumeResult labels a redemption outcome for metrics.
func consumeResult(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(string(apperrors.CodeOf(err)))
}
