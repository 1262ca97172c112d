package account

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/careportal-api/internal/email"
	"github.com/jwalitptl/careportal-api/internal/model"
	"github.com/jwalitptl/careportal-api/internal/repository/memory"
	"github.com/jwalitptl/careportal-api/internal/token"
	"github.com/jwalitptl/careportal-api/pkg/auth"
	"github.com/jwalitptl/careportal-api/pkg/metrics"
	"github.com/jwalitptl/careportal-api/pkg/security"
)

type sentMail struct {
	template string
	to       string
	link     string
	reason   string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail bool
}

func (m *fakeMailer) record(mail sentMail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, mail)
	return nil
}

func (m *fakeMailer) SendActivation(_ context.Context, to, _, link string, _ time.Time) error {
	return m.record(sentMail{template: "activation", to: to, link: link})
}

func (m *fakeMailer) SendRejection(_ context.Context, to, _, reason string) error {
	return m.record(sentMail{template: "rejection", to: to, reason: reason})
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, to, _, link string, _ time.Time) error {
	return m.record(sentMail{template: "password_reset", to: to, link: link})
}

func (m *fakeMailer) SendRelativeInvitation(_ context.Context, inv email.RelativeInvitation) error {
	return m.record(sentMail{template: "relative_invitation", to: inv.To, link: inv.SetupLink})
}

func (m *fakeMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no mail sent")
	return m.sent[len(m.sent)-1]
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fixture struct {
	svc    *Service
	store  *memory.Store
	mailer *fakeMailer
	hasher security.PasswordHasher
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.NewStore(),
		mailer: &fakeMailer{},
		hasher: security.NewBcryptHasher(4, 8),
		now:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.svc = NewService(Deps{
		Store:    f.store,
		Opaque:   token.NewOpaqueIssuer(clock),
		Claims:   token.NewClaimIssuer("invitation-secret", "careportal", clock),
		Hasher:   f.hasher,
		Sessions: auth.NewJWTService("session-secret", "careportal", time.Hour),
		Mailer:   f.mailer,
		Metrics:  metrics.New("test"),
		Clock:    clock,
	}, Config{FrontendURL: "https://portal.test/"})
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) seed(t *testing.T, role model.Role, mail, first, last string) *model.Actor {
	t.Helper()
	a := &model.Actor{
		Email:        mail,
		FirstName:    first,
		LastName:     last,
		Role:         role,
		PasswordHash: security.PlaceholderHash,
		IsFirstLogin: true,
	}
	require.NoError(t, f.store.Actors().Create(context.Background(), a))
	return a
}

func (f *fixture) actor(t *testing.T, id uuid.UUID) *model.Actor {
	t.Helper()
	a, err := f.store.Actors().Get(context.Background(), id)
	require.NoError(t, err)
	return a
}

func tokenFrom(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	tok := u.Query().Get("token")
	require.NotEmpty(t, tok)
	return tok
}
