package email

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/careportal-api/pkg/circuitbreaker"
	"github.com/jwalitptl/careportal-api/pkg/logger"
)

type fakeSender struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeSender) DialAndSend(m ...*gomail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m...)
	return nil
}

func body(t *testing.T, m *gomail.Message) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	return buf.String()
}

func TestSMTPService_RelativeInvitation(t *testing.T) {
	sender := &fakeSender{}
	svc := NewSMTPServiceWithSender(sender, "no-reply@careportal.local")

	err := svc.SendRelativeInvitation(context.Background(), RelativeInvitation{
		To:           "r@y.com",
		RelativeName: "Rita",
		PatientName:  "Pat",
		Relationship: "sister",
		AccessLevel:  "caretaker",
		SetupLink:    "https://portal.example/relative-setup?token=abc",
		ExpiresAt:    time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, []string{"r@y.com"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"You're invited to CarePortal"}, msg.GetHeader("Subject"))
	assert.Contains(t, body(t, msg), "Pat")
}

func TestSMTPService_FailureOpensBreaker(t *testing.T) {
	sender := &fakeSender{err: errors.New("connection refused")}
	svc := NewSMTPServiceWithSender(sender, "no-reply@careportal.local")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.Error(t, svc.SendRejection(ctx, "p@x.com", "Pat", "incomplete documents"))
	}
	err := svc.SendRejection(ctx, "p@x.com", "Pat", "incomplete documents")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
}

func TestSMTPService_CancelledContext(t *testing.T) {
	sender := &fakeSender{}
	svc := NewSMTPServiceWithSender(sender, "no-reply@careportal.local")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.SendPasswordReset(ctx, "d@x.com", "Doc", "https://x", time.Now())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sender.sent)
}

func TestRender_EscapesInput(t *testing.T) {
	_, html, err := render("rejection", map[string]interface{}{
		"Name":   "<script>alert(1)</script>",
		"Reason": "",
	})
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
	assert.NotContains(t, html, "Reason:")
}

func TestLogService_ReportsNotDelivered(t *testing.T) {
	svc := NewLogService(logger.Nop())
	err := svc.SendActivation(context.Background(), "a@x.com", "A", "https://x", time.Now())
	assert.ErrorIs(t, err, ErrNotDelivered)
}
