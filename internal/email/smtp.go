package email

import (
	"context"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/careportal-api/internal/config"
	"github.com/jwalitptl/careportal-api/pkg/circuitbreaker"
)

// Sender is the part of gomail.Dialer the service uses.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpService struct {
	sender Sender
	from   string
	cb     *circuitbreaker.CircuitBreaker
}

func NewSMTPService(cfg config.SMTPConfig) Service {
	return NewSMTPServiceWithSender(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From)
}

func NewSMTPServiceWithSender(sender Sender, from string) Service {
	return &smtpService{
		sender: sender,
		from:   from,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "smtp",
			MaxFailures: 3,
			Timeout:     time.Minute,
		}),
	}
}

func (s *smtpService) SendActivation(ctx context.Context, to, name, link string, expiresAt time.Time) error {
	return s.send(ctx, to, "activation", map[string]interface{}{
		"Name": name, "Link": link, "ExpiresAt": expiresAt,
	})
}

func (s *smtpService) SendRejection(ctx context.Context, to, name, reason string) error {
	return s.send(ctx, to, "rejection", map[string]interface{}{
		"Name": name, "Reason": reason,
	})
}

func (s *smtpService) SendPasswordReset(ctx context.Context, to, name, link string, expiresAt time.Time) error {
	return s.send(ctx, to, "password_reset", map[string]interface{}{
		"Name": name, "Link": link, "ExpiresAt": expiresAt,
	})
}

func (s *smtpService) SendRelativeInvitation(ctx context.Context, inv RelativeInvitation) error {
	return s.send(ctx, inv.To, "relative_invitation", inv)
}

func (s *smtpService) send(ctx context.Context, to, tmpl string, data interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, body, err := render(tmpl, data)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	return s.cb.Execute(func() error {
		return s.sender.DialAndSend(m)
	})
}
