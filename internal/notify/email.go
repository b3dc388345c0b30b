package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/leasing-leads-api/pkg/logging"
)

const defaultFromName = "Заявки с сайта"

// EmailSender delivers one lead notice to the sales inbox.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a rendered lead notice. Notices are plain text; HTML is
// only sent when a caller sets it.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
	HTML    string
}

// Sender is the From identity shared by every provider.
type Sender struct {
	Email string
	Name  string
}

func newSender(email, name string) Sender {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultFromName
	}
	return Sender{Email: strings.TrimSpace(email), Name: name}
}

// Address formats the identity as `Name <email>`.
func (s Sender) Address() string {
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}

// SendGridConfig configures lead notices through SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGridSender mails lead notices through the SendGrid v3 API.
type SendGridSender struct {
	client *sendgrid.Client
	from   Sender
	logger *logging.Logger
}

// NewSendGridSender returns nil when no API key is configured, letting
// bootstrap fall back to the stub.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SendGridSender{
		client: sendgrid.NewSendClient(cfg.APIKey),
		from:   newSender(cfg.FromEmail, cfg.FromName),
		logger: logger,
	}
}

// From reports the identity notices are sent as.
func (s *SendGridSender) From() Sender {
	return s.from
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return ErrSenderNotConfigured
	}

	html := msg.HTML
	if html == "" {
		html = msg.Body
	}
	message := mail.NewSingleEmail(
		mail.NewEmail(s.from.Name, s.from.Email),
		msg.Subject,
		mail.NewEmail(msg.ToName, msg.To),
		msg.Body,
		html,
	)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("notify: sendgrid lead notice: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid rejected lead notice", "status", response.StatusCode, "body", response.Body, "to", msg.To)
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info("lead notice sent", "provider", "sendgrid", "to", msg.To, "subject", msg.Subject)
	return nil
}

// StubEmailSender only logs notices. Used when no provider is configured.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("lead notice not sent, no email provider", "to", msg.To, "subject", msg.Subject)
	return nil
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
