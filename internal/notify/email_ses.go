package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/wolfman30/leasing-leads-api/pkg/logging"
)

const utf8Charset = "UTF-8"

// SESAPI is the part of the SES v2 client lead notices need.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig configures lead notices through SES.
type SESConfig struct {
	FromEmail string
	FromName  string
}

// SESSender mails lead notices through Amazon SES v2.
type SESSender struct {
	client SESAPI
	from   Sender
	logger *logging.Logger
}

// NewSESSender returns nil without a client.
func NewSESSender(client SESAPI, cfg SESConfig, logger *logging.Logger) *SESSender {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SESSender{
		client: client,
		from:   newSender(cfg.FromEmail, cfg.FromName),
		logger: logger,
	}
}

// From reports the identity notices are sent as.
func (s *SESSender) From() Sender {
	return s.from
}

func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return ErrSenderNotConfigured
	}

	body := &types.Body{}
	if msg.Body != "" {
		body.Text = utf8Content(msg.Body)
	}
	if msg.HTML != "" {
		body.Html = utf8Content(msg.HTML)
	}

	output, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from.Address()),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: utf8Content(msg.Subject),
				Body:    body,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("notify: ses lead notice: %w", err)
	}

	s.logger.Info("lead notice sent", "provider", "ses", "to", msg.To, "subject", msg.Subject, "message_id", aws.ToString(output.MessageId))
	return nil
}

func utf8Content(data string) *types.Content {
	return &types.Content{Data: aws.String(data), Charset: aws.String(utf8Charset)}
}

var _ EmailSender = (*SESSender)(nil)
