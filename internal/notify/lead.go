package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/leasing-leads-api/pkg/logging"
)

// LeadNotice is what the sales inbox learns about an accepted lead.
type LeadNotice struct {
	Subject    string
	Name       string
	Phone      string
	Model      string
	RequestURL string
	ReceivedAt string

	Forwarded     bool
	ForwardStatus int
	ForwardError  string
}

// LeadNotifier mails a copy of each accepted lead to one inbox.
type LeadNotifier struct {
	sender EmailSender
	to     string
	logger *logging.Logger
}

func NewLeadNotifier(sender EmailSender, to string, logger *logging.Logger) (*LeadNotifier, error) {
	if sender == nil {
		return nil, ErrSenderNotConfigured
	}
	if strings.TrimSpace(to) == "" {
		return nil, ErrMissingRecipient
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LeadNotifier{sender: sender, to: strings.TrimSpace(to), logger: logger}, nil
}

// NotifyLead sends the notice. Failures are returned for logging only.
func (n *LeadNotifier) NotifyLead(ctx context.Context, notice LeadNotice) error {
	msg := EmailMessage{
		To:      n.to,
		Subject: notice.Subject,
		Body:    RenderLead(notice),
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: lead notice: %w", err)
	}
	return nil
}

// RenderLead builds the plain-text body of a lead notice.
func RenderLead(notice LeadNotice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", notice.Subject)
	fmt.Fprintf(&b, "Имя: %s\n", notice.Name)
	fmt.Fprintf(&b, "Телефон: %s\n", notice.Phone)
	if notice.Model != "" {
		fmt.Fprintf(&b, "Модель: %s\n", notice.Model)
	}
	fmt.Fprintf(&b, "Страница: %s\n", notice.RequestURL)
	fmt.Fprintf(&b, "Время: %s\n", notice.ReceivedAt)

	switch {
	case notice.Forwarded:
		fmt.Fprintf(&b, "\nCallTouch: передано (HTTP %d)\n", notice.ForwardStatus)
	case notice.ForwardError != "":
		fmt.Fprintf(&b, "\nCallTouch: не передано (%s)\n", notice.ForwardError)
	}
	return b.String()
}
