package notify

import "errors"

var (
	// ErrSenderNotConfigured is returned by a sender built without credentials.
	ErrSenderNotConfigured = errors.New("notify: email sender not configured")

	// ErrMissingRecipient is returned when a lead notifier has no inbox to write to.
	ErrMissingRecipient = errors.New("notify: recipient address required")
)
