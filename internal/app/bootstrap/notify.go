package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/leasing-leads-api/internal/config"
	"github.com/wolfman30/leasing-leads-api/internal/notify"
	"github.com/wolfman30/leasing-leads-api/pkg/logging"
)

// BuildEmailSender selects the e-mail provider. It never returns nil: when
// the chosen provider lacks credentials the stub sender is used. The second
// value names the provider in effect.
func BuildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (notify.EmailSender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger), "stub"
	}

	switch cfg.EmailProvider {
	case "ses":
		if strings.TrimSpace(cfg.SESFromEmail) == "" {
			logger.Warn("ses selected but SES_FROM_EMAIL empty; using stub email sender")
			break
		}
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Warn("aws config unavailable; using stub email sender", "error", err)
			break
		}
		client := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
			if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
		if sender := notify.NewSESSender(client, notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.EmailFromName,
		}, logger); sender != nil {
			return sender, "ses"
		}
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.EmailFromName,
		}, logger); sender != nil {
			return sender, "sendgrid"
		}
		logger.Warn("SENDGRID_API_KEY empty; using stub email sender")
	case "stub":
	default:
		logger.Warn("unknown email provider; using stub email sender", "provider", cfg.EmailProvider)
	}
	return notify.NewStubEmailSender(logger), "stub"
}

// BuildLeadNotifier returns nil, nil when LEAD_NOTIFY_EMAIL is unset.
func BuildLeadNotifier(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*notify.LeadNotifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if strings.TrimSpace(cfg.LeadNotifyEmail) == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	sender, provider := BuildEmailSender(ctx, cfg, logger)
	notifier, err := notify.NewLeadNotifier(sender, cfg.LeadNotifyEmail, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: lead notifier: %w", err)
	}
	logger.Info("lead e-mail notifications enabled", "provider", provider)
	return notifier, nil
}
