package bootstrap

import (
	"go.opentelemetry.io/otel"

	"github.com/wolfman30/leasing-leads-api/internal/calltouch"
	appconfig "github.com/wolfman30/leasing-leads-api/internal/config"
	"github.com/wolfman30/leasing-leads-api/pkg/logging"
)

const tracerName = "github.com/wolfman30/leasing-leads-api/calltouch"

// BuildForwarder returns the CallTouch client. An unconfigured client is
// still returned; it reports every lead as not forwarded.
func BuildForwarder(cfg *appconfig.Config, logger *logging.Logger) *calltouch.Client {
	if logger == nil {
		logger = logging.Default()
	}
	if !cfg.CallTouchConfigured() {
		logger.Warn("calltouch not configured; leads will not be forwarded")
	}
	return calltouch.New(calltouch.Config{
		Host:    cfg.CallTouchHost,
		APIPath: cfg.CallTouchAPIPath,
		SiteID:  cfg.CallTouchSiteID,
		Timeout: cfg.CallTouchTimeout,
		Tracer:  otel.Tracer(tracerName),
		Logger:  logger,
	})
}
