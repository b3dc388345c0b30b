package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/leasing-leads-api/internal/api/router"
	"github.com/wolfman30/leasing-leads-api/internal/app/bootstrap"
	"github.com/wolfman30/leasing-leads-api/internal/catalog"
	appconfig "github.com/wolfman30/leasing-leads-api/internal/config"
	"github.com/wolfman30/leasing-leads-api/internal/dispatch"
	"github.com/wolfman30/leasing-leads-api/internal/leads"
	"github.com/wolfman30/leasing-leads-api/internal/observability/metrics"
	"github.com/wolfman30/leasing-leads-api/pkg/logging"
)

const (
	limiterSweepInterval = time.Minute
	drainGrace           = 5 * time.Second
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting leasing-leads API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// run serves until ctx is cancelled, then drains HTTP and detached forwards.
func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var serveFailure error
	select {
	case serveFailure = <-serveErr:
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	if err := shutdown(srv, app.dispatcher, cfg.ShutdownTimeout, logger); err != nil {
		return err
	}
	return serveFailure
}

type httpShutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdown stops accepting requests, then drains detached forwards. The
// dispatcher is drained even when the HTTP shutdown fails; if that consumed
// the whole budget it gets drainGrace of its own.
func shutdown(srv httpShutdowner, dispatcher *dispatch.Dispatcher, timeout time.Duration, logger *logging.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var serverErr error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		serverErr = fmt.Errorf("server forced to shutdown: %w", err)
	}

	drainCtx := shutdownCtx
	if shutdownCtx.Err() != nil {
		var drainCancel context.CancelFunc
		drainCtx, drainCancel = context.WithTimeout(context.Background(), drainGrace)
		defer drainCancel()
	}
	if err := dispatcher.Shutdown(drainCtx); err != nil {
		logger.Warn("pending lead forwards abandoned", "in_flight", dispatcher.InFlight())
	}
	return serverErr
}

type application struct {
	handler    http.Handler
	dispatcher *dispatch.Dispatcher
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*application, error) {
	products, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	limiter, memLimiter, err := bootstrap.BuildLimiter(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if memLimiter != nil {
		go memLimiter.Run(ctx, limiterSweepInterval)
	}

	notifier, err := bootstrap.BuildLeadNotifier(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var metricsHandler http.Handler
	var leadMetrics *metrics.LeadMetrics
	if cfg.MetricsEnabled {
		metricsHandler, leadMetrics = setupLeadMetrics()
	}

	dispatcher := dispatch.New(logger)
	handlerCfg := leads.HandlerConfig{
		Limiter:        limiter,
		Forwarder:      bootstrap.BuildForwarder(cfg, logger),
		Dispatcher:     dispatcher,
		Metrics:        leadMetrics,
		SiteURL:        cfg.SiteURL,
		TrustedProxies: cfg.TrustedProxyCount,
		Logger:         logger,
	}
	// Avoid storing a typed nil in the interface.
	if notifier != nil {
		handlerCfg.Notifier = notifier
	}

	r := router.New(&router.Config{
		Logger:         logger,
		LeadsHandler:   leads.NewHandler(handlerCfg),
		CatalogHandler: catalog.NewHandler(products, logger),
		MetricsHandler: metricsHandler,
		CORSOrigin:     cfg.CORSAllowOrigin,
	})
	return &application{handler: r, dispatcher: dispatcher}, nil
}

func setupLeadMetrics() (http.Handler, *metrics.LeadMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewLeadMetrics(reg)
}
