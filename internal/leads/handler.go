package leads

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/leasing-leads-api/internal/admission"
	"github.com/wolfman30/leasing-leads-api/internal/calltouch"
	"github.com/wolfman30/leasing-leads-api/internal/clock"
	"github.com/wolfman30/leasing-leads-api/internal/dispatch"
	"github.com/wolfman30/leasing-leads-api/internal/notify"
	"github.com/wolfman30/leasing-leads-api/internal/observability/metrics"
	"github.com/wolfman30/leasing-leads-api/pkg/logging"
)

const (
	maxBodyBytes  = 100 << 10
	notifyTimeout = 15 * time.Second
)

// Forwarder delivers an accepted lead to the call-tracking webhook.
type Forwarder interface {
	Forward(ctx context.Context, p calltouch.Payload) calltouch.Outcome
}

// Notifier mails a copy of an accepted lead.
type Notifier interface {
	NotifyLead(ctx context.Context, notice notify.LeadNotice) error
}

// Dispatcher runs work after the response has been written.
type Dispatcher interface {
	Go(ctx context.Context, name string, task dispatch.Task)
}

// HandlerConfig wires the submission handlers.
type HandlerConfig struct {
	Limiter    admission.Limiter
	Forwarder  Forwarder
	Notifier   Notifier // optional
	Dispatcher Dispatcher
	Metrics    *metrics.LeadMetrics // optional

	// SiteURL is the fallback request URL and the source of the subject suffix.
	SiteURL        string
	TrustedProxies int
	Logger         *logging.Logger
	Now            func() time.Time
}

// Handler serves the three lead forms.
type Handler struct {
	limiter        admission.Limiter
	forwarder      Forwarder
	notifier       Notifier
	dispatcher     Dispatcher
	metrics        *metrics.LeadMetrics
	siteURL        string
	siteHost       string
	trustedProxies int
	logger         *logging.Logger
	now            func() time.Time
}

type submitResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

// NewHandler creates the lead handlers.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Limiter == nil {
		panic("leads: limiter required")
	}
	if cfg.Forwarder == nil {
		panic("leads: forwarder required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = dispatch.New(cfg.Logger)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TrustedProxies < 0 {
		cfg.TrustedProxies = 0
	}
	return &Handler{
		limiter:        cfg.Limiter,
		forwarder:      cfg.Forwarder,
		notifier:       cfg.Notifier,
		dispatcher:     cfg.Dispatcher,
		metrics:        cfg.Metrics,
		siteURL:        cfg.SiteURL,
		siteHost:       siteHost(cfg.SiteURL),
		trustedProxies: cfg.TrustedProxies,
		logger:         cfg.Logger,
		now:            cfg.Now,
	}
}

// SubmitModel handles POST /api/submit-model.
func (h *Handler) SubmitModel(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, IntentModel)
}

// SubmitSpecialLease handles POST /api/submit-SpecialLease.
func (h *Handler) SubmitSpecialLease(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, IntentSpecialLease)
}

// SubmitContacts handles POST /api/submit-contacts.
func (h *Handler) SubmitContacts(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, IntentContact)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, intent Intent) {
	rw := &statusWriter{ResponseWriter: w}
	ctx := r.Context()
	clientKey := admission.ClientKey(admission.ClientIP(r, h.trustedProxies))
	logger := h.logger.With("intent", string(intent), "client", clientKey)
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("lead handler panicked", "panic", rec, "stack", string(debug.Stack()))
			h.metrics.ObserveSubmission(string(intent), "error")
			if !rw.wroteHeader {
				writeJSON(rw, http.StatusInternalServerError, submitResponse{Message: msgInternal})
			}
		}
	}()

	logger.Info("lead submission received")

	decision, err := h.limiter.Allow(ctx, clientKey)
	switch {
	case err != nil:
		logger.Warn("rate limit store unavailable, admitting request", "error", err)
		h.metrics.ObserveAdmissionError()
	case !decision.Allowed:
		logger.Info("lead rejected by rate limit", "count", decision.Count, "limit", decision.Limit)
		h.metrics.ObserveSubmission(string(intent), "rate_limited")
		if wait := decision.RetryAfter(h.now()); wait > 0 {
			rw.Header().Set("Retry-After", retryAfterSeconds(wait))
		}
		writeJSON(rw, http.StatusTooManyRequests, submitResponse{Message: msgRateLimited})
		return
	}

	var fields Fields
	var decodeErr error
	if isJSON(r) {
		fields, decodeErr = decodeFields(http.MaxBytesReader(rw, r.Body, maxBodyBytes))
	}
	if decodeErr != nil {
		logger.Info("malformed lead body", "error", decodeErr)
		h.metrics.ObserveSubmission(string(intent), "bad_request")
		writeJSON(rw, http.StatusBadRequest, submitResponse{Message: msgBadRequest})
		return
	}

	result := Validate(intent, fields)
	if !result.Valid {
		logger.Info("lead failed validation", "errors", result.Errors)
		h.metrics.ObserveSubmission(string(intent), "invalid")
		writeJSON(rw, http.StatusBadRequest, submitResponse{Message: msgValidation, Errors: result.Errors})
		return
	}

	sub := newSubmission(intent, fields, h.sourceURL(r), h.now())
	logger.Info("lead accepted",
		"name", sub.Name,
		"phone", sub.Phone,
		"model", sub.Model,
		"request_url", sub.SourceURL,
		"received_at", clock.Format(sub.ReceivedAt),
	)

	writeJSON(rw, http.StatusOK, submitResponse{Success: true, Message: intent.SuccessMessage()})
	h.metrics.ObserveSubmission(string(intent), "accepted")

	h.dispatcher.Go(ctx, "calltouch.forward", func(taskCtx context.Context) {
		h.deliver(taskCtx, sub, logger)
	})
}

// deliver forwards the lead and, when configured, mails a copy. Nothing here
// can reach the visitor.
func (h *Handler) deliver(ctx context.Context, sub Submission, logger *logging.Logger) {
	payload := sub.Payload(h.siteHost)

	start := time.Now()
	outcome := h.forwarder.Forward(ctx, payload)
	h.metrics.ObserveForward(string(sub.Intent), outcome.Result(), time.Since(start).Seconds())

	if outcome.Success {
		logger.Info("lead forwarded to calltouch",
			"status", outcome.StatusCode,
			"response", outcome.Payload,
			"at", clock.NowLocal(),
		)
	} else {
		logger.Warn("lead forwarding failed",
			"result", outcome.Result(),
			"error", outcome.Error,
			"at", clock.NowLocal(),
		)
	}

	if h.notifier == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	err := h.notifier.NotifyLead(notifyCtx, notify.LeadNotice{
		Subject:       payload.Subject,
		Name:          sub.Name,
		Phone:         sub.Phone,
		Model:         sub.Model,
		RequestURL:    sub.SourceURL,
		ReceivedAt:    clock.Format(sub.ReceivedAt),
		Forwarded:     outcome.Success,
		ForwardStatus: outcome.StatusCode,
		ForwardError:  outcome.Error,
	})
	h.metrics.ObserveNotification(err == nil)
	if err != nil {
		logger.Warn("lead notification failed", "error", err)
	}
}

// sourceURL is the page the form was posted from, or the site URL.
func (h *Handler) sourceURL(r *http.Request) string {
	for _, header := range []string{"Referer", "Referrer"} {
		if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
			return v
		}
	}
	return h.siteURL
}

func siteHost(siteURL string) string {
	siteURL = strings.TrimSpace(siteURL)
	if siteURL == "" {
		return ""
	}
	u, err := url.Parse(siteURL)
	if err != nil || u.Host == "" {
		return strings.TrimRight(siteURL, "/")
	}
	return u.Host
}

func retryAfterSeconds(d time.Duration) string {
	return strconv.Itoa(int(math.Ceil(d.Seconds())))
}

func writeJSON(w http.ResponseWriter, status int, body submitResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusWriter remembers whether a response has been started.
type statusWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
