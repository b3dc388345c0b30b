// Package calltouch relays accepted leads to the CallTouch request-intake API.
package calltouch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/leasing-leads-api/pkg/logging"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20
)

// ErrNotConfigured marks a client without host or site id.
var ErrNotConfigured = errors.New("calltouch: not configured")

// Payload is the lead data sent to CallTouch.
type Payload struct {
	Subject    string
	RequestURL string
	FIO        string
	Phone      string
	Model      string
}

// Form encodes the payload the way the request-intake API expects it.
func (p Payload) Form() url.Values {
	form := url.Values{}
	form.Set("subject", p.Subject)
	form.Set("requestUrl", p.RequestURL)
	form.Set("fio", p.FIO)
	form.Set("phoneNumber", p.Phone)
	if p.Model != "" {
		form.Set("model", p.Model)
	}
	return form
}

// Config controls how the client reaches CallTouch.
type Config struct {
	// Scheme defaults to https; tests point it at plain-HTTP servers.
	Scheme     string
	Host       string
	APIPath    string
	SiteID     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Tracer     trace.Tracer
	Logger     *logging.Logger
}

// Client posts leads to CallTouch.
type Client struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	tracer     trace.Tracer
	logger     *logging.Logger
}

// New builds a client. Missing host or site id yield a client whose every
// Forward fails fast with ErrNotConfigured.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("leasing.internal.calltouch")
	}
	return &Client{
		endpoint:   buildEndpoint(cfg),
		timeout:    timeout,
		httpClient: httpClient,
		tracer:     tracer,
		logger:     logger,
	}
}

func buildEndpoint(cfg Config) string {
	host := strings.Trim(strings.TrimSpace(cfg.Host), "/")
	siteID := strings.Trim(strings.TrimSpace(cfg.SiteID), "/")
	if host == "" || siteID == "" {
		return ""
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}
	segments := []string{host}
	if p := strings.Trim(strings.TrimSpace(cfg.APIPath), "/"); p != "" {
		segments = append(segments, p)
	}
	segments = append(segments, siteID, "register")
	return scheme + "://" + strings.Join(segments, "/") + "/"
}

// Endpoint returns the resolved register URL, empty when unconfigured.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Forward sends the lead and reports what happened. It never returns an
// error: every failure mode is folded into the Outcome.
func (c *Client) Forward(ctx context.Context, p Payload) Outcome {
	if c.endpoint == "" {
		return failed(ErrNotConfigured.Error())
	}

	ctx, span := c.tracer.Start(ctx, "calltouch.forward")
	defer span.End()
	span.SetAttributes(
		attribute.String("calltouch.subject", p.Subject),
		attribute.Bool("calltouch.has_model", p.Model != ""),
	)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	outcome := c.send(ctx, p)
	span.SetAttributes(
		attribute.Int("http.status_code", outcome.StatusCode),
		attribute.String("calltouch.result", outcome.Result()),
	)
	if !outcome.Success {
		span.SetStatus(codes.Error, outcome.Error)
	}
	c.logger.Debug("calltouch forward finished",
		"result", outcome.Result(),
		"status", outcome.StatusCode,
	)
	return outcome
}

func (c *Client) send(ctx context.Context, p Payload) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(p.Form().Encode()))
	if err != nil {
		return failed(fmt.Sprintf("calltouch: build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportFailure(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportFailure(ctx, err)
	}
	return delivered(resp.StatusCode, decodeBody(body))
}

func transportFailure(ctx context.Context, err error) Outcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return failed(TimeoutMessage)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return failed(urlErr.Err.Error())
	}
	return failed(err.Error())
}

func decodeBody(body []byte) any {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return string(body)
	}
	var parsed any
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return string(body)
	}
	return parsed
}
