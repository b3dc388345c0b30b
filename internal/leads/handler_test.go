package leads

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/leasing-leads-api/internal/admission"
	"github.com/wolfman30/leasing-leads-api/internal/calltouch"
	"github.com/wolfman30/leasing-leads-api/internal/dispatch"
	"github.com/wolfman30/leasing-leads-api/internal/notify"
	"github.com/wolfman30/leasing-leads-api/internal/observability/metrics"
	"github.com/wolfman30/leasing-leads-api/pkg/logging"
)

const testSiteURL = "https://leasing.example.ru/"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingForwarder struct {
	mu       sync.Mutex
	payloads []calltouch.Payload
	outcome  calltouch.Outcome
	block    chan struct{}
}

func (f *recordingForwarder) Forward(_ context.Context, p calltouch.Payload) calltouch.Outcome {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, p)
	if f.outcome == (calltouch.Outcome{}) {
		return calltouch.Outcome{Success: true, StatusCode: http.StatusOK}
	}
	return f.outcome
}

func (f *recordingForwarder) Payloads() []calltouch.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]calltouch.Payload(nil), f.payloads...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notify.LeadNotice
	err     error
}

func (n *recordingNotifier) NotifyLead(_ context.Context, notice notify.LeadNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (admission.Decision, error) {
	return admission.Decision{}, errors.New("redis: connection refused")
}

type panickingLimiter struct{}

func (panickingLimiter) Allow(context.Context, string) (admission.Decision, error) {
	panic("limiter exploded")
}

type harness struct {
	handler    *Handler
	forwarder  *recordingForwarder
	notifier   *recordingNotifier
	dispatcher *dispatch.Dispatcher
	clock      *fakeClock
	registry   *prometheus.Registry
}

func newHarness(t *testing.T, limiter admission.Limiter) *harness {
	t.Helper()
	clk := &fakeClock{now: time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC)}
	if limiter == nil {
		mem, err := admission.NewMemoryLimiter(1, 15*time.Minute, admission.WithClock(clk.Now))
		require.NoError(t, err)
		limiter = mem
	}
	h := &harness{
		forwarder:  &recordingForwarder{},
		notifier:   &recordingNotifier{},
		dispatcher: dispatch.New(logging.Discard()),
		clock:      clk,
		registry:   prometheus.NewRegistry(),
	}
	h.handler = NewHandler(HandlerConfig{
		Limiter:    limiter,
		Forwarder:  h.forwarder,
		Notifier:   h.notifier,
		Dispatcher: h.dispatcher,
		Metrics:    metrics.NewLeadMetrics(h.registry),
		SiteURL:    testSiteURL,
		Logger:     logging.Discard(),
		Now:        clk.Now,
	})
	return h
}

// drain waits for every detached forward to finish.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.dispatcher.Shutdown(ctx))
}

func post(handler http.HandlerFunc, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/submit", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mutate {
		m(req)
	}
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

// counterValue reads one counter series from the registry; missing series
// read as zero.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue series
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) submitResponse {
	t.Helper()
	var resp submitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSubmitModel_ForwardsExactlyOnce(t *testing.T) {
	h := newHarness(t, nil)

	w := post(h.handler.SubmitModel, `{"name":"  Иван  ","phone":" +7 (999) 123-45-67 ","model":" Экскаватор XE215 "}`,
		func(r *http.Request) { r.Header.Set("Referer", "https://leasing.example.ru/catalog/xe215") })
	h.drain(t)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, submitResponse{Success: true, Message: msgModelOK}, decodeResponse(t, w))

	payloads := h.forwarder.Payloads()
	require.Len(t, payloads, 1)
	assert.Equal(t, calltouch.Payload{
		Subject:    "Заявка на модель техники — leasing.example.ru",
		RequestURL: "https://leasing.example.ru/catalog/xe215",
		FIO:        "Иван",
		Phone:      "+7 (999) 123-45-67",
		Model:      "Экскаватор XE215",
	}, payloads[0])

	assert.Equal(t, 1.0, counterValue(t, h.registry, "leasing_leads_submissions_total", map[string]string{"intent": "model", "result": "accepted"}))
}

func TestSubmitModel_BareTenDigitPhone(t *testing.T) {
	h := newHarness(t, nil)

	w := post(h.handler.SubmitModel, `{"name":"Ан","phone":"9991234567","model":"Excavator"}`)
	h.drain(t)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, submitResponse{Success: true, Message: msgModelOK}, decodeResponse(t, w))
	payloads := h.forwarder.Payloads()
	require.Len(t, payloads, 1)
	assert.Equal(t, "Excavator", payloads[0].Model)
	assert.Equal(t, "Excavator", payloads[0].Form().Get("model"))
}

func TestSubmitModel_SingleLetterNameRejected(t *testing.T) {
	h := newHarness(t, nil)

	w := post(h.handler.SubmitModel, `{"name":"A","phone":"9991234567","model":"Excavator"}`)
	h.drain(t)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{msgNameLength}, decodeResponse(t, w).Errors)
	assert.Empty(t, h.forwarder.Payloads())
}

func TestSubmitSpecialLease_UsesSiteURLWithoutReferer(t *testing.T) {
	h := newHarness(t, nil)

	w := post(h.handler.SubmitSpecialLease, `{"name":"Мария","phone":"89991234567","model":"ignored"}`)
	h.drain(t)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, msgLeaseOK, decodeResponse(t, w).Message)

	payloads := h.forwarder.Payloads()
	require.Len(t, payloads, 1)
	assert.Equal(t, "Заявка на специальный лизинг — leasing.example.ru", payloads[0].Subject)
	assert.Equal(t, testSiteURL, payloads[0].RequestURL)
	assert.Empty(t, payloads[0].Model)
}

func TestSubmitContacts_EmptyNameRejected(t *testing.T) {
	h := newHarness(t, nil)

	w := post(h.handler.SubmitContacts, `{"name":"","phone":"+79991234567"}`)
	h.drain(t)

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, msgValidation, resp.Message)
	assert.Equal(t, []string{msgNameLength}, resp.Errors)
	assert.Empty(t, h.forwarder.Payloads())
}

func TestSubmitModel_MissingModelRejected(t *testing.T) {
	h := newHarness(t, nil)

	w := post(h.handler.SubmitModel, `{"name":"Иван","phone":"+79991234567"}`)
	h.drain(t)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{msgModelEmpty}, decodeResponse(t, w).Errors)
	assert.Empty(t, h.forwarder.Payloads())
}

func TestSubmit_MalformedBody(t *testing.T) {
	h := newHarness(t, nil)

	w := post(h.handler.SubmitContacts, `{"name":`)
	h.drain(t)

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, msgBadRequest, resp.Message)
	assert.Empty(t, resp.Errors)
	assert.Empty(t, h.forwarder.Payloads())
}

func TestSubmit_TrailingDataAfterObjectRejected(t *testing.T) {
	h := newHarness(t, nil)

	w := post(h.handler.SubmitContacts, `{"name":"Иван","phone":"+79991234567"} {"evil":1} garbage`)
	h.drain(t)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, submitResponse{Message: msgBadRequest}, decodeResponse(t, w))
	assert.Empty(t, h.forwarder.Payloads())
}

func TestSubmit_NonJSONContentTypeValidatesAsEmpty(t *testing.T) {
	h := newHarness(t, nil)

	w := post(h.handler.SubmitContacts, `{"name":"Иван","phone":"+79991234567"}`,
		func(r *http.Request) { r.Header.Set("Content-Type", "text/plain") })
	h.drain(t)

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, msgValidation, resp.Message)
	assert.Equal(t, []string{msgNameLength, msgPhoneFormat}, resp.Errors)
	assert.Empty(t, h.forwarder.Payloads())
}

func TestSubmit_JSONContentTypeWithCharset(t *testing.T) {
	h := newHarness(t, nil)

	w := post(h.handler.SubmitContacts, `{"name":"Иван","phone":"+79991234567"}`,
		func(r *http.Request) { r.Header.Set("Content-Type", "application/json; charset=utf-8") })
	h.drain(t)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, h.forwarder.Payloads(), 1)
}

func TestSubmit_OversizedBodyRejected(t *testing.T) {
	h := newHarness(t, nil)

	body := `{"name":"Иван","phone":"+79991234567","model":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	w := post(h.handler.SubmitModel, body)
	h.drain(t)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, h.forwarder.Payloads())
}

func TestSubmit_SecondRequestInWindowIsRateLimited(t *testing.T) {
	h := newHarness(t, nil)
	valid := `{"name":"Иван","phone":"+79991234567"}`

	first := post(h.handler.SubmitContacts, valid)
	require.Equal(t, http.StatusOK, first.Code)

	second := post(h.handler.SubmitSpecialLease, valid)
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, submitResponse{Message: msgRateLimited}, decodeResponse(t, second))
	assert.Equal(t, "900", second.Header().Get("Retry-After"))

	h.clock.Advance(15 * time.Minute)
	third := post(h.handler.SubmitContacts, valid)
	require.Equal(t, http.StatusOK, third.Code)
	assert.Equal(t, msgContactsOK, decodeResponse(t, third).Message)

	h.drain(t)
	assert.Len(t, h.forwarder.Payloads(), 2)
}

func TestSubmit_RateLimitIsPerClient(t *testing.T) {
	h := newHarness(t, nil)
	valid := `{"name":"Иван","phone":"+79991234567"}`

	a := post(h.handler.SubmitContacts, valid, func(r *http.Request) { r.RemoteAddr = "198.51.100.7:5000" })
	b := post(h.handler.SubmitContacts, valid, func(r *http.Request) { r.RemoteAddr = "198.51.100.8:5000" })
	h.drain(t)

	assert.Equal(t, http.StatusOK, a.Code)
	assert.Equal(t, http.StatusOK, b.Code)
}

func TestSubmit_LimiterFailureAdmits(t *testing.T) {
	h := newHarness(t, failingLimiter{})

	w := post(h.handler.SubmitContacts, `{"name":"Иван","phone":"+79991234567"}`)
	h.drain(t)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, h.forwarder.Payloads(), 1)
	assert.Equal(t, 1.0, counterValue(t, h.registry, "leasing_admission_store_errors_total", nil))
}

func TestSubmit_PanicBecomesInternalError(t *testing.T) {
	h := newHarness(t, panickingLimiter{})

	w := post(h.handler.SubmitContacts, `{"name":"Иван","phone":"+79991234567"}`)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, submitResponse{Message: msgInternal}, decodeResponse(t, w))
	h.drain(t)
	assert.Empty(t, h.forwarder.Payloads())
}

func TestSubmit_RespondsBeforeForwardCompletes(t *testing.T) {
	h := newHarness(t, nil)
	h.forwarder.block = make(chan struct{})

	w := post(h.handler.SubmitContacts, `{"name":"Иван","phone":"+79991234567"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, h.dispatcher.InFlight())
	assert.Empty(t, h.forwarder.Payloads())

	close(h.forwarder.block)
	h.drain(t)
	assert.Len(t, h.forwarder.Payloads(), 1)
}

func TestSubmit_WebhookTimeoutDoesNotAffectResponse(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	h := newHarness(t, nil)
	h.handler.forwarder = calltouch.New(calltouch.Config{
		Scheme:  "http",
		Host:    strings.TrimPrefix(srv.URL, "http://"),
		APIPath: "calls-service/RestAPI/requests",
		SiteID:  "777",
		Timeout: 50 * time.Millisecond,
		Logger:  logging.Discard(),
	})

	w := post(h.handler.SubmitModel, `{"name":"Иван","phone":"+79991234567","model":"XE215"}`)
	require.Equal(t, http.StatusOK, w.Code)
	h.drain(t)

	require.Len(t, h.notifier.notices, 1)
	notice := h.notifier.notices[0]
	assert.False(t, notice.Forwarded)
	assert.Equal(t, calltouch.TimeoutMessage, notice.ForwardError)
	assert.Zero(t, notice.ForwardStatus)
	assert.Equal(t, 1.0, counterValue(t, h.registry, "leasing_calltouch_forward_total", map[string]string{"intent": "model", "result": "timeout"}))
}

func TestSubmit_NotifiesWithForwardOutcome(t *testing.T) {
	h := newHarness(t, nil)
	h.forwarder.outcome = calltouch.Outcome{Success: true, StatusCode: http.StatusCreated, Payload: "ok"}

	w := post(h.handler.SubmitModel, `{"name":"Иван","phone":"+79991234567","model":"XE215"}`)
	require.Equal(t, http.StatusOK, w.Code)
	h.drain(t)

	require.Len(t, h.notifier.notices, 1)
	notice := h.notifier.notices[0]
	assert.True(t, notice.Forwarded)
	assert.Equal(t, http.StatusCreated, notice.ForwardStatus)
	assert.Equal(t, "Иван", notice.Name)
	assert.Equal(t, "XE215", notice.Model)
	assert.Equal(t, "01.05.2024, 12:00:00", notice.ReceivedAt)
}

func TestSubmit_NotificationFailureIsSwallowed(t *testing.T) {
	h := newHarness(t, nil)
	h.notifier.err = errors.New("smtp down")

	w := post(h.handler.SubmitContacts, `{"name":"Иван","phone":"+79991234567"}`)
	h.drain(t)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, counterValue(t, h.registry, "leasing_leads_notifications_total", map[string]string{"result": "failed"}))
}

func TestSiteHost(t *testing.T) {
	assert.Equal(t, "leasing.example.ru", siteHost("https://leasing.example.ru/"))
	assert.Equal(t, "localhost:3000", siteHost("http://localhost:3000"))
	assert.Equal(t, "leasing.example.ru", siteHost("leasing.example.ru/"))
	assert.Empty(t, siteHost(""))
}

func TestNewHandler_RequiresCollaborators(t *testing.T) {
	assert.Panics(t, func() { NewHandler(HandlerConfig{Forwarder: &recordingForwarder{}}) })
	assert.Panics(t, func() { NewHandler(HandlerConfig{Limiter: failingLimiter{}}) })
}
