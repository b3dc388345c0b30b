package metrics

import "github.com/prometheus/client_golang/prometheus"

// LeadMetrics exposes counters/histograms for the lead submission pipeline.
type LeadMetrics struct {
	submissionsTotal *prometheus.CounterVec
	forwardTotal     *prometheus.CounterVec
	forwardLatency   *prometheus.HistogramVec
	admissionErrors  prometheus.Counter
	notifyTotal      *prometheus.CounterVec
}

func NewLeadMetrics(reg prometheus.Registerer) *LeadMetrics {
	m := &LeadMetrics{
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leasing",
			Subsystem: "leads",
			Name:      "submissions_total",
			Help:      "Lead form submissions by intent and result",
		}, []string{"intent", "result"}),
		forwardTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leasing",
			Subsystem: "calltouch",
			Name:      "forward_total",
			Help:      "CallTouch forwarding attempts by intent and result",
		}, []string{"intent", "result"}),
		forwardLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leasing",
			Subsystem: "calltouch",
			Name:      "forward_latency_seconds",
			Help:      "Latency of CallTouch forwarding attempts",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"intent"}),
		admissionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leasing",
			Subsystem: "admission",
			Name:      "store_errors_total",
			Help:      "Rate limit store failures (requests admitted without a check)",
		}),
		notifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leasing",
			Subsystem: "leads",
			Name:      "notifications_total",
			Help:      "Lead e-mail notifications by result",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.submissionsTotal, m.forwardTotal, m.forwardLatency, m.admissionErrors, m.notifyTotal)
	return m
}

// ObserveSubmission counts a submission outcome (accepted, invalid,
// rate_limited, bad_request, error).
func (m *LeadMetrics) ObserveSubmission(intent, result string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(intent, result).Inc()
}

func (m *LeadMetrics) ObserveForward(intent, result string, seconds float64) {
	if m == nil {
		return
	}
	m.forwardTotal.WithLabelValues(intent, result).Inc()
	m.forwardLatency.WithLabelValues(intent).Observe(seconds)
}

func (m *LeadMetrics) ObserveAdmissionError() {
	if m == nil {
		return
	}
	m.admissionErrors.Inc()
}

func (m *LeadMetrics) ObserveNotification(sent bool) {
	if m == nil {
		return
	}
	label := "failed"
	if sent {
		label = "sent"
	}
	m.notifyTotal.WithLabelValues(label).Inc()
}
