package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

// Result labels shared by the counters.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// Metrics exposes the verification, onboarding and gate counters. A nil *Metrics is a no-op.
type Metrics struct {
	registry         *prometheus.Registry
	otpRequests      *prometheus.CounterVec
	otpConfirmations *prometheus.CounterVec
	onboarding       *prometheus.CounterVec
	gate             *prometheus.CounterVec
}

// New registers the collectors on a fresh registry together with the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		otpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_requests_total",
			Help:      "Verification code requests by channel and result.",
		}, []string{"channel", "result"}),
		otpConfirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_confirmations_total",
			Help:      "Verification code confirmations by channel and result.",
		}, []string{"channel", "result"}),
		onboarding: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "onboarding_total",
			Help:      "Onboarding attempts by result.",
		}, []string{"result"}),
		gate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_gate_total",
			Help:      "Subscription gate decisions by code.",
		}, []string{"code"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.otpRequests,
		m.otpConfirmations,
		m.onboarding,
		m.gate,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) OTPRequested(channel, result string) {
	if m == nil {
		return
	}
	m.otpRequests.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) OTPConfirmed(channel, result string) {
	if m == nil {
		return
	}
	m.otpConfirmations.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) Onboarding(result string) {
	if m == nil {
		return
	}
	m.onboarding.WithLabelValues(result).Inc()
}

// GateDecision records a gate outcome; code is "ok" when the request was let through.
func (m *Metrics) GateDecision(code string) {
	if m == nil {
		return
	}
	m.gate.WithLabelValues(code).Inc()
}
