package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	m := New()
	m.OTPRequested("email", ResultOK)
	m.OTPRequested("email", ResultOK)
	m.OTPConfirmed("phone", ResultRejected)
	m.Onboarding(ResultFailed)
	m.GateDecision("TRIAL_EXPIRED")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.otpRequests.WithLabelValues("email", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.otpConfirmations.WithLabelValues("phone", ResultRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.onboarding.WithLabelValues(ResultFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gate.WithLabelValues("TRIAL_EXPIRED")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.OTPRequested("email", ResultOK)
	m.Onboarding(ResultOK)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.Onboarding(ResultOK)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `storefront_onboarding_total{result="ok"} 1`)
}
