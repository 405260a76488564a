package observability

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsObserver(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveAgentCall("cloud-security-agent", time.Second, nil)
	m.ObserveAgentCall("cloud-security-agent", time.Second, errors.New("timeout"))
	m.ObserveStep("BuildAzurePolicy", "Complete", 2*time.Second)
	m.ObserveRun("completed", 10*time.Second)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.AgentCallCounter.WithLabelValues("cloud-security-agent", "success")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.AgentCallCounter.WithLabelValues("cloud-security-agent", "error")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.StepCounter.WithLabelValues("BuildAzurePolicy", "Complete")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.RunCounter.WithLabelValues("completed")))
}

func TestMetricsActiveRuns(t *testing.T) {
	m := NewMetrics(nil)

	done := m.RunStarted()
	assert.Equal(t, 1.0, promtest.ToFloat64(m.ActiveRuns))
	done()
	assert.Equal(t, 0.0, promtest.ToFloat64(m.ActiveRuns))
}

func TestMetricsInstrumentAndHandler(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	h := m.Instrument("/v1/chat", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/chat", nil))

	assert.Equal(t, 1.0, promtest.ToFloat64(m.HTTPRequests.WithLabelValues("/v1/chat", "POST", "418")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "secboard_http_requests_total")
}
