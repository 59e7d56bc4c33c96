package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.ChatTurn("gpt-4", "ok")
	m.ChatTurn("gpt-4", "ok")
	m.SessionRecreated()
	m.CleanupRun("hourly", 3, nil)
	m.CleanupRun("daily", 0, errors.New("boom"))
	m.CompletionLatency("gpt-4", 1500*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.chatTurns.WithLabelValues("gpt-4", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsRecreated))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.cleanupDeleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cleanupRuns.WithLabelValues("daily", "error")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ChatTurn("gpt-4", "ok")
		m.SessionRecreated()
		m.CleanupRun("hourly", 1, nil)
		m.CompletionLatency("gpt-4", time.Second)
		m.HTTPRequest("GET", 200)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.HTTPRequest("POST", 201)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `practice_chat_http_requests_total{method="POST",status="201"} 1`)
}
