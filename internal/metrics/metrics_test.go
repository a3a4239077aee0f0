package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.Superseded()
	m.ObserveRecompute(3 * time.Millisecond)
	m.DatasetLoaded(731, 40*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeSessions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sessionsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.superseded))
	assert.Equal(t, 731.0, testutil.ToFloat64(m.datasetRows))
	assert.InDelta(t, 0.04, testutil.ToFloat64(m.loadDuration), 1e-9)
	assert.Equal(t, 1, testutil.CollectAndCount(m.recomputeDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionOpened()
		m.SessionClosed()
		m.Superseded()
		m.ObserveRecompute(time.Second)
		m.DatasetLoaded(1, time.Second)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.Superseded()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "bikedash_renders_superseded_total 1"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
