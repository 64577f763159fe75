package observability_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/assignment-engine/observability"
)

func TestMetrics_MiddlewareRecordsRoutePattern(t *testing.T) {
	m := observability.NewMetrics()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/users/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/42", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `http_requests_total{route="/users/{id}",status="418"} 1`)
}

func TestMetrics_EngineHooks(t *testing.T) {
	m := observability.NewMetrics()
	m.FixedSubmission("ok")
	m.BlocksWritten("create", 3)
	m.CascadeRun("ok", 5)
	m.UtilizationQuery(true)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["scheduler_fixed_submissions_total"])
	assert.True(t, names["scheduler_time_blocks_written_total"])
	assert.True(t, names["scheduler_cascade_generated_blocks_total"])
	assert.True(t, names["scheduler_utilization_shared_total"])
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *observability.Metrics
	assert.NotPanics(t, func() {
		m.FixedSubmission("ok")
		m.CascadeRun("overlap", 0)
		m.AuditFailure()
		m.PolicyResolved("high", 12)
	})
}

func TestMetrics_PolicyResolvedKeepsOneSeason(t *testing.T) {
	m := observability.NewMetrics()
	m.PolicyResolved("normal", 10)
	m.PolicyResolved("high", 12)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	for _, f := range families {
		switch f.GetName() {
		case "scheduler_policy_season":
			require.Len(t, f.GetMetric(), 1)
			assert.Equal(t, "high", f.GetMetric()[0].GetLabel()[0].GetValue())
		case "scheduler_policy_max_daily_overtime_hours":
			assert.Equal(t, 12.0, f.GetMetric()[0].GetGauge().GetValue())
		}
	}
}
