/*
handlers_test.go - HTTP tests for the assignment API

Tests for:
- Listing, fixed blocks, cascade and utilization endpoints
- Error status mapping (400/404/422/500) and the {error, details} body
- Config, audit, health and metrics endpoints
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/assignment-engine/assignment"
	"github.com/warp/assignment-engine/factory"
	"github.com/warp/assignment-engine/generic"
	"github.com/warp/assignment-engine/generic/store"
	"github.com/warp/assignment-engine/observability"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	testProject = "p-apollo"
	testUser    = "u-ada"
	testAdmin   = "u-admin"
)

// Friday 2024-03-01 10:00 UTC; the following Monday is 2024-03-04.
var testNow = time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)

type testServer struct {
	store   *store.Memory
	handler *Handler
	metrics *observability.Metrics
	router  http.Handler
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestServer(t *testing.T, withPolicy bool) *testServer {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()

	require.NoError(t, mem.SaveProject(ctx, generic.Project{
		ID: testProject, Name: "Apollo", Active: true,
		StartDate: generic.MustParseDate("2024-01-01"), EndDate: generic.MustParseDate("2024-12-31"),
	}))
	require.NoError(t, mem.SaveUser(ctx, generic.User{ID: testUser, Name: "Ada", Active: true}))
	require.NoError(t, mem.SaveUser(ctx, generic.User{ID: testAdmin, Name: "Admin", Active: true}))
	if withPolicy {
		doc := factory.DefaultDocument()
		doc.Season = &generic.SeasonConfig{Mode: generic.SeasonModeNormal}
		require.NoError(t, factory.NewPolicyFactory().Apply(ctx, mem, doc))
	}

	var seq atomic.Int64
	metrics := observability.NewMetrics()
	svc := assignment.NewService(mem,
		assignment.WithLogger(quietLogger()),
		assignment.WithMetrics(metrics),
		assignment.WithClock(func() time.Time { return testNow }),
		assignment.WithIDGenerator(func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }),
	)
	h := NewHandler(mem, svc, quietLogger())
	h.Now = func() time.Time { return testNow }

	return &testServer{
		store:   mem,
		handler: h,
		metrics: metrics,
		router:  NewRouter(h, RouterOptions{Metrics: metrics}),
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func fixedBody(blocks ...map[string]any) map[string]any {
	return map[string]any{
		"project_id":        testProject,
		"user_id":           testUser,
		"assign_by_user_id": testAdmin,
		"role":              "developer",
		"status":            "active",
		"comments":          map[string]string{"more_than_8_hours": "", "out_of_project_range": ""},
		"time_blocks":       blocks,
	}
}

func tb(date, start, end string) map[string]any {
	return map[string]any{"date": date, "start_time": start, "end_time": end, "mode": "manual"}
}

// =============================================================================
// FIXED BLOCKS + LISTING
// =============================================================================

func TestFixedBlocks_CreateThenList(t *testing.T) {
	// GIVEN: an empty schedule
	s := newTestServer(t, true)

	// WHEN: two blocks are submitted for Monday
	rec := s.do(t, http.MethodPost, "/api/assignments/fixed-blocks",
		fixedBody(tb("2024-03-04", "09:00", "13:00"), tb("2024-03-04", "14:00", "18:00")))

	// THEN: 201 with the success message, and the listing shows both blocks
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, assignment.MsgAssignmentsCompleted, decodeBody[MessageResponse](t, rec).Message)

	rec = s.do(t, http.MethodGet,
		"/api/assignments?user_id="+testUser+"&start_datetime=2024-03-04T00:00:00Z&end_datetime=2024-03-04T23:59:59Z", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	blocks := decodeBody[[]TimeBlockDTO](t, rec)
	require.Len(t, blocks, 2)
	assert.Equal(t, "09:00", blocks[0].StartTime.String())
	assert.Equal(t, "13:00", blocks[0].EndTime.String())
	assert.Equal(t, 4.0, blocks[0].DurationHours)
	assert.Equal(t, testProject, blocks[0].ProjectID)
	assert.Equal(t, "Apollo", blocks[0].ProjectName)
	assert.Equal(t, "developer", blocks[0].AssignmentRole)
	assert.True(t, blocks[0].IsActive)
	assert.Equal(t, "manual", blocks[0].Mode)
}

func TestFixedBlocks_EditAndDelete(t *testing.T) {
	s := newTestServer(t, true)
	rec := s.do(t, http.MethodPost, "/api/assignments/fixed-blocks",
		fixedBody(tb("2024-03-04", "09:00", "13:00"), tb("2024-03-05", "09:00", "13:00")))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/assignments?user_id="+testUser+"&start_datetime=2024-03-01", nil)
	listed := decodeBody[[]TimeBlockDTO](t, rec)
	require.Len(t, listed, 2)

	// WHEN: Monday's block is moved to the afternoon and Tuesday's is deleted
	body := fixedBody()
	body["edited_time_blocks"] = []map[string]any{{
		"id": listed[0].ID, "date": "2024-03-04", "start_time": "14:00", "end_time": "16:00", "mode": "manual",
	}}
	body["deleted_time_block_ids"] = []int64{listed[1].ID}
	rec = s.do(t, http.MethodPost, "/api/assignments/fixed-blocks", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN: one block remains, at its new time
	rec = s.do(t, http.MethodGet, "/api/assignments?user_id="+testUser+"&start_datetime=2024-03-01", nil)
	listed = decodeBody[[]TimeBlockDTO](t, rec)
	require.Len(t, listed, 1)
	assert.Equal(t, "14:00", listed[0].StartTime.String())
	assert.Equal(t, 2.0, listed[0].DurationHours)
}

func TestFixedBlocks_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantError  string
	}{
		{
			name:       "malformed json",
			body:       `{"project_id":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid request body",
		},
		{
			name:       "bad time format",
			body:       fixedBody(tb("2024-03-04", "9 o'clock", "13:00")),
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "unknown mode",
			body: fixedBody(map[string]any{
				"date": "2024-03-04", "start_time": "09:00", "end_time": "10:00", "mode": "autopilot",
			}),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "end before start",
			body:       fixedBody(tb("2024-03-04", "13:00", "09:00")),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "long block without comment",
			body:       fixedBody(tb("2024-03-04", "08:00", "17:30")),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "before project start",
			body:       fixedBody(tb("2023-12-29", "09:00", "10:00")),
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "unknown project",
			body: func() map[string]any {
				b := fixedBody(tb("2024-03-04", "09:00", "10:00"))
				b["project_id"] = "p-missing"
				return b
			}(),
			wantStatus: http.StatusNotFound,
		},
		{
			name: "missing assign_by_user_id",
			body: func() map[string]any {
				b := fixedBody(tb("2024-03-04", "09:00", "10:00"))
				delete(b, "assign_by_user_id")
				return b
			}(),
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "edited block without id",
			body: func() map[string]any {
				b := fixedBody()
				b["edited_time_blocks"] = []map[string]any{tb("2024-03-04", "09:00", "10:00")}
				return b
			}(),
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, true)
			rec := s.do(t, http.MethodPost, "/api/assignments/fixed-blocks", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			resp := decodeBody[ErrorResponse](t, rec)
			assert.NotEmpty(t, resp.Error)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, resp.Error)
			}
		})
	}
}

func TestFixedBlocks_OverlapIsRejectedAndNothingWritten(t *testing.T) {
	// GIVEN: Monday morning booked
	s := newTestServer(t, true)
	rec := s.do(t, http.MethodPost, "/api/assignments/fixed-blocks", fixedBody(tb("2024-03-04", "09:00", "13:00")))
	require.Equal(t, http.StatusCreated, rec.Code)

	// WHEN: a batch with one valid and one overlapping block is sent
	rec = s.do(t, http.MethodPost, "/api/assignments/fixed-blocks",
		fixedBody(tb("2024-03-05", "09:00", "10:00"), tb("2024-03-04", "12:00", "14:00")))

	// THEN: 400 and the valid block was not written either
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Details, "overlap")

	rec = s.do(t, http.MethodGet, "/api/assignments?user_id="+testUser+"&start_datetime=2024-03-01", nil)
	assert.Len(t, decodeBody[[]TimeBlockDTO](t, rec), 1)
}

func TestListTimeBlocks_RequiresParameters(t *testing.T) {
	s := newTestServer(t, true)

	for _, path := range []string{
		"/api/assignments?start_datetime=2024-03-01",
		"/api/assignments?user_id=" + testUser,
		"/api/assignments?user_id=" + testUser + "&start_datetime=yesterday",
		"/api/assignments?user_id=" + testUser + "&start_datetime=2024-03-05&end_datetime=2024-03-01",
	} {
		rec := s.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

// =============================================================================
// CASCADE + UTILIZATION
// =============================================================================

func TestSimulateCascade_Created(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(t, http.MethodPost, "/api/assignments/simulate-cascade", map[string]any{
		"project_id":        testProject,
		"user_id":           testUser,
		"assign_by_user_id": testAdmin,
		"start_date":        "2024-03-04",
		"total_hours":       10,
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[CascadeResponse](t, rec)
	assert.Equal(t, assignment.MsgSimulationCompleted, resp.Message)
	require.Len(t, resp.GeneratedTimeBlocks, 3)
	assert.Equal(t, "2024-03-04", resp.GeneratedTimeBlocks[0].Date.String())
	assert.Equal(t, "09:00", resp.GeneratedTimeBlocks[0].StartTime.String())
	assert.Equal(t, "2024-03-05", resp.GeneratedTimeBlocks[2].Date.String())
	assert.Equal(t, "11:00", resp.GeneratedTimeBlocks[2].EndTime.String())
	assert.Equal(t, 2.0, resp.GeneratedTimeBlocks[2].DurationHours)
	assert.Equal(t, "cascade", resp.GeneratedTimeBlocks[2].Mode)

	// Nothing is persisted.
	rec = s.do(t, http.MethodGet, "/api/assignments?user_id="+testUser+"&start_datetime=2024-03-01", nil)
	assert.Empty(t, decodeBody[[]TimeBlockDTO](t, rec))
}

func TestSimulateCascade_ErrorStatuses(t *testing.T) {
	body := func(start string, hours any) map[string]any {
		return map[string]any{
			"project_id": testProject, "user_id": testUser, "assign_by_user_id": testAdmin,
			"start_date": start, "total_hours": hours,
		}
	}

	s := newTestServer(t, true)
	rec := s.do(t, http.MethodPost, "/api/assignments/simulate-cascade", body("2023-12-01", 4))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "start before project")

	rec = s.do(t, http.MethodPost, "/api/assignments/simulate-cascade", body("2024-03-04", -1))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "negative hours")

	rec = s.do(t, http.MethodPost, "/api/assignments/simulate-cascade", body("2024-03-04", "4.5"))
	assert.Equal(t, http.StatusCreated, rec.Code, "hours as a string")

	// GIVEN: no working-hours configuration stored
	bare := newTestServer(t, false)
	rec = bare.do(t, http.MethodPost, "/api/assignments/simulate-cascade", body("2024-03-04", 4))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Details, "working hours configuration not found")
}

func TestUsedHoursPercentage(t *testing.T) {
	// GIVEN: 8 hours booked within the next 60 days
	s := newTestServer(t, true)
	rec := s.do(t, http.MethodPost, "/api/assignments/fixed-blocks",
		fixedBody(tb("2024-03-04", "09:00", "13:00"), tb("2024-03-04", "14:00", "18:00")))
	require.Equal(t, http.StatusCreated, rec.Code)

	// WHEN: asking for the percentage
	rec = s.do(t, http.MethodGet, "/api/assignments/used-hours-percentage/"+testUser, nil)

	// THEN: 8 / 320 = 2.5%
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.5, decodeBody[PercentageResponse](t, rec).Percentage)

	rec = s.do(t, http.MethodGet, "/api/assignments/used-hours-percentage/u-nobody", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.0, decodeBody[PercentageResponse](t, rec).Percentage)
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfig_WorkingHoursRoundTrip(t *testing.T) {
	s := newTestServer(t, false)

	// GIVEN: nothing stored
	rec := s.do(t, http.MethodGet, "/api/config/working-hours", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	// WHEN: a bare document is stored
	rec = s.do(t, http.MethodPut, "/api/config/working-hours", `{
		"common": {"max_daily_hours": 7, "work_start_time": "08:00", "work_end_time": "16:00"},
		"normal": {"max_daily_hours_overtime": 9},
		"high":   {"max_daily_hours_overtime": 11}
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: it is returned wrapped, and the effective policy follows it
	rec = s.do(t, http.MethodGet, "/api/config/working-hours", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decodeBody[factory.PolicyDocument](t, rec)
	assert.Equal(t, 7.0, doc.WorkingHours.Common.MaxDailyHours)
	assert.Equal(t, 11.0, doc.WorkingHours.High.MaxDailyHoursOvertime)

	rec = s.do(t, http.MethodGet, "/api/config/effective", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	eff := decodeBody[EffectivePolicyDTO](t, rec)
	assert.Equal(t, "normal", eff.Season)
	assert.Equal(t, 7.0, eff.MaxDailyHours)
	assert.Equal(t, 9.0, eff.MaxDailyOvertimeHours)
	assert.Equal(t, "08:00", eff.WorkStartTime)
	assert.Equal(t, "13:00", eff.LunchStartTime)
}

func TestConfig_WorkingHoursRejectsInvalid(t *testing.T) {
	s := newTestServer(t, true)

	for name, body := range map[string]string{
		"overtime below daily": `{"common":{"max_daily_hours":9},"normal":{"max_daily_hours_overtime":8},"high":{"max_daily_hours_overtime":12}}`,
		"unknown field":        `{"working_hours":{"common":{"max_daily_hours":8}},"holidays":[]}`,
		"bad lunch":            `{"common":{"max_daily_hours":8,"lunch_start_time":"noon","lunch_end_time":"14:00"}}`,
		"empty":                ``,
	} {
		rec := s.do(t, http.MethodPut, "/api/config/working-hours", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}

	// The stored policy is unchanged.
	cfg, err := s.store.GetWorkingHoursConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8.0, cfg.Common.MaxDailyHours)
}

func TestConfig_Season(t *testing.T) {
	s := newTestServer(t, false)

	// Unset resolves to auto.
	rec := s.do(t, http.MethodGet, "/api/config/season", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, generic.SeasonModeAuto, decodeBody[generic.SeasonConfig](t, rec).Mode)

	rec = s.do(t, http.MethodPut, "/api/config/season", map[string]string{"season_mode": "high"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/config/season", nil)
	assert.Equal(t, generic.SeasonModeHigh, decodeBody[generic.SeasonConfig](t, rec).Mode)

	rec = s.do(t, http.MethodPut, "/api/config/season", map[string]string{"season_mode": "summer"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// AUDIT / HEALTH / METRICS
// =============================================================================

func TestAudits_NewestFirst(t *testing.T) {
	s := newTestServer(t, true)
	rec := s.do(t, http.MethodPost, "/api/assignments/fixed-blocks", fixedBody(tb("2024-03-04", "09:00", "13:00")))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/assignments?user_id="+testUser+"&start_datetime=2024-03-01", nil)
	listed := decodeBody[[]TimeBlockDTO](t, rec)
	require.Len(t, listed, 1)

	body := fixedBody()
	body["deleted_time_block_ids"] = []int64{listed[0].ID}
	rec = s.do(t, http.MethodPost, "/api/assignments/fixed-blocks", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/audits/"+testProject, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	audits := decodeBody[[]AuditDTO](t, rec)
	require.Len(t, audits, 2)
	assert.Equal(t, "delete", audits[0].Action)
	assert.Equal(t, "create", audits[1].Action)
	assert.Equal(t, generic.EntityTimeBlock, audits[1].EntityType)
	assert.Equal(t, testAdmin, audits[1].ChangedBy)

	rec = s.do(t, http.MethodGet, "/api/audits/p-unknown", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]AuditDTO](t, rec))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	s.do(t, http.MethodPost, "/api/assignments/fixed-blocks", fixedBody(tb("2024-03-04", "09:00", "10:00")))

	rec = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `scheduler_fixed_submissions_total{result="ok"} 1`)
	assert.Contains(t, body, `http_requests_total{route="/api/assignments/fixed-blocks",status="201"} 1`)
}

func TestRouter_UnknownRouteIsJSON(t *testing.T) {
	s := newTestServer(t, true)
	rec := s.do(t, http.MethodGet, "/api/nothing-here", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("load: %w", generic.ErrUserNotFound), http.StatusNotFound},
		{&generic.OverlapError{}, http.StatusBadRequest},
		{generic.ErrInvalidInput, http.StatusBadRequest},
		{generic.ErrSimulationHorizonExceeded, http.StatusUnprocessableEntity},
		{generic.ErrConfigurationMissing, http.StatusInternalServerError},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
