package assignment_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/assignment-engine/assignment"
	"github.com/warp/assignment-engine/generic"
	"github.com/warp/assignment-engine/generic/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	projectID      = "p-apollo"
	shortProjectID = "p-sprint"
	userID         = "u-ada"
	adminID        = "u-admin"
)

type testEnv struct {
	store   *store.Memory
	service *assignment.Service
	now     time.Time
}

func defaultPolicy() generic.WorkingHoursConfig {
	return generic.WorkingHoursConfig{
		Common: generic.CommonHours{
			MaxDailyHours:  8,
			LunchStartTime: "13:00",
			LunchEndTime:   "14:00",
			WorkStartTime:  "09:00",
			WorkEndTime:    "18:00",
			HighStartDate:  "11-01",
			HighEndDate:    "12-31",
		},
		Normal: generic.SeasonHours{MaxDailyHoursOvertime: 10},
		High:   generic.SeasonHours{MaxDailyHoursOvertime: 12},
	}
}

// newTestEnv seeds two projects, two users and the working-hours policy.
// The clock is Friday 2024-03-01 10:00 UTC unless overridden.
func newTestEnv(t *testing.T, opts ...func(*testEnv)) *testEnv {
	t.Helper()
	ctx := context.Background()

	env := &testEnv{
		store: store.NewMemory(),
		now:   time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC),
	}
	for _, opt := range opts {
		opt(env)
	}

	require.NoError(t, env.store.SaveProject(ctx, generic.Project{
		ID: projectID, Name: "Apollo", Active: true,
		StartDate: generic.MustParseDate("2024-01-01"), EndDate: generic.MustParseDate("2024-12-31"),
	}))
	require.NoError(t, env.store.SaveProject(ctx, generic.Project{
		ID: shortProjectID, Name: "Sprint", Active: true,
		StartDate: generic.MustParseDate("2024-03-01"), EndDate: generic.MustParseDate("2024-03-31"),
	}))
	require.NoError(t, env.store.SaveUser(ctx, generic.User{ID: userID, Name: "Ada", Active: true}))
	require.NoError(t, env.store.SaveUser(ctx, generic.User{ID: adminID, Name: "Admin", Active: true}))
	require.NoError(t, env.store.SaveWorkingHoursConfig(ctx, defaultPolicy()))
	require.NoError(t, env.store.SaveSeasonConfig(ctx, generic.SeasonConfig{Mode: generic.SeasonModeAuto}))

	var seq atomic.Int64
	env.service = assignment.NewService(env.store,
		assignment.WithClock(func() time.Time { return env.now }),
		assignment.WithIDGenerator(func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }),
	)
	return env
}

func withNow(now time.Time) func(*testEnv) {
	return func(env *testEnv) { env.now = now }
}

func date(s string) generic.Date { return generic.MustParseDate(s) }

func blk(day, start, end string) assignment.BlockInput {
	return assignment.BlockInput{
		Date:  date(day),
		Start: generic.MustParseClockTime(start),
		End:   generic.MustParseClockTime(end),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fixedInput(project string, blocks ...assignment.BlockInput) assignment.FixedBlockInput {
	return assignment.FixedBlockInput{
		ProjectID:      project,
		UserID:         userID,
		AssignByUserID: adminID,
		Role:           "developer",
		TimeBlocks:     blocks,
	}
}

// book creates blocks through the service and returns them.
func (env *testEnv) book(t *testing.T, project string, blocks ...assignment.BlockInput) []generic.TimeBlock {
	t.Helper()
	res, err := env.service.ProcessFixedBlocks(context.Background(), fixedInput(project, blocks...))
	require.NoError(t, err)
	return res.Created
}

func (env *testEnv) activeBlocks(t *testing.T) []generic.TimeBlock {
	t.Helper()
	blocks, err := env.store.ActiveBlocksForUser(context.Background(), userID, generic.DateRange{})
	require.NoError(t, err)
	return blocks
}

// =============================================================================
// COMMON VALIDATIONS AND POLICY
// =============================================================================

func TestService_CommonValidations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	in := fixedInput("missing", blk("2024-03-04", "09:00", "10:00"))
	_, err := env.service.ProcessFixedBlocks(ctx, in)
	assert.ErrorIs(t, err, generic.ErrProjectNotFound)

	in = fixedInput(projectID, blk("2024-03-04", "09:00", "10:00"))
	in.UserID = "ghost"
	_, err = env.service.ProcessFixedBlocks(ctx, in)
	assert.ErrorIs(t, err, generic.ErrUserNotFound)

	in = fixedInput(projectID, blk("2024-03-04", "09:00", "10:00"))
	in.AssignByUserID = "ghost"
	_, err = env.service.ProcessFixedBlocks(ctx, in)
	assert.ErrorIs(t, err, generic.ErrAssignByUserNotFound)
	assert.True(t, generic.IsNotFound(err))

	_, err = env.service.SimulateCascade(ctx, assignment.CascadeInput{
		ProjectID: "missing", UserID: userID, AssignByUserID: adminID,
		StartDate: date("2024-03-04"), TotalHours: dec("8"),
	})
	assert.ErrorIs(t, err, generic.ErrProjectNotFound)
}

func TestService_MissingWorkingHoursConfigIsFatal(t *testing.T) {
	// GIVEN: no working-hours document stored
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveProject(ctx, generic.Project{ID: projectID, Active: true, StartDate: date("2024-01-01"), EndDate: date("2024-12-31")}))
	require.NoError(t, mem.SaveUser(ctx, generic.User{ID: userID}))
	require.NoError(t, mem.SaveUser(ctx, generic.User{ID: adminID}))
	svc := assignment.NewService(mem)

	// WHEN: submitting blocks or simulating
	_, err := svc.ProcessFixedBlocks(ctx, fixedInput(projectID, blk("2024-03-04", "09:00", "10:00")))

	// THEN: configuration error, nothing written
	assert.ErrorIs(t, err, generic.ErrConfigurationMissing)
	assert.True(t, generic.IsConfigurationError(err))
	assert.False(t, generic.IsClientError(err))

	_, err = svc.SimulateCascade(ctx, assignment.CascadeInput{
		ProjectID: projectID, UserID: userID, AssignByUserID: adminID,
		StartDate: date("2024-03-04"), TotalHours: dec("8"),
	})
	assert.ErrorIs(t, err, generic.ErrConfigurationMissing)
}

func TestPolicyResolver_SeasonAware(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveWorkingHoursConfig(ctx, defaultPolicy()))

	november := func() time.Time { return time.Date(2024, time.November, 10, 9, 0, 0, 0, time.UTC) }
	resolver := assignment.PolicyResolver{Config: mem, Now: november}

	// No season document: normal, even inside the high-season dates.
	p, err := resolver.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, generic.SeasonNormal, p.Season)

	require.NoError(t, mem.SaveSeasonConfig(ctx, generic.SeasonConfig{Mode: generic.SeasonModeAuto}))
	p, err = resolver.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, generic.SeasonHigh, p.Season)
	assert.True(t, p.MaxDailyOvertimeHours.Equal(dec("12")))
}

func TestService_ListTimeBlocks(t *testing.T) {
	env := newTestEnv(t)
	env.book(t, projectID, blk("2024-03-04", "09:00", "12:00"))
	env.book(t, shortProjectID, blk("2024-03-05", "09:00", "12:00"))

	blocks, err := env.service.ListTimeBlocks(context.Background(), userID, date("2024-03-04"), date("2024-03-04"))
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "Apollo", blocks[0].ProjectName)
	assert.Equal(t, "developer", blocks[0].Role)

	_, err = env.service.ListTimeBlocks(context.Background(), "", date("2024-03-04"), date("2024-03-04"))
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}
