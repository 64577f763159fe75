package api

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/assignment-engine/generic"
	"github.com/warp/assignment-engine/observability"
)

type fakePolicy struct {
	mu     sync.Mutex
	policy generic.EffectivePolicy
	err    error
	calls  int
}

func (f *fakePolicy) Resolve(context.Context) (generic.EffectivePolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.policy, f.err
}

func (f *fakePolicy) set(p generic.EffectivePolicy, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.policy, f.err = p, err
}

func (f *fakePolicy) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func seasonPolicy(season generic.Season, overtime int64) generic.EffectivePolicy {
	return generic.EffectivePolicy{
		Season:                season,
		MaxDailyHours:         decimal.NewFromInt(8),
		MaxDailyOvertimeHours: decimal.NewFromInt(overtime),
	}
}

func TestSeasonMonitor_TracksSeasonChanges(t *testing.T) {
	// GIVEN: a normal season policy
	src := &fakePolicy{policy: seasonPolicy(generic.SeasonNormal, 10)}
	metrics := observability.NewMetrics()
	sm := NewSeasonMonitor(src, metrics, quietLogger())
	ctx := context.Background()

	// WHEN: resolved, then the season flips
	sm.RunNow(ctx)
	current, ok := sm.Current()
	require.True(t, ok)
	assert.Equal(t, generic.SeasonNormal, current.Season)

	src.set(seasonPolicy(generic.SeasonHigh, 12), nil)
	sm.RunNow(ctx)

	// THEN: the monitor and the gauges follow
	current, _ = sm.Current()
	assert.Equal(t, generic.SeasonHigh, current.Season)

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	var seasons []string
	for _, mf := range families {
		if mf.GetName() != "scheduler_policy_season" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				seasons = append(seasons, l.GetValue())
			}
		}
	}
	assert.Equal(t, []string{"high"}, seasons)
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.Registry(), "scheduler_policy_max_daily_overtime_hours"))
}

func TestSeasonMonitor_KeepsLastPolicyOnError(t *testing.T) {
	src := &fakePolicy{policy: seasonPolicy(generic.SeasonNormal, 10)}
	sm := NewSeasonMonitor(src, nil, quietLogger())
	ctx := context.Background()

	sm.RunNow(ctx)
	src.set(generic.EffectivePolicy{}, generic.ErrConfigurationMissing)
	sm.RunNow(ctx)
	sm.RunNow(ctx)

	current, ok := sm.Current()
	require.True(t, ok)
	assert.Equal(t, generic.SeasonNormal, current.Season)
}

func TestSeasonMonitor_StartStop(t *testing.T) {
	src := &fakePolicy{policy: seasonPolicy(generic.SeasonNormal, 10)}
	sm := NewSeasonMonitor(src, nil, quietLogger())
	sm.CheckInterval = 10 * time.Millisecond

	sm.Start()
	sm.Start() // second call is a no-op
	assert.Eventually(t, func() bool { return src.callCount() >= 3 }, 2*time.Second, 5*time.Millisecond)
	sm.Stop()
	sm.Stop()

	calls := src.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, src.callCount())

	disabled := NewSeasonMonitor(src, nil, quietLogger())
	disabled.Enabled = false
	disabled.Start()
	_, ok := disabled.Current()
	assert.False(t, ok)
}
