/*
scheduler.go - Season monitor

PURPOSE:
  Periodically resolves the working-hours policy so season changes are
  visible without a request: in auto mode the season flips at the high-season
  boundaries, and an operator may change the stored mode at any time.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Resolves immediately on start, then on every tick
  - Logs a line only when the season or the overtime cap changes
  - Publishes scheduler_policy_season / scheduler_policy_max_daily_overtime_hours
  - A missing configuration is logged once per change, never fatal

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 minute)
  - Enabled: Whether the monitor is active (default: true)

USAGE:
  monitor := NewSeasonMonitor(service.Policy(), metrics, logger)
  monitor.Start()
  // ... later
  monitor.Stop()

SEE ALSO:
  - assignment/policy.go: PolicyResolver
  - observability/metrics.go: PolicyResolved
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/assignment-engine/generic"
	"github.com/warp/assignment-engine/observability"
)

// PolicySource resolves the policy in force.
type PolicySource interface {
	Resolve(ctx context.Context) (generic.EffectivePolicy, error)
}

// SeasonMonitor tracks the effective season in the background.
type SeasonMonitor struct {
	Policy        PolicySource
	Metrics       *observability.Metrics
	Logger        *slog.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	// Last observed state; guarded by mu.
	last    generic.EffectivePolicy
	lastErr string
	seen    bool
}

// NewSeasonMonitor creates a new monitor.
func NewSeasonMonitor(policy PolicySource, metrics *observability.Metrics, logger *slog.Logger) *SeasonMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SeasonMonitor{
		Policy:        policy,
		Metrics:       metrics,
		Logger:        logger.With("component", "season_monitor"),
		CheckInterval: time.Minute,
		Enabled:       true,
	}
}

// Start begins the monitor.
func (sm *SeasonMonitor) Start() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.Enabled {
		sm.Logger.Info("disabled, not starting")
		return
	}
	if sm.ticker != nil {
		return
	}

	sm.ticker = time.NewTicker(sm.CheckInterval)
	sm.stop = make(chan struct{})
	sm.wg.Add(1)

	go sm.run(sm.ticker, sm.stop)

	sm.Logger.Info("started", "check_interval", sm.CheckInterval)
}

// Stop stops the monitor and waits for the goroutine to exit.
func (sm *SeasonMonitor) Stop() {
	sm.mu.Lock()
	if sm.ticker == nil {
		sm.mu.Unlock()
		return
	}
	sm.ticker.Stop()
	close(sm.stop)
	sm.ticker = nil
	sm.mu.Unlock()

	sm.wg.Wait()
	sm.Logger.Info("stopped")
}

func (sm *SeasonMonitor) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer sm.wg.Done()

	// Run immediately on start
	sm.RunNow(context.Background())

	for {
		select {
		case <-ticker.C:
			sm.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow resolves the policy once and reports changes.
func (sm *SeasonMonitor) RunNow(ctx context.Context) {
	p, err := sm.Policy.Resolve(ctx)

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if err != nil {
		if err.Error() != sm.lastErr {
			sm.Logger.Warn("policy unresolved", "error_kind", generic.ErrorKind(err), "error", err)
			sm.lastErr = err.Error()
		}
		return
	}
	sm.lastErr = ""

	sm.Metrics.PolicyResolved(string(p.Season), p.MaxDailyOvertimeHours.InexactFloat64())

	if sm.seen && p.Season == sm.last.Season && p.MaxDailyOvertimeHours.Equal(sm.last.MaxDailyOvertimeHours) {
		return
	}
	if sm.seen {
		sm.Logger.Info("season changed",
			"from", sm.last.Season, "to", p.Season,
			"max_daily_hours_overtime", p.MaxDailyOvertimeHours.String())
	} else {
		sm.Logger.Info("season resolved",
			"season", p.Season,
			"max_daily_hours_overtime", p.MaxDailyOvertimeHours.String())
	}
	sm.last = p
	sm.seen = true
}

// Current returns the last resolved policy and whether one was resolved.
func (sm *SeasonMonitor) Current() (generic.EffectivePolicy, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.last, sm.seen
}
