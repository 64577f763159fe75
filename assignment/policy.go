package assignment

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/assignment-engine/generic"
)

// PolicyResolver reads the stored working-hours and season documents and
// flattens them for the current moment. Nothing is cached: every call sees
// the latest stored configuration.
type PolicyResolver struct {
	Config generic.ConfigStore
	Now    func() time.Time
}

// Resolve returns the effective policy. A missing working-hours document is
// ErrConfigurationMissing; a missing season document resolves to normal.
func (r PolicyResolver) Resolve(ctx context.Context) (generic.EffectivePolicy, error) {
	cfg, err := r.Config.GetWorkingHoursConfig(ctx)
	if err != nil {
		return generic.EffectivePolicy{}, fmt.Errorf("load working hours configuration: %w", err)
	}
	if cfg == nil {
		return generic.EffectivePolicy{}, generic.ErrConfigurationMissing
	}

	seasonCfg, err := r.Config.GetSeasonConfig(ctx)
	if err != nil {
		return generic.EffectivePolicy{}, fmt.Errorf("load season configuration: %w", err)
	}

	season := generic.ResolveSeason(seasonCfg, *cfg, r.now())
	return generic.Effective(*cfg, season)
}

func (r PolicyResolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
