package generic

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// WORKING HOURS CONFIG - Stored shape (config table, seed files)
// =============================================================================

// WorkingHoursConfig is the stored working-hours document. Zero values mean
// "omitted" and fall back to the defaults below when flattened.
type WorkingHoursConfig struct {
	Common CommonHours `json:"common" yaml:"common"`
	Normal SeasonHours `json:"normal" yaml:"normal"`
	High   SeasonHours `json:"high" yaml:"high"`
}

type CommonHours struct {
	MaxDailyHours  float64 `json:"max_daily_hours" yaml:"max_daily_hours"`
	LunchStartTime string  `json:"lunch_start_time,omitempty" yaml:"lunch_start_time,omitempty"`
	LunchEndTime   string  `json:"lunch_end_time,omitempty" yaml:"lunch_end_time,omitempty"`
	WorkStartTime  string  `json:"work_start_time,omitempty" yaml:"work_start_time,omitempty"`
	WorkEndTime    string  `json:"work_end_time,omitempty" yaml:"work_end_time,omitempty"`
	HighStartDate  string  `json:"high_start_date,omitempty" yaml:"high_start_date,omitempty"` // MM-DD
	HighEndDate    string  `json:"high_end_date,omitempty" yaml:"high_end_date,omitempty"`     // MM-DD
}

type SeasonHours struct {
	MaxDailyHoursOvertime float64 `json:"max_daily_hours_overtime" yaml:"max_daily_hours_overtime"`
}

// Season returns the per-season section.
func (c WorkingHoursConfig) Season(s Season) SeasonHours {
	if s == SeasonHigh {
		return c.High
	}
	return c.Normal
}

// =============================================================================
// SEASON
// =============================================================================

type Season string

const (
	SeasonNormal Season = "normal"
	SeasonHigh   Season = "high"
)

type SeasonMode string

const (
	SeasonModeAuto   SeasonMode = "auto"
	SeasonModeNormal SeasonMode = "normal"
	SeasonModeHigh   SeasonMode = "high"
)

func (m SeasonMode) Valid() bool {
	return m == SeasonModeAuto || m == SeasonModeNormal || m == SeasonModeHigh
}

type SeasonConfig struct {
	Mode SeasonMode `json:"season_mode" yaml:"season_mode"`
}

// ResolveSeason picks the active season. A fixed mode wins; "auto" compares now
// against the high-season MM-DD boundaries placed in now's year (end inclusive
// through 23:59:59). A start later than the end is a range across the new year
// (12-01..02-28 is high from December through February), not an empty range.
// A missing config resolves to normal.
func ResolveSeason(cfg *SeasonConfig, policy WorkingHoursConfig, now time.Time) Season {
	if cfg == nil {
		return SeasonNormal
	}
	switch cfg.Mode {
	case SeasonModeHigh:
		return SeasonHigh
	case SeasonModeNormal:
		return SeasonNormal
	}
	if isHighSeason(policy.Common.HighStartDate, policy.Common.HighEndDate, now) {
		return SeasonHigh
	}
	return SeasonNormal
}

func isHighSeason(startMD, endMD string, now time.Time) bool {
	sm, sd, err := parseMonthDay(startMD)
	if err != nil {
		return false
	}
	em, ed, err := parseMonthDay(endMD)
	if err != nil {
		return false
	}
	year, loc := now.Year(), now.Location()
	start := time.Date(year, sm, sd, 0, 0, 0, 0, loc)
	end := time.Date(year, em, ed, 23, 59, 59, 0, loc)

	if start.After(end) {
		// Range wraps the new year, e.g. 12-01 .. 02-28.
		return !now.Before(start) || !now.After(end)
	}
	return !now.Before(start) && !now.After(end)
}

func parseMonthDay(s string) (time.Month, int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, fmt.Errorf("empty month-day")
	}
	t, err := time.Parse("01-02", s)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: month-day %q (use MM-DD)", ErrInvalidConfiguration, s)
	}
	return t.Month(), t.Day(), nil
}

// =============================================================================
// EFFECTIVE POLICY - Flattened view used by validation and simulation
// =============================================================================

var (
	DefaultMaxDailyHours         = decimal.NewFromInt(8)
	DefaultMaxDailyOvertimeHours = decimal.NewFromInt(10)
	DefaultWorkWindow            = Interval{Start: NewClockTime(9, 0, 0), End: NewClockTime(18, 0, 0)}
	DefaultLunchWindow           = Interval{Start: NewClockTime(13, 0, 0), End: NewClockTime(14, 0, 0)}
)

type EffectivePolicy struct {
	Season                Season
	MaxDailyHours         decimal.Decimal
	MaxDailyOvertimeHours decimal.Decimal
	Lunch                 Interval
	Work                  Interval
}

// Effective flattens the common section plus the selected season's overtime cap,
// applying defaults for omitted fields.
func Effective(cfg WorkingHoursConfig, season Season) (EffectivePolicy, error) {
	p := EffectivePolicy{
		Season:                season,
		MaxDailyHours:         DefaultMaxDailyHours,
		MaxDailyOvertimeHours: DefaultMaxDailyOvertimeHours,
	}
	if cfg.Common.MaxDailyHours > 0 {
		p.MaxDailyHours = decimal.NewFromFloat(cfg.Common.MaxDailyHours)
	}
	if ot := cfg.Season(season).MaxDailyHoursOvertime; ot > 0 {
		p.MaxDailyOvertimeHours = decimal.NewFromFloat(ot)
	}

	var err error
	if p.Work, err = windowOrDefault(cfg.Common.WorkStartTime, cfg.Common.WorkEndTime, DefaultWorkWindow); err != nil {
		return EffectivePolicy{}, fmt.Errorf("work window: %w", err)
	}
	if p.Lunch, err = windowOrDefault(cfg.Common.LunchStartTime, cfg.Common.LunchEndTime, DefaultLunchWindow); err != nil {
		return EffectivePolicy{}, fmt.Errorf("lunch window: %w", err)
	}
	return p, nil
}

func windowOrDefault(start, end string, def Interval) (Interval, error) {
	w := def
	if strings.TrimSpace(start) != "" {
		c, err := ParseClockTime(start)
		if err != nil {
			return Interval{}, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
		}
		w.Start = c
	}
	if strings.TrimSpace(end) != "" {
		c, err := ParseClockTime(end)
		if err != nil {
			return Interval{}, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
		}
		w.End = c
	}
	if !w.Valid() {
		return Interval{}, fmt.Errorf("%w: window %s is empty", ErrInvalidConfiguration, w)
	}
	return w, nil
}
