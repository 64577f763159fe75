/*
Package factory provides JSON/YAML to Go policy conversion.

PURPOSE:
  Converts working-hours policy documents into generic.WorkingHoursConfig and
  generic.SeasonConfig values. Operations can keep the policy in a file under
  version control; the server seeds it at startup (and on change when
  watch_policy is enabled) and schedctl loads it on demand.

DOCUMENT SCHEMA (YAML shown, JSON uses the same keys):
  working_hours:
    common:
      max_daily_hours: 8
      lunch_start_time: "13:00"
      lunch_end_time: "14:00"
      work_start_time: "09:00"
      work_end_time: "18:00"
      high_start_date: "11-01"   # MM-DD
      high_end_date: "12-31"
    normal:
      max_daily_hours_overtime: 10
    high:
      max_daily_hours_overtime: 12
  season:
    season_mode: auto            # auto | normal | high

  A bare working-hours document (common/normal/high at the top level) is
  accepted too; it carries no season section.

KEY FEATURES:
  - Rejects unknown keys so typos do not silently fall back to defaults
  - Validates both seasons through generic.Effective
  - Requires high-season boundaries as a pair of MM-DD values

USAGE:
  f := factory.NewPolicyFactory()
  doc, err := f.ParseFile("policy.yaml")
  err = f.Apply(ctx, store, doc)

SEE ALSO:
  - generic/policy.go: WorkingHoursConfig and season resolution
  - config/watch.go: re-seeds the policy when the file changes
*/
package factory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warp/assignment-engine/generic"
)

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// PolicyDocument is a parsed policy file.
type PolicyDocument struct {
	WorkingHours generic.WorkingHoursConfig `json:"working_hours" yaml:"working_hours"`
	Season       *generic.SeasonConfig      `json:"season,omitempty" yaml:"season,omitempty"`
}

// Format selects the decoder.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the format from the file extension; anything that is not
// .json is read as YAML.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts policy documents to Go structs.
type PolicyFactory struct{}

// NewPolicyFactory creates a new policy factory.
func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParseFile reads and parses a policy file.
func (f *PolicyFactory) ParseFile(path string) (*PolicyDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	doc, err := f.Parse(data, FormatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes and validates a policy document.
func (f *PolicyFactory) Parse(data []byte, format Format) (*PolicyDocument, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty policy document", generic.ErrInvalidConfiguration)
	}

	doc, err := decodeDocument(data, format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", generic.ErrInvalidConfiguration, err)
	}
	if err := f.Validate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Validate checks a whole document.
func (f *PolicyFactory) Validate(doc *PolicyDocument) error {
	if err := f.ValidateWorkingHours(doc.WorkingHours); err != nil {
		return err
	}
	if doc.Season != nil && !doc.Season.Mode.Valid() {
		return fmt.Errorf("%w: season_mode %q (use auto, normal or high)",
			generic.ErrInvalidConfiguration, doc.Season.Mode)
	}
	return nil
}

// ValidateWorkingHours checks that both seasons flatten cleanly and that the
// caps are coherent.
func (f *PolicyFactory) ValidateWorkingHours(cfg generic.WorkingHoursConfig) error {
	var errs []error

	if cfg.Common.MaxDailyHours < 0 {
		errs = append(errs, fmt.Errorf("max_daily_hours must not be negative"))
	}
	for _, season := range []generic.Season{generic.SeasonNormal, generic.SeasonHigh} {
		if cfg.Season(season).MaxDailyHoursOvertime < 0 {
			errs = append(errs, fmt.Errorf("%s.max_daily_hours_overtime must not be negative", season))
			continue
		}
		p, err := generic.Effective(cfg, season)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if p.MaxDailyOvertimeHours.LessThan(p.MaxDailyHours) {
			errs = append(errs, fmt.Errorf("%s overtime cap %s is below max_daily_hours %s",
				season, p.MaxDailyOvertimeHours, p.MaxDailyHours))
		}
	}

	start, end := strings.TrimSpace(cfg.Common.HighStartDate), strings.TrimSpace(cfg.Common.HighEndDate)
	if (start == "") != (end == "") {
		errs = append(errs, fmt.Errorf("high_start_date and high_end_date must be set together"))
	}
	for name, md := range map[string]string{"high_start_date": start, "high_end_date": end} {
		if md == "" {
			continue
		}
		if _, err := time.Parse("01-02", md); err != nil {
			errs = append(errs, fmt.Errorf("%s %q is not MM-DD", name, md))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", generic.ErrInvalidConfiguration, errors.Join(errs...))
}

// Apply stores the document. The season section is only written when present.
func (f *PolicyFactory) Apply(ctx context.Context, w generic.ConfigWriter, doc *PolicyDocument) error {
	if err := w.SaveWorkingHoursConfig(ctx, doc.WorkingHours); err != nil {
		return fmt.Errorf("save working hours: %w", err)
	}
	if doc.Season != nil {
		if err := w.SaveSeasonConfig(ctx, *doc.Season); err != nil {
			return fmt.Errorf("save season: %w", err)
		}
	}
	return nil
}

// ToYAML renders a document in the file format ParseFile reads.
func (f *PolicyFactory) ToYAML(doc *PolicyDocument) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// =============================================================================
// PRESETS
// =============================================================================

// DefaultDocument is the policy used by the demo scenarios and `schedctl seed`.
func DefaultDocument() *PolicyDocument {
	return &PolicyDocument{
		WorkingHours: generic.WorkingHoursConfig{
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
		},
		Season: &generic.SeasonConfig{Mode: generic.SeasonModeAuto},
	}
}

// =============================================================================
// DECODING HELPERS
// =============================================================================

func decodeDocument(data []byte, format Format) (*PolicyDocument, error) {
	var doc PolicyDocument
	if err := decodeStrict(data, format, &doc); err == nil {
		return &doc, nil
	} else if !looksBare(data, format) {
		return nil, err
	}

	// Bare working-hours document.
	var cfg generic.WorkingHoursConfig
	if err := decodeStrict(data, format, &cfg); err != nil {
		return nil, err
	}
	return &PolicyDocument{WorkingHours: cfg}, nil
}

// looksBare reports whether the top level has a "common" key.
func looksBare(data []byte, format Format) bool {
	var top map[string]any
	var err error
	if format == FormatJSON {
		err = json.Unmarshal(data, &top)
	} else {
		err = yaml.Unmarshal(data, &top)
	}
	if err != nil {
		return false
	}
	_, ok := top["common"]
	return ok
}

func decodeStrict(data []byte, format Format, out any) error {
	if format == FormatJSON {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(out)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}
