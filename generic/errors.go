/*
errors.go - Centralized error types for the scheduling engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  The HTTP layer maps them to status codes with the helpers at the bottom.

ERROR CATEGORIES:
  1. Not found   - project, user, assign-by user, assignment, time block
  2. Validation  - time range, comment, daily limit, project range, overlap
  3. Simulation  - start before project, one-year horizon exceeded
  4. Config      - working-hours configuration missing or malformed

USAGE:
  Structured errors carry the offending date/time and unwrap to a sentinel:

    var overlap *generic.OverlapError
    if errors.As(err, &overlap) {
        fmt.Println(overlap.Date, overlap.Interval)
    }
    if errors.Is(err, generic.ErrOverlap) { ... }

SEE ALSO:
  - interval.go: DurationHours returns InvalidRangeError
  - assignment/validator.go: produces all validation errors
  - api/handlers.go: statusFor maps kinds to HTTP status
*/
package generic

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound = errors.New("not found")

	ErrProjectNotFound      = fmt.Errorf("project %w", ErrNotFound)
	ErrUserNotFound         = fmt.Errorf("user %w", ErrNotFound)
	ErrAssignByUserNotFound = fmt.Errorf("assigning user %w", ErrNotFound)
	ErrAssignmentNotFound   = fmt.Errorf("assignment %w", ErrNotFound)
	ErrTimeBlockNotFound    = fmt.Errorf("time block %w", ErrNotFound)

	// ErrInvalidInput is returned for malformed requests (bad dates, negative hours).
	ErrInvalidInput = errors.New("invalid input")

	ErrInvalidTimeRange   = errors.New("invalid time range")
	ErrCommentRequired    = errors.New("comment required")
	ErrDailyLimitExceeded = errors.New("daily limit exceeded")
	ErrOutOfProjectRange  = errors.New("outside project date range")
	ErrOverlap            = errors.New("time block overlap")

	ErrSimulationStartBeforeProject = errors.New("simulation start date is before the project start date")
	ErrSimulationHorizonExceeded    = errors.New("could not assign all hours within one year")

	// ErrConfigurationMissing is fatal: no working-hours configuration is stored.
	// Not user-correctable and never retried.
	ErrConfigurationMissing = errors.New("working hours configuration not found")
	ErrInvalidConfiguration = errors.New("invalid working hours configuration")
)

// =============================================================================
// STRUCTURED ERRORS - Carry the offending date/time
// =============================================================================

// InvalidRangeError is returned when a block does not start before it ends.
type InvalidRangeError struct {
	Date  Date // zero when raised outside a dated context
	Start ClockTime
	End   ClockTime
}

func (e *InvalidRangeError) Error() string {
	if e.Date.IsZero() {
		return fmt.Sprintf("invalid time range: start (%s) must be before end (%s)", e.Start, e.End)
	}
	return fmt.Sprintf("time block %s has an invalid time range: start (%s) must be before end (%s)",
		e.Date, e.Start, e.End)
}

func (e *InvalidRangeError) Unwrap() error { return ErrInvalidTimeRange }

// CommentRequiredError: a single block longer than the daily hours but within the
// overtime cap needs a justification comment.
type CommentRequiredError struct {
	Date             Date
	Interval         Interval
	MaxHours         decimal.Decimal
	MaxOvertimeHours decimal.Decimal
}

func (e *CommentRequiredError) Error() string {
	return fmt.Sprintf("time block %s %s requires a comment because its duration is between %s and %s hours",
		e.Date, e.Interval, e.MaxHours, e.MaxOvertimeHours)
}

func (e *CommentRequiredError) Unwrap() error { return ErrCommentRequired }

// DailyLimitError: the accumulated hours for a date exceed the overtime cap.
type DailyLimitError struct {
	Date  Date
	Limit decimal.Decimal
	Total decimal.Decimal
}

func (e *DailyLimitError) Error() string {
	return fmt.Sprintf("time blocks on %s add up to %s hours, exceeding the daily limit of %s hours",
		e.Date, e.Total, e.Limit)
}

func (e *DailyLimitError) Unwrap() error { return ErrDailyLimitExceeded }

// OutOfProjectRangeError: a block falls outside the project's date range.
// Blocks before the start are never allowed; after the end needs a comment.
type OutOfProjectRangeError struct {
	Date         Date
	ProjectStart Date
	ProjectEnd   Date
}

func (e *OutOfProjectRangeError) Error() string {
	if e.Date.Before(e.ProjectStart) {
		return fmt.Sprintf("time block %s is before the project start date (%s to %s)",
			e.Date, e.ProjectStart, e.ProjectEnd)
	}
	return fmt.Sprintf("time block %s is outside the project date range (%s to %s) and requires a comment",
		e.Date, e.ProjectStart, e.ProjectEnd)
}

func (e *OutOfProjectRangeError) Unwrap() error { return ErrOutOfProjectRange }

// OverlapError names the proposed block that collides with another active block.
type OverlapError struct {
	Date     Date
	Interval Interval
	With     Interval
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("time block %s %s overlaps an existing time block (%s)", e.Date, e.Interval, e.With)
}

func (e *OverlapError) Unwrap() error { return ErrOverlap }

// HorizonExceededError: the cascade walked past one year with hours remaining.
type HorizonExceededError struct {
	Start     Date
	Days      int
	Remaining decimal.Decimal
}

func (e *HorizonExceededError) Error() string {
	return fmt.Sprintf("could not assign all hours within %d days of %s (%s hours remaining); check the user's availability",
		e.Days, e.Start, e.Remaining)
}

func (e *HorizonExceededError) Unwrap() error { return ErrSimulationHorizonExceeded }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError returns true for time-block placement violations and bad input.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidTimeRange) ||
		errors.Is(err, ErrCommentRequired) ||
		errors.Is(err, ErrDailyLimitExceeded) ||
		errors.Is(err, ErrOutOfProjectRange) ||
		errors.Is(err, ErrOverlap)
}

// IsSimulationError returns true when a cascade request is infeasible.
func IsSimulationError(err error) bool {
	return errors.Is(err, ErrSimulationStartBeforeProject) ||
		errors.Is(err, ErrSimulationHorizonExceeded)
}

// IsConfigurationError returns true for missing or malformed configuration.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfigurationMissing) || errors.Is(err, ErrInvalidConfiguration)
}

// IsClientError returns true if the error is due to the caller's input.
func IsClientError(err error) bool {
	return IsNotFound(err) || IsValidationError(err) || IsSimulationError(err)
}

// ErrorKind maps errors to a stable label for logs and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsNotFound(err):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInvalidTimeRange):
		return "invalid_time_range"
	case errors.Is(err, ErrCommentRequired):
		return "comment_required"
	case errors.Is(err, ErrDailyLimitExceeded):
		return "daily_limit_exceeded"
	case errors.Is(err, ErrOutOfProjectRange):
		return "out_of_project_range"
	case errors.Is(err, ErrOverlap):
		return "overlap"
	case errors.Is(err, ErrSimulationStartBeforeProject):
		return "simulation_start_before_project"
	case errors.Is(err, ErrSimulationHorizonExceeded):
		return "simulation_horizon_exceeded"
	case IsConfigurationError(err):
		return "configuration"
	}
	return "unexpected"
}
