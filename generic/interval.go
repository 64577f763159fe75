package generic

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INTERVAL - Half-open [Start, End) range within one day
// =============================================================================

// Interval is a half-open time-of-day range. Touching endpoints do not overlap.
type Interval struct {
	Start ClockTime
	End   ClockTime
}

var secondsInHour = decimal.NewFromInt(secondsPerHour)

func NewInterval(start, end ClockTime) Interval { return Interval{Start: start, End: end} }

func (i Interval) IsZero() bool   { return i.Start == 0 && i.End == 0 }
func (i Interval) Valid() bool    { return i.Start < i.End }
func (i Interval) Seconds() int   { return int(i.End - i.Start) }
func (i Interval) String() string { return fmt.Sprintf("%s-%s", i.Start, i.End) }

// Hours is the wall-clock length in hours; zero for empty or inverted intervals.
func (i Interval) Hours() decimal.Decimal {
	if !i.Valid() {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(i.Seconds())).Div(secondsInHour)
}

// DurationHours returns (end - start) in hours.
// Fails with InvalidRangeError when end <= start.
func DurationHours(start, end ClockTime) (decimal.Decimal, error) {
	if end <= start {
		return decimal.Zero, &InvalidRangeError{Start: start, End: end}
	}
	return Interval{Start: start, End: end}.Hours(), nil
}

// HoursToSeconds converts an hour quantity to whole seconds (rounded).
func HoursToSeconds(h decimal.Decimal) int {
	return int(h.Mul(secondsInHour).Round(0).IntPart())
}

// Overlaps reports whether two intervals share any positive length.
// Symmetric by construction.
func Overlaps(a, b Interval) bool {
	return !(a.End <= b.Start || a.Start >= b.End)
}

// AvailableSlots returns the gaps of window not covered by busy, in chronological
// order. Busy intervals are clamped to the window first; gaps of zero length are
// dropped. busy is not modified.
func AvailableSlots(busy []Interval, window Interval) []Interval {
	if !window.Valid() {
		return nil
	}

	clamped := make([]Interval, 0, len(busy))
	for _, b := range busy {
		if b.Start < window.Start {
			b.Start = window.Start
		}
		if b.End > window.End {
			b.End = window.End
		}
		if b.Valid() {
			clamped = append(clamped, b)
		}
	}
	sort.Slice(clamped, func(i, j int) bool {
		if clamped[i].Start == clamped[j].Start {
			return clamped[i].End < clamped[j].End
		}
		return clamped[i].Start < clamped[j].Start
	})

	var slots []Interval
	cursor := window.Start
	for _, b := range clamped {
		if cursor < b.Start {
			slots = append(slots, Interval{Start: cursor, End: b.Start})
		}
		if b.End > cursor {
			cursor = b.End
		}
	}
	if cursor < window.End {
		slots = append(slots, Interval{Start: cursor, End: window.End})
	}
	return slots
}

// SumHours adds up the lengths of the given intervals.
func SumHours(intervals []Interval) decimal.Decimal {
	total := decimal.Zero
	for _, i := range intervals {
		total = total.Add(i.Hours())
	}
	return total
}
