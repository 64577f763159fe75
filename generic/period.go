package generic

// =============================================================================
// PERIOD - Inclusive range of calendar days
// =============================================================================

// Period is an inclusive [Start, End] range of days.
//
// Examples:
//   - Project span: 2024-01-01 .. 2024-06-30
//   - A vacation:   2024-03-11 .. 2024-03-15
//   - A holiday:    2024-05-01 .. 2024-05-01
type Period struct {
	Start Date
	End   Date
}

// Contains returns true if the day is within the period [Start, End]
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Days returns all days in the period.
func (p Period) Days() []Date {
	var days []Date
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// AVAILABILITY CALENDAR - Weekends, approved leave and holidays
// =============================================================================

// Calendar answers "can this user be scheduled on this day?".
// Built per request from the user's approved leave and the holiday list.
type Calendar struct {
	leaves   []Period
	holidays []Period
}

func NewCalendar(userLeaves, holidays []Leave) *Calendar {
	c := &Calendar{}
	for _, l := range userLeaves {
		if l.Type == LeaveHoliday {
			c.holidays = append(c.holidays, l.Period())
			continue
		}
		c.leaves = append(c.leaves, l.Period())
	}
	for _, h := range holidays {
		c.holidays = append(c.holidays, h.Period())
	}
	return c
}

func (c *Calendar) OnLeave(d Date) bool   { return anyContains(c.leaves, d) }
func (c *Calendar) IsHoliday(d Date) bool { return anyContains(c.holidays, d) }

// IsWorkday checks a date is neither a weekend, a leave day nor a holiday.
func (c *Calendar) IsWorkday(d Date) bool {
	if d.IsWeekend() {
		return false
	}
	if c == nil {
		return true
	}
	return !c.OnLeave(d) && !c.IsHoliday(d)
}

func anyContains(periods []Period, d Date) bool {
	for _, p := range periods {
		if p.Contains(d) {
			return true
		}
	}
	return false
}
