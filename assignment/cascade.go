/*
cascade.go - Cascade simulation

PURPOSE:
  Proposes time blocks that place total_hours for a user on a project,
  filling each working day from the earliest free slot onward. Nothing is
  written: the caller reviews the result and submits it as fixed blocks.

ALGORITHM:
  Walk days from start_date:
    - skip weekends, the user's approved leave and holidays
    - free slots = work window minus lunch and occupied intervals
      (existing blocks on any project plus blocks generated that day)
    - take the earliest slot, assign min(slot, daily capacity, remaining)
    - repeat until the day is at capacity or has no slot left
  Daily capacity is the policy's daily hours minus what is already booked
  that day; the cascade never plans overtime.

HORIZON:
  If hours remain after walking past 365 days, the simulation fails and no
  partial result is returned.
*/
package assignment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/warp/assignment-engine/generic"
)

// HorizonDays is how far past the start date the cascade may search. The day
// at offset HorizonDays is still filled; the walk fails when it would move past it.
const HorizonDays = 365

func (s *Service) SimulateCascade(ctx context.Context, in CascadeInput) (CascadeResult, error) {
	logger := s.log(ctx, "SimulateCascade", "user_id", in.UserID, "project_id", in.ProjectID)

	result, err := s.simulateCascade(ctx, in)
	s.metrics.CascadeRun(resultLabel(err), len(result.GeneratedTimeBlocks))
	if err != nil {
		logger.Warn("cascade simulation failed", "error_kind", generic.ErrorKind(err), "error", err)
		return CascadeResult{}, err
	}

	logger.Info("cascade simulation completed",
		"start_date", in.StartDate, "total_hours", in.TotalHours, "generated", len(result.GeneratedTimeBlocks))
	return result, nil
}

func (s *Service) simulateCascade(ctx context.Context, in CascadeInput) (CascadeResult, error) {
	if in.TotalHours.IsNegative() {
		return CascadeResult{}, fmt.Errorf("%w: total_hours must not be negative", generic.ErrInvalidInput)
	}
	if in.StartDate.IsZero() {
		return CascadeResult{}, fmt.Errorf("%w: start_date is required", generic.ErrInvalidInput)
	}

	project, err := s.commonValidations(ctx, in.ProjectID, in.UserID, in.AssignByUserID)
	if err != nil {
		return CascadeResult{}, err
	}
	policy, err := s.policy.Resolve(ctx)
	if err != nil {
		return CascadeResult{}, err
	}
	if in.StartDate.Before(project.StartDate) {
		return CascadeResult{}, fmt.Errorf("%w: %s is before %s",
			generic.ErrSimulationStartBeforeProject, in.StartDate, project.StartDate)
	}

	sched, err := s.loadSchedule(ctx, in.UserID, in.StartDate)
	if err != nil {
		return CascadeResult{}, err
	}

	blocks, err := cascade(in.StartDate, in.TotalHours, policy, sched)
	if err != nil {
		return CascadeResult{}, err
	}
	return CascadeResult{GeneratedTimeBlocks: blocks, Message: MsgSimulationCompleted}, nil
}

// schedule is what the walk needs to know about the user.
type schedule struct {
	calendar *generic.Calendar
	busy     map[generic.Date][]generic.Interval
	booked   map[generic.Date]decimal.Decimal
}

// loadSchedule reads existing blocks, leave and holidays concurrently.
func (s *Service) loadSchedule(ctx context.Context, userID string, start generic.Date) (schedule, error) {
	var (
		existing []generic.TimeBlock
		leaves   []generic.Leave
		holidays []generic.Leave
	)
	end := start.AddDays(HorizonDays + 1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		existing, err = s.store.ActiveBlocksForUser(gctx, userID, generic.DateRange{From: &start, To: &end})
		if err != nil {
			return fmt.Errorf("load existing time blocks: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		leaves, err = s.store.GetApprovedLeaves(gctx, userID)
		if err != nil {
			return fmt.Errorf("load leaves: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		holidays, err = s.store.GetHolidays(gctx, 0)
		if err != nil {
			return fmt.Errorf("load holidays: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return schedule{}, err
	}

	sched := schedule{
		calendar: generic.NewCalendar(leaves, holidays),
		busy:     make(map[generic.Date][]generic.Interval),
		booked:   make(map[generic.Date]decimal.Decimal),
	}
	for _, tb := range existing {
		sched.busy[tb.Date] = append(sched.busy[tb.Date], tb.Interval())
		sched.booked[tb.Date] = sched.booked[tb.Date].Add(tb.DurationHours)
	}
	return sched, nil
}

// cascade is the pure walk. sched.busy is extended with generated blocks.
func cascade(start generic.Date, total decimal.Decimal, policy generic.EffectivePolicy, sched schedule) ([]GeneratedBlock, error) {
	var generated []GeneratedBlock
	remaining := total

	for day := start; remaining.IsPositive(); {
		if sched.calendar.IsWorkday(day) {
			var blocks []GeneratedBlock
			blocks, remaining = fillDay(day, remaining, policy, sched)
			generated = append(generated, blocks...)
		}

		day = day.AddDays(1)
		if remaining.IsPositive() && generic.DaysBetween(start, day) > HorizonDays {
			return nil, &generic.HorizonExceededError{Start: start, Days: HorizonDays, Remaining: remaining}
		}
	}
	return generated, nil
}

func fillDay(day generic.Date, remaining decimal.Decimal, policy generic.EffectivePolicy, sched schedule) ([]GeneratedBlock, decimal.Decimal) {
	var blocks []GeneratedBlock
	assigned := decimal.Zero

	for remaining.IsPositive() {
		capacity := policy.MaxDailyHours.Sub(sched.booked[day]).Sub(assigned)
		if !capacity.IsPositive() {
			break
		}

		busy := append([]generic.Interval{policy.Lunch}, sched.busy[day]...)
		slots := generic.AvailableSlots(busy, policy.Work)
		if len(slots) == 0 {
			break
		}
		slot := slots[0]

		hours := decimal.Min(slot.Hours(), capacity, remaining)
		seconds := generic.HoursToSeconds(hours)
		if seconds <= 0 {
			// Less than half a second left: nothing placeable remains.
			remaining = decimal.Zero
			break
		}

		placed := generic.NewInterval(slot.Start, slot.Start.AddSeconds(seconds))
		duration := placed.Hours()
		blocks = append(blocks, GeneratedBlock{
			Date:          day,
			Start:         placed.Start,
			End:           placed.End,
			DurationHours: duration,
			Mode:          generic.ModeCascade,
		})
		sched.busy[day] = append(sched.busy[day], placed)
		assigned = assigned.Add(duration)
		remaining = remaining.Sub(duration)
	}
	return blocks, remaining
}
