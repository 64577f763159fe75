/*
validator.go - Time-block placement rules

PURPOSE:
  Decides whether a batch of proposed blocks may be written for one user on
  one project. Read-only: nothing is persisted here.

CHECKS (fail-fast, in this order, over the whole batch):
  1. Chronology:    every block starts before it ends
  2. Daily hours:   a single block longer than the daily hours but within the
                    overtime cap needs the TooLong comment; the running total
                    of the batch per date must stay within the overtime cap
  3. Project range: never before the project start; after the project end
                    only with the OutOfRange comment
  4. Existing:      no overlap with the user's other active blocks (on any
                    project) nor with another block of the batch, and the
                    per-date total of existing plus proposed hours stays
                    within the overtime cap

  The comment requirement in step 2 is per block: two 5h blocks on one day
  (10h total) need no comment.

EDITS:
  A proposed block carrying the ID of an existing block replaces it, so the
  existing block is left out of step 4. Re-validating an unchanged batch of
  edits therefore passes.

SEE ALSO:
  - generic/interval.go: Overlaps
  - generic/errors.go: error types returned here
*/
package assignment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/assignment-engine/generic"
)

// ProposedBlock is a block under validation. ID is zero for new blocks.
type ProposedBlock struct {
	ID       generic.TimeBlockID
	Date     generic.Date
	Interval generic.Interval
}

type ValidationRequest struct {
	Blocks   []ProposedBlock
	UserID   string
	Project  generic.Project
	Comments Comments
	Policy   generic.EffectivePolicy
}

// Validator checks proposed blocks against the policy and the user's
// existing schedule.
type Validator struct {
	Blocks generic.TimeBlockStore
}

func (v Validator) Validate(ctx context.Context, req ValidationRequest) error {
	if len(req.Blocks) == 0 {
		return nil
	}
	if err := checkChronology(req.Blocks); err != nil {
		return err
	}
	if err := checkDailyHours(req.Blocks, req.Comments, req.Policy); err != nil {
		return err
	}
	if err := checkProjectRange(req.Blocks, req.Project, req.Comments); err != nil {
		return err
	}
	return v.checkExisting(ctx, req)
}

func checkChronology(blocks []ProposedBlock) error {
	for _, b := range blocks {
		if !b.Interval.Valid() {
			return &generic.InvalidRangeError{Date: b.Date, Start: b.Interval.Start, End: b.Interval.End}
		}
	}
	return nil
}

func checkDailyHours(blocks []ProposedBlock, comments Comments, policy generic.EffectivePolicy) error {
	running := make(map[generic.Date]decimal.Decimal)
	for _, b := range blocks {
		d := b.Interval.Hours()
		running[b.Date] = running[b.Date].Add(d)

		needsComment := d.GreaterThan(policy.MaxDailyHours) && d.LessThanOrEqual(policy.MaxDailyOvertimeHours)
		if needsComment && comments.TooLong == "" {
			return &generic.CommentRequiredError{
				Date:             b.Date,
				Interval:         b.Interval,
				MaxHours:         policy.MaxDailyHours,
				MaxOvertimeHours: policy.MaxDailyOvertimeHours,
			}
		}
		if running[b.Date].GreaterThan(policy.MaxDailyOvertimeHours) {
			return &generic.DailyLimitError{Date: b.Date, Limit: policy.MaxDailyOvertimeHours, Total: running[b.Date]}
		}
	}
	return nil
}

func checkProjectRange(blocks []ProposedBlock, project generic.Project, comments Comments) error {
	for _, b := range blocks {
		if b.Date.Before(project.StartDate) {
			return &generic.OutOfProjectRangeError{Date: b.Date, ProjectStart: project.StartDate, ProjectEnd: project.EndDate}
		}
		afterEnd := !project.EndDate.IsZero() && b.Date.After(project.EndDate)
		if afterEnd && comments.OutOfRange == "" {
			return &generic.OutOfProjectRangeError{Date: b.Date, ProjectStart: project.StartDate, ProjectEnd: project.EndDate}
		}
	}
	return nil
}

func (v Validator) checkExisting(ctx context.Context, req ValidationRequest) error {
	from, to := req.Blocks[0].Date, req.Blocks[0].Date
	replaced := make(map[generic.TimeBlockID]bool)
	for _, b := range req.Blocks {
		from = generic.MinDate(from, b.Date)
		to = generic.MaxDate(to, b.Date)
		if b.ID != 0 {
			replaced[b.ID] = true
		}
	}

	existing, err := v.Blocks.ActiveBlocksForUser(ctx, req.UserID, generic.DateRange{From: &from, To: &to})
	if err != nil {
		return fmt.Errorf("load existing time blocks: %w", err)
	}

	byDate := make(map[generic.Date][]generic.Interval)
	totals := make(map[generic.Date]decimal.Decimal)
	for _, tb := range existing {
		if replaced[tb.ID] {
			continue
		}
		byDate[tb.Date] = append(byDate[tb.Date], tb.Interval())
		totals[tb.Date] = totals[tb.Date].Add(tb.DurationHours)
	}

	for i, b := range req.Blocks {
		for _, other := range byDate[b.Date] {
			if generic.Overlaps(b.Interval, other) {
				return &generic.OverlapError{Date: b.Date, Interval: b.Interval, With: other}
			}
		}
		for _, other := range req.Blocks[:i] {
			if other.Date.Equal(b.Date) && generic.Overlaps(b.Interval, other.Interval) {
				return &generic.OverlapError{Date: b.Date, Interval: b.Interval, With: other.Interval}
			}
		}
	}

	for _, b := range req.Blocks {
		totals[b.Date] = totals[b.Date].Add(b.Interval.Hours())
	}
	for _, b := range req.Blocks {
		if totals[b.Date].GreaterThan(req.Policy.MaxDailyOvertimeHours) {
			return &generic.DailyLimitError{Date: b.Date, Limit: req.Policy.MaxDailyOvertimeHours, Total: totals[b.Date]}
		}
	}
	return nil
}
