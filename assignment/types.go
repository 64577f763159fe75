// Package assignment implements the scheduling engine: validating manually
// placed time blocks, applying fixed-block submissions atomically, simulating
// cascade allocation and reporting utilization.
package assignment

import (
	"github.com/shopspring/decimal"
	"github.com/warp/assignment-engine/generic"
)

// =============================================================================
// INPUTS
// =============================================================================

// Comments are the justifications a submission may carry.
type Comments struct {
	// TooLong justifies a single block longer than the daily hours.
	TooLong string
	// OutOfRange justifies blocks after the project end date.
	OutOfRange string
}

// BlockInput is one requested block. ID is set for edits only.
type BlockInput struct {
	ID    generic.TimeBlockID
	Date  generic.Date
	Start generic.ClockTime
	End   generic.ClockTime
	Mode  generic.Mode
}

func (b BlockInput) proposed() ProposedBlock {
	return ProposedBlock{ID: b.ID, Date: b.Date, Interval: generic.NewInterval(b.Start, b.End)}
}

// FixedBlockInput is a batch of deletions, edits and creations for one
// (user, project) pair.
type FixedBlockInput struct {
	ProjectID      string
	UserID         string
	AssignByUserID string
	Role           string
	Status         string
	Comments       Comments

	TimeBlocks          []BlockInput
	EditedTimeBlocks    []BlockInput
	DeletedTimeBlockIDs []generic.TimeBlockID
}

type CascadeInput struct {
	ProjectID      string
	UserID         string
	AssignByUserID string
	StartDate      generic.Date
	TotalHours     decimal.Decimal
}

// =============================================================================
// RESULTS
// =============================================================================

type FixedBlockResult struct {
	Message string
	Deleted int
	Updated int
	Created []generic.TimeBlock
}

// GeneratedBlock is a proposed, unsaved cascade block.
type GeneratedBlock struct {
	Date          generic.Date
	Start         generic.ClockTime
	End           generic.ClockTime
	DurationHours decimal.Decimal
	Mode          generic.Mode
}

type CascadeResult struct {
	GeneratedTimeBlocks []GeneratedBlock
	Message             string
}

// TotalHours sums the generated durations.
func (r CascadeResult) TotalHours() decimal.Decimal {
	total := decimal.Zero
	for _, b := range r.GeneratedTimeBlocks {
		total = total.Add(b.DurationHours)
	}
	return total
}
