/*
fixed.go - Fixed-block submissions

PURPOSE:
  Applies a batch of deletions, edits and creations for one (user, project)
  pair. The whole batch is TRANSACTIONAL: if any phase fails, nothing is
  written.

PHASES (each only when its list is non-empty):
  1. Delete:  sum the hours of the listed active blocks, then deactivate them
  2. Edit:    validate, require the assignment, rewrite date/times/duration
              and canned comments
  3. Create:  validate (sees phases 1-2), create the assignment on first use,
              insert the blocks

CONCURRENCY:
  Submissions for the same user are serialized and the phases share one
  store transaction, so two racing submissions cannot both pass validation
  against the same snapshot.

AUDIT:
  One aggregate entry per phase (entity time_block, id = project id):
    delete: {user_id, hours removed}
    update: total assigned hours of the user before/after (no field diff)
    create: {user_id, hours added}
  Entries are written after commit. An audit failure is logged only.
*/
package assignment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/assignment-engine/generic"
)

func (s *Service) ProcessFixedBlocks(ctx context.Context, in FixedBlockInput) (FixedBlockResult, error) {
	logger := s.log(ctx, "ProcessFixedBlocks", "user_id", in.UserID, "project_id", in.ProjectID)

	result, err := s.processFixedBlocks(ctx, in)
	s.metrics.FixedSubmission(resultLabel(err))
	if err != nil {
		logger.Warn("fixed-block submission rejected", "error_kind", generic.ErrorKind(err), "error", err)
		return FixedBlockResult{}, err
	}

	s.metrics.BlocksWritten("delete", result.Deleted)
	s.metrics.BlocksWritten("update", result.Updated)
	s.metrics.BlocksWritten("create", len(result.Created))
	logger.Info("fixed-block submission applied",
		"deleted", result.Deleted, "updated", result.Updated, "created", len(result.Created))
	return result, nil
}

func (s *Service) processFixedBlocks(ctx context.Context, in FixedBlockInput) (FixedBlockResult, error) {
	if err := checkFixedInput(in); err != nil {
		return FixedBlockResult{}, err
	}

	project, err := s.commonValidations(ctx, in.ProjectID, in.UserID, in.AssignByUserID)
	if err != nil {
		return FixedBlockResult{}, err
	}
	policy, err := s.policy.Resolve(ctx)
	if err != nil {
		return FixedBlockResult{}, err
	}

	unlock := s.locks.Lock(in.UserID)
	defer unlock()

	var (
		result FixedBlockResult
		audits []generic.AuditEntry
	)
	err = s.store.WithTx(ctx, func(tx generic.Store) error {
		result = FixedBlockResult{}
		audits = audits[:0]

		if err := checkOwnership(ctx, tx, in); err != nil {
			return err
		}

		if len(in.DeletedTimeBlockIDs) > 0 {
			entry, err := s.deletePhase(ctx, tx, in, project)
			if err != nil {
				return err
			}
			audits = append(audits, entry)
			result.Deleted = len(in.DeletedTimeBlockIDs)
		}

		if len(in.EditedTimeBlocks) > 0 {
			entry, err := s.editPhase(ctx, tx, in, project, policy)
			if err != nil {
				return err
			}
			audits = append(audits, entry)
			result.Updated = len(in.EditedTimeBlocks)
		}

		if len(in.TimeBlocks) > 0 {
			created, entry, err := s.createPhase(ctx, tx, in, project, policy)
			if err != nil {
				return err
			}
			audits = append(audits, entry)
			result.Created = created
		}
		return nil
	})
	if err != nil {
		return FixedBlockResult{}, err
	}

	s.writeAudits(ctx, audits)
	result.Message = MsgAssignmentsCompleted
	return result, nil
}

func checkFixedInput(in FixedBlockInput) error {
	for _, b := range in.TimeBlocks {
		if b.Mode != "" && !b.Mode.Valid() {
			return fmt.Errorf("%w: unknown mode %q", generic.ErrInvalidInput, b.Mode)
		}
	}
	for _, b := range in.EditedTimeBlocks {
		if b.ID <= 0 {
			return fmt.Errorf("%w: edited time block on %s has no id", generic.ErrInvalidInput, b.Date)
		}
		if b.Mode != "" && !b.Mode.Valid() {
			return fmt.Errorf("%w: unknown mode %q", generic.ErrInvalidInput, b.Mode)
		}
	}
	for _, id := range in.DeletedTimeBlockIDs {
		if id <= 0 {
			return fmt.Errorf("%w: invalid time block id %d", generic.ErrInvalidInput, id)
		}
	}
	return nil
}

// checkOwnership requires every deleted or edited id to be an active block of
// the submitting (user, project) assignment.
func checkOwnership(ctx context.Context, tx generic.Store, in FixedBlockInput) error {
	ids := make([]generic.TimeBlockID, 0, len(in.DeletedTimeBlockIDs)+len(in.EditedTimeBlocks))
	ids = append(ids, in.DeletedTimeBlockIDs...)
	for _, b := range in.EditedTimeBlocks {
		ids = append(ids, b.ID)
	}
	if len(ids) == 0 {
		return nil
	}

	assignment, err := tx.GetAssignment(ctx, in.UserID, in.ProjectID)
	if err != nil {
		return fmt.Errorf("load assignment: %w", err)
	}
	if assignment == nil && len(in.EditedTimeBlocks) > 0 {
		return fmt.Errorf("%w: user %s on project %s", generic.ErrAssignmentNotFound, in.UserID, in.ProjectID)
	}
	owned := make(map[generic.TimeBlockID]bool)
	if assignment != nil {
		blocks, err := tx.ActiveBlocksForUser(ctx, in.UserID, generic.DateRange{})
		if err != nil {
			return fmt.Errorf("load active blocks: %w", err)
		}
		for _, tb := range blocks {
			if tb.AssignmentID == assignment.ID {
				owned[tb.ID] = true
			}
		}
	}
	for _, id := range ids {
		if !owned[id] {
			return fmt.Errorf("%w: id %d for user %s on project %s", generic.ErrTimeBlockNotFound, id, in.UserID, in.ProjectID)
		}
	}
	return nil
}

// =============================================================================
// PHASES
// =============================================================================

func (s *Service) deletePhase(ctx context.Context, tx generic.Store, in FixedBlockInput, project *generic.Project) (generic.AuditEntry, error) {
	hours, err := tx.SumDurations(ctx, in.DeletedTimeBlockIDs)
	if err != nil {
		return generic.AuditEntry{}, fmt.Errorf("sum deleted hours: %w", err)
	}
	if err := tx.DeactivateTimeBlocks(ctx, in.DeletedTimeBlockIDs); err != nil {
		return generic.AuditEntry{}, fmt.Errorf("deactivate time blocks: %w", err)
	}

	entry := timeBlockAudit(generic.AuditDelete, project.ID, in.AssignByUserID)
	entry.OldValues = hoursSnapshot(in.UserID, hours)
	return entry, nil
}

func (s *Service) editPhase(ctx context.Context, tx generic.Store, in FixedBlockInput, project *generic.Project, policy generic.EffectivePolicy) (generic.AuditEntry, error) {
	if err := s.validate(ctx, tx, in, in.EditedTimeBlocks, project, policy); err != nil {
		return generic.AuditEntry{}, err
	}

	assignment, err := tx.GetAssignment(ctx, in.UserID, in.ProjectID)
	if err != nil {
		return generic.AuditEntry{}, fmt.Errorf("load assignment: %w", err)
	}
	if assignment == nil {
		return generic.AuditEntry{}, fmt.Errorf("%w: user %s on project %s", generic.ErrAssignmentNotFound, in.UserID, in.ProjectID)
	}

	updates := make([]generic.TimeBlock, 0, len(in.EditedTimeBlocks))
	for _, b := range in.EditedTimeBlocks {
		tb, err := buildBlock(b, in, project, policy)
		if err != nil {
			return generic.AuditEntry{}, err
		}
		tb.ID = b.ID
		tb.AssignmentID = assignment.ID
		updates = append(updates, tb)
	}

	before, err := tx.TotalAssignedHours(ctx, in.UserID, generic.DateRange{})
	if err != nil {
		return generic.AuditEntry{}, fmt.Errorf("total assigned hours: %w", err)
	}
	if err := tx.UpdateTimeBlocks(ctx, updates); err != nil {
		return generic.AuditEntry{}, err
	}
	after, err := tx.TotalAssignedHours(ctx, in.UserID, generic.DateRange{})
	if err != nil {
		return generic.AuditEntry{}, fmt.Errorf("total assigned hours: %w", err)
	}

	entry := timeBlockAudit(generic.AuditUpdate, project.ID, in.AssignByUserID)
	entry.OldValues = hoursSnapshot(in.UserID, before)
	entry.NewValues = hoursSnapshot(in.UserID, after)
	entry.Metadata = map[string]any{"no_compare_field": true}
	return entry, nil
}

func (s *Service) createPhase(ctx context.Context, tx generic.Store, in FixedBlockInput, project *generic.Project, policy generic.EffectivePolicy) ([]generic.TimeBlock, generic.AuditEntry, error) {
	if err := s.validate(ctx, tx, in, in.TimeBlocks, project, policy); err != nil {
		return nil, generic.AuditEntry{}, err
	}

	assignment, err := s.ensureAssignment(ctx, tx, in)
	if err != nil {
		return nil, generic.AuditEntry{}, err
	}

	blocks := make([]generic.TimeBlock, 0, len(in.TimeBlocks))
	total := decimal.Zero
	for _, b := range in.TimeBlocks {
		tb, err := buildBlock(b, in, project, policy)
		if err != nil {
			return nil, generic.AuditEntry{}, err
		}
		tb.AssignmentID = assignment.ID
		blocks = append(blocks, tb)
		total = total.Add(tb.DurationHours)
	}

	created, err := tx.CreateTimeBlocks(ctx, blocks)
	if err != nil {
		return nil, generic.AuditEntry{}, fmt.Errorf("create time blocks: %w", err)
	}

	entry := timeBlockAudit(generic.AuditCreate, project.ID, in.AssignByUserID)
	entry.NewValues = hoursSnapshot(in.UserID, total)
	return created, entry, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) validate(ctx context.Context, tx generic.Store, in FixedBlockInput, blocks []BlockInput, project *generic.Project, policy generic.EffectivePolicy) error {
	proposed := make([]ProposedBlock, len(blocks))
	for i, b := range blocks {
		proposed[i] = b.proposed()
	}
	return Validator{Blocks: tx}.Validate(ctx, ValidationRequest{
		Blocks:   proposed,
		UserID:   in.UserID,
		Project:  *project,
		Comments: in.Comments,
		Policy:   policy,
	})
}

func (s *Service) ensureAssignment(ctx context.Context, tx generic.Store, in FixedBlockInput) (*generic.Assignment, error) {
	existing, err := tx.GetAssignment(ctx, in.UserID, in.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load assignment: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	status := in.Status
	if status == "" {
		status = generic.AssignmentStatusActive
	}
	now := s.now().UTC()
	a := generic.Assignment{
		ID:        s.newID(),
		ProjectID: in.ProjectID,
		UserID:    in.UserID,
		Role:      in.Role,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.CreateAssignment(ctx, a); err != nil {
		return nil, fmt.Errorf("create assignment: %w", err)
	}
	return &a, nil
}

// buildBlock computes duration and canned comments for a validated block.
func buildBlock(b BlockInput, in FixedBlockInput, project *generic.Project, policy generic.EffectivePolicy) (generic.TimeBlock, error) {
	hours, err := generic.DurationHours(b.Start, b.End)
	if err != nil {
		return generic.TimeBlock{}, err
	}

	mode := b.Mode
	if mode == "" {
		mode = generic.ModeManual
	}

	return generic.TimeBlock{
		Date:           b.Date,
		Start:          b.Start,
		End:            b.End,
		DurationHours:  hours,
		Mode:           mode,
		AssignByUserID: in.AssignByUserID,
		Comment:        cannedComment(b.Date, hours, project, policy, in.Comments),
	}, nil
}

// cannedComment attaches the submission's justifications a block needs.
func cannedComment(date generic.Date, hours decimal.Decimal, project *generic.Project, policy generic.EffectivePolicy, c Comments) string {
	var comment string
	if hours.GreaterThan(policy.MaxDailyHours) {
		comment = c.TooLong
	}
	if !project.Range().Contains(date) && !(project.EndDate.IsZero() && date.AfterOrEqual(project.StartDate)) {
		if comment != "" {
			comment += commentSeparator
		}
		comment += c.OutOfRange
	}
	return comment
}
