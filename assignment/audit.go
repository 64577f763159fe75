package assignment

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/assignment-engine/generic"
)

func newUUID() string { return uuid.NewString() }

// hoursSnapshot is the {user_id, hours} body the audit trail records.
func hoursSnapshot(userID string, hours decimal.Decimal) map[string]any {
	return map[string]any{"user_id": userID, "hours": hours.InexactFloat64()}
}

func timeBlockAudit(action generic.AuditAction, projectID, changedBy string) generic.AuditEntry {
	return generic.AuditEntry{
		EntityType: generic.EntityTimeBlock,
		EntityID:   projectID,
		Action:     action,
		ChangedBy:  changedBy,
	}
}

// writeAudits appends entries after the submission committed. Failures are
// logged and counted but never fail the submission.
func (s *Service) writeAudits(ctx context.Context, entries []generic.AuditEntry) {
	logger := s.log(ctx, "writeAudits")
	for _, entry := range entries {
		entry.ID = s.newID()
		entry.ChangedAt = s.now().UTC()
		if err := s.store.AppendAudit(ctx, entry); err != nil {
			s.metrics.AuditFailure()
			logger.Warn("audit entry not written",
				"entity_id", entry.EntityID, "action", entry.Action, "error", err)
		}
	}
}
