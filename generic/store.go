/*
store.go - Persistence interfaces consumed by the scheduling engine

PURPOSE:
  Defines the boundary between scheduling logic and the database. The engine
  only ever talks to these interfaces; SQLite and in-memory implementations
  live in store/sqlite and generic/store.

KEY INTERFACES:
  ProjectStore, UserStore: existence and project range lookups
  ConfigStore:             working-hours policy and season mode
  LeaveStore:              approved leave per user, holidays
  TimeBlockStore:          active blocks per user, bulk writes, soft delete
  AssignmentStore:         (user, project) assignment lookup and lazy create
  AuditLog:                append-only audit trail
  TxStore:                 all of the above plus WithTx for atomic submissions

ATOMIC SUBMISSIONS:
  A fixed-block submission (deletions, edits, creations) runs inside one
  WithTx call. Validation inside a later phase re-reads time blocks through
  the transactional view, so it sees what earlier phases changed.

NOT FOUND:
  Getters return (nil, nil) when the record does not exist. Callers decide
  which ErrNotFound flavour to raise.

SEE ALSO:
  - store/sqlite/sqlite.go: production implementation
  - generic/store/memory.go: in-memory implementation for tests
*/
package generic

import (
	"context"

	"github.com/shopspring/decimal"
)

type ProjectStore interface {
	GetProject(ctx context.Context, id string) (*Project, error)
}

type UserStore interface {
	GetUser(ctx context.Context, id string) (*User, error)
}

type ConfigStore interface {
	// GetWorkingHoursConfig returns nil when no configuration is stored.
	GetWorkingHoursConfig(ctx context.Context) (*WorkingHoursConfig, error)
	// GetSeasonConfig returns nil when no season mode is stored.
	GetSeasonConfig(ctx context.Context) (*SeasonConfig, error)
}

type LeaveStore interface {
	// GetApprovedLeaves returns the user's approved non-holiday leave.
	GetApprovedLeaves(ctx context.Context, userID string) ([]Leave, error)
	// GetHolidays returns holidays; year 0 means all years.
	GetHolidays(ctx context.Context, year int) ([]Leave, error)
}

// DateRange bounds a time-block query. A nil To means open-ended.
type DateRange struct {
	From *Date
	To   *Date
}

type TimeBlockStore interface {
	// ActiveBlocksForUser returns active blocks of the user across all
	// assignments on active projects, ordered by date and start time.
	ActiveBlocksForUser(ctx context.Context, userID string, r DateRange) ([]TimeBlock, error)

	// CreateTimeBlocks persists new blocks (IDs are assigned by the store).
	CreateTimeBlocks(ctx context.Context, blocks []TimeBlock) ([]TimeBlock, error)

	// UpdateTimeBlocks rewrites date, times, duration, comment and assign-by user.
	// Returns ErrTimeBlockNotFound if any id is unknown or inactive.
	UpdateTimeBlocks(ctx context.Context, blocks []TimeBlock) error

	// DeactivateTimeBlocks soft-deletes the given ids.
	DeactivateTimeBlocks(ctx context.Context, ids []TimeBlockID) error

	// SumDurations adds up the duration of the given active ids.
	SumDurations(ctx context.Context, ids []TimeBlockID) (decimal.Decimal, error)

	// TotalAssignedHours sums the user's active block durations within r.
	TotalAssignedHours(ctx context.Context, userID string, r DateRange) (decimal.Decimal, error)
}

type AssignmentStore interface {
	GetAssignment(ctx context.Context, userID, projectID string) (*Assignment, error)
	CreateAssignment(ctx context.Context, a Assignment) error
}

type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	ListAudits(ctx context.Context, entityID string) ([]AuditEntry, error)
}

// Store is everything the engine reads and writes.
type Store interface {
	ProjectStore
	UserStore
	ConfigStore
	LeaveStore
	TimeBlockStore
	AssignmentStore
	AuditLog
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// ADMIN WRITES - Config endpoints, seeding, demo scenarios
// =============================================================================

// ConfigWriter persists the policy documents read through ConfigStore.
type ConfigWriter interface {
	SaveWorkingHoursConfig(ctx context.Context, cfg WorkingHoursConfig) error
	SaveSeasonConfig(ctx context.Context, cfg SeasonConfig) error
}

// DirectoryWriter maintains the collaborator records the engine only reads.
type DirectoryWriter interface {
	SaveProject(ctx context.Context, p Project) error
	SaveUser(ctx context.Context, u User) error
	// SaveLeave stores leave or a holiday; the stored ID is returned.
	SaveLeave(ctx context.Context, l Leave) (Leave, error)
	// Reset removes every record. Used by the demo scenario loader.
	Reset(ctx context.Context) error
}

// AdminStore is what the server and CLI need on top of the engine's view.
type AdminStore interface {
	TxStore
	ConfigWriter
	DirectoryWriter
}
