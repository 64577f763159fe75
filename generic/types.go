/*
Package generic provides the primitives of the assignment scheduling engine.

PURPOSE:
  Domain types, calendar/clock arithmetic, interval math, working-hours policy
  resolution and the persistence interfaces. The assignment package builds the
  validator, fixed-block processor and cascade simulator on top of these.

KEY CONCEPTS IN THIS FILE (types.go):
  - Project / User: read-only collaborators (range and existence checks)
  - Assignment: the (user, project, role) pairing that owns time blocks
  - TimeBlock: one contiguous scheduled interval on one date
  - Leave: approved absence or holiday (a holiday has no user)
  - AuditEntry: who changed which entity, with before/after values

DESIGN PRINCIPLES:
  1. Precision: hours use decimal.Decimal, never float64, inside the engine
  2. Date-only: calendar days have no time of day (see time.go)
  3. Soft delete: time blocks are deactivated, never removed by the engine

SEE ALSO:
  - interval.go: overlap and free-slot computation
  - policy.go: working-hours policy and season resolution
  - store.go: persistence interfaces
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TimeBlockID int64

// =============================================================================
// COLLABORATOR RECORDS - Owned outside the scheduling engine
// =============================================================================

type Project struct {
	ID        string
	Name      string
	StartDate Date
	EndDate   Date
	Active    bool
}

// Range returns the project's inclusive date span.
func (p Project) Range() Period { return Period{Start: p.StartDate, End: p.EndDate} }

type User struct {
	ID     string
	Name   string
	Email  string
	Active bool
}

// =============================================================================
// ASSIGNMENT - One user's engagement on one project
// =============================================================================

const AssignmentStatusActive = "active"

type Assignment struct {
	ID        string
	ProjectID string
	UserID    string
	Role      string
	Comment   string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// TIME BLOCK - Atomic unit of scheduled work
// =============================================================================

type Mode string

const (
	ModeManual  Mode = "manual"
	ModeCascade Mode = "cascade"
)

func (m Mode) Valid() bool { return m == ModeManual || m == ModeCascade }

type TimeBlock struct {
	ID             TimeBlockID
	AssignmentID   string
	Date           Date
	Start          ClockTime
	End            ClockTime
	DurationHours  decimal.Decimal
	Active         bool
	Mode           Mode
	AssignByUserID string
	Comment        string
	CreatedAt      time.Time

	// Read-side context joined from the assignment and project.
	UserID      string
	ProjectID   string
	ProjectName string
	Role        string
}

func (tb TimeBlock) Interval() Interval { return Interval{Start: tb.Start, End: tb.End} }

// =============================================================================
// LEAVE - Approved absence (or holiday when UserID is empty)
// =============================================================================

type LeaveType string

const (
	LeaveVacation   LeaveType = "vacation"
	LeaveLicense    LeaveType = "license"
	LeavePermission LeaveType = "permission"
	LeaveHoliday    LeaveType = "holiday"
)

const LeaveStatusApproved = "approved"

type Leave struct {
	ID        int64
	UserID    string
	StartDate Date
	EndDate   Date
	Status    string
	Type      LeaveType
	Title     string
}

func (l Leave) Period() Period { return Period{Start: l.StartDate, End: l.EndDate} }

// =============================================================================
// AUDIT LOG - Who changed what, when
// =============================================================================

type AuditAction string

const (
	AuditCreate AuditAction = "create"
	AuditUpdate AuditAction = "update"
	AuditDelete AuditAction = "delete"
)

const EntityTimeBlock = "time_block"

type AuditEntry struct {
	ID            string
	EntityType    string
	EntityID      string
	Action        AuditAction
	ChangedBy     string
	ChangedAt     time.Time
	OldValues     map[string]any
	NewValues     map[string]any
	ChangedFields []string
	Metadata      map[string]any
}
