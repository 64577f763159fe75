// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/assignment-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements generic.AdminStore. Public methods lock; the transactional
// view works on the same state while WithTx holds the write lock.
type Memory struct {
	mu    sync.RWMutex
	state *memoryState
	now   func() time.Time
}

type assignmentKey struct {
	UserID    string
	ProjectID string
}

type memoryState struct {
	projects     map[string]generic.Project
	users        map[string]generic.User
	workingHours *generic.WorkingHoursConfig
	season       *generic.SeasonConfig
	leaves       []generic.Leave
	assignments  map[assignmentKey]generic.Assignment
	blocks       map[generic.TimeBlockID]generic.TimeBlock
	audits       []generic.AuditEntry
	nextBlockID  generic.TimeBlockID
	nextLeaveID  int64
	now          func() time.Time
}

func NewMemory() *Memory {
	m := &Memory{now: time.Now}
	m.state = newMemoryState(m.now)
	return m
}

func newMemoryState(now func() time.Time) *memoryState {
	return &memoryState{
		projects:    make(map[string]generic.Project),
		users:       make(map[string]generic.User),
		assignments: make(map[assignmentKey]generic.Assignment),
		blocks:      make(map[generic.TimeBlockID]generic.TimeBlock),
		nextBlockID: 1,
		nextLeaveID: 1,
		now:         now,
	}
}

// --- Collaborators ---

func (m *Memory) GetProject(ctx context.Context, id string) (*generic.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetProject(ctx, id)
}

func (m *Memory) GetUser(ctx context.Context, id string) (*generic.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetUser(ctx, id)
}

func (m *Memory) GetWorkingHoursConfig(ctx context.Context) (*generic.WorkingHoursConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetWorkingHoursConfig(ctx)
}

func (m *Memory) GetSeasonConfig(ctx context.Context) (*generic.SeasonConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetSeasonConfig(ctx)
}

func (m *Memory) GetApprovedLeaves(ctx context.Context, userID string) ([]generic.Leave, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetApprovedLeaves(ctx, userID)
}

func (m *Memory) GetHolidays(ctx context.Context, year int) ([]generic.Leave, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetHolidays(ctx, year)
}

// --- Time blocks ---

func (m *Memory) ActiveBlocksForUser(ctx context.Context, userID string, r generic.DateRange) ([]generic.TimeBlock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ActiveBlocksForUser(ctx, userID, r)
}

func (m *Memory) CreateTimeBlocks(ctx context.Context, blocks []generic.TimeBlock) ([]generic.TimeBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CreateTimeBlocks(ctx, blocks)
}

func (m *Memory) UpdateTimeBlocks(ctx context.Context, blocks []generic.TimeBlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpdateTimeBlocks(ctx, blocks)
}

func (m *Memory) DeactivateTimeBlocks(ctx context.Context, ids []generic.TimeBlockID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.DeactivateTimeBlocks(ctx, ids)
}

func (m *Memory) SumDurations(ctx context.Context, ids []generic.TimeBlockID) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.SumDurations(ctx, ids)
}

func (m *Memory) TotalAssignedHours(ctx context.Context, userID string, r generic.DateRange) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.TotalAssignedHours(ctx, userID, r)
}

// --- Assignments and audit ---

func (m *Memory) GetAssignment(ctx context.Context, userID, projectID string) (*generic.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetAssignment(ctx, userID, projectID)
}

func (m *Memory) CreateAssignment(ctx context.Context, a generic.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CreateAssignment(ctx, a)
}

func (m *Memory) AppendAudit(ctx context.Context, entry generic.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.AppendAudit(ctx, entry)
}

func (m *Memory) ListAudits(ctx context.Context, entityID string) ([]generic.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListAudits(ctx, entityID)
}

// --- Admin writes ---

func (m *Memory) SaveWorkingHoursConfig(_ context.Context, cfg generic.WorkingHoursConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.workingHours = &cfg
	return nil
}

func (m *Memory) SaveSeasonConfig(_ context.Context, cfg generic.SeasonConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.season = &cfg
	return nil
}

func (m *Memory) SaveProject(_ context.Context, p generic.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.projects[p.ID] = p
	return nil
}

func (m *Memory) SaveUser(_ context.Context, u generic.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.users[u.ID] = u
	return nil
}

func (m *Memory) SaveLeave(_ context.Context, l generic.Leave) (generic.Leave, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.ID == 0 {
		l.ID = m.state.nextLeaveID
		m.state.nextLeaveID++
	}
	m.state.leaves = append(m.state.leaves, l)
	return l, nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = newMemoryState(m.now)
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(m.state); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (s *memoryState) clone() *memoryState {
	c := *s
	c.projects = make(map[string]generic.Project, len(s.projects))
	for k, v := range s.projects {
		c.projects[k] = v
	}
	c.users = make(map[string]generic.User, len(s.users))
	for k, v := range s.users {
		c.users[k] = v
	}
	c.assignments = make(map[assignmentKey]generic.Assignment, len(s.assignments))
	for k, v := range s.assignments {
		c.assignments[k] = v
	}
	c.blocks = make(map[generic.TimeBlockID]generic.TimeBlock, len(s.blocks))
	for k, v := range s.blocks {
		c.blocks[k] = v
	}
	c.leaves = append([]generic.Leave(nil), s.leaves...)
	c.audits = append([]generic.AuditEntry(nil), s.audits...)
	return &c
}

// =============================================================================
// UNLOCKED STATE - implements generic.Store, callers hold the lock
// =============================================================================

func (s *memoryState) GetProject(_ context.Context, id string) (*generic.Project, error) {
	p, ok := s.projects[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *memoryState) GetUser(_ context.Context, id string) (*generic.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *memoryState) GetWorkingHoursConfig(context.Context) (*generic.WorkingHoursConfig, error) {
	if s.workingHours == nil {
		return nil, nil
	}
	cfg := *s.workingHours
	return &cfg, nil
}

func (s *memoryState) GetSeasonConfig(context.Context) (*generic.SeasonConfig, error) {
	if s.season == nil {
		return nil, nil
	}
	cfg := *s.season
	return &cfg, nil
}

func (s *memoryState) GetApprovedLeaves(_ context.Context, userID string) ([]generic.Leave, error) {
	var result []generic.Leave
	for _, l := range s.leaves {
		if l.UserID == userID && l.Status == generic.LeaveStatusApproved && l.Type != generic.LeaveHoliday {
			result = append(result, l)
		}
	}
	return result, nil
}

func (s *memoryState) GetHolidays(_ context.Context, year int) ([]generic.Leave, error) {
	var result []generic.Leave
	for _, l := range s.leaves {
		if l.Type != generic.LeaveHoliday {
			continue
		}
		if year != 0 && (l.StartDate.Year() > year || l.EndDate.Year() < year) {
			continue
		}
		result = append(result, l)
	}
	return result, nil
}

func (s *memoryState) ActiveBlocksForUser(_ context.Context, userID string, r generic.DateRange) ([]generic.TimeBlock, error) {
	var result []generic.TimeBlock
	for _, tb := range s.blocks {
		if !tb.Active || !inRange(tb.Date, r) {
			continue
		}
		enriched, ok := s.enrich(tb)
		if !ok || enriched.UserID != userID {
			continue
		}
		result = append(result, enriched)
	}
	sortBlocks(result)
	return result, nil
}

// enrich joins assignment and project context. Blocks on inactive or unknown
// projects are reported as not ok.
func (s *memoryState) enrich(tb generic.TimeBlock) (generic.TimeBlock, bool) {
	for _, a := range s.assignments {
		if a.ID != tb.AssignmentID {
			continue
		}
		p, ok := s.projects[a.ProjectID]
		if !ok || !p.Active {
			return tb, false
		}
		tb.UserID = a.UserID
		tb.ProjectID = a.ProjectID
		tb.ProjectName = p.Name
		tb.Role = a.Role
		return tb, true
	}
	return tb, false
}

func (s *memoryState) CreateTimeBlocks(_ context.Context, blocks []generic.TimeBlock) ([]generic.TimeBlock, error) {
	created := make([]generic.TimeBlock, 0, len(blocks))
	for _, tb := range blocks {
		tb.ID = s.nextBlockID
		s.nextBlockID++
		tb.Active = true
		tb.CreatedAt = s.now().UTC()
		tb.UserID, tb.ProjectID, tb.ProjectName, tb.Role = "", "", "", ""
		s.blocks[tb.ID] = tb
		if enriched, ok := s.enrich(tb); ok {
			tb = enriched
		}
		created = append(created, tb)
	}
	return created, nil
}

func (s *memoryState) UpdateTimeBlocks(_ context.Context, blocks []generic.TimeBlock) error {
	for _, tb := range blocks {
		if existing, ok := s.blocks[tb.ID]; !ok || !existing.Active {
			return fmt.Errorf("%w: id %d", generic.ErrTimeBlockNotFound, tb.ID)
		}
	}
	for _, tb := range blocks {
		existing := s.blocks[tb.ID]
		existing.Date = tb.Date
		existing.Start = tb.Start
		existing.End = tb.End
		existing.DurationHours = tb.DurationHours
		existing.Comment = tb.Comment
		existing.AssignByUserID = tb.AssignByUserID
		s.blocks[tb.ID] = existing
	}
	return nil
}

func (s *memoryState) DeactivateTimeBlocks(_ context.Context, ids []generic.TimeBlockID) error {
	for _, id := range ids {
		if tb, ok := s.blocks[id]; ok {
			tb.Active = false
			s.blocks[id] = tb
		}
	}
	return nil
}

func (s *memoryState) SumDurations(_ context.Context, ids []generic.TimeBlockID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, id := range ids {
		if tb, ok := s.blocks[id]; ok && tb.Active {
			total = total.Add(tb.DurationHours)
		}
	}
	return total, nil
}

func (s *memoryState) TotalAssignedHours(ctx context.Context, userID string, r generic.DateRange) (decimal.Decimal, error) {
	blocks, err := s.ActiveBlocksForUser(ctx, userID, r)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, tb := range blocks {
		total = total.Add(tb.DurationHours)
	}
	return total, nil
}

func (s *memoryState) GetAssignment(_ context.Context, userID, projectID string) (*generic.Assignment, error) {
	a, ok := s.assignments[assignmentKey{UserID: userID, ProjectID: projectID}]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *memoryState) CreateAssignment(_ context.Context, a generic.Assignment) error {
	k := assignmentKey{UserID: a.UserID, ProjectID: a.ProjectID}
	if _, exists := s.assignments[k]; exists {
		return fmt.Errorf("assignment for user %s on project %s already exists", a.UserID, a.ProjectID)
	}
	s.assignments[k] = a
	return nil
}

func (s *memoryState) AppendAudit(_ context.Context, entry generic.AuditEntry) error {
	s.audits = append(s.audits, entry)
	return nil
}

// ListAudits returns newest first.
func (s *memoryState) ListAudits(_ context.Context, entityID string) ([]generic.AuditEntry, error) {
	var result []generic.AuditEntry
	for i := len(s.audits) - 1; i >= 0; i-- {
		if s.audits[i].EntityID == entityID {
			result = append(result, s.audits[i])
		}
	}
	return result, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func inRange(d generic.Date, r generic.DateRange) bool {
	if r.From != nil && d.Before(*r.From) {
		return false
	}
	if r.To != nil && d.After(*r.To) {
		return false
	}
	return true
}

func sortBlocks(blocks []generic.TimeBlock) {
	sort.Slice(blocks, func(i, j int) bool {
		if !blocks[i].Date.Equal(blocks[j].Date) {
			return blocks[i].Date.Before(blocks[j].Date)
		}
		if blocks[i].Start != blocks[j].Start {
			return blocks[i].Start < blocks[j].Start
		}
		return blocks[i].ID < blocks[j].ID
	})
}

var _ generic.AdminStore = (*Memory)(nil)
