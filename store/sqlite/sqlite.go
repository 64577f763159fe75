/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements generic.AdminStore: the engine's read/write view (projects, users,
  policy documents, leave, assignments, time blocks, audit trail) plus the admin
  writes used by the config endpoints, the demo scenarios and schedctl.

KEY TABLES:
  projects, users: collaborator records the engine only reads
  config:          policy documents as JSON, keyed 'working_hours' / 'season'
  leaves:          approved absence per user; holidays have user_id = ''
  assignments:     one row per (user, project), UNIQUE
  time_blocks:     scheduled intervals, soft-deleted via active = FALSE
  audit_log:       append-only change trail

STORAGE FORMATS:
  Dates are TEXT "2006-01-02" and clock times TEXT "15:04:05", so lexical order
  is chronological order. Hours are decimal strings and are summed in Go, never
  in SQL, to keep exact decimal arithmetic.

INDEXES:
  - idx_time_blocks_assignment_date: per-user schedule lookups (hot path)
  - idx_leaves_user: leave lookups by user
  - idx_audit_entity: audit listing per entity

CONCURRENCY:
  sync.RWMutex around every call plus a single pooled connection. WithTx holds
  the write lock for the whole callback; the callback must only use the Store
  it receives (calling back into *Store would self-deadlock).

WAL MODE:
  Opened with WAL (Write-Ahead Logging) and foreign keys on.

USAGE:
  store, err := sqlite.New("./data/scheduler.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := assignment.NewService(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/assignment-engine/generic"
)

const (
	dateLayout  = "2006-01-02"
	stampLayout = time.RFC3339Nano

	configWorkingHours = "working_hours"
	configSeason       = "season"
)

// Store implements generic.AdminStore using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" is per-connection, and SQLite has one writer anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection; used by /healthz.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	-- Policy documents (working hours, season mode)
	CREATE TABLE IF NOT EXISTS config (
		key TEXT PRIMARY KEY,
		value_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Approved absence; holidays carry an empty user_id
	CREATE TABLE IF NOT EXISTS leaves (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		title TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_leaves_user
		ON leaves(user_id, status);
	CREATE INDEX IF NOT EXISTS idx_leaves_type
		ON leaves(leave_type);

	CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		role TEXT,
		comment TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(user_id, project_id)
	);

	CREATE TABLE IF NOT EXISTS time_blocks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		assignment_id TEXT NOT NULL REFERENCES assignments(id),
		date TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		duration_hours TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		mode TEXT NOT NULL,
		assign_by_user_id TEXT,
		comment TEXT,
		created_at TEXT NOT NULL
	);

	-- Per-user schedule lookups (hot path)
	CREATE INDEX IF NOT EXISTS idx_time_blocks_assignment_date
		ON time_blocks(assignment_id, date) WHERE active;

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		action TEXT NOT NULL,
		changed_by TEXT,
		changed_at TEXT NOT NULL,
		old_values_json TEXT,
		new_values_json TEXT,
		changed_fields_json TEXT,
		metadata_json TEXT,
		seq INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_entity
		ON audit_log(entity_id, seq DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOCKING HELPERS
// =============================================================================

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn implements generic.Store over a queryer. It never locks.
type conn struct {
	q   queryer
	now func() time.Time
}

func (s *Store) reader() *conn { return &conn{q: s.db, now: s.now} }

func (s *Store) read() (*conn, func()) {
	s.mu.RLock()
	return s.reader(), s.mu.RUnlock
}

// write runs fn in its own transaction under the write lock.
func (s *Store) write(ctx context.Context, fn func(c *conn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx(ctx, fn)
}

func (s *Store) inTx(ctx context.Context, fn func(c *conn) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx, now: s.now}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx(ctx, func(c *conn) error { return fn(c) })
}

// =============================================================================
// READS
// =============================================================================

func (s *Store) GetProject(ctx context.Context, id string) (*generic.Project, error) {
	c, done := s.read()
	defer done()
	return c.GetProject(ctx, id)
}

func (s *Store) GetUser(ctx context.Context, id string) (*generic.User, error) {
	c, done := s.read()
	defer done()
	return c.GetUser(ctx, id)
}

func (s *Store) GetWorkingHoursConfig(ctx context.Context) (*generic.WorkingHoursConfig, error) {
	c, done := s.read()
	defer done()
	return c.GetWorkingHoursConfig(ctx)
}

func (s *Store) GetSeasonConfig(ctx context.Context) (*generic.SeasonConfig, error) {
	c, done := s.read()
	defer done()
	return c.GetSeasonConfig(ctx)
}

func (s *Store) GetApprovedLeaves(ctx context.Context, userID string) ([]generic.Leave, error) {
	c, done := s.read()
	defer done()
	return c.GetApprovedLeaves(ctx, userID)
}

func (s *Store) GetHolidays(ctx context.Context, year int) ([]generic.Leave, error) {
	c, done := s.read()
	defer done()
	return c.GetHolidays(ctx, year)
}

func (s *Store) ActiveBlocksForUser(ctx context.Context, userID string, r generic.DateRange) ([]generic.TimeBlock, error) {
	c, done := s.read()
	defer done()
	return c.ActiveBlocksForUser(ctx, userID, r)
}

func (s *Store) SumDurations(ctx context.Context, ids []generic.TimeBlockID) (decimal.Decimal, error) {
	c, done := s.read()
	defer done()
	return c.SumDurations(ctx, ids)
}

func (s *Store) TotalAssignedHours(ctx context.Context, userID string, r generic.DateRange) (decimal.Decimal, error) {
	c, done := s.read()
	defer done()
	return c.TotalAssignedHours(ctx, userID, r)
}

func (s *Store) GetAssignment(ctx context.Context, userID, projectID string) (*generic.Assignment, error) {
	c, done := s.read()
	defer done()
	return c.GetAssignment(ctx, userID, projectID)
}

func (s *Store) ListAudits(ctx context.Context, entityID string) ([]generic.AuditEntry, error) {
	c, done := s.read()
	defer done()
	return c.ListAudits(ctx, entityID)
}

// =============================================================================
// WRITES
// =============================================================================

func (s *Store) CreateTimeBlocks(ctx context.Context, blocks []generic.TimeBlock) ([]generic.TimeBlock, error) {
	var created []generic.TimeBlock
	err := s.write(ctx, func(c *conn) error {
		var err error
		created, err = c.CreateTimeBlocks(ctx, blocks)
		return err
	})
	return created, err
}

func (s *Store) UpdateTimeBlocks(ctx context.Context, blocks []generic.TimeBlock) error {
	return s.write(ctx, func(c *conn) error { return c.UpdateTimeBlocks(ctx, blocks) })
}

func (s *Store) DeactivateTimeBlocks(ctx context.Context, ids []generic.TimeBlockID) error {
	return s.write(ctx, func(c *conn) error { return c.DeactivateTimeBlocks(ctx, ids) })
}

func (s *Store) CreateAssignment(ctx context.Context, a generic.Assignment) error {
	return s.write(ctx, func(c *conn) error { return c.CreateAssignment(ctx, a) })
}

func (s *Store) AppendAudit(ctx context.Context, entry generic.AuditEntry) error {
	return s.write(ctx, func(c *conn) error { return c.AppendAudit(ctx, entry) })
}

// =============================================================================
// ADMIN WRITES (generic.ConfigWriter, generic.DirectoryWriter)
// =============================================================================

func (s *Store) SaveWorkingHoursConfig(ctx context.Context, cfg generic.WorkingHoursConfig) error {
	return s.write(ctx, func(c *conn) error { return c.saveConfig(ctx, configWorkingHours, cfg) })
}

func (s *Store) SaveSeasonConfig(ctx context.Context, cfg generic.SeasonConfig) error {
	return s.write(ctx, func(c *conn) error { return c.saveConfig(ctx, configSeason, cfg) })
}

func (s *Store) SaveProject(ctx context.Context, p generic.Project) error {
	return s.write(ctx, func(c *conn) error {
		_, err := c.q.ExecContext(ctx, `
			INSERT INTO projects (id, name, start_date, end_date, active)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				start_date = excluded.start_date,
				end_date = excluded.end_date,
				active = excluded.active
		`, p.ID, p.Name, p.StartDate.String(), nullDate(p.EndDate), p.Active)
		if err != nil {
			return fmt.Errorf("failed to save project: %w", err)
		}
		return nil
	})
}

func (s *Store) SaveUser(ctx context.Context, u generic.User) error {
	return s.write(ctx, func(c *conn) error {
		_, err := c.q.ExecContext(ctx, `
			INSERT INTO users (id, name, email, active)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				email = excluded.email,
				active = excluded.active
		`, u.ID, u.Name, nullString(u.Email), u.Active)
		if err != nil {
			return fmt.Errorf("failed to save user: %w", err)
		}
		return nil
	})
}

func (s *Store) SaveLeave(ctx context.Context, l generic.Leave) (generic.Leave, error) {
	err := s.write(ctx, func(c *conn) error {
		if l.ID != 0 {
			_, err := c.q.ExecContext(ctx, `
				INSERT INTO leaves (id, user_id, start_date, end_date, status, leave_type, title)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					user_id = excluded.user_id,
					start_date = excluded.start_date,
					end_date = excluded.end_date,
					status = excluded.status,
					leave_type = excluded.leave_type,
					title = excluded.title
			`, l.ID, l.UserID, l.StartDate.String(), l.EndDate.String(), l.Status, string(l.Type), nullString(l.Title))
			return err
		}
		res, err := c.q.ExecContext(ctx, `
			INSERT INTO leaves (user_id, start_date, end_date, status, leave_type, title)
			VALUES (?, ?, ?, ?, ?, ?)
		`, l.UserID, l.StartDate.String(), l.EndDate.String(), l.Status, string(l.Type), nullString(l.Title))
		if err != nil {
			return err
		}
		l.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return generic.Leave{}, fmt.Errorf("failed to save leave: %w", err)
	}
	return l, nil
}

// Reset clears all data (for demo/testing).
func (s *Store) Reset(ctx context.Context) error {
	return s.write(ctx, func(c *conn) error {
		for _, table := range []string{"time_blocks", "assignments", "audit_log", "leaves", "config", "users", "projects"} {
			if _, err := c.q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to reset %s: %w", table, err)
			}
		}
		return nil
	})
}

// =============================================================================
// CONN - generic.Store over a *sql.DB or *sql.Tx
// =============================================================================

func (c *conn) GetProject(ctx context.Context, id string) (*generic.Project, error) {
	var (
		p     generic.Project
		start string
		end   sql.NullString
	)
	err := c.q.QueryRowContext(ctx,
		"SELECT id, name, start_date, end_date, active FROM projects WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &start, &end, &p.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	if p.StartDate, err = parseDate(start); err != nil {
		return nil, err
	}
	if end.Valid {
		if p.EndDate, err = parseDate(end.String); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func (c *conn) GetUser(ctx context.Context, id string) (*generic.User, error) {
	var (
		u     generic.User
		email sql.NullString
	)
	err := c.q.QueryRowContext(ctx,
		"SELECT id, name, email, active FROM users WHERE id = ?", id,
	).Scan(&u.ID, &u.Name, &email, &u.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.Email = email.String
	return &u, nil
}

func (c *conn) GetWorkingHoursConfig(ctx context.Context) (*generic.WorkingHoursConfig, error) {
	var cfg generic.WorkingHoursConfig
	found, err := c.loadConfig(ctx, configWorkingHours, &cfg)
	if err != nil || !found {
		return nil, err
	}
	return &cfg, nil
}

func (c *conn) GetSeasonConfig(ctx context.Context) (*generic.SeasonConfig, error) {
	var cfg generic.SeasonConfig
	found, err := c.loadConfig(ctx, configSeason, &cfg)
	if err != nil || !found {
		return nil, err
	}
	return &cfg, nil
}

func (c *conn) loadConfig(ctx context.Context, key string, out any) (bool, error) {
	var raw string
	err := c.q.QueryRowContext(ctx, "SELECT value_json FROM config WHERE key = ?", key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s config: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("%w: stored %s config: %v", generic.ErrInvalidConfiguration, key, err)
	}
	return true, nil
}

func (c *conn) saveConfig(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = c.q.ExecContext(ctx, `
		INSERT INTO config (key, value_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value_json = excluded.value_json,
			updated_at = excluded.updated_at
	`, key, string(raw), c.now().UTC().Format(stampLayout))
	if err != nil {
		return fmt.Errorf("failed to save %s config: %w", key, err)
	}
	return nil
}

func (c *conn) GetApprovedLeaves(ctx context.Context, userID string) ([]generic.Leave, error) {
	return c.queryLeaves(ctx, `
		SELECT id, user_id, start_date, end_date, status, leave_type, title
		FROM leaves
		WHERE user_id = ? AND status = ? AND leave_type <> ?
		ORDER BY start_date
	`, userID, generic.LeaveStatusApproved, string(generic.LeaveHoliday))
}

// GetHolidays returns holidays touching the given year (all when year is 0).
func (c *conn) GetHolidays(ctx context.Context, year int) ([]generic.Leave, error) {
	return c.queryLeaves(ctx, `
		SELECT id, user_id, start_date, end_date, status, leave_type, title
		FROM leaves
		WHERE leave_type = ?
		  AND (? = 0 OR (CAST(substr(start_date, 1, 4) AS INTEGER) <= ?
		             AND CAST(substr(end_date, 1, 4) AS INTEGER) >= ?))
		ORDER BY start_date
	`, string(generic.LeaveHoliday), year, year, year)
}

func (c *conn) queryLeaves(ctx context.Context, query string, args ...any) ([]generic.Leave, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaves: %w", err)
	}
	defer rows.Close()

	var leaves []generic.Leave
	for rows.Next() {
		var (
			l          generic.Leave
			start, end string
			leaveType  string
			title      sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.UserID, &start, &end, &l.Status, &leaveType, &title); err != nil {
			return nil, fmt.Errorf("failed to scan leave: %w", err)
		}
		if l.StartDate, err = parseDate(start); err != nil {
			return nil, err
		}
		if l.EndDate, err = parseDate(end); err != nil {
			return nil, err
		}
		l.Type = generic.LeaveType(leaveType)
		l.Title = title.String
		leaves = append(leaves, l)
	}
	return leaves, rows.Err()
}

// --- Time blocks ---

const blockColumns = `
	tb.id, tb.assignment_id, tb.date, tb.start_time, tb.end_time, tb.duration_hours,
	tb.active, tb.mode, tb.assign_by_user_id, tb.comment, tb.created_at,
	a.user_id, a.project_id, p.name, a.role`

func (c *conn) ActiveBlocksForUser(ctx context.Context, userID string, r generic.DateRange) ([]generic.TimeBlock, error) {
	query := `SELECT ` + blockColumns + `
		FROM time_blocks tb
		JOIN assignments a ON a.id = tb.assignment_id
		JOIN projects p ON p.id = a.project_id
		WHERE a.user_id = ? AND tb.active AND p.active`
	args := []any{userID}
	if r.From != nil {
		query += " AND tb.date >= ?"
		args = append(args, r.From.String())
	}
	if r.To != nil {
		query += " AND tb.date <= ?"
		args = append(args, r.To.String())
	}
	query += " ORDER BY tb.date, tb.start_time, tb.id"

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query time blocks: %w", err)
	}
	defer rows.Close()

	var blocks []generic.TimeBlock
	for rows.Next() {
		tb, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, tb)
	}
	return blocks, rows.Err()
}

func scanBlock(rows *sql.Rows) (generic.TimeBlock, error) {
	var (
		tb                         generic.TimeBlock
		date, start, end, duration string
		mode, createdAt            string
		assignBy, comment, role    sql.NullString
	)
	err := rows.Scan(
		&tb.ID, &tb.AssignmentID, &date, &start, &end, &duration,
		&tb.Active, &mode, &assignBy, &comment, &createdAt,
		&tb.UserID, &tb.ProjectID, &tb.ProjectName, &role,
	)
	if err != nil {
		return tb, fmt.Errorf("failed to scan time block: %w", err)
	}

	if tb.Date, err = parseDate(date); err != nil {
		return tb, err
	}
	if tb.Start, err = generic.ParseClockTime(start); err != nil {
		return tb, fmt.Errorf("time block %d start: %w", tb.ID, err)
	}
	if tb.End, err = generic.ParseClockTime(end); err != nil {
		return tb, fmt.Errorf("time block %d end: %w", tb.ID, err)
	}
	if tb.DurationHours, err = decimal.NewFromString(duration); err != nil {
		return tb, fmt.Errorf("time block %d duration: %w", tb.ID, err)
	}
	tb.Mode = generic.Mode(mode)
	tb.AssignByUserID = assignBy.String
	tb.Comment = comment.String
	tb.Role = role.String
	tb.CreatedAt, _ = time.Parse(stampLayout, createdAt)
	return tb, nil
}

func (c *conn) CreateTimeBlocks(ctx context.Context, blocks []generic.TimeBlock) ([]generic.TimeBlock, error) {
	created := make([]generic.TimeBlock, 0, len(blocks))
	contexts := make(map[string]blockContext)
	now := c.now().UTC()

	for _, tb := range blocks {
		res, err := c.q.ExecContext(ctx, `
			INSERT INTO time_blocks
			(assignment_id, date, start_time, end_time, duration_hours, active, mode,
			 assign_by_user_id, comment, created_at)
			VALUES (?, ?, ?, ?, ?, TRUE, ?, ?, ?, ?)
		`,
			tb.AssignmentID, tb.Date.String(), tb.Start.Long(), tb.End.Long(),
			tb.DurationHours.String(), string(tb.Mode),
			nullString(tb.AssignByUserID), nullString(tb.Comment), now.Format(stampLayout),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create time block: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		tb.ID = generic.TimeBlockID(id)
		tb.Active = true
		tb.CreatedAt = now

		bc, ok := contexts[tb.AssignmentID]
		if !ok {
			if bc, err = c.blockContext(ctx, tb.AssignmentID); err != nil {
				return nil, err
			}
			contexts[tb.AssignmentID] = bc
		}
		tb.UserID, tb.ProjectID, tb.ProjectName, tb.Role = bc.userID, bc.projectID, bc.projectName, bc.role
		created = append(created, tb)
	}
	return created, nil
}

type blockContext struct {
	userID, projectID, projectName, role string
}

func (c *conn) blockContext(ctx context.Context, assignmentID string) (blockContext, error) {
	var (
		bc   blockContext
		role sql.NullString
	)
	err := c.q.QueryRowContext(ctx, `
		SELECT a.user_id, a.project_id, COALESCE(p.name, ''), a.role
		FROM assignments a LEFT JOIN projects p ON p.id = a.project_id
		WHERE a.id = ?
	`, assignmentID).Scan(&bc.userID, &bc.projectID, &bc.projectName, &role)
	if err == sql.ErrNoRows {
		return blockContext{}, fmt.Errorf("%w: id %s", generic.ErrAssignmentNotFound, assignmentID)
	}
	if err != nil {
		return blockContext{}, fmt.Errorf("failed to load assignment context: %w", err)
	}
	bc.role = role.String
	return bc, nil
}

func (c *conn) UpdateTimeBlocks(ctx context.Context, blocks []generic.TimeBlock) error {
	for _, tb := range blocks {
		var active bool
		err := c.q.QueryRowContext(ctx, "SELECT active FROM time_blocks WHERE id = ?", int64(tb.ID)).Scan(&active)
		if err == sql.ErrNoRows || (err == nil && !active) {
			return fmt.Errorf("%w: id %d", generic.ErrTimeBlockNotFound, tb.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to load time block: %w", err)
		}
	}

	for _, tb := range blocks {
		_, err := c.q.ExecContext(ctx, `
			UPDATE time_blocks
			SET date = ?, start_time = ?, end_time = ?, duration_hours = ?,
			    comment = ?, assign_by_user_id = ?
			WHERE id = ?
		`, tb.Date.String(), tb.Start.Long(), tb.End.Long(), tb.DurationHours.String(),
			nullString(tb.Comment), nullString(tb.AssignByUserID), int64(tb.ID))
		if err != nil {
			return fmt.Errorf("failed to update time block %d: %w", tb.ID, err)
		}
	}
	return nil
}

func (c *conn) DeactivateTimeBlocks(ctx context.Context, ids []generic.TimeBlockID) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders, args := inClause(ids)
	_, err := c.q.ExecContext(ctx, "UPDATE time_blocks SET active = FALSE WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("failed to deactivate time blocks: %w", err)
	}
	return nil
}

func (c *conn) SumDurations(ctx context.Context, ids []generic.TimeBlockID) (decimal.Decimal, error) {
	if len(ids) == 0 {
		return decimal.Zero, nil
	}
	placeholders, args := inClause(ids)
	return c.sumHours(ctx, "SELECT duration_hours FROM time_blocks WHERE active AND id IN ("+placeholders+")", args...)
}

func (c *conn) TotalAssignedHours(ctx context.Context, userID string, r generic.DateRange) (decimal.Decimal, error) {
	query := `SELECT tb.duration_hours
		FROM time_blocks tb
		JOIN assignments a ON a.id = tb.assignment_id
		JOIN projects p ON p.id = a.project_id
		WHERE a.user_id = ? AND tb.active AND p.active`
	args := []any{userID}
	if r.From != nil {
		query += " AND tb.date >= ?"
		args = append(args, r.From.String())
	}
	if r.To != nil {
		query += " AND tb.date <= ?"
		args = append(args, r.To.String())
	}
	return c.sumHours(ctx, query, args...)
}

// sumHours adds up a single column of decimal strings.
func (c *conn) sumHours(ctx context.Context, query string, args ...any) (decimal.Decimal, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum hours: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, err
		}
		h, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("stored duration %q: %w", raw, err)
		}
		total = total.Add(h)
	}
	return total, rows.Err()
}

// --- Assignments ---

func (c *conn) GetAssignment(ctx context.Context, userID, projectID string) (*generic.Assignment, error) {
	var (
		a                    generic.Assignment
		role, comment        sql.NullString
		createdAt, updatedAt string
	)
	err := c.q.QueryRowContext(ctx, `
		SELECT id, project_id, user_id, role, comment, status, created_at, updated_at
		FROM assignments WHERE user_id = ? AND project_id = ?
	`, userID, projectID).Scan(&a.ID, &a.ProjectID, &a.UserID, &role, &comment, &a.Status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	a.Role = role.String
	a.Comment = comment.String
	a.CreatedAt, _ = time.Parse(stampLayout, createdAt)
	a.UpdatedAt, _ = time.Parse(stampLayout, updatedAt)
	return &a, nil
}

func (c *conn) CreateAssignment(ctx context.Context, a generic.Assignment) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO assignments (id, project_id, user_id, role, comment, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.ProjectID, a.UserID, nullString(a.Role), nullString(a.Comment), a.Status,
		a.CreatedAt.UTC().Format(stampLayout), a.UpdatedAt.UTC().Format(stampLayout))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("assignment for user %s on project %s already exists", a.UserID, a.ProjectID)
		}
		return fmt.Errorf("failed to create assignment: %w", err)
	}
	return nil
}

// --- Audit log ---

func (c *conn) AppendAudit(ctx context.Context, e generic.AuditEntry) error {
	oldJSON, err := marshalNullable(e.OldValues)
	if err != nil {
		return err
	}
	newJSON, err := marshalNullable(e.NewValues)
	if err != nil {
		return err
	}
	fieldsJSON, err := marshalNullable(e.ChangedFields)
	if err != nil {
		return err
	}
	metaJSON, err := marshalNullable(e.Metadata)
	if err != nil {
		return err
	}

	_, err = c.q.ExecContext(ctx, `
		INSERT INTO audit_log
		(id, entity_type, entity_id, action, changed_by, changed_at,
		 old_values_json, new_values_json, changed_fields_json, metadata_json, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM audit_log))
	`, e.ID, e.EntityType, e.EntityID, string(e.Action), nullString(e.ChangedBy),
		e.ChangedAt.UTC().Format(stampLayout), oldJSON, newJSON, fieldsJSON, metaJSON)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListAudits returns newest first.
func (c *conn) ListAudits(ctx context.Context, entityID string) ([]generic.AuditEntry, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, action, changed_by, changed_at,
		       old_values_json, new_values_json, changed_fields_json, metadata_json
		FROM audit_log WHERE entity_id = ?
		ORDER BY seq DESC
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []generic.AuditEntry
	for rows.Next() {
		var (
			e                                      generic.AuditEntry
			action, changedAt                      string
			changedBy                              sql.NullString
			oldJSON, newJSON, fieldsJSON, metaJSON sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &action, &changedBy, &changedAt,
			&oldJSON, &newJSON, &fieldsJSON, &metaJSON); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = generic.AuditAction(action)
		e.ChangedBy = changedBy.String
		e.ChangedAt, _ = time.Parse(stampLayout, changedAt)
		unmarshalNullable(oldJSON, &e.OldValues)
		unmarshalNullable(newJSON, &e.NewValues)
		unmarshalNullable(fieldsJSON, &e.ChangedFields)
		unmarshalNullable(metaJSON, &e.Metadata)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d generic.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseDate(s string) (generic.Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return generic.Date{}, fmt.Errorf("stored date %q: %w", s, err)
	}
	return generic.DateOf(t), nil
}

func inClause(ids []generic.TimeBlockID) (string, []any) {
	args := make([]any, len(ids))
	marks := make([]string, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
		marks[i] = "?"
	}
	return strings.Join(marks, ", "), args
}

func marshalNullable(v any) (sql.NullString, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode audit values: %w", err)
	}
	if string(raw) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func unmarshalNullable(raw sql.NullString, out any) {
	if raw.Valid && raw.String != "" {
		json.Unmarshal([]byte(raw.String), out)
	}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var (
	_ generic.AdminStore = (*Store)(nil)
	_ generic.Store      = (*conn)(nil)
)
