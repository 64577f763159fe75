package assignment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/warp/assignment-engine/generic"
	"github.com/warp/assignment-engine/logging"
	"github.com/warp/assignment-engine/observability"
)

// =============================================================================
// SERVICE - Entry point for the scheduling operations
// =============================================================================

type Service struct {
	store   generic.TxStore
	policy  PolicyResolver
	locks   *userLocks
	flight  singleflight.Group
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock injects the time source used for season resolution, the
// utilization window and record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces the uuid generator for assignments and audits.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func NewService(store generic.TxStore, opts ...Option) *Service {
	s := &Service{
		store: store,
		locks: newUserLocks(),
		now:   time.Now,
		newID: newUUID,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.policy = PolicyResolver{Config: store, Now: s.now}
	return s
}

// Policy exposes the resolver so callers can show the effective policy.
func (s *Service) Policy() PolicyResolver { return s.policy }

func (s *Service) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	pairs := []any{"service", "assignment", "operation", operation}
	return logging.OrDefault(ctx, s.logger).With(append(pairs, attrs...)...)
}

// =============================================================================
// COMMON VALIDATIONS
// =============================================================================

// commonValidations resolves the project and checks the user and the
// assigning user exist.
func (s *Service) commonValidations(ctx context.Context, projectID, userID, assignByUserID string) (*generic.Project, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if project == nil {
		return nil, fmt.Errorf("%w: %s", generic.ErrProjectNotFound, projectID)
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %s", generic.ErrUserNotFound, userID)
	}

	assignBy, err := s.store.GetUser(ctx, assignByUserID)
	if err != nil {
		return nil, fmt.Errorf("load assigning user: %w", err)
	}
	if assignBy == nil {
		return nil, fmt.Errorf("%w: %s", generic.ErrAssignByUserNotFound, assignByUserID)
	}
	return project, nil
}

// =============================================================================
// LISTING
// =============================================================================

// ListTimeBlocks returns the user's active blocks with project context
// between two instants (date part only). A zero to leaves the range open.
func (s *Service) ListTimeBlocks(ctx context.Context, userID string, from, to generic.Date) ([]generic.TimeBlock, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", generic.ErrInvalidInput)
	}
	r := generic.DateRange{From: &from}
	if !to.IsZero() {
		if to.Before(from) {
			return nil, fmt.Errorf("%w: end %s is before start %s", generic.ErrInvalidInput, to, from)
		}
		r.To = &to
	}
	return s.store.ActiveBlocksForUser(ctx, userID, r)
}

// Audits returns the audit trail of an entity, newest first.
func (s *Service) Audits(ctx context.Context, entityID string) ([]generic.AuditEntry, error) {
	return s.store.ListAudits(ctx, entityID)
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return generic.ErrorKind(err)
}
