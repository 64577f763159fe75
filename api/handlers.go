/*
handlers.go - HTTP API handlers for the assignment scheduling engine

PURPOSE:
  Exposes the scheduling engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the assignment service.

ENDPOINTS:
  Assignments:
    GET    /api/assignments                                List active blocks (user_id, start_datetime, end_datetime)
    POST   /api/assignments/fixed-blocks                   Delete/edit/create blocks atomically
    POST   /api/assignments/simulate-cascade               Propose blocks for a total of hours
    GET    /api/assignments/used-hours-percentage/{user_id} Utilization over the next 60 days

  Config:
    GET    /api/config/working-hours   Stored working-hours document
    PUT    /api/config/working-hours   Replace it (validated)
    GET    /api/config/season          Season mode (auto when unset)
    PUT    /api/config/season          Change season mode
    GET    /api/config/effective       Policy in force right now

  Audit:
    GET    /api/audits/{entity_id}     Audit trail, newest first

  Scenarios:
    GET    /api/scenarios              List demo scenarios
    POST   /api/scenarios/load         Load a demo scenario

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: reads for listing/config plus admin writes
  - Service: the scheduling engine (validation, transactions, audit)
  - PolicyFactory: working-hours document parsing and validation

ERROR HANDLING:
  Errors are returned as JSON {error, details} with a status from statusFor:
  - 400: Validation errors, invalid input
  - 404: Project, user or time block not found
  - 422: Cascade simulation infeasible
  - 500: Missing configuration, internal errors

SECURITY NOTE:
  No authentication or authorization. assign_by_user_id is trusted as sent.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/assignment-engine/assignment"
	"github.com/warp/assignment-engine/factory"
	"github.com/warp/assignment-engine/generic"
	"github.com/warp/assignment-engine/logging"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store         generic.AdminStore
	Service       *assignment.Service
	PolicyFactory *factory.PolicyFactory
	Logger        *slog.Logger

	// Now anchors demo scenarios; defaults to time.Now.
	Now func() time.Time

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler over the store and service.
func NewHandler(store generic.AdminStore, service *assignment.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:         store,
		Service:       service,
		PolicyFactory: factory.NewPolicyFactory(),
		Logger:        logger,
		Now:           time.Now,
	}
}

// =============================================================================
// ASSIGNMENT HANDLERS
// =============================================================================

// ListTimeBlocks returns the user's active blocks in a datetime window.
// end_datetime is optional.
func (h *Handler) ListTimeBlocks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := strings.TrimSpace(q.Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	if q.Get("start_datetime") == "" {
		writeError(w, http.StatusBadRequest, "start_datetime is required", nil)
		return
	}
	from, err := generic.ParseDate(q.Get("start_datetime"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_datetime", err)
		return
	}
	var to generic.Date
	if raw := q.Get("end_datetime"); raw != "" {
		if to, err = generic.ParseDate(raw); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end_datetime", err)
			return
		}
	}

	blocks, err := h.Service.ListTimeBlocks(r.Context(), userID, from, to)
	if err != nil {
		h.writeServiceError(w, r, "Failed to list time blocks", err)
		return
	}

	dtos := make([]TimeBlockDTO, len(blocks))
	for i, tb := range blocks {
		dtos[i] = toTimeBlockDTO(tb)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ProcessFixedBlocks applies a batch of deletions, edits and creations.
func (h *Handler) ProcessFixedBlocks(w http.ResponseWriter, r *http.Request) {
	var req FixedBlockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	result, err := h.Service.ProcessFixedBlocks(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, "Failed to process time blocks", err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{Message: result.Message})
}

// SimulateCascade proposes blocks without saving them.
func (h *Handler) SimulateCascade(w http.ResponseWriter, r *http.Request) {
	var req SimulateCascadeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	result, err := h.Service.SimulateCascade(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, "Failed to simulate cascade", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCascadeResponse(result))
}

// UsedHoursPercentage returns the user's utilization percentage.
func (h *Handler) UsedHoursPercentage(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	pct, err := h.Service.UtilizationPercentage(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, "Failed to compute utilization", err)
		return
	}
	writeJSON(w, http.StatusOK, PercentageResponse{Percentage: pct})
}

// =============================================================================
// CONFIG HANDLERS
// =============================================================================

// GetWorkingHours returns {"working_hours": {...}}.
func (h *Handler) GetWorkingHours(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Store.GetWorkingHoursConfig(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "Failed to load working hours", err)
		return
	}
	if cfg == nil {
		h.writeServiceError(w, r, "Working hours configuration not found", generic.ErrConfigurationMissing)
		return
	}
	writeJSON(w, http.StatusOK, factory.PolicyDocument{WorkingHours: *cfg})
}

// UpdateWorkingHours accepts either {"working_hours": {...}, "season": {...}}
// or a bare working-hours object.
func (h *Handler) UpdateWorkingHours(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	doc, err := h.PolicyFactory.Parse(body, factory.FormatJSON)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid working hours configuration", err)
		return
	}
	if err := h.PolicyFactory.Apply(r.Context(), h.Store, doc); err != nil {
		h.writeServiceError(w, r, "Failed to save working hours", err)
		return
	}

	logging.OrDefault(r.Context(), h.Logger).Info("working hours updated",
		"max_daily_hours", doc.WorkingHours.Common.MaxDailyHours,
		"season_section", doc.Season != nil)
	writeJSON(w, http.StatusOK, factory.PolicyDocument{WorkingHours: doc.WorkingHours})
}

// GetSeason returns the stored season mode, auto when none is stored.
func (h *Handler) GetSeason(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Store.GetSeasonConfig(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "Failed to load season", err)
		return
	}
	if cfg == nil {
		cfg = &generic.SeasonConfig{Mode: generic.SeasonModeAuto}
	}
	writeJSON(w, http.StatusOK, cfg)
}

// UpdateSeason stores {"season_mode": "auto"|"normal"|"high"}.
func (h *Handler) UpdateSeason(w http.ResponseWriter, r *http.Request) {
	var req generic.SeasonConfig
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !req.Mode.Valid() {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Invalid season_mode %q (use auto, normal or high)", req.Mode), nil)
		return
	}
	if err := h.Store.SaveSeasonConfig(r.Context(), req); err != nil {
		h.writeServiceError(w, r, "Failed to save season", err)
		return
	}

	logging.OrDefault(r.Context(), h.Logger).Info("season mode updated", "season_mode", req.Mode)
	writeJSON(w, http.StatusOK, req)
}

// GetEffectivePolicy returns the flattened policy for the current moment.
func (h *Handler) GetEffectivePolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.Policy().Resolve(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "Failed to resolve policy", err)
		return
	}
	writeJSON(w, http.StatusOK, toEffectivePolicyDTO(p))
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// ListAudits returns the audit trail of one entity, newest first.
func (h *Handler) ListAudits(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entity_id")

	entries, err := h.Service.Audits(r.Context(), entityID)
	if err != nil {
		h.writeServiceError(w, r, "Failed to list audits", err)
		return
	}

	dtos := make([]AuditDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HEALTH
// =============================================================================

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports whether the store answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsValidationError(err):
		return http.StatusBadRequest
	case generic.IsSimulationError(err):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeServiceError logs and writes an error returned by the engine or store.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	logger := logging.OrDefault(r.Context(), h.Logger).With(
		"status", status, "error_kind", generic.ErrorKind(err), "error", err)
	if status >= http.StatusInternalServerError {
		logger.Error(message)
	} else {
		logger.Info(message)
	}
	writeError(w, status, message, err)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
