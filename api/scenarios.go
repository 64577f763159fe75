/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos of the planner. Each scenario creates users, projects,
	holidays and leave, stores the default working-hours policy, and books
	time blocks through the assignment service (so audits are written too).

AVAILABLE SCENARIOS:

	empty-week:       Two projects, three users, a holiday next Wednesday
	busy-consultant:  Ana booked across two projects, vacation on Thu/Fri
	high-season:      Season forced to high, 11h days within the overtime cap
	project-ending:   A project ending mid-week with an out-of-range booking

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Store the default policy (factory.DefaultDocument)
 3. Create users, projects, holidays
 4. Book blocks via Service.ProcessFixedBlocks

All dates are relative to the Monday after Handler.Now, so a scenario looks
the same whenever it is loaded.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "busy-consultant"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler
  - cmd/schedctl: `schedctl seed` loads a scenario from the command line
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/assignment-engine/assignment"
	"github.com/warp/assignment-engine/factory"
	"github.com/warp/assignment-engine/generic"
	"github.com/warp/assignment-engine/logging"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "empty-week",
		Name:        "Empty Week",
		Description: "Two projects, three users and a holiday next Wednesday; nothing booked",
	},
	{
		ID:          "busy-consultant",
		Name:        "Busy Consultant",
		Description: "Ana booked on two projects next week, vacation Thursday and Friday",
	},
	{
		ID:          "high-season",
		Name:        "High Season",
		Description: "Season forced to high: 11-hour days fit under the 12-hour overtime cap",
	},
	{
		ID:          "project-ending",
		Name:        "Project Ending",
		Description: "Comet Support ends next Wednesday; Thursday is booked with a justification",
	},
}

// Scenario IDs, for callers outside HTTP.
func ScenarioIDs() []string {
	ids := make([]string, len(scenarios))
	for i, s := range scenarios {
		ids[i] = s.ID
	}
	return ids
}

// Demo identities.
const (
	demoManager    = "u-marta"
	demoConsultant = "u-ana"
	demoDesigner   = "u-ben"

	projectAtlas  = "p-atlas"
	projectBeacon = "p-beacon"
	projectComet  = "p-comet"
)

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current, Description: "Currently loaded scenario"})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !knownScenario(req.ScenarioID) {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("%q", req.ScenarioID))
		return
	}

	if err := h.Load(r.Context(), req.ScenarioID); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears every record.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// Load resets the store and loads one scenario.
func (h *Handler) Load(ctx context.Context, id string) error {
	if !knownScenario(id) {
		return fmt.Errorf("%w: unknown scenario %q", generic.ErrInvalidInput, id)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	h.currentScenario = ""

	monday := nextMonday(h.now())
	if err := h.seedBase(ctx, monday); err != nil {
		return err
	}

	var err error
	switch id {
	case "empty-week":
		// Base data only.
	case "busy-consultant":
		err = h.loadBusyConsultant(ctx, monday)
	case "high-season":
		err = h.loadHighSeason(ctx, monday)
	case "project-ending":
		err = h.loadProjectEnding(ctx, monday)
	}
	if err != nil {
		return fmt.Errorf("scenario %s: %w", id, err)
	}

	h.currentScenario = id
	logging.OrDefault(ctx, h.Logger).Info("scenario loaded", "scenario", id, "week_of", monday)
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) seedBase(ctx context.Context, monday generic.Date) error {
	if err := h.PolicyFactory.Apply(ctx, h.Store, factory.DefaultDocument()); err != nil {
		return err
	}

	users := []generic.User{
		{ID: demoManager, Name: "Marta Ruiz", Email: "marta@example.com", Active: true},
		{ID: demoConsultant, Name: "Ana Torres", Email: "ana@example.com", Active: true},
		{ID: demoDesigner, Name: "Ben Okafor", Email: "ben@example.com", Active: true},
	}
	for _, u := range users {
		if err := h.Store.SaveUser(ctx, u); err != nil {
			return fmt.Errorf("save user %s: %w", u.ID, err)
		}
	}

	projects := []generic.Project{
		{ID: projectAtlas, Name: "Atlas Migration", StartDate: monday.AddDays(-30), EndDate: monday.AddDays(90), Active: true},
		{ID: projectBeacon, Name: "Beacon Redesign", StartDate: monday.AddDays(-14), EndDate: monday.AddDays(60), Active: true},
	}
	for _, p := range projects {
		if err := h.Store.SaveProject(ctx, p); err != nil {
			return fmt.Errorf("save project %s: %w", p.ID, err)
		}
	}

	wednesday := monday.AddDays(2)
	holidays := []generic.Leave{
		{StartDate: wednesday, EndDate: wednesday, Title: "Company offsite"},
		{StartDate: generic.NewDate(monday.Year(), time.December, 25), EndDate: generic.NewDate(monday.Year(), time.December, 25), Title: "Christmas Day"},
	}
	for _, l := range holidays {
		l.Type = generic.LeaveHoliday
		l.Status = generic.LeaveStatusApproved
		if _, err := h.Store.SaveLeave(ctx, l); err != nil {
			return fmt.Errorf("save holiday %q: %w", l.Title, err)
		}
	}
	return nil
}

func (h *Handler) loadBusyConsultant(ctx context.Context, monday generic.Date) error {
	tuesday := monday.AddDays(1)
	thursday := monday.AddDays(3)

	if err := h.book(ctx, projectAtlas, demoConsultant, "Backend developer", assignment.Comments{},
		block(monday, "09:00", "13:00"), block(monday, "14:00", "18:00"),
		block(tuesday, "09:00", "13:00"),
	); err != nil {
		return err
	}
	if err := h.book(ctx, projectBeacon, demoConsultant, "UX reviewer", assignment.Comments{},
		block(tuesday, "14:00", "17:00"),
	); err != nil {
		return err
	}

	_, err := h.Store.SaveLeave(ctx, generic.Leave{
		UserID:    demoConsultant,
		StartDate: thursday,
		EndDate:   thursday.AddDays(1),
		Status:    generic.LeaveStatusApproved,
		Type:      generic.LeaveVacation,
		Title:     "Long weekend",
	})
	return err
}

func (h *Handler) loadHighSeason(ctx context.Context, monday generic.Date) error {
	if err := h.Store.SaveSeasonConfig(ctx, generic.SeasonConfig{Mode: generic.SeasonModeHigh}); err != nil {
		return err
	}
	tuesday := monday.AddDays(1)

	return h.book(ctx, projectAtlas, demoDesigner, "Designer", assignment.Comments{},
		block(monday, "08:00", "13:00"), block(monday, "14:00", "20:00"),
		block(tuesday, "08:00", "13:00"), block(tuesday, "14:00", "20:00"),
	)
}

func (h *Handler) loadProjectEnding(ctx context.Context, monday generic.Date) error {
	wednesday := monday.AddDays(2)
	comet := generic.Project{
		ID:        projectComet,
		Name:      "Comet Support",
		StartDate: monday.AddDays(-60),
		EndDate:   wednesday,
		Active:    true,
	}
	if err := h.Store.SaveProject(ctx, comet); err != nil {
		return err
	}

	return h.book(ctx, projectComet, demoConsultant, "Support engineer",
		assignment.Comments{OutOfRange: "Handover to the client team"},
		block(monday, "09:00", "13:00"),
		block(monday.AddDays(3), "09:00", "12:00"),
	)
}

// book creates blocks for one (user, project) pair as the demo manager.
func (h *Handler) book(ctx context.Context, projectID, userID, role string, comments assignment.Comments, blocks ...assignment.BlockInput) error {
	_, err := h.Service.ProcessFixedBlocks(ctx, assignment.FixedBlockInput{
		ProjectID:      projectID,
		UserID:         userID,
		AssignByUserID: demoManager,
		Role:           role,
		Status:         generic.AssignmentStatusActive,
		Comments:       comments,
		TimeBlocks:     blocks,
	})
	return err
}

func block(d generic.Date, start, end string) assignment.BlockInput {
	return assignment.BlockInput{
		Date:  d,
		Start: generic.MustParseClockTime(start),
		End:   generic.MustParseClockTime(end),
		Mode:  generic.ModeManual,
	}
}

// nextMonday returns the first Monday strictly after now.
func nextMonday(now time.Time) generic.Date {
	d := generic.DateOf(now).AddDays(1)
	for d.Weekday() != time.Monday {
		d = d.AddDays(1)
	}
	return d
}

func knownScenario(id string) bool {
	for _, s := range scenarios {
		if s.ID == id {
			return true
		}
	}
	return false
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
