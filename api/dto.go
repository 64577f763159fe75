/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's types from the wire contract. Field names follow the
  planner frontend (snake_case, "HH:MM" times, "YYYY-MM-DD" dates).

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Response wrappers

TYPES:
  Assignments:
    FixedBlockRequest, TimeBlockInputDTO, CommentsDTO
    SimulateCascadeRequest, CascadeResponse, GeneratedBlockDTO
    TimeBlockDTO, PercentageResponse

  Config:
    generic.WorkingHoursConfig and generic.SeasonConfig are sent as-is
    EffectivePolicyDTO

  Audit:
    AuditDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Shape checks (modes, required ids) happen in the to* conversions; placement
  rules are enforced by the assignment service.

SEE ALSO:
  - handlers.go: Uses these types
  - assignment/types.go: Engine inputs and results
*/
package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/assignment-engine/assignment"
	"github.com/warp/assignment-engine/generic"
)

// =============================================================================
// FIXED BLOCKS
// =============================================================================

// CommentsDTO carries the justifications a submission may need.
type CommentsDTO struct {
	MoreThan8Hours    string `json:"more_than_8_hours"`
	OutOfProjectRange string `json:"out_of_project_range"`
}

// TimeBlockInputDTO is one requested block. ID is only read for edits.
type TimeBlockInputDTO struct {
	ID        *int64            `json:"id,omitempty"`
	Date      generic.Date      `json:"date"`
	StartTime generic.ClockTime `json:"start_time"`
	EndTime   generic.ClockTime `json:"end_time"`
	Mode      string            `json:"mode"`
}

// FixedBlockRequest is the body of POST /api/assignments/fixed-blocks.
type FixedBlockRequest struct {
	ProjectID           string              `json:"project_id"`
	UserID              string              `json:"user_id"`
	Role                string              `json:"role"`
	Comments            CommentsDTO         `json:"comments"`
	Status              string              `json:"status"`
	AssignByUserID      string              `json:"assign_by_user_id"`
	TimeBlocks          []TimeBlockInputDTO `json:"time_blocks"`
	EditedTimeBlocks    []TimeBlockInputDTO `json:"edited_time_blocks"`
	DeletedTimeBlockIDs []int64             `json:"deleted_time_block_ids"`
}

func (r FixedBlockRequest) toInput() (assignment.FixedBlockInput, error) {
	in := assignment.FixedBlockInput{
		ProjectID:      r.ProjectID,
		UserID:         r.UserID,
		AssignByUserID: r.AssignByUserID,
		Role:           r.Role,
		Status:         r.Status,
		Comments: assignment.Comments{
			TooLong:    r.Comments.MoreThan8Hours,
			OutOfRange: r.Comments.OutOfProjectRange,
		},
	}
	if err := requireIDs(r.ProjectID, r.UserID, r.AssignByUserID); err != nil {
		return in, err
	}

	var err error
	if in.TimeBlocks, err = toBlockInputs(r.TimeBlocks, false); err != nil {
		return in, err
	}
	if in.EditedTimeBlocks, err = toBlockInputs(r.EditedTimeBlocks, true); err != nil {
		return in, err
	}
	for _, id := range r.DeletedTimeBlockIDs {
		in.DeletedTimeBlockIDs = append(in.DeletedTimeBlockIDs, generic.TimeBlockID(id))
	}
	return in, nil
}

func toBlockInputs(dtos []TimeBlockInputDTO, edited bool) ([]assignment.BlockInput, error) {
	if len(dtos) == 0 {
		return nil, nil
	}
	out := make([]assignment.BlockInput, 0, len(dtos))
	for i, d := range dtos {
		if d.Date.IsZero() {
			return nil, fmt.Errorf("%w: time block %d has no date", generic.ErrInvalidInput, i)
		}
		mode := generic.Mode(d.Mode)
		if mode == "" {
			mode = generic.ModeManual
		}
		if !mode.Valid() {
			return nil, fmt.Errorf("%w: unknown mode %q", generic.ErrInvalidInput, d.Mode)
		}

		b := assignment.BlockInput{Date: d.Date, Start: d.StartTime, End: d.EndTime, Mode: mode}
		if d.ID != nil {
			b.ID = generic.TimeBlockID(*d.ID)
		} else if edited {
			return nil, fmt.Errorf("%w: edited time block on %s has no id", generic.ErrInvalidInput, d.Date)
		}
		out = append(out, b)
	}
	return out, nil
}

// =============================================================================
// CASCADE
// =============================================================================

// SimulateCascadeRequest is the body of POST /api/assignments/simulate-cascade.
type SimulateCascadeRequest struct {
	ProjectID      string          `json:"project_id"`
	UserID         string          `json:"user_id"`
	StartDate      generic.Date    `json:"start_date"`
	TotalHours     decimal.Decimal `json:"total_hours"`
	AssignByUserID string          `json:"assign_by_user_id"`
}

func (r SimulateCascadeRequest) toInput() (assignment.CascadeInput, error) {
	if err := requireIDs(r.ProjectID, r.UserID, r.AssignByUserID); err != nil {
		return assignment.CascadeInput{}, err
	}
	return assignment.CascadeInput{
		ProjectID:      r.ProjectID,
		UserID:         r.UserID,
		AssignByUserID: r.AssignByUserID,
		StartDate:      r.StartDate,
		TotalHours:     r.TotalHours,
	}, nil
}

// GeneratedBlockDTO is one proposed (unsaved) cascade block.
type GeneratedBlockDTO struct {
	Date          generic.Date      `json:"date"`
	StartTime     generic.ClockTime `json:"start_time"`
	EndTime       generic.ClockTime `json:"end_time"`
	DurationHours float64           `json:"duration_hours"`
	Mode          string            `json:"mode"`
}

type CascadeResponse struct {
	GeneratedTimeBlocks []GeneratedBlockDTO `json:"generated_time_blocks"`
	Message             string              `json:"message"`
}

func toCascadeResponse(res assignment.CascadeResult) CascadeResponse {
	blocks := make([]GeneratedBlockDTO, len(res.GeneratedTimeBlocks))
	for i, b := range res.GeneratedTimeBlocks {
		blocks[i] = GeneratedBlockDTO{
			Date:          b.Date,
			StartTime:     b.Start,
			EndTime:       b.End,
			DurationHours: b.DurationHours.InexactFloat64(),
			Mode:          string(b.Mode),
		}
	}
	return CascadeResponse{GeneratedTimeBlocks: blocks, Message: res.Message}
}

// =============================================================================
// LISTING / UTILIZATION
// =============================================================================

// TimeBlockDTO is an active block with its assignment and project context.
type TimeBlockDTO struct {
	ID             int64             `json:"id"`
	AssignmentID   string            `json:"assignment_id"`
	Date           generic.Date      `json:"date"`
	StartTime      generic.ClockTime `json:"start_time"`
	EndTime        generic.ClockTime `json:"end_time"`
	DurationHours  float64           `json:"duration_hours"`
	IsActive       bool              `json:"is_active"`
	Mode           string            `json:"mode"`
	AssignByUserID string            `json:"assign_by_user_id,omitempty"`
	Comment        string            `json:"comment,omitempty"`
	CreatedAt      string            `json:"created_at,omitempty"`
	ProjectID      string            `json:"project_id"`
	ProjectName    string            `json:"project_name"`
	AssignmentRole string            `json:"assignment_role,omitempty"`
}

func toTimeBlockDTO(tb generic.TimeBlock) TimeBlockDTO {
	dto := TimeBlockDTO{
		ID:             int64(tb.ID),
		AssignmentID:   tb.AssignmentID,
		Date:           tb.Date,
		StartTime:      tb.Start,
		EndTime:        tb.End,
		DurationHours:  tb.DurationHours.InexactFloat64(),
		IsActive:       tb.Active,
		Mode:           string(tb.Mode),
		AssignByUserID: tb.AssignByUserID,
		Comment:        tb.Comment,
		ProjectID:      tb.ProjectID,
		ProjectName:    tb.ProjectName,
		AssignmentRole: tb.Role,
	}
	if !tb.CreatedAt.IsZero() {
		dto.CreatedAt = tb.CreatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

type PercentageResponse struct {
	Percentage float64 `json:"percentage"`
}

// =============================================================================
// CONFIG
// =============================================================================

// EffectivePolicyDTO is the flattened policy in force right now.
type EffectivePolicyDTO struct {
	Season                string  `json:"season"`
	MaxDailyHours         float64 `json:"max_daily_hours"`
	MaxDailyOvertimeHours float64 `json:"max_daily_hours_overtime"`
	LunchStartTime        string  `json:"lunch_start_time"`
	LunchEndTime          string  `json:"lunch_end_time"`
	WorkStartTime         string  `json:"work_start_time"`
	WorkEndTime           string  `json:"work_end_time"`
}

func toEffectivePolicyDTO(p generic.EffectivePolicy) EffectivePolicyDTO {
	return EffectivePolicyDTO{
		Season:                string(p.Season),
		MaxDailyHours:         p.MaxDailyHours.InexactFloat64(),
		MaxDailyOvertimeHours: p.MaxDailyOvertimeHours.InexactFloat64(),
		LunchStartTime:        p.Lunch.Start.String(),
		LunchEndTime:          p.Lunch.End.String(),
		WorkStartTime:         p.Work.Start.String(),
		WorkEndTime:           p.Work.End.String(),
	}
}

// =============================================================================
// AUDIT
// =============================================================================

type AuditDTO struct {
	ID            string         `json:"id"`
	EntityType    string         `json:"entity_type"`
	EntityID      string         `json:"entity_id"`
	Action        string         `json:"action"`
	ChangedBy     string         `json:"changed_by"`
	ChangedAt     string         `json:"changed_at"`
	OldValues     map[string]any `json:"old_values,omitempty"`
	NewValues     map[string]any `json:"new_values,omitempty"`
	ChangedFields []string       `json:"changed_fields,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func toAuditDTO(e generic.AuditEntry) AuditDTO {
	return AuditDTO{
		ID:            e.ID,
		EntityType:    e.EntityType,
		EntityID:      e.EntityID,
		Action:        string(e.Action),
		ChangedBy:     e.ChangedBy,
		ChangedAt:     e.ChangedAt.UTC().Format(time.RFC3339),
		OldValues:     e.OldValues,
		NewValues:     e.NewValues,
		ChangedFields: e.ChangedFields,
		Metadata:      e.Metadata,
	}
}

// =============================================================================
// SCENARIOS / GENERIC
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func requireIDs(projectID, userID, assignByUserID string) error {
	switch {
	case projectID == "":
		return fmt.Errorf("%w: project_id is required", generic.ErrInvalidInput)
	case userID == "":
		return fmt.Errorf("%w: user_id is required", generic.ErrInvalidInput)
	case assignByUserID == "":
		return fmt.Errorf("%w: assign_by_user_id is required", generic.ErrInvalidInput)
	}
	return nil
}
