package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/service"
)

// CreateTaskRequest is the payload for POST /tasks.
type CreateTaskRequest struct {
	Title       string          `json:"title"                  validate:"required,max=200"`
	Description string          `json:"description,omitempty"  validate:"max=1000"`
	Type        string          `json:"type"                   validate:"required,oneof=chore project learning bonus"`
	Points      *int            `json:"points,omitempty"       validate:"omitempty,gte=0"`
	ReservedFor *uuid.UUID      `json:"reserved_for,omitempty"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
	Recurrence  string          `json:"recurrence,omitempty"   validate:"omitempty,oneof=none daily weekly monthly"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

func (r CreateTaskRequest) toInput() service.CreateTaskInput {
	return service.CreateTaskInput{
		Title:       r.Title,
		Description: r.Description,
		Type:        domain.TaskType(r.Type),
		Points:      r.Points,
		ReservedFor: r.ReservedFor,
		DueDate:     r.DueDate,
		Recurrence:  domain.Recurrence(r.Recurrence),
		Metadata:    r.Metadata,
	}
}

// UpdateTaskRequest is the payload for PUT /tasks/{id}. Omitted fields are
// left unchanged.
type UpdateTaskRequest struct {
	Title        *string         `json:"title,omitempty"       validate:"omitempty,max=200"`
	Description  *string         `json:"description,omitempty" validate:"omitempty,max=1000"`
	Points       *int            `json:"points,omitempty"      validate:"omitempty,gte=0"`
	DueDate      *time.Time      `json:"due_date,omitempty"`
	ClearDueDate bool            `json:"clear_due_date,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

func (r UpdateTaskRequest) toInput() service.UpdateTaskInput {
	return service.UpdateTaskInput{
		Title:        r.Title,
		Description:  r.Description,
		Points:       r.Points,
		DueDate:      r.DueDate,
		ClearDueDate: r.ClearDueDate,
		Metadata:     r.Metadata,
	}
}

// RejectTaskRequest is the payload for POST /tasks/{id}/reject. A blank
// reason is rejected by the lifecycle engine rather than here, so the
// response carries the domain message.
type RejectTaskRequest struct {
	Reason string `json:"reason"`
}

// ReserveTaskRequest is the payload for POST /tasks/{id}/reserve. A null
// reserved_for clears the reservation.
type ReserveTaskRequest struct {
	ReservedFor *uuid.UUID `json:"reserved_for"`
}

// ApproveTaskResponse is returned by POST /tasks/{id}/approve.
type ApproveTaskResponse struct {
	Task  *domain.Task        `json:"task"`
	Award *domain.LedgerEntry `json:"award"`
}

// AwardPointsRequest is the payload for POST /points/awards.
type AwardPointsRequest struct {
	ActorID uuid.UUID `json:"actor_id" validate:"required"`
	Points  int       `json:"points"   validate:"ne=0"`
	Reason  string    `json:"reason"   validate:"required,max=500"`
}

// PointsTotalResponse is returned by GET /points/me.
type PointsTotalResponse struct {
	ActorID     uuid.UUID `json:"actor_id"`
	TotalPoints int64     `json:"total_points"`
}

// LeaderboardResponse is returned by GET /points/leaderboard.
type LeaderboardResponse struct {
	Window  domain.LeaderboardWindow  `json:"window"`
	Entries []domain.LeaderboardEntry `json:"entries"`
}

// SettleWeekRequest is the payload for POST /points/settlements. Dates are
// YYYY-MM-DD; week_end is the last day of the period, inclusive, and
// defaults to six days after week_start.
type SettleWeekRequest struct {
	WeekStart string `json:"week_start"         validate:"required,datetime=2006-01-02"`
	WeekEnd   string `json:"week_end,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Notes     string `json:"notes,omitempty"    validate:"max=1000"`
}

// period returns the half-open range the settlement covers. It must only be
// called on a validated request.
func (r *SettleWeekRequest) period() (time.Time, time.Time) {
	start, _ := time.Parse(time.DateOnly, r.WeekStart)
	if r.WeekEnd == "" {
		return start, start.AddDate(0, 0, 7)
	}
	end, _ := time.Parse(time.DateOnly, r.WeekEnd)
	return start, end.AddDate(0, 0, 1)
}

// SettlementsResponse is returned by GET /points/settlements.
type SettlementsResponse struct {
	Settlements []*domain.WeeklySettlement `json:"settlements"`
}

// RunGenerationRequest is the optional payload for POST /jobs/recurring.
type RunGenerationRequest struct {
	AsOf *time.Time `json:"as_of,omitempty"`
}
