package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Settlement bounds.
const (
	MaxSettlementPeriod = 7 * 24 * time.Hour
	MaxNotesLength      = 1000
)

// WeeklyRanking is one actor's place in a settled week.
type WeeklyRanking struct {
	ActorID        uuid.UUID `json:"actor_id"`
	Rank           int       `json:"rank"`
	TotalPoints    int64     `json:"total_points"`
	TasksCompleted int       `json:"tasks_completed"`
}

// WeeklySettlement closes a period of at most a week: it freezes the ranking
// of points earned in [WeekStart, WeekEnd) and names the winner. A week can
// be settled once.
type WeeklySettlement struct {
	ID        uuid.UUID       `json:"id"`
	WeekStart time.Time       `json:"week_start"`
	WeekEnd   time.Time       `json:"week_end"`
	WinnerID  uuid.UUID       `json:"winner_id"`
	Notes     string          `json:"notes,omitempty"`
	SettledBy uuid.UUID       `json:"settled_by"`
	CreatedAt time.Time       `json:"created_at"`
	Rankings  []WeeklyRanking `json:"rankings,omitempty"`
}

// Winner returns the first-ranked actor's row.
func (s *WeeklySettlement) Winner() WeeklyRanking {
	return s.Rankings[0]
}

// SettlementPeriod normalizes start and end to UTC midnights and checks that
// they describe a non-empty period no longer than MaxSettlementPeriod.
func SettlementPeriod(start, end time.Time) (time.Time, time.Time, error) {
	if start.IsZero() {
		return time.Time{}, time.Time{}, NewValidationError("week_start", "cannot be empty")
	}
	start, end = StartOfDay(start), StartOfDay(end)
	if !end.After(start) {
		return time.Time{}, time.Time{}, NewValidationError("week_end", "must be after week_start")
	}
	if end.Sub(start) > MaxSettlementPeriod {
		return time.Time{}, time.Time{}, NewValidationError("week_end", "a settlement covers at most 7 days")
	}
	return start, end, nil
}

// NewWeeklySettlement builds a settlement from a ranking ordered best first.
func NewWeeklySettlement(
	start, end time.Time,
	rankings []WeeklyRanking,
	notes string,
	settledBy uuid.UUID,
	now time.Time,
) (*WeeklySettlement, error) {
	start, end, err := SettlementPeriod(start, end)
	if err != nil {
		return nil, err
	}
	if len(rankings) == 0 {
		return nil, NewValidationError("week_start", "no activity found for this period")
	}

	s := &WeeklySettlement{
		ID:        uuid.New(),
		WeekStart: start,
		WeekEnd:   end,
		WinnerID:  rankings[0].ActorID,
		Notes:     strings.TrimSpace(notes),
		SettledBy: settledBy,
		CreatedAt: now.UTC(),
		Rankings:  rankings,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the settlement's fields and that its rankings are
// numbered from 1 with the winner first.
func (s *WeeklySettlement) Validate() error {
	if s.ID == uuid.Nil {
		return NewValidationError("id", "cannot be empty")
	}
	if s.SettledBy == uuid.Nil {
		return NewValidationError("settled_by", "cannot be empty")
	}
	if utf8.RuneCountInString(s.Notes) > MaxNotesLength {
		return NewValidationError("notes", "must be at most 1000 characters")
	}
	if len(s.Rankings) == 0 || s.Rankings[0].ActorID != s.WinnerID {
		return NewValidationError("winner_id", "must be the first-ranked actor")
	}
	for i, r := range s.Rankings {
		if r.Rank != i+1 {
			return NewValidationError("rankings", "ranks must be consecutive from 1")
		}
		if r.ActorID == uuid.Nil {
			return NewValidationError("rankings", "actor id cannot be empty")
		}
	}
	return nil
}
