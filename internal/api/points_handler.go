package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/chorepoints/internal/api/shared"
	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/service"
)

// PointsService is the subset of the ledger service the HTTP layer uses.
type PointsService interface {
	AwardManualPoints(
		ctx context.Context,
		actorID uuid.UUID,
		points int,
		reason string,
		authority domain.Actor,
	) (*domain.LedgerEntry, error)
	GetHistory(ctx context.Context, actorID uuid.UUID, page, limit int) (*domain.HistoryPage, error)
	GetTotal(ctx context.Context, actorID uuid.UUID) (int64, error)
	GetStats(ctx context.Context, actorID uuid.UUID) (*domain.PointsStats, error)
	GetLeaderboard(ctx context.Context, window domain.LeaderboardWindow, limit int) ([]domain.LeaderboardEntry, error)
	SettleWeek(
		ctx context.Context,
		start, end time.Time,
		notes string,
		authority domain.Actor,
	) (*domain.WeeklySettlement, error)
	ListSettlements(ctx context.Context, limit int) ([]*domain.WeeklySettlement, error)
}

var _ PointsService = (*service.LedgerService)(nil)

// PointsHandler handles points ledger endpoints.
type PointsHandler struct {
	points           PointsService
	leaderboardLimit int
	logger           *slog.Logger
}

// NewPointsHandler creates a new PointsHandler. leaderboardLimit is used
// when a request does not name one; zero keeps the service default.
func NewPointsHandler(points PointsService, leaderboardLimit int, log *slog.Logger) *PointsHandler {
	if points == nil {
		// ALLOW-PANIC: constructor enforcing required dependency
		panic("points service cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &PointsHandler{
		points:           points,
		leaderboardLimit: leaderboardLimit,
		logger:           log.With(slog.String("component", "points_handler")),
	}
}

// GetMyPoints handles GET /points/me.
func (h *PointsHandler) GetMyPoints(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	total, err := h.points.GetTotal(r.Context(), actor.ID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get points")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, PointsTotalResponse{ActorID: actor.ID, TotalPoints: total})
}

// GetHistory handles GET /points/history?page=&limit=.
func (h *PointsHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	page, limit, err := pageParams(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	history, err := h.points.GetHistory(r.Context(), actor.ID, page, limit)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get points history")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, history)
}

// GetStats handles GET /points/stats.
func (h *PointsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	stats, err := h.points.GetStats(r.Context(), actor.ID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get points stats")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}

// GetLeaderboard handles GET /points/leaderboard?window=&limit=.
func (h *PointsHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}

	window, err := domain.ParseLeaderboardWindow(r.URL.Query().Get("window"))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	limit, err := queryInt(r, "limit", h.leaderboardLimit)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	board, err := h.points.GetLeaderboard(r.Context(), window, limit)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get leaderboard")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, LeaderboardResponse{Window: window, Entries: board})
}

// AwardPoints handles POST /points/awards.
func (h *PointsHandler) AwardPoints(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req AwardPointsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	entry, err := h.points.AwardManualPoints(r.Context(), req.ActorID, req.Points, req.Reason, actor)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to award points")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, entry)
}

// SettleWeek handles POST /points/settlements.
func (h *PointsHandler) SettleWeek(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req SettleWeekRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	start, end := req.period()
	settlement, err := h.points.SettleWeek(r.Context(), start, end, req.Notes, actor)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to settle week")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, settlement)
}

// ListSettlements handles GET /points/settlements?limit=.
func (h *PointsHandler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	settlements, err := h.points.ListSettlements(r.Context(), limit)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list settlements")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, SettlementsResponse{Settlements: settlements})
}
