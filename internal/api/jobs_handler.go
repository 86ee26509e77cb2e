package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/chorepoints/internal/api/shared"
	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/platform/logger"
	"github.com/phrazzld/chorepoints/internal/service"
	"github.com/phrazzld/chorepoints/internal/service/auth"
)

// GenerationRunner runs one recurring generation pass.
type GenerationRunner interface {
	RunRecurringGeneration(ctx context.Context, asOf time.Time) (domain.GenerationResult, error)
}

var _ GenerationRunner = (*service.RecurringGenerator)(nil)

// JobsHandler lets privileged actors trigger background jobs on demand.
type JobsHandler struct {
	generator GenerationRunner
	authz     auth.Authorizer
	clock     func() time.Time
	logger    *slog.Logger
}

// NewJobsHandler creates a new JobsHandler.
func NewJobsHandler(generator GenerationRunner, authz auth.Authorizer, log *slog.Logger) *JobsHandler {
	if generator == nil {
		// ALLOW-PANIC: constructor enforcing required dependency
		panic("generator cannot be nil")
	}
	if authz == nil {
		// ALLOW-PANIC: constructor enforcing required dependency
		panic("authorizer cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &JobsHandler{
		generator: generator,
		authz:     authz,
		clock:     time.Now,
		logger:    log.With(slog.String("component", "jobs_handler")),
	}
}

// RunRecurring handles POST /jobs/recurring. The body is optional; as_of
// defaults to now.
func (h *JobsHandler) RunRecurring(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if !h.authz.Authorize(r.Context(), actor, domain.PermissionRunJobs, nil) {
		HandleAPIError(w, r, domain.NewAuthorizationError(actor.ID, "run jobs", "missing run_jobs permission"), "")
		return
	}

	asOf := h.clock()
	if r.ContentLength != 0 {
		var req RunGenerationRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		if req.AsOf != nil {
			asOf = *req.AsOf
		}
	}

	result, err := h.generator.RunRecurringGeneration(r.Context(), asOf)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to run recurring generation")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("recurring generation triggered",
		slog.String("actor_id", actor.ID.String()),
		slog.Int("generated", result.Generated),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed))
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}
