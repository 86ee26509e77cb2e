package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/chorepoints/internal/api"
	apiMiddleware "github.com/phrazzld/chorepoints/internal/api/middleware"
)

// setupRouter creates the router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.TraceMiddleware(app.logger))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)
	taskHandler := api.NewTaskHandler(app.taskService, app.logger)
	pointsHandler := api.NewPointsHandler(app.ledgerService, app.config.Points.LeaderboardLimit, app.logger)
	jobsHandler := api.NewJobsHandler(app.generator, app.authz, app.logger)

	var limiter apiMiddleware.Limiter
	if app.limiter != nil {
		limiter = app.limiter
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)
		r.Use(apiMiddleware.RateLimit(limiter))

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", taskHandler.CreateTask)
			r.Get("/", taskHandler.ListTasks)
			r.Get("/mine", taskHandler.ListMyTasks)
			r.Get("/{id}", taskHandler.GetTask)
			r.Put("/{id}", taskHandler.UpdateTask)
			r.Delete("/{id}", taskHandler.DeleteTask)
			r.Post("/{id}/claim", taskHandler.ClaimTask)
			r.Post("/{id}/start", taskHandler.StartTask)
			r.Post("/{id}/complete", taskHandler.CompleteTask)
			r.Post("/{id}/approve", taskHandler.ApproveTask)
			r.Post("/{id}/reject", taskHandler.RejectTask)
			r.Post("/{id}/reserve", taskHandler.ReserveTask)
		})

		r.Route("/points", func(r chi.Router) {
			r.Get("/me", pointsHandler.GetMyPoints)
			r.Get("/history", pointsHandler.GetHistory)
			r.Get("/stats", pointsHandler.GetStats)
			r.Get("/leaderboard", pointsHandler.GetLeaderboard)
			r.Post("/awards", pointsHandler.AwardPoints)
			r.Get("/settlements", pointsHandler.ListSettlements)
			r.Post("/settlements", pointsHandler.SettleWeek)
		})

		r.Post("/jobs/recurring", jobsHandler.RunRecurring)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
