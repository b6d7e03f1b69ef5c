package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldops/funnel/internal/assignment"
	"github.com/fieldops/funnel/internal/store"
)

func NewRouter(s store.Store, svc *assignment.Service, adminToken string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(RateLimitMiddleware(120))

	assignments := NewAssignmentsHandler(s, svc)
	admin := NewAdminHandler(s)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(CallerIDMiddleware)

		r.Get("/orders/{id}/candidates", assignments.Candidates)
		r.Get("/orders/{id}/assignments", assignments.ListForOrder)
		r.Post("/orders/{id}/assignments/direct", assignments.CreateDirect)
		r.Post("/orders/{id}/assignments/offer", assignments.CreateOffer)
		r.Post("/orders/{id}/assignments/broadcast", assignments.CreateBroadcast)

		r.Get("/assignments/{id}", assignments.Get)
		r.Post("/assignments/{id}/accept", assignments.Accept)
		r.Post("/assignments/{id}/refuse", assignments.Refuse)
		r.Get("/assignments/{id}/transparency", assignments.Transparency)

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(adminToken))
			r.Get("/stats", admin.Stats)
			r.Get("/assignments", admin.Offered)
		})
	})

	return r
}

func NewMetricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
