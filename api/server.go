/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the dashboard

ROUTE GROUPS:
  /api/plans/*      Catalog and projections
  /api/rates        Rate schedule
  /api/users/*      Users, overview, deposits
  /api/admin/*      Admin operations (RequireRole admin)
  /api/scenarios/*  Demo scenarios
  /healthz          Liveness

SECURITY NOTE:
  The role check trusts the X-User-Role header. Identity is established by
  whatever sits in front of this service.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/yield-engine/generic"
)

// RoleHeader carries the caller's role.
const RoleHeader = "X-User-Role"

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins ...string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = defaultOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", RoleHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		// Plan routes
		r.Route("/plans", func(r chi.Router) {
			r.Get("/", h.ListPlans)
			r.Get("/projection", h.GetProjection)
		})
		r.Get("/rates", h.GetRates)

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Get("/{id}/overview", h.GetOverview)
			r.Get("/{id}/deposits", h.ListUserDeposits)
			r.Post("/{id}/deposits", h.CreateDeposit)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireRole(generic.RoleAdmin))
			r.Get("/users", h.ListUsers)
			r.Get("/deposits", h.ListDeposits)
			r.Post("/deposits/{id}/approve", h.ApproveDeposit)
			r.Post("/deposits/{id}/reject", h.RejectDeposit)
			r.Get("/maturity/runs", h.ListMaturityRuns)
			r.Post("/maturity/process", h.ProcessMaturities)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// RequireRole rejects requests whose RoleHeader is not role with 403.
func RequireRole(role generic.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actual := generic.Role(r.Header.Get(RoleHeader))
			if actual != role {
				err := &generic.RoleError{Required: role, Actual: actual}
				writeError(w, http.StatusForbidden, "forbidden", err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
