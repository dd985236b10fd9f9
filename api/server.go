/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/batches/*      Batches, rosters, sessions, per-batch operations
  /api/trainees/*     Trainee management
  /api/ledger/*       Cross-batch ledger operations
  /api/transport/*    Manual reimbursement edits
  /api/settlement/*   Process transitions
  /api/commuting/*    Geofenced check-in/out
  /api/locations/*    Geofence reference locations

SECURITY NOTE:
  No authentication middleware. The server is meant to sit behind the
  unit's admin gateway.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Batch routes carry everything scoped to one batch
		r.Route("/batches", func(r chi.Router) {
			r.Get("/", h.ListBatches)
			r.Post("/", h.CreateBatch)
			r.Get("/{id}", h.GetBatch)

			r.Get("/{id}/trainees", h.ListTrainees)
			r.Post("/{id}/trainees", h.AssignTrainee)
			r.Get("/{id}/sessions", h.ListSessions)
			r.Post("/{id}/sessions", h.CreateSession)

			r.Post("/{id}/ledger/sync", h.SyncLedger)
			r.Get("/{id}/ledger", h.ListLedger)
			r.Get("/{id}/ledger/totals", h.LedgerTotals)

			r.Post("/{id}/transport/calculate", h.CalculateTransport)
			r.Post("/{id}/transport/commit", h.CommitTransport)
			r.Get("/{id}/transport", h.ListTransport)

			r.Post("/{id}/settlement/{kind}", h.CreateSettlement)
			r.Get("/{id}/settlement", h.ListSettlement)
		})

		// Trainee routes
		r.Route("/trainees", func(r chi.Router) {
			r.Post("/", h.CreateTrainee)
		})

		// Session routes
		r.Route("/sessions", func(r chi.Router) {
			r.Delete("/{id}", h.DeleteSession)
		})

		// Attendance sheet
		r.Put("/attendance", h.UpsertAttendance)

		// Cross-batch ledger operations
		r.Route("/ledger", func(r chi.Router) {
			r.Put("/override", h.SetOverride)
		})

		// Transport manual edits
		r.Route("/transport", func(r chi.Router) {
			r.Put("/manual", h.SetManualTransport)
		})

		// Settlement process routes
		r.Route("/settlement", func(r chi.Router) {
			r.Get("/{id}", h.GetSettlement)
			r.Post("/{id}/advance", h.AdvanceSettlement)
			r.Post("/{id}/revert", h.RevertSettlement)
			r.Put("/{id}/metadata", h.UpdateSettlementMetadata)
			r.Get("/{id}/net", h.SettlementNet)
		})

		// Commuting routes
		r.Route("/commuting", func(r chi.Router) {
			r.Post("/check", h.CommuteCheck)
			r.Post("/manual", h.CommuteManual)
			r.Get("/{traineeID}", h.ListCommuting)
		})

		// Geofence reference locations
		r.Route("/locations", func(r chi.Router) {
			r.Get("/", h.ListLocations)
			r.Post("/", h.SaveLocation)
			r.Delete("/{id}", h.DeleteLocation)
		})
	})

	return r
}
