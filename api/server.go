/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zerolog request line + Prometheus counters (middleware.go)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the dashboard frontend

ROUTE GROUPS:
  /api/trips/*          Trip management
  /api/rules/*          Rule management
  /api/tracked/*        Dashboard jurisdictions
  /api/summary/*        Compliance summaries
  /api/simulate         What-if planning
  /api/plan/*           Search helpers
  /api/snapshots/*      History
  /api/members/*        Family members
  /api/scenarios/*      Demo scenarios
  /metrics              Prometheus
  /healthz              Liveness
  /*                    Static files (frontend)

STATIC FILE SERVING:
  Serves a built single-page app from RouterOptions.StaticDir when set.
  Falls back to index.html for client-side routing.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/serve.go: Server startup
*/
package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/staycount/metrics"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	StaticDir      string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/trips", func(r chi.Router) {
			r.Get("/", h.ListTrips)
			r.Post("/", h.CreateTrip)
			r.Get("/{id}", h.GetTrip)
			r.Put("/{id}", h.UpdateTrip)
			r.Delete("/{id}", h.DeleteTrip)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", h.ListRules)
			r.Post("/", h.CreateRule)
			r.Get("/{code}", h.GetRule)
			r.Delete("/{code}", h.DeleteRule)
		})

		r.Route("/tracked", func(r chi.Router) {
			r.Get("/", h.GetTracked)
			r.Post("/", h.Track)
			r.Delete("/{code}", h.Untrack)
		})

		r.Get("/summary/{code}", h.GetSummary)
		r.Get("/summaries", h.GetSummaries)
		r.Get("/family/{code}/summary", h.GetFamilySummary)

		r.Post("/simulate", h.Simulate)
		r.Route("/plan", func(r chi.Router) {
			r.Post("/earliest", h.EarliestStart)
			r.Post("/max-length", h.MaxLength)
		})

		r.Route("/snapshots", func(r chi.Router) {
			r.Post("/run", h.RunSnapshots)
			r.Get("/{code}", h.ListSnapshots)
		})

		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Post("/", h.CreateMember)
			r.Delete("/{id}", h.DeleteMember)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	staticDir := opts.StaticDir
	if staticDir == "" {
		return r
	}
	if _, err := os.Stat(staticDir); err != nil {
		h.Logger.Warn().Str("dir", staticDir).Msg("Static directory not found, serving API only")
		return r
	}

	fileServer := http.FileServer(http.Dir(staticDir))
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		fullPath := filepath.Join(staticDir, filepath.Clean(r.URL.Path))

		// SPA routing: unknown paths serve index.html
		if _, err := os.Stat(fullPath); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
			return
		}
		fileServer.ServeHTTP(w, r)
	})

	return r
}
