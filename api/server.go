/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/inventory/*    Ledger queries and adjustments
  /api/entities/*     Tracked entity reads and lineage walks
  /api/materials/*    Consume / unconsume operations
  /api/shipments/*    Shipment posting
  /api/operations/*   Production completions
  /api/documents/*    Activity trails
  /api/scenarios/*    Demo scenarios

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Inventory routes
		r.Route("/inventory", func(r chi.Router) {
			r.Get("/onhand", h.GetOnHand)
			r.Get("/ledger", h.GetLedgerEntries)
			r.Post("/adjustments", h.CreateAdjustment)
		})

		// Entity routes
		r.Route("/entities", func(r chi.Router) {
			r.Get("/", h.ListEntities)
			r.Get("/{id}", h.GetEntity)
			r.Get("/{id}/descendant", h.GetDescendant)
			r.Get("/{id}/activities", h.GetEntityActivities)
		})

		// Material issue routes
		r.Route("/materials", func(r chi.Router) {
			r.Post("/{id}/consume", h.Consume)
			r.Post("/{id}/unconsume", h.Unconsume)
		})

		// Shipment routes
		r.Route("/shipments", func(r chi.Router) {
			r.Post("/{id}/post", h.PostShipment)
		})

		// Production routes
		r.Route("/operations", func(r chi.Router) {
			r.Post("/{id}/complete", h.Complete)
		})

		// Document routes
		r.Route("/documents", func(r chi.Router) {
			r.Get("/{id}/activities", h.GetDocumentActivities)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Inventory Genealogy Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Inventory Genealogy Engine API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/inventory/ledger">/api/inventory/ledger</a> - Item ledger entries</li>
<li>/api/inventory/onhand?item_id=&amp;location_id= - On-hand quantity</li>
<li>/api/entities/{id} - Tracked entity</li>
<li><a href="/api/scenarios">/api/scenarios</a> - Demo scenarios</li>
</ul>
</body>
</html>`))
	})

	return r
}
