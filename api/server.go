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
  /api/hotels/*       Hotel CRUD and agreement versioning
  /api/bookings/*     Booking lifecycle and commission calculation
  /api/commissions/*  Monthly summary and CSV export
  /api/scenarios/*    Demo scenarios

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Hotel routes
		r.Route("/hotels", func(r chi.Router) {
			r.Get("/", h.ListHotels)
			r.Post("/", h.CreateHotel)
			r.Get("/{id}", h.GetHotel)
			r.Patch("/{id}", h.UpdateHotel)
			r.Delete("/{id}", h.DeleteHotel)

			// Agreement versioning (append-only: POST/PATCH close + create)
			r.Post("/{id}/agreement", h.CreateAgreement)
			r.Get("/{id}/agreement", h.GetAgreement)
			r.Patch("/{id}/agreement", h.PatchAgreement)
			r.Get("/{id}/agreements", h.ListAgreements)

			// Bookings scoped to a hotel
			r.Post("/{id}/bookings", h.CreateBooking)
			r.Get("/{id}/bookings", h.ListHotelBookings)
		})

		// Booking routes
		r.Route("/bookings", func(r chi.Router) {
			r.Get("/{id}", h.GetBooking)
			r.Post("/{id}/complete", h.CompleteBooking)
			r.Post("/{id}/commission", h.CalculateCommission)
			r.Get("/{id}/commission", h.GetCommission)
		})

		// Commission reporting routes
		r.Route("/commissions", func(r chi.Router) {
			r.Get("/summary", h.Summary)
			r.Get("/export", h.Export)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.CurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
