package portal

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers the portal under /portal. PIN attempts are limited
// per client address.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/portal", func(r chi.Router) {
		r.With(httprate.LimitByIP(10, time.Minute)).Post("/auth", h.Login)
		r.Group(func(r chi.Router) {
			r.Use(h.RequireContact)
			r.Post("/logout", h.Logout)
			r.Get("/account", h.Account)
			r.Get("/invoices", h.Invoices)
			r.Get("/estimates", h.Estimates)
			r.Get("/purchase-orders", h.PurchaseOrders)
			r.Get("/payments", h.Payments)
		})
	})
}
