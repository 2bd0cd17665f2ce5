package purchasing

import (
	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-books/internal/rbac"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermPurchasingView))
		r.Get("/purchase-orders", h.List)
		r.Get("/purchase-orders/{id}", h.Show)
		r.Get("/purchase-orders/{id}/lines", h.ListLines)
		r.Get("/purchase-orders/{id}/payments", h.OrderPayments)
		r.Get("/vendor-payments", h.ListPayments)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermPurchasingEdit))
		r.Post("/purchase-orders", h.Create)
		r.Put("/purchase-orders/{id}", h.Update)
		r.Delete("/purchase-orders/{id}", h.Delete)

		r.Post("/purchase-order-lines", h.CreateLine)
		r.Put("/purchase-order-lines/{id}", h.UpdateLine)
		r.Delete("/purchase-order-lines/{id}", h.DeleteLine)

		r.Post("/vendor-payments", h.CreatePayment)
		r.Delete("/vendor-payments/{id}", h.DeletePayment)
	})
}
