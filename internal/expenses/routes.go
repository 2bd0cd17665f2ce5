package expenses

import (
	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-books/internal/rbac"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/expenses", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(rbac.PermExpensesView))
			r.Get("/", h.List)
			r.Get("/{id}", h.Show)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAll(rbac.PermExpensesEdit))
			r.Post("/", h.Create)
			r.Delete("/{id}", h.Delete)
		})
	})
}
