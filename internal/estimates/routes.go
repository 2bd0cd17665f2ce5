package estimates

import (
	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-books/internal/rbac"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermSalesView))
		r.Get("/estimates", h.List)
		r.Get("/estimates/{id}", h.Show)
		r.Get("/estimates/{id}/line-items", h.ListLines)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermSalesEdit))
		r.Post("/estimates", h.Create)
		r.Put("/estimates/{id}", h.Update)
		r.Delete("/estimates/{id}", h.Delete)
		r.Post("/estimates/{id}/convert", h.Convert)

		r.Post("/estimate-line-items", h.CreateLine)
		r.Put("/estimate-line-items/{id}", h.UpdateLine)
		r.Delete("/estimate-line-items/{id}", h.DeleteLine)
	})
}
