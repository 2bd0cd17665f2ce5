package messages

import (
	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-books/internal/rbac"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/messages", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(rbac.PermMessagesView))
			r.Get("/", h.List)
			r.Get("/{id}", h.Show)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAll(rbac.PermMessagesEdit))
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
		})
	})
}
