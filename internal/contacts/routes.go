package contacts

import (
	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-books/internal/rbac"
)

// MountRoutes registers /contacts and its legacy alias /accounts.
func (h *Handler) MountRoutes(r chi.Router) {
	for _, prefix := range []string{"/contacts", "/accounts"} {
		r.Route(prefix, func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(h.rbac.RequireAny(rbac.PermContactsView))
				r.Get("/", h.List)
				r.Get("/{id}", h.Show)
			})
			r.Group(func(r chi.Router) {
				r.Use(h.rbac.RequireAll(rbac.PermContactsEdit))
				r.Post("/", h.Create)
				r.Put("/{id}", h.Update)
				r.Delete("/{id}", h.Delete)
			})
			r.With(h.rbac.RequireAll(rbac.PermPortalManage)).Put("/{id}/portal-access", h.PortalAccess)
		})
	}
}
