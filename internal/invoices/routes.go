package invoices

import (
	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-books/internal/rbac"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermSalesView))
		r.Get("/invoices", h.List)
		r.Get("/invoices/{id}", h.Show)
		r.Get("/invoices/{id}/line-items", h.ListLines)
		r.Get("/invoices/{id}/payments", h.InvoicePayments)
		r.Get("/customer-payments", h.ListPayments)
		r.Get("/customer-payments/{id}", h.ShowPayment)
		r.Get("/customer-credits", h.ListCredits)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermSalesEdit))
		r.Post("/invoices", h.Create)
		r.Put("/invoices/{id}", h.Update)
		r.Delete("/invoices/{id}", h.Delete)

		r.Post("/invoice-line-items", h.CreateLine)
		r.Put("/invoice-line-items/{id}", h.UpdateLine)
		r.Delete("/invoice-line-items/{id}", h.DeleteLine)

		r.Post("/customer-payments", h.CreatePayment)
		r.Put("/customer-payments/{id}", h.UpdatePayment)
		r.Delete("/customer-payments/{id}", h.DeletePayment)

		r.Post("/customer-credits", h.CreateCredit)
		r.Delete("/customer-credits/{id}", h.DeleteCredit)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermPaymentsApprove))
		r.Post("/customer-payments/{id}/approve", h.ApprovePayment)
		r.Post("/customer-payments/{id}/reject", h.RejectPayment)
	})
}
