package portal

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := httpx.Validate(h.validate, req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token, _ := r.Context().Value(tokenKey{}).(string)
	if err := h.service.Logout(r.Context(), token); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.Account(r.Context(), ContactID(r.Context()))
	h.respond(w, account, err)
}

func (h *Handler) Invoices(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Invoices(r.Context(), ContactID(r.Context()))
	h.respond(w, orEmpty(items), err)
}

func (h *Handler) Estimates(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Estimates(r.Context(), ContactID(r.Context()))
	h.respond(w, orEmpty(items), err)
}

func (h *Handler) PurchaseOrders(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.PurchaseOrders(r.Context(), ContactID(r.Context()))
	h.respond(w, orEmpty(items), err)
}

func (h *Handler) Payments(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Payments(r.Context(), ContactID(r.Context()))
	h.respond(w, orEmpty(items), err)
}

func (h *Handler) respond(w http.ResponseWriter, data any, err error) {
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, data)
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
