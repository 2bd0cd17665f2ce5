package estimates

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-books/internal/rbac"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validate, rbac: rbac}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, h.logger, err)
		return false
	}
	if err := httpx.Validate(h.validate, target); err != nil {
		httpx.RespondError(w, h.logger, err)
		return false
	}
	return true
}

func (h *Handler) id(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return 0, false
	}
	return id, true
}

func (h *Handler) respond(w http.ResponseWriter, status int, v any, err error) {
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, status, v)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	contactID, _ := strconv.ParseInt(r.URL.Query().Get("contactId"), 10, 64)
	req := ListEstimatesRequest{
		ContactID: contactID,
		Status:    r.URL.Query().Get("status"),
		Page:      shared.PageFromRequest(r),
	}
	if err := httpx.Validate(h.validate, req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	items, total, err := h.service.List(r.Context(), req)
	h.respond(w, http.StatusOK, shared.NewListResponse(items, req.Page, total), err)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	est, err := h.service.Get(r.Context(), id)
	h.respond(w, http.StatusOK, est, err)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateEstimateRequest
	if !h.decode(w, r, &req) {
		return
	}
	est, err := h.service.Create(r.Context(), req)
	h.respond(w, http.StatusCreated, est, err)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req UpdateEstimateRequest
	if !h.decode(w, r, &req) {
		return
	}
	est, err := h.service.Update(r.Context(), id, req)
	h.respond(w, http.StatusOK, est, err)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	h.respond(w, http.StatusOK, map[string]bool{"success": true}, h.service.Delete(r.Context(), id))
}

// Convert answers 201 with the new invoice id, 409 when already converted.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	invoiceID, err := h.service.ConvertToInvoice(r.Context(), id)
	h.respond(w, http.StatusCreated, ConvertResponse{Success: true, InvoiceID: invoiceID}, err)
}

func (h *Handler) ListLines(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	lines, err := h.service.Lines(r.Context(), id)
	if lines == nil {
		lines = []LineItem{}
	}
	h.respond(w, http.StatusOK, lines, err)
}

func (h *Handler) CreateLine(w http.ResponseWriter, r *http.Request) {
	var req CreateLineRequest
	if !h.decode(w, r, &req) {
		return
	}
	line, err := h.service.AddLine(r.Context(), req)
	h.respond(w, http.StatusCreated, line, err)
}

func (h *Handler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req UpdateLineRequest
	if !h.decode(w, r, &req) {
		return
	}
	line, err := h.service.UpdateLine(r.Context(), id, req)
	h.respond(w, http.StatusOK, line, err)
}

func (h *Handler) DeleteLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	h.respond(w, http.StatusOK, map[string]bool{"success": true}, h.service.DeleteLine(r.Context(), id))
}
