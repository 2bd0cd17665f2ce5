package purchasing

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

func queryInt64(r *http.Request, key string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	return v
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	req := ListPurchaseOrdersRequest{
		ContactID: queryInt64(r, "contactId"),
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
	po, err := h.service.Get(r.Context(), id)
	h.respond(w, http.StatusOK, po, err)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePurchaseOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	po, err := h.service.Create(r.Context(), req)
	h.respond(w, http.StatusCreated, po, err)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req UpdatePurchaseOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	po, err := h.service.Update(r.Context(), id, req)
	h.respond(w, http.StatusOK, po, err)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	h.respond(w, http.StatusOK, map[string]bool{"success": true}, h.service.Delete(r.Context(), id))
}

func (h *Handler) ListLines(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	lines, err := h.service.Lines(r.Context(), id)
	if lines == nil {
		lines = []Line{}
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

func (h *Handler) OrderPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	req := ListVendorPaymentsRequest{PurchaseOrderID: id, Page: shared.PageFromRequest(r)}
	items, total, err := h.service.Payments(r.Context(), req)
	h.respond(w, http.StatusOK, shared.NewListResponse(items, req.Page, total), err)
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	req := ListVendorPaymentsRequest{
		PurchaseOrderID: queryInt64(r, "purchaseOrderId"),
		ContactID:       queryInt64(r, "contactId"),
		Page:            shared.PageFromRequest(r),
	}
	items, total, err := h.service.Payments(r.Context(), req)
	h.respond(w, http.StatusOK, shared.NewListResponse(items, req.Page, total), err)
}

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreateVendorPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.service.RecordPayment(r.Context(), req)
	h.respond(w, http.StatusCreated, p, err)
}

func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	h.respond(w, http.StatusOK, map[string]bool{"success": true}, h.service.DeletePayment(r.Context(), id))
}
