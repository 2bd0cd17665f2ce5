package invoices

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-books/internal/rbac"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

// IdempotencyHeader carries the client supplied idempotency key.
const IdempotencyHeader = "Idempotency-Key"

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validate, rbac: rbac}
}

// decode reads and validates a JSON body, answering the request on failure.
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

func queryInt64(r *http.Request, key string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	return v
}

func (h *Handler) respond(w http.ResponseWriter, status int, v any, err error) {
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, status, v)
}

// ---- invoices ----

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	req := ListInvoicesRequest{
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
	inv, err := h.service.Get(r.Context(), id)
	h.respond(w, http.StatusOK, inv, err)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	inv, err := h.service.Create(r.Context(), req)
	h.respond(w, http.StatusCreated, inv, err)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req UpdateInvoiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	inv, err := h.service.Update(r.Context(), id, req)
	h.respond(w, http.StatusOK, inv, err)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	h.respond(w, http.StatusOK, map[string]bool{"success": true}, h.service.Delete(r.Context(), id))
}

// ---- line items ----

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

// ---- payments ----

func (h *Handler) InvoicePayments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	req := ListPaymentsRequest{InvoiceID: id, Page: shared.PageFromRequest(r)}
	items, total, err := h.service.Payments(r.Context(), req)
	h.respond(w, http.StatusOK, shared.NewListResponse(items, req.Page, total), err)
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	req := ListPaymentsRequest{
		InvoiceID: queryInt64(r, "invoiceId"),
		ContactID: queryInt64(r, "contactId"),
		Status:    r.URL.Query().Get("status"),
		Page:      shared.PageFromRequest(r),
	}
	if err := httpx.Validate(h.validate, req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	items, total, err := h.service.Payments(r.Context(), req)
	h.respond(w, http.StatusOK, shared.NewListResponse(items, req.Page, total), err)
}

func (h *Handler) ShowPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	p, err := h.service.Payment(r.Context(), id)
	h.respond(w, http.StatusOK, p, err)
}

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.IdempotencyKey = strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	p, replayed, err := h.service.RecordPayment(r.Context(), req)
	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	h.respond(w, status, p, err)
}

func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req UpdatePaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.service.UpdatePayment(r.Context(), id, req)
	h.respond(w, http.StatusOK, p, err)
}

func (h *Handler) ApprovePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	p, err := h.service.ApprovePayment(r.Context(), id)
	h.respond(w, http.StatusOK, map[string]any{"success": true, "payment": p}, err)
}

func (h *Handler) RejectPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	p, err := h.service.RejectPayment(r.Context(), id)
	h.respond(w, http.StatusOK, map[string]any{"success": true, "payment": p}, err)
}

func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	h.respond(w, http.StatusOK, map[string]bool{"success": true}, h.service.DeletePayment(r.Context(), id))
}

// ---- credits ----

func (h *Handler) ListCredits(w http.ResponseWriter, r *http.Request) {
	req := ListCreditsRequest{
		InvoiceID:  queryInt64(r, "invoiceId"),
		EstimateID: queryInt64(r, "estimateId"),
		ContactID:  queryInt64(r, "contactId"),
		Page:       shared.PageFromRequest(r),
	}
	items, total, err := h.service.Credits(r.Context(), req)
	h.respond(w, http.StatusOK, shared.NewListResponse(items, req.Page, total), err)
}

func (h *Handler) CreateCredit(w http.ResponseWriter, r *http.Request) {
	var req CreateCreditRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.service.ApplyCredit(r.Context(), req)
	h.respond(w, http.StatusCreated, c, err)
}

func (h *Handler) DeleteCredit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	h.respond(w, http.StatusOK, map[string]bool{"success": true}, h.service.DeleteCredit(r.Context(), id))
}
