package webhook

import (
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
)

// SecretHeader carries the shared webhook secret.
const SecretHeader = "X-Webhook-Secret"

type Handler struct {
	logger       *slog.Logger
	service      *Service
	validate     *validator.Validate
	secret       []byte
	internalOnly bool
}

// NewHandler builds the receiver. An empty secret disables the endpoint.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, secret string, internalOnly bool) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validate, secret: []byte(secret), internalOnly: internalOnly}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/webhook", h.Receive)
}

func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	if len(h.secret) == 0 {
		httpx.RespondError(w, h.logger, fmt.Errorf("%w: webhook receiver is disabled", httpx.ErrNotFound))
		return
	}
	if h.internalOnly && !internalPeer(r.RemoteAddr) {
		h.logger.Warn("webhook from external address", slog.String("remote", r.RemoteAddr))
		httpx.RespondError(w, h.logger, fmt.Errorf("%w: webhook is restricted to internal callers", httpx.ErrForbidden))
		return
	}
	if !hmac.Equal([]byte(r.Header.Get(SecretHeader)), h.secret) {
		httpx.RespondError(w, h.logger, fmt.Errorf("%w: invalid webhook secret", httpx.ErrUnauthorized))
		return
	}

	var payload Payload
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		httpx.RespondError(w, h.logger, fmt.Errorf("%w: malformed request body", httpx.ErrValidation))
		return
	}
	if err := httpx.Validate(h.validate, payload); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	ev, err := payload.Event()
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.Process(r.Context(), ev); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]bool{"success": true})
}

// internalPeer reports whether remote is a loopback or private address.
func internalPeer(remote string) bool {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate()
}
