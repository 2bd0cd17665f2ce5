package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validate       *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager, validate *validator.Validate) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		validate:       validate,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Get("/session", h.Session)
		r.Get("/csrf", h.CSRF)
	})
}

// Login signs the user in. The session id is rotated and the role copied into
// the session so RBAC checks need no database round trip.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.RespondError(w, h.logger, errors.New("session missing during login"))
		return
	}
	var req LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := httpx.Validate(h.validate, req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Info("login rejected", slog.String("email", req.Email))
		httpx.RespondError(w, h.logger, fmt.Errorf("%w: invalid email or password", httpx.ErrUnauthorized))
		return
	}
	sess.Rotate()
	sess.SetUser(strconv.FormatInt(user.ID, 10))
	sess.SetRole(user.Role)
	token, err := h.csrfManager.Rotate(sess)
	if err != nil {
		httpx.RespondError(w, h.logger, fmt.Errorf("rotate csrf token: %w", err))
		return
	}
	h.logger.Info("login", slog.Int64("user_id", user.ID))
	httpx.JSON(w, http.StatusOK, SessionResponse{Authenticated: true, User: user, CSRFToken: token})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessionManager.Destroy(sess)
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	userID := shared.ActorID(r.Context())
	if userID == 0 {
		httpx.JSON(w, http.StatusOK, SessionResponse{})
		return
	}
	user, err := h.service.User(r.Context(), userID)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			h.sessionManager.Destroy(shared.SessionFromContext(r.Context()))
			httpx.JSON(w, http.StatusOK, SessionResponse{})
			return
		}
		httpx.RespondError(w, h.logger, err)
		return
	}
	token, _ := h.csrfManager.EnsureToken(r.Context(), shared.SessionFromContext(r.Context()))
	httpx.JSON(w, http.StatusOK, SessionResponse{Authenticated: true, User: user, CSRFToken: token})
}

// CSRF returns the token bound to the current session, creating one if needed.
func (h *Handler) CSRF(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrfManager.EnsureToken(r.Context(), shared.SessionFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}
