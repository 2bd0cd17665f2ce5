package portal

import (
	"context"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
)

type ctxKey struct{}

type tokenKey struct{}

// ContactID returns the signed-in portal contact, or 0.
func ContactID(ctx context.Context) int64 {
	id, _ := ctx.Value(ctxKey{}).(int64)
	return id
}

// ContextWithContact scopes ctx to a portal contact.
func ContextWithContact(ctx context.Context, contactID int64) context.Context {
	return context.WithValue(ctx, ctxKey{}, contactID)
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireContact rejects requests without a live portal token.
func (h *Handler) RequireContact(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		contactID, err := h.service.Authenticate(r.Context(), token)
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		ctx := ContextWithContact(r.Context(), contactID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, tokenKey{}, token)))
	})
}
