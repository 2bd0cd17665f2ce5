// Package sharedtest holds request helpers for handler tests.
package sharedtest

import (
	"net/http"
	"strconv"

	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

// WithSession injects a signed-in session for userID and role.
func WithSession(userID int64, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := &shared.Session{}
			sess.SetUser(strconv.FormatInt(userID, 10))
			sess.SetRole(role)
			next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
		})
	}
}
