package middleware

import (
	"net/http"

	"github.com/sheetsmith/sheetsmith/internal/apperr"
	"github.com/sheetsmith/sheetsmith/internal/auth"
)

// RequireScope admits API keys holding any of the given scopes (admin
// implies all). Must run after Auth.
func RequireScope(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a := auth.APIKeyFrom(r.Context())
			if a == nil {
				writeError(w, errUnauthorized)
				return
			}
			for _, s := range required {
				if a.HasScope(s) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, apperr.Forbidden("INSUFFICIENT_SCOPE", "API key lacks the "+required[0]+" scope"))
		})
	}
}
