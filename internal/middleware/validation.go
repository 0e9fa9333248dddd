package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/sheetsmith/sheetsmith/internal/apperr"
)

// IsUserID reports whether s is an identity provider user id (a UUID).
func IsUserID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil && len(s) == 36
}

// IsKeyID reports whether s is an API key id (a ULID).
func IsKeyID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// ValidatePathParam rejects requests whose chi URL parameter name fails
// valid with 400 INVALID_ID before they reach the handler.
func ValidatePathParam(name string, valid func(string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !valid(chi.URLParam(r, name)) {
				writeError(w, apperr.Validation("INVALID_ID", "malformed "+name))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
