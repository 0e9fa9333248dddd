package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/sheetsmith/sheetsmith/internal/apperr"
)

// Shared failures written by the authentication middleware. Every auth
// failure uses the same body so callers cannot probe which check failed.
var (
	errUnauthorized    = apperr.Unauthorized("UNAUTHORIZED", "invalid or missing credentials")
	errNotAdmin        = apperr.Forbidden("FORBIDDEN", "admin access required")
	errInvalidTracking = apperr.Unauthorized("UNAUTHORIZED", "invalid or missing tracking key")
)

// writeError renders err as the standard JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	status, body := apperr.ToBody(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
