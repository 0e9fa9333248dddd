package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

// TrackingKeyHeader carries the static key of the installation tracker.
const TrackingKeyHeader = "X-Tracking-Key"

// TrackingKey admits requests presenting the configured static key. An
// empty configured key rejects everything.
func TrackingKey(key string, logger *slog.Logger) func(http.Handler) http.Handler {
	want := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(TrackingKeyHeader))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				logger.Warn("tracking key rejected",
					"ip", r.RemoteAddr,
					"request_id", GetRequestID(r.Context()),
				)
				writeError(w, errInvalidTracking)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
