package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sheetsmith/sheetsmith/internal/apperr"
	"github.com/sheetsmith/sheetsmith/internal/auth"
	"github.com/sheetsmith/sheetsmith/internal/cache"
)

// RateLimiter is the token-bucket store behind the rate limit middleware.
type RateLimiter interface {
	CheckAPIRateLimit(ctx context.Context, keyID string, ratePerMinute, burst int) (*cache.RateLimitResult, error)
	CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*cache.RateLimitResult, error)
}

// RateLimitConfig configures RateLimitAPI and RateLimitIP.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter RateLimiter

	APIEnabled bool
	APIRPM     int
	APIBurst   int

	IPEnabled bool
	IPRPS     int
	IPBurst   int
}

// RateLimitAPI limits requests per API key. Must run after Auth.
func RateLimitAPI(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a := auth.APIKeyFrom(r.Context())
			if !cfg.APIEnabled || a == nil {
				next.ServeHTTP(w, r)
				return
			}

			res, err := cfg.Limiter.CheckAPIRateLimit(r.Context(), a.KeyID, cfg.APIRPM, cfg.APIBurst)
			if err != nil {
				cfg.Logger.Error("rate limit check failed", "key_id", a.KeyID, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.APIRPM))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if !res.Allowed {
				cfg.Logger.Warn("rate limit exceeded",
					"type", "api",
					"key_id", a.KeyID,
					"endpoint", r.Method+" "+r.URL.Path,
					"request_id", GetRequestID(r.Context()),
				)
				writeRateLimited(w, res.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitIP limits requests per client IP. It guards the unauthenticated
// sign-in and sign-up routes.
func RateLimitIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.IPEnabled {
				next.ServeHTTP(w, r)
				return
			}

			ip := ClientIP(r)
			res, err := cfg.Limiter.CheckIPRateLimit(r.Context(), ip, cfg.IPRPS, cfg.IPBurst)
			if err != nil {
				cfg.Logger.Error("IP rate limit check failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				cfg.Logger.Warn("rate limit exceeded",
					"type", "ip",
					"endpoint", r.Method+" "+r.URL.Path,
					"request_id", GetRequestID(r.Context()),
				)
				writeRateLimited(w, res.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeError(w, apperr.New(apperr.KindQuotaExceeded, "RATE_LIMITED",
		"rate limit exceeded; retry after "+strconv.Itoa(secs)+" seconds"))
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
