package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sheetsmith/sheetsmith/internal/auth"
	"github.com/sheetsmith/sheetsmith/internal/cache"
	"github.com/sheetsmith/sheetsmith/internal/model"
)

// minAuthDuration pads every API-key check so response timing does not
// reveal which step rejected a key.
const minAuthDuration = 200 * time.Millisecond

// KeyStore looks up stored API keys.
type KeyStore interface {
	GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
}

// AuthCache caches resolved API-key principals by key fingerprint.
type AuthCache interface {
	GetAuthContext(ctx context.Context, fingerprint string) (*model.AuthContext, error)
	SetAuthContext(ctx context.Context, fingerprint string, a *model.AuthContext) error
}

// AuthConfig configures Auth.
type AuthConfig struct {
	Logger *slog.Logger
	Keys   KeyStore
	Cache  AuthCache
	// MinDuration overrides minAuthDuration; tests set it to a tiny value.
	MinDuration time.Duration
}

// Auth authenticates add-on requests by API key, from either
// "Authorization: Bearer sk_..." or "X-API-Key".
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	minDuration := cfg.MinDuration
	if minDuration == 0 {
		minDuration = minAuthDuration
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			pad := func() {
				if elapsed := time.Since(start); elapsed < minDuration {
					time.Sleep(minDuration - elapsed)
				}
			}

			a, reason, err := authenticate(r.Context(), cfg, extractAPIKey(r))
			if a == nil {
				attrs := []any{
					"reason", reason,
					"ip", r.RemoteAddr,
					"endpoint", r.Method + " " + r.URL.Path,
					"request_id", GetRequestID(r.Context()),
				}
				if err != nil {
					cfg.Logger.Error("api key lookup failed", append(attrs, "error", err)...)
				} else {
					cfg.Logger.Warn("authentication failed", attrs...)
				}
				pad()
				writeError(w, errUnauthorized)
				return
			}
			pad()

			annotate(r.Context(), a.UserID, "api_key")
			next.ServeHTTP(w, r.WithContext(auth.WithAPIKey(r.Context(), a)))
		})
	}
}

// authenticate resolves key to a principal. On failure it returns a nil
// principal and a log reason.
func authenticate(ctx context.Context, cfg AuthConfig, key string) (*model.AuthContext, string, error) {
	if key == "" {
		return nil, "missing_key", nil
	}
	parsed, err := auth.ParseAPIKey(key)
	if err != nil {
		return nil, "invalid_format", nil
	}

	fingerprint := auth.Fingerprint(key)
	if cached, err := cfg.Cache.GetAuthContext(ctx, fingerprint); err == nil {
		return cached, "", nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		cfg.Logger.Warn("auth cache read failed", "error", err)
	}

	candidates, err := cfg.Keys.GetAPIKeysByPrefix(ctx, parsed.Prefix)
	if err != nil {
		return nil, "lookup_error", err
	}

	var matched *model.APIKey
	for _, k := range candidates {
		if ok, err := auth.VerifySecret(key, k.KeyHash); err == nil && ok {
			matched = k
			break
		}
	}
	if matched == nil {
		return nil, "invalid_key", nil
	}

	a := &model.AuthContext{
		KeyID:     matched.ID,
		KeyPrefix: matched.KeyPrefix,
		UserID:    matched.UserID,
		Scopes:    matched.Scopes,
	}
	if err := cfg.Cache.SetAuthContext(ctx, fingerprint, a); err != nil {
		cfg.Logger.Warn("auth cache write failed", "key_id", a.KeyID, "error", err)
	}

	go func(id string) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := cfg.Keys.UpdateAPIKeyLastUsed(ctx, id); err != nil {
			cfg.Logger.Debug("last_used_at update failed", "key_id", id, "error", err)
		}
	}(matched.ID)

	return a, "", nil
}

func extractAPIKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer sk_") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
