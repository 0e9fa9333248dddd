package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sheetsmith/sheetsmith/internal/auth"
	"github.com/sheetsmith/sheetsmith/internal/identity"
	"github.com/sheetsmith/sheetsmith/internal/model"
)

// SessionVerifier validates identity provider access tokens.
type SessionVerifier interface {
	Verify(token string) (*model.Session, error)
}

// Session authenticates dashboard requests by bearer access token.
func Session(v SessionVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := identity.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, errUnauthorized)
				return
			}
			sess, err := v.Verify(token)
			if err != nil {
				logger.Warn("session rejected",
					"error", err,
					"endpoint", r.Method+" "+r.URL.Path,
					"request_id", GetRequestID(r.Context()),
				)
				writeError(w, err)
				return
			}

			annotate(r.Context(), sess.UserID, "session")
			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), sess)))
		})
	}
}

// ProfileLoader resolves the profile of a session, creating it if needed.
type ProfileLoader func(ctx context.Context, sess *model.Session) (*model.Profile, error)

// AdminConfig configures RequireAdmin.
type AdminConfig struct {
	Logger *slog.Logger
	Load   ProfileLoader
	// IsAdminEmail reports allow-listed addresses that are admins regardless
	// of the stored flag.
	IsAdminEmail func(email string) bool
}

// RequireAdmin admits sessions whose profile has is_admin set or whose
// email is allow-listed. Must run after Session. The loaded profile is put
// on the context.
func RequireAdmin(cfg AdminConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := auth.SessionFrom(r.Context())
			if sess == nil {
				writeError(w, errUnauthorized)
				return
			}
			p, err := cfg.Load(r.Context(), sess)
			if err != nil {
				writeError(w, err)
				return
			}

			allowListed := cfg.IsAdminEmail != nil && sess.EmailVerified && cfg.IsAdminEmail(sess.Email)
			if !p.IsAdmin && !allowListed {
				cfg.Logger.Warn("admin access denied",
					"user_id", sess.UserID,
					"endpoint", r.Method+" "+r.URL.Path,
					"request_id", GetRequestID(r.Context()),
				)
				writeError(w, errNotAdmin)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithProfile(r.Context(), p)))
		})
	}
}
