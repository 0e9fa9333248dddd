package auth

import (
	"context"

	"github.com/sheetsmith/sheetsmith/internal/model"
)

type contextKey int

const (
	apiKeyKey contextKey = iota
	sessionKey
	profileKey
)

// WithAPIKey attaches an API key principal.
func WithAPIKey(ctx context.Context, a *model.AuthContext) context.Context {
	return context.WithValue(ctx, apiKeyKey, a)
}

// APIKeyFrom returns the API key principal, or nil.
func APIKeyFrom(ctx context.Context) *model.AuthContext {
	a, _ := ctx.Value(apiKeyKey).(*model.AuthContext)
	return a
}

// WithSession attaches a session principal.
func WithSession(ctx context.Context, s *model.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFrom returns the session principal, or nil.
func SessionFrom(ctx context.Context) *model.Session {
	s, _ := ctx.Value(sessionKey).(*model.Session)
	return s
}

// WithProfile attaches the caller's loaded profile. Admin middleware sets it
// so handlers do not load it twice.
func WithProfile(ctx context.Context, p *model.Profile) context.Context {
	return context.WithValue(ctx, profileKey, p)
}

// ProfileFrom returns the caller's loaded profile, or nil.
func ProfileFrom(ctx context.Context) *model.Profile {
	p, _ := ctx.Value(profileKey).(*model.Profile)
	return p
}

// UserIDFrom returns the caller's user id from whichever principal is
// present, preferring the session.
func UserIDFrom(ctx context.Context) string {
	if s := SessionFrom(ctx); s != nil {
		return s.UserID
	}
	if a := APIKeyFrom(ctx); a != nil {
		return a.UserID
	}
	return ""
}
