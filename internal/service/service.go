// Package service holds the business logic behind the HTTP routes and the
// operator CLI.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sheetsmith/sheetsmith/internal/apperr"
	"github.com/sheetsmith/sheetsmith/internal/cache"
	"github.com/sheetsmith/sheetsmith/internal/entitlement"
	"github.com/sheetsmith/sheetsmith/internal/model"
	"github.com/sheetsmith/sheetsmith/internal/repository"
)

// Service errors.
var (
	ErrProfileNotFound  = apperr.NotFound("PROFILE_NOT_FOUND", "profile not found")
	ErrAPIKeyNotFound   = apperr.NotFound("KEY_NOT_FOUND", "API key not found or already revoked")
	ErrSelfDelete       = apperr.Forbidden("SELF_DELETE_FORBIDDEN", "admins cannot delete their own account from the admin console")
	ErrSelfDemote       = apperr.Forbidden("SELF_DEMOTE_FORBIDDEN", "admins cannot remove their own admin flag")
	ErrEmailExists      = apperr.Validation("EMAIL_EXISTS", "a profile with this email already exists")
	ErrInvalidCursor    = apperr.Validation("INVALID_CURSOR", "invalid pagination cursor")
	ErrInvalidEmail     = apperr.Validation("INVALID_EMAIL", "a valid email address is required")
	ErrWeakPassword     = apperr.Validation("WEAK_PASSWORD", "password must be at least 8 characters")
	ErrInvalidName      = apperr.Validation("INVALID_DISPLAY_NAME", "display name must be at most 100 characters")
	ErrEmptyUpdate      = apperr.Validation("EMPTY_UPDATE", "no updatable fields provided")
	ErrInvalidScope     = apperr.Validation("INVALID_SCOPE", "invalid scope; valid scopes: usage, bridge, admin")
	ErrInvalidFilter    = apperr.Validation("INVALID_FILTER", "unknown beta status filter")
	ErrMissingUserID    = apperr.Validation("MISSING_USER_ID", "user id is required")
	ErrEmailNotVerified = apperr.Forbidden("EMAIL_NOT_VERIFIED", "email address has not been verified")
)

// ProfileStore is the profile persistence the services need.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*model.Profile, error)
	EnsureProfile(ctx context.Context, p *model.Profile) (*model.Profile, bool, error)
	UpdateProfileFields(ctx context.Context, id string, upd model.ProfileUpdate) (*model.Profile, error)
	SetAdmin(ctx context.Context, id string, isAdmin bool) (*model.Profile, error)
	WithProfileForUpdate(ctx context.Context, id string, fn func(p *model.Profile) error) (*model.Profile, error)
	ListProfiles(ctx context.Context, filter model.ProfileFilter, cursor string, limit int) ([]*model.Profile, string, error)
	ListPendingBeta(ctx context.Context, limit int) ([]*model.Profile, error)
	DeleteProfile(ctx context.Context, id string) error
	CountByTier(ctx context.Context) (map[entitlement.Tier]int64, error)
	CountPendingBeta(ctx context.Context) (int64, error)
	InstallationStats(ctx context.Context) (*model.InstallationStats, error)
}

// ProfileCache is the read-through cache in front of ProfileStore.
type ProfileCache interface {
	GetProfile(ctx context.Context, id string) (*model.Profile, error)
	SetProfile(ctx context.Context, p *model.Profile) error
	InvalidateProfile(ctx context.Context, id string) error
	InvalidateUserAuthContexts(ctx context.Context, userID string) error
}

type noCache struct{}

func (noCache) GetProfile(context.Context, string) (*model.Profile, error) {
	return nil, cache.ErrCacheMiss
}
func (noCache) SetProfile(context.Context, *model.Profile) error { return nil }
func (noCache) InvalidateProfile(context.Context, string) error { return nil }
func (noCache) InvalidateUserAuthContexts(context.Context, string) error { return nil }

// profiles reads profiles through the cache and keeps it coherent on writes.
type profiles struct {
	store  ProfileStore
	cache  ProfileCache
	logger *slog.Logger
}

func (p profiles) get(ctx context.Context, id string) (*model.Profile, error) {
	if id == "" {
		return nil, ErrMissingUserID
	}
	if cached, err := p.cache.GetProfile(ctx, id); err == nil {
		return cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		p.logger.Warn("profile cache read failed", "user_id", id, "error", err)
	}

	profile, err := p.store.GetProfile(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	if err := p.cache.SetProfile(ctx, profile); err != nil {
		p.logger.Warn("profile cache write failed", "user_id", id, "error", err)
	}
	return profile, nil
}

func (p profiles) invalidate(ctx context.Context, id string) {
	if err := p.cache.InvalidateProfile(ctx, id); err != nil {
		p.logger.Warn("profile cache invalidation failed", "user_id", id, "error", err)
	}
}

// storeErr classifies repository failures. Anything unrecognised is a
// failed database call.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrProfileNotFound):
		return ErrProfileNotFound
	case errors.Is(err, repository.ErrAPIKeyNotFound):
		return ErrAPIKeyNotFound
	case errors.Is(err, repository.ErrEmailExists):
		return ErrEmailExists
	case errors.Is(err, repository.ErrInvalidCursor):
		return ErrInvalidCursor
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Upstream("DATABASE_ERROR", "profile store unavailable", err)
}

func orNoop(c ProfileCache) ProfileCache {
	if c == nil {
		return noCache{}
	}
	return c
}

func utcNow() time.Time { return time.Now().UTC() }
