package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sheetsmith/sheetsmith/internal/apperr"
	"github.com/sheetsmith/sheetsmith/internal/auth"
	"github.com/sheetsmith/sheetsmith/internal/model"
)

const maxKeyName = 100

// APIKeyStore persists add-on API keys.
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	GetAPIKeyByID(ctx context.Context, id string) (*model.APIKey, error)
	ListAPIKeysByUserID(ctx context.Context, userID string) ([]*model.APIKey, error)
	RevokeAPIKey(ctx context.Context, id, userID string) (time.Time, error)
	RotateAPIKey(ctx context.Context, oldID string, replacement *model.APIKey) (time.Time, error)
}

// AuthInvalidator drops cached API-key principals for a user.
type AuthInvalidator interface {
	InvalidateUserAuthContexts(ctx context.Context, userID string) error
}

// APIKeyService issues and revokes add-on API keys for a profile.
type APIKeyService struct {
	store  APIKeyStore
	cache  AuthInvalidator
	logger *slog.Logger
	env    string
	now    func() time.Time
}

// NewAPIKeyService creates an APIKeyService. env selects live or test keys.
func NewAPIKeyService(store APIKeyStore, c AuthInvalidator, env string, logger *slog.Logger) *APIKeyService {
	if c == nil {
		c = noCache{}
	}
	return &APIKeyService{
		store:  store,
		cache:  c,
		logger: logger.With("component", "apikey"),
		env:    env,
		now:    utcNow,
	}
}

// Create mints a key for userID. The plaintext is only ever returned here.
func (s *APIKeyService) Create(ctx context.Context, userID string, req model.APIKeyCreateRequest) (*model.APIKeyCreateResponse, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	scopes, err := normalizeScopes(req.Scopes)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if len(name) > maxKeyName {
		return nil, apperr.Validation("INVALID_NAME", fmt.Sprintf("name must be at most %d characters", maxKeyName))
	}

	key, plaintext, err := s.mint(userID, name, scopes)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, storeErr(err)
	}

	s.logger.Info("API key created", "key_id", key.ID, "key_prefix", key.KeyPrefix, "user_id", userID)
	return createResponse(key, plaintext), nil
}

// List returns all keys of userID, revoked ones included.
func (s *APIKeyService) List(ctx context.Context, userID string) ([]model.APIKeyResponse, error) {
	keys, err := s.store.ListAPIKeysByUserID(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]model.APIKeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.ToResponse())
	}
	return out, nil
}

// Revoke revokes a live key owned by userID. Keys owned by someone else are
// reported as not found.
func (s *APIKeyService) Revoke(ctx context.Context, userID, keyID string) error {
	if _, err := s.store.RevokeAPIKey(ctx, keyID, userID); err != nil {
		return storeErr(err)
	}
	s.dropAuthCache(ctx, userID)
	s.logger.Info("API key revoked", "key_id", keyID, "user_id", userID)
	return nil
}

// Rotate replaces a live key with a new one carrying the same name and scopes.
func (s *APIKeyService) Rotate(ctx context.Context, userID, keyID string) (*model.APIKeyRotateResponse, error) {
	old, err := s.store.GetAPIKeyByID(ctx, keyID)
	if err != nil {
		return nil, storeErr(err)
	}
	if old.UserID != userID || old.IsRevoked() {
		return nil, ErrAPIKeyNotFound
	}

	key, plaintext, err := s.mint(userID, old.Name, old.Scopes)
	if err != nil {
		return nil, err
	}
	revokedAt, err := s.store.RotateAPIKey(ctx, old.ID, key)
	if err != nil {
		return nil, storeErr(err)
	}
	s.dropAuthCache(ctx, userID)

	s.logger.Info("API key rotated", "old_key_id", old.ID, "new_key_id", key.ID, "user_id", userID)
	return &model.APIKeyRotateResponse{
		OldKeyID:        old.ID,
		OldKeyRevokedAt: revokedAt,
		NewKey:          *createResponse(key, plaintext),
	}, nil
}

func (s *APIKeyService) mint(userID, name string, scopes []string) (*model.APIKey, string, error) {
	gen, err := auth.GenerateAPIKey(s.env)
	if err != nil {
		return nil, "", apperr.Internal(fmt.Errorf("generate API key: %w", err))
	}
	return &model.APIKey{
		ID:        ulid.Make().String(),
		UserID:    userID,
		KeyHash:   gen.Hash,
		KeyPrefix: gen.Prefix,
		Scopes:    scopes,
		Name:      name,
		CreatedAt: s.now(),
	}, gen.Plaintext, nil
}

func (s *APIKeyService) dropAuthCache(ctx context.Context, userID string) {
	if err := s.cache.InvalidateUserAuthContexts(ctx, userID); err != nil {
		s.logger.Warn("auth cache invalidation failed", "user_id", userID, "error", err)
	}
}

// normalizeScopes validates and de-duplicates scopes. The admin scope is
// never granted through self-service.
func normalizeScopes(scopes []string) ([]string, error) {
	if len(scopes) == 0 {
		return slices.Clone(model.DefaultScopes), nil
	}
	out := make([]string, 0, len(scopes))
	for _, sc := range scopes {
		sc = strings.ToLower(strings.TrimSpace(sc))
		if sc == model.ScopeAdmin || !slices.Contains(model.ValidScopes, sc) {
			return nil, ErrInvalidScope
		}
		if !slices.Contains(out, sc) {
			out = append(out, sc)
		}
	}
	return out, nil
}

func createResponse(k *model.APIKey, plaintext string) *model.APIKeyCreateResponse {
	return &model.APIKeyCreateResponse{
		ID:        k.ID,
		Key:       plaintext,
		Name:      k.Name,
		KeyPrefix: k.KeyPrefix,
		Scopes:    k.Scopes,
		CreatedAt: k.CreatedAt,
	}
}
