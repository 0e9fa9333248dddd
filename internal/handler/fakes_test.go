package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sheetsmith/sheetsmith/internal/bridge"
	"github.com/sheetsmith/sheetsmith/internal/cache"
	"github.com/sheetsmith/sheetsmith/internal/entitlement"
	"github.com/sheetsmith/sheetsmith/internal/events"
	"github.com/sheetsmith/sheetsmith/internal/identity"
	"github.com/sheetsmith/sheetsmith/internal/model"
	"github.com/sheetsmith/sheetsmith/internal/repository"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// memStore is an in-memory profile and API key store.
type memStore struct {
	mu       sync.Mutex
	profiles map[string]*model.Profile
	keys     map[string]*model.APIKey
}

func newMemStore() *memStore {
	return &memStore{profiles: map[string]*model.Profile{}, keys: map[string]*model.APIKey{}}
}

func cloneProfile(p *model.Profile) *model.Profile { c := *p; return &c }
func cloneKey(k *model.APIKey) *model.APIKey      { c := *k; return &c }

func (s *memStore) GetProfile(_ context.Context, id string) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, repository.ErrProfileNotFound
	}
	return cloneProfile(p), nil
}

func (s *memStore) EnsureProfile(_ context.Context, p *model.Profile) (*model.Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.profiles[p.ID]; ok {
		return cloneProfile(existing), false, nil
	}
	s.profiles[p.ID] = cloneProfile(p)
	return cloneProfile(p), true, nil
}

func (s *memStore) UpdateProfileFields(_ context.Context, id string, upd model.ProfileUpdate) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, repository.ErrProfileNotFound
	}
	if upd.DisplayName != nil {
		p.DisplayName = *upd.DisplayName
	}
	if upd.NewsletterSubscribed != nil {
		p.NewsletterSubscribed = *upd.NewsletterSubscribed
	}
	return cloneProfile(p), nil
}

func (s *memStore) SetAdmin(_ context.Context, id string, isAdmin bool) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, repository.ErrProfileNotFound
	}
	p.IsAdmin = isAdmin
	return cloneProfile(p), nil
}

func (s *memStore) WithProfileForUpdate(_ context.Context, id string, fn func(p *model.Profile) error) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, repository.ErrProfileNotFound
	}
	work := cloneProfile(p)
	if err := fn(work); err != nil {
		return nil, err
	}
	s.profiles[id] = work
	return cloneProfile(work), nil
}

func (s *memStore) ListProfiles(_ context.Context, filter model.ProfileFilter, _ string, limit int) ([]*model.Profile, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Profile
	for _, p := range s.profiles {
		if filter.Tier != "" && p.Tier != filter.Tier {
			continue
		}
		if filter.BetaStatus != "" && p.BetaStatus() != filter.BetaStatus {
			continue
		}
		out = append(out, cloneProfile(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		return out[:limit], out[limit-1].ID, nil
	}
	return out, "", nil
}

func (s *memStore) ListPendingBeta(ctx context.Context, limit int) ([]*model.Profile, error) {
	out, _, err := s.ListProfiles(ctx, model.ProfileFilter{BetaStatus: entitlement.BetaPending}, "", limit)
	return out, err
}

func (s *memStore) DeleteProfile(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[id]; !ok {
		return repository.ErrProfileNotFound
	}
	delete(s.profiles, id)
	for kid, k := range s.keys {
		if k.UserID == id {
			delete(s.keys, kid)
		}
	}
	return nil
}

func (s *memStore) CountByTier(context.Context) (map[entitlement.Tier]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[entitlement.Tier]int64{}
	for _, p := range s.profiles {
		out[p.Tier]++
	}
	return out, nil
}

func (s *memStore) CountPendingBeta(ctx context.Context) (int64, error) {
	out, err := s.ListPendingBeta(ctx, 1000)
	return int64(len(out)), err
}

func (s *memStore) InstallationStats(context.Context) (*model.InstallationStats, error) {
	return &model.InstallationStats{}, nil
}

func (s *memStore) CreateAPIKey(_ context.Context, k *model.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[k.ID] = cloneKey(k)
	return nil
}

func (s *memStore) GetAPIKeyByID(_ context.Context, id string) (*model.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return nil, repository.ErrAPIKeyNotFound
	}
	return cloneKey(k), nil
}

func (s *memStore) ListAPIKeysByUserID(_ context.Context, userID string) ([]*model.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.APIKey
	for _, k := range s.keys {
		if k.UserID == userID {
			out = append(out, cloneKey(k))
		}
	}
	return out, nil
}

func (s *memStore) revoke(id, userID string) (time.Time, error) {
	k, ok := s.keys[id]
	if !ok || k.UserID != userID || k.IsRevoked() {
		return time.Time{}, repository.ErrAPIKeyNotFound
	}
	now := time.Now().UTC()
	k.RevokedAt = &now
	return now, nil
}

func (s *memStore) RevokeAPIKey(_ context.Context, id, userID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoke(id, userID)
}

func (s *memStore) RotateAPIKey(_ context.Context, oldID string, replacement *model.APIKey) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, err := s.revoke(oldID, replacement.UserID)
	if err != nil {
		return time.Time{}, err
	}
	s.keys[replacement.ID] = cloneKey(replacement)
	return at, nil
}

func (s *memStore) GetAPIKeysByPrefix(_ context.Context, prefix string) ([]*model.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix && !k.IsRevoked() {
			out = append(out, cloneKey(k))
		}
	}
	return out, nil
}

func (s *memStore) UpdateAPIKeyLastUsed(context.Context, string) error { return nil }

// noAuthCache never caches, so revocations apply immediately.
type noAuthCache struct{}

func (noAuthCache) GetAuthContext(context.Context, string) (*model.AuthContext, error) {
	return nil, cache.ErrCacheMiss
}
func (noAuthCache) SetAuthContext(context.Context, string, *model.AuthContext) error { return nil }

type fakeIdentity struct {
	mu        sync.Mutex
	sessions  map[string]*identity.Session // by email
	deleteErr error
	deleted   []string
}

func (f *fakeIdentity) SignUp(_ context.Context, email, _ string) (*identity.User, error) {
	return &identity.User{ID: "7d3f0c8e-5b1a-4f2e-8c6d-9a0b1c2d3e4f", Email: email}, nil
}

func (f *fakeIdentity) SignIn(_ context.Context, email, _ string) (*identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[email]; ok {
		return s, nil
	}
	return nil, identity.ErrInvalidCredentials
}

func (f *fakeIdentity) VerifyEmail(context.Context, string, string) (*identity.Session, error) {
	return nil, identity.ErrInvalidToken
}

func (f *fakeIdentity) DeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

// fakeVerifier maps bearer tokens to sessions.
type fakeVerifier map[string]*model.Session

func (f fakeVerifier) Verify(token string) (*model.Session, error) {
	if s, ok := f[token]; ok {
		return s, nil
	}
	return nil, identity.ErrInvalidSession
}

// echoCaller returns the arguments it was called with.
type echoCaller struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (c *echoCaller) Call(_ context.Context, fn bridge.Function, _, _ string, args json.RawMessage) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, fn.Name)
	if c.err != nil {
		return nil, c.err
	}
	return args, nil
}

func (c *echoCaller) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// memPublisher validates events like the Redis publisher and keeps them.
type memPublisher struct {
	mu     sync.Mutex
	events []events.Payload
	err    error
}

func (p *memPublisher) Publish(_ context.Context, e events.Payload) (string, error) {
	if err := events.Validate(e); err != nil {
		return "", err
	}
	if p.err != nil {
		return "", p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return "1700000000000-0", nil
}
