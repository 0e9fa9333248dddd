package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sheetsmith/sheetsmith/internal/cache"
	"github.com/sheetsmith/sheetsmith/internal/entitlement"
	"github.com/sheetsmith/sheetsmith/internal/identity"
	"github.com/sheetsmith/sheetsmith/internal/model"
	"github.com/sheetsmith/sheetsmith/internal/repository"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// memStore is an in-memory ProfileStore. The mutex stands in for the row lock.
type memStore struct {
	mu       sync.Mutex
	profiles map[string]*model.Profile
	deleted  []string
	failAll  error
}

func newMemStore(ps ...*model.Profile) *memStore {
	s := &memStore{profiles: make(map[string]*model.Profile)}
	for _, p := range ps {
		s.profiles[p.ID] = p
	}
	return s
}

func clone(p *model.Profile) *model.Profile {
	c := *p
	return &c
}

func (s *memStore) GetProfile(_ context.Context, id string) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	p, ok := s.profiles[id]
	if !ok {
		return nil, repository.ErrProfileNotFound
	}
	return clone(p), nil
}

func (s *memStore) EnsureProfile(_ context.Context, p *model.Profile) (*model.Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.profiles[p.ID]; ok {
		if p.EmailVerified {
			existing.EmailVerified = true
		}
		return clone(existing), false, nil
	}
	for _, existing := range s.profiles {
		if existing.Email == p.Email {
			return nil, false, repository.ErrEmailExists
		}
	}
	s.profiles[p.ID] = clone(p)
	return clone(p), true, nil
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
	return clone(p), nil
}

func (s *memStore) SetAdmin(_ context.Context, id string, isAdmin bool) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, repository.ErrProfileNotFound
	}
	p.IsAdmin = isAdmin
	return clone(p), nil
}

func (s *memStore) WithProfileForUpdate(_ context.Context, id string, fn func(p *model.Profile) error) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	p, ok := s.profiles[id]
	if !ok {
		return nil, repository.ErrProfileNotFound
	}
	work := clone(p)
	if err := fn(work); err != nil {
		return nil, err
	}
	s.profiles[id] = work
	return clone(work), nil
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
		out = append(out, clone(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
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
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *memStore) CountByTier(context.Context) (map[entitlement.Tier]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[entitlement.Tier]int64)
	for _, t := range entitlement.ValidTiers {
		out[t] = 0
	}
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
	return &model.InstallationStats{Installed: 3, Uninstalled: 1, Active: 2}, nil
}

func (s *memStore) get(id string) *model.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[id]; ok {
		return clone(p)
	}
	return nil
}

type memCache struct {
	mu          sync.Mutex
	profiles    map[string]*model.Profile
	invalidated []string
	authDropped []string
}

func newMemCache() *memCache { return &memCache{profiles: make(map[string]*model.Profile)} }

func (c *memCache) GetProfile(_ context.Context, id string) (*model.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.profiles[id]; ok {
		return clone(p), nil
	}
	return nil, cache.ErrCacheMiss
}

func (c *memCache) SetProfile(_ context.Context, p *model.Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles[p.ID] = clone(p)
	return nil
}

func (c *memCache) InvalidateProfile(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.profiles, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

func (c *memCache) InvalidateUserAuthContexts(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authDropped = append(c.authDropped, userID)
	return nil
}

type fakeIdentity struct {
	session   *identity.Session
	signInErr error
	deleteErr error
	deleted   []string
}

func (f *fakeIdentity) SignUp(_ context.Context, email, _ string) (*identity.User, error) {
	return &identity.User{ID: "new-user", Email: email}, nil
}

func (f *fakeIdentity) SignIn(context.Context, string, string) (*identity.Session, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return f.session, nil
}

func (f *fakeIdentity) VerifyEmail(context.Context, string, string) (*identity.Session, error) {
	return f.session, nil
}

func (f *fakeIdentity) DeleteUser(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

type recordingNotifier struct {
	mu       sync.Mutex
	approved []string
	revoked  []string
	deleted  []string
	err      error
}

func (n *recordingNotifier) BetaApproved(_ context.Context, p *model.Profile) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.approved = append(n.approved, p.ID)
	return n.err
}

func (n *recordingNotifier) BetaRevoked(_ context.Context, p *model.Profile) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.revoked = append(n.revoked, p.ID)
	return n.err
}

func (n *recordingNotifier) AccountDeleted(_ context.Context, email, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deleted = append(n.deleted, email)
	return n.err
}

var errDatabaseDown = errors.New("dial tcp: connection refused")

func verifiedSession(id, email string) *identity.Session {
	confirmed := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	return &identity.Session{
		AccessToken: "token",
		User:        identity.User{ID: id, Email: email, EmailConfirmedAt: &confirmed},
	}
}
