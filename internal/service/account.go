package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sheetsmith/sheetsmith/internal/entitlement"
	"github.com/sheetsmith/sheetsmith/internal/identity"
	"github.com/sheetsmith/sheetsmith/internal/metrics"
	"github.com/sheetsmith/sheetsmith/internal/model"
	"github.com/sheetsmith/sheetsmith/internal/notify"
)

const (
	minPasswordLength  = 8
	maxDisplayName     = 100
	defaultPageSize    = 50
	maxPageSize        = 100
	identityDeleteWarn = "account data was removed but the sign-in identity could not be deleted; contact support"
)

// IdentityProvider is the subset of the identity client the account flows use.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string) (*identity.User, error)
	SignIn(ctx context.Context, email, password string) (*identity.Session, error)
	VerifyEmail(ctx context.Context, tokenHash, kind string) (*identity.Session, error)
	DeleteUser(ctx context.Context, id string) error
}

// AccountService covers sign-up, profile self-service and admin user management.
type AccountService struct {
	profiles
	identity IdentityProvider
	notifier notify.Notifier
	metrics  metrics.Recorder
	now      func() time.Time
}

// NewAccountService creates an AccountService. cache, notifier and recorder
// may be nil.
func NewAccountService(store ProfileStore, c ProfileCache, idp IdentityProvider, notifier notify.Notifier, recorder metrics.Recorder, logger *slog.Logger) *AccountService {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &AccountService{
		profiles: profiles{store: store, cache: orNoop(c), logger: logger.With("component", "account")},
		identity: idp,
		notifier: notifier,
		metrics:  recorder,
		now:      utcNow,
	}
}

// AuthResult is the outcome of a sign-in or verification.
type AuthResult struct {
	Session *identity.Session
	Profile *model.Profile
}

// SignUp registers a new identity. The profile is created once the email is
// verified.
func (s *AccountService) SignUp(ctx context.Context, email, password string) (*identity.User, error) {
	email, err := validateCredentials(email, password, minPasswordLength)
	if err != nil {
		return nil, err
	}
	u, err := s.identity.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user signed up", "user_id", u.ID)
	return u, nil
}

// SignIn authenticates with the identity provider and ensures the profile
// exists for verified users.
func (s *AccountService) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	email, err := validateCredentials(email, password, 1)
	if err != nil {
		return nil, identity.ErrInvalidCredentials
	}
	sess, err := s.identity.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.afterAuth(ctx, sess)
}

// Verify redeems an email confirmation token. Verification is the point at
// which the profile is created.
func (s *AccountService) Verify(ctx context.Context, tokenHash, kind string) (*AuthResult, error) {
	if strings.TrimSpace(tokenHash) == "" {
		return nil, identity.ErrInvalidToken
	}
	sess, err := s.identity.VerifyEmail(ctx, tokenHash, kind)
	if err != nil {
		return nil, err
	}
	return s.afterAuth(ctx, sess)
}

func (s *AccountService) afterAuth(ctx context.Context, sess *identity.Session) (*AuthResult, error) {
	if !sess.User.EmailVerified() {
		return nil, ErrEmailNotVerified
	}
	p, err := s.ensure(ctx, sess.User.ID, sess.User.Email, true)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Session: sess, Profile: p}, nil
}

// Me returns the caller's profile, creating it on first use of a verified
// session.
func (s *AccountService) Me(ctx context.Context, sess *model.Session) (*model.Profile, error) {
	p, err := s.get(ctx, sess.UserID)
	if err == nil || !errors.Is(err, ErrProfileNotFound) {
		return p, err
	}
	if !sess.EmailVerified {
		return nil, ErrEmailNotVerified
	}
	return s.ensure(ctx, sess.UserID, sess.Email, true)
}

func (s *AccountService) ensure(ctx context.Context, id, email string, verified bool) (*model.Profile, error) {
	p, created, err := s.store.EnsureProfile(ctx, model.NewProfile(id, email, verified, s.now()))
	if err != nil {
		return nil, storeErr(err)
	}
	if created {
		s.logger.Info("profile created", "user_id", id, "tier", p.Tier)
	} else {
		s.invalidate(ctx, id)
	}
	return p, nil
}

// GetProfile returns a profile by id.
func (s *AccountService) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	return s.get(ctx, id)
}

// UpdateProfile applies self-service changes.
func (s *AccountService) UpdateProfile(ctx context.Context, id string, upd model.ProfileUpdate) (*model.Profile, error) {
	if upd.IsEmpty() {
		return nil, ErrEmptyUpdate
	}
	if upd.DisplayName != nil {
		name := strings.TrimSpace(*upd.DisplayName)
		if utf8.RuneCountInString(name) > maxDisplayName {
			return nil, ErrInvalidName
		}
		upd.DisplayName = &name
	}

	p, err := s.store.UpdateProfileFields(ctx, id, upd)
	if err != nil {
		return nil, storeErr(err)
	}
	s.invalidate(ctx, id)
	return p, nil
}

// DeletionResult reports a completed account deletion. The profile is always
// gone; IdentityDeleted is false when the identity provider call failed.
type DeletionResult struct {
	Deleted         bool   `json:"deleted"`
	IdentityDeleted bool   `json:"identity_deleted"`
	Warning         string `json:"warning,omitempty"`
}

// DeleteAccount removes the profile and its dependent rows, then the
// identity. An identity failure is logged and reported, not rolled back.
// With byAdmin set the actor may not target their own account.
func (s *AccountService) DeleteAccount(ctx context.Context, actorID, targetID string, byAdmin bool) (*DeletionResult, error) {
	if targetID == "" {
		return nil, ErrMissingUserID
	}
	if byAdmin && actorID == targetID {
		return nil, ErrSelfDelete
	}

	p, err := s.store.GetProfile(ctx, targetID)
	if err != nil {
		return nil, storeErr(err)
	}
	if err := s.store.DeleteProfile(ctx, targetID); err != nil {
		return nil, storeErr(err)
	}
	s.invalidate(ctx, targetID)
	if err := s.cache.InvalidateUserAuthContexts(ctx, targetID); err != nil {
		s.logger.Warn("auth cache invalidation failed", "user_id", targetID, "error", err)
	}

	res := &DeletionResult{Deleted: true, IdentityDeleted: true}
	if err := s.identity.DeleteUser(ctx, targetID); err != nil {
		res.IdentityDeleted = false
		res.Warning = identityDeleteWarn
		s.logger.Error("identity deletion failed after profile removal",
			"user_id", targetID,
			"actor_id", actorID,
			"error", err,
		)
	}

	s.metrics.IncAccountDeleted(res.IdentityDeleted)
	s.logger.Info("account deleted",
		"user_id", targetID,
		"actor_id", actorID,
		"by_admin", byAdmin,
		"identity_deleted", res.IdentityDeleted,
	)

	if err := s.notifier.AccountDeleted(ctx, p.Email, p.DisplayName); err != nil {
		s.logger.Warn("deletion notice failed", "user_id", targetID, "error", err)
	}
	return res, nil
}

// SetAdmin grants or removes the admin flag.
func (s *AccountService) SetAdmin(ctx context.Context, actorID, targetID string, isAdmin bool) (*model.Profile, error) {
	if targetID == "" {
		return nil, ErrMissingUserID
	}
	if !isAdmin && actorID == targetID {
		return nil, ErrSelfDemote
	}
	p, err := s.store.SetAdmin(ctx, targetID, isAdmin)
	if err != nil {
		return nil, storeErr(err)
	}
	s.invalidate(ctx, targetID)
	s.logger.Info("admin flag changed", "user_id", targetID, "actor_id", actorID, "is_admin", isAdmin)
	return p, nil
}

// UserPage is one page of an admin user listing.
type UserPage struct {
	Users      []*model.Profile
	NextCursor string
}

// ListUsers returns profiles matching filter, newest first.
func (s *AccountService) ListUsers(ctx context.Context, filter model.ProfileFilter, cursor string, limit int) (*UserPage, error) {
	if filter.Tier != "" && !filter.Tier.IsValid() {
		return nil, entitlement.ErrUnknownTier
	}
	switch filter.BetaStatus {
	case "", entitlement.BetaNoRequest, entitlement.BetaPending, entitlement.BetaApproved, entitlement.BetaRevoked:
	default:
		return nil, ErrInvalidFilter
	}
	filter.Email = strings.TrimSpace(filter.Email)

	users, next, err := s.store.ListProfiles(ctx, filter, cursor, clampLimit(limit))
	if err != nil {
		return nil, storeErr(err)
	}
	return &UserPage{Users: users, NextCursor: next}, nil
}

// ListBetaRequests returns pending beta requests, oldest first.
func (s *AccountService) ListBetaRequests(ctx context.Context, limit int) ([]*model.Profile, error) {
	users, err := s.store.ListPendingBeta(ctx, clampLimit(limit))
	if err != nil {
		return nil, storeErr(err)
	}
	return users, nil
}

// Stats summarises the user base for the admin console.
type Stats struct {
	Users         int64                      `json:"users"`
	ByTier        map[entitlement.Tier]int64 `json:"by_tier"`
	PendingBeta   int64                      `json:"pending_beta"`
	Installations *model.InstallationStats   `json:"installations"`
}

// Stats aggregates tier counts, pending beta requests and installations.
func (s *AccountService) Stats(ctx context.Context) (*Stats, error) {
	byTier, err := s.store.CountByTier(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	pending, err := s.store.CountPendingBeta(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	inst, err := s.store.InstallationStats(ctx)
	if err != nil {
		return nil, storeErr(err)
	}

	st := &Stats{ByTier: byTier, PendingBeta: pending, Installations: inst}
	for _, n := range byTier {
		st.Users += n
	}
	return st, nil
}

func validateCredentials(email, password string, minLen int) (string, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return "", ErrInvalidEmail
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	if utf8.RuneCountInString(password) < minLen {
		return "", ErrWeakPassword
	}
	return email, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageSize
	case limit > maxPageSize:
		return maxPageSize
	}
	return limit
}
