// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/sheetsmith/sheetsmith/internal/entitlement"
	"github.com/sheetsmith/sheetsmith/internal/identity"
	"github.com/sheetsmith/sheetsmith/internal/model"
)

// CredentialsRequest is the body of sign-up and sign-in.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// VerifyRequest redeems an email confirmation link.
type VerifyRequest struct {
	TokenHash string `json:"token_hash"`
	Type      string `json:"type,omitempty"`
}

// SignUpResponse acknowledges a registration awaiting email confirmation.
type SignUpResponse struct {
	UserID               string `json:"user_id"`
	Email                string `json:"email"`
	ConfirmationRequired bool   `json:"confirmation_required"`
}

// SessionResponse is returned by sign-in and verification.
type SessionResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	TokenType    string          `json:"token_type"`
	ExpiresIn    int             `json:"expires_in"`
	Profile      ProfileResponse `json:"profile"`
}

// ToSessionResponse pairs the provider session with the caller's profile.
func ToSessionResponse(s *identity.Session, p *model.Profile, now time.Time) SessionResponse {
	tokenType := s.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}
	return SessionResponse{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    tokenType,
		ExpiresIn:    s.ExpiresIn,
		Profile:      ToProfileResponse(p, now),
	}
}

// ProfileResponse is a profile as seen by its owner and by admins.
type ProfileResponse struct {
	ID                   string                 `json:"id"`
	Email                string                 `json:"email"`
	DisplayName          string                 `json:"display_name,omitempty"`
	Tier                 entitlement.Tier       `json:"tier"`
	BetaStatus           entitlement.BetaStatus `json:"beta_status"`
	BetaRequestedAt      *time.Time             `json:"beta_requested_at,omitempty"`
	BetaApprovedAt       *time.Time             `json:"beta_approved_at,omitempty"`
	BetaRevokedAt        *time.Time             `json:"beta_revoked_at,omitempty"`
	Usage                entitlement.Usage      `json:"usage"`
	IsAdmin              bool                   `json:"is_admin"`
	EmailVerified        bool                   `json:"email_verified"`
	NewsletterSubscribed bool                   `json:"newsletter_subscribed"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
}

// ToProfileResponse renders p with usage as of now, so a month boundary that
// has passed since the last write already shows a reset counter.
func ToProfileResponse(p *model.Profile, now time.Time) ProfileResponse {
	return ProfileResponse{
		ID:                   p.ID,
		Email:                p.Email,
		DisplayName:          p.DisplayName,
		Tier:                 entitlement.Normalize(p.State).Tier,
		BetaStatus:           p.BetaStatus(),
		BetaRequestedAt:      p.BetaRequestedAt,
		BetaApprovedAt:       p.BetaApprovedAt,
		BetaRevokedAt:        p.BetaRevokedAt,
		Usage:                p.Usage(now),
		IsAdmin:              p.IsAdmin,
		EmailVerified:        p.EmailVerified,
		NewsletterSubscribed: p.NewsletterSubscribed,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}

// ToProfileResponses renders a slice of profiles.
func ToProfileResponses(ps []*model.Profile, now time.Time) []ProfileResponse {
	out := make([]ProfileResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, ToProfileResponse(p, now))
	}
	return out
}

// UpdateProfileRequest is the body of PATCH /api/v1/me. Absent fields are
// left unchanged.
type UpdateProfileRequest struct {
	DisplayName          *string `json:"display_name,omitempty"`
	NewsletterSubscribed *bool   `json:"newsletter_subscribed,omitempty"`
}

// ToModel converts the request into a profile update.
func (r UpdateProfileRequest) ToModel() model.ProfileUpdate {
	return model.ProfileUpdate{
		DisplayName:          r.DisplayName,
		NewsletterSubscribed: r.NewsletterSubscribed,
	}
}

// SetTierRequest is the body of PUT /api/v1/admin/users/{id}/tier.
type SetTierRequest struct {
	Tier string `json:"tier"`
}

// SetAdminRequest is the body of PUT /api/v1/admin/users/{id}/admin.
type SetAdminRequest struct {
	IsAdmin *bool `json:"is_admin"`
}

// UsageRequest is the body of POST /api/v1/usage. Count defaults to 1.
type UsageRequest struct {
	Count *int64 `json:"count,omitempty"`
}

// UserListResponse is one page of the admin user listing.
type UserListResponse struct {
	Data       []ProfileResponse `json:"data"`
	Pagination *Pagination       `json:"pagination"`
}

// Pagination provides cursor-based pagination info.
type Pagination struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// BetaRequestListResponse lists pending beta requests, oldest first.
type BetaRequestListResponse struct {
	Data  []ProfileResponse `json:"data"`
	Total int               `json:"total"`
}

// InstallationEventRequest is an add-on lifecycle event reported by the
// installation tracker.
type InstallationEventRequest struct {
	InstallID    string     `json:"install_id"`
	UserID       string     `json:"user_id,omitempty"`
	Event        string     `json:"event"`
	AddonVersion string     `json:"addon_version,omitempty"`
	Domain       string     `json:"domain,omitempty"`
	OccurredAt   *time.Time `json:"occurred_at,omitempty"`
}

// InstallationEventResponse acknowledges a queued event.
type InstallationEventResponse struct {
	Accepted bool   `json:"accepted"`
	EventID  string `json:"event_id"`
}
