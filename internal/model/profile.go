// Package model defines domain entities for the application.
package model

import (
	"strings"
	"time"

	"github.com/sheetsmith/sheetsmith/internal/entitlement"
)

// Profile is the application-level account record. It is keyed by the
// identity provider's user id and created on the first verified sign-in.
type Profile struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`

	entitlement.State

	IsAdmin              bool      `json:"is_admin"`
	EmailVerified        bool      `json:"email_verified"`
	NewsletterSubscribed bool      `json:"newsletter_subscribed"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// NewProfile returns a free-tier profile for a verified identity.
func NewProfile(id, email string, emailVerified bool, now time.Time) *Profile {
	now = now.UTC()
	return &Profile{
		ID:            id,
		Email:         NormalizeEmail(email),
		State:         entitlement.NewState(now),
		EmailVerified: emailVerified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// BetaStatus returns the derived beta workflow state.
func (p *Profile) BetaStatus() entitlement.BetaStatus {
	return entitlement.StatusOf(p.State)
}

// Usage returns the metering view as of now.
func (p *Profile) Usage(now time.Time) entitlement.Usage {
	return entitlement.UsageOf(p.State, now)
}

// ProfileUpdate holds the fields a user may change on their own profile.
// Nil fields are left untouched.
type ProfileUpdate struct {
	DisplayName          *string
	NewsletterSubscribed *bool
}

// IsEmpty reports whether the update changes nothing.
func (u ProfileUpdate) IsEmpty() bool {
	return u.DisplayName == nil && u.NewsletterSubscribed == nil
}

// ProfileFilter narrows admin profile listings.
type ProfileFilter struct {
	Tier       entitlement.Tier
	BetaStatus entitlement.BetaStatus
	Email      string
}

// NormalizeEmail lowercases and trims an address for comparison and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Session is the principal of a request authenticated by an identity
// provider access token.
type Session struct {
	UserID        string
	Email         string
	EmailVerified bool
	ExpiresAt     time.Time
}

// EmailPreferences mirrors the marketing opt-in for the mailing pipeline.
type EmailPreferences struct {
	ProfileID  string    `json:"profile_id"`
	Newsletter bool      `json:"newsletter"`
	UpdatedAt  time.Time `json:"updated_at"`
}
