package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sheetsmith/sheetsmith/internal/apperr"
	"github.com/sheetsmith/sheetsmith/internal/model"
)

const defaultLeeway = 30 * time.Second

// ErrInvalidSession is returned for any token that fails verification.
var ErrInvalidSession = apperr.Unauthorized("INVALID_SESSION", "invalid or expired session")

// SessionVerifier checks provider-issued access tokens locally, without a
// round trip, using the shared HS256 signing secret.
type SessionVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewSessionVerifier returns a verifier. An empty audience disables the
// audience check.
func NewSessionVerifier(secret, audience string) (*SessionVerifier, error) {
	if secret == "" {
		return nil, errors.New("session secret must be set")
	}

	opts := []jwt.ParserOption{
		jwt.WithLeeway(defaultLeeway),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	return &SessionVerifier{secret: []byte(secret), parser: jwt.NewParser(opts...)}, nil
}

type sessionClaims struct {
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified,omitempty"`
	UserMetadata  struct {
		EmailVerified bool `json:"email_verified"`
	} `json:"user_metadata"`
	jwt.RegisteredClaims
}

// Verify validates token and returns the session it carries.
func (v *SessionVerifier) Verify(token string) (*model.Session, error) {
	var claims sessionClaims
	parsed, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: token missing sub", ErrInvalidSession)
	}

	verified := claims.UserMetadata.EmailVerified
	if claims.EmailVerified != nil {
		verified = *claims.EmailVerified
	}

	s := &model.Session{
		UserID:        claims.Subject,
		Email:         model.NormalizeEmail(claims.Email),
		EmailVerified: verified,
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
