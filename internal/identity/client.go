// Package identity adapts the hosted identity provider (a GoTrue-compatible
// auth service): password sign-up and sign-in, email verification, and
// admin deletion of users. Access tokens it issues are verified locally by
// SessionVerifier.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sheetsmith/sheetsmith/internal/apperr"
)

// Errors returned by the client.
var (
	ErrInvalidCredentials = apperr.Unauthorized("INVALID_CREDENTIALS", "invalid email or password")
	ErrInvalidToken       = apperr.Unauthorized("INVALID_VERIFICATION_TOKEN", "verification link is invalid or expired")
	ErrEmailNotConfirmed  = apperr.Forbidden("EMAIL_NOT_VERIFIED", "email address has not been verified")
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// User is the provider's view of an account.
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// EmailVerified reports whether the provider has confirmed the address.
func (u *User) EmailVerified() bool {
	return u.EmailConfirmedAt != nil
}

// Session is a token grant.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	User         User   `json:"user"`
}

// Client calls the identity provider's REST API.
type Client struct {
	baseURL    string
	serviceKey string
	http       *http.Client
}

// NewHTTPClient builds the transport used for provider calls. Redirects are
// not followed.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   5 * time.Second,
			ResponseHeaderTimeout: timeout,
			MaxIdleConns:          50,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// NewClient returns a client for the provider at baseURL (for example
// https://xyz.example.co/auth/v1). serviceKey authorizes admin calls and is
// sent as the apikey header on every request.
func NewClient(baseURL, serviceKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(10 * time.Second)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		http:       httpClient,
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp registers a user. The provider sends the verification email; until
// it is confirmed the returned user has no EmailConfirmedAt.
func (c *Client) SignUp(ctx context.Context, email, password string) (*User, error) {
	// Depending on provider settings the body is either a bare user or a
	// session wrapping one.
	var body struct {
		User
		Wrapped *User `json:"user"`
	}

	if _, err := c.do(ctx, http.MethodPost, "/signup", "", credentials{email, password}, &body); err != nil {
		return nil, err
	}

	if body.Wrapped != nil && body.Wrapped.ID != "" {
		return body.Wrapped, nil
	}
	return &body.User, nil
}

// SignIn exchanges email and password for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	_, err := c.do(ctx, http.MethodPost, "/token?grant_type=password", "", credentials{email, password}, &s)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindValidation {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return &s, nil
}

// VerifyEmail redeems the token hash from a confirmation link and returns
// the resulting session. kind is the link type, usually "signup" or "email".
func (c *Client) VerifyEmail(ctx context.Context, tokenHash, kind string) (*Session, error) {
	if kind == "" {
		kind = "signup"
	}

	req := map[string]string{"token_hash": tokenHash, "type": kind}

	var s Session
	_, err := c.do(ctx, http.MethodPost, "/verify", "", req, &s)
	if err != nil {
		if k := apperr.KindOf(err); k == apperr.KindValidation || k == apperr.KindUnauthorized || k == apperr.KindNotFound {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return &s, nil
}

// GetUser returns the user that owns accessToken.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var u User
	if _, err := c.do(ctx, http.MethodGet, "/user", accessToken, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// DeleteUser removes a user with the service key. A user that no longer
// exists counts as deleted. Failures are returned as is; callers decide
// what a failed deletion means.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/admin/users/"+url.PathEscape(id), c.serviceKey, nil, nil)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil
	}
	return err
}

// providerError covers both error shapes the provider emits.
type providerError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorCode        string `json:"error_code"`
}

func (e providerError) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, apperr.Internal(fmt.Errorf("encode identity request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, apperr.Internal(fmt.Errorf("build identity request: %w", err))
	}
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, apperr.Upstream("IDENTITY_UNAVAILABLE", "identity provider unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return resp.StatusCode, classify(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, apperr.Upstream("IDENTITY_BAD_RESPONSE", "identity provider returned an unreadable response", err)
	}
	return resp.StatusCode, nil
}

func classify(resp *http.Response) error {
	var pe providerError
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = json.Unmarshal(data, &pe)

	msg := pe.text()
	cause := fmt.Errorf("identity provider: %s %s", resp.Status, msg)

	switch {
	case pe.ErrorCode == "email_not_confirmed" || strings.Contains(strings.ToLower(msg), "email not confirmed"):
		return ErrEmailNotConfirmed
	case resp.StatusCode == http.StatusUnauthorized:
		return apperr.Wrap(apperr.KindUnauthorized, "UNAUTHORIZED", "invalid or expired session", cause)
	case resp.StatusCode == http.StatusForbidden:
		return apperr.Wrap(apperr.KindForbidden, "FORBIDDEN", "identity provider refused the request", cause)
	case resp.StatusCode == http.StatusNotFound:
		return apperr.Wrap(apperr.KindNotFound, "IDENTITY_NOT_FOUND", "user not found", cause)
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperr.Wrap(apperr.KindUpstream, "IDENTITY_RATE_LIMITED", "too many attempts, try again later", cause)
	case resp.StatusCode < 500:
		if msg == "" {
			msg = "request rejected by identity provider"
		}
		return apperr.Wrap(apperr.KindValidation, "IDENTITY_REJECTED", msg, cause)
	default:
		return apperr.Upstream("IDENTITY_UNAVAILABLE", "identity provider unavailable", cause)
	}
}
