package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sheetsmith/sheetsmith/internal/auth"
	"github.com/sheetsmith/sheetsmith/internal/identity"
	"github.com/sheetsmith/sheetsmith/internal/model"
	"github.com/sheetsmith/sheetsmith/internal/service"
)

type fakeVerifier map[string]*model.Session

func (f fakeVerifier) Verify(token string) (*model.Session, error) {
	if s, ok := f[token]; ok {
		return s, nil
	}
	return nil, identity.ErrInvalidSession
}

func TestSession(t *testing.T) {
	sess := &model.Session{UserID: "u-1", Email: "ada@example.com", EmailVerified: true, ExpiresAt: time.Now().Add(time.Hour)}
	v := fakeVerifier{"good": sess}

	var got *model.Session
	h := Session(v, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = auth.SessionFrom(r.Context())
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{"valid", "Bearer good", http.StatusOK, ""},
		{"missing header", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"not bearer", "Basic Zm9vOmJhcg==", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"invalid token", "Bearer forged", http.StatusUnauthorized, "INVALID_SESSION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantCode != "" {
				if code := errorCode(t, rec); code != tt.wantCode {
					t.Errorf("code = %q, want %q", code, tt.wantCode)
				}
				return
			}
			if got != sess {
				t.Errorf("session not on context")
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	profiles := map[string]*model.Profile{
		"admin":   {ID: "admin", Email: "root@example.com", IsAdmin: true},
		"regular": {ID: "regular", Email: "ada@example.com"},
		"listed":  {ID: "listed", Email: "ops@sheetsmith.app"},
	}
	load := func(_ context.Context, s *model.Session) (*model.Profile, error) {
		p, ok := profiles[s.UserID]
		if !ok {
			return nil, service.ErrProfileNotFound
		}
		return p, nil
	}
	allowList := func(email string) bool { return email == "ops@sheetsmith.app" }

	var got *model.Profile
	h := RequireAdmin(AdminConfig{Logger: discardLogger(), Load: load, IsAdminEmail: allowList})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = auth.ProfileFrom(r.Context())
		}))

	tests := []struct {
		name       string
		sess       *model.Session
		wantStatus int
	}{
		{"admin flag", &model.Session{UserID: "admin", Email: "root@example.com", EmailVerified: true}, http.StatusOK},
		{"allow-listed verified", &model.Session{UserID: "listed", Email: "ops@sheetsmith.app", EmailVerified: true}, http.StatusOK},
		{"allow-listed unverified", &model.Session{UserID: "listed", Email: "ops@sheetsmith.app"}, http.StatusForbidden},
		{"regular user", &model.Session{UserID: "regular", Email: "ada@example.com", EmailVerified: true}, http.StatusForbidden},
		{"no profile", &model.Session{UserID: "ghost", EmailVerified: true}, http.StatusNotFound},
		{"no session", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil)
			if tt.sess != nil {
				req = req.WithContext(auth.WithSession(req.Context(), tt.sess))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && (got == nil || got.ID != tt.sess.UserID) {
				t.Errorf("profile on context = %+v", got)
			}
		})
	}
}
