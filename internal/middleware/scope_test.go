package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sheetsmith/sheetsmith/internal/auth"
	"github.com/sheetsmith/sheetsmith/internal/model"
)

func TestRequireScope(t *testing.T) {
	tests := []struct {
		name       string
		scopes     []string
		required   []string
		wantStatus int
	}{
		{"usage key on usage route", []string{model.ScopeUsage}, []string{model.ScopeUsage}, http.StatusOK},
		{"usage key on bridge route", []string{model.ScopeUsage}, []string{model.ScopeBridge}, http.StatusForbidden},
		{"default scopes on bridge route", model.DefaultScopes, []string{model.ScopeBridge}, http.StatusOK},
		{"admin implies all", []string{model.ScopeAdmin}, []string{model.ScopeBridge}, http.StatusOK},
		{"any of several", []string{model.ScopeBridge}, []string{model.ScopeUsage, model.ScopeBridge}, http.StatusOK},
		{"no scopes", nil, []string{model.ScopeUsage}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			h := RequireScope(tt.required...)(okHandler(&calls))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(auth.WithAPIKey(req.Context(), &model.AuthContext{
				KeyID:  "01J0000000000000000000000K",
				UserID: "user-1",
				Scopes: tt.scopes,
			}))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusForbidden {
				if code := errorCode(t, rec); code != "INSUFFICIENT_SCOPE" {
					t.Errorf("code = %q, want INSUFFICIENT_SCOPE", code)
				}
				if calls != 0 {
					t.Error("handler ran despite missing scope")
				}
			}
		})
	}
}

func TestRequireScope_Unauthenticated(t *testing.T) {
	calls := 0
	rec := httptest.NewRecorder()
	RequireScope(model.ScopeUsage)(okHandler(&calls)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
