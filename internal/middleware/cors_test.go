package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantStatus int
		wantHeader string
	}{
		{"no origins configured", nil, "https://sheetsmith.app", http.MethodGet, http.StatusOK, ""},
		{"allowed origin", []string{"https://sheetsmith.app"}, "https://sheetsmith.app", http.MethodGet, http.StatusOK, "https://sheetsmith.app"},
		{"disallowed preflight", []string{"https://sheetsmith.app"}, "https://evil.example", http.MethodOptions, http.StatusForbidden, ""},
		{"allowed preflight", []string{"https://sheetsmith.app"}, "https://sheetsmith.app", http.MethodOptions, http.StatusNoContent, "https://sheetsmith.app"},
		{"case insensitive", []string{"HTTPS://SHEETSMITH.APP"}, "https://sheetsmith.app", http.MethodGet, http.StatusOK, "https://sheetsmith.app"},
		{"no origin header", []string{"https://sheetsmith.app"}, "", http.MethodGet, http.StatusOK, ""},
		{"wildcard subdomain", []string{"*.sheetsmith.app"}, "https://dashboard.sheetsmith.app", http.MethodGet, http.StatusOK, "https://dashboard.sheetsmith.app"},
		{"wildcard excludes bare domain", []string{"*.sheetsmith.app"}, "https://sheetsmith.app", http.MethodGet, http.StatusOK, ""},
		{"wildcard excludes look-alike", []string{"*.sheetsmith.app"}, "https://evilsheetsmith.app", http.MethodGet, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCORSConfig()
			cfg.AllowedOrigins = tt.allowed
			h := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantHeader {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantHeader)
			}
		})
	}
}

func TestCORSPreflightHeaders(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://sheetsmith.app"}
	h := CORS(cfg)(http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/me", nil)
	req.Header.Set("Origin", "https://sheetsmith.app")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	for _, header := range []string{"Access-Control-Allow-Methods", "Access-Control-Allow-Headers", "Access-Control-Max-Age"} {
		if rec.Header().Get(header) == "" {
			t.Errorf("%s not set on preflight", header)
		}
	}
}
