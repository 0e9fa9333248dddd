package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sheetsmith/sheetsmith/internal/auth"
	"github.com/sheetsmith/sheetsmith/internal/cache"
	"github.com/sheetsmith/sheetsmith/internal/model"
)

// fakeLimiter allows the first n requests per key.
type fakeLimiter struct {
	allow  int
	counts map[string]int
	err    error
}

func (f *fakeLimiter) check(key string, limit int) (*cache.RateLimitResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.counts == nil {
		f.counts = map[string]int{}
	}
	f.counts[key]++
	if f.counts[key] > f.allow {
		return &cache.RateLimitResult{Allowed: false, RetryAfter: 1500 * time.Millisecond}, nil
	}
	return &cache.RateLimitResult{Allowed: true, Remaining: int64(f.allow - f.counts[key])}, nil
}

func (f *fakeLimiter) CheckAPIRateLimit(_ context.Context, keyID string, rpm, _ int) (*cache.RateLimitResult, error) {
	return f.check("api:"+keyID, rpm)
}

func (f *fakeLimiter) CheckIPRateLimit(_ context.Context, ip string, rps, _ int) (*cache.RateLimitResult, error) {
	return f.check("ip:"+ip, rps)
}

func withKey(r *http.Request, keyID string) *http.Request {
	return r.WithContext(auth.WithAPIKey(r.Context(), &model.AuthContext{KeyID: keyID, UserID: "u-1"}))
}

func TestRateLimitAPI(t *testing.T) {
	lim := &fakeLimiter{allow: 2}
	calls := 0
	h := RateLimitAPI(RateLimitConfig{
		Logger:     discardLogger(),
		Limiter:    lim,
		APIEnabled: true,
		APIRPM:     60,
		APIBurst:   2,
	})(okHandler(&calls))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, withKey(httptest.NewRequest(http.MethodPost, "/api/v1/usage", nil), "k1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "60" {
			t.Errorf("X-RateLimit-Limit = %q", rec.Header().Get("X-RateLimit-Limit"))
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withKey(httptest.NewRequest(http.MethodPost, "/api/v1/usage", nil), "k1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "2" {
		t.Errorf("Retry-After = %q, want 2", rec.Header().Get("Retry-After"))
	}
	if code := errorCode(t, rec); code != "RATE_LIMITED" {
		t.Errorf("code = %q", code)
	}

	// Buckets are per key.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, withKey(httptest.NewRequest(http.MethodPost, "/api/v1/usage", nil), "k2"))
	if rec.Code != http.StatusOK {
		t.Errorf("other key: status = %d", rec.Code)
	}
	if calls != 3 {
		t.Errorf("handler calls = %d, want 3", calls)
	}
}

func TestRateLimitAPI_FailOpen(t *testing.T) {
	calls := 0
	h := RateLimitAPI(RateLimitConfig{
		Logger:     discardLogger(),
		Limiter:    &fakeLimiter{err: errors.New("redis down")},
		APIEnabled: true,
		APIRPM:     60,
	})(okHandler(&calls))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withKey(httptest.NewRequest(http.MethodGet, "/", nil), "k1"))
	if rec.Code != http.StatusOK || calls != 1 {
		t.Errorf("status = %d, calls = %d; want pass-through", rec.Code, calls)
	}
}

func TestRateLimitIP(t *testing.T) {
	calls := 0
	h := RateLimitIP(RateLimitConfig{
		Logger:    discardLogger(),
		Limiter:   &fakeLimiter{allow: 1},
		IPEnabled: true,
		IPRPS:     5,
		IPBurst:   1,
	})(okHandler(&calls))

	send := func(addr, xff string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signin", nil)
		req.RemoteAddr = addr
		if xff != "" {
			req.Header.Set("X-Forwarded-For", xff)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := send("10.0.0.1:5000", ""); got != http.StatusOK {
		t.Fatalf("first: %d", got)
	}
	if got := send("10.0.0.1:5001", ""); got != http.StatusTooManyRequests {
		t.Errorf("second from same IP: %d, want 429", got)
	}
	if got := send("10.0.0.1:5002", "203.0.113.9"); got != http.StatusOK {
		t.Errorf("forwarded client: %d, want 200", got)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	calls := 0
	cfg := RateLimitConfig{Logger: discardLogger(), Limiter: &fakeLimiter{allow: 0}}
	h := RateLimitIP(cfg)(RateLimitAPI(cfg)(okHandler(&calls)))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withKey(httptest.NewRequest(http.MethodGet, "/", nil), "k1"))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"remote addr", "192.0.2.1:1234", nil, "192.0.2.1"},
		{"first forwarded hop", "10.0.0.1:1", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "203.0.113.5"},
		{"real ip", "10.0.0.1:1", map[string]string{"X-Real-IP": "198.51.100.7"}, "198.51.100.7"},
		{"ipv6", "[2001:db8::1]:443", nil, "2001:db8::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
