package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sheetsmith/sheetsmith/internal/apperr"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/auth/v1/", "service-key", NewHTTPClient(2*time.Second))
}

func TestClient_SignUp(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/v1/signup" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("apikey") != "service-key" {
			t.Error("missing apikey header")
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "new@example.com" || body["password"] != "hunter22" {
			t.Errorf("body = %v", body)
		}
		_, _ = w.Write([]byte(`{"id":"u-1","email":"new@example.com","created_at":"2026-03-14T09:30:00Z"}`))
	})

	u, err := c.SignUp(context.Background(), "new@example.com", "hunter22")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if u.ID != "u-1" || u.EmailVerified() {
		t.Errorf("user = %+v", u)
	}
}

func TestClient_SignUpWrappedUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"tok","user":{"id":"u-2","email":"x@example.com","email_confirmed_at":"2026-03-14T09:30:00Z"}}`))
	})

	u, err := c.SignUp(context.Background(), "x@example.com", "pw123456")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if u.ID != "u-2" || !u.EmailVerified() {
		t.Errorf("user = %+v", u)
	}
}

func TestClient_SignIn(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Errorf("unexpected request %s", r.URL)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "right" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"bearer","expires_in":3600,"user":{"id":"u-1","email":"a@example.com"}}`))
	})

	s, err := c.SignIn(context.Background(), "a@example.com", "right")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if s.AccessToken != "at" || s.User.ID != "u-1" || s.ExpiresIn != 3600 {
		t.Errorf("session = %+v", s)
	}

	_, err = c.SignIn(context.Background(), "a@example.com", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v", err)
	}
}

func TestClient_SignInUnconfirmed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":400,"error_code":"email_not_confirmed","msg":"Email not confirmed"}`))
	})

	_, err := c.SignIn(context.Background(), "a@example.com", "pw")
	if !errors.Is(err, ErrEmailNotConfirmed) {
		t.Errorf("got %v, want ErrEmailNotConfirmed", err)
	}
}

func TestClient_VerifyEmail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["type"] != "signup" {
			t.Errorf("type = %q", body["type"])
		}
		if body["token_hash"] != "good" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"msg":"Token has expired or is invalid"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"at","user":{"id":"u-1","email":"a@example.com","email_confirmed_at":"2026-03-14T09:30:00Z"}}`))
	})

	s, err := c.VerifyEmail(context.Background(), "good", "")
	if err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	if !s.User.EmailVerified() {
		t.Error("verified user expected")
	}

	// 403 is not remapped; only validation-ish failures become ErrInvalidToken.
	_, err = c.VerifyEmail(context.Background(), "bad", "signup")
	if apperr.KindOf(err) != apperr.KindForbidden {
		t.Errorf("got %v", err)
	}
}

func TestClient_DeleteUser(t *testing.T) {
	var gotAuth string
	var boomAttempts int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/auth/v1/admin/users/gone":
			w.WriteHeader(http.StatusNotFound)
		case "/auth/v1/admin/users/boom":
			boomAttempts++
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{}`))
		}
	})

	if err := c.DeleteUser(context.Background(), "u-1"); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
	if gotAuth != "Bearer service-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}

	if err := c.DeleteUser(context.Background(), "gone"); err != nil {
		t.Errorf("already-deleted user: got %v", err)
	}

	err := c.DeleteUser(context.Background(), "boom")
	if apperr.KindOf(err) != apperr.KindUpstream {
		t.Errorf("5xx: got %v", err)
	}
	if boomAttempts != 1 {
		t.Errorf("5xx attempts = %d, want exactly 1", boomAttempts)
	}
}

func TestClient_Unreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "k", NewHTTPClient(time.Second))
	_, err := c.GetUser(context.Background(), "tok")
	if apperr.KindOf(err) != apperr.KindUpstream {
		t.Errorf("got %v, want upstream", err)
	}
}
