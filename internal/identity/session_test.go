package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sheetsmith/sheetsmith/internal/apperr"
	"github.com/sheetsmith/sheetsmith/internal/testutil"
)

const testSecret = "test-session-secret"

func TestSessionVerifier_Valid(t *testing.T) {
	v, err := NewSessionVerifier(testSecret, "authenticated")
	if err != nil {
		t.Fatalf("NewSessionVerifier failed: %v", err)
	}

	token := testutil.SessionToken(t, testSecret, "4b1f0c5e-2f53-4c39-9d1a-7f1c0e2b9a10", " Ada@Example.com", true, time.Hour)

	s, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if s.UserID != "4b1f0c5e-2f53-4c39-9d1a-7f1c0e2b9a10" || s.Email != "ada@example.com" || !s.EmailVerified {
		t.Errorf("session = %+v", s)
	}
	if time.Until(s.ExpiresAt) < 50*time.Minute {
		t.Errorf("ExpiresAt = %v", s.ExpiresAt)
	}
}

func TestSessionVerifier_Rejects(t *testing.T) {
	v, _ := NewSessionVerifier(testSecret, "authenticated")

	noSub := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"aud": "authenticated", "exp": time.Now().Add(time.Hour).Unix(),
	})
	noSubToken, _ := noSub.SignedString([]byte(testSecret))

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1", "aud": "authenticated"})
	noExpToken, _ := noExp.SignedString([]byte(testSecret))

	wrongAud := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1", "aud": "anon", "exp": time.Now().Add(time.Hour).Unix(),
	})
	wrongAudToken, _ := wrongAud.SignedString([]byte(testSecret))

	hs512 := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "u1", "aud": "authenticated", "exp": time.Now().Add(time.Hour).Unix(),
	})
	hs512Token, _ := hs512.SignedString([]byte(testSecret))

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong secret", testutil.SessionToken(t, "other", "u1", "a@b.c", true, time.Hour)},
		{"expired beyond leeway", testutil.SessionToken(t, testSecret, "u1", "a@b.c", true, -2*time.Minute)},
		{"missing sub", noSubToken},
		{"missing exp", noExpToken},
		{"wrong audience", wrongAudToken},
		{"wrong algorithm", hs512Token},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			if !errors.Is(err, ErrInvalidSession) {
				t.Fatalf("err = %v, want ErrInvalidSession", err)
			}
			if apperr.KindOf(err) != apperr.KindUnauthorized {
				t.Errorf("kind = %v", apperr.KindOf(err))
			}
		})
	}
}

func TestSessionVerifier_MetadataVerifiedFallback(t *testing.T) {
	v, _ := NewSessionVerifier(testSecret, "")

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":           "u1",
		"email":         "u1@example.com",
		"exp":           time.Now().Add(time.Hour).Unix(),
		"user_metadata": map[string]any{"email_verified": true},
	})
	signed, _ := tok.SignedString([]byte(testSecret))

	s, err := v.Verify(signed)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !s.EmailVerified {
		t.Error("expected email_verified from user_metadata")
	}
}

func TestNewSessionVerifier_RequiresSecret(t *testing.T) {
	if _, err := NewSessionVerifier("", ""); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def", "abc.def", true},
		{"bearer  abc", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Errorf("BearerToken(%q) = %q, %v", tt.header, got, ok)
		}
	}
}
