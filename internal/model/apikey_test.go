package model

import (
	"slices"
	"testing"
	"time"
)

func TestAPIKey_HasScope(t *testing.T) {
	testCases := []struct {
		name      string
		keyScopes []string
		checkFor  string
		want      bool
	}{
		{
			name:      "has exact scope",
			keyScopes: []string{ScopeUsage, ScopeBridge},
			checkFor:  ScopeUsage,
			want:      true,
		},
		{
			name:      "does not have scope",
			keyScopes: []string{ScopeUsage},
			checkFor:  ScopeBridge,
			want:      false,
		},
		{
			name:      "admin implies usage",
			keyScopes: []string{ScopeAdmin},
			checkFor:  ScopeUsage,
			want:      true,
		},
		{
			name:      "admin implies bridge",
			keyScopes: []string{ScopeAdmin},
			checkFor:  ScopeBridge,
			want:      true,
		},
		{
			name:      "empty scopes",
			keyScopes: []string{},
			checkFor:  ScopeUsage,
			want:      false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			key := &APIKey{Scopes: tc.keyScopes}
			if got := key.HasScope(tc.checkFor); got != tc.want {
				t.Errorf("HasScope(%s) = %v, want %v", tc.checkFor, got, tc.want)
			}
		})
	}
}

func TestAuthContext_HasScope(t *testing.T) {
	ctx := &AuthContext{Scopes: []string{ScopeBridge}}
	if !ctx.HasScope(ScopeBridge) {
		t.Error("expected bridge scope")
	}
	if ctx.HasScope(ScopeUsage) {
		t.Error("bridge scope should not grant usage")
	}
}

func TestAPIKey_IsRevoked(t *testing.T) {
	key := &APIKey{}
	if key.IsRevoked() {
		t.Error("new key should not be revoked")
	}

	now := time.Now()
	key.RevokedAt = &now
	if !key.IsRevoked() {
		t.Error("key with revoked_at should be revoked")
	}
}

func TestDefaultScopesAreValid(t *testing.T) {
	for _, scope := range DefaultScopes {
		if !slices.Contains(ValidScopes, scope) {
			t.Errorf("default scope %s is not valid", scope)
		}
	}
}

func TestAPIKey_ToResponse(t *testing.T) {
	key := &APIKey{
		ID:        "key123",
		Name:      "Sheets add-on",
		KeyPrefix: "abc123",
		Scopes:    []string{ScopeUsage},
	}

	resp := key.ToResponse()
	if resp.ID != key.ID {
		t.Errorf("ID mismatch")
	}
	if resp.KeyPrefix != key.KeyPrefix {
		t.Errorf("KeyPrefix mismatch")
	}
	if resp.Revoked {
		t.Errorf("Revoked should be false for active key")
	}
}
