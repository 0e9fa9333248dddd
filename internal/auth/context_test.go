package auth

import (
	"context"
	"testing"

	"github.com/sheetsmith/sheetsmith/internal/model"
)

func TestContextPrincipals(t *testing.T) {
	ctx := context.Background()
	if APIKeyFrom(ctx) != nil || SessionFrom(ctx) != nil || ProfileFrom(ctx) != nil {
		t.Fatal("empty context should carry no principals")
	}
	if UserIDFrom(ctx) != "" {
		t.Fatal("empty context should have no user id")
	}

	ctx = WithAPIKey(ctx, &model.AuthContext{KeyID: "k1", UserID: "key-user"})
	if got := UserIDFrom(ctx); got != "key-user" {
		t.Errorf("UserIDFrom = %q, want key-user", got)
	}

	ctx = WithSession(ctx, &model.Session{UserID: "session-user"})
	if got := UserIDFrom(ctx); got != "session-user" {
		t.Errorf("session should win, got %q", got)
	}

	ctx = WithProfile(ctx, &model.Profile{ID: "session-user"})
	if ProfileFrom(ctx).ID != "session-user" {
		t.Error("profile not attached")
	}
}
