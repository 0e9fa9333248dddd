package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sheetsmith/sheetsmith/internal/entitlement"
)

func TestNewProfile(t *testing.T) {
	now := time.Date(2026, time.May, 20, 12, 0, 0, 0, time.UTC)
	p := NewProfile("9b2f1c1e-0000-4000-8000-000000000001", "  Ada@Example.COM ", true, now)

	if p.Email != "ada@example.com" {
		t.Errorf("Email = %q", p.Email)
	}
	if p.Tier != entitlement.TierFree || p.OperationsLimit != 25 || p.OperationsUsed != 0 {
		t.Errorf("unexpected entitlement state %+v", p.State)
	}
	if !p.UsagePeriodStart.Equal(time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("UsagePeriodStart = %v", p.UsagePeriodStart)
	}
	if p.BetaStatus() != entitlement.BetaNoRequest {
		t.Errorf("BetaStatus = %s", p.BetaStatus())
	}
}

func TestProfile_JSONFlattensEntitlement(t *testing.T) {
	p := NewProfile("id-1", "a@b.c", false, time.Now())
	p.State = entitlement.SetTier(p.State, entitlement.TierEnterprise, time.Now())

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["tier"] != "enterprise" {
		t.Errorf("tier = %v", m["tier"])
	}
	if m["operations_limit"] != "unlimited" {
		t.Errorf("operations_limit = %v", m["operations_limit"])
	}
}

func TestProfileUpdate_IsEmpty(t *testing.T) {
	if !(ProfileUpdate{}).IsEmpty() {
		t.Error("zero update should be empty")
	}
	subscribed := true
	if (ProfileUpdate{NewsletterSubscribed: &subscribed}).IsEmpty() {
		t.Error("update with newsletter flag should not be empty")
	}
}
