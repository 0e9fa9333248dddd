// Package entitlement derives operation quotas from plan tiers and drives the
// beta-access lifecycle. Everything here is pure: callers load a State, apply a
// transition and persist the result in the same transaction.
package entitlement

import (
	"fmt"
	"slices"
	"strings"
)

// Tier is a subscription level controlling the operation quota.
type Tier string

// Plan tiers.
const (
	TierFree       Tier = "free"
	TierBeta       Tier = "beta"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// ValidTiers lists every tier in ascending order of quota.
var ValidTiers = []Tier{TierFree, TierBeta, TierPro, TierEnterprise}

// IsValid reports whether t is a known tier.
func (t Tier) IsValid() bool {
	return slices.Contains(ValidTiers, t)
}

// String returns the wire form of the tier.
func (t Tier) String() string {
	return string(t)
}

// ParseTier normalizes and validates a tier name.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
	return t, nil
}
