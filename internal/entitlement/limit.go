package entitlement

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Limit is a monthly operations allowance. Negative values mean unlimited.
type Limit int64

// Unlimited is the sentinel for tiers without a quota.
const Unlimited Limit = -1

// unlimitedJSON is the wire form of Unlimited.
const unlimitedJSON = "unlimited"

// tierLimits is the single source of truth for tier quotas.
var tierLimits = map[Tier]Limit{
	TierFree:       25,
	TierBeta:       1000,
	TierPro:        5000,
	TierEnterprise: Unlimited,
}

// DeriveLimit returns the allowance implied by tier.
// Unknown tiers get the free allowance.
func DeriveLimit(t Tier) Limit {
	if l, ok := tierLimits[t]; ok {
		return l
	}
	return tierLimits[TierFree]
}

// IsUnlimited reports whether the limit is the unlimited sentinel.
func (l Limit) IsUnlimited() bool {
	return l < 0
}

// Allows reports whether a counter value fits inside the limit.
func (l Limit) Allows(used int64) bool {
	return l.IsUnlimited() || used <= int64(l)
}

// Remaining returns how many operations are left. ok is false for unlimited.
func (l Limit) Remaining(used int64) (remaining int64, ok bool) {
	if l.IsUnlimited() {
		return 0, false
	}
	remaining = int64(l) - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Nullable converts the limit to its column form: NULL for unlimited.
func (l Limit) Nullable() *int64 {
	if l.IsUnlimited() {
		return nil
	}
	v := int64(l)
	return &v
}

// LimitFromNullable is the inverse of Nullable.
func LimitFromNullable(v *int64) Limit {
	if v == nil {
		return Unlimited
	}
	return Limit(*v)
}

// String renders the limit for logs and CLI output.
func (l Limit) String() string {
	if l.IsUnlimited() {
		return unlimitedJSON
	}
	return strconv.FormatInt(int64(l), 10)
}

// MarshalJSON encodes Unlimited as "unlimited" and finite limits as numbers.
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.IsUnlimited() {
		return json.Marshal(unlimitedJSON)
	}
	return []byte(strconv.FormatInt(int64(l), 10)), nil
}

// UnmarshalJSON accepts either form produced by MarshalJSON, or null.
func (l *Limit) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `"`+unlimitedJSON+`"` {
		*l = Unlimited
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid operations limit %s", s)
	}
	*l = Limit(v)
	return nil
}
