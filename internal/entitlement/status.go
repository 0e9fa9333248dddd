package entitlement

import "time"

// BetaStatus is the derived position of a profile in the beta workflow.
type BetaStatus string

// Beta workflow states. There is no terminal state; an admin can move a
// profile from any state to any other.
const (
	BetaNoRequest BetaStatus = "none"
	BetaPending   BetaStatus = "pending"
	BetaApproved  BetaStatus = "approved"
	BetaRevoked   BetaStatus = "revoked"
)

// StatusOf derives the beta status from tier and timestamps.
func StatusOf(s State) BetaStatus {
	if s.Tier == TierBeta {
		return BetaApproved
	}
	if s.BetaRequestedAt != nil &&
		after(s.BetaRequestedAt, s.BetaRevokedAt) &&
		after(s.BetaRequestedAt, s.BetaApprovedAt) {
		return BetaPending
	}
	if s.BetaRevokedAt != nil {
		return BetaRevoked
	}
	return BetaNoRequest
}

// after reports whether a is later than b; a nil b is always earlier.
func after(a, b *time.Time) bool {
	return b == nil || a.After(*b)
}

// Usage is the metering view of a state at a point in time.
type Usage struct {
	Tier        Tier      `json:"tier"`
	Used        int64     `json:"operations_used"`
	Limit       Limit     `json:"operations_limit"`
	Remaining   *int64    `json:"operations_remaining"`
	PeriodStart time.Time `json:"period_start"`
	ResetsAt    time.Time `json:"resets_at"`
}

// UsageOf reports usage as of now, applying any pending monthly reset.
// Remaining is nil for unlimited tiers.
func UsageOf(s State, now time.Time) Usage {
	s = Rollover(Normalize(s), now)

	u := Usage{
		Tier:        s.Tier,
		Used:        s.OperationsUsed,
		Limit:       s.OperationsLimit,
		PeriodStart: s.UsagePeriodStart,
		ResetsAt:    NextPeriodStart(s.UsagePeriodStart),
	}
	if remaining, ok := s.OperationsLimit.Remaining(s.OperationsUsed); ok {
		u.Remaining = &remaining
	}
	return u
}
