package entitlement

import "time"

// State is the entitlement slice of a profile row.
type State struct {
	Tier             Tier       `json:"tier"`
	OperationsUsed   int64      `json:"operations_used"`
	OperationsLimit  Limit      `json:"operations_limit"`
	UsagePeriodStart time.Time  `json:"usage_period_start"`
	BetaRequestedAt  *time.Time `json:"beta_requested_at,omitempty"`
	BetaApprovedAt   *time.Time `json:"beta_approved_at,omitempty"`
	BetaRevokedAt    *time.Time `json:"beta_revoked_at,omitempty"`
}

// NewState returns the state of a freshly created profile.
func NewState(now time.Time) State {
	return State{
		Tier:             TierFree,
		OperationsUsed:   0,
		OperationsLimit:  DeriveLimit(TierFree),
		UsagePeriodStart: PeriodStart(now),
	}
}

// PeriodStart returns the start of the UTC calendar month containing t.
// Usage counters hard-reset at this boundary.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NextPeriodStart returns the boundary at which the current counter resets.
func NextPeriodStart(t time.Time) time.Time {
	return PeriodStart(t).AddDate(0, 1, 0)
}

// Consistent reports whether the stored limit matches the tier.
func Consistent(s State) bool {
	return s.OperationsLimit == DeriveLimit(s.Tier)
}

// Normalize re-derives the limit from the tier, repairing rows written by
// paths that updated only one of the two columns.
func Normalize(s State) State {
	if !s.Tier.IsValid() {
		s.Tier = TierFree
	}
	s.OperationsLimit = DeriveLimit(s.Tier)
	return s
}

// Rollover zeroes the counter when now falls in a later period than the one
// recorded in the state.
func Rollover(s State, now time.Time) State {
	start := PeriodStart(now)
	if s.UsagePeriodStart.Before(start) {
		s.OperationsUsed = 0
		s.UsagePeriodStart = start
	}
	return s
}

// SetTier moves s to tier t and re-derives the limit in the same step.
// Entering beta stamps the approval time unless one is already recorded.
func SetTier(s State, t Tier, now time.Time) State {
	if !t.IsValid() {
		t = TierFree
	}
	s.Tier = t
	s.OperationsLimit = DeriveLimit(t)
	if t == TierBeta && s.BetaApprovedAt == nil {
		s.BetaApprovedAt = stamp(now)
	}
	return s
}

// RequestBeta records a beta-access request. Profiles that already hold beta
// access are returned unchanged; a repeated request refreshes the timestamp.
func RequestBeta(s State, now time.Time) State {
	if s.Tier == TierBeta {
		return s
	}
	s.BetaRequestedAt = stamp(now)
	return s
}

// ApproveBeta grants beta access.
func ApproveBeta(s State, now time.Time) State {
	return SetTier(s, TierBeta, now)
}

// RevokeBeta returns a beta profile to the free tier. The original request
// time is kept as history.
func RevokeBeta(s State, now time.Time) (State, error) {
	if s.Tier != TierBeta {
		return s, ErrBetaNotActive
	}
	s = SetTier(s, TierFree, now)
	s.BetaApprovedAt = nil
	s.BetaRevokedAt = stamp(now)
	return s, nil
}

// RecordUsage adds count operations to the current period. An increment that
// would push a finite counter past its limit is rejected with a *QuotaError
// and the counter is not changed.
func RecordUsage(s State, count int64, now time.Time) (State, error) {
	if count <= 0 {
		return s, ErrInvalidCount
	}

	s = Rollover(s, now)

	next := s.OperationsUsed + count
	if next < s.OperationsUsed || !s.OperationsLimit.Allows(next) {
		return s, &QuotaError{
			Limit:     s.OperationsLimit,
			Used:      s.OperationsUsed,
			Requested: count,
		}
	}

	s.OperationsUsed = next
	return s, nil
}

// ResetUsage zeroes the counter and starts a new period at the current month.
func ResetUsage(s State, now time.Time) State {
	s.OperationsUsed = 0
	s.UsagePeriodStart = PeriodStart(now)
	return s
}

func stamp(now time.Time) *time.Time {
	t := now.UTC()
	return &t
}
