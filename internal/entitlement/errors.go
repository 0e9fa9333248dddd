package entitlement

import (
	"fmt"

	"github.com/sheetsmith/sheetsmith/internal/apperr"
)

// Entitlement errors.
var (
	ErrUnknownTier   = apperr.Validation("INVALID_TIER", "unknown tier; valid tiers: free, beta, pro, enterprise")
	ErrInvalidCount  = apperr.Validation("INVALID_COUNT", "operation count must be a positive integer")
	ErrBetaNotActive = apperr.Validation("BETA_NOT_ACTIVE", "profile does not have beta access")
	ErrQuotaExceeded = apperr.New(apperr.KindQuotaExceeded, "QUOTA_EXCEEDED", "operations quota exceeded")
)

// QuotaError reports a rejected usage increment. The counter is left unchanged.
type QuotaError struct {
	Limit     Limit
	Used      int64
	Requested int64
}

// Error implements the error interface.
func (e *QuotaError) Error() string {
	return fmt.Sprintf("operations quota exceeded: used %d of %s, requested %d", e.Used, e.Limit, e.Requested)
}

// Unwrap lets errors.Is match ErrQuotaExceeded.
func (e *QuotaError) Unwrap() error {
	return ErrQuotaExceeded
}

// Details exposes the counter state to API clients.
func (e *QuotaError) Details() map[string]any {
	return map[string]any{
		"operations_used":  e.Used,
		"operations_limit": e.Limit,
		"requested":        e.Requested,
	}
}
