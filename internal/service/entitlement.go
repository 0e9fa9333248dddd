package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sheetsmith/sheetsmith/internal/entitlement"
	"github.com/sheetsmith/sheetsmith/internal/metrics"
	"github.com/sheetsmith/sheetsmith/internal/model"
	"github.com/sheetsmith/sheetsmith/internal/notify"
)

// EntitlementService persists entitlement transitions. Every transition runs
// against a row-locked profile, so concurrent writers serialise in Postgres.
type EntitlementService struct {
	profiles
	notifier notify.Notifier
	metrics  metrics.Recorder
	now      func() time.Time
}

// NewEntitlementService creates an EntitlementService. cache, notifier and
// recorder may be nil.
func NewEntitlementService(store ProfileStore, c ProfileCache, notifier notify.Notifier, recorder metrics.Recorder, logger *slog.Logger) *EntitlementService {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &EntitlementService{
		profiles: profiles{store: store, cache: orNoop(c), logger: logger.With("component", "entitlement")},
		notifier: notifier,
		metrics:  recorder,
		now:      utcNow,
	}
}

// transition applies fn to the locked entitlement state and saves the result.
// The stored limit is re-derived from the tier before fn sees it.
func (s *EntitlementService) transition(ctx context.Context, id string, fn func(st entitlement.State, now time.Time) (entitlement.State, error)) (*model.Profile, error) {
	if id == "" {
		return nil, ErrMissingUserID
	}
	now := s.now()
	p, err := s.store.WithProfileForUpdate(ctx, id, func(p *model.Profile) error {
		if !entitlement.Consistent(p.State) {
			s.logger.Warn("repairing tier/limit drift",
				"user_id", p.ID,
				"tier", p.Tier,
				"operations_limit", p.OperationsLimit,
			)
		}
		next, err := fn(entitlement.Normalize(p.State), now)
		if err != nil {
			return err
		}
		p.State = next
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	s.invalidate(ctx, id)
	return p, nil
}

// SetTier moves a profile to tier t, re-deriving its limit.
func (s *EntitlementService) SetTier(ctx context.Context, id string, t entitlement.Tier) (*model.Profile, error) {
	if !t.IsValid() {
		return nil, entitlement.ErrUnknownTier
	}
	wasBeta := false
	p, err := s.transition(ctx, id, func(st entitlement.State, now time.Time) (entitlement.State, error) {
		wasBeta = st.Tier == entitlement.TierBeta
		return entitlement.SetTier(st, t, now), nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTierChange(string(t))
	if t == entitlement.TierBeta && !wasBeta {
		s.metrics.IncBetaTransition(metrics.BetaApproved)
	}
	s.logger.Info("tier changed", "user_id", id, "tier", t, "operations_limit", p.OperationsLimit)
	return p, nil
}

// RequestBeta records a beta request. Profiles already on beta are unchanged.
func (s *EntitlementService) RequestBeta(ctx context.Context, id string) (*model.Profile, error) {
	p, err := s.transition(ctx, id, func(st entitlement.State, now time.Time) (entitlement.State, error) {
		return entitlement.RequestBeta(st, now), nil
	})
	if err != nil {
		return nil, err
	}
	if p.Tier != entitlement.TierBeta {
		s.metrics.IncBetaTransition(metrics.BetaRequested)
		s.logger.Info("beta access requested", "user_id", id)
	}
	return p, nil
}

// ApproveBeta grants beta access and sends the approval notice.
func (s *EntitlementService) ApproveBeta(ctx context.Context, id string) (*model.Profile, error) {
	p, err := s.transition(ctx, id, func(st entitlement.State, now time.Time) (entitlement.State, error) {
		return entitlement.ApproveBeta(st, now), nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTierChange(string(entitlement.TierBeta))
	s.metrics.IncBetaTransition(metrics.BetaApproved)
	s.logger.Info("beta access approved", "user_id", id)

	if err := s.notifier.BetaApproved(ctx, p); err != nil {
		s.logger.Warn("beta approval notice failed", "user_id", id, "error", err)
	}
	return p, nil
}

// RevokeBeta returns a beta profile to the free tier.
func (s *EntitlementService) RevokeBeta(ctx context.Context, id string) (*model.Profile, error) {
	p, err := s.transition(ctx, id, func(st entitlement.State, now time.Time) (entitlement.State, error) {
		return entitlement.RevokeBeta(st, now)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTierChange(string(entitlement.TierFree))
	s.metrics.IncBetaTransition(metrics.BetaRevoked)
	s.logger.Info("beta access revoked", "user_id", id)

	if err := s.notifier.BetaRevoked(ctx, p); err != nil {
		s.logger.Warn("beta revocation notice failed", "user_id", id, "error", err)
	}
	return p, nil
}

// RecordUsage meters count operations. Check and increment happen under the
// row lock; a rejected increment leaves the stored counter untouched.
func (s *EntitlementService) RecordUsage(ctx context.Context, id string, count int64) (entitlement.Usage, error) {
	p, err := s.transition(ctx, id, func(st entitlement.State, now time.Time) (entitlement.State, error) {
		return entitlement.RecordUsage(st, count, now)
	})
	if err != nil {
		if errors.Is(err, entitlement.ErrQuotaExceeded) {
			s.metrics.IncUsageRejected()
			s.logger.Info("usage rejected", "user_id", id, "requested", count)
		}
		return entitlement.Usage{}, err
	}

	s.metrics.AddUsageRecorded(count)
	return p.Usage(s.now()), nil
}

// ResetUsage zeroes the current period's counter.
func (s *EntitlementService) ResetUsage(ctx context.Context, id string) (*model.Profile, error) {
	p, err := s.transition(ctx, id, func(st entitlement.State, now time.Time) (entitlement.State, error) {
		return entitlement.ResetUsage(st, now), nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncUsageReset()
	s.logger.Info("usage reset", "user_id", id)
	return p, nil
}

// GetUsage reports usage for the current period. A pending monthly reset is
// reflected without writing.
func (s *EntitlementService) GetUsage(ctx context.Context, id string) (entitlement.Usage, error) {
	p, err := s.get(ctx, id)
	if err != nil {
		return entitlement.Usage{}, err
	}
	return p.Usage(s.now()), nil
}
