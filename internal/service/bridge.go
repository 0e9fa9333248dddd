package service

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	"github.com/sheetsmith/sheetsmith/internal/apperr"
	"github.com/sheetsmith/sheetsmith/internal/bridge"
	"github.com/sheetsmith/sheetsmith/internal/entitlement"
	"github.com/sheetsmith/sheetsmith/internal/metrics"
)

// Caller forwards a call to the add-on library.
type Caller interface {
	Call(ctx context.Context, fn bridge.Function, userID, requestID string, args json.RawMessage) (json.RawMessage, error)
}

// UsageMeter records billable operations.
type UsageMeter interface {
	RecordUsage(ctx context.Context, id string, count int64) (entitlement.Usage, error)
}

// BridgeService meters billable library calls before forwarding them.
type BridgeService struct {
	caller  Caller
	meter   UsageMeter
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewBridgeService creates a BridgeService.
func NewBridgeService(caller Caller, meter UsageMeter, recorder metrics.Recorder, logger *slog.Logger) *BridgeService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &BridgeService{
		caller:  caller,
		meter:   meter,
		metrics: recorder,
		logger:  logger.With("component", "bridge"),
	}
}

// Call forwards args to the named function on behalf of userID. A billable
// function consumes one operation first; when the quota is exhausted the
// library is not called. Operations are not refunded if the library fails.
func (s *BridgeService) Call(ctx context.Context, userID, requestID, name string, args json.RawMessage) (json.RawMessage, error) {
	fn, err := bridge.Lookup(name)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(args)) > 0 && !json.Valid(args) {
		return nil, bridge.ErrInvalidArgs
	}

	if fn.Billable {
		if _, err := s.meter.RecordUsage(ctx, userID, 1); err != nil {
			if apperr.Is(err, apperr.KindQuotaExceeded) {
				s.metrics.IncBridgeCall(metrics.BridgeRejected)
			}
			return nil, err
		}
	}

	out, err := s.caller.Call(ctx, fn, userID, requestID, args)
	if err != nil {
		s.metrics.IncBridgeCall(metrics.BridgeUpstream)
		s.logger.Warn("bridge call failed", "function", fn.Name, "user_id", userID, "error", err)
		return nil, err
	}

	s.metrics.IncBridgeCall(metrics.BridgeOK)
	return out, nil
}
