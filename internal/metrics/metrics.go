// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Label values used by the Recorder methods.
const (
	StatusSuccess = "success"
	StatusDropped = "dropped"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"

	BetaRequested = "requested"
	BetaApproved  = "approved"
	BetaRevoked   = "revoked"

	BridgeOK       = "ok"
	BridgeRejected = "rejected"
	BridgeUpstream = "upstream_error"
)

// Recorder captures metric events for the application.
type Recorder interface {
	// Entitlement engine
	IncTierChange(tier string)
	IncBetaTransition(transition string)
	AddUsageRecorded(operations int64)
	IncUsageRejected()
	IncUsageReset()

	// Accounts
	IncAccountDeleted(identityDeleted bool)

	// Bridge
	IncBridgeCall(status string)

	// Installation event pipeline
	IncInstallEventPublished(status string)
	IncInstallEventProcessed(status string)
	ObserveInstallBatchSize(size int)
	ObserveInstallBatchDuration(duration time.Duration)
	SetInstallQueueDepth(depth int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
