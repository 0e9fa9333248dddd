package metrics

import "time"

// NoopRecorder discards everything.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return NoopRecorder{}
}

func (NoopRecorder) IncTierChange(string)                      {}
func (NoopRecorder) IncBetaTransition(string)                  {}
func (NoopRecorder) AddUsageRecorded(int64)                    {}
func (NoopRecorder) IncUsageRejected()                         {}
func (NoopRecorder) IncUsageReset()                            {}
func (NoopRecorder) IncAccountDeleted(bool)                    {}
func (NoopRecorder) IncBridgeCall(string)                      {}
func (NoopRecorder) IncInstallEventPublished(string)           {}
func (NoopRecorder) IncInstallEventProcessed(string)           {}
func (NoopRecorder) ObserveInstallBatchSize(int)               {}
func (NoopRecorder) ObserveInstallBatchDuration(time.Duration) {}
func (NoopRecorder) SetInstallQueueDepth(int64)                {}
