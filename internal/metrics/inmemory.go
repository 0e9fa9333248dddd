package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters. Labelled counters are keyed
// by label value.
type Snapshot struct {
	TierChanges     map[string]uint64
	BetaTransitions map[string]uint64
	UsageRecorded   uint64
	UsageRejected   uint64
	UsageResets     uint64

	AccountsDeleted        uint64
	IdentityDeleteFailures uint64

	BridgeCalls map[string]uint64

	InstallEventsPublished map[string]uint64
	InstallEventsProcessed map[string]uint64
	InstallBatchCount      uint64
	InstallBatchEvents     uint64
	InstallBatchTotalNs    int64
	InstallQueueDepth      int64
}

// counterVec is a counter partitioned by one label.
type counterVec struct {
	mu sync.Mutex
	m  map[string]uint64
}

func (c *counterVec) inc(label string) {
	c.mu.Lock()
	if c.m == nil {
		c.m = make(map[string]uint64)
	}
	c.m[label]++
	c.mu.Unlock()
}

func (c *counterVec) snapshot() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]uint64, len(c.m))
	for k, v := range c.m {
		out[k] = v
	}
	return out
}

// InMemoryRecorder keeps counters in process memory and backs /metrics.
type InMemoryRecorder struct {
	tierChanges     counterVec
	betaTransitions counterVec
	usageRecorded   uint64
	usageRejected   uint64
	usageResets     uint64

	accountsDeleted        uint64
	identityDeleteFailures uint64

	bridgeCalls counterVec

	installPublished    counterVec
	installProcessed    counterVec
	installBatchCount   uint64
	installBatchEvents  uint64
	installBatchTotalNs int64
	installQueueDepth   int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		TierChanges:     m.tierChanges.snapshot(),
		BetaTransitions: m.betaTransitions.snapshot(),
		UsageRecorded:   atomic.LoadUint64(&m.usageRecorded),
		UsageRejected:   atomic.LoadUint64(&m.usageRejected),
		UsageResets:     atomic.LoadUint64(&m.usageResets),

		AccountsDeleted:        atomic.LoadUint64(&m.accountsDeleted),
		IdentityDeleteFailures: atomic.LoadUint64(&m.identityDeleteFailures),

		BridgeCalls: m.bridgeCalls.snapshot(),

		InstallEventsPublished: m.installPublished.snapshot(),
		InstallEventsProcessed: m.installProcessed.snapshot(),
		InstallBatchCount:      atomic.LoadUint64(&m.installBatchCount),
		InstallBatchEvents:     atomic.LoadUint64(&m.installBatchEvents),
		InstallBatchTotalNs:    atomic.LoadInt64(&m.installBatchTotalNs),
		InstallQueueDepth:      atomic.LoadInt64(&m.installQueueDepth),
	}
}

func (m *InMemoryRecorder) IncTierChange(tier string)         { m.tierChanges.inc(tier) }
func (m *InMemoryRecorder) IncBetaTransition(t string)        { m.betaTransitions.inc(t) }
func (m *InMemoryRecorder) AddUsageRecorded(n int64)          { atomic.AddUint64(&m.usageRecorded, uint64(n)) }
func (m *InMemoryRecorder) IncUsageRejected()                 { atomic.AddUint64(&m.usageRejected, 1) }
func (m *InMemoryRecorder) IncUsageReset()                    { atomic.AddUint64(&m.usageResets, 1) }
func (m *InMemoryRecorder) IncBridgeCall(status string)       { m.bridgeCalls.inc(status) }
func (m *InMemoryRecorder) IncInstallEventPublished(s string) { m.installPublished.inc(s) }
func (m *InMemoryRecorder) IncInstallEventProcessed(s string) { m.installProcessed.inc(s) }
func (m *InMemoryRecorder) SetInstallQueueDepth(d int64)      { atomic.StoreInt64(&m.installQueueDepth, d) }

// IncAccountDeleted counts a deletion; identity failures are tracked apart
// since they leave an orphaned login behind.
func (m *InMemoryRecorder) IncAccountDeleted(identityDeleted bool) {
	atomic.AddUint64(&m.accountsDeleted, 1)
	if !identityDeleted {
		atomic.AddUint64(&m.identityDeleteFailures, 1)
	}
}

// ObserveInstallBatchSize records one flushed batch.
func (m *InMemoryRecorder) ObserveInstallBatchSize(size int) {
	atomic.AddUint64(&m.installBatchCount, 1)
	atomic.AddUint64(&m.installBatchEvents, uint64(size))
}

// ObserveInstallBatchDuration records how long a flush took.
func (m *InMemoryRecorder) ObserveInstallBatchDuration(d time.Duration) {
	atomic.AddInt64(&m.installBatchTotalNs, d.Nanoseconds())
}

// SortedKeys returns the label values of a counter map in stable order.
func SortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
