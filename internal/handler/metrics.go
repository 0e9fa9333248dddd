package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/sheetsmith/sheetsmith/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeLabelled(w, "sheetsmith_tier_changes_total", "tier", snap.TierChanges)
	writeLabelled(w, "sheetsmith_beta_transitions_total", "transition", snap.BetaTransitions)
	writeMetric(w, "sheetsmith_operations_recorded_total %d\n", snap.UsageRecorded)
	writeMetric(w, "sheetsmith_usage_rejected_total %d\n", snap.UsageRejected)
	writeMetric(w, "sheetsmith_usage_resets_total %d\n", snap.UsageResets)

	writeMetric(w, "sheetsmith_accounts_deleted_total %d\n", snap.AccountsDeleted)
	writeMetric(w, "sheetsmith_identity_delete_failures_total %d\n", snap.IdentityDeleteFailures)

	writeLabelled(w, "sheetsmith_bridge_calls_total", "status", snap.BridgeCalls)

	writeLabelled(w, "sheetsmith_installation_events_published_total", "status", snap.InstallEventsPublished)
	writeLabelled(w, "sheetsmith_installation_events_processed_total", "status", snap.InstallEventsProcessed)
	writeMetric(w, "sheetsmith_installation_batches_total %d\n", snap.InstallBatchCount)
	writeMetric(w, "sheetsmith_installation_batch_events_total %d\n", snap.InstallBatchEvents)
	writeMetric(w, "sheetsmith_installation_batch_duration_seconds_sum %.6f\n", float64(snap.InstallBatchTotalNs)/1e9)
	writeMetric(w, "sheetsmith_installation_queue_depth %d\n", snap.InstallQueueDepth)
}

// writeLabelled writes one sample per label value, in a stable order.
func writeLabelled(w http.ResponseWriter, name, label string, values map[string]uint64) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeMetric(w, "%s{%s=%q} %d\n", name, label, k, values[k])
	}
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
