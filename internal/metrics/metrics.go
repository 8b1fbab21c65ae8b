// Package metrics provides the Prometheus collectors exposed on the
// health server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "zonewarden"

var (
	// ReconcilePassesTotal counts reconciliation passes by outcome.
	ReconcilePassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "reconcile_passes_total",
		Help:      "Total reconciliation passes by status (success, error).",
	}, []string{"status"})

	// ReconcileDuration observes reconciliation pass durations.
	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "reconcile_duration_seconds",
		Help:      "Duration of reconciliation passes.",
		Buckets:   prometheus.DefBuckets,
	})

	// RecordActionsTotal counts provider record mutations by action and outcome.
	RecordActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "record_actions_total",
		Help:      "Record actions by action (create, update, delete) and status (success, failed).",
	}, []string{"action", "status"})

	// HostnamesDiscovered tracks the size of the last hostname set.
	HostnamesDiscovered = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "hostnames_discovered",
		Help:      "Hostnames reported by the source on the last tick.",
	})

	// TrackedRecords tracks how many records the store currently owns.
	TrackedRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "tracked_records",
		Help:      "Tracked records by management state (managed, unmanaged).",
	}, []string{"state"})

	// OrphanedRecords tracks records currently marked orphaned.
	OrphanedRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "orphaned_records",
		Help:      "App-managed records currently awaiting the orphan grace period.",
	})

	// ProviderErrorsTotal counts provider call failures by reason.
	ProviderErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "provider_errors_total",
		Help:      "Provider call failures by classified reason.",
	}, []string{"provider", "reason"})

	// EventsDroppedTotal counts events dropped from slow subscriber queues.
	EventsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "events_dropped_total",
		Help:      "Events dropped because a subscriber queue was full.",
	})

	// PublicIPStale reports whether the public IP refresher is serving a
	// stale value (1) or a fresh one (0).
	PublicIPStale = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "public_ip_stale",
		Help:      "1 when the last public IP refresh failed and a stale value is served.",
	})

	// Paused reports whether the periodic loops are paused.
	Paused = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "paused",
		Help:      "1 while the reconcile and cleanup loops are paused.",
	})

	buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "build_info",
		Help:      "Build information.",
	}, []string{"version", "go_version"})
)

// SetBuildInfo records the build info gauge once at startup.
func SetBuildInfo(version, goVersion string) {
	buildInfo.WithLabelValues(version, goVersion).Set(1)
}
