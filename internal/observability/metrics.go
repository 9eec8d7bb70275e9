package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace defines the global prefix for all metrics (decider_...).
const namespace = "decider"

// lowLatencyBuckets add 1ms/2ms resolution: the standard buckets start at
// 5ms, far too coarse for an in-memory evaluation path.
var lowLatencyBuckets = []float64{.001, .002, .005, .010, .015, .020, .025, .030, .050, .100, .500}

var (
	// -------------------------------------------------------------------------
	// CLIENT (request-scoped decider operations)
	// -------------------------------------------------------------------------

	// ClientOpsTotal counts decider operations by outcome.
	// Metric: decider_client_operations_total
	ClientOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "client",
		Name:      "operations_total",
		Help:      "Count of decider client operations by success and error type",
	}, []string{"operation", "success", "error_type"})

	// ExposuresTotal counts emitted exposure events by emission mode.
	// Metric: decider_client_exposures_total
	ExposuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "client",
		Name:      "exposures_total",
		Help:      "Total exposure events handed to the telemetry sink",
	}, []string{"mode"}) // eager, holdout, manual

	// MalformedEventsTotal counts raw decision events dropped by the codec.
	// Metric: decider_client_malformed_events_total
	MalformedEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "client",
		Name:      "malformed_events_total",
		Help:      "Raw decision events skipped because they failed to parse",
	})

	// -------------------------------------------------------------------------
	// WATCHER (config snapshot loading)
	// -------------------------------------------------------------------------

	// SnapshotReloadsTotal counts config snapshot swaps by outcome.
	// Metric: decider_watcher_snapshot_reloads_total
	SnapshotReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "watcher",
		Name:      "snapshot_reloads_total",
		Help:      "Config snapshot reload attempts by status",
	}, []string{"source", "status"}) // source: file, redis; status: success, fail

	// SnapshotTimestamp records when the current snapshot was loaded.
	// Staleness alerts key off this gauge.
	// Metric: decider_watcher_snapshot_timestamp_seconds
	SnapshotTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "watcher",
		Name:      "snapshot_timestamp_seconds",
		Help:      "Unix time of the last successful snapshot load",
	}, []string{"source"})

	// -------------------------------------------------------------------------
	// DATA PLANE (gRPC sidecar)
	// -------------------------------------------------------------------------

	// DataPlaneReqDuration measures the latency of data-plane RPCs.
	// Metric: decider_data_plane_grpc_handling_seconds
	DataPlaneReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "data_plane",
		Name:      "grpc_handling_seconds",
		Help:      "Time taken to handle data plane RPCs",
		Buckets:   lowLatencyBuckets,
	}, []string{"method", "code"})

	// MetadataCacheHits / MetadataCacheMisses track the experiment-metadata
	// L1 cache in front of GetExperiment lookups.
	MetadataCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "data_plane",
		Name:      "metadata_cache_hits_total",
		Help:      "Experiment metadata L1 cache hits",
	})

	MetadataCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "data_plane",
		Name:      "metadata_cache_misses_total",
		Help:      "Experiment metadata L1 cache misses",
	})
)
