package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config represents metrics configuration
type Config struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Namespace string `json:"namespace" yaml:"namespace" mapstructure:"namespace"`
	Path      string `json:"path" yaml:"path" mapstructure:"path"`
}

// Collector manages all metrics for the replication service.
// A nil *Collector is valid and records nothing.
type Collector struct {
	namespace string
	registry  *prometheus.Registry

	// Migration metrics
	RecordsSynced   *prometheus.CounterVec
	RecordsFailed   *prometheus.CounterVec
	RecordsDeferred *prometheus.CounterVec
	BatchDuration   *prometheus.HistogramVec
	EntityStatus    *prometheus.GaugeVec

	// Dual-write metrics
	DispatchTotal      *prometheus.CounterVec
	DispatchDuration   *prometheus.HistogramVec
	ReconcileRequired  *prometheus.CounterVec
	DispatchQueueDepth prometheus.Gauge

	// Verification metrics
	SourceCount *prometheus.GaugeVec
	TargetCount *prometheus.GaugeVec
	Drift       *prometheus.GaugeVec

	// Store metrics
	ConnectAttempts *prometheus.CounterVec
	CacheOperations *prometheus.CounterVec

	StartTime prometheus.Gauge
}

// NewCollector creates a new metrics collector on a private registry
func NewCollector(namespace string) *Collector {
	c := &Collector{
		namespace: namespace,
		registry:  prometheus.NewRegistry(),
	}

	c.initializeMetrics()
	c.registerMetrics()

	return c
}

func (c *Collector) initializeMetrics() {
	c.RecordsSynced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "migration_records_synced_total",
			Help:      "Records written to the target store by the batch migration",
		},
		[]string{"schema", "entity_type"},
	)

	c.RecordsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "migration_records_failed_total",
			Help:      "Records that failed to transform or write during batch migration",
		},
		[]string{"schema", "entity_type"},
	)

	c.RecordsDeferred = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "records_deferred_total",
			Help:      "Records skipped because a referenced parent was not yet replicated",
		},
		[]string{"entity_type", "source"},
	)

	c.BatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.namespace,
			Name:      "migration_batch_duration_seconds",
			Help:      "Duration of one migration batch",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"schema", "entity_type"},
	)

	c.EntityStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      "migration_entity_status",
			Help:      "Current sync status per entity type (1 for the active status)",
		},
		[]string{"schema", "entity_type", "status"},
	)

	c.DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "dual_write_dispatch_total",
			Help:      "Dual-write tasks by outcome",
		},
		[]string{"entity_type", "operation", "outcome"},
	)

	c.DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.namespace,
			Name:      "dual_write_dispatch_duration_seconds",
			Help:      "Duration of one dual-write task",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		},
		[]string{"entity_type", "operation"},
	)

	c.ReconcileRequired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "dual_write_reconcile_required_total",
			Help:      "Bulk mutations observed that need an explicit reconciliation",
		},
		[]string{"entity_type", "operation"},
	)

	c.DispatchQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      "dual_write_queue_depth",
			Help:      "Tasks waiting in the dual-write queue",
		},
	)

	c.SourceCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      "verify_source_count",
			Help:      "Last observed source record count",
		},
		[]string{"entity_type"},
	)

	c.TargetCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      "verify_target_count",
			Help:      "Last observed target row count",
		},
		[]string{"entity_type"},
	)

	c.Drift = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      "verify_drift",
			Help:      "Source count minus target count at last verification",
		},
		[]string{"entity_type"},
	)

	c.ConnectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "store_connect_attempts_total",
			Help:      "Connection attempts against a store by result",
		},
		[]string{"store", "result"},
	)

	c.CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "id_cache_operations_total",
			Help:      "ID translation cache lookups by result",
		},
		[]string{"operation", "result"},
	)

	c.StartTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      "start_time_seconds",
			Help:      "Service start time in Unix seconds",
		},
	)
}

func (c *Collector) registerMetrics() {
	c.registry.MustRegister(
		c.RecordsSynced,
		c.RecordsFailed,
		c.RecordsDeferred,
		c.BatchDuration,
		c.EntityStatus,
		c.DispatchTotal,
		c.DispatchDuration,
		c.ReconcileRequired,
		c.DispatchQueueDepth,
		c.SourceCount,
		c.TargetCount,
		c.Drift,
		c.ConnectAttempts,
		c.CacheOperations,
		c.StartTime,
	)

	c.StartTime.SetToCurrentTime()
}

// RecordBatch records the outcome of one migration batch
func (c *Collector) RecordBatch(schema, entityType string, synced, failed int, duration time.Duration) {
	if c == nil {
		return
	}
	c.RecordsSynced.WithLabelValues(schema, entityType).Add(float64(synced))
	c.RecordsFailed.WithLabelValues(schema, entityType).Add(float64(failed))
	c.BatchDuration.WithLabelValues(schema, entityType).Observe(duration.Seconds())
}

// RecordDeferred counts a record skipped for an unresolved reference
func (c *Collector) RecordDeferred(entityType, source string) {
	if c == nil {
		return
	}
	c.RecordsDeferred.WithLabelValues(entityType, source).Inc()
}

// SetEntityStatus marks status as the active one for an entity type
func (c *Collector) SetEntityStatus(schema, entityType, status string, all []string) {
	if c == nil {
		return
	}
	for _, s := range all {
		value := 0.0
		if s == status {
			value = 1
		}
		c.EntityStatus.WithLabelValues(schema, entityType, s).Set(value)
	}
}

// RecordDispatch records one drained dual-write task
func (c *Collector) RecordDispatch(entityType, operation, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.DispatchTotal.WithLabelValues(entityType, operation, outcome).Inc()
	c.DispatchDuration.WithLabelValues(entityType, operation).Observe(duration.Seconds())
}

// RecordReconcileRequired counts a bulk mutation that was not auto-dispatched
func (c *Collector) RecordReconcileRequired(entityType, operation string) {
	if c == nil {
		return
	}
	c.ReconcileRequired.WithLabelValues(entityType, operation).Inc()
}

// SetQueueDepth sets the dual-write queue depth
func (c *Collector) SetQueueDepth(depth int) {
	if c == nil {
		return
	}
	c.DispatchQueueDepth.Set(float64(depth))
}

// RecordVerification records source and target counts for an entity type
func (c *Collector) RecordVerification(entityType string, sourceCount, targetCount int64) {
	if c == nil {
		return
	}
	c.SourceCount.WithLabelValues(entityType).Set(float64(sourceCount))
	c.TargetCount.WithLabelValues(entityType).Set(float64(targetCount))
	c.Drift.WithLabelValues(entityType).Set(float64(sourceCount - targetCount))
}

// RecordConnectAttempt counts a store connection attempt
func (c *Collector) RecordConnectAttempt(store, result string) {
	if c == nil {
		return
	}
	c.ConnectAttempts.WithLabelValues(store, result).Inc()
}

// RecordCacheOperation records cache operation metrics
func (c *Collector) RecordCacheOperation(operation, result string) {
	if c == nil {
		return
	}
	c.CacheOperations.WithLabelValues(operation, result).Inc()
}

// CreateHandler creates an HTTP handler for metrics
func (c *Collector) CreateHandler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
