package instrument

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/fluxstore/pkg/registry"
	"github.com/vango-dev/fluxstore/pkg/store"
)

// MetricsConfig configures the Prometheus observer.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "fluxstore").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for emission duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus observer.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "fluxstore",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics is a Prometheus observer for stores and pools.
//
// Metrics collected:
//   - fluxstore_store_writes_total: keys written by store
//   - fluxstore_store_emits_total: change notifications by store
//   - fluxstore_store_emit_keys: keys per notification by store
//   - fluxstore_store_emit_duration_seconds: delivery time by store
//   - fluxstore_store_listener_panics_total: recovered listener panics by store
//   - fluxstore_pool_size: pooled instances by pool
//   - fluxstore_pool_evictions_total: evicted instances by pool
type Metrics struct {
	writes       *prometheus.CounterVec
	emits        *prometheus.CounterVec
	emitKeys     *prometheus.HistogramVec
	emitDuration *prometheus.HistogramVec
	panics       *prometheus.CounterVec
	poolSize     *prometheus.GaugeVec
	evictions    *prometheus.CounterVec
}

var (
	_ store.Observer    = (*Metrics)(nil)
	_ registry.Observer = (*Metrics)(nil)
)

// NewMetrics registers the metrics and returns the observer. Each registry
// accepts one Metrics; use WithRegistry for additional instances.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		writes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "store_writes_total",
			Help:        "Total number of keys written to stores",
			ConstLabels: config.ConstLabels,
		}, []string{"store"}),

		emits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "store_emits_total",
			Help:        "Total number of change notifications broadcast",
			ConstLabels: config.ConstLabels,
		}, []string{"store"}),

		emitKeys: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "store_emit_keys",
			Help:        "Number of changed keys per notification",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{0, 1, 2, 4, 8, 16, 32},
		}, []string{"store"}),

		emitDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "store_emit_duration_seconds",
			Help:        "Time spent delivering a change notification to listeners",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"store"}),

		panics: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "store_listener_panics_total",
			Help:        "Total number of recovered change listener panics",
			ConstLabels: config.ConstLabels,
		}, []string{"store"}),

		poolSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "pool_size",
			Help:        "Number of pooled store instances",
			ConstLabels: config.ConstLabels,
		}, []string{"pool"}),

		evictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "pool_evictions_total",
			Help:        "Total number of evicted store instances",
			ConstLabels: config.ConstLabels,
		}, []string{"pool"}),
	}
}

// StoreWrite implements store.Observer.
func (m *Metrics) StoreWrite(name string, keys int) {
	m.writes.WithLabelValues(name).Add(float64(keys))
}

// StoreEmit implements store.Observer.
func (m *Metrics) StoreEmit(name string, keys []string) func() {
	m.emits.WithLabelValues(name).Inc()
	m.emitKeys.WithLabelValues(name).Observe(float64(len(keys)))
	timer := prometheus.NewTimer(m.emitDuration.WithLabelValues(name))
	return func() {
		timer.ObserveDuration()
	}
}

// ListenerPanic implements store.Observer.
func (m *Metrics) ListenerPanic(name string, _ any) {
	m.panics.WithLabelValues(name).Inc()
}

// PoolSize implements registry.Observer.
func (m *Metrics) PoolSize(pool string, size int) {
	m.poolSize.WithLabelValues(pool).Set(float64(size))
}

// PoolEviction implements registry.Observer.
func (m *Metrics) PoolEviction(pool string) {
	m.evictions.WithLabelValues(pool).Inc()
}
