package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for dispatch metrics.
const (
	OutcomeOK        = "ok"
	OutcomeRecovered = "recovered"
	OutcomeError     = "error"
)

// unmatchedPattern labels dispatches that resolved no route, keeping the
// pattern label low-cardinality.
const unmatchedPattern = "unmatched"

// otherOp replaces the op label of unmatched dispatches whose op is not an
// HTTP verb, since clients choose it freely.
const otherOp = "other"

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "dispatch").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are added to every metric.
	ConstLabels prometheus.Labels

	// Buckets are the duration histogram buckets.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry receives the collectors.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures NewMetrics.
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

// WithConstLabels sets labels added to every metric.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the duration histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the registerer.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "dispatch",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics records dispatch counts, latency and the in-flight gauge. Labels
// use the canonical route pattern, never the raw value.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
	notFound *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics(opts ...MetricsOption) (*Metrics, error) {
	cfg := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "calls_total",
			Help:        "Dispatches by op, pattern and outcome.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"op", "pattern", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "duration_seconds",
			Help:        "Dispatch execution time.",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}, []string{"op", "pattern"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "inflight",
			Help:        "Dispatches currently executing.",
			ConstLabels: cfg.ConstLabels,
		}),
		notFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "not_found_total",
			Help:        "Invocations that resolved no route.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"op"}),
	}

	if cfg.Registry != nil {
		for _, c := range []prometheus.Collector{m.calls, m.duration, m.inflight, m.notFound} {
			if err := cfg.Registry.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) begin() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Metrics) end(op, pattern, outcome string, d time.Duration, notFound bool) {
	if m == nil {
		return
	}
	m.inflight.Dec()
	if pattern == "" {
		pattern = unmatchedPattern
		if _, ok := httpVerbs[op]; !ok && op != "" {
			op = otherOp
		}
	}
	m.calls.WithLabelValues(op, pattern, outcome).Inc()
	m.duration.WithLabelValues(op, pattern).Observe(d.Seconds())
	if notFound {
		m.notFound.WithLabelValues(op).Inc()
	}
}
