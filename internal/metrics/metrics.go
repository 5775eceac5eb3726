// Package metrics exposes Prometheus collectors for the generation pipeline.
// All methods are nil-safe so callers can run without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 缓存查询结果标签。
const (
	LookupHit    = "hit"
	LookupMiss   = "miss"
	LookupBypass = "bypass"
)

// 生成结果标签。
const (
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeTimeout     = "timeout"
	OutcomePassthrough = "passthrough"
	OutcomeCached      = "cached"
)

// Options 控制指标命名与可选的 GaugeFunc 数据源。
type Options struct {
	Namespace    string
	CacheEntries func() int
	InFlight     func() int64
}

// Metrics holds the pipeline collectors.
type Metrics struct {
	CacheLookups       *prometheus.CounterVec
	Generations        *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	HeartbeatTicks     *prometheus.CounterVec
	Abandoned          prometheus.Counter
	Stored             *prometheus.CounterVec
}

// New 在 reg 上注册全部指标；reg 为 nil 时使用默认注册表。
func New(reg prometheus.Registerer, opts Options) *Metrics {
	if opts.Namespace == "" {
		opts.Namespace = "tryon_hub"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	ns := opts.Namespace

	m := &Metrics{
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Result cache lookups by outcome (hit, miss, bypass)",
			},
			[]string{"operation", "result"},
		),
		Generations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "generation",
				Name:      "requests_total",
				Help:      "Generation requests by outcome",
			},
			[]string{"operation", "outcome"},
		),
		GenerationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: "generation",
				Name:      "duration_seconds",
				Help:      "Wall-clock time spent waiting on the remote generator",
				Buckets:   []float64{.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600},
			},
			[]string{"operation"},
		),
		HeartbeatTicks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "generation",
				Name:      "heartbeats_total",
				Help:      "Heartbeat signals emitted while waiting on the remote generator",
			},
			[]string{"operation"},
		),
		Abandoned: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "executor",
				Name:      "abandoned_total",
				Help:      "Timed-out tasks that later finished in the background",
			},
		),
		Stored: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "storage",
				Name:      "writes_total",
				Help:      "Result storage writes by status",
			},
			[]string{"status"},
		),
	}

	if opts.CacheEntries != nil {
		size := opts.CacheEntries
		factory.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "cache",
				Name:      "entries",
				Help:      "Current number of cached results",
			},
			func() float64 { return float64(size()) },
		)
	}
	if opts.InFlight != nil {
		inFlight := opts.InFlight
		factory.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "executor",
				Name:      "in_flight",
				Help:      "Tasks currently holding an executor slot, abandoned ones included",
			},
			func() float64 { return float64(inFlight()) },
		)
	}

	return m
}

// CacheLookup records one cache lookup.
func (m *Metrics) CacheLookup(operation, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(operation, result).Inc()
}

// Generation records the outcome of one request. duration 为 0 时不记录直方图。
func (m *Metrics) Generation(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Generations.WithLabelValues(operation, outcome).Inc()
	if duration > 0 {
		m.GenerationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	}
}

// HeartbeatTick records one heartbeat.
func (m *Metrics) HeartbeatTick(operation string) {
	if m == nil {
		return
	}
	m.HeartbeatTicks.WithLabelValues(operation).Inc()
}

// TaskAbandoned records an abandoned task finishing.
func (m *Metrics) TaskAbandoned() {
	if m == nil {
		return
	}
	m.Abandoned.Inc()
}

// ResultStored records a storage write; ok=false counts as a failure.
func (m *Metrics) ResultStored(ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.Stored.WithLabelValues(status).Inc()
}
