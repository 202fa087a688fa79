// Package metrics provides Prometheus instrumentation for the detector pipeline.
// Metrics are kept in a private registry and exported through the
// node_exporter textfile collector rather than an HTTP endpoint.
package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/bat-detector/internal/logic"
)

const namespace = "batdetect"

// Metrics contains all Prometheus metrics for the pipeline.
type Metrics struct {
	EdgesTotal    *prometheus.CounterVec
	EdgesDropped  *prometheus.CounterVec
	BurstsTotal   *prometheus.CounterVec
	BurstClicks   *prometheus.HistogramVec
	BurstDuration *prometheus.HistogramVec
	QueueDepth    prometheus.Gauge
	registry      *prometheus.Registry
}

// New creates the metrics and registers them on a fresh registry.
func New() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.initMetrics()

	collectors := []prometheus.Collector{
		m.EdgesTotal, m.EdgesDropped, m.BurstsTotal, m.BurstClicks, m.BurstDuration, m.QueueDepth,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.EdgesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "edges_total",
		Help:      "Total number of falling edges seen per detector pin",
	}, []string{"pin"})

	m.EdgesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "edges_dropped_total",
		Help:      "Total number of edges dropped because the edge queue was full",
	}, []string{"pin"})

	m.BurstsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bursts_total",
		Help:      "Total number of completed bursts per detector pin",
	}, []string{"pin"})

	m.BurstClicks = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "burst_clicks",
		Help:      "Clicks per completed burst",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"pin"})

	m.BurstDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "burst_duration_seconds",
		Help:      "Summed in-burst click gaps per completed burst",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"pin"})

	m.QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Edge records waiting for the dispatch loop",
	})
}

// PinCounters returns the edge and drop counters for pin. They are resolved
// once so the edge handler never allocates a label lookup.
func (m *Metrics) PinCounters(pin int) (edges, dropped prometheus.Counter) {
	label := strconv.Itoa(pin)
	return m.EdgesTotal.WithLabelValues(label), m.EdgesDropped.WithLabelValues(label)
}

// Report records a completed burst. It satisfies report.Reporter.
// Durations are in microsecond ticks and exported in seconds.
func (m *Metrics) Report(b logic.Burst) error {
	label := strconv.Itoa(b.Pin)
	m.BurstsTotal.WithLabelValues(label).Inc()
	m.BurstClicks.WithLabelValues(label).Observe(float64(b.Clicks))
	m.BurstDuration.WithLabelValues(label).Observe(float64(b.Duration) / 1e6)
	return nil
}

// SetQueueDepth updates the queue depth gauge.
func (m *Metrics) SetQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current metrics to path in the text exposition
// format, atomically replacing any previous file.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
