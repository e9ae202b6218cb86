// Package metrics provides the prometheus implementation of the storage
// metrics hook and counters for the feed engine's write/delivery path.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StorageMetrics implements pebblestore.MetricsHook with prometheus
// histograms and counters.
type StorageMetrics struct {
	writeLatency  prometheus.Histogram
	readLatency   prometheus.Histogram
	commitLatency prometheus.Histogram
	writeBytes    prometheus.Counter
	readBytes     prometheus.Counter
	commitOps     prometheus.Counter
}

// NewStorageMetrics builds and registers the storage collectors on reg.
func NewStorageMetrics(reg prometheus.Registerer) *StorageMetrics {
	m := &StorageMetrics{
		writeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "feedengine", Subsystem: "storage", Name: "write_seconds",
			Help:    "Latency of single-key writes.",
			Buckets: prometheus.ExponentialBuckets(1e-5, 2, 16),
		}),
		readLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "feedengine", Subsystem: "storage", Name: "read_seconds",
			Help:    "Latency of point reads.",
			Buckets: prometheus.ExponentialBuckets(1e-5, 2, 16),
		}),
		commitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "feedengine", Subsystem: "storage", Name: "commit_seconds",
			Help:    "Latency of batch commits.",
			Buckets: prometheus.ExponentialBuckets(1e-5, 2, 16),
		}),
		writeBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "feedengine", Subsystem: "storage", Name: "write_bytes_total",
			Help: "Bytes written through single-key writes.",
		}),
		readBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "feedengine", Subsystem: "storage", Name: "read_bytes_total",
			Help: "Bytes read through point reads.",
		}),
		commitOps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "feedengine", Subsystem: "storage", Name: "commit_ops_total",
			Help: "Operations carried by committed batches.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.writeLatency, m.readLatency, m.commitLatency,
			m.writeBytes, m.readBytes, m.commitOps)
	}
	return m
}

// ObserveWrite implements pebblestore.MetricsHook.
func (m *StorageMetrics) ObserveWrite(elapsed time.Duration, bytes int) {
	m.writeLatency.Observe(elapsed.Seconds())
	m.writeBytes.Add(float64(bytes))
}

// ObserveRead implements pebblestore.MetricsHook.
func (m *StorageMetrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.readLatency.Observe(elapsed.Seconds())
	m.readBytes.Add(float64(bytes))
}

// ObserveBatchCommit implements pebblestore.MetricsHook.
func (m *StorageMetrics) ObserveBatchCommit(elapsed time.Duration, numOps int, _ int) {
	m.commitLatency.Observe(elapsed.Seconds())
	m.commitOps.Add(float64(numOps))
}

// EngineMetrics counts posts and deliveries on the mediator path.
type EngineMetrics struct {
	Posts          prometheus.Counter
	CollapsedPosts prometheus.Counter
	FanoutTargets  prometheus.Counter
	JumboUpgrades  prometheus.Counter
	BusPublishes   *prometheus.CounterVec
}

// NewEngineMetrics builds and registers the engine collectors on reg.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		Posts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "feedengine", Subsystem: "mediator", Name: "posts_total",
			Help: "Events posted through the mediator.",
		}),
		CollapsedPosts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "feedengine", Subsystem: "mediator", Name: "collapsed_posts_total",
			Help: "Posts written with a collapse key.",
		}),
		FanoutTargets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "feedengine", Subsystem: "mediator", Name: "fanout_targets_total",
			Help: "Per-subscriber deliveries allocated inside post transactions.",
		}),
		JumboUpgrades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "feedengine", Subsystem: "mediator", Name: "jumbo_upgrades_total",
			Help: "Feeds upgraded to jumbo fan-out mode.",
		}),
		BusPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedengine", Subsystem: "mediator", Name: "bus_publishes_total",
			Help: "Post-commit bus notifications by topic kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.Posts, m.CollapsedPosts, m.FanoutTargets, m.JumboUpgrades, m.BusPublishes)
	}
	return m
}
