// Package metrics provides Prometheus instrumentation for the cache
// entry core: reads, writes, removes, expirations, evictions,
// update-counter gaps, and future-wait latency.
//
// All metrics follow the naming convention
// <namespace>_entry_<metric_name>_<unit>, e.g.
// gridcache_entry_reads_total.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EntryMetrics holds every counter/gauge/histogram the cache entry
// core touches. Construct one with NewEntryMetrics and share it across
// every Entry's Collaborators.
type EntryMetrics struct {
	ReadsTotal   *prometheus.CounterVec // result: hit|miss|expired
	WritesTotal  *prometheus.CounterVec // result: success|rejected
	RemovesTotal *prometheus.CounterVec // result: success|no_value

	ExpirationsTotal prometheus.Counter
	EvictionsTotal   *prometheus.CounterVec // outcome: evicted|blocked

	ReadDurationSeconds   prometheus.Histogram
	WriteDurationSeconds  prometheus.Histogram
	RemoveDurationSeconds prometheus.Histogram

	UpdateCounterGap  prometheus.Histogram
	FutureWaitSeconds prometheus.Histogram

	EventsRecordedTotal *prometheus.CounterVec // kind: read|put|removed|expired|locked|unlocked
}

// NewEntryMetrics registers and returns a new EntryMetrics under the
// given namespace (e.g. "gridcache").
func NewEntryMetrics(namespace string) *EntryMetrics {
	return &EntryMetrics{
		ReadsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entry",
			Name:      "reads_total",
			Help:      "Total number of InnerGet calls by result",
		}, []string{"result"}),

		WritesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entry",
			Name:      "writes_total",
			Help:      "Total number of InnerSet/InnerUpdate calls by result",
		}, []string{"result"}),

		RemovesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entry",
			Name:      "removes_total",
			Help:      "Total number of InnerRemove calls by result",
		}, []string{"result"}),

		ExpirationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entry",
			Name:      "expirations_total",
			Help:      "Total number of entries expired via TTL",
		}),

		EvictionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entry",
			Name:      "evictions_total",
			Help:      "Total number of EvictInternal/EvictInBatchInternal calls by outcome",
		}, []string{"outcome"}),

		ReadDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "entry",
			Name:      "read_duration_seconds",
			Help:      "Duration of InnerGet calls",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),

		WriteDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "entry",
			Name:      "write_duration_seconds",
			Help:      "Duration of InnerSet/InnerUpdate calls",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),

		RemoveDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "entry",
			Name:      "remove_duration_seconds",
			Help:      "Duration of InnerRemove calls",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),

		UpdateCounterGap: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "entry",
			Name:      "update_counter_gap",
			Help:      "Observed gap between consecutive partition update counters (0 means no missed update)",
			Buckets:   []float64{0, 1, 2, 5, 10, 50},
		}),

		FutureWaitSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "entry",
			Name:      "future_wait_seconds",
			Help:      "Time callers spend blocked in Future.Get/GetTimeout/GetCtx",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),

		EventsRecordedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entry",
			Name:      "events_recorded_total",
			Help:      "Total number of events appended to the event recorder's ring buffer, by kind",
		}, []string{"kind"}),
	}
}

// RecordRead records an InnerGet outcome and its duration.
func (m *EntryMetrics) RecordRead(result string, dur time.Duration) {
	if m == nil {
		return
	}
	m.ReadsTotal.WithLabelValues(result).Inc()
	m.ReadDurationSeconds.Observe(dur.Seconds())
}

// RecordWrite records an InnerSet/InnerUpdate outcome and its duration.
func (m *EntryMetrics) RecordWrite(result string, dur time.Duration) {
	if m == nil {
		return
	}
	m.WritesTotal.WithLabelValues(result).Inc()
	m.WriteDurationSeconds.Observe(dur.Seconds())
}

// RecordRemove records an InnerRemove outcome and its duration.
func (m *EntryMetrics) RecordRemove(result string, dur time.Duration) {
	if m == nil {
		return
	}
	m.RemovesTotal.WithLabelValues(result).Inc()
	m.RemoveDurationSeconds.Observe(dur.Seconds())
}

// RecordExpiration records an OnTTLExpired/expireLocked firing.
func (m *EntryMetrics) RecordExpiration() {
	if m == nil {
		return
	}
	m.ExpirationsTotal.Inc()
}

// RecordEviction records an EvictInternal/EvictInBatchInternal call.
func (m *EntryMetrics) RecordEviction(outcome string) {
	if m == nil {
		return
	}
	m.EvictionsTotal.WithLabelValues(outcome).Inc()
}

// RecordUpdateCounterGap records the gap observed between the last
// applied partition update counter and the one just received; 0 means
// no update was missed.
func (m *EntryMetrics) RecordUpdateCounterGap(gap int64) {
	if m == nil {
		return
	}
	m.UpdateCounterGap.Observe(float64(gap))
}

// RecordFutureWait records how long a caller blocked inside
// Future.Get/GetTimeout/GetCtx.
func (m *EntryMetrics) RecordFutureWait(dur time.Duration) {
	if m == nil {
		return
	}
	m.FutureWaitSeconds.Observe(dur.Seconds())
}

// RecordEvent records one event appended to the event recorder's ring
// buffer, by kind (e.g. "read", "put", "removed").
func (m *EntryMetrics) RecordEvent(kind string) {
	if m == nil {
		return
	}
	m.EventsRecordedTotal.WithLabelValues(kind).Inc()
}

var (
	defaultMetrics     *EntryMetrics
	defaultMetricsOnce sync.Once
)

// Default returns a process-wide EntryMetrics registered under the
// "gridcache" namespace, initialized once on first call.
func Default() *EntryMetrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewEntryMetrics("gridcache")
	})
	return defaultMetrics
}
