package tokenflow

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one counter or histogram in [Metrics].
type MetricID uint16

const (
	// MetricRefreshSuccess counts refresh handler invocations that returned nil.
	MetricRefreshSuccess MetricID = iota
	// MetricRefreshFailure counts refresh handler invocations that failed or panicked.
	MetricRefreshFailure
	MetricWaiterEnqueued
	MetricWaiterReleased
	MetricWaiterCancelled
	// MetricReplay counts server variant replays.
	MetricReplay
	// MetricReplayExhausted counts exchanges failed with ErrAuthenticationUnavailable.
	MetricReplayExhausted
	MetricLoginObserved
	MetricLogoutObserved
	MetricAssignTokenFailure
	MetricVisitorBypass
	// MetricRefreshLatency is the refresh handler latency histogram.
	MetricRefreshLatency
)

// latencyBounds are the inclusive upper bounds of the first seven latency
// buckets; the eighth is unbounded.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const latencyBucketCount = len(latencyBounds) + 1

// counterSlot keeps each counter on its own cache line so concurrent requests
// bumping different counters do not contend.
type counterSlot struct {
	n atomic.Uint64
	_ [56]byte
}

type latencyHistogram struct {
	buckets [latencyBucketCount]atomic.Uint64
	sum     atomic.Int64
}

// Metrics is a set of lock-free counters and the refresh latency histogram. A
// nil or disabled Metrics ignores every call.
type Metrics struct {
	enabled bool
	latency bool
	slots   [MetricRefreshLatency]counterSlot
	refresh latencyHistogram
}

// MetricsSnapshot is a point-in-time copy of [Metrics]. Histogram buckets are
// non-cumulative with upper bounds 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, 500ms
// and +Inf; HistogramSums holds the total observed duration per histogram.
type MetricsSnapshot struct {
	Counters      map[MetricID]uint64
	Histograms    map[MetricID][]uint64
	HistogramSums map[MetricID]time.Duration
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.latency
}

// Inc bumps counter id. Histogram IDs are ignored.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= MetricRefreshLatency {
		return
	}
	m.slots[id].n.Add(1)
}

// Observe records d into the histogram of id. Only MetricRefreshLatency has a
// histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricRefreshLatency {
		return
	}
	d = max(d, 0)
	m.refresh.buckets[latencyBucket(d)].Add(1)
	m.refresh.sum.Add(int64(d))
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricRefreshLatency {
		return 0
	}
	return m.slots[id].n.Load()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:      map[MetricID]uint64{},
		Histograms:    map[MetricID][]uint64{},
		HistogramSums: map[MetricID]time.Duration{},
	}
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < MetricRefreshLatency; id++ {
		s.Counters[id] = m.slots[id].n.Load()
	}
	if m.latency {
		buckets := make([]uint64, latencyBucketCount)
		for i := range buckets {
			buckets[i] = m.refresh.buckets[i].Load()
		}
		s.Histograms[MetricRefreshLatency] = buckets
		s.HistogramSums[MetricRefreshLatency] = time.Duration(m.refresh.sum.Load())
	}
	return s
}

// latencyBucket returns the first bucket whose bound is not below d, compared
// at millisecond precision.
func latencyBucket(d time.Duration) int {
	d = d.Truncate(time.Millisecond)
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
