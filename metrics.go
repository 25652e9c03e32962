package goGuard

import (
	"sync/atomic"
	"time"
)

// MetricID names one engine counter or histogram.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts wrong passwords.
	MetricLoginFailure
	MetricLoginUnknownUser
	// MetricLoginBanned counts logins refused by, or ending in, a ban.
	MetricLoginBanned
	MetricLoginUnrecognizedIP
	MetricIPConfirmationSuccess
	MetricIPConfirmationFailure
	MetricOTPIssued
	MetricOTPDeliveryFailure
	MetricOTPRejected
	MetricOTPExhausted
	MetricOTPResendRejected
	MetricRegistrationSuccess
	MetricRegistrationFailure
	MetricPasswordResetSuccess
	MetricPasswordResetFailure
	MetricSessionOpened
	MetricSessionClosed
	// MetricLoginLatency is a histogram over whole Login calls.
	MetricLoginLatency
	// MetricDeliveryLatency is a histogram over notifier sends.
	MetricDeliveryLatency
	metricIDCount
)

// LatencyBuckets are the upper bounds of the latency histograms. A final
// bucket catches everything slower.
var LatencyBuckets = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

// LatencyBucketCount includes the unbounded bucket.
const LatencyBucketCount = len(LatencyBuckets) + 1

// histogramIDs lists the metrics recorded as latency histograms rather than
// counters; the position is the histogram slot.
var histogramIDs = [...]MetricID{MetricLoginLatency, MetricDeliveryLatency}

func histogramSlot(id MetricID) (int, bool) {
	for i, h := range histogramIDs {
		if h == id {
			return i, true
		}
	}
	return 0, false
}

// counter sits alone on a cache line so hot counters do not share one.
type counter struct {
	n atomic.Uint64
	_ [56]byte
}

// Metrics is a fixed set of lock-free counters. A nil or disabled Metrics
// ignores every update.
type Metrics struct {
	enabled    bool
	histograms bool
	counters   [metricIDCount]counter
	buckets    [len(histogramIDs)][LatencyBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of the counters. Histogram buckets
// are non-cumulative and have LatencyBucketCount entries.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:    cfg.Enabled,
		histograms: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.histograms
}

func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counters[id].n.Add(1)
}

// Observe records d for a histogram metric. Counter IDs are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() {
		return
	}
	slot, ok := histogramSlot(id)
	if !ok {
		return
	}
	m.buckets[slot][bucketFor(d)].Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].n.Load()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if _, hist := histogramSlot(id); hist {
			continue
		}
		s.Counters[id] = m.counters[id].n.Load()
	}
	if !m.histograms {
		return s
	}
	for slot, id := range histogramIDs {
		out := make([]uint64, LatencyBucketCount)
		for i := range out {
			out[i] = m.buckets[slot][i].Load()
		}
		s.Histograms[id] = out
	}
	return s
}

// bucketFor compares at millisecond resolution, so 5.9ms still lands in
// the 5ms bucket.
func bucketFor(d time.Duration) int {
	d = d.Truncate(time.Millisecond)
	for i, bound := range LatencyBuckets {
		if d <= bound {
			return i
		}
	}
	return len(LatencyBuckets)
}
