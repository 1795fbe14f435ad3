package auth

import (
	"sync/atomic"
	"time"
)

// MetricID indexes one counter or histogram in [Metrics].
type MetricID uint16

const (
	// MetricLoginSuccess counts logins that wrote a session record.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts logins rejected for bad credentials.
	MetricLoginFailure
	MetricLoginRateLimited
	MetricRefreshSuccess
	// MetricRefreshFailure counts refresh attempts answered with REFRESH_FAILED.
	MetricRefreshFailure
	// MetricRefreshRotationLost counts refreshes that lost the compare-and-swap race or replayed a rotated token.
	MetricRefreshRotationLost
	MetricGateAuthorized
	MetricGatePublic
	MetricGateUnauthenticated
	// MetricGateSuperseded counts requests carrying a token replaced by a later login.
	MetricGateSuperseded
	MetricGateExpired
	MetricGateMalformed
	MetricGateWrongPurpose
	MetricGateForbidden
	MetricSessionCreated
	MetricSessionInvalidated
	MetricLogout
	MetricRegistrationRequested
	MetricRegistrationDuplicate
	MetricActivationSuccess
	MetricActivationFailure
	MetricPasswordResetRequest
	MetricPasswordResetSuccess
	MetricPasswordResetFailure
	MetricAccountDeleted
	// MetricMailFailure counts mail deliveries that failed after state was committed.
	MetricMailFailure
	MetricRateLimitHit
	// MetricAuthorizeLatency is the only histogram: the duration of Engine.Authorize.
	MetricAuthorizeLatency
	metricIDCount
)

const cacheLineSize = 64

// latencyBounds are the inclusive upper bounds of the first seven buckets;
// the eighth catches everything slower.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const histBucketCount = len(latencyBounds) + 1

type latencyHistogram struct {
	buckets [histBucketCount]atomic.Uint64
	sumNano atomic.Uint64
}

type paddedCounter struct {
	value atomic.Uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed array of cache-line padded atomic counters plus the
// Authorize latency histogram. Every method is a single branch when disabled.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	authorize     latencyHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter. Histograms hold
// per-bucket (non-cumulative) counts; HistogramSums the total observed time.
type MetricsSnapshot struct {
	Counters      map[MetricID]uint64
	Histograms    map[MetricID][]uint64
	HistogramSums map[MetricID]time.Duration
}

// NewMetrics returns Metrics configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id. No-op when disabled.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counters[id].value.Add(1)
}

// Observe records d for id. Only [MetricAuthorizeLatency] has a histogram;
// other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricAuthorizeLatency {
		return
	}
	if d < 0 {
		d = 0
	}
	m.authorize.buckets[bucketIndex(d)].Add(1)
	m.authorize.sumNano.Add(uint64(d))
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].value.Load()
}

// Snapshot copies all counters. Maps are empty when disabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:      map[MetricID]uint64{},
		Histograms:    map[MetricID][]uint64{},
		HistogramSums: map[MetricID]time.Duration{},
	}
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = m.counters[id].value.Load()
	}
	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = m.authorize.buckets[i].Load()
		}
		s.Histograms[MetricAuthorizeLatency] = buckets
		s.HistogramSums[MetricAuthorizeLatency] = time.Duration(m.authorize.sumNano.Load())
	}
	return s
}

func bucketIndex(d time.Duration) int {
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
