// Package stats provides latency summaries and the run summary printed when a
// forge command exits.
package stats

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// LatencySummary tracks a latency distribution with a T-Digest.
// Safe for concurrent use.
type LatencySummary struct {
	mu     sync.Mutex
	digest *tdigest.TDigest
	count  int64
	max    time.Duration
}

// NewLatencySummary creates an empty summary.
func NewLatencySummary() *LatencySummary {
	return &LatencySummary{digest: tdigest.NewWithCompression(100)}
}

// Observe records one sample.
func (s *LatencySummary) Observe(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digest.Add(float64(d), 1)
	s.count++
	if d > s.max {
		s.max = d
	}
}

// Quantile returns the q-th quantile, or 0 with no samples.
func (s *LatencySummary) Quantile(q float64) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return 0
	}
	return time.Duration(s.digest.Quantile(q))
}

// Count returns the number of samples.
func (s *LatencySummary) Count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Snapshot is a point-in-time view of a LatencySummary.
type Snapshot struct {
	Count int64
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
	Max   time.Duration
}

// Snapshot returns count, percentiles and max.
func (s *LatencySummary) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return Snapshot{}
	}
	return Snapshot{
		Count: s.count,
		P50:   time.Duration(s.digest.Quantile(0.50)),
		P95:   time.Duration(s.digest.Quantile(0.95)),
		P99:   time.Duration(s.digest.Quantile(0.99)),
		Max:   s.max,
	}
}
