// Package telemetry keeps in-process query latency samples.
package telemetry

import (
	"math"
	"slices"
	"sync"
	"time"
)

// DefaultSamples is the ring size used when none is given.
const DefaultSamples = 1024

// Latency is a fixed-size ring of recent durations.
type Latency struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	full    bool
	count   int64
}

func NewLatency(size int) *Latency {
	if size <= 0 {
		size = DefaultSamples
	}
	return &Latency{samples: make([]time.Duration, size)}
}

// Record adds one sample, overwriting the oldest when the ring is full.
func (l *Latency) Record(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.samples[l.next] = d
	l.next++
	if l.next == len(l.samples) {
		l.next = 0
		l.full = true
	}
	l.count++
}

// Since records the time elapsed since start.
func (l *Latency) Since(start time.Time) {
	l.Record(time.Since(start))
}

// Count is the number of samples ever recorded.
func (l *Latency) Count() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Percentile returns the nearest-rank percentile (0-100) over the samples
// currently held, or 0 when there are none.
func (l *Latency) Percentile(p float64) time.Duration {
	l.mu.Lock()
	n := l.next
	if l.full {
		n = len(l.samples)
	}
	sorted := slices.Clone(l.samples[:n])
	l.mu.Unlock()

	if len(sorted) == 0 {
		return 0
	}
	slices.Sort(sorted)
	p = min(max(p, 0), 100)
	rank := int(math.Ceil(p*float64(len(sorted))/100)) - 1
	rank = min(max(rank, 0), len(sorted)-1)
	return sorted[rank]
}

// Snapshot is a point-in-time summary.
type Snapshot struct {
	Count int64
	P50   time.Duration
	P95   time.Duration
}

func (l *Latency) Snapshot() Snapshot {
	return Snapshot{Count: l.Count(), P50: l.Percentile(50), P95: l.Percentile(95)}
}
