// Package diag tracks storage write latency so slow-medium trends (a dying
// SD card gets slower before it fails) are visible in the logs.
package diag

import (
	"log/slog"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// relativeAccuracy is the DDSketch guarantee on reported quantiles.
const relativeAccuracy = 0.01

// LatencyTracker maintains a streaming latency distribution per named
// operation.
type LatencyTracker struct {
	mu      sync.Mutex
	sketch  *ddsketch.DDSketch
	count   int64
	maxSeen time.Duration
}

// NewLatencyTracker creates an empty tracker.
func NewLatencyTracker() *LatencyTracker {
	t := &LatencyTracker{}
	if sketch, err := ddsketch.NewDefaultDDSketch(relativeAccuracy); err == nil {
		t.sketch = sketch
	}
	return t
}

// Observe records one operation duration.
func (t *LatencyTracker) Observe(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.count++
	if d > t.maxSeen {
		t.maxSeen = d
	}
	if t.sketch != nil {
		t.sketch.Add(float64(d.Microseconds()))
	}
}

// Snapshot summarizes the distribution observed so far.
type Snapshot struct {
	Count int64
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
	Max   time.Duration
}

// Snapshot returns the current latency summary.
func (t *LatencyTracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{Count: t.count, Max: t.maxSeen}
	if t.sketch == nil || t.count == 0 {
		return s
	}

	p50, _ := t.sketch.GetValueAtQuantile(0.50)
	p95, _ := t.sketch.GetValueAtQuantile(0.95)
	p99, _ := t.sketch.GetValueAtQuantile(0.99)
	s.P50 = time.Duration(p50) * time.Microsecond
	s.P95 = time.Duration(p95) * time.Microsecond
	s.P99 = time.Duration(p99) * time.Microsecond
	return s
}

// Reset discards all observations, typically after a periodic report.
func (t *LatencyTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.count = 0
	t.maxSeen = 0
	if sketch, err := ddsketch.NewDefaultDDSketch(relativeAccuracy); err == nil {
		t.sketch = sketch
	}
}

// Log emits the snapshot at info level and resets the tracker.
func (t *LatencyTracker) Log(log *slog.Logger, op string) {
	s := t.Snapshot()
	if s.Count == 0 {
		return
	}
	log.Info("write latency",
		slog.String("op", op),
		slog.Int64("count", s.Count),
		slog.Duration("p50", s.P50),
		slog.Duration("p95", s.P95),
		slog.Duration("p99", s.P99),
		slog.Duration("max", s.Max),
	)
	t.Reset()
}
