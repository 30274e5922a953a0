package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector collects real-time performance metrics for a PKTO
// runtime: operation latencies and connection counts for the control
// plane sitting in front of it. The transaction outcome counters
// themselves (commits, classified aborts, victims, live version/RL
// totals) live in pkg/stm.Snapshot — this collector only adds what the
// runtime itself has no opinion about: how long operations took and
// how many callers are attached.
type MetricsCollector struct {
	// Operation metrics
	readsExecuted uint64
	readsAborted  uint64
	totalReadTime uint64 // nanoseconds

	writesExecuted uint64
	totalWriteTime uint64 // nanoseconds

	commitsAttempted uint64
	totalCommitTime  uint64 // nanoseconds

	// Connection metrics (for the HTTP/websocket control plane)
	activeConnections uint64
	totalConnections  uint64

	mu            sync.RWMutex
	readTimings   *TimingHistogram
	writeTimings  *TimingHistogram
	commitTimings *TimingHistogram

	startTime time.Time
}

// TimingHistogram stores timing data in buckets for histogram generation.
type TimingHistogram struct {
	// Buckets: <1ms, 1-10ms, 10-100ms, 100ms-1s, >1s
	bucket0_1ms      uint64
	bucket1_10ms     uint64
	bucket10_100ms   uint64
	bucket100_1000ms uint64
	bucket1000ms     uint64

	mu               sync.Mutex
	recentTimings    []time.Duration // last maxRecentTimings samples
	maxRecentTimings int
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		readTimings:   NewTimingHistogram(1000),
		writeTimings:  NewTimingHistogram(1000),
		commitTimings: NewTimingHistogram(1000),
		startTime:     time.Now(),
	}
}

// NewTimingHistogram creates a new timing histogram.
func NewTimingHistogram(maxRecent int) *TimingHistogram {
	return &TimingHistogram{
		recentTimings:    make([]time.Duration, 0, maxRecent),
		maxRecentTimings: maxRecent,
	}
}

// RecordRead records a stmRead call, aborted or not.
func (mc *MetricsCollector) RecordRead(duration time.Duration, aborted bool) {
	atomic.AddUint64(&mc.readsExecuted, 1)
	if aborted {
		atomic.AddUint64(&mc.readsAborted, 1)
	}
	atomic.AddUint64(&mc.totalReadTime, uint64(duration.Nanoseconds()))
	mc.readTimings.Record(duration)
}

// RecordWrite records a stmWrite call (always local, never aborts).
func (mc *MetricsCollector) RecordWrite(duration time.Duration) {
	atomic.AddUint64(&mc.writesExecuted, 1)
	atomic.AddUint64(&mc.totalWriteTime, uint64(duration.Nanoseconds()))
	mc.writeTimings.Record(duration)
}

// RecordCommit records a stmTryCommit call, regardless of outcome; the
// OK/Aborted breakdown itself lives in pkg/stm.Snapshot.
func (mc *MetricsCollector) RecordCommit(duration time.Duration) {
	atomic.AddUint64(&mc.commitsAttempted, 1)
	atomic.AddUint64(&mc.totalCommitTime, uint64(duration.Nanoseconds()))
	mc.commitTimings.Record(duration)
}

// RecordConnectionStart records a new control-plane connection (HTTP
// request in flight, or an open websocket event subscriber).
func (mc *MetricsCollector) RecordConnectionStart() {
	atomic.AddUint64(&mc.totalConnections, 1)
	atomic.AddUint64(&mc.activeConnections, 1)
}

// RecordConnectionEnd records a connection closing.
func (mc *MetricsCollector) RecordConnectionEnd() {
	atomic.AddUint64(&mc.activeConnections, ^uint64(0))
}

// Record adds a timing to the histogram.
func (th *TimingHistogram) Record(duration time.Duration) {
	ms := duration.Milliseconds()
	switch {
	case ms < 1:
		atomic.AddUint64(&th.bucket0_1ms, 1)
	case ms < 10:
		atomic.AddUint64(&th.bucket1_10ms, 1)
	case ms < 100:
		atomic.AddUint64(&th.bucket10_100ms, 1)
	case ms < 1000:
		atomic.AddUint64(&th.bucket100_1000ms, 1)
	default:
		atomic.AddUint64(&th.bucket1000ms, 1)
	}

	th.mu.Lock()
	defer th.mu.Unlock()
	if len(th.recentTimings) >= th.maxRecentTimings {
		th.recentTimings = th.recentTimings[1:]
	}
	th.recentTimings = append(th.recentTimings, duration)
}

// GetBuckets returns the histogram bucket counts.
func (th *TimingHistogram) GetBuckets() map[string]uint64 {
	return map[string]uint64{
		"0-1ms":      atomic.LoadUint64(&th.bucket0_1ms),
		"1-10ms":     atomic.LoadUint64(&th.bucket1_10ms),
		"10-100ms":   atomic.LoadUint64(&th.bucket10_100ms),
		"100-1000ms": atomic.LoadUint64(&th.bucket100_1000ms),
		">1000ms":    atomic.LoadUint64(&th.bucket1000ms),
	}
}

// GetPercentiles calculates P50, P95, P99 from recent timings.
func (th *TimingHistogram) GetPercentiles() map[string]time.Duration {
	th.mu.Lock()
	defer th.mu.Unlock()

	if len(th.recentTimings) == 0 {
		return map[string]time.Duration{"p50": 0, "p95": 0, "p99": 0}
	}

	sorted := make([]time.Duration, len(th.recentTimings))
	copy(sorted, th.recentTimings)
	for i := 1; i < len(sorted); i++ {
		key := sorted[i]
		j := i - 1
		for j >= 0 && sorted[j] > key {
			sorted[j+1] = sorted[j]
			j--
		}
		sorted[j+1] = key
	}

	p50idx := len(sorted) * 50 / 100
	p95idx := len(sorted) * 95 / 100
	p99idx := len(sorted) * 99 / 100

	return map[string]time.Duration{
		"p50": sorted[p50idx],
		"p95": sorted[p95idx],
		"p99": sorted[p99idx],
	}
}

// GetMetrics returns a snapshot of all metrics as a JSON-ready tree.
func (mc *MetricsCollector) GetMetrics() map[string]interface{} {
	readsExecuted := atomic.LoadUint64(&mc.readsExecuted)
	readsAborted := atomic.LoadUint64(&mc.readsAborted)
	totalReadTime := atomic.LoadUint64(&mc.totalReadTime)

	writesExecuted := atomic.LoadUint64(&mc.writesExecuted)
	totalWriteTime := atomic.LoadUint64(&mc.totalWriteTime)

	commitsAttempted := atomic.LoadUint64(&mc.commitsAttempted)
	totalCommitTime := atomic.LoadUint64(&mc.totalCommitTime)

	activeConnections := atomic.LoadUint64(&mc.activeConnections)
	totalConnections := atomic.LoadUint64(&mc.totalConnections)

	var avgReadTime, avgWriteTime, avgCommitTime float64
	if readsExecuted > 0 {
		avgReadTime = float64(totalReadTime) / float64(readsExecuted) / 1e6
	}
	if writesExecuted > 0 {
		avgWriteTime = float64(totalWriteTime) / float64(writesExecuted) / 1e6
	}
	if commitsAttempted > 0 {
		avgCommitTime = float64(totalCommitTime) / float64(commitsAttempted) / 1e6
	}

	uptime := time.Since(mc.startTime)

	return map[string]interface{}{
		"uptime_seconds": uptime.Seconds(),

		"reads": map[string]interface{}{
			"total":              readsExecuted,
			"aborted":            readsAborted,
			"abort_rate":         calculateRate(readsAborted, readsExecuted),
			"avg_duration_ms":    avgReadTime,
			"timing_histogram":   mc.readTimings.GetBuckets(),
			"timing_percentiles": mc.readTimings.GetPercentiles(),
		},

		"writes": map[string]interface{}{
			"total":              writesExecuted,
			"avg_duration_ms":    avgWriteTime,
			"timing_histogram":   mc.writeTimings.GetBuckets(),
			"timing_percentiles": mc.writeTimings.GetPercentiles(),
		},

		"commits": map[string]interface{}{
			"attempted":          commitsAttempted,
			"avg_duration_ms":    avgCommitTime,
			"timing_histogram":   mc.commitTimings.GetBuckets(),
			"timing_percentiles": mc.commitTimings.GetPercentiles(),
		},

		"connections": map[string]interface{}{
			"active": activeConnections,
			"total":  totalConnections,
		},
	}
}

// Reset resets all metrics to zero.
func (mc *MetricsCollector) Reset() {
	atomic.StoreUint64(&mc.readsExecuted, 0)
	atomic.StoreUint64(&mc.readsAborted, 0)
	atomic.StoreUint64(&mc.totalReadTime, 0)

	atomic.StoreUint64(&mc.writesExecuted, 0)
	atomic.StoreUint64(&mc.totalWriteTime, 0)

	atomic.StoreUint64(&mc.commitsAttempted, 0)
	atomic.StoreUint64(&mc.totalCommitTime, 0)

	atomic.StoreUint64(&mc.totalConnections, 0)
	// activeConnections is left alone: it reflects current state, not a tally.

	mc.mu.Lock()
	mc.readTimings = NewTimingHistogram(1000)
	mc.writeTimings = NewTimingHistogram(1000)
	mc.commitTimings = NewTimingHistogram(1000)
	mc.mu.Unlock()

	mc.startTime = time.Now()
}

func calculateRate(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
