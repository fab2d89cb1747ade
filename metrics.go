package ata

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
// Buckets cover from 1us to 10s with logarithmic spacing; a PIO sector
// transfer on real hardware lands in the 10us-1ms range.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks operational statistics for a registered device
type Metrics struct {
	// Operation counters
	ReadOps  atomic.Uint64 // Total read operations
	WriteOps atomic.Uint64 // Total write operations
	SeekOps  atomic.Uint64 // Total seek operations

	// Byte counters
	ReadBytes  atomic.Uint64 // Total bytes read
	WriteBytes atomic.Uint64 // Total bytes written

	// Error counters
	ReadErrors  atomic.Uint64 // Read operation errors
	WriteErrors atomic.Uint64 // Write operation errors
	SeekErrors  atomic.Uint64 // Seek operation errors
	Timeouts    atomic.Uint64 // Operations that failed on a polling bound

	// Performance tracking
	TotalLatencyNs atomic.Uint64 // Cumulative transfer latency in nanoseconds
	OpCount        atomic.Uint64 // Total transfers (for average latency calculation)

	// Latency histogram buckets (cumulative counts)
	// Each bucket[i] contains the count of transfers with latency <= LatencyBuckets[i]
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Device lifecycle
	StartTime atomic.Int64 // Registration timestamp (UnixNano)
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordRead records a read operation
func (m *Metrics) RecordRead(bytes uint64, latencyNs uint64, success bool) {
	m.ReadOps.Add(1)
	if success {
		m.ReadBytes.Add(bytes)
	} else {
		m.ReadErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordWrite records a write operation
func (m *Metrics) RecordWrite(bytes uint64, latencyNs uint64, success bool) {
	m.WriteOps.Add(1)
	if success {
		m.WriteBytes.Add(bytes)
	} else {
		m.WriteErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordSeek records a seek operation. Seeks do not touch the hardware and
// are kept out of the latency histogram.
func (m *Metrics) RecordSeek(success bool) {
	m.SeekOps.Add(1)
	if !success {
		m.SeekErrors.Add(1)
	}
}

// RecordTimeout records an operation that exceeded a polling bound
func (m *Metrics) RecordTimeout() {
	m.Timeouts.Add(1)
}

// recordLatency records operation latency and updates histogram
func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	// Update histogram buckets (cumulative)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// MetricsSnapshot is a point-in-time copy of Metrics
type MetricsSnapshot struct {
	// Operations
	ReadOps  uint64
	WriteOps uint64
	SeekOps  uint64

	// Bytes transferred
	ReadBytes  uint64
	WriteBytes uint64

	// Error counts
	ReadErrors  uint64
	WriteErrors uint64
	SeekErrors  uint64
	Timeouts    uint64

	// Performance
	AvgLatencyNs uint64
	UptimeNs     uint64

	// Latency percentiles (in nanoseconds)
	LatencyP50Ns  uint64 // 50th percentile (median)
	LatencyP99Ns  uint64 // 99th percentile
	LatencyP999Ns uint64 // 99.9th percentile

	// Histogram bucket counts (cumulative)
	LatencyHistogram [numLatencyBuckets]uint64

	// Computed statistics
	ReadBandwidth float64 // Bytes per second
	TotalOps      uint64  // Reads and writes
	TotalBytes    uint64
	ErrorRate     float64 // Percentage of failed reads and writes
}

// Snapshot creates a point-in-time snapshot of metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		ReadOps:     m.ReadOps.Load(),
		WriteOps:    m.WriteOps.Load(),
		SeekOps:     m.SeekOps.Load(),
		ReadBytes:   m.ReadBytes.Load(),
		WriteBytes:  m.WriteBytes.Load(),
		ReadErrors:  m.ReadErrors.Load(),
		WriteErrors: m.WriteErrors.Load(),
		SeekErrors:  m.SeekErrors.Load(),
		Timeouts:    m.Timeouts.Load(),
	}

	snap.TotalOps = snap.ReadOps + snap.WriteOps
	snap.TotalBytes = snap.ReadBytes + snap.WriteBytes

	// Calculate average latency
	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	// Calculate uptime
	snap.UptimeNs = uint64(time.Now().UnixNano() - m.StartTime.Load())

	if snap.UptimeNs > 0 {
		snap.ReadBandwidth = float64(snap.ReadBytes) / (float64(snap.UptimeNs) / 1e9)
	}

	// Calculate error rate
	totalErrors := snap.ReadErrors + snap.WriteErrors
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
	}

	// Copy histogram bucket counts
	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	// Calculate percentiles from histogram
	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	// Find the bucket containing the target percentile
	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			// Linear interpolation within bucket
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			// Interpolate between prevBucket and bucket
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	// If we get here, the latency exceeds all buckets
	return LatencyBuckets[numLatencyBuckets-1]
}

// Observer interface allows pluggable metrics collection
type Observer interface {
	// ObserveRead is called for each read operation
	ObserveRead(device string, bytes uint64, latencyNs uint64, success bool)

	// ObserveWrite is called for each write operation
	ObserveWrite(device string, bytes uint64, latencyNs uint64, success bool)

	// ObserveSeek is called for each seek operation
	ObserveSeek(device string, pos uint64, success bool)
}

// NoOpObserver is a no-op implementation of Observer
type NoOpObserver struct{}

func (NoOpObserver) ObserveRead(string, uint64, uint64, bool)  {}
func (NoOpObserver) ObserveWrite(string, uint64, uint64, bool) {}
func (NoOpObserver) ObserveSeek(string, uint64, bool)         {}

// MetricsObserver implements Observer using the built-in Metrics. It
// aggregates across every device it observes.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveRead(_ string, bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordRead(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveWrite(_ string, bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordWrite(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveSeek(_ string, _ uint64, success bool) {
	o.metrics.RecordSeek(success)
}

// Compile-time interface check
var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
