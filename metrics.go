package blkio

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets are the upper bounds of the latency histogram in
// nanoseconds, 1us to 10s on a log scale
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics counts commands completed on one device
type Metrics struct {
	ReadOps    atomic.Uint64
	WriteOps   atomic.Uint64
	DiscardOps atomic.Uint64 // write-zeroes and dataset management
	FlushOps   atomic.Uint64
	AdminOps   atomic.Uint64 // admin and pseudo commands

	ReadBytes    atomic.Uint64
	WriteBytes   atomic.Uint64
	DiscardBytes atomic.Uint64

	ReadErrors    atomic.Uint64
	WriteErrors   atomic.Uint64
	DiscardErrors atomic.Uint64
	FlushErrors   atomic.Uint64
	AdminErrors   atomic.Uint64

	// Outstanding async commands, sampled at every submission
	QueueDepthTotal atomic.Uint64
	QueueDepthCount atomic.Uint64
	MaxQueueDepth   atomic.Uint32

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// LatencyBuckets[i] counts operations with latency <= LatencyBuckets[i]
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

func (m *Metrics) RecordRead(bytes uint64, latencyNs uint64, success bool) {
	m.ReadOps.Add(1)
	if success {
		m.ReadBytes.Add(bytes)
	} else {
		m.ReadErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

func (m *Metrics) RecordWrite(bytes uint64, latencyNs uint64, success bool) {
	m.WriteOps.Add(1)
	if success {
		m.WriteBytes.Add(bytes)
	} else {
		m.WriteErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

func (m *Metrics) RecordDiscard(bytes uint64, latencyNs uint64, success bool) {
	m.DiscardOps.Add(1)
	if success {
		m.DiscardBytes.Add(bytes)
	} else {
		m.DiscardErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

func (m *Metrics) RecordFlush(latencyNs uint64, success bool) {
	m.FlushOps.Add(1)
	if !success {
		m.FlushErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordAdmin records an admin or pseudo command. Admin latency is kept
// out of the I/O histogram.
func (m *Metrics) RecordAdmin(success bool) {
	m.AdminOps.Add(1)
	if !success {
		m.AdminErrors.Add(1)
	}
}

// RecordQueueDepth samples the number of outstanding commands
func (m *Metrics) RecordQueueDepth(depth uint32) {
	m.QueueDepthTotal.Add(uint64(depth))
	m.QueueDepthCount.Add(1)
	for {
		current := m.MaxQueueDepth.Load()
		if depth <= current || m.MaxQueueDepth.CompareAndSwap(current, depth) {
			return
		}
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the device as closed
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics with derived values
type MetricsSnapshot struct {
	ReadOps    uint64 `yaml:"read_ops"`
	WriteOps   uint64 `yaml:"write_ops"`
	DiscardOps uint64 `yaml:"discard_ops"`
	FlushOps   uint64 `yaml:"flush_ops"`
	AdminOps   uint64 `yaml:"admin_ops"`

	ReadBytes    uint64 `yaml:"read_bytes"`
	WriteBytes   uint64 `yaml:"write_bytes"`
	DiscardBytes uint64 `yaml:"discard_bytes"`

	ReadErrors    uint64 `yaml:"read_errors"`
	WriteErrors   uint64 `yaml:"write_errors"`
	DiscardErrors uint64 `yaml:"discard_errors"`
	FlushErrors   uint64 `yaml:"flush_errors"`
	AdminErrors   uint64 `yaml:"admin_errors"`

	AvgQueueDepth float64 `yaml:"avg_qdepth"`
	MaxQueueDepth uint32  `yaml:"max_qdepth"`

	AvgLatencyNs  uint64 `yaml:"avg_latency_ns"`
	LatencyP50Ns  uint64 `yaml:"p50_ns"`
	LatencyP99Ns  uint64 `yaml:"p99_ns"`
	LatencyP999Ns uint64 `yaml:"p999_ns"`
	UptimeNs      uint64 `yaml:"uptime_ns"`

	LatencyHistogram [numLatencyBuckets]uint64 `yaml:"-"`

	// Totals and error rate cover I/O commands only
	TotalOps   uint64  `yaml:"total_ops"`
	TotalBytes uint64  `yaml:"total_bytes"`
	ErrorRate  float64 `yaml:"error_rate"`
}

// Snapshot creates a point-in-time snapshot of metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		ReadOps:       m.ReadOps.Load(),
		WriteOps:      m.WriteOps.Load(),
		DiscardOps:    m.DiscardOps.Load(),
		FlushOps:      m.FlushOps.Load(),
		AdminOps:      m.AdminOps.Load(),
		ReadBytes:     m.ReadBytes.Load(),
		WriteBytes:    m.WriteBytes.Load(),
		DiscardBytes:  m.DiscardBytes.Load(),
		ReadErrors:    m.ReadErrors.Load(),
		WriteErrors:   m.WriteErrors.Load(),
		DiscardErrors: m.DiscardErrors.Load(),
		FlushErrors:   m.FlushErrors.Load(),
		AdminErrors:   m.AdminErrors.Load(),
		MaxQueueDepth: m.MaxQueueDepth.Load(),
	}
	snap.TotalOps = snap.ReadOps + snap.WriteOps + snap.DiscardOps + snap.FlushOps
	snap.TotalBytes = snap.ReadBytes + snap.WriteBytes + snap.DiscardBytes

	if n := m.QueueDepthCount.Load(); n > 0 {
		snap.AvgQueueDepth = float64(m.QueueDepthTotal.Load()) / float64(n)
	}
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
	}

	start, stop := m.StartTime.Load(), m.StopTime.Load()
	if stop == 0 {
		stop = time.Now().UnixNano()
	}
	snap.UptimeNs = uint64(stop - start)

	errs := snap.ReadErrors + snap.WriteErrors + snap.DiscardErrors + snap.FlushErrors
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(errs) / float64(snap.TotalOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}
	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}
	return snap
}

// calculatePercentile estimates a latency percentile (0.0-1.0) by linear
// interpolation inside the histogram bucket that holds it
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}
	target := uint64(float64(totalOps) * percentile)

	prevBound := uint64(0)
	for i, bound := range LatencyBuckets {
		count := m.LatencyBuckets[i].Load()
		if count >= target {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if count == prevCount {
				return bound
			}
			fraction := float64(target-prevCount) / float64(count-prevCount)
			return prevBound + uint64(fraction*float64(bound-prevBound))
		}
		prevBound = bound
	}
	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes every counter and restarts the uptime clock
func (m *Metrics) Reset() {
	for _, c := range []*atomic.Uint64{
		&m.ReadOps, &m.WriteOps, &m.DiscardOps, &m.FlushOps, &m.AdminOps,
		&m.ReadBytes, &m.WriteBytes, &m.DiscardBytes,
		&m.ReadErrors, &m.WriteErrors, &m.DiscardErrors, &m.FlushErrors, &m.AdminErrors,
		&m.QueueDepthTotal, &m.QueueDepthCount, &m.TotalLatencyNs, &m.OpCount,
	} {
		c.Store(0)
	}
	m.MaxQueueDepth.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer receives one call per completed command
type Observer interface {
	ObserveRead(bytes uint64, latencyNs uint64, success bool)
	ObserveWrite(bytes uint64, latencyNs uint64, success bool)
	ObserveDiscard(bytes uint64, latencyNs uint64, success bool)
	ObserveFlush(latencyNs uint64, success bool)
	ObserveAdmin(latencyNs uint64, success bool)

	// ObserveQueueDepth is called at each async submission with the
	// number of outstanding commands
	ObserveQueueDepth(depth uint32)
}

// NoOpObserver discards every observation
type NoOpObserver struct{}

func (NoOpObserver) ObserveRead(uint64, uint64, bool)    {}
func (NoOpObserver) ObserveWrite(uint64, uint64, bool)   {}
func (NoOpObserver) ObserveDiscard(uint64, uint64, bool) {}
func (NoOpObserver) ObserveFlush(uint64, bool)           {}
func (NoOpObserver) ObserveAdmin(uint64, bool)           {}
func (NoOpObserver) ObserveQueueDepth(uint32)            {}

// MetricsObserver records observations into a Metrics
type MetricsObserver struct {
	metrics *Metrics
}

func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveRead(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordRead(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveWrite(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordWrite(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveDiscard(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordDiscard(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveFlush(latencyNs uint64, success bool) {
	o.metrics.RecordFlush(latencyNs, success)
}

func (o *MetricsObserver) ObserveAdmin(_ uint64, success bool) {
	o.metrics.RecordAdmin(success)
}

func (o *MetricsObserver) ObserveQueueDepth(depth uint32) {
	o.metrics.RecordQueueDepth(depth)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)

// observe reports one finished I/O command to the device observer
func (d *Device) observe(ctx *Ctx, nbytes uint64, latency time.Duration, err error) {
	ns := uint64(latency.Nanoseconds())
	ok := err == nil && !ctx.Cpl.Failed()
	switch ctx.Cmd.Opcode {
	case OpcRead:
		d.observer.ObserveRead(nbytes, ns, ok)
	case OpcWrite:
		d.observer.ObserveWrite(nbytes, ns, ok)
	case OpcWriteZeroes, OpcDSM:
		d.observer.ObserveDiscard(d.discardBytes(ctx), ns, ok)
	case OpcFlush:
		d.observer.ObserveFlush(ns, ok)
	}
}

func (d *Device) observeAdmin(latency time.Duration, ok bool) {
	d.observer.ObserveAdmin(uint64(latency.Nanoseconds()), ok)
}

// discardBytes sizes a write-zeroes command from its block count
func (d *Device) discardBytes(ctx *Ctx) uint64 {
	if ctx.Cmd.Opcode != OpcWriteZeroes {
		return 0
	}
	return (uint64(ctx.Cmd.NLB()) + 1) * uint64(d.geo.NBytes)
}
