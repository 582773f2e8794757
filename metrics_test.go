package blkio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	assert.Zero(t, m.Snapshot().TotalOps)

	m.RecordRead(1024, 1_000_000, true)
	m.RecordWrite(2048, 2_000_000, true)
	m.RecordRead(512, 500_000, false)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.ReadOps)
	assert.Equal(t, uint64(1), snap.WriteOps)
	assert.Equal(t, uint64(1024), snap.ReadBytes, "failed reads carry no bytes")
	assert.Equal(t, uint64(2048), snap.WriteBytes)
	assert.Equal(t, uint64(1), snap.ReadErrors)
	assert.Zero(t, snap.WriteErrors)
	assert.InDelta(t, 100.0/3.0, snap.ErrorRate, 0.1)
}

func TestMetricsAdminKeptOutOfIOTotals(t *testing.T) {
	m := NewMetrics()
	m.RecordAdmin(true)
	m.RecordAdmin(false)
	m.RecordFlush(1_000, true)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.AdminOps)
	assert.Equal(t, uint64(1), snap.AdminErrors)
	assert.Equal(t, uint64(1), snap.TotalOps)
	assert.Zero(t, snap.ErrorRate)
}

func TestMetricsQueueDepth(t *testing.T) {
	m := NewMetrics()
	m.RecordQueueDepth(10)
	m.RecordQueueDepth(20)
	m.RecordQueueDepth(15)

	snap := m.Snapshot()
	assert.Equal(t, uint32(20), snap.MaxQueueDepth)
	assert.InDelta(t, 15.0, snap.AvgQueueDepth, 0.1)
}

func TestMetricsLatency(t *testing.T) {
	m := NewMetrics()
	m.RecordRead(1024, 1_000_000, true)
	m.RecordWrite(1024, 2_000_000, true)
	assert.Equal(t, uint64(1_500_000), m.Snapshot().AvgLatencyNs)
}

func TestMetricsUptime(t *testing.T) {
	m := NewMetrics()
	time.Sleep(10 * time.Millisecond)

	snap := m.Snapshot()
	assert.GreaterOrEqual(t, snap.UptimeNs, uint64(10*time.Millisecond))

	m.Stop()
	stopped := m.Snapshot().UptimeNs
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, stopped, m.Snapshot().UptimeNs, "uptime frozen after stop")
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.RecordRead(1024, 1_000_000, true)
	m.RecordWrite(2048, 2_000_000, true)
	m.RecordAdmin(true)
	m.RecordQueueDepth(10)
	require.NotZero(t, m.Snapshot().TotalOps)

	m.Reset()
	snap := m.Snapshot()
	assert.Zero(t, snap.TotalOps)
	assert.Zero(t, snap.TotalBytes)
	assert.Zero(t, snap.AdminOps)
	assert.Zero(t, snap.MaxQueueDepth)
}

func TestObserver(t *testing.T) {
	var noop NoOpObserver
	noop.ObserveRead(1024, 1_000_000, true)
	noop.ObserveAdmin(1_000, true)
	noop.ObserveQueueDepth(10)

	m := NewMetrics()
	o := NewMetricsObserver(m)
	o.ObserveRead(1024, 1_000_000, true)
	o.ObserveWrite(2048, 2_000_000, true)
	o.ObserveDiscard(4096, 1_000, true)
	o.ObserveFlush(1_000, false)
	o.ObserveAdmin(1_000, true)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.ReadOps)
	assert.Equal(t, uint64(1), snap.WriteOps)
	assert.Equal(t, uint64(4096), snap.DiscardBytes)
	assert.Equal(t, uint64(1), snap.FlushErrors)
	assert.Equal(t, uint64(1), snap.AdminOps)
}

func TestMetricsHistogram(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < 50; i++ {
		m.RecordRead(1024, 500_000, true)
	}
	for i := 0; i < 49; i++ {
		m.RecordWrite(1024, 5_000_000, true)
	}
	m.RecordWrite(1024, 50_000_000, true)

	snap := m.Snapshot()
	require.Equal(t, uint64(100), snap.TotalOps)
	assert.GreaterOrEqual(t, snap.LatencyP50Ns, uint64(100_000))
	assert.LessOrEqual(t, snap.LatencyP50Ns, uint64(1_000_000))
	assert.GreaterOrEqual(t, snap.LatencyP99Ns, uint64(5_000_000))
	assert.LessOrEqual(t, snap.LatencyP99Ns, uint64(100_000_000))
	assert.Equal(t, uint64(100), snap.LatencyHistogram[numLatencyBuckets-1])
}
