package blkio

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver exports command counters, bytes, latency and queue
// depth of one device as Prometheus metrics
type PrometheusObserver struct {
	ops     *prometheus.CounterVec
	bytes   *prometheus.CounterVec
	latency *prometheus.HistogramVec
	qdepth  prometheus.Gauge
}

// latencyBuckets mirrors LatencyBuckets in seconds
func latencyBuckets() []float64 {
	out := make([]float64, len(LatencyBuckets))
	for i, ns := range LatencyBuckets {
		out[i] = float64(ns) / 1e9
	}
	return out
}

// NewPrometheusObserver registers the device metrics with reg. uri is
// attached as a constant label.
func NewPrometheusObserver(reg prometheus.Registerer, namespace, uri string) (*PrometheusObserver, error) {
	labels := prometheus.Labels{"uri": uri}
	o := &PrometheusObserver{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "blkio",
			Name:        "commands_total",
			Help:        "Completed commands by kind and result",
			ConstLabels: labels,
		}, []string{"op", "result"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "blkio",
			Name:        "bytes_total",
			Help:        "Bytes moved by successful commands",
			ConstLabels: labels,
		}, []string{"op"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "blkio",
			Name:        "command_latency_seconds",
			Help:        "Command latency from submission to completion",
			ConstLabels: labels,
			Buckets:     latencyBuckets(),
		}, []string{"op"}),
		qdepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "blkio",
			Name:        "queue_outstanding",
			Help:        "Outstanding asynchronous commands at the last submission",
			ConstLabels: labels,
		}),
	}
	for _, c := range []prometheus.Collector{o.ops, o.bytes, o.latency, o.qdepth} {
		if err := reg.Register(c); err != nil {
			return nil, WrapError("metrics.register", err)
		}
	}
	return o, nil
}

func result(success bool) string {
	if success {
		return "ok"
	}
	return "error"
}

func (o *PrometheusObserver) record(op string, bytes, latencyNs uint64, success bool) {
	o.ops.WithLabelValues(op, result(success)).Inc()
	if success && bytes > 0 {
		o.bytes.WithLabelValues(op).Add(float64(bytes))
	}
	o.latency.WithLabelValues(op).Observe(float64(latencyNs) / 1e9)
}

func (o *PrometheusObserver) ObserveRead(bytes uint64, latencyNs uint64, success bool) {
	o.record("read", bytes, latencyNs, success)
}

func (o *PrometheusObserver) ObserveWrite(bytes uint64, latencyNs uint64, success bool) {
	o.record("write", bytes, latencyNs, success)
}

func (o *PrometheusObserver) ObserveDiscard(bytes uint64, latencyNs uint64, success bool) {
	o.record("discard", bytes, latencyNs, success)
}

func (o *PrometheusObserver) ObserveFlush(latencyNs uint64, success bool) {
	o.record("flush", 0, latencyNs, success)
}

func (o *PrometheusObserver) ObserveAdmin(latencyNs uint64, success bool) {
	o.record("admin", 0, latencyNs, success)
}

func (o *PrometheusObserver) ObserveQueueDepth(depth uint32) {
	o.qdepth.Set(float64(depth))
}

var _ Observer = (*PrometheusObserver)(nil)
