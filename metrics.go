package ftp

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsCollector wraps the prometheus.Collector set a Client reports
// transfer activity through when WithMetrics is used. Modeled on
// mrcgq-222/internal/metrics/gauges.go's direct-field style: every metric
// is a plain struct field registered once, rather than a custom
// Collect() implementation, since a client has no per-scrape-time state
// to compute beyond what the counters/gauge already hold.
type metricsCollector struct {
	bytesTotal      *prometheus.CounterVec
	transfersActive prometheus.Gauge
	transferSeconds *prometheus.HistogramVec
}

// newMetricsCollector builds the collector and registers it against reg.
// reg is typically a dedicated *prometheus.Registry (as
// mrcgq-222/internal/metrics/server.go constructs one per process to
// avoid polluting the default registry) but the global
// prometheus.DefaultRegisterer works too.
func newMetricsCollector(reg prometheus.Registerer) *metricsCollector {
	m := &metricsCollector{
		bytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "goftp",
			Name:      "transfer_bytes_total",
			Help:      "Total bytes transferred, by operation type.",
		}, []string{"op"}),
		transfersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "goftp",
			Name:      "transfers_in_flight",
			Help:      "Number of data transfers currently in progress.",
		}),
		transferSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "goftp",
			Name:      "transfer_duration_seconds",
			Help:      "Transfer duration in seconds, by operation type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}

	reg.MustRegister(m.bytesTotal, m.transfersActive, m.transferSeconds)
	return m
}

// transferKind names the operation a metricsCollector observation is
// attributed to, matching spec section 6's progress-callback "type"
// field (upload, download, list).
type transferKind string

const (
	transferKindUpload   transferKind = "upload"
	transferKindDownload transferKind = "download"
	transferKindList     transferKind = "list"
)

// observeTransfer wraps fn, recording it as one in-flight transfer of the
// given kind and reporting its byte count and duration on return. fn must
// return the number of bytes moved (0 if it failed before transferring
// any).
func (c *Client) observeTransfer(kind transferKind, fn func() (int64, error)) error {
	if c.metrics == nil {
		_, err := fn()
		return err
	}

	c.metrics.transfersActive.Inc()
	start := time.Now()
	n, err := fn()
	c.metrics.transferSeconds.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	c.metrics.transfersActive.Dec()
	if n > 0 {
		c.metrics.bytesTotal.WithLabelValues(string(kind)).Add(float64(n))
	}
	return err
}
