package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports PacketStats lifetime totals as Prometheus counters. It
// reads the totals at scrape time, so the hot path never touches Prometheus.
type Collector struct {
	stats *PacketStats

	received       *prometheus.Desc
	bytes          *prometheus.Desc
	processed      *prometheus.Desc
	malformed      *prometheus.Desc
	forwardDropped *prometheus.Desc
	flushes        *prometheus.Desc
	flushErrors    *prometheus.Desc
}

// NewCollector returns a collector over stats.
func NewCollector(stats *PacketStats) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("telemetry", "", name), help, nil, nil)
	}
	return &Collector{
		stats:          stats,
		received:       desc("packets_received_total", "Datagrams received from the console"),
		bytes:          desc("bytes_received_total", "Bytes received from the console"),
		processed:      desc("packets_processed_total", "Packets that reached the extractors"),
		malformed:      desc("packets_malformed_total", "Packets dropped as malformed"),
		forwardDropped: desc("forward_dropped_total", "Datagrams dropped by the forwarder queue"),
		flushes:        desc("snapshot_flushes_total", "Snapshot flush attempts"),
		flushErrors:    desc("snapshot_flush_errors_total", "Snapshot flushes that failed"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.received
	ch <- c.bytes
	ch <- c.processed
	ch <- c.malformed
	ch <- c.forwardDropped
	ch <- c.flushes
	ch <- c.flushErrors
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	t := c.stats.Totals()
	counter := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.received, t.Received)
	counter(c.bytes, t.Bytes)
	counter(c.processed, t.Processed)
	counter(c.malformed, t.Malformed)
	counter(c.forwardDropped, t.ForwardDropped)
	counter(c.flushes, t.Flushes)
	counter(c.flushErrors, t.FlushErrors)
}
