package metrics

import "github.com/prometheus/client_golang/prometheus"

// LiveStats is the subset of registry state the collector reads at
// scrape time rather than via counters incremented inline.
type LiveStats interface {
	OnlineDeviceCount() int
	TotalDeviceCount() int
}

// Collector implements prometheus.Collector to read live gauges at scrape
// time, adapted from a database-pool-stats collector to read device
// liveness instead.
type Collector struct {
	stats LiveStats

	onlineDevices *prometheus.Desc
	totalDevices  *prometheus.Desc
}

// NewCollector creates a collector over live registry state. stats may be
// nil, in which case the gauges report 0.
func NewCollector(stats LiveStats) *Collector {
	return &Collector{
		stats: stats,
		onlineDevices: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "online_devices"),
			"Current number of devices the registry marks online.",
			nil, nil,
		),
		totalDevices: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "known_devices"),
			"Total number of devices ever registered.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.onlineDevices
	ch <- c.totalDevices
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	online, total := 0, 0
	if c.stats != nil {
		online = c.stats.OnlineDeviceCount()
		total = c.stats.TotalDeviceCount()
	}
	ch <- prometheus.MustNewConstMetric(c.onlineDevices, prometheus.GaugeValue, float64(online))
	ch <- prometheus.MustNewConstMetric(c.totalDevices, prometheus.GaugeValue, float64(total))
}
