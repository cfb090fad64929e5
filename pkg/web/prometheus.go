package web

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atlassian/bucketd"
)

const namespace = "bucketd"

// bucketsCollector exports the message counters and current size of the store. Every scrape takes the store lock.
type bucketsCollector struct {
	buckets *bucketd.Buckets

	badMessages   *prometheus.Desc
	totalMessages *prometheus.Desc
	uptime        *prometheus.Desc
	lastMessage   *prometheus.Desc
	keys          *prometheus.Desc
}

func newBucketsCollector(buckets *bucketd.Buckets) *bucketsCollector {
	return &bucketsCollector{
		buckets: buckets,
		badMessages: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "bad_messages_total"),
			"Datagrams which could not be parsed.",
			nil, nil),
		totalMessages: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "messages_total"),
			"Datagrams received, good or bad.",
			nil, nil),
		uptime: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "uptime_seconds"),
			"Time since the store was created.",
			nil, nil),
		lastMessage: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "last_message_timestamp_seconds"),
			"Unix time of the last valid metric.",
			nil, nil),
		keys: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "keys"),
			"Distinct keys held since the last flush.",
			[]string{"type"}, nil),
	}
}

func (c *bucketsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.badMessages
	ch <- c.totalMessages
	ch <- c.uptime
	ch <- c.lastMessage
	ch <- c.keys
}

func (c *bucketsCollector) Collect(ch chan<- prometheus.Metric) {
	b := c.buckets
	b.Lock()
	bad, total := b.BadMessages, b.TotalMessages
	uptime, lastMessage := b.Uptime(), b.LastMessage
	counters, gauges, timers, histograms := len(b.Counters), len(b.Gauges), len(b.Timers), len(b.Histograms)
	b.Unlock()

	ch <- prometheus.MustNewConstMetric(c.badMessages, prometheus.CounterValue, float64(bad))
	ch <- prometheus.MustNewConstMetric(c.totalMessages, prometheus.CounterValue, float64(total))
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, uptime.Seconds())
	ch <- prometheus.MustNewConstMetric(c.lastMessage, prometheus.GaugeValue, float64(lastMessage.UnixNano())/1e9)
	ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue, float64(counters), "counter")
	ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue, float64(gauges), "gauge")
	ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue, float64(timers), "timer")
	ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue, float64(histograms), "histogram")
}

// newMetricsHandler serves the store collector, plus the Go runtime and process collectors, from a private registry.
func newMetricsHandler(buckets *bucketd.Buckets) (http.Handler, error) {
	registry := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{
		newBucketsCollector(buckets),
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}
