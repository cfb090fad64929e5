package bucketd

import (
	"fmt"
)

// MetricType is an enumeration of all the possible types of Metric.
type MetricType byte

const (
	_ = iota
	// COUNTER is statsd counter type
	COUNTER MetricType = iota
	// GAUGE is statsd gauge type
	GAUGE
	// TIMER is statsd timer type
	TIMER
	// HISTOGRAM is statsd histogram type
	HISTOGRAM
)

func (m MetricType) String() string {
	switch m {
	case COUNTER:
		return "counter"
	case GAUGE:
		return "gauge"
	case TIMER:
		return "timer"
	case HISTOGRAM:
		return "histogram"
	}
	return "unknown"
}

// Metric represents a single sample decoded from a datagram.
type Metric struct {
	Name  string     // The name of the metric
	Value float64    // The numeric value of the metric
	Rate  float64    // The sampling rate of the metric, only meaningful for counters
	Type  MetricType // The type of metric
}

func (m *Metric) String() string {
	return fmt.Sprintf("{%s, %s, %f, %f}", m.Type, m.Name, m.Value, m.Rate)
}
