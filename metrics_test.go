package bucketd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricTypeString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "counter", COUNTER.String())
	assert.Equal(t, "gauge", GAUGE.String())
	assert.Equal(t, "timer", TIMER.String())
	assert.Equal(t, "histogram", HISTOGRAM.String())
	assert.Equal(t, "unknown", MetricType(0).String())
}

func TestMetricString(t *testing.T) {
	t.Parallel()
	m := &Metric{Name: "foo.bar", Value: 2, Rate: 0.5, Type: COUNTER}
	assert.Equal(t, "{counter, foo.bar, 2.000000, 0.500000}", m.String())
}
