package fixtures

import (
	"github.com/tilinna/clock"

	"github.com/atlassian/bucketd"
)

type MetricOpt func(m *bucketd.Metric)

// MakeMetric provides a way to build a metric for tests.
func MakeMetric(opts ...MetricOpt) *bucketd.Metric {
	m := &bucketd.Metric{
		Type:  bucketd.COUNTER,
		Name:  "name",
		Value: 1,
		Rate:  1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func Name(n string) MetricOpt {
	return func(m *bucketd.Metric) {
		m.Name = n
	}
}

func Value(v float64) MetricOpt {
	return func(m *bucketd.Metric) {
		m.Value = v
	}
}

func Rate(r float64) MetricOpt {
	return func(m *bucketd.Metric) {
		m.Rate = r
	}
}

func Type(t bucketd.MetricType) MetricOpt {
	return func(m *bucketd.Metric) {
		m.Type = t
	}
}

// MakeBuckets returns a store built on clck with every metric already added.
func MakeBuckets(clck clock.Clock, metrics ...*bucketd.Metric) *bucketd.Buckets {
	b := bucketd.NewBuckets(clck)
	for _, m := range metrics {
		b.AddMetric(m)
	}
	return b
}

// OneOfEach returns a store with a single key of each metric type, named c1, g1, t1 and h1.
func OneOfEach(clck clock.Clock) *bucketd.Buckets {
	return MakeBuckets(clck,
		MakeMetric(Name("c1"), Value(5)),
		MakeMetric(Name("g1"), Value(3), Type(bucketd.GAUGE)),
		MakeMetric(Name("t1"), Value(10), Type(bucketd.TIMER)),
		MakeMetric(Name("t1"), Value(20), Type(bucketd.TIMER)),
		MakeMetric(Name("h1"), Value(4), Type(bucketd.HISTOGRAM)),
	)
}
