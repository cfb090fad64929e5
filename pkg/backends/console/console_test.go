package console

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tilinna/clock"

	"github.com/atlassian/bucketd"
	"github.com/atlassian/bucketd/internal/fixtures"
)

func TestSendMetricsAsync(t *testing.T) {
	t.Parallel()
	b := fixtures.OneOfEach(clock.NewMock(time.Unix(1234, 0)))
	b.AddMetric(fixtures.MakeMetric(fixtures.Name("a1"), fixtures.Value(0.25)))
	var out bytes.Buffer
	c := NewClient(&out)

	var result []error
	c.SendMetricsAsync(context.Background(), b, func(errs []error) {
		result = errs
	})

	require.Equal(t, []error{nil}, result)
	expected := "flush at 1234: 5 keys, 0 of 6 messages bad\n" +
		"counters:\n" +
		"  a1: 0.25\n" +
		"  c1: 5\n" +
		"gauges:\n" +
		"  g1: 3\n" +
		"timers:\n" +
		"  t1: count=2 lower=10 upper=20 mean=15 median=15 std=5 sum=30\n" +
		"histograms:\n" +
		"  h1: count=1 lower=4 upper=4 mean=4 median=4 std=0 sum=4\n"
	assert.Equal(t, expected, out.String())
}

func TestSendMetricsAsyncEmpty(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	NewClient(&out).SendMetricsAsync(context.Background(), bucketd.NewBuckets(clock.NewMock(time.Unix(1, 0))), func(errs []error) {})
	assert.Equal(t, "flush at 1: 0 keys, 0 of 0 messages bad\n", out.String())
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestSendMetricsAsyncWriteError(t *testing.T) {
	t.Parallel()
	var result []error
	NewClient(failingWriter{}).SendMetricsAsync(context.Background(), bucketd.NewBuckets(clock.NewMock(time.Unix(1, 0))), func(errs []error) {
		result = errs
	})
	require.Len(t, result, 1)
	assert.EqualError(t, result[0], "broken pipe")
}
