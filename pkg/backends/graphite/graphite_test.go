package graphite

import (
	"bufio"
	"context"
	"net"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ash2k/stager/wait"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tilinna/clock"

	"github.com/atlassian/bucketd"
	"github.com/atlassian/bucketd/internal/fixtures"
	"github.com/atlassian/bucketd/pkg/healthcheck"
)

func testConfig(address string) Config {
	return Config{
		Address:         address,
		DialTimeout:     1 * time.Second,
		WriteTimeout:    1 * time.Second,
		FlushInterval:   10 * time.Second,
		GlobalPrefix:    DefaultGlobalPrefix,
		PrefixCounter:   DefaultPrefixCounter,
		PrefixGauge:     DefaultPrefixGauge,
		PrefixTimer:     DefaultPrefixTimer,
		PrefixHistogram: DefaultPrefixHistogram,
	}
}

func TestPreparePayload(t *testing.T) {
	t.Parallel()
	b := fixtures.OneOfEach(clock.NewMock(time.Unix(1234, 0)))
	expected := "stats.counters.c1.count 5.000000 1234\n" +
		"stats.counters.c1.rate 0.500000 1234\n" +
		"stats.gauges.g1 3.000000 1234\n" +
		"stats.timers.t1.lower 10.000000 1234\n" +
		"stats.timers.t1.upper 20.000000 1234\n" +
		"stats.timers.t1.count 2 1234\n" +
		"stats.timers.t1.mean 15.000000 1234\n" +
		"stats.timers.t1.median 15.000000 1234\n" +
		"stats.timers.t1.std 5.000000 1234\n" +
		"stats.timers.t1.sum 30.000000 1234\n" +
		"stats.histograms.h1.lower 4.000000 1234\n" +
		"stats.histograms.h1.upper 4.000000 1234\n" +
		"stats.histograms.h1.count 1 1234\n" +
		"stats.histograms.h1.mean 4.000000 1234\n" +
		"stats.histograms.h1.median 4.000000 1234\n" +
		"stats.histograms.h1.std 0.000000 1234\n" +
		"stats.histograms.h1.sum 4.000000 1234\n" +
		"stats.num_stats 4 1234\n"
	cl, err := NewClient(testConfig("127.0.0.1:9"), logrus.New())
	require.NoError(t, err)
	buf := cl.preparePayload(b, time.Unix(1234, 0))
	require.Equal(t, sortLines(expected), sortLines(buf.String()))
}

func TestPreparePayloadCustomPrefixes(t *testing.T) {
	t.Parallel()
	b := fixtures.MakeBuckets(clock.NewMock(time.Unix(1234, 0)),
		fixtures.MakeMetric(fixtures.Name("c1"), fixtures.Value(5)),
		fixtures.MakeMetric(fixtures.Name("g1"), fixtures.Value(3), fixtures.Type(bucketd.GAUGE)),
	)
	config := testConfig("127.0.0.1:9")
	config.GlobalPrefix = ".gp."
	config.PrefixCounter = "pc"
	config.PrefixGauge = "pg."
	config.FlushInterval = 2 * time.Second
	expected := "gp.pc.c1.count 5.000000 1234\n" +
		"gp.pc.c1.rate 2.500000 1234\n" +
		"gp.pg.g1 3.000000 1234\n" +
		"gp.num_stats 2 1234\n"
	cl, err := NewClient(config, logrus.New())
	require.NoError(t, err)
	buf := cl.preparePayload(b, time.Unix(1234, 0))
	require.Equal(t, sortLines(expected), sortLines(buf.String()))
}

func TestPreparePayloadEmpty(t *testing.T) {
	t.Parallel()
	b := bucketd.NewBuckets(clock.NewMock(time.Unix(1234, 0)))
	cl, err := NewClient(testConfig("127.0.0.1:9"), logrus.New())
	require.NoError(t, err)
	buf := cl.preparePayload(b, time.Unix(1234, 0))
	require.Equal(t, "stats.num_stats 0 1234\n", buf.String())
}

func TestNormalizeMetricName(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"foo.bar":       "foo.bar",
		"foo bar\tbaz":  "foo_bar_baz",
		"api/v1/users":  "api-v1-users",
		"a$b%c":         "abc",
		"under_score-x": "under_score-x",
	}
	for input, expected := range tests {
		assert.Equal(t, expected, normalizeMetricName(input), input)
	}
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()
	logger := logrus.New()

	config := testConfig("")
	_, err := NewClient(config, logger)
	assert.Error(t, err)

	config = testConfig("127.0.0.1:9")
	config.DialTimeout = 0
	_, err = NewClient(config, logger)
	assert.Error(t, err)

	config = testConfig("127.0.0.1:9")
	config.WriteTimeout = -1
	_, err = NewClient(config, logger)
	assert.Error(t, err)

	config = testConfig("127.0.0.1:9")
	config.FlushInterval = 0
	_, err = NewClient(config, logger)
	assert.Error(t, err)
}

func TestNewClientFromViper(t *testing.T) {
	t.Parallel()
	v := viper.New()
	v.Set(bucketd.ParamFlushInterval, 5*time.Second)
	v.Set(BackendName, map[string]interface{}{
		"global-prefix": "custom",
	})
	backend, err := NewClientFromViper(v, logrus.New())
	require.NoError(t, err)
	cl := backend.(*Client)
	assert.Equal(t, BackendName, cl.Name())
	assert.Equal(t, 5*time.Second, cl.flushInterval)
	assert.Equal(t, "custom.counters", cl.counterNamespace)
	assert.Equal(t, "custom.histograms", cl.histogramNamespace)
	assert.NotNil(t, cl.sender.Backoff)
}

func TestNewClientFromViperBadRetryPolicy(t *testing.T) {
	t.Parallel()
	v := viper.New()
	v.Set(BackendName, map[string]interface{}{
		"retry-policy": "sometimes",
	})
	_, err := NewClientFromViper(v, logrus.New())
	require.Error(t, err)
}

func TestSendMetricsAsyncTooManyPending(t *testing.T) {
	t.Parallel()
	cl, err := NewClient(testConfig("127.0.0.1:9"), logrus.New())
	require.NoError(t, err)
	b := fixtures.OneOfEach(clock.NewMock(time.Unix(1234, 0)))

	// Nothing drains the sink, so it fills up.
	for i := 0; i < maxConcurrentSends; i++ {
		cl.SendMetricsAsync(context.Background(), b, func(errs []error) {
			t.Errorf("unexpected callback: %v", errs)
		})
	}
	var result []error
	cl.SendMetricsAsync(context.Background(), b, func(errs []error) {
		result = errs
	})
	require.Equal(t, []error{errTooManyPendingFlushes}, result)
}

func TestSendMetricsAsync(t *testing.T) {
	t.Parallel()
	l, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	defer l.Close()

	received := make(chan string, 1)
	go func() {
		conn, e := l.Accept()
		if !assert.NoError(t, e) {
			return
		}
		defer conn.Close()
		assert.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		line, e := bufio.NewReader(conn).ReadString('\n')
		assert.NoError(t, e)
		received <- line
	}()

	cl, err := NewClient(testConfig(l.Addr().String()), fixtures.NewTestLogger(t))
	require.NoError(t, err)

	var wg wait.Group
	defer wg.Wait()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wg.StartWithContext(ctx, cl.Run)

	b := fixtures.MakeBuckets(clock.NewMock(time.Unix(1234, 0)))
	var swg sync.WaitGroup
	swg.Add(1)
	b.Lock()
	cl.SendMetricsAsync(ctx, b, func(errs []error) {
		defer swg.Done()
		for i, e := range errs {
			assert.NoError(t, e, i)
		}
	})
	b.Unlock()
	swg.Wait()

	select {
	case line := <-received:
		assert.Equal(t, "stats.num_stats 0 1234\n", line)
	case <-ctx.Done():
		require.FailNow(t, "nothing received")
	}
}

func sortLines(s string) string {
	lines := strings.Split(s, "\n")
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func TestDeepChecks(t *testing.T) {
	t.Parallel()
	cl, err := NewClient(testConfig("127.0.0.1:9"), logrus.New())
	require.NoError(t, err)
	checks := cl.DeepChecks()
	require.Len(t, checks, 1)
	report, status := checks[0]()
	assert.Equal(t, "graphite not connected", report)
	assert.Equal(t, healthcheck.Unhealthy, status)
}
