package graphite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/atlassian/bucketd"
	"github.com/atlassian/bucketd/pkg/backends/sender"
	"github.com/atlassian/bucketd/pkg/healthcheck"
	"github.com/atlassian/bucketd/pkg/util"
)

const (
	// BackendName is the name of this backend.
	BackendName = "graphite"
	// DefaultAddress is the default address of Graphite server.
	DefaultAddress = "localhost:2003"
	// DefaultDialTimeout is the default net.Dial timeout.
	DefaultDialTimeout = 5 * time.Second
	// DefaultWriteTimeout is the default socket write timeout.
	DefaultWriteTimeout = 30 * time.Second
	// DefaultGlobalPrefix is the default global prefix.
	DefaultGlobalPrefix = "stats"
	// DefaultPrefixCounter is the default counters prefix.
	DefaultPrefixCounter = "counters"
	// DefaultPrefixGauge is the default gauges prefix.
	DefaultPrefixGauge = "gauges"
	// DefaultPrefixTimer is the default timers prefix.
	DefaultPrefixTimer = "timers"
	// DefaultPrefixHistogram is the default histograms prefix.
	DefaultPrefixHistogram = "histograms"
)

const (
	bufSize = 1 * 1024 * 1024
	// maxConcurrentSends is the number of flushes which can be queued for the sender before further flushes fail.
	maxConcurrentSends = 10
)

var (
	regWhitespace  = regexp.MustCompile(`\s+`)
	regNonAlphaNum = regexp.MustCompile(`[^a-zA-Z\d_.-]`)

	errTooManyPendingFlushes = errors.New("[" + BackendName + "] too many pending flushes, dropping metrics")
)

// Client is an object that is used to send messages to a Graphite server's TCP interface.
type Client struct {
	sender             sender.Sender
	flushInterval      time.Duration
	globalNamespace    string // all strings have . stripped off start and end, and are normalized.
	counterNamespace   string
	gaugeNamespace     string
	timerNamespace     string
	histogramNamespace string
}

// Run sends queued flushes until ctx is done.
func (client *Client) Run(ctx context.Context) {
	client.sender.Run(ctx)
}

// SendMetricsAsync flushes the metrics to the Graphite server, preparing payload synchronously but doing the send asynchronously.
func (client *Client) SendMetricsAsync(ctx context.Context, b *bucketd.Buckets, cb bucketd.SendCallback) {
	buf := client.preparePayload(b, b.Now())
	sink := make(chan *bytes.Buffer, 1)
	sink <- buf
	close(sink)
	select {
	case <-ctx.Done():
		client.sender.PutBuffer(buf)
		cb([]error{ctx.Err()})
	case client.sender.Sink <- sender.Stream{Cb: cb, Buf: sink}:
	default:
		client.sender.PutBuffer(buf)
		cb([]error{errTooManyPendingFlushes})
	}
}

// normalizeMetricName will:
// - Replace:
// -- whitespace with "_"
// -- "/" with "-"
// - Delete:
// -- any character that is non alphanumeric, "_", ".", or "-"
func normalizeMetricName(s string) string {
	r1 := regWhitespace.ReplaceAllLiteral([]byte(s), []byte{'_'})
	r2 := bytes.Replace(r1, []byte{'/'}, []byte{'-'}, -1)
	return string(regNonAlphaNum.ReplaceAllLiteral(r2, nil))
}

func prepareName(namespace, name, suffix string) string {
	buf := bytes.Buffer{}
	if namespace != "" {
		buf.WriteString(namespace)
		buf.WriteByte('.')
	}
	buf.WriteString(normalizeMetricName(name))
	if suffix != "" {
		buf.WriteByte('.')
		buf.WriteString(suffix)
	}
	return buf.String()
}

func (client *Client) preparePayload(b *bucketd.Buckets, ts time.Time) *bytes.Buffer {
	buf := client.sender.GetBuffer()
	now := ts.Unix()
	seconds := client.flushInterval.Seconds()

	for key, value := range b.Counters {
		_, _ = fmt.Fprintf(buf, "%s %f %d\n", prepareName(client.counterNamespace, key, "count"), value, now)
		_, _ = fmt.Fprintf(buf, "%s %f %d\n", prepareName(client.counterNamespace, key, "rate"), value/seconds, now)
	}
	for key, value := range b.Gauges {
		_, _ = fmt.Fprintf(buf, "%s %f %d\n", prepareName(client.gaugeNamespace, key, ""), value, now)
	}
	for key, values := range b.Timers {
		writeSummary(buf, client.timerNamespace, key, bucketd.Summarize(values), now)
	}
	for key, values := range b.Histograms {
		writeSummary(buf, client.histogramNamespace, key, bucketd.Summarize(values), now)
	}
	_, _ = fmt.Fprintf(buf, "%s %d %d\n", prepareName(client.globalNamespace, "num_stats", ""), b.Len(), now)
	return buf
}

func writeSummary(buf *bytes.Buffer, namespace, key string, s bucketd.Summary, now int64) {
	_, _ = fmt.Fprintf(buf, "%s %f %d\n", prepareName(namespace, key, "lower"), s.Min, now)
	_, _ = fmt.Fprintf(buf, "%s %f %d\n", prepareName(namespace, key, "upper"), s.Max, now)
	_, _ = fmt.Fprintf(buf, "%s %d %d\n", prepareName(namespace, key, "count"), s.Count, now)
	_, _ = fmt.Fprintf(buf, "%s %f %d\n", prepareName(namespace, key, "mean"), s.Mean, now)
	_, _ = fmt.Fprintf(buf, "%s %f %d\n", prepareName(namespace, key, "median"), s.Median, now)
	_, _ = fmt.Fprintf(buf, "%s %f %d\n", prepareName(namespace, key, "std"), s.StdDev, now)
	_, _ = fmt.Fprintf(buf, "%s %f %d\n", prepareName(namespace, key, "sum"), s.Sum, now)
}

// Name returns the name of the backend.
func (client *Client) Name() string {
	return BackendName
}

// NewClientFromViper constructs a Client object using configuration provided by Viper
func NewClientFromViper(v *viper.Viper, logger logrus.FieldLogger) (bucketd.Backend, error) {
	g := util.GetSubViper(v, BackendName)
	g.SetDefault("address", DefaultAddress)
	g.SetDefault("dial-timeout", DefaultDialTimeout)
	g.SetDefault("write-timeout", DefaultWriteTimeout)
	g.SetDefault("global-prefix", DefaultGlobalPrefix)
	g.SetDefault("prefix-counter", DefaultPrefixCounter)
	g.SetDefault("prefix-gauge", DefaultPrefixGauge)
	g.SetDefault("prefix-timer", DefaultPrefixTimer)
	g.SetDefault("prefix-histogram", DefaultPrefixHistogram)

	retry, err := util.GetRetryFromViper(g)
	if err != nil {
		return nil, fmt.Errorf("[%s] %v", BackendName, err)
	}

	flushInterval := v.GetDuration(bucketd.ParamFlushInterval)
	if flushInterval <= 0 {
		flushInterval = bucketd.DefaultFlushInterval
	}

	return NewClient(Config{
		Address:         g.GetString("address"),
		DialTimeout:     g.GetDuration("dial-timeout"),
		WriteTimeout:    g.GetDuration("write-timeout"),
		FlushInterval:   flushInterval,
		GlobalPrefix:    g.GetString("global-prefix"),
		PrefixCounter:   g.GetString("prefix-counter"),
		PrefixGauge:     g.GetString("prefix-gauge"),
		PrefixTimer:     g.GetString("prefix-timer"),
		PrefixHistogram: g.GetString("prefix-histogram"),
		Retry:           retry,
	}, logger)
}

// Config holds the settings of a Graphite backend.
type Config struct {
	Address         string
	DialTimeout     time.Duration
	WriteTimeout    time.Duration
	FlushInterval   time.Duration // Used to turn counts into per-second rates
	GlobalPrefix    string
	PrefixCounter   string
	PrefixGauge     string
	PrefixTimer     string
	PrefixHistogram string
	Retry           util.BackoffFactory // Reconnect policy, nil gives up on the first failure
}

// NewClient constructs a Graphite backend object.
func NewClient(config Config, logger logrus.FieldLogger) (*Client, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("[%s] address is required", BackendName)
	}
	if config.DialTimeout <= 0 {
		return nil, fmt.Errorf("[%s] dialTimeout should be positive", BackendName)
	}
	if config.WriteTimeout < 0 {
		return nil, fmt.Errorf("[%s] writeTimeout should be non-negative", BackendName)
	}
	if config.FlushInterval <= 0 {
		return nil, fmt.Errorf("[%s] flushInterval should be positive", BackendName)
	}

	globalNamespace := normalizeMetricName(strings.Trim(config.GlobalPrefix, "."))
	counterNamespace := normalizeMetricName(combine(config.GlobalPrefix, config.PrefixCounter))
	gaugeNamespace := normalizeMetricName(combine(config.GlobalPrefix, config.PrefixGauge))
	timerNamespace := normalizeMetricName(combine(config.GlobalPrefix, config.PrefixTimer))
	histogramNamespace := normalizeMetricName(combine(config.GlobalPrefix, config.PrefixHistogram))

	logger = logger.WithField("backend", BackendName)
	logger.WithFields(logrus.Fields{
		"address":             config.Address,
		"dial-timeout":        config.DialTimeout,
		"write-timeout":       config.WriteTimeout,
		"counter-namespace":   counterNamespace,
		"gauge-namespace":     gaugeNamespace,
		"timer-namespace":     timerNamespace,
		"histogram-namespace": histogramNamespace,
	}).Info("created backend")

	address := config.Address
	dialTimeout := config.DialTimeout
	return &Client{
		sender: sender.Sender{
			Logger: logger,
			ConnFactory: func() (net.Conn, error) {
				return net.DialTimeout("tcp", address, dialTimeout)
			},
			Sink: make(chan sender.Stream, maxConcurrentSends),
			BufPool: sync.Pool{
				New: func() interface{} {
					buf := new(bytes.Buffer)
					buf.Grow(bufSize)
					return buf
				},
			},
			WriteTimeout: config.WriteTimeout,
			Backoff:      config.Retry,
		},
		flushInterval:      config.FlushInterval,
		globalNamespace:    globalNamespace,
		counterNamespace:   counterNamespace,
		gaugeNamespace:     gaugeNamespace,
		timerNamespace:     timerNamespace,
		histogramNamespace: histogramNamespace,
	}, nil
}

func combine(prefix, suffix string) string {
	prefix = strings.Trim(prefix, ".")
	suffix = strings.Trim(suffix, ".")
	if prefix != "" && suffix != "" {
		return prefix + "." + suffix
	}
	if prefix != "" {
		return prefix
	}
	return suffix
}

// DeepChecks reports whether the backend currently holds a connection to the Graphite server.
func (client *Client) DeepChecks() []healthcheck.HealthcheckFunc {
	return []healthcheck.HealthcheckFunc{
		func() (string, healthcheck.HealthyStatus) {
			if client.sender.Connected() {
				return BackendName + " connected", healthcheck.Healthy
			}
			return BackendName + " not connected", healthcheck.Unhealthy
		},
	}
}
