package cloudwatch

import (
	"context"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/cloudwatch/cloudwatchiface"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/atlassian/bucketd"
	"github.com/atlassian/bucketd/pkg/util"
)

// BackendName is the name of this backend.
const BackendName = "cloudwatch"

// DefaultNamespace is the default CloudWatch namespace metrics are put into.
const DefaultNamespace = "StatsD"

// maxDatumsPerRequest is the most a single PutMetricData request may carry.
// https://docs.aws.amazon.com/AmazonCloudWatch/latest/monitoring/cloudwatch_limits.html
const maxDatumsPerRequest = 20

// Client is an object that is used to send messages to AWS CloudWatch.
type Client struct {
	cloudwatch    cloudwatchiface.CloudWatchAPI
	namespace     string
	flushInterval time.Duration
}

// NewClientFromViper constructs a Cloudwatch backend.
func NewClientFromViper(v *viper.Viper, logger logrus.FieldLogger) (bucketd.Backend, error) {
	g := util.GetSubViper(v, BackendName)
	g.SetDefault("namespace", DefaultNamespace)

	flushInterval := v.GetDuration(bucketd.ParamFlushInterval)
	if flushInterval <= 0 {
		flushInterval = bucketd.DefaultFlushInterval
	}

	logger.WithFields(logrus.Fields{
		"backend":   BackendName,
		"namespace": g.GetString("namespace"),
	}).Info("created backend")
	return NewClient(g.GetString("namespace"), flushInterval)
}

// NewClient constructs a AWS Cloudwatch backend.
func NewClient(namespace string, flushInterval time.Duration) (*Client, error) {
	sess, err := session.NewSession()
	if err != nil {
		return nil, err
	}

	return &Client{
		cloudwatch:    cloudwatch.New(sess),
		namespace:     namespace,
		flushInterval: flushInterval,
	}, nil
}

func (client *Client) buildMetricData(b *bucketd.Buckets, now time.Time) []*cloudwatch.MetricDatum {
	metricData := []*cloudwatch.MetricDatum{}

	add := func(name, unit string, value float64) {
		metricData = append(metricData, &cloudwatch.MetricDatum{
			MetricName: aws.String(name),
			Timestamp:  aws.Time(now),
			Unit:       aws.String(unit),
			Value:      aws.Float64(value),
		})
	}
	addSummary := func(prefix, unit string, s bucketd.Summary) {
		add(prefix+".lower", unit, s.Min)
		add(prefix+".upper", unit, s.Max)
		add(prefix+".count", cloudwatch.StandardUnitCount, float64(s.Count))
		add(prefix+".mean", unit, s.Mean)
		add(prefix+".median", unit, s.Median)
		add(prefix+".std", unit, s.StdDev)
		add(prefix+".sum", unit, s.Sum)
	}

	for _, key := range sortedKeys(b.Counters) {
		add("stats.counter."+key+".count", cloudwatch.StandardUnitCount, b.Counters[key])
		add("stats.counter."+key+".per_second", cloudwatch.StandardUnitCountSecond, b.Counters[key]/client.flushInterval.Seconds())
	}
	for _, key := range sortedKeys(b.Gauges) {
		add("stats.gauge."+key, cloudwatch.StandardUnitNone, b.Gauges[key])
	}
	for _, key := range sortedSeriesKeys(b.Timers) {
		addSummary("stats.timers."+key, cloudwatch.StandardUnitMilliseconds, bucketd.Summarize(b.Timers[key]))
	}
	for _, key := range sortedSeriesKeys(b.Histograms) {
		addSummary("stats.histograms."+key, cloudwatch.StandardUnitNone, bucketd.Summarize(b.Histograms[key]))
	}

	return metricData
}

// SendMetricsAsync sends the contents of the store to AWS Cloudwatch,
// preparing payload synchronously but doing the send asynchronously.
func (client *Client) SendMetricsAsync(ctx context.Context, b *bucketd.Buckets, cb bucketd.SendCallback) {
	api := client.cloudwatch
	metricData := client.buildMetricData(b, b.Now())
	if len(metricData) == 0 {
		cb(nil)
		return
	}

	go func() {
		var errs []error
		for start := 0; start < len(metricData); start += maxDatumsPerRequest {
			end := start + maxDatumsPerRequest
			if end > len(metricData) {
				end = len(metricData)
			}
			_, err := api.PutMetricDataWithContext(ctx, &cloudwatch.PutMetricDataInput{
				MetricData: metricData[start:end],
				Namespace:  aws.String(client.namespace),
			})
			errs = append(errs, err)
		}
		cb(errs)
	}()
}

// Name returns the name of the backend.
func (*Client) Name() string {
	return BackendName
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedSeriesKeys(m map[string][]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
