package console

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/atlassian/bucketd"
)

// BackendName is the name of this backend.
const BackendName = "console"

// Client prints a human readable dump of every flush.
type Client struct {
	out io.Writer
}

// NewClientFromViper constructs a console backend writing to stdout.
func NewClientFromViper(v *viper.Viper, logger logrus.FieldLogger) (bucketd.Backend, error) {
	return NewClient(os.Stdout), nil
}

// NewClient constructs a console backend writing to out.
func NewClient(out io.Writer) *Client {
	return &Client{out: out}
}

// SendMetricsAsync writes the store to the output before returning.
func (client *Client) SendMetricsAsync(ctx context.Context, b *bucketd.Buckets, cb bucketd.SendCallback) {
	buf := preparePayload(b)
	_, err := client.out.Write(buf.Bytes())
	cb([]error{err})
}

func preparePayload(b *bucketd.Buckets) *bytes.Buffer {
	buf := new(bytes.Buffer)
	_, _ = fmt.Fprintf(buf, "flush at %d: %d keys, %d of %d messages bad\n",
		b.Now().Unix(), b.Len(), b.BadMessages, b.TotalMessages)

	writeSection(buf, "counters", b.Counters)
	writeSection(buf, "gauges", b.Gauges)
	writeSeries(buf, "timers", b.Timers)
	writeSeries(buf, "histograms", b.Histograms)
	return buf
}

func writeSection(buf *bytes.Buffer, title string, values map[string]float64) {
	if len(values) == 0 {
		return
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	_, _ = fmt.Fprintf(buf, "%s:\n", title)
	for _, k := range keys {
		_, _ = fmt.Fprintf(buf, "  %s: %s\n", k, formatFloat(values[k]))
	}
}

func writeSeries(buf *bytes.Buffer, title string, series map[string][]float64) {
	if len(series) == 0 {
		return
	}
	keys := make([]string, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	_, _ = fmt.Fprintf(buf, "%s:\n", title)
	for _, k := range keys {
		s := bucketd.Summarize(series[k])
		_, _ = fmt.Fprintf(buf, "  %s: count=%d lower=%s upper=%s mean=%s median=%s std=%s sum=%s\n",
			k, s.Count, formatFloat(s.Min), formatFloat(s.Max), formatFloat(s.Mean),
			formatFloat(s.Median), formatFloat(s.StdDev), formatFloat(s.Sum))
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Name returns the name of the backend.
func (*Client) Name() string {
	return BackendName
}
