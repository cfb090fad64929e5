package statsd

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tilinna/clock"
	"golang.org/x/time/rate"

	"github.com/atlassian/bucketd"
	"github.com/atlassian/bucketd/internal/fixtures"
)

func newTestDispatcher(t *testing.T, backends ...bucketd.Backend) (*Dispatcher, *bucketd.Buckets) {
	b := bucketd.NewBuckets(clock.NewMock(time.Unix(1, 0)))
	return NewDispatcher(fixtures.NewTestLogger(t), b, backends, rate.Inf), b
}

func runDispatcher(ctx context.Context, d *Dispatcher) (chan<- Event, <-chan struct{}) {
	events := make(chan Event)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		d.Run(ctx, events)
	}()
	return events, finished
}

func datagram(s string) InboundDatagram {
	return InboundDatagram{Payload: []byte(s), Addr: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9999}}
}

func TestDispatcherFlush(t *testing.T) {
	t.Parallel()
	ctx, done := testContext(t)
	defer done()

	backend := newCapturingBackend()
	d, b := newTestDispatcher(t, backend)
	events, finished := runDispatcher(ctx, d)

	events <- datagram("foo:5|c")
	events <- datagram("foo:5|c")
	events <- datagram("bar:2.5|g")
	events <- datagram("baz:100|ms")
	events <- datagram("baz:200|ms")
	events <- datagram("hh:3|h")
	events <- datagram("garbage")
	events <- FlushTick{Time: time.Unix(11, 0)}
	<-backend.flushed

	snapshots := backend.Snapshots()
	require.Len(t, snapshots, 1)
	assert.Equal(t, map[string]float64{"foo": 10}, snapshots[0].Counters)
	assert.Equal(t, map[string]float64{"bar": 2.5}, snapshots[0].Gauges)
	assert.Equal(t, map[string][]float64{"baz": {100, 200}}, snapshots[0].Timers)
	assert.Equal(t, map[string][]float64{"hh": {3}}, snapshots[0].Histograms)

	// A second flush with nothing received exports an empty store.
	events <- FlushTick{Time: time.Unix(21, 0)}
	<-backend.flushed
	snapshots = backend.Snapshots()
	require.Len(t, snapshots, 2)
	assert.Empty(t, snapshots[1].Counters)
	assert.Empty(t, snapshots[1].Gauges)
	assert.Empty(t, snapshots[1].Timers)
	assert.Empty(t, snapshots[1].Histograms)

	done()
	<-finished

	b.Lock()
	defer b.Unlock()
	assert.EqualValues(t, 7, b.TotalMessages)
	assert.EqualValues(t, 1, b.BadMessages)
	assert.False(t, d.GetStats().LastFlush.IsZero())
}

func TestDispatcherBadDatagrams(t *testing.T) {
	t.Parallel()
	ctx, done := testContext(t)
	defer done()

	d, b := newTestDispatcher(t)
	events, finished := runDispatcher(ctx, d)

	events <- InboundDatagram{Payload: []byte{0xff, 0xfe}}
	events <- datagram("foo:1|c|@0")
	events <- datagram("foo:1|x")
	events <- datagram("foo:1|c\n")
	done()
	<-finished

	b.Lock()
	defer b.Unlock()
	assert.EqualValues(t, 3, b.BadMessages)
	assert.EqualValues(t, 4, b.TotalMessages)
	assert.Equal(t, float64(1), b.Counters["foo"])
}

func TestDispatcherFlushFailingBackends(t *testing.T) {
	t.Parallel()
	ctx, done := testContext(t)
	defer done()

	failing := newCapturingBackend(errors.New("network down"), nil)
	healthy := newCapturingBackend()
	d, b := newTestDispatcher(t, failing, panickingBackend{}, healthy)
	events, finished := runDispatcher(ctx, d)

	events <- datagram("foo:1|c")
	events <- FlushTick{}
	<-failing.flushed
	<-healthy.flushed

	require.Len(t, failing.Snapshots(), 1)
	require.Len(t, healthy.Snapshots(), 1)
	assert.Equal(t, map[string]float64{"foo": 1}, healthy.Snapshots()[0].Counters)

	done()
	<-finished

	b.Lock()
	defer b.Unlock()
	assert.Zero(t, b.Len())
	assert.False(t, d.GetStats().LastFlushError.IsZero())
}

func TestDispatcherAdminConnection(t *testing.T) {
	t.Parallel()
	ctx, done := testContext(t)
	defer done()

	d, _ := newTestDispatcher(t)
	events, finished := runDispatcher(ctx, d)

	events <- datagram("foo:5|c")
	events <- datagram("foo:5|c")
	events <- datagram("nope")

	server, client := net.Pipe()
	events <- InboundConnection{Conn: server}

	go func() {
		_, _ = client.Write([]byte("stats\n"))
	}()
	buf := make([]byte, 1024)
	var got []byte
	for len(got) == 0 || got[len(got)-1] != '\n' || countLines(got) < 4 {
		n, err := client.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	assert.Contains(t, string(got), "total_messages: 3\n")
	assert.Contains(t, string(got), "bad_messages: 1\n")

	// Shutdown closes the admin connection.
	done()
	<-finished
	_, err := client.Read(buf)
	assert.Error(t, err)
}

func countLines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}

func TestDispatcherCallsBackendsInOrder(t *testing.T) {
	t.Parallel()
	ctx, done := testContext(t)
	defer done()

	var order []string
	mk := func(name string) *fixtures.MockBackend {
		return &fixtures.MockBackend{
			TB:     t,
			FnName: func() string { return name },
			FnSendMetricsAsync: func(ctx context.Context, b *bucketd.Buckets, cb bucketd.SendCallback) {
				order = append(order, name)
				assert.Len(t, b.Counters, 1)
				cb(nil)
			},
		}
	}
	d, b := newTestDispatcher(t, mk("first"), mk("second"), mk("third"))
	events, finished := runDispatcher(ctx, d)

	events <- datagram("foo:1|c")
	events <- FlushTick{}
	done()
	<-finished

	b.Lock()
	defer b.Unlock()
	assert.Equal(t, []string{"first", "second", "third"}, order)
}
