package statsd

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ash2k/stager/wait"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/atlassian/bucketd"
)

// Dispatcher is the single consumer of the event channel. It owns the serialization of datagrams and flushes
// against the store, and spawns a handler for every admin connection.
type Dispatcher struct {
	// Counter fields below must be read/written only using atomic instructions.
	// 64-bit fields must be the first fields in the struct to guarantee proper memory alignment.
	// See https://golang.org/pkg/sync/atomic/#pkg-note-BUG
	lastFlush      int64 // Last time the metrics where sent. Unix timestamp in nsec.
	lastFlushError int64 // Time of the last flush error. Unix timestamp in nsec.

	logger         logrus.FieldLogger
	buckets        *bucketd.Buckets
	backends       []bucketd.Backend
	badLineLimiter *rate.Limiter
	parser         DatagramParser
}

// DispatcherStats holds statistics for a Dispatcher.
type DispatcherStats struct {
	LastFlush      time.Time
	LastFlushError time.Time
}

// NewDispatcher creates a Dispatcher which exports to backends in the given order.
func NewDispatcher(logger logrus.FieldLogger, buckets *bucketd.Buckets, backends []bucketd.Backend, badLineRateLimitPerSecond rate.Limit) *Dispatcher {
	return &Dispatcher{
		logger:         logger,
		buckets:        buckets,
		backends:       backends,
		badLineLimiter: rate.NewLimiter(badLineRateLimitPerSecond, 1),
	}
}

// GetStats returns current Dispatcher stats. Safe for concurrent use.
func (d *Dispatcher) GetStats() DispatcherStats {
	return DispatcherStats{
		LastFlush:      time.Unix(0, atomic.LoadInt64(&d.lastFlush)),
		LastFlushError: time.Unix(0, atomic.LoadInt64(&d.lastFlushError)),
	}
}

// Run processes events until ctx is done. Admin connections still open at that point are closed and
// waited for.
func (d *Dispatcher) Run(ctx context.Context, events <-chan Event) {
	var wg wait.Group
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			switch ev := e.(type) {
			case FlushTick:
				d.flush(ctx)
			case InboundDatagram:
				d.handleDatagram(ev)
			case InboundConnection:
				conn := newConsoleConn(ev.Conn, d.buckets, d.logger)
				wg.StartWithContext(ctx, conn.serve)
			default:
				d.logger.WithField("type", fmt.Sprintf("%T", e)).Error("Unknown event")
			}
		}
	}
}

func (d *Dispatcher) handleDatagram(ev InboundDatagram) {
	m, err := d.parser.Parse(ev.Payload)

	d.buckets.Lock()
	if err != nil {
		d.buckets.AddBadMessage()
	} else {
		d.buckets.AddMetric(m)
	}
	d.buckets.Unlock()

	if err != nil && d.badLineLimiter.Allow() {
		// logging as debug to avoid spamming logs when a bad actor sends
		// badly formatted messages
		d.logger.WithFields(logrus.Fields{
			"line":  string(ev.Payload),
			"addr":  ev.Addr,
			"error": err,
		}).Debug("Error parsing datagram")
	}
}

// flush hands the store to every backend and then resets it, all under a single hold of the lock.
func (d *Dispatcher) flush(ctx context.Context) {
	d.buckets.Lock()
	defer d.buckets.Unlock()

	for _, backend := range d.backends {
		d.sendMetricsAsync(ctx, backend)
	}
	d.buckets.Flush()
}

func (d *Dispatcher) sendMetricsAsync(ctx context.Context, backend bucketd.Backend) {
	defer func() {
		if r := recover(); r != nil {
			d.handleSendResult(backend.Name(), []error{fmt.Errorf("backend panicked: %v", r)})
		}
	}()
	name := backend.Name()
	backend.SendMetricsAsync(ctx, d.buckets, func(errs []error) {
		d.handleSendResult(name, errs)
	})
}

func (d *Dispatcher) handleSendResult(backendName string, flushResults []error) {
	timestampPointer := &d.lastFlush
	var combined error
	for _, err := range flushResults {
		if err != nil && err != context.DeadlineExceeded && err != context.Canceled {
			combined = multierr.Append(combined, err)
		}
		if err != nil {
			timestampPointer = &d.lastFlushError
		}
	}
	if combined != nil {
		d.logger.WithError(combined).WithField("backend", backendName).Error("Sending metrics to backend failed")
	}
	atomic.StoreInt64(timestampPointer, time.Now().UnixNano())
}
