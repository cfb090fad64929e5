package statsd

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atlassian/bucketd"
)

// testContext returns a context that will timeout and fail the test if not canceled.  Used to
// enforce a timeout on tests.
func testContext(t *testing.T) (context.Context, func()) {
	ctxTest, completeTest := context.WithTimeout(context.Background(), 5100*time.Millisecond)
	go func() {
		after := time.NewTimer(5 * time.Second)
		select {
		case <-ctxTest.Done():
			after.Stop()
		case <-after.C:
			require.Fail(t, "test timed out")
		}
	}()
	return ctxTest, completeTest
}

// snapshot is a copy of the store contents taken while the store lock is held.
type snapshot struct {
	Counters   map[string]float64
	Gauges     map[string]float64
	Timers     map[string][]float64
	Histograms map[string][]float64
}

// capturingBackend records a copy of every flush it is handed.
type capturingBackend struct {
	mu        sync.Mutex
	snapshots []snapshot
	errs      []error
	flushed   chan struct{}
}

func newCapturingBackend(errs ...error) *capturingBackend {
	return &capturingBackend{
		errs:    errs,
		flushed: make(chan struct{}, 100),
	}
}

func (cb *capturingBackend) Name() string {
	return "capturing"
}

func (cb *capturingBackend) SendMetricsAsync(ctx context.Context, b *bucketd.Buckets, callback bucketd.SendCallback) {
	s := snapshot{
		Counters:   map[string]float64{},
		Gauges:     map[string]float64{},
		Timers:     map[string][]float64{},
		Histograms: map[string][]float64{},
	}
	for k, v := range b.Counters {
		s.Counters[k] = v
	}
	for k, v := range b.Gauges {
		s.Gauges[k] = v
	}
	for k, v := range b.Timers {
		s.Timers[k] = append([]float64(nil), v...)
	}
	for k, v := range b.Histograms {
		s.Histograms[k] = append([]float64(nil), v...)
	}
	cb.mu.Lock()
	cb.snapshots = append(cb.snapshots, s)
	cb.mu.Unlock()
	go func() {
		callback(cb.errs)
		cb.flushed <- struct{}{}
	}()
}

func (cb *capturingBackend) Snapshots() []snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return append([]snapshot(nil), cb.snapshots...)
}

// panickingBackend panics on every flush.
type panickingBackend struct{}

func (panickingBackend) Name() string {
	return "panicking"
}

func (panickingBackend) SendMetricsAsync(ctx context.Context, b *bucketd.Buckets, callback bucketd.SendCallback) {
	panic("boom")
}
