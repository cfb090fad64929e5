package statsd

import (
	"context"
	"time"

	"github.com/tilinna/clock"
)

// FlushTimer periodically asks the dispatcher to flush.
type FlushTimer struct {
	flushInterval time.Duration // How often to flush metrics to the backends
	flushOffset   time.Duration // Offset for when to flush if alignment is enabled
	flushAligned  bool          // Indicate if flush is aligned to the interval or not
}

// NewFlushTimer creates a new FlushTimer with provided configuration.
func NewFlushTimer(flushInterval, flushOffset time.Duration, aligned bool) *FlushTimer {
	return &FlushTimer{
		flushInterval: flushInterval,
		flushOffset:   flushOffset,
		flushAligned:  aligned,
	}
}

// align rounds t down to the closest multiple of the interval, shifted by the offset.
func (f *FlushTimer) align(t time.Time) time.Time {
	return t.Add(-f.flushOffset).Truncate(f.flushInterval).Add(f.flushOffset)
}

// Run emits a FlushTick on out every interval until ctx is done. The first tick comes one full interval
// after start, or at the next aligned boundary when alignment is enabled. Aligned ticks carry the boundary
// time rather than the time of firing.
func (f *FlushTimer) Run(ctx context.Context, out chan<- Event) {
	clck := clock.FromContext(ctx)

	if f.flushAligned {
		now := clck.Now()
		first := f.align(now).Add(f.flushInterval)
		tmr := clck.NewTimer(first.Sub(now))
		select {
		case <-ctx.Done():
			tmr.Stop()
			return
		case t := <-tmr.C:
			if !f.emit(ctx, out, f.align(t)) {
				return
			}
		}
	}

	ticker := clck.NewTicker(f.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			if f.flushAligned {
				t = f.align(t)
			}
			if !f.emit(ctx, out, t) {
				return
			}
		}
	}
}

func (f *FlushTimer) emit(ctx context.Context, out chan<- Event, t time.Time) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- FlushTick{Time: t}:
		return true
	}
}
