package bucketd

import (
	"sync"
	"time"

	"github.com/tilinna/clock"
)

// Buckets is the in-memory aggregation store shared by the dispatcher and the admin connections.
//
// All access goes through the embedded mutex. None of the methods below take the lock themselves, the
// caller must hold it for the whole operation, including a flush that spans every backend.
type Buckets struct {
	sync.Mutex

	Counters   map[string]float64
	Gauges     map[string]float64
	Timers     map[string][]float64
	Histograms map[string][]float64

	ServerStartTime time.Time
	LastMessage     time.Time
	BadMessages     uint64
	TotalMessages   uint64

	clock clock.Clock
}

// NewBuckets creates an empty store with its start time taken from clck.
func NewBuckets(clck clock.Clock) *Buckets {
	now := clck.Now()
	return &Buckets{
		Counters:        map[string]float64{},
		Gauges:          map[string]float64{},
		Timers:          map[string][]float64{},
		Histograms:      map[string][]float64{},
		ServerStartTime: now,
		LastMessage:     now,
		clock:           clck,
	}
}

// AddMetric folds a single sample into the store.
func (b *Buckets) AddMetric(m *Metric) {
	switch m.Type {
	case COUNTER:
		rate := m.Rate
		if rate == 0 {
			rate = 1
		}
		b.Counters[m.Name] += m.Value / rate
	case GAUGE:
		b.Gauges[m.Name] = m.Value
	case TIMER:
		b.Timers[m.Name] = append(b.Timers[m.Name], m.Value)
	case HISTOGRAM:
		b.Histograms[m.Name] = append(b.Histograms[m.Name], m.Value)
	}
	b.LastMessage = b.clock.Now()
	b.TotalMessages++
}

// AddBadMessage records a datagram that could not be decoded or parsed.
func (b *Buckets) AddBadMessage() {
	b.BadMessages++
	b.TotalMessages++
}

// Flush discards all aggregated values. Message counters and timestamps survive.
func (b *Buckets) Flush() {
	b.Counters = map[string]float64{}
	b.Gauges = map[string]float64{}
	b.Timers = map[string][]float64{}
	b.Histograms = map[string][]float64{}
}

// Clear empties one of the value maps, named by its plural: counters, gauges, timers or histograms.
// It reports whether the name was known.
func (b *Buckets) Clear(kind string) bool {
	switch kind {
	case "counters":
		b.Counters = map[string]float64{}
	case "gauges":
		b.Gauges = map[string]float64{}
	case "timers":
		b.Timers = map[string][]float64{}
	case "histograms":
		b.Histograms = map[string][]float64{}
	default:
		return false
	}
	return true
}

// Uptime returns how long the store has existed according to its clock.
func (b *Buckets) Uptime() time.Duration {
	return b.clock.Now().Sub(b.ServerStartTime)
}

// Len returns the number of distinct keys across all value maps.
func (b *Buckets) Len() int {
	return len(b.Counters) + len(b.Gauges) + len(b.Timers) + len(b.Histograms)
}

// Now returns the current time of the store's clock.
func (b *Buckets) Now() time.Time {
	return b.clock.Now()
}
