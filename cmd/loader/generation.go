package main

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync/atomic"
)

type metricData struct {
	count           uint64 // atomic
	nameFormat      string
	nameCardinality uint
	valueLimit      uint
}

type metricGenerator struct {
	rnd        *rand.Rand
	sampleRate float64

	counters   metricData
	gauges     metricData
	timers     metricData
	histograms metricData
}

func (md *metricData) genName(sb *strings.Builder, r *rand.Rand) {
	atomic.AddUint64(&md.count, ^uint64(0))
	sb.WriteString(fmt.Sprintf(md.nameFormat, r.Intn(int(md.nameCardinality))))
	sb.WriteByte(':')
}

func (mg *metricGenerator) nextCounter(sb *strings.Builder) {
	mg.counters.genName(sb, mg.rnd)
	sb.WriteString(strconv.Itoa(1 + mg.rnd.Intn(int(mg.counters.valueLimit+1))))
	sb.WriteString("|c")
	if mg.sampleRate < 1 {
		sb.WriteString("|@")
		sb.WriteString(strconv.FormatFloat(mg.sampleRate, 'f', -1, 64))
	}
}

func (mg *metricGenerator) nextGauge(sb *strings.Builder) {
	mg.gauges.genName(sb, mg.rnd)
	sb.WriteString(strconv.Itoa(mg.rnd.Intn(int(mg.gauges.valueLimit) + 1)))
	sb.WriteString("|g")
}

func (mg *metricGenerator) nextTimer(sb *strings.Builder) {
	mg.timers.genName(sb, mg.rnd)
	sb.WriteString(strconv.FormatFloat(mg.rnd.Float64()*float64(mg.timers.valueLimit), 'f', -1, 64))
	sb.WriteString("|ms")
}

func (mg *metricGenerator) nextHistogram(sb *strings.Builder) {
	mg.histograms.genName(sb, mg.rnd)
	sb.WriteString(strconv.FormatFloat(mg.rnd.Float64()*float64(mg.histograms.valueLimit), 'f', -1, 64))
	sb.WriteString("|h")
}

// next writes a single metric line, without a trailing newline, into sb. It returns false once every
// metric has been generated.
func (mg *metricGenerator) next(sb *strings.Builder) bool {
	// We can safely read these non-atomically, because this goroutine is the only one that writes to them.
	total := mg.counters.count + mg.gauges.count + mg.timers.count + mg.histograms.count
	if total == 0 {
		return false
	}

	n := uint64(mg.rnd.Int63n(int64(total)))
	switch {
	case n < mg.counters.count:
		mg.nextCounter(sb)
	case n < mg.counters.count+mg.gauges.count:
		mg.nextGauge(sb)
	case n < mg.counters.count+mg.gauges.count+mg.timers.count:
		mg.nextTimer(sb)
	default:
		mg.nextHistogram(sb)
	}
	return true
}

// remaining returns the number of metrics of each type still to be generated. Safe for concurrent use.
func (mg *metricGenerator) remaining() (counters, gauges, timers, histograms uint64) {
	return atomic.LoadUint64(&mg.counters.count),
		atomic.LoadUint64(&mg.gauges.count),
		atomic.LoadUint64(&mg.timers.count),
		atomic.LoadUint64(&mg.histograms.count)
}
