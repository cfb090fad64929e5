package main

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ash2k/stager/wait"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

func main() {
	opts := parseArgs(os.Args[1:])

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	generators := newGenerators(opts, rand.Int63)
	var wg wait.Group
	for _, generator := range generators {
		generator := generator
		conn, err := net.DialTimeout("udp", opts.Target, 1*time.Second)
		if err != nil {
			logrus.Fatalf("Failed to connect to %s: %v", opts.Target, err)
		}
		limiter := rate.NewLimiter(rate.Limit(opts.Rate/opts.Workers), 1)
		wg.Start(func() {
			defer conn.Close()
			if err := sendMetricsWorker(ctx, conn, limiter, generator); err != nil && err != context.Canceled {
				logrus.WithError(err).Error("Worker stopped")
			}
		})
	}

	chDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(chDone)
	}()

	statusTicker := time.NewTicker(1 * time.Second)
	defer statusTicker.Stop()
	for {
		select {
		case <-chDone:
			return
		case <-statusTicker.C:
			var counters, gauges, timers, histograms uint64
			for _, mg := range generators {
				c, g, t, h := mg.remaining()
				counters += c
				gauges += g
				timers += t
				histograms += h
			}
			fmt.Printf("%d counters, %d gauges, %d timers, %d histograms\n", counters, gauges, timers, histograms)
		}
	}
}

func newGenerators(opts commandOptions, seed func() int64) []*metricGenerator {
	generators := make([]*metricGenerator, 0, opts.Workers)
	workers := uint64(opts.Workers)
	for i := uint(0); i < opts.Workers; i++ {
		generators = append(generators, &metricGenerator{
			rnd:        rand.New(rand.NewSource(seed())),
			sampleRate: opts.SampleRate,
			counters: metricData{
				nameFormat:      fmt.Sprintf("%scounter%s", opts.MetricPrefix, opts.MetricSuffix),
				count:           opts.Counts.Counter / workers,
				nameCardinality: opts.NameCard.Counter,
				valueLimit:      opts.ValueRange.Counter,
			},
			gauges: metricData{
				nameFormat:      fmt.Sprintf("%sgauge%s", opts.MetricPrefix, opts.MetricSuffix),
				count:           opts.Counts.Gauge / workers,
				nameCardinality: opts.NameCard.Gauge,
				valueLimit:      opts.ValueRange.Gauge,
			},
			timers: metricData{
				nameFormat:      fmt.Sprintf("%stimer%s", opts.MetricPrefix, opts.MetricSuffix),
				count:           opts.Counts.Timer / workers,
				nameCardinality: opts.NameCard.Timer,
				valueLimit:      opts.ValueRange.Timer,
			},
			histograms: metricData{
				nameFormat:      fmt.Sprintf("%shistogram%s", opts.MetricPrefix, opts.MetricSuffix),
				count:           opts.Counts.Histogram / workers,
				nameCardinality: opts.NameCard.Histogram,
				valueLimit:      opts.ValueRange.Histogram,
			},
		})
	}
	return generators
}

// sendMetricsWorker sends one datagram per generated metric, paced by limiter, until the generator is exhausted
// or ctx is done.
func sendMetricsWorker(ctx context.Context, conn net.Conn, limiter *rate.Limiter, generator *metricGenerator) error {
	sb := &strings.Builder{}
	for generator.next(sb) {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := conn.Write([]byte(sb.String())); err != nil {
			logrus.WithError(err).Warn("Pausing for 1 second, error sending packet")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(1 * time.Second):
			}
		}
		sb.Reset()
	}
	return nil
}
