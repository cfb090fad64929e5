package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

type commandOptions struct {
	Target       string  `short:"a" long:"address"                 default:"127.0.0.1:8125" description:"Address to send metrics"                 `
	MetricPrefix string  `short:"p" long:"metric-prefix"           default:"loadtest."      description:"Metric name prefix"                      `
	MetricSuffix string  `          long:"metric-suffix"           default:".%d"            description:"Metric suffix with cardinality marker"   `
	Rate         uint    `short:"r" long:"rate"                    default:"1000"           description:"Target datagrams per second"             `
	Workers      uint    `short:"w" long:"workers"                 default:"1"              description:"Number of parallel workers to use"       `
	SampleRate   float64 `          long:"counter-sample-rate"     default:"1"              description:"Sample rate to attach to counters"       `
	Counts       struct {
		Counter   uint64 `short:"c" long:"counter-count"                                    description:"Number of counters to send"              `
		Gauge     uint64 `short:"g" long:"gauge-count"                                      description:"Number of gauges to send"                `
		Timer     uint64 `short:"t" long:"timer-count"                                      description:"Number of timers to send"                `
		Histogram uint64 `short:"H" long:"histogram-count"                                  description:"Number of histograms to send"            `
	} `group:"Metric count"`
	NameCard struct {
		Counter   uint `           long:"counter-cardinality"     default:"1"              description:"Cardinality of counter names"            `
		Gauge     uint `           long:"gauge-cardinality"       default:"1"              description:"Cardinality of gauges names"             `
		Timer     uint `           long:"timer-cardinality"       default:"1"              description:"Cardinality of timer names"              `
		Histogram uint `           long:"histogram-cardinality"   default:"1"              description:"Cardinality of histogram names"          `
	} `group:"Name cardinality"`
	ValueRange struct {
		Counter   uint `           long:"counter-value-limit"     default:"0"              description:"Maximum value of counters minus one"     `
		Gauge     uint `           long:"gauge-value-limit"       default:"1"              description:"Maximum value of gauges"                 `
		Timer     uint `           long:"timer-value-limit"       default:"1"              description:"Maximum value of timers"                 `
		Histogram uint `           long:"histogram-value-limit"   default:"1"              description:"Maximum value of histograms"             `
	} `group:"Value range"`
}

func parseArgs(args []string) commandOptions {
	opts, parser, err := parseOptions(args)
	if err != nil {
		if isHelp(err) {
			parser.WriteHelp(os.Stdout)
			os.Exit(0)
		}
		parser.WriteHelp(os.Stderr)
		_, _ = fmt.Fprintf(os.Stderr, "\n\nerror parsing command line: %v\n", err)
		os.Exit(1)
	}
	return opts
}

func parseOptions(args []string) (commandOptions, *flags.Parser, error) {
	var opts commandOptions
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.LongDescription = "" + // because gofmt
		"Every datagram carries exactly one metric. Metric types are picked at random,\n" +
		"weighted by how many of each type remain to be sent."

	positional, err := parser.ParseArgs(args)
	if err != nil {
		return opts, parser, err
	}

	if len(positional) != 0 {
		// Near as I can tell there's no way to say no positional arguments allowed.
		return opts, parser, errors.New("no positional arguments allowed")
	}

	if opts.Counts.Counter+opts.Counts.Gauge+opts.Counts.Timer+opts.Counts.Histogram == 0 {
		return opts, parser, errors.New("at least one of counter-count, gauge-count, timer-count, or histogram-count must be non-zero")
	}
	if opts.Workers == 0 || opts.Rate < opts.Workers {
		return opts, parser, errors.New("workers must be non-zero and rate at least workers")
	}
	if opts.SampleRate <= 0 || opts.SampleRate > 1 {
		return opts, parser, errors.New("counter-sample-rate must be in (0, 1]")
	}
	if opts.NameCard.Counter == 0 || opts.NameCard.Gauge == 0 || opts.NameCard.Timer == 0 || opts.NameCard.Histogram == 0 {
		return opts, parser, errors.New("name cardinalities must be non-zero")
	}
	return opts, parser, nil
}

// isHelp is a helper to test the error from ParseArgs() to
// determine if the help message was requested. It is safe to
// call without first checking that error is nil.
func isHelp(err error) bool {
	if err == nil { // No error
		return false
	}

	flagError, ok := err.(*flags.Error)
	if !ok { // Not a go-flag error
		return false
	}

	return flagError.Type == flags.ErrHelp
}
