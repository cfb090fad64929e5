package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tilinna/clock"
	"golang.org/x/time/rate"

	"github.com/atlassian/bucketd"
	"github.com/atlassian/bucketd/pkg/backends"
	"github.com/atlassian/bucketd/pkg/healthcheck"
	"github.com/atlassian/bucketd/pkg/statsd"
	"github.com/atlassian/bucketd/pkg/util"
	"github.com/atlassian/bucketd/pkg/web"
)

var (
	// BuildDate is the date when the binary was built.
	BuildDate string
	// GitCommit is the commit hash that built the binary.
	GitCommit string
	// Version is the version.
	Version string
)

const (
	// ParamVerbose enables verbose logging.
	ParamVerbose = "verbose"
	// ParamJSON makes logger log in JSON format.
	ParamJSON = "json"
	// ParamConfigPath provides file with configuration.
	ParamConfigPath = "config-path"
	// ParamVersion makes program output its version.
	ParamVersion = "version"
)

func main() {
	v, version, err := setupConfiguration(os.Args[1:])
	if err != nil {
		if err == pflag.ErrHelp {
			return
		}
		logrus.Fatalf("Error while parsing configuration: %v", err)
	}
	if version {
		fmt.Printf("Version: %s - Commit: %s - Date: %s\n", Version, GitCommit, BuildDate)
		return
	}
	if err := run(v); err != nil {
		logrus.Fatalf("%v", err)
	}
}

func run(v *viper.Viper) error {
	logrus.Info("Starting server")
	s, err := constructServer(v, logrus.StandardLogger())
	if err != nil {
		return err
	}

	ctx, cancelFunc := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelFunc()

	if err := s.Run(ctx); err != nil && err != context.Canceled {
		return fmt.Errorf("server error: %v", err)
	}
	return nil
}

func constructServer(v *viper.Viper, logger logrus.FieldLogger) (*statsd.Server, error) {
	var runnables []bucketd.Runnable
	var healthChecks, deepChecks []healthcheck.HealthcheckFunc

	buckets := bucketd.NewBuckets(clock.FromContext(context.Background()))

	// Backends
	backendNames := toSlice(v.GetString(bucketd.ParamBackends))
	backendsList := make([]bucketd.Backend, 0, len(backendNames))
	for _, backendName := range backendNames {
		backend, errBackend := backends.InitBackend(backendName, v, logger)
		if errBackend != nil {
			return nil, errBackend
		}
		if backend == nil {
			continue
		}
		backendsList = append(backendsList, backend)
		runnables = bucketd.MaybeAppendRunnable(runnables, backend)
		healthChecks, deepChecks = healthcheck.MaybeAppendHealthChecks(healthChecks, deepChecks, backend)
	}

	// Web server
	webServer, err := web.NewHttpServerFromViper(v, logger, buckets, healthChecks, deepChecks)
	if err != nil {
		return nil, fmt.Errorf("failed to create web server: %v", err)
	}
	if webServer != nil {
		runnables = append(runnables, webServer.Run)
	}

	// Create server
	return &statsd.Server{
		Logger:                    logger,
		Runnables:                 runnables,
		Backends:                  backendsList,
		Buckets:                   buckets,
		MetricsAddr:               v.GetString(bucketd.ParamMetricsAddr),
		AdminAddr:                 v.GetString(bucketd.ParamAdminAddr),
		FlushInterval:             v.GetDuration(bucketd.ParamFlushInterval),
		FlushOffset:               v.GetDuration(bucketd.ParamFlushOffset),
		FlushAligned:              v.GetBool(bucketd.ParamFlushAligned),
		MaxQueueSize:              v.GetInt(bucketd.ParamMaxQueueSize),
		ReusePort:                 v.GetBool(bucketd.ParamReusePort),
		BadLineRateLimitPerSecond: rate.Limit(v.GetFloat64(bucketd.ParamBadLinesPerMinute) / 60.0),
	}, nil
}

func toSlice(s string) []string {
	//TODO Remove workaround when https://github.com/spf13/viper/issues/112 is fixed
	if s == "" {
		return nil
	}
	names := strings.Split(s, ",")
	for i := range names {
		names[i] = strings.TrimSpace(names[i])
	}
	return names
}

func setupConfiguration(args []string) (*viper.Viper, bool, error) {
	v := viper.New()
	defer setupLogger(v) // Apply logging configuration in case of early exit
	util.InitViper(v, "")

	var version bool

	cmd := pflag.NewFlagSet("bucketd", pflag.ContinueOnError)

	cmd.BoolVar(&version, ParamVersion, false, "Print the version and exit")
	cmd.Bool(ParamVerbose, false, "Verbose")
	cmd.Bool(ParamJSON, false, "Log in JSON format")
	cmd.String(ParamConfigPath, "", "Path to the configuration file")

	bucketd.AddFlags(cmd)

	cmd.VisitAll(func(flag *pflag.Flag) {
		if err := v.BindPFlag(flag.Name, flag); err != nil {
			panic(err) // Should never happen
		}
	})

	if err := cmd.Parse(args); err != nil {
		return nil, false, err
	}

	configPath := v.GetString(ParamConfigPath)
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, false, err
		}
	}

	if v.GetDuration(bucketd.ParamFlushInterval) <= 0 {
		return nil, false, fmt.Errorf("%s must be positive", bucketd.ParamFlushInterval)
	}

	return v, version, nil
}

func setupLogger(v *viper.Viper) {
	if v.GetBool(ParamVerbose) {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if v.GetBool(ParamJSON) {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}
