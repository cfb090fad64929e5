package bucketd

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// DefaultBackends is the list of default backends' names.
var DefaultBackends = []string{"console"}

const (
	// DefaultMetricsAddr is the default address on which to listen for metrics.
	DefaultMetricsAddr = ":8125"
	// DefaultAdminAddr is the default address on which to listen for admin connections.
	DefaultAdminAddr = ":8126"
	// DefaultFlushInterval is the default metrics flush interval.
	DefaultFlushInterval = 10 * time.Second
	// DefaultFlushOffset is the default offset for aligned flushes.
	DefaultFlushOffset = 0
	// DefaultFlushAligned is the default for aligning flushes to the wall clock.
	DefaultFlushAligned = false
	// DefaultMaxQueueSize is the default size of the event queue.
	DefaultMaxQueueSize = 10000 // arbitrary
	// DefaultReusePort is the default for SO_REUSEPORT on listening sockets.
	DefaultReusePort = false
	// DefaultBadLinesPerMinute is the default number of bad lines to allow to log per minute.
	DefaultBadLinesPerMinute = 0
	// DefaultWebAddr is the default address of the web server, empty to disable it.
	DefaultWebAddr = ""
)

const (
	// ParamBackends is the name of parameter with backends.
	ParamBackends = "backends"
	// ParamMetricsAddr is the name of parameter with address on which to listen for metrics.
	ParamMetricsAddr = "metrics-addr"
	// ParamAdminAddr is the name of parameter with address on which to listen for admin connections.
	ParamAdminAddr = "admin-addr"
	// ParamFlushInterval is the name of parameter with metrics flush interval.
	ParamFlushInterval = "flush-interval"
	// ParamFlushOffset is the name of the parameter with the flush offset.
	ParamFlushOffset = "flush-offset"
	// ParamFlushAligned is the name of the parameter which aligns flushes to the wall clock.
	ParamFlushAligned = "flush-aligned"
	// ParamMaxQueueSize is the name of parameter with the size of the event queue.
	ParamMaxQueueSize = "max-queue-size"
	// ParamReusePort is the name of parameter which enables SO_REUSEPORT.
	ParamReusePort = "reuse-port"
	// ParamBadLinesPerMinute is the name of the parameter indicating how many bad lines can be logged per minute.
	ParamBadLinesPerMinute = "bad-lines-per-minute"
	// ParamWebAddr is the name of parameter with the address of the web server.
	ParamWebAddr = "web-addr"
)

// AddFlags adds flags to the specified FlagSet.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(ParamMetricsAddr, DefaultMetricsAddr, "Address on which to listen for metrics")
	fs.String(ParamAdminAddr, DefaultAdminAddr, "Address on which to listen for admin connections")
	fs.Duration(ParamFlushInterval, DefaultFlushInterval, "How often to flush metrics to the backends")
	fs.Duration(ParamFlushOffset, DefaultFlushOffset, "Offset for flush interval when flush alignment is enabled")
	fs.Bool(ParamFlushAligned, DefaultFlushAligned, "Align flush interval to the wall clock")
	fs.Int(ParamMaxQueueSize, DefaultMaxQueueSize, "Maximum number of buffered events")
	fs.Bool(ParamReusePort, DefaultReusePort, "Set SO_REUSEPORT on the listening sockets")
	fs.Float64(ParamBadLinesPerMinute, DefaultBadLinesPerMinute, "The number of bad lines to allow to log per minute")
	fs.String(ParamWebAddr, DefaultWebAddr, "If set, serve healthcheck, expvar and prometheus metrics on this address")
	//TODO Remove workaround when https://github.com/spf13/viper/issues/112 is fixed
	// https://github.com/spf13/viper/issues/200
	fs.String(ParamBackends, strings.Join(DefaultBackends, ","), "Comma-separated list of backends")
}
