package statsd

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/ash2k/stager/wait"
	"github.com/libp2p/go-reuseport"
	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"
	"golang.org/x/time/rate"

	"github.com/atlassian/bucketd"
)

// Server encapsulates all of the parameters necessary for starting up
// the server. These can either be set via command line or directly.
type Server struct {
	Logger                    logrus.FieldLogger
	Runnables                 []bucketd.Runnable
	Backends                  []bucketd.Backend
	Buckets                   *bucketd.Buckets
	MetricsAddr               string
	AdminAddr                 string
	FlushInterval             time.Duration
	FlushOffset               time.Duration
	FlushAligned              bool
	MaxQueueSize              int
	ReusePort                 bool
	BadLineRateLimitPerSecond rate.Limit
}

// NewServer will create a new Server with the default configuration.
func NewServer(logger logrus.FieldLogger) *Server {
	return &Server{
		Logger:        logger,
		MetricsAddr:   bucketd.DefaultMetricsAddr,
		AdminAddr:     bucketd.DefaultAdminAddr,
		FlushInterval: bucketd.DefaultFlushInterval,
		FlushOffset:   bucketd.DefaultFlushOffset,
		FlushAligned:  bucketd.DefaultFlushAligned,
		MaxQueueSize:  bucketd.DefaultMaxQueueSize,
		ReusePort:     bucketd.DefaultReusePort,
	}
}

// SocketFactory is an indirection layer over net.ListenPacket() to allow for different implementations.
type SocketFactory func() (net.PacketConn, error)

// ListenerFactory is an indirection layer over net.Listen() to allow for different implementations.
type ListenerFactory func() (net.Listener, error)

// Run runs the server until context signals done.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithCustomSocket(ctx, s.socketFactory(), s.listenerFactory())
}

func (s *Server) socketFactory() SocketFactory {
	return func() (net.PacketConn, error) {
		if s.ReusePort {
			return reuseport.ListenPacket("udp", s.MetricsAddr)
		}
		return net.ListenPacket("udp", s.MetricsAddr)
	}
}

func (s *Server) listenerFactory() ListenerFactory {
	return func() (net.Listener, error) {
		if s.ReusePort {
			return reuseport.Listen("tcp", s.AdminAddr)
		}
		return net.Listen("tcp", s.AdminAddr)
	}
}

// RunWithCustomSocket runs the server until context signals done.
// Both endpoints are bound before anything else starts, and a failure to bind either is returned immediately.
func (s *Server) RunWithCustomSocket(ctx context.Context, sf SocketFactory, lf ListenerFactory) error {
	logger := s.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	// 0. Bind
	c, err := sf()
	if err != nil {
		return fmt.Errorf("failed to bind metrics socket: %v", err)
	}
	l, err := lf()
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("failed to bind admin socket: %v", err)
	}
	logger.WithFields(logrus.Fields{
		"metrics-addr": c.LocalAddr(),
		"admin-addr":   l.Addr(),
	}).Info("Listening")

	buckets := s.Buckets
	if buckets == nil {
		buckets = bucketd.NewBuckets(clock.FromContext(ctx))
	}
	events := make(chan Event, s.MaxQueueSize)

	// 1. Start runnables and runnable backends
	var wgBackends wait.Group
	defer wgBackends.Wait()                       // Wait for backends to shutdown
	ctxBack, cancelBack := detachedContext(ctx) // Separate context!
	defer cancelBack()                            // Tell backends to shutdown
	for _, r := range s.Runnables {
		wgBackends.StartWithContext(ctxBack, r)
	}

	// 2. Start the Dispatcher
	dispatcher := NewDispatcher(logger, buckets, s.Backends, s.BadLineRateLimitPerSecond)
	var wgDispatcher wait.Group
	defer wgDispatcher.Wait()                     // Wait for dispatcher to shutdown
	ctxDisp, cancelDisp := detachedContext(ctx) // Separate context!
	defer cancelDisp()                            // Tell the dispatcher to shutdown
	wgDispatcher.StartWithContext(ctxDisp, func(ctx context.Context) {
		dispatcher.Run(ctx, events)
	})

	// 3. Start the producers
	var wgProducers wait.Group
	defer wgProducers.Wait() // Wait for all producers to finish
	defer func() {
		// This makes the receiver and the admin listener error out and stop
		if e := c.Close(); e != nil {
			logger.WithError(e).Warn("Error closing metrics socket")
		}
		if e := l.Close(); e != nil {
			logger.WithError(e).Warn("Error closing admin socket")
		}
	}()

	receiver := NewDatagramReceiver(logger, events)
	wgProducers.StartWithContext(ctx, func(ctx context.Context) {
		if err := receiver.Receive(ctx, c); err != nil {
			logger.WithError(err).Error("Metrics receiver stopped")
		}
	})
	admin := NewAdminListener(logger, events)
	wgProducers.StartWithContext(ctx, func(ctx context.Context) {
		if err := admin.Serve(ctx, l); err != nil {
			logger.WithError(err).Error("Admin listener stopped")
		}
	})
	flusher := NewFlushTimer(s.FlushInterval, s.FlushOffset, s.FlushAligned)
	wgProducers.StartWithContext(ctx, func(ctx context.Context) {
		flusher.Run(ctx, events)
	})

	// 4. Listen until done
	<-ctx.Done()
	return ctx.Err()
}

// detachedContext returns a cancellable context which is not canceled with parent, but shares its clock.
func detachedContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithCancel(clock.Context(context.Background(), clock.FromContext(parent)))
}
