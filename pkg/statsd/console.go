package statsd

import (
	"context"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
)

// AdminListener accepts admin connections and hands each one to the dispatcher as an InboundConnection.
// It never reads from or writes to the accepted connections.
type AdminListener struct {
	logger logrus.FieldLogger
	out    chan<- Event
}

// NewAdminListener initialises a new AdminListener.
func NewAdminListener(logger logrus.FieldLogger, out chan<- Event) *AdminListener {
	return &AdminListener{
		logger: logger,
		out:    out,
	}
}

// Serve accepts connections on l until it is closed or ctx is done.
func (al *AdminListener) Serve(ctx context.Context, l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Temporary() {
				al.logger.WithError(err).Warn("Error accepting admin connection")
				continue
			}
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("non-temporary error accepting admin connection: %v", err)
			}
		}
		al.logger.WithField("remote", conn.RemoteAddr()).Debug("Accepted admin connection")
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return nil
		case al.out <- InboundConnection{Conn: conn}:
		}
	}
}
