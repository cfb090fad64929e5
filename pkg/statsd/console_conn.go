package statsd

import (
	"bufio"
	"context"
	"io"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/atlassian/bucketd"
)

// consoleConn represents a single admin connection.
type consoleConn struct {
	conn    net.Conn
	buckets *bucketd.Buckets
	logger  logrus.FieldLogger
}

func newConsoleConn(conn net.Conn, buckets *bucketd.Buckets, logger logrus.FieldLogger) *consoleConn {
	return &consoleConn{
		conn:    conn,
		buckets: buckets,
		logger:  logger.WithField("remote", conn.RemoteAddr()),
	}
}

// serve reads newline terminated commands from the connection and responds to each in turn.
// The connection is closed when the client quits, on EOF or read error, or when ctx is done.
func (c *consoleConn) serve(ctx context.Context) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.conn.Close()
		case <-done:
		}
	}()
	defer func() {
		if err := c.conn.Close(); err != nil {
			c.logger.WithError(err).Debug("Error closing admin connection")
		}
	}()

	r := bufio.NewReader(c.conn)
	w := bufio.NewWriter(c.conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				c.logger.WithError(err).Debug("Error reading from admin connection")
			}
			return
		}

		c.buckets.Lock()
		response, closeConn := c.buckets.HandleAdminCommand(line)
		c.buckets.Unlock()

		if _, err := w.WriteString(response + "\n"); err != nil {
			c.logger.WithError(err).Debug("Error writing to admin connection")
			return
		}
		if err := w.Flush(); err != nil {
			c.logger.WithError(err).Debug("Error writing to admin connection")
			return
		}
		if closeConn {
			return
		}
	}
}
