package statsd

import (
	"context"
	"expvar"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// MaxPacketSize is the size of the datagram read buffer. A datagram filling it entirely may have been truncated
// by the kernel, and is forwarded anyway.
const MaxPacketSize = 256

var udpExpvar = expvar.NewMap("bucketd-udp")

// DatagramReceiver reads datagrams from a PacketConn and forwards each one as an InboundDatagram.
type DatagramReceiver struct {
	logger           logrus.FieldLogger
	out              chan<- Event
	truncatedLimiter *rate.Limiter
}

// NewDatagramReceiver initialises a new DatagramReceiver.
func NewDatagramReceiver(logger logrus.FieldLogger, out chan<- Event) *DatagramReceiver {
	return &DatagramReceiver{
		logger:           logger,
		out:              out,
		truncatedLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Receive accepts incoming datagrams on c until the socket is closed or ctx is done.
func (dr *DatagramReceiver) Receive(ctx context.Context, c net.PacketConn) error {
	buf := make([]byte, MaxPacketSize)
	for {
		// This will error out when the socket is closed.
		nbytes, addr, err := c.ReadFrom(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Temporary() {
				udpExpvar.Add("PacketReadingErrors", 1)
				dr.logger.WithError(err).Warn("Error reading from socket")
				continue
			}
			select {
			case <-ctx.Done():
				return nil
			default:
				udpExpvar.Add("PacketReadingErrors", 1)
				return fmt.Errorf("non-temporary error reading from socket: %v", err)
			}
		}
		udpExpvar.Add("PacketsReceived", 1)
		if nbytes == MaxPacketSize {
			udpExpvar.Add("PacketsTruncated", 1)
			if dr.truncatedLimiter.Allow() {
				dr.logger.WithField("size", nbytes).Warn("Max packet size exceeded, packet may have been truncated")
			}
		}

		payload := make([]byte, nbytes)
		copy(payload, buf[:nbytes])
		select {
		case <-ctx.Done():
			return nil
		case dr.out <- InboundDatagram{Payload: payload, Addr: addr}:
		}
	}
}
