package statsd

import (
	"net"
	"time"
)

// Event is anything the dispatcher consumes. There are exactly three kinds.
type Event interface {
	event()
}

// FlushTick asks the dispatcher to export and reset the store.
type FlushTick struct {
	Time time.Time
}

// InboundDatagram carries the raw bytes of a single datagram, exactly as received.
type InboundDatagram struct {
	Payload []byte
	Addr    net.Addr
}

// InboundConnection carries a freshly accepted admin connection. Ownership of Conn moves to the dispatcher.
type InboundConnection struct {
	Conn net.Conn
}

func (FlushTick) event()         {}
func (InboundDatagram) event()   {}
func (InboundConnection) event() {}
