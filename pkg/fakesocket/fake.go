package fakesocket

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"
)

// FakeMetric is the datagram served by NewFakePacketConn.
var FakeMetric = []byte("foo.bar.baz:2|c")

// FakeAddr is the sender address reported for every datagram.
var FakeAddr = &net.UDPAddr{
	IP:   net.IPv4(127, 0, 0, 1),
	Port: 8181,
}

var (
	ErrClosedConnection        = errors.New("connection is closed")
	ErrAlreadyClosedConnection = errors.New("connection is already closed")
)

// FakePacketConn is a net.PacketConn which never blocks on read: every ReadFrom yields the next datagram
// from its source until the connection is closed.
type FakePacketConn struct {
	source    func() []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newConn(source func() []byte) *FakePacketConn {
	return &FakePacketConn{
		source: source,
		closed: make(chan struct{}),
	}
}

// NewFakePacketConn returns a connection which yields FakeMetric on every read.
func NewFakePacketConn() *FakePacketConn {
	return NewFakePacketConnWithPayload(FakeMetric)
}

// NewFakePacketConnWithPayload returns a connection which yields payload on every read.
func NewFakePacketConnWithPayload(payload []byte) *FakePacketConn {
	return newConn(func() []byte { return payload })
}

// Factory is a drop-in for net.ListenPacket which produces a connection yielding random valid datagrams,
// one metric of a random type each.
func Factory() (net.PacketConn, error) {
	return newConn(randomDatagram), nil
}

func randomDatagram() []byte {
	id := rand.Int31n(10000)
	value := rand.Float64() * 100
	switch rand.Int31n(4) {
	case 0:
		return []byte(fmt.Sprintf("bucketd.random.counter_%d:%f|c", id, value))
	case 1:
		return []byte(fmt.Sprintf("bucketd.random.gauge_%d:%f|g", id, value))
	case 2:
		return []byte(fmt.Sprintf("bucketd.random.timer_%d:%f|ms", id, value))
	default:
		return []byte(fmt.Sprintf("bucketd.random.histogram_%d:%f|h", id, value))
	}
}

func (c *FakePacketConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// ReadFrom copies the next datagram into b, truncating it the way the kernel would if b is too small.
func (c *FakePacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	if c.isClosed() {
		return 0, nil, ErrClosedConnection
	}
	return copy(b, c.source()), FakeAddr, nil
}

// WriteTo discards b.
func (c *FakePacketConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	if c.isClosed() {
		return 0, ErrClosedConnection
	}
	return len(b), nil
}

func (c *FakePacketConn) Close() error {
	err := ErrAlreadyClosedConnection
	c.closeOnce.Do(func() {
		close(c.closed)
		err = nil
	})
	return err
}

func (c *FakePacketConn) LocalAddr() net.Addr { return FakeAddr }

func (c *FakePacketConn) SetDeadline(t time.Time) error      { return nil }
func (c *FakePacketConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *FakePacketConn) SetWriteDeadline(t time.Time) error { return nil }
