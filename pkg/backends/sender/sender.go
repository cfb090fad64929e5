package sender

import (
	"bytes"
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"

	"github.com/atlassian/bucketd"
	"github.com/atlassian/bucketd/pkg/util"
)

const maxStreamsPerConnection = 100

type ConnFactory func() (net.Conn, error)

// Stream is one flush worth of buffers. Cb is invoked once all of Buf has been written, or has failed.
type Stream struct {
	Cb  bucketd.SendCallback
	Buf <-chan *bytes.Buffer
}

// Sender writes Streams to a connection created by ConnFactory, reconnecting with Backoff as required.
type Sender struct {
	connected int32 // 1 while a connection is open. Accessed atomically.

	Logger       logrus.FieldLogger
	ConnFactory  ConnFactory
	Sink         chan Stream
	BufPool      sync.Pool
	WriteTimeout time.Duration
	Backoff      util.BackoffFactory
}

// Run processes Streams from Sink until ctx is done.
func (s *Sender) Run(ctx context.Context) {
	bo := s.newBackoff()
	var stream *Stream
	var errs []error
	for {
		conn, err := s.ConnFactory()
		if err != nil {
			atomic.StoreInt32(&s.connected, 0)
			next := bo.NextBackOff()
			if next == backoff.Stop {
				s.Logger.WithError(err).Warn("Failed to connect, giving up on pending metrics")
				if stream == nil {
					select {
					case <-ctx.Done():
						return
					case st := <-s.Sink:
						stream = &st
					}
				}
				s.failStream(stream, append(errs, err))
				stream, errs = nil, nil
				bo.Reset()
				continue
			}
			s.Logger.WithError(err).WithField("retry-in", next).Warn("Failed to connect")
			timer := time.NewTimer(next)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			continue
		}
		bo.Reset()
		atomic.StoreInt32(&s.connected, 1)
		if stream, errs, err = s.innerRun(ctx, conn, stream, errs); err != nil {
			if err == context.Canceled || err == context.DeadlineExceeded {
				return
			}
			errs = append(errs, err)
		}
	}
}

// Connected reports whether the most recent connection attempt succeeded.
func (s *Sender) Connected() bool {
	return atomic.LoadInt32(&s.connected) == 1
}

func (s *Sender) newBackoff() backoff.BackOff {
	if s.Backoff == nil {
		return &backoff.StopBackOff{}
	}
	return s.Backoff()
}

func (s *Sender) innerRun(ctx context.Context, conn net.Conn, stream *Stream, errs []error) (*Stream, []error, error) {
	defer func() {
		if err := conn.Close(); err != nil {
			s.Logger.WithError(err).Warn("Close failed")
		}
	}()
	var err error
loop:
	for streamCount := 0; streamCount < maxStreamsPerConnection; streamCount++ {
		if stream == nil {
			select {
			case <-ctx.Done():
				err = ctx.Err()
				break loop
			case st := <-s.Sink:
				stream = &st
			}
		}
		for buf := range stream.Buf {
			if s.WriteTimeout > 0 {
				if e := conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout)); e != nil {
					s.Logger.WithError(e).Warn("Failed to set write deadline")
				}
			}
			_, err = conn.Write(buf.Bytes())
			s.PutBuffer(buf)
			if err != nil {
				break loop
			}
		}
		stream.Cb(errs)
		stream = nil
		errs = nil
	}
	return stream, errs, err
}

func (s *Sender) failStream(stream *Stream, errs []error) {
	for buf := range stream.Buf {
		s.PutBuffer(buf)
	}
	stream.Cb(errs)
}

func (s *Sender) GetBuffer() *bytes.Buffer {
	return s.BufPool.Get().(*bytes.Buffer)
}

func (s *Sender) PutBuffer(buf *bytes.Buffer) {
	buf.Reset() // Reset buffer before returning it into the pool
	s.BufPool.Put(buf)
}
