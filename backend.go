package bucketd

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// SendCallback is called by Backend.SendMetricsAsync() to notify about the result of operation.
// A list of errors is passed to the callback. It may be empty or contain nil values. Every non-nil value is an error
// that happened while sending metrics.
type SendCallback func([]error)

// Backend represents a backend.
// If Backend implements the Runner interface, it's started in a new goroutine at creation.
type Backend interface {
	// Name returns the name of the backend.
	Name() string
	// SendMetricsAsync flushes the metrics to the backend, preparing payload synchronously but doing the send asynchronously.
	// It is called with the store lock held. Must not read/write Buckets asynchronously.
	SendMetricsAsync(context.Context, *Buckets, SendCallback)
}

// BackendFactory is a function that returns a Backend.
type BackendFactory func(v *viper.Viper, logger logrus.FieldLogger) (Backend, error)
