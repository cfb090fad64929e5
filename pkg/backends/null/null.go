package null

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/atlassian/bucketd"
)

// BackendName is the name of this backend.
const BackendName = "null"

// client represents a discarding backend.
type client struct{}

// NewClientFromViper constructs a discarding backend.
func NewClientFromViper(v *viper.Viper, logger logrus.FieldLogger) (bucketd.Backend, error) {
	return NewClient()
}

// NewClient constructs a client object.
func NewClient() (bucketd.Backend, error) {
	return client{}, nil
}

// SendMetricsAsync discards the contents of the store.
func (client client) SendMetricsAsync(ctx context.Context, b *bucketd.Buckets, cb bucketd.SendCallback) {
	cb(nil)
}

// Name returns the name of the backend.
func (client client) Name() string {
	return BackendName
}
