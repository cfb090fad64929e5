package backends

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/atlassian/bucketd"
	"github.com/atlassian/bucketd/pkg/backends/cloudwatch"
	"github.com/atlassian/bucketd/pkg/backends/console"
	"github.com/atlassian/bucketd/pkg/backends/graphite"
	"github.com/atlassian/bucketd/pkg/backends/null"
	"github.com/atlassian/bucketd/pkg/backends/redis"
)

// All known backends.
var backends = map[string]bucketd.BackendFactory{
	cloudwatch.BackendName: cloudwatch.NewClientFromViper,
	console.BackendName:    console.NewClientFromViper,
	graphite.BackendName:   graphite.NewClientFromViper,
	null.BackendName:       null.NewClientFromViper,
	redis.BackendName:      redis.NewClientFromViper,
}

// GetBackend creates an instance of the named backend, or nil if
// the name is not known. The error return is only used if the named backend
// was known but failed to initialize.
func GetBackend(name string, v *viper.Viper, logger logrus.FieldLogger) (bucketd.Backend, error) {
	f, found := backends[name]
	if !found {
		return nil, nil
	}
	return f(v, logger)
}

// InitBackend creates an instance of the named backend.
func InitBackend(name string, v *viper.Viper, logger logrus.FieldLogger) (bucketd.Backend, error) {
	if name == "" {
		logger.Info("No backend specified")
		return nil, nil
	}

	backend, err := GetBackend(name, v, logger)
	if err != nil {
		return nil, fmt.Errorf("could not init backend %q: %v", name, err)
	}
	if backend == nil {
		return nil, fmt.Errorf("unknown backend %q", name)
	}
	logger.Infof("Initialised backend %q", name)

	return backend, nil
}
