package backends

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlassian/bucketd/internal/fixtures"
)

func TestInitBackend(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"console", "graphite", "null", "redis"} {
		name := name
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			backend, err := InitBackend(name, viper.New(), fixtures.NewTestLogger(t))
			require.NoError(t, err)
			require.NotNil(t, backend)
			assert.Equal(t, name, backend.Name())
		})
	}
}

func TestInitBackendUnknown(t *testing.T) {
	t.Parallel()
	backend, err := InitBackend("carrier-pigeon", viper.New(), fixtures.NewTestLogger(t))
	assert.EqualError(t, err, `unknown backend "carrier-pigeon"`)
	assert.Nil(t, backend)
}

func TestInitBackendEmptyName(t *testing.T) {
	t.Parallel()
	backend, err := InitBackend("", viper.New(), fixtures.NewTestLogger(t))
	assert.NoError(t, err)
	assert.Nil(t, backend)
}

func TestInitBackendFailure(t *testing.T) {
	t.Parallel()
	v := viper.New()
	v.Set("graphite", map[string]interface{}{"address": ""})
	_, err := InitBackend("graphite", v, fixtures.NewTestLogger(t))
	assert.Error(t, err)
}
