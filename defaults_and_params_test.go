package bucketd

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddFlags(t *testing.T) {
	require.NotPanics(t, func() {
		fs := &pflag.FlagSet{}
		AddFlags(fs)
	})
}

func TestAddFlagsDefaults(t *testing.T) {
	t.Parallel()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"--admin-addr", "127.0.0.1:9000", "--flush-interval", "2s"}))

	metricsAddr, err := fs.GetString(ParamMetricsAddr)
	require.NoError(t, err)
	assert.Equal(t, ":8125", metricsAddr)

	adminAddr, err := fs.GetString(ParamAdminAddr)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", adminAddr)

	flush, err := fs.GetDuration(ParamFlushInterval)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, flush)

	backends, err := fs.GetString(ParamBackends)
	require.NoError(t, err)
	assert.Equal(t, "console", backends)
}
