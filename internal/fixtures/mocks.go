package fixtures

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/atlassian/bucketd"
)

// MockBackend implements a mock bucketd.Backend
type MockBackend struct {
	TB testing.TB

	FnName             func() string
	FnSendMetricsAsync func(ctx context.Context, b *bucketd.Buckets, cb bucketd.SendCallback)
}

func (m *MockBackend) Name() string {
	if m.FnName != nil {
		return m.FnName()
	}
	return "mock"
}

func (m *MockBackend) SendMetricsAsync(ctx context.Context, b *bucketd.Buckets, cb bucketd.SendCallback) {
	if m.FnSendMetricsAsync != nil {
		m.FnSendMetricsAsync(ctx, b, cb)
	} else {
		assert.Fail(m.TB, "Backend.SendMetricsAsync must not be called")
	}
}
