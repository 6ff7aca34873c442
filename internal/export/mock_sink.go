package export

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Export(ctx context.Context, key string, payload []byte) (string, error) {
	args := m.Called(ctx, key, payload)
	return args.String(0), args.Error(1)
}

func (m *MockSink) Verify(ctx context.Context, key string, checksum string) error {
	args := m.Called(ctx, key, checksum)
	return args.Error(0)
}
