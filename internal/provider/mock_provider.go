package provider

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/poppopjmp/spiderfoot-sub001/internal/model"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Snapshot(ctx context.Context, resourceType model.ResourceType, asOf time.Time) ([]model.ResourceDescriptor, error) {
	args := m.Called(ctx, resourceType, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ResourceDescriptor), args.Error(1)
}

func (m *MockProvider) Content(ctx context.Context, resourceType model.ResourceType, resourceID string) ([]byte, error) {
	args := m.Called(ctx, resourceType, resourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockProvider) Delete(ctx context.Context, resourceType model.ResourceType, resourceID string) error {
	args := m.Called(ctx, resourceType, resourceID)
	return args.Error(0)
}

func (m *MockProvider) SetStatus(ctx context.Context, resourceType model.ResourceType, resourceID string, status string) error {
	args := m.Called(ctx, resourceType, resourceID, status)
	return args.Error(0)
}
