package mocks

import (
	"context"
	"io"

	"github.com/brettbedarf/isofs"
	"github.com/stretchr/testify/mock"
)

// MockContentSource implements isofs.ContentSource for testing across packages
type MockContentSource struct {
	mock.Mock
}

func (m *MockContentSource) Open(ctx context.Context) (io.ReadCloser, error) {
	args := m.Called(ctx)

	// Handle function return types so each call can get a fresh reader
	if fn, ok := args.Get(0).(func(context.Context) io.ReadCloser); ok {
		return fn(ctx), args.Error(1)
	}

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

var _ isofs.ContentSource = (*MockContentSource)(nil)

// MockSourceProvider implements isofs.SourceProvider for testing across packages
type MockSourceProvider struct {
	mock.Mock
}

func (m *MockSourceProvider) NewSource(raw []byte) (isofs.ContentSource, error) {
	args := m.Called(raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(isofs.ContentSource), args.Error(1)
}

var _ isofs.SourceProvider = (*MockSourceProvider)(nil)
