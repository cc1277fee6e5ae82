//go:build !production

package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/palemoky/tetris-battle/internal/storage"
)

// MockStore 文档存储 mock
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Create(ctx context.Context, collection string, doc storage.Document) (storage.Document, error) {
	args := m.Called(ctx, collection, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(storage.Document), args.Error(1)
}

func (m *MockStore) Read(ctx context.Context, collection string, filter storage.Filter) (storage.Document, error) {
	args := m.Called(ctx, collection, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(storage.Document), args.Error(1)
}

func (m *MockStore) Query(ctx context.Context, collection string, filter storage.Filter) ([]storage.Document, error) {
	args := m.Called(ctx, collection, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.Document), args.Error(1)
}

func (m *MockStore) Update(ctx context.Context, collection string, filter storage.Filter, set storage.Document) (int, error) {
	args := m.Called(ctx, collection, filter, set)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) Delete(ctx context.Context, collection string, filter storage.Filter) (int, error) {
	args := m.Called(ctx, collection, filter)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) Reset(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
