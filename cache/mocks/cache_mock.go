package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Publish(ctx context.Context, channel string, message []byte) error {
	args := m.Called(ctx, channel, message)
	return args.Error(0)
}

func (m *MockCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	args := m.Called(ctx, channel, handler)
	return args.Error(0)
}

func (m *MockCache) GetAnnotations(ctx context.Context, documentId string) ([]byte, error) {
	args := m.Called(ctx, documentId)
	if v := args.Get(0); v != nil {
		return v.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCache) SetAnnotations(ctx context.Context, documentId string, data []byte) error {
	args := m.Called(ctx, documentId, data)
	return args.Error(0)
}

func (m *MockCache) GetLastPage(ctx context.Context, documentId string) (int, error) {
	args := m.Called(ctx, documentId)
	return args.Int(0), args.Error(1)
}

func (m *MockCache) SetLastPage(ctx context.Context, documentId string, page int) error {
	args := m.Called(ctx, documentId, page)
	return args.Error(0)
}

func (m *MockCache) GetPageCount(ctx context.Context, documentId string) (int, error) {
	args := m.Called(ctx, documentId)
	return args.Int(0), args.Error(1)
}

func (m *MockCache) SetPageCount(ctx context.Context, documentId string, count int) error {
	args := m.Called(ctx, documentId, count)
	return args.Error(0)
}

func (m *MockCache) InvalidateDocument(ctx context.Context, documentId string) error {
	args := m.Called(ctx, documentId)
	return args.Error(0)
}
