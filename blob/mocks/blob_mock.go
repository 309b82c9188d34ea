package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockDocumentStore struct {
	mock.Mock
}

func (m *MockDocumentStore) Fetch(ctx context.Context, documentId string) ([]byte, error) {
	args := m.Called(ctx, documentId)
	if v := args.Get(0); v != nil {
		return v.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}
