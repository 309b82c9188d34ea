package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/zlnvch/folio/models"
)

type MockViewerStore struct {
	mock.Mock
}

func (m *MockViewerStore) GetAnnotations(ctx context.Context, documentId string) (models.PageAnnotations, error) {
	args := m.Called(ctx, documentId)
	if v := args.Get(0); v != nil {
		return v.(models.PageAnnotations), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockViewerStore) PutAnnotations(ctx context.Context, record models.AnnotationRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockViewerStore) WriteAnnotationBatch(ctx context.Context, records []models.AnnotationRecord) ([]models.AnnotationRecord, error) {
	args := m.Called(ctx, records)
	if v := args.Get(0); v != nil {
		return v.([]models.AnnotationRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockViewerStore) GetLastPage(ctx context.Context, documentId string) (int, error) {
	args := m.Called(ctx, documentId)
	return args.Int(0), args.Error(1)
}

func (m *MockViewerStore) PutLastPage(ctx context.Context, record models.PositionRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

type MockGrantStore struct {
	mock.Mock
}

func (m *MockGrantStore) GetAccessKey(ctx context.Context, accessKeyId string) (models.AccessKey, error) {
	args := m.Called(ctx, accessKeyId)
	return args.Get(0).(models.AccessKey), args.Error(1)
}

func (m *MockGrantStore) GetProfileGrant(ctx context.Context, profileId string) (models.ProfileGrant, error) {
	args := m.Called(ctx, profileId)
	return args.Get(0).(models.ProfileGrant), args.Error(1)
}

func (m *MockGrantStore) GetDocumentFolder(ctx context.Context, documentId string) (string, error) {
	args := m.Called(ctx, documentId)
	return args.String(0), args.Error(1)
}

func (m *MockGrantStore) ApplyDebit(ctx context.Context, debit models.Debit) error {
	args := m.Called(ctx, debit)
	return args.Error(0)
}
