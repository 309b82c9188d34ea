package store

import (
	"context"
	"errors"

	"github.com/zlnvch/folio/models"
)

// ViewerStore keeps the per-document state owned by the viewer: ink and last-read page.
type ViewerStore interface {
	GetAnnotations(ctx context.Context, documentId string) (models.PageAnnotations, error)
	PutAnnotations(ctx context.Context, record models.AnnotationRecord) error
	WriteAnnotationBatch(ctx context.Context, records []models.AnnotationRecord) ([]models.AnnotationRecord, error)
	GetLastPage(ctx context.Context, documentId string) (int, error)
	PutLastPage(ctx context.Context, record models.PositionRecord) error
}

// GrantStore reads grant rows and applies print debits against them.
type GrantStore interface {
	GetAccessKey(ctx context.Context, accessKeyId string) (models.AccessKey, error)
	GetProfileGrant(ctx context.Context, profileId string) (models.ProfileGrant, error)
	GetDocumentFolder(ctx context.Context, documentId string) (string, error)
	ApplyDebit(ctx context.Context, debit models.Debit) error
}

// Custom error types for clarity
var (
	ErrItemNotFound    = errors.New("item does not exist")
	ErrConditionFailed = errors.New("condition not met")
	// ErrAlreadyApplied is returned when a debit with the same job id was already recorded.
	ErrAlreadyApplied = errors.New("debit already applied")
)
