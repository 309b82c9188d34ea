package cache

import (
	"context"
	"errors"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

type ViewerCache interface {
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string, handler func(message []byte)) error

	// The annotation blob is cached in its durable JSON form.
	GetAnnotations(ctx context.Context, documentId string) ([]byte, error)
	SetAnnotations(ctx context.Context, documentId string, data []byte) error

	GetLastPage(ctx context.Context, documentId string) (int, error)
	SetLastPage(ctx context.Context, documentId string, page int) error

	GetPageCount(ctx context.Context, documentId string) (int, error)
	SetPageCount(ctx context.Context, documentId string, count int) error

	InvalidateDocument(ctx context.Context, documentId string) error
}

// DocumentChannel is the pub/sub channel carrying updates for one document.
func DocumentChannel(documentId string) string {
	return "doc:" + documentId
}
