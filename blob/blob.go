package blob

import (
	"context"
	"errors"
)

var ErrDocumentNotFound = errors.New("document not found")

// DocumentStore serves the original bytes of uploaded documents.
type DocumentStore interface {
	Fetch(ctx context.Context, documentId string) ([]byte, error)
}
