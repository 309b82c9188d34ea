package renderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/zlnvch/folio/blob"
	"github.com/zlnvch/folio/cache"
	"go.uber.org/zap"
	"seehuhn.de/go/pdf"
	"seehuhn.de/go/pdf/pagetree"
)

// ErrRenderFailed means the document could not be parsed. Viewers switch to the
// fallback display when they see it.
var ErrRenderFailed = errors.New("document failed to render")

// PageCounter resolves the total number of pages of a stored document.
type PageCounter interface {
	PageCount(ctx context.Context, documentId string) (int, error)
}

// PDFPageCounter parses the document's page tree.
type PDFPageCounter struct {
	docs blob.DocumentStore
}

func NewPDFPageCounter(docs blob.DocumentStore) *PDFPageCounter {
	return &PDFPageCounter{docs: docs}
}

func (c *PDFPageCounter) PageCount(ctx context.Context, documentId string) (int, error) {
	data, err := c.docs.Fetch(ctx, documentId)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", documentId, err)
	}
	return CountPages(data)
}

// CountPages reads the page count from raw PDF bytes.
func CountPages(data []byte) (int, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}
	n, err := pagetree.NumPages(r)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: document has no pages", ErrRenderFailed)
	}
	return n, nil
}

// CachedPageCounter memoises counts in the viewer cache.
type CachedPageCounter struct {
	next   PageCounter
	cache  cache.ViewerCache
	logger *zap.Logger
}

func NewCachedPageCounter(next PageCounter, c cache.ViewerCache, logger *zap.Logger) *CachedPageCounter {
	return &CachedPageCounter{next: next, cache: c, logger: logger}
}

func (c *CachedPageCounter) PageCount(ctx context.Context, documentId string) (int, error) {
	n, err := c.cache.GetPageCount(ctx, documentId)
	if err == nil && n > 0 {
		return n, nil
	}
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		c.logger.Warn("page count cache read failed", zap.String("documentId", documentId), zap.Error(err))
	}

	n, err = c.next.PageCount(ctx, documentId)
	if err != nil {
		return 0, err
	}

	if err := c.cache.SetPageCount(ctx, documentId, n); err != nil {
		c.logger.Warn("page count cache write failed", zap.String("documentId", documentId), zap.Error(err))
	}
	return n, nil
}
