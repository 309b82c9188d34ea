package renderer_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	blobmocks "github.com/zlnvch/folio/blob/mocks"
	"github.com/zlnvch/folio/cache"
	cachemocks "github.com/zlnvch/folio/cache/mocks"
	"github.com/zlnvch/folio/renderer"
	"go.uber.org/zap"
)

// minimalPDF builds a well-formed PDF with n empty pages and a correct xref table.
func minimalPDF(n int) []byte {
	var buf bytes.Buffer
	offsets := []int{}
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.7\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, n)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	for i := 0; i < n; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f\r\n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n\r\n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestCountPages(t *testing.T) {
	n, err := renderer.CountPages(minimalPDF(3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCountPages_Garbage(t *testing.T) {
	_, err := renderer.CountPages([]byte("this is not a pdf"))
	assert.ErrorIs(t, err, renderer.ErrRenderFailed)
}

func TestPDFPageCounter_FetchError(t *testing.T) {
	docs := new(blobmocks.MockDocumentStore)
	docs.On("Fetch", mock.Anything, "doc1").Return(nil, errors.New("bucket offline"))

	_, err := renderer.NewPDFPageCounter(docs).PageCount(context.Background(), "doc1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, renderer.ErrRenderFailed)
}

func TestPDFPageCounter_FetchesAndCounts(t *testing.T) {
	docs := new(blobmocks.MockDocumentStore)
	docs.On("Fetch", mock.Anything, "doc1").Return(minimalPDF(5), nil)

	n, err := renderer.NewPDFPageCounter(docs).PageCount(context.Background(), "doc1")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

type stubCounter struct {
	n     int
	err   error
	calls int
}

func (s *stubCounter) PageCount(ctx context.Context, documentId string) (int, error) {
	s.calls++
	return s.n, s.err
}

func TestCachedPageCounter_Hit(t *testing.T) {
	c := new(cachemocks.MockCache)
	next := &stubCounter{n: 9}
	c.On("GetPageCount", mock.Anything, "doc1").Return(42, nil)

	n, err := renderer.NewCachedPageCounter(next, c, zap.NewNop()).PageCount(context.Background(), "doc1")
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.Equal(t, 0, next.calls)
}

func TestCachedPageCounter_MissPopulates(t *testing.T) {
	c := new(cachemocks.MockCache)
	next := &stubCounter{n: 9}
	c.On("GetPageCount", mock.Anything, "doc1").Return(0, cache.ErrMiss)
	c.On("SetPageCount", mock.Anything, "doc1", 9).Return(nil)

	n, err := renderer.NewCachedPageCounter(next, c, zap.NewNop()).PageCount(context.Background(), "doc1")
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	c.AssertExpectations(t)
}

func TestCachedPageCounter_RenderFailureNotCached(t *testing.T) {
	c := new(cachemocks.MockCache)
	next := &stubCounter{err: renderer.ErrRenderFailed}
	c.On("GetPageCount", mock.Anything, "doc1").Return(0, cache.ErrMiss)

	_, err := renderer.NewCachedPageCounter(next, c, zap.NewNop()).PageCount(context.Background(), "doc1")
	assert.ErrorIs(t, err, renderer.ErrRenderFailed)
	c.AssertNotCalled(t, "SetPageCount", mock.Anything, mock.Anything, mock.Anything)
}
