package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	blobmocks "github.com/zlnvch/folio/blob/mocks"
	cachemocks "github.com/zlnvch/folio/cache/mocks"
	"github.com/zlnvch/folio/models"
	mqmocks "github.com/zlnvch/folio/mq/mocks"
	"github.com/zlnvch/folio/printer"
	"github.com/zlnvch/folio/service"
	storemocks "github.com/zlnvch/folio/store/mocks"
	"github.com/zlnvch/folio/worker"
	"go.uber.org/zap"
)

var now = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

type stubPages struct {
	n   int
	err error
}

func (p *stubPages) PageCount(ctx context.Context, documentId string) (int, error) {
	return p.n, p.err
}

type fixture struct {
	svc       *service.Service
	viewer    *storemocks.MockViewerStore
	grants    *storemocks.MockGrantStore
	cache     *cachemocks.MockCache
	queue     *mqmocks.MockMQ
	docs      *blobmocks.MockDocumentStore
	pages     *stubPages
	writer    *worker.AnnotationWriter
	positions *worker.PositionBatcher
}

// setupService wires the service to mocks. The workers are never started, so their
// channels can be read directly.
func setupService(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		viewer: new(storemocks.MockViewerStore),
		grants: new(storemocks.MockGrantStore),
		cache:  new(cachemocks.MockCache),
		queue:  new(mqmocks.MockMQ),
		docs:   new(blobmocks.MockDocumentStore),
		pages:  &stubPages{n: 10},
	}
	f.writer = worker.NewAnnotationWriter(f.viewer, zap.NewNop(), 1000)
	f.positions = worker.NewPositionBatcher(f.viewer, zap.NewNop(), 1000)
	f.svc = service.NewService(
		f.viewer,
		f.grants,
		f.cache,
		f.queue,
		f.docs,
		f.pages,
		f.writer,
		f.positions,
		zap.NewNop(),
		[]byte("test-secret"),
	).WithClock(func() time.Time { return now })
	f.svc.PrintSettleDelay = 0
	return f
}

// wrapMockWithSignal returns a channel closed on the first call to the mocked method.
func wrapMockWithSignal(call *mock.Call) chan struct{} {
	done := make(chan struct{})
	var once sync.Once
	call.Run(func(args mock.Arguments) {
		once.Do(func() { close(done) })
	})
	return done
}

type fakeFrame struct {
	printed int
	removed int
}

func (f *fakeFrame) Print(ctx context.Context) error {
	f.printed++
	return nil
}

func (f *fakeFrame) Remove() {
	f.removed++
}

type fakeHost struct {
	mu       sync.Mutex
	scrolled []int
	staged   [][]byte
	frame    *fakeFrame
}

func (h *fakeHost) ScrollTo(page int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scrolled = append(h.scrolled, page)
}

func (h *fakeHost) Stage(ctx context.Context, documentId string, data []byte) (printer.Frame, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.staged = append(h.staged, data)
	h.frame = &fakeFrame{}
	return h.frame, nil
}

var keyCreds = models.CredentialContext{AccessKeyId: "key1"}
