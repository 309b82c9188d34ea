package service

import (
	"time"

	"github.com/zlnvch/folio/blob"
	"github.com/zlnvch/folio/cache"
	"github.com/zlnvch/folio/mq"
	"github.com/zlnvch/folio/printer"
	"github.com/zlnvch/folio/renderer"
	"github.com/zlnvch/folio/rights"
	"github.com/zlnvch/folio/store"
	"github.com/zlnvch/folio/viewport"
	"github.com/zlnvch/folio/worker"
	"go.uber.org/zap"
)

type Service struct {
	ViewerStore      store.ViewerStore
	GrantStore       store.GrantStore
	Cache            cache.ViewerCache
	DebitQueue       mq.MessageQueue
	Documents        blob.DocumentStore
	Pages            renderer.PageCounter
	AnnotationWriter *worker.AnnotationWriter
	PositionBatcher  *worker.PositionBatcher
	Resolver         *rights.Resolver
	Logger           *zap.Logger
	JWTSecret        []byte

	PrintSettleDelay     time.Duration
	ScrollSuppressWindow time.Duration

	now func() time.Time
}

func NewService(
	viewerStore store.ViewerStore,
	grantStore store.GrantStore,
	cache cache.ViewerCache,
	debitQueue mq.MessageQueue,
	documents blob.DocumentStore,
	pages renderer.PageCounter,
	annotationWriter *worker.AnnotationWriter,
	positionBatcher *worker.PositionBatcher,
	logger *zap.Logger,
	jwtSecret []byte,
) *Service {
	return &Service{
		ViewerStore:          viewerStore,
		GrantStore:           grantStore,
		Cache:                cache,
		DebitQueue:           debitQueue,
		Documents:            documents,
		Pages:                pages,
		AnnotationWriter:     annotationWriter,
		PositionBatcher:      positionBatcher,
		Resolver:             rights.NewResolver(grantStore, logger),
		Logger:               logger,
		JWTSecret:            jwtSecret,
		PrintSettleDelay:     printer.DefaultSettleDelay,
		ScrollSuppressWindow: viewport.DefaultSuppressWindow,
		now:                  time.Now,
	}
}

// WithClock replaces the clock used for record timestamps, token expiry and grant expiry.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.Resolver = s.Resolver.WithClock(now)
	return s
}
