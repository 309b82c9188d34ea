package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/zlnvch/folio/api/rest"
	"github.com/zlnvch/folio/api/ws"
	"github.com/zlnvch/folio/blob"
	"github.com/zlnvch/folio/cache"
	"github.com/zlnvch/folio/config"
	"github.com/zlnvch/folio/mq"
	"github.com/zlnvch/folio/renderer"
	"github.com/zlnvch/folio/service"
	"github.com/zlnvch/folio/store"
	"github.com/zlnvch/folio/worker"
	"go.uber.org/zap"
)

type FolioAPI struct {
	Service     *service.Service
	restHandler *rest.Handler
	wsHandler   *ws.Handler
	shutdownCtx context.Context
	workers     sync.WaitGroup
}

// NewFolioAPI starts the hub and the background workers and wires the service.
// Everything stops when shutdownCtx is cancelled.
func NewFolioAPI(
	viewerStore store.ViewerStore,
	grantStore store.GrantStore,
	viewerCache cache.ViewerCache,
	debitQueue mq.MessageQueue,
	documents blob.DocumentStore,
	jwtSecret []byte,
	cfg config.Config,
	logger *zap.Logger,
	shutdownCtx context.Context,
) *FolioAPI {
	folioAPI := &FolioAPI{shutdownCtx: shutdownCtx}

	wsHub := ws.NewHub(viewerCache, logger)
	folioAPI.start(wsHub.Run)

	annotationWriter := worker.NewAnnotationWriter(viewerStore, logger, int(cfg.AnnotationFlush.Milliseconds()))
	folioAPI.start(annotationWriter.Run)

	positionBatcher := worker.NewPositionBatcher(viewerStore, logger, int(cfg.PositionFlush.Milliseconds()))
	folioAPI.start(positionBatcher.Run)

	debitConsumer := worker.NewDebitConsumer(debitQueue, grantStore, logger)
	folioAPI.start(debitConsumer.Run)

	pages := renderer.NewCachedPageCounter(renderer.NewPDFPageCounter(documents), viewerCache, logger)

	svc := service.NewService(
		viewerStore,
		grantStore,
		viewerCache,
		debitQueue,
		documents,
		pages,
		annotationWriter,
		positionBatcher,
		logger,
		jwtSecret,
	)
	svc.PrintSettleDelay = cfg.PrintSettle
	svc.ScrollSuppressWindow = cfg.ScrollSuppress

	folioAPI.Service = svc
	folioAPI.restHandler = rest.NewHandler(svc, logger)
	folioAPI.wsHandler = ws.NewHandler(svc, wsHub, logger)
	return folioAPI
}

func (folioAPI *FolioAPI) start(run func(context.Context)) {
	folioAPI.workers.Add(1)
	go func() {
		defer folioAPI.workers.Done()
		run(folioAPI.shutdownCtx)
	}()
}

// Wait blocks until every background worker has returned after shutdown, so pending
// annotation and position writes are flushed. It gives up when ctx is done.
func (folioAPI *FolioAPI) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		folioAPI.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (folioAPI *FolioAPI) RegisterRoutes(mux *http.ServeMux, requiredOrigin string) {
	// Health check endpoint (no auth required)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("GET /documents/{id}/rights", folioAPI.restHandler.HandleRights)
	mux.HandleFunc("GET /documents/{id}/annotations", folioAPI.restHandler.HandleAnnotations)
	mux.HandleFunc("GET /documents/{id}/position", folioAPI.restHandler.HandlePosition)

	wsUpgrader := folioAPI.wsHandler.NewWsUpgrader(requiredOrigin)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		folioAPI.wsHandler.ServeWS(wsUpgrader, w, r, folioAPI.shutdownCtx)
	})
}
