package worker

import (
	"context"
	"time"

	"github.com/zlnvch/folio/models"
	"github.com/zlnvch/folio/store"
	"go.uber.org/zap"
)

// maxPending bounds how many documents one flush writes.
const maxPending = 25

// AnnotationWriter coalesces annotation snapshots per document and writes only the
// latest one of each on every flush.
type AnnotationWriter struct {
	WriteCh            chan models.AnnotationRecord
	viewerStore        store.ViewerStore
	logger             *zap.Logger
	tickerMilliseconds int
}

func NewAnnotationWriter(viewerStore store.ViewerStore, logger *zap.Logger, tickerMilliseconds int) *AnnotationWriter {
	return &AnnotationWriter{
		WriteCh:            make(chan models.AnnotationRecord, 1024),
		viewerStore:        viewerStore,
		logger:             logger,
		tickerMilliseconds: tickerMilliseconds,
	}
}

func (w *AnnotationWriter) Run(shutdownCtx context.Context) {
	ticker := time.NewTicker(time.Duration(w.tickerMilliseconds) * time.Millisecond)
	defer ticker.Stop()

	pending := make(map[string]models.AnnotationRecord, maxPending)

	keep := func(r models.AnnotationRecord) {
		if cur, ok := pending[r.DocumentId]; ok && cur.Updated.After(r.Updated) {
			return
		}
		pending[r.DocumentId] = r
	}

	flush := func() {
		if len(pending) == 0 {
			return
		}
		batch := make([]models.AnnotationRecord, 0, len(pending))
		for _, r := range pending {
			batch = append(batch, r)
		}
		clear(pending)

		// Pending writes must finish even when shutdown cancels the run context.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		unprocessed, err := w.viewerStore.WriteAnnotationBatch(ctx, batch)
		if err != nil {
			w.logger.Error("failed to write annotation batch",
				zap.Int("documents", len(batch)),
				zap.Int("unprocessed", len(unprocessed)),
				zap.Error(err),
			)
		}
		// Retried on the next flush unless a newer snapshot arrives first.
		for _, r := range unprocessed {
			keep(r)
		}
	}

	for {
		select {
		case r := <-w.WriteCh:
			keep(r)
			if len(pending) >= maxPending {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-shutdownCtx.Done():
			for {
				select {
				case r := <-w.WriteCh:
					keep(r)
				default:
					flush()
					return
				}
			}
		}
	}
}
