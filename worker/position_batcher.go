package worker

import (
	"context"
	"errors"
	"time"

	"github.com/zlnvch/folio/models"
	"github.com/zlnvch/folio/store"
	"go.uber.org/zap"
)

// PositionBatcher keeps only the most recent last-read page per document between flushes.
type PositionBatcher struct {
	UpdateCh           chan models.PositionRecord
	viewerStore        store.ViewerStore
	logger             *zap.Logger
	tickerMilliseconds int
}

func NewPositionBatcher(viewerStore store.ViewerStore, logger *zap.Logger, tickerMilliseconds int) *PositionBatcher {
	return &PositionBatcher{
		UpdateCh:           make(chan models.PositionRecord, 1024),
		viewerStore:        viewerStore,
		logger:             logger,
		tickerMilliseconds: tickerMilliseconds,
	}
}

func (b *PositionBatcher) Run(shutdownCtx context.Context) {
	ticker := time.NewTicker(time.Duration(b.tickerMilliseconds) * time.Millisecond)
	defer ticker.Stop()

	latest := make(map[string]models.PositionRecord)

	flush := func() {
		for _, r := range latest {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := b.viewerStore.PutLastPage(ctx, r)
			cancel()
			// A newer position was already stored by another instance.
			if errors.Is(err, store.ErrConditionFailed) {
				continue
			}
			if err != nil {
				b.logger.Warn("failed to store last page",
					zap.String("documentId", r.DocumentId),
					zap.Int("page", r.Page),
					zap.Error(err),
				)
			}
		}
		clear(latest)
	}

	for {
		select {
		case r := <-b.UpdateCh:
			if cur, ok := latest[r.DocumentId]; !ok || !cur.Updated.After(r.Updated) {
				latest[r.DocumentId] = r
			}
			if len(latest) >= 100 {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-shutdownCtx.Done():
			flush()
			return
		}
	}
}
