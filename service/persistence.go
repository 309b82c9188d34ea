package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zlnvch/folio/cache"
	"github.com/zlnvch/folio/models"
	"github.com/zlnvch/folio/store"
	"go.uber.org/zap"
)

const sideEffectTimeout = 5 * time.Second

// AnnotationsUpdatedMessage is published on the document channel after every save.
type AnnotationsUpdatedMessage struct {
	Type       string `json:"type"`
	DocumentId string `json:"documentId"`
	// Origin is the session that saved; it does not reload its own write.
	Origin string `json:"origin"`
}

const annotationsUpdatedType = "annotations_updated"

// LoadAnnotations reads through the cache. A document nobody has annotated yields an empty map.
func (s *Service) LoadAnnotations(ctx context.Context, documentId string) (models.PageAnnotations, error) {
	data, err := s.Cache.GetAnnotations(ctx, documentId)
	if err == nil {
		var annotations models.PageAnnotations
		if err := json.Unmarshal(data, &annotations); err == nil {
			return annotations, nil
		}
		s.Logger.Warn("discarding unreadable cached annotations", zap.String("documentId", documentId))
		if err := s.Cache.InvalidateDocument(ctx, documentId); err != nil {
			s.Logger.Warn("failed to invalidate document cache", zap.String("documentId", documentId), zap.Error(err))
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		s.Logger.Warn("annotation cache read failed", zap.String("documentId", documentId), zap.Error(err))
	}

	annotations, err := s.ViewerStore.GetAnnotations(ctx, documentId)
	if errors.Is(err, store.ErrItemNotFound) {
		return models.PageAnnotations{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get annotations for %s: %w", documentId, err)
	}

	s.cacheAnnotations(ctx, documentId, annotations)
	return annotations, nil
}

func (s *Service) cacheAnnotations(ctx context.Context, documentId string, annotations models.PageAnnotations) {
	data, err := json.Marshal(annotations)
	if err != nil {
		s.Logger.Error("failed to marshal annotations", zap.String("documentId", documentId), zap.Error(err))
		return
	}
	if err := s.Cache.SetAnnotations(ctx, documentId, data); err != nil {
		s.Logger.Warn("annotation cache write failed", zap.String("documentId", documentId), zap.Error(err))
	}
}

// SaveAnnotations stores the full map: the cache is updated at once, the durable write
// goes through the annotation writer and other viewers are told to reload.
// A newer snapshot already stored wins over this one.
func (s *Service) SaveAnnotations(ctx context.Context, origin, documentId string, annotations models.PageAnnotations) error {
	record := models.AnnotationRecord{
		DocumentId:  documentId,
		Annotations: annotations,
		Updated:     s.now(),
	}

	select {
	case s.AnnotationWriter.WriteCh <- record:
	default:
		// writer backlog is full, write through
		err := s.ViewerStore.PutAnnotations(ctx, record)
		if err != nil && !errors.Is(err, store.ErrConditionFailed) {
			return fmt.Errorf("put annotations for %s: %w", documentId, err)
		}
	}

	s.cacheAnnotations(ctx, documentId, annotations)

	msg := AnnotationsUpdatedMessage{Type: annotationsUpdatedType, DocumentId: documentId, Origin: origin}
	go func() {
		msgBytes, err := json.Marshal(msg)
		if err != nil {
			return
		}
		pubCtx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if err := s.Cache.Publish(pubCtx, cache.DocumentChannel(documentId), msgBytes); err != nil {
			s.Logger.Warn("failed to publish annotation update", zap.String("documentId", documentId), zap.Error(err))
		}
	}()
	return nil
}

// LoadPosition returns the persisted last-read page, or 0 when there is none.
func (s *Service) LoadPosition(ctx context.Context, documentId string) (int, error) {
	page, err := s.Cache.GetLastPage(ctx, documentId)
	if err == nil {
		return page, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.Logger.Warn("last page cache read failed", zap.String("documentId", documentId), zap.Error(err))
	}

	page, err = s.ViewerStore.GetLastPage(ctx, documentId)
	if errors.Is(err, store.ErrItemNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get last page for %s: %w", documentId, err)
	}

	if err := s.Cache.SetLastPage(ctx, documentId, page); err != nil {
		s.Logger.Warn("last page cache write failed", zap.String("documentId", documentId), zap.Error(err))
	}
	return page, nil
}

// SavePosition is called on every current-page change, so it never blocks the caller.
func (s *Service) SavePosition(documentId string, page int) {
	record := models.PositionRecord{DocumentId: documentId, Page: page, Updated: s.now()}

	select {
	case s.PositionBatcher.UpdateCh <- record:
	default:
		s.Logger.Warn("position batcher full, dropping last page",
			zap.String("documentId", documentId),
			zap.Int("page", page),
		)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if err := s.Cache.SetLastPage(ctx, documentId, page); err != nil {
			s.Logger.Warn("last page cache write failed", zap.String("documentId", documentId), zap.Error(err))
		}
	}()
}

// Debit enqueues one print debit for the debit consumer.
func (s *Service) Debit(ctx context.Context, debit models.Debit) error {
	body, err := json.Marshal(debit)
	if err != nil {
		return err
	}
	if err := s.DebitQueue.Send(ctx, string(body)); err != nil {
		return fmt.Errorf("enqueue debit %s: %w", debit.JobId, err)
	}
	return nil
}

// Fetch returns the full document bytes for printing.
func (s *Service) Fetch(ctx context.Context, documentId string) ([]byte, error) {
	return s.Documents.Fetch(ctx, documentId)
}

// ResolveRights is the single view/print decision for a caller.
func (s *Service) ResolveRights(ctx context.Context, documentId string, creds models.CredentialContext) models.Rights {
	return s.Resolver.Resolve(ctx, documentId, creds)
}
