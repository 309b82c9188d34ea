package annotation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zlnvch/folio/ink"
	"github.com/zlnvch/folio/models"
	"go.uber.org/zap"
)

var ErrInvalidPage = errors.New("invalid page")

// Persister reads and writes the whole per-document annotation blob.
// LoadAnnotations returns an empty map, not an error, when nothing was saved yet.
type Persister interface {
	LoadAnnotations(ctx context.Context, documentId string) (models.PageAnnotations, error)
	SaveAnnotations(ctx context.Context, documentId string, annotations models.PageAnnotations) error
}

// Store holds the ink of one document. Every mutation persists the full map;
// persistence failures are logged and the in-memory state stays authoritative.
type Store struct {
	mu         sync.Mutex
	documentId string
	persister  Persister
	logger     *zap.Logger

	pages    models.PageAnnotations
	versions map[int]uint64
	clock    uint64
}

func NewStore(persister Persister, logger *zap.Logger) *Store {
	return &Store{
		persister: persister,
		logger:    logger,
		pages:     make(models.PageAnnotations),
		versions:  make(map[int]uint64),
	}
}

func (s *Store) DocumentId() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.documentId
}

// Load replaces the in-memory map with the persisted one. On error the store
// is left empty for documentId so drawing still works.
func (s *Store) Load(ctx context.Context, documentId string) error {
	loaded, err := s.persister.LoadAnnotations(ctx, documentId)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.documentId = documentId
	if err != nil {
		s.reset(nil)
		return fmt.Errorf("load annotations: %w", err)
	}
	s.reset(loaded)
	return nil
}

// Replace swaps in annotations received from elsewhere (another viewer's save) without persisting.
func (s *Store) Replace(annotations models.PageAnnotations) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset(annotations)
}

func (s *Store) reset(annotations models.PageAnnotations) {
	for page := range s.pages {
		s.bump(page)
	}
	s.pages = make(models.PageAnnotations, len(annotations))
	for page, strokes := range annotations {
		if page < 1 || len(strokes) == 0 {
			continue
		}
		s.pages[page] = strokes
		s.bump(page)
	}
	s.pages = s.pages.Clone()
}

func (s *Store) bump(page int) {
	s.clock++
	s.versions[page] = s.clock
}

func (s *Store) Add(ctx context.Context, page int, stroke models.Stroke) error {
	if page < 1 {
		return ErrInvalidPage
	}
	if err := ink.ValidateStroke(stroke); err != nil {
		return err
	}
	stroke.Points = append([]models.Point(nil), stroke.Points...)

	s.mu.Lock()
	s.pages[page] = append(s.pages[page], stroke)
	s.bump(page)
	snapshot := s.pages.Clone()
	s.mu.Unlock()

	s.persist(ctx, snapshot)
	return nil
}

// Undo drops the most recently added stroke on the page.
func (s *Store) Undo(ctx context.Context, page int) (models.Stroke, bool) {
	s.mu.Lock()
	strokes := s.pages[page]
	if len(strokes) == 0 {
		s.mu.Unlock()
		return models.Stroke{}, false
	}
	last := strokes[len(strokes)-1]
	if len(strokes) == 1 {
		delete(s.pages, page)
	} else {
		s.pages[page] = strokes[:len(strokes)-1]
	}
	s.bump(page)
	snapshot := s.pages.Clone()
	s.mu.Unlock()

	s.persist(ctx, snapshot)
	return last, true
}

// Clear removes every stroke on one page and returns how many were dropped.
func (s *Store) Clear(ctx context.Context, page int) int {
	s.mu.Lock()
	n := len(s.pages[page])
	if n == 0 {
		s.mu.Unlock()
		return 0
	}
	delete(s.pages, page)
	s.bump(page)
	snapshot := s.pages.Clone()
	s.mu.Unlock()

	s.persist(ctx, snapshot)
	return n
}

// Save persists the current map explicitly.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	snapshot := s.pages.Clone()
	s.mu.Unlock()
	return s.persist(ctx, snapshot)
}

func (s *Store) persist(ctx context.Context, snapshot models.PageAnnotations) error {
	documentId := s.DocumentId()
	if err := s.persister.SaveAnnotations(ctx, documentId, snapshot); err != nil {
		s.logger.Warn("annotation save failed, keeping ink in memory",
			zap.String("documentId", documentId),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Store) Strokes(page int) []models.Stroke {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Stroke(nil), s.pages[page]...)
}

// Version changes whenever the page's strokes change.
func (s *Store) Version(page int) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[page]
}

// Pages lists pages that carry ink, ascending.
func (s *Store) Pages() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	pages := make([]int, 0, len(s.pages))
	for p := range s.pages {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

func (s *Store) Snapshot() models.PageAnnotations {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages.Clone()
}
