package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gofrs/uuid/v5"
	"github.com/zlnvch/folio/annotation"
	"github.com/zlnvch/folio/ink"
	"github.com/zlnvch/folio/models"
	"github.com/zlnvch/folio/printer"
	"github.com/zlnvch/folio/viewport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrViewDenied   = errors.New("view denied")
	ErrPageNotHot   = errors.New("page is not mounted")
	ErrFallbackMode = errors.New("document is shown in fallback mode")
)

type Mode int

const (
	ModeViewer Mode = iota
	// ModeFallback replaces the paged viewer after the document failed to render.
	ModeFallback
)

func (m Mode) String() string {
	if m == ModeFallback {
		return "fallback"
	}
	return "viewer"
}

// Host is the surface a session drives. It scrolls on request and hosts print frames.
type Host interface {
	viewport.Scroller
	printer.Spooler
}

// Session is one viewer of one document.
type Session struct {
	Id         string
	DocumentId string

	svc     *Service
	creds   models.CredentialContext
	logger  *zap.Logger
	printer *printer.Controller

	annotations *annotation.Store

	mu          sync.Mutex
	rights      models.Rights
	mode        Mode
	tracker     *viewport.Tracker
	capture     *ink.Capture
	compositor  *ink.Compositor
	layers      map[int]*ink.Layer
	drawingPage int
}

type sessionPersister struct {
	svc    *Service
	origin string
}

func (p sessionPersister) LoadAnnotations(ctx context.Context, documentId string) (models.PageAnnotations, error) {
	return p.svc.LoadAnnotations(ctx, documentId)
}

func (p sessionPersister) SaveAnnotations(ctx context.Context, documentId string, annotations models.PageAnnotations) error {
	return p.svc.SaveAnnotations(ctx, p.origin, documentId, annotations)
}

// OpenSession checks view rights, then loads page count, last position and ink concurrently.
// A document that fails to render still opens, in fallback mode.
func (s *Service) OpenSession(ctx context.Context, documentId string, creds models.CredentialContext, host Host) (*Session, error) {
	granted := s.ResolveRights(ctx, documentId, creds)
	if !granted.CanView {
		return nil, fmt.Errorf("%w: %s", ErrViewDenied, granted.Reason)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	logger := s.Logger.With(zap.String("sessionId", id.String()), zap.String("documentId", documentId))

	sess := &Session{
		Id:         id.String(),
		DocumentId: documentId,
		svc:        s,
		creds:      creds,
		logger:     logger,
		rights:     granted,
		capture:    ink.NewCapture(),
		compositor: ink.NewCompositor(),
		layers:     make(map[int]*ink.Layer),
	}
	sess.annotations = annotation.NewStore(sessionPersister{svc: s, origin: sess.Id}, logger)
	sess.tracker = viewport.NewTracker(documentId, s, host,
		viewport.WithClock(s.now),
		viewport.WithSuppressWindow(s.ScrollSuppressWindow),
	)
	sess.printer = printer.NewController(s, host, s, logger,
		printer.WithSettleDelay(s.PrintSettleDelay),
	)

	var (
		pageCount int
		pageErr   error
		lastPage  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pageCount, pageErr = s.Pages.PageCount(gctx, documentId)
		return nil
	})
	g.Go(func() error {
		p, err := s.LoadPosition(gctx, documentId)
		if err != nil {
			logger.Warn("could not load last page", zap.Error(err))
			return nil
		}
		lastPage = p
		return nil
	})
	g.Go(func() error {
		if err := sess.annotations.Load(gctx, documentId); err != nil {
			logger.Warn("could not load annotations, starting empty", zap.Error(err))
		}
		return nil
	})
	_ = g.Wait()

	if pageErr != nil {
		sess.RenderFailed(pageErr)
	} else {
		sess.tracker.SetPageCount(pageCount)
	}
	sess.tracker.Restore(lastPage)
	return sess, nil
}

func (s *Session) Rights() models.Rights {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rights
}

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// RenderFailed switches the session to fallback display. It reports true only the first time.
func (s *Session) RenderFailed(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeFallback {
		return false
	}
	s.mode = ModeFallback
	clear(s.layers)
	s.logger.Error("document failed to render, switching to fallback display", zap.Error(err))
	return true
}

func (s *Session) PageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.PageCount()
}

func (s *Session) CurrentPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.CurrentPage()
}

func (s *Session) HotPages() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.HotPages()
}

func (s *Session) Placeholders() []viewport.Placeholder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Placeholders()
}

func (s *Session) SetRenderedWidth(width float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.SetRenderedWidth(width)
}

func (s *Session) RecordHeight(page int, height float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.RecordHeight(page, height)
}

func (s *Session) PagesLaidOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.PagesLaidOut()
	s.evictLayers()
}

func (s *Session) Observe(entries []viewport.Entry) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	page := s.tracker.Observe(entries)
	s.evictLayers()
	return page
}

func (s *Session) Poll(viewTop, viewHeight float64) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	visible := s.tracker.Poll(viewTop, viewHeight)
	s.evictLayers()
	return visible
}

func (s *Session) JumpTo(page int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.tracker.JumpTo(page)
	s.evictLayers()
	return ok
}

// evictLayers drops rasters of pages that are no longer mounted.
func (s *Session) evictLayers() {
	for page := range s.layers {
		if !s.tracker.IsHot(page) {
			delete(s.layers, page)
		}
	}
}

// SetScale re-renders the ink of every hot page before returning.
func (s *Session) SetScale(scale float64) map[int]*image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.SetScale(scale)
	s.capture.SetScale(s.tracker.Scale())

	out := make(map[int]*image.RGBA)
	if s.mode == ModeFallback {
		return out
	}
	for _, page := range s.tracker.HotPages() {
		img, _ := s.renderLayer(page)
		out[page] = img
	}
	return out
}

// InkLayer returns the page's ink raster and whether it changed since the last call.
func (s *Session) InkLayer(page int) (*image.RGBA, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeFallback {
		return nil, false, ErrFallbackMode
	}
	if !s.tracker.IsHot(page) {
		return nil, false, ErrPageNotHot
	}
	img, changed := s.renderLayer(page)
	return img, changed, nil
}

func (s *Session) renderLayer(page int) (*image.RGBA, bool) {
	layer, ok := s.layers[page]
	if !ok {
		layer = ink.NewLayer(s.compositor)
		s.layers[page] = layer
	}
	w, h := s.tracker.PageSize(page)
	return layer.Update(ink.Surface{Width: w, Height: h},
		s.annotations.Strokes(page),
		s.annotations.Version(page),
		s.tracker.Scale(),
	)
}

// PointerDown starts a stroke on a mounted page. p is in device pixels at the current scale.
func (s *Session) PointerDown(page int, tool models.Tool, color string, p models.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeFallback {
		return ErrFallbackMode
	}
	if !s.tracker.IsHot(page) {
		return ErrPageNotHot
	}
	s.capture.SetScale(s.tracker.Scale())
	s.capture.Begin(tool, color, p)
	s.drawingPage = page
	return nil
}

func (s *Session) PointerMove(p models.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capture.Extend(p)
}

// PointerUp commits the stroke if it has enough points. Persistence happens here, never per point.
func (s *Session) PointerUp(ctx context.Context) (int, bool, error) {
	s.mu.Lock()
	stroke, ok := s.capture.End()
	page := s.drawingPage
	s.mu.Unlock()

	if !ok {
		return page, false, nil
	}
	if err := s.annotations.Add(ctx, page, stroke); err != nil {
		return page, false, err
	}
	return page, true, nil
}

func (s *Session) Undo(ctx context.Context, page int) bool {
	_, ok := s.annotations.Undo(ctx, page)
	return ok
}

func (s *Session) Clear(ctx context.Context, page int) int {
	return s.annotations.Clear(ctx, page)
}

func (s *Session) Strokes(page int) []models.Stroke {
	return s.annotations.Strokes(page)
}

// ReloadAnnotations picks up another viewer's save. A failed read keeps the current ink.
func (s *Session) ReloadAnnotations(ctx context.Context) error {
	loaded, err := s.svc.LoadAnnotations(ctx, s.DocumentId)
	if err != nil {
		return err
	}
	s.annotations.Replace(loaded)
	return nil
}

// Print re-resolves rights so allowances consumed since the session opened are honoured.
func (s *Session) Print(ctx context.Context) error {
	current := s.svc.ResolveRights(ctx, s.DocumentId, s.creds)

	s.mu.Lock()
	s.rights = current
	s.mu.Unlock()

	return s.printer.Print(ctx, s.DocumentId, current)
}

func (s *Session) PrintState() printer.State {
	return s.printer.State()
}
