package viewport

import (
	"sort"
	"time"
)

const (
	hotRadius = 2
	// ISO 216 aspect ratio, used until a page reports its real height
	pageAspect = 1.414

	visibleThreshold = 0.10
	// fraction of the viewport trimmed from each edge before testing visibility
	shrinkMargin = 0.10

	DefaultSuppressWindow = 1500 * time.Millisecond
)

// PositionSink receives the current page whenever it changes outside a suppression window.
type PositionSink interface {
	SavePosition(documentId string, page int)
}

// Scroller asks the host to bring a page into view.
type Scroller interface {
	ScrollTo(page int)
}

// Entry is one page element's intersection with the (shrunk) viewport.
type Entry struct {
	Page  int     `json:"page"`
	Ratio float64 `json:"ratio"`
}

type Placeholder struct {
	Page   int     `json:"page"`
	Height float64 `json:"height"`
}

// Tracker follows the visible page of one document and decides which pages are mounted.
// It is not safe for concurrent use; the owning session serialises calls.
type Tracker struct {
	documentId string
	sink       PositionSink
	scroller   Scroller
	now        func() time.Time
	suppress   time.Duration

	pageCount int
	scale     float64
	// widths and heights are stored at scale 1
	baseWidth float64
	heights   map[int]float64

	current       int
	suppressUntil time.Time
	// set when the current page changed inside a suppression window
	unsaved bool

	visible map[int]bool
	lastTop float64

	pendingRestore int
	laidOut        bool
	restored       bool
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func WithSuppressWindow(d time.Duration) Option {
	return func(t *Tracker) { t.suppress = d }
}

func NewTracker(documentId string, sink PositionSink, scroller Scroller, opts ...Option) *Tracker {
	t := &Tracker{
		documentId: documentId,
		sink:       sink,
		scroller:   scroller,
		now:        time.Now,
		suppress:   DefaultSuppressWindow,
		scale:      1,
		heights:    make(map[int]float64),
		current:    1,
		visible:    make(map[int]bool),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) CurrentPage() int {
	return t.current
}

func (t *Tracker) PageCount() int {
	return t.pageCount
}

// SetPageCount records the count once the renderer has parsed the document.
func (t *Tracker) SetPageCount(n int) {
	if n < 0 {
		n = 0
	}
	t.pageCount = n
	if n > 0 && t.current > n {
		t.current = n
	}
	t.tryRestore()
}

func (t *Tracker) Scale() float64 {
	return t.scale
}

// SetScale changes the zoom. Recorded heights are kept unscaled, so placeholders follow the new scale.
func (t *Tracker) SetScale(scale float64) {
	if scale <= 0 {
		return
	}
	t.scale = scale
}

// SetRenderedWidth takes the page width at the current scale.
func (t *Tracker) SetRenderedWidth(width float64) {
	if width <= 0 {
		return
	}
	t.baseWidth = width / t.scale
}

func (t *Tracker) EstimatedHeight() float64 {
	return t.baseWidth * t.scale * pageAspect
}

// RecordHeight takes a measured height at the current scale.
func (t *Tracker) RecordHeight(page int, height float64) {
	if page < 1 || height <= 0 {
		return
	}
	t.heights[page] = height / t.scale
}

// PageHeight is the last known height of the page, or the estimate.
func (t *Tracker) PageHeight(page int) float64 {
	if h, ok := t.heights[page]; ok {
		return h * t.scale
	}
	return t.EstimatedHeight()
}

// PageSize is the unscaled size of a page, the space ink coordinates live in.
func (t *Tracker) PageSize(page int) (float64, float64) {
	h, ok := t.heights[page]
	if !ok {
		h = t.baseWidth * pageAspect
	}
	return t.baseWidth, h
}

func (t *Tracker) validPage(page int) bool {
	if page < 1 {
		return false
	}
	return t.pageCount == 0 || page <= t.pageCount
}

func (t *Tracker) IsHot(page int) bool {
	if !t.validPage(page) {
		return false
	}
	d := page - t.current
	return d >= -hotRadius && d <= hotRadius
}

func (t *Tracker) HotPages() []int {
	pages := make([]int, 0, 2*hotRadius+1)
	for p := t.current - hotRadius; p <= t.current+hotRadius; p++ {
		if t.validPage(p) {
			pages = append(pages, p)
		}
	}
	return pages
}

// Placeholders lists every page that is not mounted with the height it should reserve.
func (t *Tracker) Placeholders() []Placeholder {
	out := make([]Placeholder, 0, t.pageCount)
	for p := 1; p <= t.pageCount; p++ {
		if t.IsHot(p) {
			continue
		}
		out = append(out, Placeholder{Page: p, Height: t.PageHeight(p)})
	}
	return out
}

// Observe applies a batch of intersection entries in delivery order.
// The last entry at or above the threshold wins. A page reached during a suppression
// window is persisted by the first Observe after the window closes.
func (t *Tracker) Observe(entries []Entry) int {
	candidate := 0
	for _, e := range entries {
		if e.Ratio >= visibleThreshold && t.validPage(e.Page) {
			candidate = e.Page
		}
	}
	if candidate != 0 {
		t.setCurrent(candidate)
	}
	if t.unsaved && !t.Suppressed() {
		t.persist()
	}
	return t.current
}

// Poll computes intersections from the laid-out page stack for a viewport at viewTop.
// Pages that newly cross the threshold are fed to Observe in scroll order, so the page
// crossed last in the scroll direction wins. It returns the pages currently intersecting.
func (t *Tracker) Poll(viewTop, viewHeight float64) []int {
	if t.pageCount == 0 || viewHeight <= 0 {
		return nil
	}
	margin := viewHeight * shrinkMargin
	top, bottom := viewTop+margin, viewTop+viewHeight-margin

	now := make(map[int]bool)
	var crossed []Entry
	offset := 0.0
	for p := 1; p <= t.pageCount && offset < bottom; p++ {
		h := t.PageHeight(p)
		start, end := offset, offset+h
		offset = end
		if h <= 0 || end <= top {
			continue
		}
		ratio := (min(end, bottom) - max(start, top)) / h
		if ratio < visibleThreshold {
			continue
		}
		now[p] = true
		if !t.visible[p] {
			crossed = append(crossed, Entry{Page: p, Ratio: ratio})
		}
	}

	if viewTop < t.lastTop {
		sort.Slice(crossed, func(i, j int) bool { return crossed[i].Page > crossed[j].Page })
	}
	t.lastTop = viewTop
	t.visible = now
	t.Observe(crossed)

	pages := make([]int, 0, len(now))
	for p := range now {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// JumpTo scrolls to a page on the user's behalf and persists it. Detection keeps running
// during the suppression window but transient pages are not persisted.
func (t *Tracker) JumpTo(page int) bool {
	if !t.validPage(page) {
		return false
	}
	t.setCurrent(page)
	t.programmaticScroll(page)
	return true
}

// Restore schedules a scroll to the persisted last page. It runs once, after the host
// reports that pages are laid out and the page count is known.
func (t *Tracker) Restore(lastPage int) {
	if t.restored || lastPage < 1 {
		return
	}
	t.pendingRestore = lastPage
	t.tryRestore()
}

func (t *Tracker) PagesLaidOut() {
	t.laidOut = true
	t.tryRestore()
}

func (t *Tracker) tryRestore() {
	if t.restored || t.pendingRestore == 0 || !t.laidOut || t.pageCount == 0 {
		return
	}
	page := t.pendingRestore
	t.pendingRestore = 0
	t.restored = true
	if page > t.pageCount {
		return
	}
	t.current = page
	t.programmaticScroll(page)
}

func (t *Tracker) programmaticScroll(page int) {
	t.suppressUntil = t.now().Add(t.suppress)
	if t.scroller != nil {
		t.scroller.ScrollTo(page)
	}
}

func (t *Tracker) Suppressed() bool {
	return t.now().Before(t.suppressUntil)
}

func (t *Tracker) setCurrent(page int) {
	if page == t.current {
		return
	}
	t.current = page
	if t.Suppressed() {
		t.unsaved = true
		return
	}
	t.persist()
}

func (t *Tracker) persist() {
	t.unsaved = false
	if t.sink != nil {
		t.sink.SavePosition(t.documentId, t.current)
	}
}
