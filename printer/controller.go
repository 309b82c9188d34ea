package printer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/zlnvch/folio/models"
	"go.uber.org/zap"
)

var (
	ErrPrintDenied  = errors.New("print denied")
	ErrPrintBusy    = errors.New("a print is already in progress")
	ErrFetchFailed  = errors.New("failed to fetch document")
	ErrStageFailed  = errors.New("failed to stage document for printing")
	ErrInvokeFailed = errors.New("failed to invoke print")
)

const DefaultSettleDelay = 2 * time.Second

type State int

const (
	StateIdle State = iota
	StateFetching
	StateStaged
	StatePrinting
	StateSettling
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateStaged:
		return "staged"
	case StatePrinting:
		return "printing"
	case StateSettling:
		return "settling"
	default:
		return "idle"
	}
}

// Fetcher retrieves the full document bytes.
type Fetcher interface {
	Fetch(ctx context.Context, documentId string) ([]byte, error)
}

// Frame is an isolated, invisible surface holding one staged document.
type Frame interface {
	// Print invokes the native print dialog. It returns once the dialog was opened.
	Print(ctx context.Context) error
	Remove()
}

type Spooler interface {
	Stage(ctx context.Context, documentId string, data []byte) (Frame, error)
}

type Debiter interface {
	Debit(ctx context.Context, debit models.Debit) error
}

// Controller runs one print at a time through
// Idle -> Fetching -> Staged -> Printing -> Settling -> Idle.
type Controller struct {
	fetcher Fetcher
	spooler Spooler
	debiter Debiter
	logger  *zap.Logger
	settle  time.Duration

	mu      sync.Mutex
	state   State
	onState func(State)
}

type Option func(*Controller)

func WithSettleDelay(d time.Duration) Option {
	return func(c *Controller) { c.settle = d }
}

// WithStateHook is called on every transition, outside the controller's lock.
func WithStateHook(hook func(State)) Option {
	return func(c *Controller) { c.onState = hook }
}

func NewController(fetcher Fetcher, spooler Spooler, debiter Debiter, logger *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		fetcher: fetcher,
		spooler: spooler,
		debiter: debiter,
		logger:  logger,
		settle:  DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) transition(s State) {
	c.mu.Lock()
	c.state = s
	hook := c.onState
	c.mu.Unlock()
	if hook != nil {
		hook(s)
	}
}

// Print runs the secure print sequence. A denial returns before anything is fetched.
// Once native print is invoked exactly one debit is enqueued, even if the user
// then cancels the dialog.
func (c *Controller) Print(ctx context.Context, documentId string, rights models.Rights) error {
	if !rights.CanPrint {
		msg := rights.PrintMessage
		if msg == "" {
			msg = rights.Reason
		}
		return fmt.Errorf("%w: %s", ErrPrintDenied, msg)
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrPrintBusy
	}
	c.state = StateFetching
	hook := c.onState
	c.mu.Unlock()
	if hook != nil {
		hook(StateFetching)
	}
	defer c.transition(StateIdle)

	data, err := c.fetcher.Fetch(ctx, documentId)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty document", ErrFetchFailed)
	}

	frame, err := c.spooler.Stage(ctx, documentId, data)
	if err != nil {
		if frame != nil {
			frame.Remove()
		}
		return fmt.Errorf("%w: %w", ErrStageFailed, err)
	}
	c.transition(StateStaged)

	c.transition(StatePrinting)
	if err := frame.Print(ctx); err != nil {
		c.transition(StateSettling)
		frame.Remove()
		return fmt.Errorf("%w: %w", ErrInvokeFailed, err)
	}

	c.debit(ctx, documentId, rights)

	c.transition(StateSettling)
	c.wait(ctx)
	frame.Remove()
	return nil
}

func (c *Controller) wait(ctx context.Context) {
	if c.settle <= 0 {
		return
	}
	timer := time.NewTimer(c.settle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// debit enqueues the allowance decrement without waiting for it.
func (c *Controller) debit(ctx context.Context, documentId string, rights models.Rights) {
	if rights.Source != models.PrintSourceAccessKey && rights.Source != models.PrintSourceProfileLimit {
		return
	}

	jobId, err := uuid.NewV7()
	if err != nil {
		c.logger.Error("failed to generate print job id", zap.Error(err))
		return
	}
	d := models.Debit{
		JobId:       jobId.String(),
		Source:      rights.Source,
		DocumentId:  documentId,
		AccessKeyId: rights.AccessKeyId,
		ProfileId:   rights.ProfileId,
	}

	debitCtx := context.WithoutCancel(ctx)
	go func() {
		if err := c.debiter.Debit(debitCtx, d); err != nil {
			c.logger.Error("failed to enqueue print debit",
				zap.String("jobId", d.JobId),
				zap.String("documentId", documentId),
				zap.Stringer("source", d.Source),
				zap.Error(err),
			)
		}
	}()
}
