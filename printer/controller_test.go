package printer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/folio/models"
	"github.com/zlnvch/folio/printer"
	"go.uber.org/zap"
)

type MockFetcher struct{ mock.Mock }

func (m *MockFetcher) Fetch(ctx context.Context, documentId string) ([]byte, error) {
	args := m.Called(ctx, documentId)
	if v := args.Get(0); v != nil {
		return v.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockFrame struct{ mock.Mock }

func (m *MockFrame) Print(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockFrame) Remove() {
	m.Called()
}

type MockSpooler struct{ mock.Mock }

func (m *MockSpooler) Stage(ctx context.Context, documentId string, data []byte) (printer.Frame, error) {
	args := m.Called(ctx, documentId, data)
	if v := args.Get(0); v != nil {
		return v.(printer.Frame), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockDebiter struct{ mock.Mock }

func (m *MockDebiter) Debit(ctx context.Context, debit models.Debit) error {
	return m.Called(ctx, debit).Error(0)
}

func wrapMockWithSignal(call *mock.Call) chan struct{} {
	done := make(chan struct{})
	var once sync.Once
	call.Run(func(args mock.Arguments) {
		once.Do(func() { close(done) })
	})
	return done
}

type fixture struct {
	controller *printer.Controller
	fetcher    *MockFetcher
	spooler    *MockSpooler
	debiter    *MockDebiter
	frame      *MockFrame
	states     *[]printer.State
}

func setup(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		fetcher: new(MockFetcher),
		spooler: new(MockSpooler),
		debiter: new(MockDebiter),
		frame:   new(MockFrame),
		states:  &[]printer.State{},
	}
	var mu sync.Mutex
	f.controller = printer.NewController(f.fetcher, f.spooler, f.debiter, zap.NewNop(),
		printer.WithSettleDelay(0),
		printer.WithStateHook(func(s printer.State) {
			mu.Lock()
			defer mu.Unlock()
			*f.states = append(*f.states, s)
		}),
	)
	return f
}

var keyRights = models.Rights{
	CanView:         true,
	CanPrint:        true,
	RemainingPrints: 1,
	Source:          models.PrintSourceAccessKey,
	AccessKeyId:     "key1",
}

func TestPrint_DeniedDoesNothing(t *testing.T) {
	f := setup(t)

	err := f.controller.Print(context.Background(), "doc1", models.Rights{
		CanView:      true,
		PrintMessage: "limit exhausted",
	})

	require.ErrorIs(t, err, printer.ErrPrintDenied)
	assert.Contains(t, err.Error(), "limit exhausted")
	f.fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
	f.spooler.AssertNotCalled(t, "Stage", mock.Anything, mock.Anything, mock.Anything)
	f.debiter.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything)
	assert.Empty(t, *f.states)
	assert.Equal(t, printer.StateIdle, f.controller.State())
}

func TestPrint_FetchFailureNoFrameNoDebit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.fetcher.On("Fetch", ctx, "doc1").Return(nil, errors.New("minio unavailable"))

	err := f.controller.Print(ctx, "doc1", keyRights)

	require.ErrorIs(t, err, printer.ErrFetchFailed)
	f.spooler.AssertNotCalled(t, "Stage", mock.Anything, mock.Anything, mock.Anything)
	f.debiter.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything)
	assert.Equal(t, []printer.State{printer.StateFetching, printer.StateIdle}, *f.states)
}

func TestPrint_Success_ExactlyOneDebit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	data := []byte("%PDF-1.7")

	f.fetcher.On("Fetch", ctx, "doc1").Return(data, nil)
	f.spooler.On("Stage", ctx, "doc1", data).Return(f.frame, nil)
	f.frame.On("Print", ctx).Return(nil)
	f.frame.On("Remove").Return()

	var got models.Debit
	debitDone := make(chan struct{})
	f.debiter.On("Debit", mock.Anything, mock.AnythingOfType("models.Debit")).
		Run(func(args mock.Arguments) {
			got = args.Get(1).(models.Debit)
			close(debitDone)
		}).
		Return(nil)

	require.NoError(t, f.controller.Print(ctx, "doc1", keyRights))

	select {
	case <-debitDone:
	case <-time.After(time.Second):
		assert.Fail(t, "timed out waiting for Debit")
	}

	f.debiter.AssertNumberOfCalls(t, "Debit", 1)
	f.frame.AssertNumberOfCalls(t, "Remove", 1)
	assert.Equal(t, models.PrintSourceAccessKey, got.Source)
	assert.Equal(t, "key1", got.AccessKeyId)
	assert.Equal(t, "doc1", got.DocumentId)
	assert.NotEmpty(t, got.JobId)
	assert.Equal(t, []printer.State{
		printer.StateFetching,
		printer.StateStaged,
		printer.StatePrinting,
		printer.StateSettling,
		printer.StateIdle,
	}, *f.states)
}

func TestPrint_GlobalFlagNotDebited(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	data := []byte("%PDF")

	f.fetcher.On("Fetch", ctx, "doc1").Return(data, nil)
	f.spooler.On("Stage", ctx, "doc1", data).Return(f.frame, nil)
	f.frame.On("Print", ctx).Return(nil)
	f.frame.On("Remove").Return()

	err := f.controller.Print(ctx, "doc1", models.Rights{
		CanView:         true,
		CanPrint:        true,
		RemainingPrints: models.Unlimited,
		Source:          models.PrintSourceProfileGlobal,
		ProfileId:       "prof1",
	})

	require.NoError(t, err)
	f.debiter.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything)
	f.frame.AssertNumberOfCalls(t, "Remove", 1)
}

func TestPrint_InvokeFailureRemovesFrameWithoutDebit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	data := []byte("%PDF")

	f.fetcher.On("Fetch", ctx, "doc1").Return(data, nil)
	f.spooler.On("Stage", ctx, "doc1", data).Return(f.frame, nil)
	f.frame.On("Print", ctx).Return(errors.New("frame failed to load"))
	f.frame.On("Remove").Return()

	err := f.controller.Print(ctx, "doc1", keyRights)

	require.ErrorIs(t, err, printer.ErrInvokeFailed)
	f.frame.AssertNumberOfCalls(t, "Remove", 1)
	f.debiter.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything)
	assert.Equal(t, printer.StateIdle, f.controller.State())
}

func TestPrint_StageFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	data := []byte("%PDF")

	f.fetcher.On("Fetch", ctx, "doc1").Return(data, nil)
	f.spooler.On("Stage", ctx, "doc1", data).Return(nil, errors.New("host disconnected"))

	err := f.controller.Print(ctx, "doc1", keyRights)

	require.ErrorIs(t, err, printer.ErrStageFailed)
	f.debiter.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything)
}

func TestPrint_DebitErrorIsNotReturned(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	data := []byte("%PDF")

	f.fetcher.On("Fetch", ctx, "doc1").Return(data, nil)
	f.spooler.On("Stage", ctx, "doc1", data).Return(f.frame, nil)
	f.frame.On("Print", ctx).Return(nil)
	f.frame.On("Remove").Return()
	debitDone := wrapMockWithSignal(f.debiter.On("Debit", mock.Anything, mock.Anything).Return(errors.New("sqs down")))

	require.NoError(t, f.controller.Print(ctx, "doc1", keyRights))

	select {
	case <-debitDone:
	case <-time.After(time.Second):
		assert.Fail(t, "timed out waiting for Debit")
	}
}

func TestPrint_BusyWhileInProgress(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	data := []byte("%PDF")

	release := make(chan struct{})
	fetching := make(chan struct{})
	f.fetcher.On("Fetch", ctx, "doc1").Run(func(args mock.Arguments) {
		close(fetching)
		<-release
	}).Return(data, nil)
	f.spooler.On("Stage", ctx, "doc1", data).Return(f.frame, nil)
	f.frame.On("Print", ctx).Return(nil)
	f.frame.On("Remove").Return()
	f.debiter.On("Debit", mock.Anything, mock.Anything).Return(nil)

	errCh := make(chan error, 1)
	go func() { errCh <- f.controller.Print(ctx, "doc1", keyRights) }()

	<-fetching
	assert.Equal(t, printer.StateFetching, f.controller.State())
	assert.ErrorIs(t, f.controller.Print(ctx, "doc1", keyRights), printer.ErrPrintBusy)

	close(release)
	require.NoError(t, <-errCh)
	assert.Equal(t, printer.StateIdle, f.controller.State())
}
