package ws

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	cachemocks "github.com/zlnvch/folio/cache/mocks"
	"go.uber.org/zap"
)

// runHub runs the hub until stop is called, which waits for Run to return.
func runHub(h *Hub) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestHub_SubscribeAfterDisconnectIsDropped(t *testing.T) {
	c := new(cachemocks.MockCache)
	h := NewHub(c, zap.NewNop())
	client := NewClient(h, nil, nil, zap.NewNop())

	// The viewer opened D1 and disconnected before the hub got to either message.
	client.cancel()
	h.SubscribeCh <- subscription{client: client, documentId: "D1"}
	h.CloseCh <- client

	stop := runHub(h)
	require.Eventually(t, func() bool {
		return len(h.SubscribeCh) == 0 && len(h.CloseCh) == 0
	}, time.Second, 5*time.Millisecond)
	stop()

	assert.Empty(t, h.documentToClients)
	assert.Empty(t, h.documentToSubscriberCancel)
	c.AssertNotCalled(t, "Subscribe", mock.Anything, mock.Anything, mock.Anything)
}

func TestHub_LastCloseCancelsSubscription(t *testing.T) {
	c := new(cachemocks.MockCache)
	h := NewHub(c, zap.NewNop())
	client := NewClient(h, nil, nil, zap.NewNop())

	subCtxCh := make(chan context.Context, 1)
	c.On("Subscribe", mock.Anything, "doc:D1", mock.Anything).Run(func(args mock.Arguments) {
		subCtxCh <- args.Get(0).(context.Context)
	}).Return(nil).Once()

	stop := runHub(h)
	h.SubscribeCh <- subscription{client: client, documentId: "D1"}

	var subCtx context.Context
	select {
	case subCtx = <-subCtxCh:
	case <-time.After(time.Second):
		require.FailNow(t, "timed out waiting for Subscribe")
	}

	client.cancel()
	h.CloseCh <- client

	select {
	case <-subCtx.Done():
	case <-time.After(time.Second):
		require.FailNow(t, "subscription was not cancelled")
	}
	stop()

	assert.Empty(t, h.documentToClients)
	assert.Empty(t, h.documentToSubscriberCancel)
}
