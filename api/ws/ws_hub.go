package ws

import (
	"context"
	"encoding/json"

	"github.com/zlnvch/folio/cache"
	"github.com/zlnvch/folio/service"
	"go.uber.org/zap"
)

type subscription struct {
	client     *Client
	documentId string
}

type documentUpdate struct {
	documentId string
	message    service.AnnotationsUpdatedMessage
}

// Hub tracks which connections view which document and relays annotation updates
// published by other viewers, possibly on other instances.
type Hub struct {
	viewerCache                cache.ViewerCache
	logger                     *zap.Logger
	CloseCh                    chan *Client
	SubscribeCh                chan subscription
	updateCh                   chan documentUpdate
	documentToClients          map[string]map[*Client]struct{}
	documentToSubscriberCancel map[string]context.CancelFunc
}

func NewHub(viewerCache cache.ViewerCache, logger *zap.Logger) *Hub {
	return &Hub{
		viewerCache:                viewerCache,
		logger:                     logger,
		CloseCh:                    make(chan *Client, 256),
		SubscribeCh:                make(chan subscription, 256),
		updateCh:                   make(chan documentUpdate, 1024),
		documentToClients:          make(map[string]map[*Client]struct{}),
		documentToSubscriberCancel: make(map[string]context.CancelFunc),
	}
}

func (h *Hub) Run(shutdownCtx context.Context) {
	for {
		select {
		case client := <-h.CloseCh:
			h.remove(client)

		case sub := <-h.SubscribeCh:
			h.add(sub)

		case update := <-h.updateCh:
			for client := range h.documentToClients[update.documentId] {
				if client.sessionId() == update.message.Origin {
					continue
				}
				// one pending reload is enough
				select {
				case client.reloadCh <- struct{}{}:
				default:
				}
			}

		case <-shutdownCtx.Done():
			for documentId, cancel := range h.documentToSubscriberCancel {
				cancel()
				delete(h.documentToSubscriberCancel, documentId)
			}
			return
		}
	}
}

func (h *Hub) add(sub subscription) {
	// The close may already have been handled: CloseCh and SubscribeCh are not ordered.
	if sub.client.ctx.Err() != nil {
		return
	}
	if h.documentToClients[sub.documentId] == nil {
		ctx, cancel := context.WithCancel(context.Background())
		documentId := sub.documentId
		channel := cache.DocumentChannel(documentId)

		err := h.viewerCache.Subscribe(ctx, channel, func(messageBytes []byte) {
			var msg service.AnnotationsUpdatedMessage
			if err := json.Unmarshal(messageBytes, &msg); err != nil {
				h.logger.Warn("ignoring malformed document update", zap.String("channel", channel), zap.Error(err))
				return
			}
			h.updateCh <- documentUpdate{documentId: documentId, message: msg}
		})
		if err != nil {
			cancel()
			h.logger.Error("failed to subscribe to document channel", zap.String("channel", channel), zap.Error(err))
			return
		}

		h.documentToClients[documentId] = make(map[*Client]struct{})
		h.documentToSubscriberCancel[documentId] = cancel
	}
	h.documentToClients[sub.documentId][sub.client] = struct{}{}
	sub.client.documentId = sub.documentId
}

func (h *Hub) remove(client *Client) {
	documentId := client.documentId
	if documentId == "" {
		return
	}
	delete(h.documentToClients[documentId], client)
	if len(h.documentToClients[documentId]) == 0 {
		if cancel, ok := h.documentToSubscriberCancel[documentId]; ok {
			cancel()
			delete(h.documentToSubscriberCancel, documentId)
		}
		delete(h.documentToClients, documentId)
	}
}
