package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zlnvch/folio/service"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024 * 64

	// Pointer moves arrive at display refresh rate.
	messagesPerSecond = 120
	burstLimit        = 240
)

type MessageHandler func(client *Client, messageType int, messageBytes []byte)

func NewClient(hub *Hub, conn *websocket.Conn, handler MessageHandler, logger *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:      hub,
		conn:     conn,
		handler:  handler,
		logger:   logger,
		Send:     make(chan []byte, 256),
		reloadCh: make(chan struct{}, 1),
		acks:     make(map[string]chan printAck),
		ctx:      ctx,
		cancel:   cancel,
		limiter:  rate.NewLimiter(rate.Limit(messagesPerSecond), burstLimit),
	}
}

// Client is a middleman between the websocket connection, the hub and one viewer session.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	handler  MessageHandler
	logger   *zap.Logger
	Send     chan []byte // Buffered channel of outbound messages.
	reloadCh chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	limiter  *rate.Limiter

	// owned by the hub goroutine
	documentId string

	mu      sync.Mutex
	session *service.Session
	acks    map[string]chan printAck
}

func (c *Client) Session() *service.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) setSession(s *service.Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return false
	}
	c.session = s
	return true
}

func (c *Client) sessionId() string {
	if s := c.Session(); s != nil {
		return s.Id
	}
	return ""
}

// send queues a message without blocking a slow peer's producers forever.
func (c *Client) send(message []byte) {
	select {
	case c.Send <- message:
	case <-c.ctx.Done():
	}
}

func (c *Client) ReadPump() {
	defer func() {
		// cancel before the hub sees the close so a late subscribe is dropped
		c.cancel()
		c.hub.CloseCh <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		messageType, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("ws close error", zap.Error(err))
			}
			break
		}

		if !c.limiter.Allow() {
			c.logger.Warn("closing connection: message rate limit exceeded", zap.String("sessionId", c.sessionId()))
			break
		}

		c.handler(c, messageType, messageBytes)
	}
}

func (c *Client) WritePump(shutdownCtx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.cancel()
	}()
	for {
		select {
		case message := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("ws send error", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return

		case <-shutdownCtx.Done():
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Viewer service shutting down"),
			)
			return
		}
	}
}

// StatePump applies annotation updates from other viewers off the read path.
func (c *Client) StatePump(reload func(c *Client)) {
	for {
		select {
		case <-c.reloadCh:
			reload(c)
		case <-c.ctx.Done():
			return
		}
	}
}
