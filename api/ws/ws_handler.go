package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"sort"

	"github.com/gorilla/websocket"
	"github.com/zlnvch/folio/ink"
	"github.com/zlnvch/folio/models"
	"github.com/zlnvch/folio/service"
	"github.com/zlnvch/folio/viewport"
	"go.uber.org/zap"
)

type Handler struct {
	Service *service.Service
	Hub     *Hub
	logger  *zap.Logger
}

func NewHandler(svc *service.Service, hub *Hub, logger *zap.Logger) *Handler {
	return &Handler{
		Service: svc,
		Hub:     hub,
		logger:  logger,
	}
}

func (h *Handler) NewWsUpgrader(requiredOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return requiredOrigin == "" || r.Header.Get("Origin") == requiredOrigin
		},
		Subprotocols: []string{"folio-v1"},
	}
}

// ServeWS upgrades the connection. Credentials arrive with the "open" message.
func (h *Handler) ServeWS(wsUpgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request, shutdownCtx context.Context) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade ws connection", zap.Error(err))
		return
	}

	client := NewClient(h.Hub, conn, h.HandleWsMessage, h.logger)

	go client.ReadPump()
	go client.WritePump(shutdownCtx)
	go client.StatePump(h.reload)
}

// Websocket message structs
type message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type responseMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type openMessage struct {
	DocumentId string `json:"documentId"`
	AccessKey  string `json:"accessKey"`
	Token      string `json:"token"`
}

type pointerMessage struct {
	Page  int         `json:"page"`
	Tool  models.Tool `json:"tool"`
	Color string      `json:"color"`
	X     float64     `json:"x"`
	Y     float64     `json:"y"`
}

type pageMessage struct {
	Page int `json:"page"`
}

type intersectionsMessage struct {
	Entries []viewport.Entry `json:"entries"`
}

type scrollMessage struct {
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
}

type heightsMessage struct {
	Width   float64         `json:"width"`
	Heights map[int]float64 `json:"heights"`
}

type zoomMessage struct {
	Scale float64 `json:"scale"`
}

type renderFailedMessage struct {
	Message string `json:"message"`
}

type errorData struct {
	Message string `json:"message"`
}

type openedData struct {
	SessionId string        `json:"sessionId"`
	Mode      string        `json:"mode"`
	Rights    models.Rights `json:"rights"`
	PageCount int           `json:"pageCount"`
	Viewport  viewportData  `json:"viewport"`
}

type viewportData struct {
	CurrentPage  int                    `json:"currentPage"`
	HotPages     []int                  `json:"hotPages"`
	Placeholders []viewport.Placeholder `json:"placeholders"`
	Visible      []int                  `json:"visible,omitempty"`
}

type strokeData struct {
	Page      int  `json:"page"`
	Committed bool `json:"committed"`
}

type inkLayerData struct {
	Page   int    `json:"page"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	PNG    string `json:"png"`
}

type printResultData struct {
	Ok      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type modeData struct {
	Mode string `json:"mode"`
}

func decode[T any](h *Handler, msg message) (T, bool) {
	var v T
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		h.logger.Debug("invalid message data", zap.String("type", msg.Type), zap.Error(err))
		return v, false
	}
	return v, true
}

func (h *Handler) HandleWsMessage(client *Client, messageType int, messageBytes []byte) {
	var msg message
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		h.logger.Debug("invalid JSON", zap.Error(err))
		return
	}

	if msg.Type == "open" {
		if m, ok := decode[openMessage](h, msg); ok {
			h.handleOpen(client, m)
		}
		return
	}
	if msg.Type == "print_ack" {
		if m, ok := decode[printAck](h, msg); ok {
			client.deliverAck(m)
		}
		return
	}

	sess := client.Session()
	if sess == nil {
		client.sendMessage("error", errorData{Message: "no document open"})
		return
	}

	switch msg.Type {
	case "pointer_down":
		m, ok := decode[pointerMessage](h, msg)
		if !ok {
			return
		}
		if err := sess.PointerDown(m.Page, m.Tool, m.Color, models.Point{X: m.X, Y: m.Y}); err != nil {
			client.sendMessage("error", errorData{Message: err.Error()})
		}

	case "pointer_move":
		if m, ok := decode[pointerMessage](h, msg); ok {
			sess.PointerMove(models.Point{X: m.X, Y: m.Y})
		}

	case "pointer_up":
		page, committed, err := sess.PointerUp(client.ctx)
		if err != nil {
			client.sendMessage("error", errorData{Message: err.Error()})
			return
		}
		client.sendMessage("stroke", strokeData{Page: page, Committed: committed})
		if committed {
			h.sendInkLayer(client, sess, page)
		}

	case "undo":
		if m, ok := decode[pageMessage](h, msg); ok && sess.Undo(client.ctx, m.Page) {
			h.sendInkLayer(client, sess, m.Page)
		}

	case "clear":
		if m, ok := decode[pageMessage](h, msg); ok && sess.Clear(client.ctx, m.Page) > 0 {
			h.sendInkLayer(client, sess, m.Page)
		}

	case "ink":
		if m, ok := decode[pageMessage](h, msg); ok {
			h.sendInkLayer(client, sess, m.Page)
		}

	case "intersections":
		if m, ok := decode[intersectionsMessage](h, msg); ok {
			sess.Observe(m.Entries)
			h.sendViewport(client, sess, nil)
		}

	case "scroll":
		if m, ok := decode[scrollMessage](h, msg); ok {
			visible := sess.Poll(m.Top, m.Height)
			h.sendViewport(client, sess, visible)
		}

	case "heights":
		m, ok := decode[heightsMessage](h, msg)
		if !ok {
			return
		}
		if m.Width > 0 {
			sess.SetRenderedWidth(m.Width)
		}
		for page, height := range m.Heights {
			sess.RecordHeight(page, height)
		}

	case "layout_ready":
		sess.PagesLaidOut()
		h.sendViewport(client, sess, nil)

	case "jump":
		if m, ok := decode[pageMessage](h, msg); ok && sess.JumpTo(m.Page) {
			h.sendViewport(client, sess, nil)
		}

	case "zoom":
		m, ok := decode[zoomMessage](h, msg)
		if !ok {
			return
		}
		layers := sess.SetScale(m.Scale)
		pages := make([]int, 0, len(layers))
		for page := range layers {
			pages = append(pages, page)
		}
		sort.Ints(pages)
		for _, page := range pages {
			h.sendImage(client, page, layers[page])
		}

	case "render_failed":
		m, _ := decode[renderFailedMessage](h, msg)
		if sess.RenderFailed(errors.New(m.Message)) {
			client.sendMessage("mode", modeData{Mode: service.ModeFallback.String()})
		}

	case "print":
		// Print waits for acks that arrive on this read loop.
		go func() {
			err := sess.Print(client.ctx)
			if err != nil {
				client.sendMessage("print_result", printResultData{Ok: false, Message: err.Error()})
				return
			}
			client.sendMessage("print_result", printResultData{Ok: true})
		}()

	default:
		h.logger.Debug("unknown message type", zap.String("type", msg.Type))
	}
}

func (h *Handler) handleOpen(client *Client, m openMessage) {
	if client.Session() != nil {
		client.sendMessage("error", errorData{Message: "a document is already open on this connection"})
		return
	}

	creds, err := h.Service.Credentials(client.ctx, m.AccessKey, m.Token)
	if err != nil {
		client.sendMessage("error", errorData{Message: "invalid token"})
		return
	}

	sess, err := h.Service.OpenSession(client.ctx, m.DocumentId, creds, client)
	if err != nil {
		client.sendMessage("error", errorData{Message: err.Error()})
		return
	}
	if !client.setSession(sess) {
		return
	}
	h.Hub.SubscribeCh <- subscription{client: client, documentId: m.DocumentId}

	client.sendMessage("opened", openedData{
		SessionId: sess.Id,
		Mode:      sess.Mode().String(),
		Rights:    sess.Rights(),
		PageCount: sess.PageCount(),
		Viewport:  h.viewport(sess, nil),
	})
}

func (h *Handler) viewport(sess *service.Session, visible []int) viewportData {
	return viewportData{
		CurrentPage:  sess.CurrentPage(),
		HotPages:     sess.HotPages(),
		Placeholders: sess.Placeholders(),
		Visible:      visible,
	}
}

func (h *Handler) sendViewport(client *Client, sess *service.Session, visible []int) {
	client.sendMessage("viewport", h.viewport(sess, visible))
}

func (h *Handler) sendInkLayer(client *Client, sess *service.Session, page int) {
	img, _, err := sess.InkLayer(page)
	if err != nil {
		return
	}
	h.sendImage(client, page, img)
}

func (h *Handler) sendImage(client *Client, page int, img *image.RGBA) {
	// nothing to draw until the page width is known
	if img == nil || img.Bounds().Empty() {
		return
	}
	data, err := ink.EncodePNG(img)
	if err != nil {
		h.logger.Error("failed to encode ink layer", zap.Int("page", page), zap.Error(err))
		return
	}
	b := img.Bounds()
	client.sendMessage("ink_layer", inkLayerData{
		Page:   page,
		Width:  b.Dx(),
		Height: b.Dy(),
		PNG:    base64.StdEncoding.EncodeToString(data),
	})
}

// reload runs on the client's state pump after another viewer saved.
func (h *Handler) reload(client *Client) {
	sess := client.Session()
	if sess == nil {
		return
	}
	if err := sess.ReloadAnnotations(client.ctx); err != nil {
		h.logger.Warn("failed to reload annotations", zap.String("sessionId", sess.Id), zap.Error(err))
		return
	}
	client.sendMessage("annotations_updated", nil)
	for _, page := range sess.HotPages() {
		h.sendInkLayer(client, sess, page)
	}
}
