package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/zlnvch/folio/printer"
)

const printAckTimeout = 30 * time.Second

var errConnectionClosed = errors.New("viewer connection closed")

type printAck struct {
	FrameId string `json:"frameId"`
	// Status is "staged", "invoked" or "error".
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type scrollToData struct {
	Page int `json:"page"`
}

type printStageData struct {
	FrameId    string `json:"frameId"`
	DocumentId string `json:"documentId"`
	Document   []byte `json:"document"`
}

type frameData struct {
	FrameId string `json:"frameId"`
}

func (c *Client) sendMessage(msgType string, data any) {
	msgBytes, err := json.Marshal(responseMessage{Type: msgType, Data: data})
	if err != nil {
		return
	}
	c.send(msgBytes)
}

// ScrollTo asks the page to scroll a page into view.
func (c *Client) ScrollTo(page int) {
	c.sendMessage("scroll_to", scrollToData{Page: page})
}

// Stage ships the document to the page, which loads it into a hidden frame.
func (c *Client) Stage(ctx context.Context, documentId string, data []byte) (printer.Frame, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	f := &frame{client: c, id: id.String()}

	ack, err := c.request(ctx, f.id, "print_stage", printStageData{FrameId: f.id, DocumentId: documentId, Document: data})
	if err != nil {
		return f, err
	}
	if ack.Status != "staged" {
		return f, fmt.Errorf("host failed to stage frame: %s", ack.Message)
	}
	return f, nil
}

// request sends a frame command and waits for the page's acknowledgement.
func (c *Client) request(ctx context.Context, frameId, msgType string, data any) (printAck, error) {
	ch := make(chan printAck, 1)
	c.mu.Lock()
	c.acks[frameId] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.acks, frameId)
		c.mu.Unlock()
	}()

	c.sendMessage(msgType, data)

	timer := time.NewTimer(printAckTimeout)
	defer timer.Stop()
	select {
	case ack := <-ch:
		return ack, nil
	case <-ctx.Done():
		return printAck{}, ctx.Err()
	case <-c.ctx.Done():
		return printAck{}, errConnectionClosed
	case <-timer.C:
		return printAck{}, fmt.Errorf("no %s acknowledgement within %s", msgType, printAckTimeout)
	}
}

func (c *Client) deliverAck(ack printAck) {
	c.mu.Lock()
	ch, ok := c.acks[ack.FrameId]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- ack:
	default:
	}
}

type frame struct {
	client *Client
	id     string
}

func (f *frame) Print(ctx context.Context) error {
	ack, err := f.client.request(ctx, f.id, "print_invoke", frameData{FrameId: f.id})
	if err != nil {
		return err
	}
	if ack.Status != "invoked" {
		return fmt.Errorf("host failed to open print dialog: %s", ack.Message)
	}
	return nil
}

func (f *frame) Remove() {
	f.client.sendMessage("print_remove", frameData{FrameId: f.id})
}
