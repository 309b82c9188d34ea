package mq

import "context"

// MessageQueue carries print debits from the viewer to the debit consumer.
type MessageQueue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, visibilityTimeout int32) (*Message, error)
	Delete(ctx context.Context, msg *Message) error
}

type Message struct {
	// Id is the receipt handle; it changes on every delivery.
	Id   string
	Body string
	// ReceiveCount is how many times the broker has delivered this message.
	ReceiveCount int
}
