package sqsmq

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/zlnvch/folio/mq"
)

type SQSMessageQueue struct {
	client   *sqs.Client
	queueURL string
	groupId  string
}

// NewSQSMessageQueue resolves queueName to its URL. FIFO queues get every debit in one
// message group and deduplicate on the job id carried by the caller.
func NewSQSMessageQueue(ctx context.Context, devMode bool, sqsEndpoint string, queueName string) (*SQSMessageQueue, error) {
	client, err := newSQSClient(ctx, devMode, sqsEndpoint)
	if err != nil {
		return nil, err
	}

	queues, err := getQueues(ctx, client)
	if err != nil {
		return nil, err
	}

	var queueURL string
	for _, q := range queues {
		if strings.HasSuffix(q, "/"+queueName) {
			queueURL = q
			break
		}
	}
	if queueURL == "" {
		return nil, fmt.Errorf("given queue name '%s' not found in SQS", queueName)
	}

	s := &SQSMessageQueue{client: client, queueURL: queueURL}
	if strings.HasSuffix(queueName, ".fifo") {
		s.groupId = "print-debits"
	}
	return s, nil
}

func (s *SQSMessageQueue) Send(ctx context.Context, body string) error {
	return sendMessage(ctx, s, body)
}

func (s *SQSMessageQueue) Receive(ctx context.Context, visibilityTimeout int32) (*mq.Message, error) {
	return receiveMessage(ctx, s, visibilityTimeout)
}

func (s *SQSMessageQueue) Delete(ctx context.Context, msg *mq.Message) error {
	return deleteMessage(ctx, s, msg)
}
