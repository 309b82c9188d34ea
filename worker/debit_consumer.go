package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/zlnvch/folio/models"
	"github.com/zlnvch/folio/mq"
	"github.com/zlnvch/folio/store"
	"go.uber.org/zap"
)

// A debit is a single short transaction.
const visibilityTimeout = 30

// DebitConsumer applies queued print debits against the grant store.
type DebitConsumer struct {
	debitQueue mq.MessageQueue
	grantStore store.GrantStore
	logger     *zap.Logger
}

func NewDebitConsumer(debitQueue mq.MessageQueue, grantStore store.GrantStore, logger *zap.Logger) *DebitConsumer {
	return &DebitConsumer{
		debitQueue: debitQueue,
		grantStore: grantStore,
		logger:     logger,
	}
}

func (c *DebitConsumer) Run(shutdownCtx context.Context) {
	for {
		msg, err := c.debitQueue.Receive(shutdownCtx, visibilityTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			c.logger.Error("debit queue receive error", zap.Error(err))
			continue
		}
		if msg == nil {
			continue
		}

		if c.handle(msg) {
			if err := c.debitQueue.Delete(context.Background(), msg); err != nil {
				c.logger.Error("debit queue delete error", zap.Error(err))
			}
		}
	}
}

// handle reports whether the message is finished and can be deleted.
func (c *DebitConsumer) handle(msg *mq.Message) bool {
	var debit models.Debit
	if err := json.Unmarshal([]byte(msg.Body), &debit); err != nil || debit.JobId == "" {
		c.logger.Error("dropping malformed debit", zap.String("body", msg.Body), zap.Error(err))
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(visibilityTimeout-1)*time.Second)
	defer cancel()

	err := c.grantStore.ApplyDebit(ctx, debit)
	switch {
	case err == nil:
		return true
	case errors.Is(err, store.ErrAlreadyApplied):
		c.logger.Info("debit redelivered", zap.String("jobId", debit.JobId))
		return true
	case errors.Is(err, store.ErrConditionFailed):
		c.logger.Warn("print allowance already used up",
			zap.String("jobId", debit.JobId),
			zap.String("documentId", debit.DocumentId),
			zap.Stringer("source", debit.Source),
		)
		return true
	default:
		c.logger.Error("failed to apply debit",
			zap.String("jobId", debit.JobId),
			zap.Int("receiveCount", msg.ReceiveCount),
			zap.Error(err),
		)
		return false
	}
}
