// Package mq carries ingestion tasks over RocketMQ so document processing
// survives server restarts and spreads across replicas.
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/apache/rocketmq-client-go/v2"
	c "github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"github.com/apache/rocketmq-client-go/v2/rlog"
	"github.com/avast/retry-go/v4"

	"mathchat-backend/config"
)

const (
	TopicDocuments = "topic_documents"
	TagIngest      = "tag_ingest"

	consumeGroupDocuments = "cg_documents"

	sendMessageAttempts  = 3
	maxReconsumeTimes    = 5
	consumeGoroutineNums = 10
)

// IngestTask is the wire payload for one document to process.
type IngestTask struct {
	DocumentID int64 `json:"document_id"`
}

// Broker owns the producer and consumer for the ingestion topic.
type Broker struct {
	producer rocketmq.Producer
	consumer rocketmq.PushConsumer
}

func New(cfg config.MQ) (*Broker, error) {
	rlog.SetLogLevel("warn")

	cons, err := rocketmq.NewPushConsumer(
		c.WithNameServer(cfg.NameServer),
		c.WithGroupName(consumeGroupDocuments),
		c.WithConsumerModel(c.Clustering),
		c.WithConsumeFromWhere(c.ConsumeFromLastOffset),
		c.WithMaxReconsumeTimes(maxReconsumeTimes),
		c.WithConsumeGoroutineNums(consumeGoroutineNums),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	prod, err := rocketmq.NewProducer(
		producer.WithNameServer(cfg.NameServer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	return &Broker{producer: prod, consumer: cons}, nil
}

// Start subscribes the handler to the ingestion topic and starts both
// clients. The handler runs once per delivered task; a malformed payload is
// dropped rather than redelivered forever.
func (b *Broker) Start(handler func(documentID int64)) error {
	selector := c.MessageSelector{Type: c.TAG, Expression: TagIngest}

	err := b.consumer.Subscribe(TopicDocuments, selector, func(_ context.Context, messages ...*primitive.MessageExt) (c.ConsumeResult, error) {
		for _, msg := range messages {
			var task IngestTask
			if err := json.Unmarshal(msg.Body, &task); err != nil {
				slog.Error("dropping malformed ingest task",
					"msg_id", msg.MsgId,
					"err", err)
				continue
			}
			handler(task.DocumentID)
		}
		return c.ConsumeSuccess, nil
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", TopicDocuments, err)
	}

	if err := b.producer.Start(); err != nil {
		return fmt.Errorf("failed to start producer: %w", err)
	}
	if err := b.consumer.Start(); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	return nil
}

// PublishIngest enqueues one document for processing, retrying transient
// broker failures with backoff.
func (b *Broker) PublishIngest(ctx context.Context, documentID int64) error {
	payload, err := json.Marshal(IngestTask{DocumentID: documentID})
	if err != nil {
		return fmt.Errorf("failed to marshal ingest task: %w", err)
	}

	msg := primitive.NewMessage(TopicDocuments, payload).WithTag(TagIngest)

	err = retry.Do(
		func() error {
			_, err := b.producer.SendSync(ctx, msg)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(sendMessageAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("retrying ingest task publish",
				"attempt", n+1,
				"document_id", documentID,
				"err", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to publish ingest task for document %d: %w", documentID, err)
	}
	return nil
}

func (b *Broker) Shutdown() {
	if b.producer != nil {
		b.producer.Shutdown()
	}
	if b.consumer != nil {
		b.consumer.Shutdown()
	}
}
