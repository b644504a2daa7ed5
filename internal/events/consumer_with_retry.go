package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

const (
	HeaderMetadata      = "metadata"
	HeaderRetryCount    = "retry_count"
	HeaderOriginalTopic = "original_topic"
)

type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 30 * time.Second}
}

// NotificationHandler delivers one notification. IsRetryable separates
// gateway outages from messages that will never go through.
type NotificationHandler interface {
	HandleNotification(ctx context.Context, n Notification) error
	IsRetryable(err error) bool
}

type ConsumerMetrics struct {
	Processed    int64 `json:"processed"`
	Retried      int64 `json:"retried"`
	DeadLettered int64 `json:"dead_lettered"`
	Succeeded    int64 `json:"succeeded"`
	Failed       int64 `json:"failed"`
}

// MessageMetadata travels with a dead-lettered message.
type MessageMetadata struct {
	RetryCount    int       `json:"retry_count"`
	FirstFailure  time.Time `json:"first_failure"`
	LastFailure   time.Time `json:"last_failure"`
	OriginalTopic string    `json:"original_topic"`
	ErrorMessage  string    `json:"error_message"`
}

// NotificationConsumer drains the notification topic, retrying transient
// delivery failures with exponential backoff and parking the rest on the
// dead letter topic.
type NotificationConsumer struct {
	group    sarama.ConsumerGroup
	producer sarama.SyncProducer
	handler  NotificationHandler
	logger   *logrus.Logger
	topic    string
	dlqTopic string
	policy   RetryPolicy
	now      func() time.Time

	processed, retried, deadLettered, succeeded, failed atomic.Int64
}

func NewNotificationConsumer(brokers []string, groupID, topic, dlqTopic string, handler NotificationHandler, logger *logrus.Logger) (*NotificationConsumer, error) {
	group, err := sarama.NewConsumerGroup(brokers, groupID, NewConsumerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		group.Close()
		return nil, fmt.Errorf("failed to create producer for DLQ: %w", err)
	}
	return NewNotificationConsumerFrom(group, producer, topic, dlqTopic, handler, DefaultRetryPolicy(), logger), nil
}

func NewNotificationConsumerFrom(group sarama.ConsumerGroup, producer sarama.SyncProducer, topic, dlqTopic string, handler NotificationHandler, policy RetryPolicy, logger *logrus.Logger) *NotificationConsumer {
	return &NotificationConsumer{
		group:    group,
		producer: producer,
		handler:  handler,
		logger:   logger,
		topic:    topic,
		dlqTopic: dlqTopic,
		policy:   policy,
		now:      time.Now,
	}
}

func (c *NotificationConsumer) Start(ctx context.Context) error {
	return consumeLoop(ctx, c.group, []string{c.topic}, &claimHandler{
		name:    "notifications",
		logger:  c.logger,
		process: c.process,
	}, c.logger)
}

func (c *NotificationConsumer) Close() error {
	if err := c.producer.Close(); err != nil {
		c.logger.WithError(err).Error("Failed to close producer")
	}
	if c.group == nil {
		return nil
	}
	return c.group.Close()
}

func (c *NotificationConsumer) Metrics() ConsumerMetrics {
	return ConsumerMetrics{
		Processed:    c.processed.Load(),
		Retried:      c.retried.Load(),
		DeadLettered: c.deadLettered.Load(),
		Succeeded:    c.succeeded.Load(),
		Failed:       c.failed.Load(),
	}
}

func (c *NotificationConsumer) process(ctx context.Context, msg *sarama.ConsumerMessage) {
	c.processed.Add(1)
	err := c.handleWithRetry(ctx, msg)
	if err == nil {
		c.succeeded.Add(1)
		return
	}
	if ctx.Err() != nil {
		// shutting down; the uncommitted offset is redelivered on restart
		return
	}

	c.failed.Add(1)
	c.logger.WithError(err).WithField("key", string(msg.Key)).Error("Failed to deliver notification after retries")
	if dlqErr := c.sendToDLQ(msg, err); dlqErr != nil {
		c.logger.WithError(dlqErr).Error("Failed to send message to DLQ")
		return
	}
	c.deadLettered.Add(1)
}

func (c *NotificationConsumer) handleWithRetry(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var n Notification
	if err := json.Unmarshal(msg.Value, &n); err != nil {
		return fmt.Errorf("failed to unmarshal notification: %w", err)
	}

	delay := c.policy.InitialDelay
	var err error
	for attempt := 0; attempt <= c.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(logrus.Fields{
				"notification_id": n.ID,
				"attempt":         attempt,
				"delay":           delay,
			}).Info("Retrying notification delivery")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			c.retried.Add(1)
			delay *= 2
			if delay > c.policy.MaxDelay {
				delay = c.policy.MaxDelay
			}
		}

		if err = c.handler.HandleNotification(ctx, n); err == nil {
			c.logger.WithFields(logrus.Fields{
				"notification_id": n.ID,
				"template":        n.Template,
			}).Info("Notification delivered")
			return nil
		}
		if !c.handler.IsRetryable(err) {
			c.logger.WithError(err).WithField("notification_id", n.ID).Error("Non-retryable error delivering notification")
			return err
		}
		c.logger.WithError(err).WithField("attempt", attempt+1).Warn("Retryable error delivering notification")
	}
	return fmt.Errorf("exhausted retries for notification %s: %w", n.ID, err)
}

func (c *NotificationConsumer) sendToDLQ(msg *sarama.ConsumerMessage, cause error) error {
	meta := metadataOf(msg)
	now := c.now()
	meta.RetryCount++
	if meta.FirstFailure.IsZero() {
		meta.FirstFailure = now
	}
	meta.LastFailure = now
	meta.ErrorMessage = cause.Error()

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	partition, offset, err := c.producer.SendMessage(&sarama.ProducerMessage{
		Topic: c.dlqTopic,
		Key:   sarama.ByteEncoder(msg.Key),
		Value: sarama.ByteEncoder(msg.Value),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderMetadata), Value: metaBytes},
			{Key: []byte(HeaderOriginalTopic), Value: []byte(meta.OriginalTopic)},
			{Key: []byte("original_partition"), Value: []byte(strconv.Itoa(int(msg.Partition)))},
			{Key: []byte("original_offset"), Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send to DLQ: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"dlq_topic":     c.dlqTopic,
		"dlq_partition": partition,
		"dlq_offset":    offset,
		"original_key":  string(msg.Key),
		"retry_count":   meta.RetryCount,
		"error":         cause.Error(),
	}).Warn("Message sent to dead letter queue")
	return nil
}

// metadataOf rebuilds the failure history of a message. Replayed messages
// carry it in their headers; fresh ones start from zero.
func metadataOf(msg *sarama.ConsumerMessage) MessageMetadata {
	meta := MessageMetadata{OriginalTopic: msg.Topic}
	if raw, ok := header(msg, HeaderMetadata); ok {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			meta = MessageMetadata{OriginalTopic: msg.Topic}
		}
	}
	if raw, ok := header(msg, HeaderRetryCount); ok {
		if n, err := strconv.Atoi(raw); err == nil && n > meta.RetryCount {
			meta.RetryCount = n
		}
	}
	if meta.OriginalTopic == "" {
		meta.OriginalTopic = msg.Topic
	}
	return meta
}
