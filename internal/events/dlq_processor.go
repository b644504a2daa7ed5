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

// DefaultMaxReplays bounds how often one notification may travel from the
// dead letter topic back to the live one.
const DefaultMaxReplays = 6

type DLQStats struct {
	Topic     string    `json:"dlq_topic"`
	Inspected int64     `json:"inspected"`
	Replayed  int64     `json:"replayed"`
	Dropped   int64     `json:"dropped"`
	Timestamp time.Time `json:"timestamp"`
}

// DLQProcessor watches the dead letter topic. With replay off it only
// logs what landed there; with replay on it sends each message back to
// its original topic until MaxReplays is reached.
type DLQProcessor struct {
	group       sarama.ConsumerGroup
	producer    sarama.SyncProducer
	logger      *logrus.Logger
	dlqTopic    string
	replayTopic string
	replay      bool
	MaxReplays  int
	ReplayDelay time.Duration

	inspected, replayed, dropped atomic.Int64
}

func NewDLQProcessor(brokers []string, groupID, dlqTopic, replayTopic string, replay bool, logger *logrus.Logger) (*DLQProcessor, error) {
	group, err := sarama.NewConsumerGroup(brokers, groupID, NewConsumerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create DLQ consumer: %w", err)
	}
	var producer sarama.SyncProducer
	if replay {
		if producer, err = sarama.NewSyncProducer(brokers, NewProducerConfig()); err != nil {
			group.Close()
			return nil, fmt.Errorf("failed to create producer: %w", err)
		}
	}
	return NewDLQProcessorFrom(group, producer, dlqTopic, replayTopic, replay, logger), nil
}

func NewDLQProcessorFrom(group sarama.ConsumerGroup, producer sarama.SyncProducer, dlqTopic, replayTopic string, replay bool, logger *logrus.Logger) *DLQProcessor {
	return &DLQProcessor{
		group:       group,
		producer:    producer,
		logger:      logger,
		dlqTopic:    dlqTopic,
		replayTopic: replayTopic,
		replay:      replay && producer != nil,
		MaxReplays:  DefaultMaxReplays,
		ReplayDelay: 30 * time.Second,
	}
}

func (p *DLQProcessor) Run(ctx context.Context) error {
	return consumeLoop(ctx, p.group, []string{p.dlqTopic}, &claimHandler{
		name:    "dlq",
		logger:  p.logger,
		process: p.handle,
	}, p.logger)
}

func (p *DLQProcessor) handle(ctx context.Context, msg *sarama.ConsumerMessage) {
	p.inspected.Add(1)
	meta := metadataOf(msg)

	var n Notification
	_ = json.Unmarshal(msg.Value, &n)
	p.logger.WithFields(logrus.Fields{
		"partition":       msg.Partition,
		"offset":          msg.Offset,
		"key":             string(msg.Key),
		"original_topic":  meta.OriginalTopic,
		"retry_count":     meta.RetryCount,
		"first_failure":   meta.FirstFailure,
		"last_failure":    meta.LastFailure,
		"error_message":   meta.ErrorMessage,
		"notification_id": n.ID,
		"template":        n.Template,
	}).Warn("DLQ message detected")

	if !p.replay {
		return
	}
	if p.ReplayDelay > 0 {
		select {
		case <-time.After(p.ReplayDelay):
		case <-ctx.Done():
			return
		}
	}
	if err := p.Replay(msg); err != nil {
		p.logger.WithError(err).Error("Failed to replay DLQ message")
	}
}

// Replay sends a dead-lettered message back to the live topic with its
// failure history attached.
func (p *DLQProcessor) Replay(msg *sarama.ConsumerMessage) error {
	meta := metadataOf(msg)
	if meta.RetryCount >= p.MaxReplays {
		p.dropped.Add(1)
		p.logger.WithFields(logrus.Fields{
			"key":         string(msg.Key),
			"retry_count": meta.RetryCount,
		}).Error("Message exceeded maximum replay attempts")
		return fmt.Errorf("message %s exceeded %d replay attempts", msg.Key, p.MaxReplays)
	}

	topic := p.replayTopic
	if topic == "" {
		topic = meta.OriginalTopic
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.ByteEncoder(msg.Key),
		Value: sarama.ByteEncoder(msg.Value),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderMetadata), Value: metaBytes},
			{Key: []byte(HeaderRetryCount), Value: []byte(strconv.Itoa(meta.RetryCount))},
			{Key: []byte("replayed_from_dlq"), Value: []byte("true")},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to replay message: %w", err)
	}
	p.replayed.Add(1)

	p.logger.WithFields(logrus.Fields{
		"replay_topic":     topic,
		"replay_partition": partition,
		"replay_offset":    offset,
		"key":              string(msg.Key),
	}).Info("Message replayed from DLQ")
	return nil
}

func (p *DLQProcessor) Stats() DLQStats {
	return DLQStats{
		Topic:     p.dlqTopic,
		Inspected: p.inspected.Load(),
		Replayed:  p.replayed.Load(),
		Dropped:   p.dropped.Load(),
		Timestamp: time.Now(),
	}
}

func (p *DLQProcessor) Close() error {
	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			p.logger.WithError(err).Error("Failed to close producer")
		}
	}
	if p.group == nil {
		return nil
	}
	return p.group.Close()
}
