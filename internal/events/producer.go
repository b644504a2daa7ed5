package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Topics struct {
	StatusChanged string
	Notifications string
}

type KafkaProducer struct {
	producer sarama.SyncProducer
	topics   Topics
	logger   *logrus.Logger
}

func NewProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Version = sarama.V2_6_0_0
	return config
}

func NewKafkaProducer(brokers []string, topics Topics, logger *logrus.Logger) (*KafkaProducer, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, err
	}
	return NewKafkaProducerFrom(producer, topics, logger), nil
}

// NewKafkaProducerFrom wraps an existing sync producer.
func NewKafkaProducerFrom(producer sarama.SyncProducer, topics Topics, logger *logrus.Logger) *KafkaProducer {
	return &KafkaProducer{producer: producer, topics: topics, logger: logger}
}

func (p *KafkaProducer) PublishStatusChanged(ctx context.Context, event StatusChangedEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	event.EventTime = time.Now()
	return p.send(ctx, p.topics.StatusChanged, strconv.FormatInt(event.OrderID, 10), event, logrus.Fields{
		"entity":    event.Entity,
		"entity_id": event.EntityID,
		"to":        event.To,
	})
}

func (p *KafkaProducer) Notify(ctx context.Context, n Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = time.Now()
	return p.send(ctx, p.topics.Notifications, n.Recipient, n, logrus.Fields{
		"template":  n.Template,
		"recipient": n.Recipient,
	})
}

func (p *KafkaProducer) send(ctx context.Context, topic, key string, payload interface{}, fields logrus.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithField("topic", topic).Error("Failed to send message to Kafka")
		return err
	}

	p.logger.WithFields(fields).WithFields(logrus.Fields{
		"topic":     topic,
		"partition": partition,
		"offset":    offset,
	}).Info("Event published to Kafka")

	return nil
}

func (p *KafkaProducer) Close() error {
	return p.producer.Close()
}
