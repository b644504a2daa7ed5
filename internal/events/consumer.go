package events

import (
	"context"
	"errors"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

func NewConsumerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Version = sarama.V2_6_0_0
	return config
}

// consumeLoop keeps the group member joined until ctx is cancelled. Each
// rebalance ends one Consume call.
func consumeLoop(ctx context.Context, group sarama.ConsumerGroup, topics []string, handler sarama.ConsumerGroupHandler, logger *logrus.Logger) error {
	for {
		if err := group.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			logger.WithError(err).WithField("topics", topics).Error("Error consuming from Kafka")
			return err
		}
		if ctx.Err() != nil {
			logger.WithField("topics", topics).Info("Kafka consumer context cancelled")
			return nil
		}
	}
}

// claimHandler feeds every claimed message to process and marks it once
// process returns. Failures are process's own business.
type claimHandler struct {
	name    string
	logger  *logrus.Logger
	process func(ctx context.Context, msg *sarama.ConsumerMessage)
}

func (h *claimHandler) Setup(sarama.ConsumerGroupSession) error {
	h.logger.WithField("consumer", h.name).Info("Kafka consumer group session setup")
	return nil
}

func (h *claimHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.logger.WithField("consumer", h.name).Info("Kafka consumer group session cleanup")
	return nil
}

func (h *claimHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.process(session.Context(), msg)
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func header(msg *sarama.ConsumerMessage, key string) (string, bool) {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value), true
		}
	}
	return "", false
}
