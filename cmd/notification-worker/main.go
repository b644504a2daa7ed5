package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jogardn/cargo-lifecycle/internal/circuitbreaker"
	"github.com/jogardn/cargo-lifecycle/internal/config"
	"github.com/jogardn/cargo-lifecycle/internal/events"
	"github.com/jogardn/cargo-lifecycle/internal/logging"
	"github.com/jogardn/cargo-lifecycle/internal/sms"
	"github.com/sirupsen/logrus"
)

// notification-worker drains the notification topic into the SMS gateway.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	logger := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if !cfg.Kafka.Enabled {
		logger.Fatal("notification-worker needs KAFKA_ENABLED=true")
	}
	if cfg.SMSGatewayURL == "" {
		logger.Fatal("SMS_GATEWAY_URL is required")
	}

	breakers := circuitbreaker.NewManager(logger)
	client := sms.NewClient(cfg.SMSGatewayURL, breakers, circuitbreaker.Config{
		MaxFailures: cfg.Breaker.MaxFailures,
		Timeout:     cfg.Breaker.Timeout,
		MaxRequests: cfg.Breaker.MaxRequests,
	}, logger)

	consumer, err := events.NewNotificationConsumer(
		cfg.Kafka.Brokers,
		cfg.Kafka.NotificationGroup,
		cfg.Kafka.NotificationTopic,
		cfg.Kafka.NotificationDLQ,
		sms.NewSender(client),
		logger,
	)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create notification consumer")
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil {
			logger.WithError(err).Error("Notification consumer stopped")
		}
	}()

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				logger.WithFields(logrus.Fields{
					"metrics":          consumer.Metrics(),
					"circuit_breakers": breakers.Snapshots(),
				}).Info("Notification worker metrics")
			case <-ctx.Done():
				return
			}
		}
	}()

	logger.WithFields(logrus.Fields{
		"topic":     cfg.Kafka.NotificationTopic,
		"dlq_topic": cfg.Kafka.NotificationDLQ,
	}).Info("Notification worker started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-done:
	}

	logger.Info("Shutting down notification worker...")
	cancel()
	<-done
	logger.WithField("metrics", consumer.Metrics()).Info("Notification worker stopped")
}
