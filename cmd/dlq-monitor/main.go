package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jogardn/cargo-lifecycle/internal/config"
	"github.com/jogardn/cargo-lifecycle/internal/events"
	"github.com/jogardn/cargo-lifecycle/internal/logging"
	"github.com/sirupsen/logrus"
)

// dlq-monitor reports notifications that could not be delivered and, with
// DLQ_REPLAY=true, sends them back to the notification topic.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	logger := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if !cfg.Kafka.Enabled {
		logger.Fatal("dlq-monitor needs KAFKA_ENABLED=true")
	}

	processor, err := events.NewDLQProcessor(
		cfg.Kafka.Brokers,
		cfg.Kafka.NotificationGroup+"-dlq",
		cfg.Kafka.NotificationDLQ,
		cfg.Kafka.NotificationTopic,
		cfg.Kafka.DLQReplay,
		logger,
	)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create DLQ processor")
	}
	defer processor.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := processor.Run(ctx); err != nil {
			logger.WithError(err).Error("DLQ processor stopped")
		}
	}()

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				logger.WithField("stats", processor.Stats()).Info("DLQ stats")
			case <-ctx.Done():
				return
			}
		}
	}()

	logger.WithFields(logrus.Fields{
		"dlq_topic": cfg.Kafka.NotificationDLQ,
		"replay":    cfg.Kafka.DLQReplay,
	}).Info("DLQ monitor started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-done:
	}

	logger.Info("Shutting down DLQ monitor...")
	cancel()
	<-done
}
