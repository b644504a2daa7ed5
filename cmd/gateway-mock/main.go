package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jogardn/cargo-lifecycle/internal/config"
	"github.com/jogardn/cargo-lifecycle/internal/logging"
	"github.com/sirupsen/logrus"
)

// gateway-mock stands in for the SMS gateway and the document store during
// local development. FAILURE_RATE makes it answer 503 to a share of the
// requests so the circuit breakers and the retry paths can be watched.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	logger := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	failureRate, _ := strconv.ParseFloat(os.Getenv("FAILURE_RATE"), 64)
	maxDelay, _ := time.ParseDuration(os.Getenv("MAX_DELAY"))
	gw := newGateway(logger, failureRate, maxDelay)

	port := os.Getenv("GATEWAY_MOCK_PORT")
	if port == "" {
		port = "8082"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: gw.router(),
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":         port,
			"failure_rate": failureRate,
			"max_delay":    maxDelay.String(),
		}).Info("Starting gateway mock")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gateway mock...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server forced to shutdown")
	}
}
