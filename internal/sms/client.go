// Package sms delivers notifications through the HTTP SMS/push gateway.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/jogardn/cargo-lifecycle/internal/circuitbreaker"
	"github.com/jogardn/cargo-lifecycle/internal/events"
	"github.com/sirupsen/logrus"
)

type Message struct {
	Reference string            `json:"reference,omitempty"`
	Channel   events.Channel    `json:"channel"`
	To        string            `json:"to"`
	Template  string            `json:"template"`
	Params    map[string]string `json:"params,omitempty"`
}

// StatusError is a non-2xx answer from the gateway.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sms gateway returned status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the same request may succeed later.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *logrus.Logger
}

// NewClient guards the gateway with a breaker from manager. Rejected
// messages do not count against the gateway.
func NewClient(baseURL string, manager *circuitbreaker.Manager, cfg circuitbreaker.Config, logger *logrus.Logger) *Client {
	cfg.IsFailure = func(err error) bool {
		var se *StatusError
		return !errors.As(err, &se) || se.Temporary()
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		breaker: manager.GetOrCreate("sms-gateway", cfg),
		logger:  logger,
	}
}

func (c *Client) Send(ctx context.Context, m Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if m.Reference != "" {
			req.Header.Set("Idempotency-Key", m.Reference)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send request to sms gateway: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &StatusError{StatusCode: resp.StatusCode, Body: string(text)}
		}

		c.logger.WithFields(logrus.Fields{
			"reference": m.Reference,
			"template":  m.Template,
			"channel":   m.Channel,
			"status":    resp.StatusCode,
		}).Info("Message accepted by sms gateway")
		return nil
	})
}

// Sender delivers notifications consumed from Kafka.
type Sender struct {
	client *Client
}

func NewSender(client *Client) *Sender {
	return &Sender{client: client}
}

func (s *Sender) HandleNotification(ctx context.Context, n events.Notification) error {
	if n.Recipient == "" {
		return errors.New("notification has no recipient")
	}
	channel := n.Channel
	if channel == "" {
		channel = events.ChannelSMS
	}
	return s.client.Send(ctx, Message{
		Reference: n.ID,
		Channel:   channel,
		To:        n.Recipient,
		Template:  n.Template,
		Params:    n.Params,
	})
}

// IsRetryable treats outages as transient: an open breaker, network
// errors and 5xx answers. A message the gateway rejected stays rejected.
func (s *Sender) IsRetryable(err error) bool {
	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Notify sends straight to the gateway. Used when Kafka is disabled and
// notifications skip the queue.
func (s *Sender) Notify(ctx context.Context, n events.Notification) error {
	return s.HandleNotification(ctx, n)
}
