// Package documents renders signed agreements and keeps them in the
// document store. Generation runs after the signing transaction commits;
// a failure leaves a pending record for the retry worker.
package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/jogardn/cargo-lifecycle/internal/circuitbreaker"
	"github.com/sirupsen/logrus"
)

var ErrObjectNotFound = errors.New("document not found")

type Storage interface {
	Store(ctx context.Context, name string, data []byte) (string, error)
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// HTTPStorage talks to the blob store over its REST API: objects are PUT
// under /objects/{name} and read back from the returned reference.
type HTTPStorage struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *logrus.Logger
}

func NewHTTPStorage(baseURL string, manager *circuitbreaker.Manager, cfg circuitbreaker.Config, logger *logrus.Logger) *HTTPStorage {
	cfg.IsFailure = func(err error) bool {
		return !errors.Is(err, ErrObjectNotFound)
	}
	return &HTTPStorage{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: manager.GetOrCreate("document-store", cfg),
		logger:  logger,
	}
}

type storeResponse struct {
	FilePath string `json:"file_path"`
}

func (s *HTTPStorage) Store(ctx context.Context, name string, data []byte) (string, error) {
	var ref string
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		target := s.baseURL + "/objects/" + url.PathEscape(name)
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "text/plain; charset=utf-8")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to upload document: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("document store returned status %d", resp.StatusCode)
		}

		var out storeResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		ref = out.FilePath
		if ref == "" {
			ref = target
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.logger.WithFields(logrus.Fields{
		"name": name,
		"ref":  ref,
		"size": len(data),
	}).Info("Document stored")
	return ref, nil
}

func (s *HTTPStorage) Fetch(ctx context.Context, ref string) ([]byte, error) {
	var data []byte
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to fetch document: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return ErrObjectNotFound
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("document store returned status %d", resp.StatusCode)
		}
		data, err = io.ReadAll(resp.Body)
		return err
	})
	return data, err
}

// MemoryStorage keeps documents in process. Used when no document store
// is configured.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string][]byte)}
}

func (m *MemoryStorage) Store(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects["mem://"+name] = append([]byte(nil), data...)
	return "mem://" + name, nil
}

func (m *MemoryStorage) Fetch(ctx context.Context, ref string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[ref]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return append([]byte(nil), data...), nil
}
