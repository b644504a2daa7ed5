package circuitbreaker

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager hands out one breaker per remote so the health endpoint can
// report all of them.
type Manager struct {
	breakers map[string]*CircuitBreaker
	mutex    sync.RWMutex
	logger   *logrus.Logger
}

func NewManager(logger *logrus.Logger) *Manager {
	return &Manager{
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
	}
}

func (m *Manager) GetOrCreate(name string, config Config) *CircuitBreaker {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if breaker, exists := m.breakers[name]; exists {
		return breaker
	}
	config.Name = name
	breaker := New(config, m.logger)
	m.breakers[name] = breaker

	m.logger.WithFields(logrus.Fields{
		"circuit_breaker": name,
		"max_failures":    breaker.maxFailures,
		"timeout":         breaker.timeout.String(),
		"max_requests":    breaker.maxRequests,
	}).Info("Circuit breaker created")
	return breaker
}

func (m *Manager) Get(name string) *CircuitBreaker {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.breakers[name]
}

// Snapshots lists every breaker sorted by name.
func (m *Manager) Snapshots() []Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]Snapshot, 0, len(m.breakers))
	for _, b := range m.breakers {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Healthy reports whether no breaker is open.
func (m *Manager) Healthy() bool {
	for _, s := range m.Snapshots() {
		if s.State == StateOpen {
			return false
		}
	}
	return true
}

func (m *Manager) Reset(name string) bool {
	m.mutex.RLock()
	breaker, exists := m.breakers[name]
	m.mutex.RUnlock()
	if !exists {
		return false
	}
	breaker.Reset()
	m.logger.WithField("circuit_breaker", name).Info("Circuit breaker reset")
	return true
}
