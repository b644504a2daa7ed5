package main

import (
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/jogardn/cargo-lifecycle/internal/httpx"
	"github.com/jogardn/cargo-lifecycle/internal/sms"
	"github.com/sirupsen/logrus"
)

type gateway struct {
	logger      *logrus.Logger
	failureRate float64
	maxDelay    time.Duration
	random      func() float64

	mutex    sync.RWMutex
	messages map[string]sms.Message
	objects  map[string][]byte
}

func newGateway(logger *logrus.Logger, failureRate float64, maxDelay time.Duration) *gateway {
	return &gateway{
		logger:      logger,
		failureRate: failureRate,
		maxDelay:    maxDelay,
		random:      rand.Float64,
		messages:    make(map[string]sms.Message),
		objects:     make(map[string][]byte),
	}
}

func (g *gateway) router() *mux.Router {
	router := mux.NewRouter()
	router.Use(httpx.LoggingMiddleware(g.logger))
	router.HandleFunc("/health", g.health).Methods(http.MethodGet)
	router.HandleFunc("/messages", g.chaos(g.sendMessage)).Methods(http.MethodPost)
	router.HandleFunc("/messages", g.listMessages).Methods(http.MethodGet)
	router.HandleFunc("/objects/{name:.+}", g.chaos(g.putObject)).Methods(http.MethodPut)
	router.HandleFunc("/objects/{name:.+}", g.chaos(g.getObject)).Methods(http.MethodGet)
	return router
}

// chaos delays the request and fails a share of them with 503.
func (g *gateway) chaos(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.maxDelay > 0 {
			time.Sleep(time.Duration(g.random() * float64(g.maxDelay)))
		}
		if g.failureRate > 0 && g.random() < g.failureRate {
			httpx.RespondWithMessage(w, http.StatusServiceUnavailable, "simulated outage")
			return
		}
		next(w, r)
	}
}

func (g *gateway) health(w http.ResponseWriter, r *http.Request) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	httpx.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"service":  "gateway-mock",
		"messages": len(g.messages),
		"objects":  len(g.objects),
	})
}

func (g *gateway) sendMessage(w http.ResponseWriter, r *http.Request) {
	var m sms.Message
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		httpx.RespondWithMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if m.To == "" {
		httpx.RespondWithMessage(w, http.StatusBadRequest, "recipient is required")
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = m.Reference
	}
	g.mutex.Lock()
	_, duplicate := g.messages[key]
	g.messages[key] = m
	g.mutex.Unlock()

	g.logger.WithFields(logrus.Fields{
		"reference": m.Reference,
		"channel":   m.Channel,
		"to":        m.To,
		"template":  m.Template,
		"duplicate": duplicate,
	}).Info("Message accepted")
	httpx.RespondWithJSON(w, http.StatusAccepted, map[string]string{"id": key})
}

func (g *gateway) listMessages(w http.ResponseWriter, r *http.Request) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	out := make([]sms.Message, 0, len(g.messages))
	for _, m := range g.messages {
		out = append(out, m)
	}
	httpx.RespondWithJSON(w, http.StatusOK, out)
}

func (g *gateway) putObject(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	data, err := io.ReadAll(r.Body)
	if err != nil {
		httpx.RespondWithMessage(w, http.StatusBadRequest, "Failed to read body")
		return
	}
	g.mutex.Lock()
	g.objects[name] = data
	g.mutex.Unlock()

	g.logger.WithFields(logrus.Fields{"object": name, "bytes": len(data)}).Info("Object stored")
	httpx.RespondWithJSON(w, http.StatusCreated, map[string]string{"file_path": "http://" + r.Host + "/objects/" + url.PathEscape(name)})
}

func (g *gateway) getObject(w http.ResponseWriter, r *http.Request) {
	g.mutex.RLock()
	data, ok := g.objects[mux.Vars(r)["name"]]
	g.mutex.RUnlock()
	if !ok {
		httpx.RespondWithMessage(w, http.StatusNotFound, "object not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(data)
}
