// Package httpx holds the HTTP plumbing shared by the service handlers.
package httpx

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jogardn/cargo-lifecycle/internal/apperr"
	"github.com/jogardn/cargo-lifecycle/internal/auth"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	ActorHeader     = "X-Actor-ID"
	RequestIDHeader = "X-Request-ID"
)

func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// RespondWithData wraps payload in the success envelope.
func RespondWithData(w http.ResponseWriter, code int, payload interface{}) {
	RespondWithJSON(w, code, models.OrderResponse{Success: true, Data: payload})
}

func RespondWithMessage(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, map[string]interface{}{
		"success": false,
		"message": message,
	})
}

// RespondWithError maps domain errors to status codes. Unknown errors are
// logged and reported as a generic failure.
func RespondWithError(w http.ResponseWriter, logger *logrus.Logger, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind == apperr.KindInternal {
		logger.WithError(err).Error("Request failed")
		RespondWithMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	RespondWithJSON(w, apperr.HTTPStatus(err), map[string]interface{}{
		"success": false,
		"code":    appErr.Code,
		"message": appErr.Message,
	})
}

// Actor reads the acting user set by the gateway in front of the service.
func Actor(r *http.Request) (auth.Actor, bool) {
	id, err := strconv.ParseInt(r.Header.Get(ActorHeader), 10, 64)
	if err != nil || id <= 0 {
		return auth.Actor{}, false
	}
	return auth.Actor{ID: id}, true
}

// RequireActor writes a 401 and returns false when no actor is set.
func RequireActor(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	actor, ok := Actor(r)
	if !ok {
		RespondWithMessage(w, http.StatusUnauthorized, "Missing "+ActorHeader+" header")
	}
	return actor, ok
}

func PathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

func QueryInt(r *http.Request, name string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(name)); err == nil {
		return v
	}
	return def
}

func QueryID(r *http.Request, name string) *int64 {
	v, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// Decode reads a JSON body and answers 400 itself on failure.
func Decode(w http.ResponseWriter, r *http.Request, logger *logrus.Logger, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logger.WithError(err).WithField("path", r.URL.Path).Warn("Failed to decode request body")
		RespondWithMessage(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func LoggingMiddleware(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			w.Header().Set(RequestIDHeader, requestID)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			logger.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     rec.status,
				"request_id": requestID,
				"actor":      r.Header.Get(ActorHeader),
				"duration":   time.Since(start).Milliseconds(),
			}).Info("Request completed")
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working behind the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
