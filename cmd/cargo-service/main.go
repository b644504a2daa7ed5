package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jogardn/cargo-lifecycle/internal/auth"
	"github.com/jogardn/cargo-lifecycle/internal/circuitbreaker"
	"github.com/jogardn/cargo-lifecycle/internal/config"
	"github.com/jogardn/cargo-lifecycle/internal/documents"
	"github.com/jogardn/cargo-lifecycle/internal/events"
	"github.com/jogardn/cargo-lifecycle/internal/history"
	"github.com/jogardn/cargo-lifecycle/internal/httpx"
	"github.com/jogardn/cargo-lifecycle/internal/lifecycle"
	"github.com/jogardn/cargo-lifecycle/internal/logging"
	"github.com/jogardn/cargo-lifecycle/internal/orders"
	"github.com/jogardn/cargo-lifecycle/internal/shipping"
	"github.com/jogardn/cargo-lifecycle/internal/sms"
	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/internal/store/memstore"
	"github.com/jogardn/cargo-lifecycle/internal/store/postgres"
	"github.com/jogardn/cargo-lifecycle/internal/tariff"
	"github.com/jogardn/cargo-lifecycle/internal/websocket"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	logger := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	authorizer := loadAuthorizer(cfg, logger)
	breakers := circuitbreaker.NewManager(logger)
	breakerCfg := circuitbreaker.Config{
		MaxFailures: cfg.Breaker.MaxFailures,
		Timeout:     cfg.Breaker.Timeout,
		MaxRequests: cfg.Breaker.MaxRequests,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			logger.WithFields(logrus.Fields{"circuit_breaker": name, "from": from, "to": to}).Warn("Collaborator health changed")
		},
	}

	hub := websocket.NewHub(logger, cfg.AllowedOrigins...)
	go hub.Run(ctx)

	// Kafka carries status events and queues notifications; without it
	// notifications go straight to the gateway.
	var publisher events.Publisher
	var notifier events.Notifier
	if cfg.Kafka.Enabled {
		producer, err := events.NewKafkaProducer(cfg.Kafka.Brokers, events.Topics{
			StatusChanged: cfg.Kafka.StatusTopic,
			Notifications: cfg.Kafka.NotificationTopic,
		}, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka producer")
		}
		defer producer.Close()
		publisher, notifier = producer, producer
	} else {
		logger.Warn("Kafka disabled, status events are only broadcast over websocket")
		if cfg.SMSGatewayURL == "" {
			logger.Warn("No SMS_GATEWAY_URL set, notifications will fail")
		}
		notifier = sms.NewSender(sms.NewClient(cfg.SMSGatewayURL, breakers, breakerCfg, logger))
	}
	emitter := events.NewEmitter(publisher, hub, logger)

	var storage documents.Storage = documents.NewMemoryStorage()
	if cfg.DocumentStoreURL != "" {
		storage = documents.NewHTTPStorage(cfg.DocumentStoreURL, breakers, breakerCfg, logger)
	}
	docs := documents.NewService(st, storage, logger)
	worker := documents.NewRetryWorker(docs, cfg.DocumentRetry, logger)
	if err := worker.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start document retry worker")
	}
	defer worker.Stop()

	machine := lifecycle.New(history.New(logger))
	deps := orders.Deps{
		Store:       st,
		Authorizer:  authorizer,
		Machine:     machine,
		Notifier:    notifier,
		Emitter:     emitter,
		Documents:   docs,
		TrackingURL: cfg.TrackingURL,
		Logger:      logger,
	}
	engine := shipping.NewEngine(shipping.Deps{
		Store:      st,
		Authorizer: authorizer,
		Machine:    machine,
		Notifier:   notifier,
		Emitter:    emitter,
		Documents:  docs,
		Logger:     logger,
	})
	controller := orders.NewController(deps)
	items := orders.NewItemService(deps, engine)

	router := mux.NewRouter()
	router.Use(httpx.LoggingMiddleware(logger))
	api := router.PathPrefix("/api/v1").Subrouter()
	orders.NewHandler(controller, items, logger).Register(api)
	shipping.NewHandler(engine, logger).Register(api)
	tariff.NewHandler(tariff.NewService(st, authorizer, logger), logger).Register(api)
	router.HandleFunc("/ws", hub.HandleWebSocket)
	router.HandleFunc("/health", healthCheck(st, breakers, hub)).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("Starting cargo service")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	cancel()
	logger.Info("Server gracefully stopped")
}

func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (store.Store, func()) {
	if cfg.StoreDriver == "memory" {
		logger.Warn("Using in-memory store, data is lost on restart")
		s := memstore.New()
		seedDemo(s)
		return s, func() {}
	}

	pg, err := postgres.Open(ctx, cfg.Database.DSN(), 30, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	if err := pg.CreateTables(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to create tables")
	}
	return pg, func() { pg.Close() }
}

// seedDemo gives the in-memory store enough reference data to take orders.
func seedDemo(s *memstore.Store) {
	s.PutCity(models.City{ID: 1, Name: "Almaty"})
	s.PutCity(models.City{ID: 2, Name: "Astana"})
	s.PutWarehouse(models.Warehouse{ID: 1, Name: "Almaty hub", CityID: 1})
	s.PutWarehouse(models.Warehouse{ID: 2, Name: "Astana hub", CityID: 2})
	s.PutDirection(models.Direction{ID: 1, DepartureCityID: 1, ArrivalCityID: 2, TransportType: models.TransportRoad, IsActive: true})
	s.PutDirection(models.Direction{ID: 2, DepartureCityID: 1, ArrivalCityID: 2, TransportType: models.TransportAir, IsActive: true})
	s.PutUser(models.User{ID: 1, FirstName: "Demo", LastName: "Manager"})
}

func loadAuthorizer(cfg *config.Config, logger *logrus.Logger) auth.Authorizer {
	if cfg.CapabilitiesFile == "" {
		logger.Warn("No CAPABILITIES_FILE set, every actor holds every capability")
		return auth.AllowAll{}
	}
	f, err := os.Open(cfg.CapabilitiesFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open capabilities file")
	}
	defer f.Close()
	grants, err := auth.LoadStatic(f)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load capabilities")
	}
	logger.WithField("actors", len(grants)).Info("Capabilities loaded")
	return grants
}
