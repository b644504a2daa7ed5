package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jogardn/cargo-lifecycle/internal/apperr"
	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxAttempts = 10
	retryBatch         = 50
)

type Service struct {
	store       store.Store
	storage     Storage
	logger      *logrus.Logger
	now         func() time.Time
	MaxAttempts int
}

func NewService(s store.Store, storage Storage, logger *logrus.Logger) *Service {
	return &Service{
		store:       s,
		storage:     storage,
		logger:      logger,
		now:         time.Now,
		MaxAttempts: DefaultMaxAttempts,
	}
}

type document struct {
	Date     time.Time
	Order    *models.Order
	Shipment *models.Shipment
	Driver   *models.User
}

// Generate renders the document, stores it and records its reference on
// the owner. On failure the document is left pending and the error is
// returned; the signing itself stays valid.
func (s *Service) Generate(ctx context.Context, kind models.DocumentKind, ownerID int64) (string, error) {
	ref, err := s.produce(ctx, kind, ownerID)
	if err == nil {
		return ref, nil
	}

	pending := &models.PendingDocument{Kind: kind, OwnerID: ownerID, LastError: err.Error()}
	if perr := s.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.Documents().Add(ctx, pending)
	}); perr != nil {
		s.logger.WithError(perr).WithFields(logrus.Fields{
			"kind":     kind,
			"owner_id": ownerID,
		}).Error("Failed to record pending document")
	}
	return "", err
}

// RetryPending regenerates documents left pending by earlier failures and
// reports how many went through. Owners that no longer exist are dropped.
func (s *Service) RetryPending(ctx context.Context) (int, error) {
	var due []models.PendingDocument
	if err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		due, err = tx.Documents().Due(ctx, s.MaxAttempts, retryBatch)
		return err
	}); err != nil {
		return 0, fmt.Errorf("failed to load pending documents: %w", err)
	}

	done := 0
	for _, doc := range due {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		fields := logrus.Fields{"kind": doc.Kind, "owner_id": doc.OwnerID, "attempts": doc.Attempts}

		_, err := s.produce(ctx, doc.Kind, doc.OwnerID)
		gone := apperr.Is(err, apperr.KindNotFound)
		txErr := s.store.WithTx(ctx, func(tx store.Tx) error {
			if err == nil || gone {
				return tx.Documents().Remove(ctx, doc.ID)
			}
			return tx.Documents().Fail(ctx, doc.ID, err.Error())
		})
		if txErr != nil {
			return done, fmt.Errorf("failed to update pending document %d: %w", doc.ID, txErr)
		}

		switch {
		case err == nil:
			done++
			s.logger.WithFields(fields).Info("Pending document generated")
		case gone:
			s.logger.WithFields(fields).Warn("Pending document owner is gone, dropping")
		default:
			s.logger.WithError(err).WithFields(fields).Warn("Pending document still failing")
		}
	}
	return done, nil
}

func (s *Service) produce(ctx context.Context, kind models.DocumentKind, ownerID int64) (string, error) {
	var doc document
	var name string
	if err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		name, err = s.load(ctx, tx, kind, ownerID, &doc)
		return err
	}); err != nil {
		return "", err
	}
	doc.Date = s.now()

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, doc); err != nil {
		return "", apperr.Internal("failed to render document", err)
	}

	object := fmt.Sprintf("%s/%d/%s.txt", kind, ownerID, uuid.NewString())
	ref, err := s.storage.Store(ctx, object, buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("failed to store %s for %d: %w", kind, ownerID, err)
	}

	if err := s.store.WithTx(ctx, func(tx store.Tx) error {
		return s.attach(ctx, tx, kind, ownerID, ref)
	}); err != nil {
		return "", err
	}
	return ref, nil
}

// load fills doc and returns the template to render.
func (s *Service) load(ctx context.Context, tx store.Tx, kind models.DocumentKind, ownerID int64, doc *document) (string, error) {
	switch kind {
	case models.DocumentPublicOffer, models.DocumentWaiverAgreement:
		order, err := tx.Orders().Get(ctx, ownerID)
		if err != nil {
			return "", notFound(err, "order", ownerID)
		}
		doc.Order = order
		name := string(kind)
		direction, err := tx.Reference().Direction(ctx, order.DirectionID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return "", err
		}
		if direction != nil && direction.TransportType == models.TransportAir {
			name += "_AIR"
		}
		return name, nil

	case models.DocumentDriverContract:
		shipment, err := tx.Shipments().Get(ctx, ownerID)
		if err != nil {
			return "", notFound(err, "shipment", ownerID)
		}
		doc.Shipment = shipment
		if shipment.DriverID != nil {
			driver, err := tx.Reference().User(ctx, *shipment.DriverID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return "", err
			}
			doc.Driver = driver
		}
		return string(kind), nil
	}
	return "", apperr.Precondition("unknown_document", "unknown document kind %q", kind)
}

func (s *Service) attach(ctx context.Context, tx store.Tx, kind models.DocumentKind, ownerID int64, ref string) error {
	if kind == models.DocumentDriverContract {
		shipment, err := tx.Shipments().GetForUpdate(ctx, ownerID)
		if err != nil {
			return notFound(err, "shipment", ownerID)
		}
		shipment.DriverContractURL = ref
		return tx.Shipments().Update(ctx, shipment)
	}

	order, err := tx.Orders().GetForUpdate(ctx, ownerID)
	if err != nil {
		return notFound(err, "order", ownerID)
	}
	if kind == models.DocumentPublicOffer {
		order.PublicOfferURL = ref
	} else {
		order.WaiverAgreementURL = ref
	}
	return tx.Orders().Update(ctx, order)
}

func notFound(err error, entity string, id int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(entity, id)
	}
	return err
}
