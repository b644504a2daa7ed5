// Package history writes the action log that accompanies every status
// change. Descriptions are rendered once, from the names current at write
// time.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/sirupsen/logrus"
)

// Entry describes one action. Zero ids mean "not involved".
type Entry struct {
	OrderID            int64
	OrderItemID        int64
	Code               models.ActionCode
	ClientID           int64
	ManagerID          int64
	CourierID          int64
	WarehouseManagerID int64
	WarehouseID        int64
	DepartureCityID    int64
	ArrivalCityID      int64
	Note               string
}

type Log struct {
	logger *logrus.Logger
	now    func() time.Time
}

func New(logger *logrus.Logger) *Log {
	return &Log{logger: logger, now: time.Now}
}

// WithClock is used by tests that need stable timestamps.
func (l *Log) WithClock(now func() time.Time) *Log {
	return &Log{logger: l.logger, now: now}
}

// Add appends the entry unless a row with the same code already exists for
// the same item (or, for order-level entries, the same order). A repeated
// attempt returns the stored row and writes nothing.
func (l *Log) Add(ctx context.Context, tx store.Tx, e Entry) (*models.ActionHistory, error) {
	if e.Code == "" {
		return nil, fmt.Errorf("history entry without action code")
	}
	if e.OrderID == 0 && e.OrderItemID == 0 {
		return nil, fmt.Errorf("history entry %s has neither order nor item", e.Code)
	}

	existing, err := tx.History().Find(ctx, ptr(e.OrderID), ptr(e.OrderItemID), e.Code)
	switch {
	case err == nil:
		l.logger.WithFields(logrus.Fields{
			"order_id":      e.OrderID,
			"order_item_id": e.OrderItemID,
			"action_code":   e.Code,
		}).Debug("Action already recorded, skipping")
		return existing, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to check action history: %w", err)
	}

	description, err := l.render(ctx, tx, e)
	if err != nil {
		return nil, err
	}

	row := &models.ActionHistory{
		OrderID:            ptr(e.OrderID),
		OrderItemID:        ptr(e.OrderItemID),
		Code:               e.Code,
		Description:        description,
		ClientID:           ptr(e.ClientID),
		ManagerID:          ptr(e.ManagerID),
		CourierID:          ptr(e.CourierID),
		WarehouseManagerID: ptr(e.WarehouseManagerID),
		WarehouseID:        ptr(e.WarehouseID),
		DepartureCityID:    ptr(e.DepartureCityID),
		ArrivalCityID:      ptr(e.ArrivalCityID),
		CreatedAt:          l.now(),
	}
	if err := tx.History().Create(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to write action history: %w", err)
	}
	return row, nil
}

func (l *Log) ForOrder(ctx context.Context, tx store.Tx, orderID int64) ([]models.ActionHistory, error) {
	return tx.History().ListByOrder(ctx, orderID)
}

func (l *Log) ForItem(ctx context.Context, tx store.Tx, itemID int64) ([]models.ActionHistory, error) {
	return tx.History().ListByItem(ctx, itemID)
}

// CodeFor maps a status to the action recorded when an entity enters it.
func CodeFor(status models.OrderStatus) models.ActionCode {
	switch status {
	case models.StatusCreated:
		return models.ActionOrderCreated
	case models.StatusAssignedToCourier:
		return models.ActionManagerApproved
	case models.StatusCourierDeliveringToWarehouse:
		return models.ActionCourierDeliveringToWarehouse
	case models.StatusClientDeliveringToWarehouse:
		return models.ActionClientDeliveringToWarehouse
	case models.StatusAcceptedToWarehouse:
		return models.ActionAcceptedToWarehouse
	case models.StatusInTransit:
		return models.ActionInTransit
	case models.StatusPartiallyInTransit:
		return models.ActionPartiallyInTransit
	case models.StatusArrivedToDestination:
		return models.ActionArrivedToDestination
	case models.StatusDeliveringToRecipient:
		return models.ActionDeliveringToRecipient
	case models.StatusDelivered:
		return models.ActionDelivered
	case models.StatusNotDelivered:
		return models.ActionNotDelivered
	case models.StatusCancelled:
		return models.ActionCancelled
	}
	return models.ActionCode(status)
}

func ptr(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
