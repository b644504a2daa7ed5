package orders

import (
	"context"
	"errors"

	"github.com/jogardn/cargo-lifecycle/internal/apperr"
	"github.com/jogardn/cargo-lifecycle/internal/auth"
	"github.com/jogardn/cargo-lifecycle/internal/history"
	"github.com/jogardn/cargo-lifecycle/internal/lifecycle"
	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/sirupsen/logrus"
)

// ItemService moves single parcels through warehouses. Every item move
// re-scans the order's items and promotes the order once all of them
// agree.
type ItemService struct {
	base
	stops StopVisitor
}

func NewItemService(d Deps, stops StopVisitor) *ItemService {
	d = d.withDefaults()
	return &ItemService{base: newBase(d), stops: stops}
}

// AddItem registers another parcel on an open order. The item starts in
// the order's current status.
func (s *ItemService) AddItem(ctx context.Context, actor auth.Actor, orderID int64, in NewItem) (*models.OrderItem, error) {
	if err := s.require(ctx, actor, auth.UpdateOrder); err != nil {
		return nil, err
	}
	var item *models.OrderItem
	err := s.run(ctx, actor, func(sc *lifecycle.Scope) error {
		order, err := lockOrder(ctx, sc.Tx(), orderID)
		if err != nil {
			return err
		}
		if !order.Status.PreTransit() {
			return apperr.Precondition("order_closed", "items cannot be added to order %d in status %s", orderID, order.Status)
		}
		item = &models.OrderItem{OrderID: orderID, Status: order.Status, ScanCode: in.ScanCode, Photo: in.Photo}
		if order.Status == models.StatusAcceptedToWarehouse {
			item.WarehouseID = order.WarehouseID
		}
		if err := createItem(ctx, sc.Tx(), item); err != nil {
			return err
		}
		return sc.Log(ctx, history.Entry{
			OrderID:     orderID,
			OrderItemID: item.ID,
			Code:        history.CodeFor(order.Status),
			WarehouseID: value(item.WarehouseID),
			CourierID:   value(order.CourierID),
			ManagerID:   actor.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

type ItemView struct {
	models.OrderItem
	History []models.ActionHistory `json:"history"`
}

func (s *ItemService) GetItem(ctx context.Context, actor auth.Actor, id int64) (*ItemView, error) {
	if err := s.require(ctx, actor, auth.ViewOrders); err != nil {
		return nil, err
	}
	var view *ItemView
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		item, err := loadItem(ctx, tx, id)
		if err != nil {
			return err
		}
		rows, err := s.machine.History().ForItem(ctx, tx, id)
		if err != nil {
			return err
		}
		view = &ItemView{OrderItem: *item, History: rows}
		return nil
	})
	return view, err
}

func (s *ItemService) ItemByScanCode(ctx context.Context, actor auth.Actor, code string) (*models.OrderItem, error) {
	if err := s.require(ctx, actor, auth.ViewOrders); err != nil {
		return nil, err
	}
	var item *models.OrderItem
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		item, err = tx.Items().ByScanCode(ctx, code)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("order_item", code)
		}
		return err
	})
	return item, err
}

func (s *ItemService) ListItems(ctx context.Context, actor auth.Actor, orderID int64, page store.Page) ([]models.OrderItem, int, error) {
	if err := s.require(ctx, actor, auth.ViewOrders); err != nil {
		return nil, 0, err
	}
	var items []models.OrderItem
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if ok, err := tx.Orders().Exists(ctx, orderID); err != nil {
			return err
		} else if !ok {
			return apperr.NotFound("order", orderID)
		}
		var err error
		items, err = tx.Items().ListByOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	total := len(items)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Size()
	if end > total {
		end = total
	}
	return items[start:end], total, nil
}

// DeleteItem removes a parcel that has not left its first warehouse. If
// the remaining items have all been accepted, the order follows them.
func (s *ItemService) DeleteItem(ctx context.Context, actor auth.Actor, id int64) error {
	if err := s.require(ctx, actor, auth.UpdateOrder); err != nil {
		return err
	}
	return s.run(ctx, actor, func(sc *lifecycle.Scope) error {
		tx := sc.Tx()
		item, err := loadItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := lockOrder(ctx, tx, item.OrderID); err != nil {
			return err
		}
		if !item.Status.PreTransit() {
			return apperr.Precondition("item_in_transit", "order item %d in status %s cannot be deleted", id, item.Status)
		}
		if err := tx.Items().Delete(ctx, id); err != nil {
			return err
		}
		remaining, err := tx.Items().ListByOrder(ctx, item.OrderID)
		if err != nil || len(remaining) == 0 || remaining[0].WarehouseID == nil {
			return err
		}
		_, err = sc.Promote(ctx, item.OrderID, models.StatusAcceptedToWarehouse, *remaining[0].WarehouseID, history.Entry{WarehouseManagerID: actor.ID})
		return err
	})
}

// MarkCourierDelivering records that a courier picked the parcel up from
// the sender. The order follows once every parcel is picked up.
func (s *ItemService) MarkCourierDelivering(ctx context.Context, actor auth.Actor, itemID int64) (*models.OrderItem, error) {
	if err := s.require(ctx, actor, auth.DeliverOrder); err != nil {
		return nil, err
	}
	var item *models.OrderItem
	err := s.run(ctx, actor, func(sc *lifecycle.Scope) error {
		tx := sc.Tx()
		var err error
		if item, err = loadItem(ctx, tx, itemID); err != nil {
			return err
		}
		order, err := lockOrder(ctx, tx, item.OrderID)
		if err != nil {
			return err
		}
		entry := history.Entry{CourierID: actor.ID}
		if err := sc.MoveItem(ctx, item, models.StatusCourierDeliveringToWarehouse, entry); err != nil {
			return err
		}
		if order.CourierID == nil {
			courier := actor.ID
			order.CourierID = &courier
			if err := tx.Orders().Update(ctx, order); err != nil {
				return err
			}
		}
		_, err = sc.Promote(ctx, order.ID, models.StatusCourierDeliveringToWarehouse, 0, entry)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// AcceptToWarehouse scans a parcel in at a warehouse. A parcel that had
// already been accepted somewhere is logged as arriving at an intermediate
// warehouse.
func (s *ItemService) AcceptToWarehouse(ctx context.Context, actor auth.Actor, itemID, warehouseID int64) (*models.OrderItem, error) {
	if err := s.require(ctx, actor, auth.AcceptOrderToWarehouse); err != nil {
		return nil, err
	}
	var (
		item     *models.OrderItem
		promoted bool
	)
	err := s.run(ctx, actor, func(sc *lifecycle.Scope) error {
		tx := sc.Tx()
		if err := requireWarehouse(ctx, tx, warehouseID); err != nil {
			return err
		}
		var err error
		if item, err = loadItem(ctx, tx, itemID); err != nil {
			return err
		}
		order, err := lockOrder(ctx, tx, item.OrderID)
		if err != nil {
			return err
		}

		code, err := sc.AcceptCode(ctx, item.OrderID, item.ID, item.Status)
		if err != nil {
			return err
		}
		wh := warehouseID
		item.WarehouseID = &wh
		item.IsLoaded = false
		if err := sc.MoveItem(ctx, item, models.StatusAcceptedToWarehouse, history.Entry{
			Code:               code,
			WarehouseID:        warehouseID,
			WarehouseManagerID: actor.ID,
		}); err != nil {
			return err
		}

		firstAcceptance := order.StartWarehouseID == nil
		promoted, err = sc.Promote(ctx, order.ID, models.StatusAcceptedToWarehouse, warehouseID, history.Entry{WarehouseManagerID: actor.ID})
		if err != nil {
			return err
		}
		if promoted && firstAcceptance && order.CourierID != nil {
			return tx.Couriers().AddAccepted(ctx, *order.CourierID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"order_item_id":  itemID,
		"order_id":       item.OrderID,
		"warehouse_id":   warehouseID,
		"order_promoted": promoted,
	}).Info("Item accepted to warehouse")
	return item, nil
}

// ArriveToDestination scans a parcel in at its destination, marks the
// shipment stops it came through and promotes the order once every parcel
// has arrived.
func (s *ItemService) ArriveToDestination(ctx context.Context, actor auth.Actor, itemID, warehouseID int64) (*models.OrderItem, error) {
	if err := s.require(ctx, actor, auth.AcceptOrderToWarehouse); err != nil {
		return nil, err
	}
	var item *models.OrderItem
	err := s.run(ctx, actor, func(sc *lifecycle.Scope) error {
		tx := sc.Tx()
		if err := requireWarehouse(ctx, tx, warehouseID); err != nil {
			return err
		}
		var err error
		if item, err = loadItem(ctx, tx, itemID); err != nil {
			return err
		}
		if _, err := lockOrder(ctx, tx, item.OrderID); err != nil {
			return err
		}

		wh := warehouseID
		item.WarehouseID = &wh
		item.IsLoaded = false
		entry := history.Entry{WarehouseID: warehouseID, WarehouseManagerID: actor.ID}
		if err := sc.MoveItem(ctx, item, models.StatusArrivedToDestination, entry); err != nil {
			return err
		}
		if s.stops != nil {
			if err := s.stops.VisitStops(ctx, sc, item.OrderID, warehouseID); err != nil {
				return err
			}
		}
		_, err = sc.Promote(ctx, item.OrderID, models.StatusArrivedToDestination, warehouseID, history.Entry{WarehouseManagerID: actor.ID})
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}
