package orders

import (
	"context"
	"errors"

	"github.com/jogardn/cargo-lifecycle/internal/apperr"
	"github.com/jogardn/cargo-lifecycle/internal/auth"
	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/shopspring/decimal"
)

type ItemWithFine struct {
	models.OrderItem
	StorageFine decimal.Decimal `json:"storage_fine"`
}

// OrderView is the aggregate returned to operators.
type OrderView struct {
	models.Order
	Items                []ItemWithFine         `json:"items"`
	Payment              *models.Payment        `json:"payment,omitempty"`
	Expenses             []models.Expense       `json:"expenses"`
	History              []models.ActionHistory `json:"history"`
	StartWarehouse       *models.Warehouse      `json:"start_warehouse,omitempty"`
	Warehouse            *models.Warehouse      `json:"warehouse,omitempty"`
	DestinationWarehouse *models.Warehouse      `json:"destination_warehouse,omitempty"`
	Direction            *models.Direction      `json:"direction,omitempty"`
	StorageFine          decimal.Decimal        `json:"storage_fine"`
}

// GetOrder assembles the view with one query per related table.
func (c *Controller) GetOrder(ctx context.Context, actor auth.Actor, id int64) (*OrderView, error) {
	if err := c.require(ctx, actor, auth.ViewOrders); err != nil {
		return nil, err
	}
	var view *OrderView
	err := c.store.WithTx(ctx, func(tx store.Tx) error {
		order, err := tx.Orders().Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("order", id)
		}
		if err != nil {
			return err
		}
		view = &OrderView{Order: *order}

		items, err := tx.Items().ListByOrder(ctx, id)
		if err != nil {
			return err
		}
		if view.History, err = tx.History().ListByOrder(ctx, id); err != nil {
			return err
		}
		if view.Expenses, err = tx.Expenses().ListByOrder(ctx, id); err != nil {
			return err
		}
		payment, err := tx.Payments().GetByOrder(ctx, id)
		switch {
		case err == nil:
			view.Payment = payment
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		arrived := make(map[int64]models.ActionHistory)
		for _, h := range view.History {
			if h.Code == models.ActionArrivedToDestination && h.OrderItemID != nil {
				arrived[*h.OrderItemID] = h
			}
		}
		now := c.now()
		view.StorageFine = decimal.Zero
		for _, item := range items {
			row := ItemWithFine{OrderItem: item, StorageFine: decimal.Zero}
			if h, ok := arrived[item.ID]; ok && item.Status == models.StatusArrivedToDestination {
				row.StorageFine = StorageFine(h.CreatedAt, now)
			}
			view.StorageFine = view.StorageFine.Add(row.StorageFine)
			view.Items = append(view.Items, row)
		}

		var whIDs []int64
		for _, p := range []*int64{order.StartWarehouseID, order.WarehouseID, order.DestinationWarehouseID} {
			if p != nil {
				whIDs = append(whIDs, *p)
			}
		}
		if len(whIDs) > 0 {
			warehouses, err := tx.Reference().Warehouses(ctx, whIDs)
			if err != nil {
				return err
			}
			byID := make(map[int64]*models.Warehouse, len(warehouses))
			for i := range warehouses {
				byID[warehouses[i].ID] = &warehouses[i]
			}
			view.StartWarehouse = byID[value(order.StartWarehouseID)]
			view.Warehouse = byID[value(order.WarehouseID)]
			view.DestinationWarehouse = byID[value(order.DestinationWarehouseID)]
		}

		directions, err := tx.Reference().Directions(ctx, []int64{order.DirectionID})
		if err != nil {
			return err
		}
		if len(directions) > 0 {
			view.Direction = &directions[0]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}
