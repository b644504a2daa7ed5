package shipping

import (
	"context"
	"fmt"
	"sort"

	"github.com/jogardn/cargo-lifecycle/internal/apperr"
	"github.com/jogardn/cargo-lifecycle/internal/auth"
	"github.com/jogardn/cargo-lifecycle/internal/history"
	"github.com/jogardn/cargo-lifecycle/internal/lifecycle"
	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/sirupsen/logrus"
)

type LoadResult struct {
	Shipment *models.Shipment `json:"shipment"`
	Orders   []models.Order   `json:"orders"`
}

// Load puts the items on the shipment. Every order behind the items is
// checked against the shipment's route first; one mismatch rejects the
// whole batch.
func (e *Engine) Load(ctx context.Context, actor auth.Actor, shipmentID int64, itemIDs []int64) (*LoadResult, error) {
	if err := e.require(ctx, actor, auth.UpdateShipping); err != nil {
		return nil, err
	}
	if len(itemIDs) == 0 {
		return nil, apperr.Precondition("no_items", "nothing to load")
	}

	result := &LoadResult{}
	err := e.run(ctx, actor, func(sc *lifecycle.Scope) error {
		tx := sc.Tx()
		shipment, err := loadShipment(ctx, tx, shipmentID, true)
		if err != nil {
			return err
		}
		if shipment.Status != models.ShipmentNew && shipment.Status != models.ShipmentWaitingDriver {
			return apperr.Precondition("shipment_departed", "shipment %d in status %s cannot take cargo", shipmentID, shipment.Status)
		}

		items, err := tx.Items().GetMany(ctx, itemIDs)
		if err != nil {
			return fmt.Errorf("failed to load order items: %w", err)
		}
		byOrder := make(map[int64][]models.OrderItem)
		found := make(map[int64]bool, len(items))
		for _, item := range items {
			found[item.ID] = true
			byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
		}
		for _, id := range itemIDs {
			if !found[id] {
				return apperr.NotFound("order_item", id)
			}
		}

		orderIDs := make([]int64, 0, len(byOrder))
		for id := range byOrder {
			orderIDs = append(orderIDs, id)
		}
		sort.Slice(orderIDs, func(i, j int) bool { return orderIDs[i] < orderIDs[j] })

		locked := make([]*models.Order, 0, len(orderIDs))
		for _, id := range orderIDs {
			order, err := tx.Orders().GetForUpdate(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to lock order %d: %w", id, err)
			}
			locked = append(locked, order)
		}

		route, err := e.router(ctx, tx, shipment, locked)
		if err != nil {
			return err
		}
		for _, order := range locked {
			if err := route.check(order); err != nil {
				return err
			}
			for _, item := range byOrder[order.ID] {
				if !item.Status.CanTransitionTo(models.StatusInTransit) {
					return apperr.Precondition("item_not_loadable", "order item %d in status %s cannot be loaded", item.ID, item.Status)
				}
			}
		}

		shipmentMoves := false
		for _, order := range locked {
			full, err := e.loadOrder(ctx, sc, shipment, order, byOrder[order.ID], route.entry(order))
			if err != nil {
				return err
			}
			if full && shipment.Type.Consolidated() {
				shipmentMoves = true
			}
			result.Orders = append(result.Orders, *order)
		}

		if shipment.Type.Consolidated() {
			if err := recomputeCargo(ctx, tx, shipment); err != nil {
				return err
			}
		}
		shipment.IsLoaded = true
		result.Shipment = shipment
		if shipmentMoves {
			if shipment.DepartureDate == nil {
				now := e.now()
				shipment.DepartureDate = &now
			}
			return sc.MoveShipment(ctx, shipment, models.ShipmentInTransit)
		}
		return tx.Shipments().Update(ctx, shipment)
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"shipment_id": shipmentID,
		"items":       len(itemIDs),
		"orders":      len(result.Orders),
		"status":      result.Shipment.Status,
	}).Info("Cargo loaded")
	return result, nil
}

// loadOrder moves the order's batch into transit and reports whether the
// whole order is now on the road.
func (e *Engine) loadOrder(ctx context.Context, sc *lifecycle.Scope, shipment *models.Shipment, order *models.Order, batch []models.OrderItem, entry history.Entry) (bool, error) {
	tx := sc.Tx()
	for i := range batch {
		item := &batch[i]
		item.IsLoaded = true
		item.WarehouseID = nil
		if err := sc.MoveItem(ctx, item, models.StatusInTransit, entry); err != nil {
			return false, err
		}
		if err := tx.Items().AttachShipment(ctx, item.ID, shipment.ID); err != nil {
			return false, fmt.Errorf("failed to link item %d to shipment %d: %w", item.ID, shipment.ID, err)
		}
	}
	if err := tx.Orders().AttachShipment(ctx, order.ID, shipment.ID); err != nil {
		return false, fmt.Errorf("failed to link order %d to shipment %d: %w", order.ID, shipment.ID, err)
	}

	all, err := tx.Items().ListByOrder(ctx, order.ID)
	if err != nil {
		return false, fmt.Errorf("failed to list items of order %d: %w", order.ID, err)
	}
	full := true
	for _, item := range all {
		if item.Status != models.StatusInTransit {
			full = false
			break
		}
	}
	if full {
		order.WarehouseID = nil
		return true, sc.MoveOrder(ctx, order, models.StatusInTransit, entry)
	}
	return false, sc.MoveOrder(ctx, order, models.StatusPartiallyInTransit, entry)
}

// recomputeCargo sums the declared weight and volume of every order on the
// shipment.
func recomputeCargo(ctx context.Context, tx store.Tx, shipment *models.Shipment) error {
	ids, err := tx.Orders().IDsByShipment(ctx, shipment.ID)
	if err != nil {
		return fmt.Errorf("failed to list orders of shipment %d: %w", shipment.ID, err)
	}
	loaded, err := tx.Orders().GetMany(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load orders of shipment %d: %w", shipment.ID, err)
	}
	shipment.CargoWeight, shipment.CargoVolume = 0, 0
	for _, o := range loaded {
		shipment.CargoWeight += o.TotalWeight
		shipment.CargoVolume += o.TotalVolume
	}
	return nil
}

// router decides whether an order may ride the shipment.
type router struct {
	shipment   *models.Shipment
	arrival    int64
	directions map[int64]models.Direction
}

func (e *Engine) router(ctx context.Context, tx store.Tx, shipment *models.Shipment, locked []*models.Order) (*router, error) {
	ids := make([]int64, 0, len(locked)+1)
	for _, o := range locked {
		ids = append(ids, o.DirectionID)
	}
	if shipment.DirectionID != nil {
		ids = append(ids, *shipment.DirectionID)
	}
	directions, err := tx.Reference().Directions(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load directions: %w", err)
	}
	r := &router{shipment: shipment, directions: make(map[int64]models.Direction, len(directions))}
	for _, d := range directions {
		r.directions[d.ID] = d
	}
	if shipment.Type.Consolidated() {
		if shipment.DirectionID == nil {
			return nil, apperr.Precondition("direction_required", "shipment %d has no direction", shipment.ID)
		}
		d, ok := r.directions[*shipment.DirectionID]
		if !ok {
			return nil, apperr.NotFound("direction", *shipment.DirectionID)
		}
		r.arrival = d.ArrivalCityID
	}
	return r, nil
}

func (r *router) check(order *models.Order) error {
	if r.shipment.Type.Consolidated() {
		d, ok := r.directions[order.DirectionID]
		if !ok || d.ArrivalCityID != r.arrival {
			return apperr.Precondition("routing_mismatch", "order %d does not arrive in the shipment's arrival city", order.ID)
		}
		return nil
	}
	if order.DestinationWarehouseID == nil || !r.shipment.OnRoute(*order.DestinationWarehouseID) {
		return apperr.Precondition("routing_mismatch", "order %d is not routed to any warehouse of shipment %d", order.ID, r.shipment.ID)
	}
	return nil
}

func (r *router) entry(order *models.Order) history.Entry {
	d := r.directions[order.DirectionID]
	return history.Entry{
		DepartureCityID: d.DepartureCityID,
		ArrivalCityID:   d.ArrivalCityID,
	}
}
