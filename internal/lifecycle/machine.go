// Package lifecycle applies status transitions to orders, items, shipments
// and driver responses. Every move is checked against the transition
// tables, written through the caller's transaction, logged to the action
// history and collected as an event to publish once the transaction commits.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/jogardn/cargo-lifecycle/internal/apperr"
	"github.com/jogardn/cargo-lifecycle/internal/events"
	"github.com/jogardn/cargo-lifecycle/internal/history"
	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
)

type Machine struct {
	log *history.Log
}

func New(log *history.Log) *Machine {
	return &Machine{log: log}
}

func (m *Machine) History() *history.Log {
	return m.log
}

// Scope is bound to one transaction and one acting user.
type Scope struct {
	m       *Machine
	tx      store.Tx
	actorID int64

	Changes []events.StatusChangedEvent
}

func (m *Machine) Begin(tx store.Tx, actorID int64) *Scope {
	return &Scope{m: m, tx: tx, actorID: actorID}
}

func (s *Scope) Tx() store.Tx {
	return s.tx
}

func (s *Scope) record(entity string, id, orderID int64, from, to string) {
	s.Changes = append(s.Changes, events.StatusChangedEvent{
		Entity:   entity,
		EntityID: id,
		OrderID:  orderID,
		From:     from,
		To:       to,
		ActorID:  s.actorID,
	})
}

// Log appends a history entry without a status change.
func (s *Scope) Log(ctx context.Context, e history.Entry) error {
	_, err := s.m.log.Add(ctx, s.tx, e)
	return err
}

// MoveItem moves one item to a new status. An empty entry code is derived
// from the target status.
func (s *Scope) MoveItem(ctx context.Context, item *models.OrderItem, to models.OrderStatus, e history.Entry) error {
	from := item.Status
	if !from.CanTransitionTo(to) {
		return apperr.Precondition("invalid_transition", "order item %d cannot move from %s to %s", item.ID, from, to)
	}
	item.Status = to
	if err := s.tx.Items().Update(ctx, item); err != nil {
		return fmt.Errorf("failed to update order item %d: %w", item.ID, err)
	}

	e.OrderID = item.OrderID
	e.OrderItemID = item.ID
	if e.Code == "" {
		e.Code = history.CodeFor(to)
	}
	if err := s.Log(ctx, e); err != nil {
		return err
	}
	if from != to {
		s.record(events.EntityOrderItem, item.ID, item.OrderID, string(from), string(to))
	}
	return nil
}

// MoveOrder moves the order itself. Items are not touched.
func (s *Scope) MoveOrder(ctx context.Context, order *models.Order, to models.OrderStatus, e history.Entry) error {
	from := order.Status
	if !from.CanTransitionTo(to) {
		return apperr.Precondition("invalid_transition", "order %d cannot move from %s to %s", order.ID, from, to)
	}
	order.Status = to
	if err := s.tx.Orders().Update(ctx, order); err != nil {
		return fmt.Errorf("failed to update order %d: %w", order.ID, err)
	}

	e.OrderID = order.ID
	e.OrderItemID = 0
	if e.Code == "" {
		e.Code = history.CodeFor(to)
	}
	if err := s.Log(ctx, e); err != nil {
		return err
	}
	if from != to {
		s.record(events.EntityOrder, order.ID, order.ID, string(from), string(to))
	}
	return nil
}

// MoveOrderWithItems moves the order and every item that can follow it.
// Items already in the target status are logged but not rewritten.
func (s *Scope) MoveOrderWithItems(ctx context.Context, order *models.Order, to models.OrderStatus, e history.Entry) error {
	items, err := s.tx.Items().ListByOrder(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to list items of order %d: %w", order.ID, err)
	}
	for i := range items {
		if err := s.MoveItem(ctx, &items[i], to, e); err != nil {
			return err
		}
	}
	return s.MoveOrder(ctx, order, to, e)
}

// AcceptCode picks the history code for an arrival at a warehouse: the
// first acceptance is ACCEPTED_TO_WAREHOUSE, any later one is an
// intermediate stop. itemID 0 checks the order-level log.
func (s *Scope) AcceptCode(ctx context.Context, orderID, itemID int64, prior models.OrderStatus) (models.ActionCode, error) {
	if prior == models.StatusAcceptedToWarehouse {
		return models.ActionArrivedMiddleWarehouse, nil
	}
	var item *int64
	if itemID != 0 {
		item = &itemID
	}
	_, err := s.tx.History().Find(ctx, &orderID, item, models.ActionAcceptedToWarehouse)
	switch {
	case err == nil:
		return models.ActionArrivedMiddleWarehouse, nil
	case errors.Is(err, store.ErrNotFound):
		return models.ActionAcceptedToWarehouse, nil
	default:
		return "", fmt.Errorf("failed to read action history: %w", err)
	}
}

// Promote re-scans every item of the order under a row lock and moves the
// order to status when all items have reached it. It returns false when
// some item lags behind or the order is already there at that warehouse,
// so it is safe to run again. warehouseID 0 leaves the order's warehouses
// untouched.
func (s *Scope) Promote(ctx context.Context, orderID int64, status models.OrderStatus, warehouseID int64, e history.Entry) (bool, error) {
	order, err := s.tx.Orders().GetForUpdate(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return false, apperr.NotFound("order", orderID)
	}
	if err != nil {
		return false, fmt.Errorf("failed to lock order %d: %w", orderID, err)
	}

	items, err := s.tx.Items().ListByOrder(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to list items of order %d: %w", orderID, err)
	}
	if len(items) == 0 {
		return false, nil
	}
	for _, item := range items {
		if item.Status != status {
			return false, nil
		}
	}
	if order.Status == status && (status != models.StatusAcceptedToWarehouse || sameID(order.WarehouseID, warehouseID)) {
		return false, nil
	}

	wh := warehouseID
	if wh != 0 {
		order.WarehouseID = &wh
	}
	switch status {
	case models.StatusAcceptedToWarehouse:
		if order.StartWarehouseID == nil && wh != 0 {
			order.StartWarehouseID = &wh
		}
		if e.Code == "" {
			if e.Code, err = s.AcceptCode(ctx, orderID, 0, order.Status); err != nil {
				return false, err
			}
		}
	case models.StatusArrivedToDestination:
		order.DestinationWarehouseID = &wh
	}
	e.WarehouseID = warehouseID
	if err := s.MoveOrder(ctx, order, status, e); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Scope) MoveShipment(ctx context.Context, shipment *models.Shipment, to models.ShipmentStatus) error {
	from := shipment.Status
	if !from.CanTransitionTo(to) {
		return apperr.Precondition("invalid_transition", "shipment %d cannot move from %s to %s", shipment.ID, from, to)
	}
	shipment.Status = to
	if err := s.tx.Shipments().Update(ctx, shipment); err != nil {
		return fmt.Errorf("failed to update shipment %d: %w", shipment.ID, err)
	}
	if from != to {
		s.Changes = append(s.Changes, events.StatusChangedEvent{
			Entity:     events.EntityShipment,
			EntityID:   shipment.ID,
			ShipmentID: shipment.ID,
			From:       string(from),
			To:         string(to),
			ActorID:    s.actorID,
		})
	}
	return nil
}

func (s *Scope) MoveResponse(ctx context.Context, r *models.ShipmentResponse, to models.ResponseStatus) error {
	from := r.Status
	if !from.CanTransitionTo(to) {
		return apperr.Precondition("invalid_transition", "response %d cannot move from %s to %s", r.ID, from, to)
	}
	r.Status = to
	if err := s.tx.Responses().Update(ctx, r); err != nil {
		return fmt.Errorf("failed to update response %d: %w", r.ID, err)
	}
	s.Changes = append(s.Changes, events.StatusChangedEvent{
		Entity:     events.EntityResponse,
		EntityID:   r.ID,
		ShipmentID: r.ShipmentID,
		From:       string(from),
		To:         string(to),
		ActorID:    s.actorID,
	})
	return nil
}

func sameID(p *int64, id int64) bool {
	return p != nil && *p == id
}
