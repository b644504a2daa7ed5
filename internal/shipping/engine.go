// Package shipping consolidates order items onto shipment runs and keeps
// shipments, orders and items in step as the cargo moves.
package shipping

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jogardn/cargo-lifecycle/internal/apperr"
	"github.com/jogardn/cargo-lifecycle/internal/auth"
	"github.com/jogardn/cargo-lifecycle/internal/events"
	"github.com/jogardn/cargo-lifecycle/internal/lifecycle"
	"github.com/jogardn/cargo-lifecycle/internal/orders"
	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Deps struct {
	Store      store.Store
	Authorizer auth.Authorizer
	Machine    *lifecycle.Machine
	Codes      orders.CodeGenerator
	Notifier   events.Notifier
	Emitter    *events.Emitter
	Documents  orders.Documents
	Logger     *logrus.Logger
	Now        func() time.Time
}

type Engine struct {
	store      store.Store
	authorizer auth.Authorizer
	machine    *lifecycle.Machine
	codes      orders.CodeGenerator
	notifier   events.Notifier
	emitter    *events.Emitter
	documents  orders.Documents
	logger     *logrus.Logger
	now        func() time.Time
}

func NewEngine(d Deps) *Engine {
	e := &Engine{
		store:      d.Store,
		authorizer: d.Authorizer,
		machine:    d.Machine,
		codes:      d.Codes,
		notifier:   d.Notifier,
		emitter:    d.Emitter,
		documents:  d.Documents,
		logger:     d.Logger,
		now:        d.Now,
	}
	if e.authorizer == nil {
		e.authorizer = auth.AllowAll{}
	}
	if e.codes == nil {
		e.codes = orders.RandomCodes{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

type NewShipment struct {
	Type             models.TransportType `json:"shipping_type"`
	Price            decimal.Decimal      `json:"price"`
	DirectionID      *int64               `json:"direction_id,omitempty"`
	StartWarehouseID *int64               `json:"start_warehouse_id,omitempty"`
	EndWarehouseID   *int64               `json:"end_warehouse_id,omitempty"`
	DriverID         *int64               `json:"driver_id,omitempty"`
	TransportNumber  string               `json:"transport_number"`
	CargoWeight      float64              `json:"cargo_weight"`
	CargoVolume      float64              `json:"cargo_volume"`
	DepartureDate    *time.Time           `json:"departure_date,omitempty"`
	ArrivalDate      *time.Time           `json:"arrival_date,omitempty"`
	InvoiceNumber    string               `json:"invoice_number"`
	StopWarehouseIDs []int64              `json:"stops"`
}

type ShipmentUpdate struct {
	Price           *decimal.Decimal       `json:"price,omitempty"`
	EndWarehouseID  *int64                 `json:"end_warehouse_id,omitempty"`
	TransportNumber *string                `json:"transport_number,omitempty"`
	CargoWeight     *float64               `json:"cargo_weight,omitempty"`
	CargoVolume     *float64               `json:"cargo_volume,omitempty"`
	DepartureDate   *time.Time             `json:"departure_date,omitempty"`
	ArrivalDate     *time.Time             `json:"arrival_date,omitempty"`
	InvoiceNumber   *string                `json:"invoice_number,omitempty"`
	Status          *models.ShipmentStatus `json:"status,omitempty"`
}

// Create opens a shipment in status NEW. Stop ids that name no known
// warehouse are dropped.
func (e *Engine) Create(ctx context.Context, actor auth.Actor, in NewShipment) (*models.Shipment, error) {
	if err := e.require(ctx, actor, auth.CreateShipping); err != nil {
		return nil, err
	}
	if !in.Type.Valid() {
		return nil, apperr.Precondition("invalid_transport_type", "unknown shipping type %q", in.Type)
	}
	if in.Type.Consolidated() && in.DirectionID == nil {
		return nil, apperr.Precondition("direction_required", "%s shipments need a direction", in.Type)
	}
	if in.Price.IsNegative() {
		return nil, apperr.Precondition("invalid_price", "shipment price must not be negative")
	}

	var shipment *models.Shipment
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		if in.DirectionID != nil {
			if _, err := loadDirection(ctx, tx, *in.DirectionID); err != nil {
				return err
			}
		}
		for _, id := range []*int64{in.StartWarehouseID, in.EndWarehouseID} {
			if id == nil {
				continue
			}
			if _, err := tx.Reference().Warehouse(ctx, *id); errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("warehouse", *id)
			} else if err != nil {
				return err
			}
		}
		if in.DriverID != nil {
			if _, err := tx.Reference().User(ctx, *in.DriverID); errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("user", *in.DriverID)
			} else if err != nil {
				return err
			}
		}

		stops, err := e.stops(ctx, tx, in.StopWarehouseIDs)
		if err != nil {
			return err
		}
		shipment = &models.Shipment{
			Type:             in.Type,
			Status:           models.ShipmentNew,
			Price:            in.Price,
			DirectionID:      in.DirectionID,
			StartWarehouseID: in.StartWarehouseID,
			EndWarehouseID:   in.EndWarehouseID,
			DriverID:         in.DriverID,
			TransportNumber:  in.TransportNumber,
			CargoWeight:      in.CargoWeight,
			CargoVolume:      in.CargoVolume,
			DepartureDate:    in.DepartureDate,
			ArrivalDate:      in.ArrivalDate,
			InvoiceNumber:    in.InvoiceNumber,
			Stops:            stops,
		}
		return tx.Shipments().Create(ctx, shipment)
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"shipment_id": shipment.ID,
		"type":        shipment.Type,
		"stops":       len(shipment.Stops),
	}).Info("Shipment created")
	return shipment, nil
}

// stops keeps the known warehouses in the given order, without repeats.
func (e *Engine) stops(ctx context.Context, tx store.Tx, ids []int64) ([]models.ShipmentStop, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	warehouses, err := tx.Reference().Warehouses(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load stop warehouses: %w", err)
	}
	known := make(map[int64]bool, len(warehouses))
	for _, w := range warehouses {
		known[w.ID] = true
	}
	var stops []models.ShipmentStop
	for _, id := range ids {
		if !known[id] {
			e.logger.WithField("warehouse_id", id).Debug("Skipping unknown stop warehouse")
			continue
		}
		known[id] = false
		stops = append(stops, models.ShipmentStop{WarehouseID: id})
	}
	return stops, nil
}

func (e *Engine) Get(ctx context.Context, actor auth.Actor, id int64) (*models.Shipment, error) {
	if err := e.require(ctx, actor, auth.ViewShipping); err != nil {
		return nil, err
	}
	var shipment *models.Shipment
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		shipment, err = loadShipment(ctx, tx, id, false)
		return err
	})
	return shipment, err
}

// List returns one page of shipments. Drivers without the view capability
// only see the runs assigned to them.
func (e *Engine) List(ctx context.Context, actor auth.Actor, filter store.ShipmentFilter) ([]models.Shipment, int, error) {
	if !auth.Has(ctx, e.authorizer, actor, auth.ViewShipping) {
		if err := e.require(ctx, actor, auth.RespondShipping); err != nil {
			return nil, 0, err
		}
		driver := actor.ID
		filter.DriverID = &driver
	}
	var (
		shipments []models.Shipment
		total     int
	)
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		shipments, total, err = tx.Shipments().List(ctx, filter)
		return err
	})
	return shipments, total, err
}

func (e *Engine) Update(ctx context.Context, actor auth.Actor, id int64, u ShipmentUpdate) (*models.Shipment, error) {
	if err := e.require(ctx, actor, auth.UpdateShipping); err != nil {
		return nil, err
	}
	var shipment *models.Shipment
	err := e.run(ctx, actor, func(sc *lifecycle.Scope) error {
		tx := sc.Tx()
		var err error
		if shipment, err = loadShipment(ctx, tx, id, true); err != nil {
			return err
		}
		if shipment.Status.Closed() {
			return apperr.Precondition("shipment_closed", "shipment %d is %s", id, shipment.Status)
		}
		if u.Price != nil {
			shipment.Price = *u.Price
		}
		if u.EndWarehouseID != nil {
			if _, err := tx.Reference().Warehouse(ctx, *u.EndWarehouseID); errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("warehouse", *u.EndWarehouseID)
			} else if err != nil {
				return err
			}
			shipment.EndWarehouseID = u.EndWarehouseID
		}
		if u.TransportNumber != nil {
			shipment.TransportNumber = *u.TransportNumber
		}
		if u.CargoWeight != nil && !shipment.Type.Consolidated() {
			shipment.CargoWeight = *u.CargoWeight
		}
		if u.CargoVolume != nil && !shipment.Type.Consolidated() {
			shipment.CargoVolume = *u.CargoVolume
		}
		if u.DepartureDate != nil {
			shipment.DepartureDate = u.DepartureDate
		}
		if u.ArrivalDate != nil {
			shipment.ArrivalDate = u.ArrivalDate
		}
		if u.InvoiceNumber != nil {
			shipment.InvoiceNumber = *u.InvoiceNumber
		}
		switch {
		case u.Status == nil:
			return tx.Shipments().Update(ctx, shipment)
		case *u.Status == models.ShipmentFinished:
			return e.finish(ctx, sc, shipment)
		default:
			return sc.MoveShipment(ctx, shipment, *u.Status)
		}
	})
	if err != nil {
		return nil, err
	}
	return shipment, nil
}

// Delete removes a shipment that never carried cargo.
func (e *Engine) Delete(ctx context.Context, actor auth.Actor, id int64) error {
	if err := e.require(ctx, actor, auth.DeleteShipping); err != nil {
		return err
	}
	return e.store.WithTx(ctx, func(tx store.Tx) error {
		shipment, err := loadShipment(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if shipment.Status != models.ShipmentNew && shipment.Status != models.ShipmentCanceled {
			return apperr.Precondition("shipment_active", "shipment %d in status %s cannot be deleted", id, shipment.Status)
		}
		loaded, err := tx.Orders().IDsByShipment(ctx, id)
		if err != nil {
			return err
		}
		if len(loaded) > 0 {
			return apperr.Precondition("shipment_loaded", "shipment %d carries %d orders", id, len(loaded))
		}
		return tx.Shipments().Delete(ctx, id)
	})
}

// StartTransit sends a loaded shipment on its way.
func (e *Engine) StartTransit(ctx context.Context, actor auth.Actor, id int64) (*models.Shipment, error) {
	if err := e.require(ctx, actor, auth.UpdateShipping); err != nil {
		return nil, err
	}
	var shipment *models.Shipment
	err := e.run(ctx, actor, func(sc *lifecycle.Scope) error {
		var err error
		if shipment, err = loadShipment(ctx, sc.Tx(), id, true); err != nil {
			return err
		}
		if !shipment.IsLoaded {
			return apperr.Precondition("shipment_not_loaded", "shipment %d has no cargo loaded", id)
		}
		if shipment.DepartureDate == nil {
			now := e.now()
			shipment.DepartureDate = &now
		}
		return sc.MoveShipment(ctx, shipment, models.ShipmentInTransit)
	})
	if err != nil {
		return nil, err
	}
	return shipment, nil
}

func (e *Engine) Finish(ctx context.Context, actor auth.Actor, id int64) (*models.Shipment, error) {
	if err := e.require(ctx, actor, auth.UpdateShipping); err != nil {
		return nil, err
	}
	var shipment *models.Shipment
	err := e.run(ctx, actor, func(sc *lifecycle.Scope) error {
		var err error
		if shipment, err = loadShipment(ctx, sc.Tx(), id, true); err != nil {
			return err
		}
		if shipment.Status == models.ShipmentFinished {
			return apperr.Precondition("shipment_closed", "shipment %d is already finished", id)
		}
		return e.finish(ctx, sc, shipment)
	})
	if err != nil {
		return nil, err
	}
	return shipment, nil
}

// finish closes the shipment and its confirmed driver response. A finished
// shipment is left as it is.
func (e *Engine) finish(ctx context.Context, sc *lifecycle.Scope, shipment *models.Shipment) error {
	if shipment.Status == models.ShipmentFinished {
		return nil
	}
	if shipment.ArrivalDate == nil {
		now := e.now()
		shipment.ArrivalDate = &now
	}
	if err := sc.MoveShipment(ctx, shipment, models.ShipmentFinished); err != nil {
		return err
	}
	confirmed, err := sc.Tx().Responses().ListByShipment(ctx, shipment.ID, models.ResponseConfirmed)
	if err != nil {
		return fmt.Errorf("failed to list responses of shipment %d: %w", shipment.ID, err)
	}
	for i := range confirmed {
		if err := sc.MoveResponse(ctx, &confirmed[i], models.ResponseFinished); err != nil {
			return err
		}
	}
	e.logger.WithField("shipment_id", shipment.ID).Info("Shipment finished")
	return nil
}

// VisitStops marks the warehouse as visited on every open shipment that
// carries the order. A shipment finishes when the warehouse is its end
// warehouse or when no stop is left unvisited.
func (e *Engine) VisitStops(ctx context.Context, sc *lifecycle.Scope, orderID, warehouseID int64) error {
	tx := sc.Tx()
	ids, err := tx.Orders().ShipmentIDs(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to list shipments of order %d: %w", orderID, err)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		shipment, err := loadShipment(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if shipment.Status.Closed() {
			continue
		}
		visited, err := tx.Shipments().MarkStopVisited(ctx, id, warehouseID)
		if err != nil {
			return fmt.Errorf("failed to mark stop of shipment %d: %w", id, err)
		}
		if visited {
			if shipment, err = loadShipment(ctx, tx, id, false); err != nil {
				return err
			}
		}
		atEnd := shipment.EndWarehouseID != nil && *shipment.EndWarehouseID == warehouseID
		if atEnd || shipment.AllStopsVisited() {
			if err := e.finish(ctx, sc, shipment); err != nil {
				return err
			}
		}
	}
	return nil
}

// UpdateCoordinates stores the vehicle position and pushes it to anyone
// tracking the shipment. Only the assigned driver or shipping staff may
// report it.
func (e *Engine) UpdateCoordinates(ctx context.Context, actor auth.Actor, id int64, lat, lon float64) (*models.Shipment, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, apperr.Precondition("invalid_coordinates", "coordinates %f,%f are out of range", lat, lon)
	}
	var shipment *models.Shipment
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if shipment, err = loadShipment(ctx, tx, id, true); err != nil {
			return err
		}
		isDriver := shipment.DriverID != nil && *shipment.DriverID == actor.ID
		if !isDriver {
			if err := e.require(ctx, actor, auth.UpdateShipping); err != nil {
				return err
			}
		}
		if shipment.Status.Closed() {
			return apperr.Precondition("shipment_closed", "shipment %d is %s", id, shipment.Status)
		}
		shipment.Latitude = &lat
		shipment.Longitude = &lon
		return tx.Shipments().Update(ctx, shipment)
	})
	if err != nil {
		return nil, err
	}
	e.emitter.Position(id, lat, lon)
	return shipment, nil
}

func (e *Engine) run(ctx context.Context, actor auth.Actor, fn func(sc *lifecycle.Scope) error) error {
	var sc *lifecycle.Scope
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		sc = e.machine.Begin(tx, actor.ID)
		return fn(sc)
	})
	if err != nil {
		return err
	}
	e.emitter.Emit(ctx, sc.Changes...)
	return nil
}

func (e *Engine) require(ctx context.Context, actor auth.Actor, c auth.Capability) error {
	return auth.Require(ctx, e.authorizer, actor, c)
}

func loadShipment(ctx context.Context, tx store.Tx, id int64, lock bool) (*models.Shipment, error) {
	get := tx.Shipments().Get
	if lock {
		get = tx.Shipments().GetForUpdate
	}
	shipment, err := get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("shipment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load shipment %d: %w", id, err)
	}
	return shipment, nil
}

func loadDirection(ctx context.Context, tx store.Tx, id int64) (*models.Direction, error) {
	direction, err := tx.Reference().Direction(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("direction", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load direction %d: %w", id, err)
	}
	return direction, nil
}
