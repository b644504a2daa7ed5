// Package orders owns the order aggregate: creation, edits, cancellation,
// payments, delivery and the per-item warehouse flow that drives the
// order's aggregate status.
package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jogardn/cargo-lifecycle/internal/apperr"
	"github.com/jogardn/cargo-lifecycle/internal/auth"
	"github.com/jogardn/cargo-lifecycle/internal/events"
	"github.com/jogardn/cargo-lifecycle/internal/history"
	"github.com/jogardn/cargo-lifecycle/internal/lifecycle"
	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/internal/tariff"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type NewPayment struct {
	Amount      decimal.Decimal    `json:"amount"`
	PaymentType models.PaymentType `json:"payment_type"`
	PayerType   models.PayerType   `json:"payer_type"`
	BIN         string             `json:"bin,omitempty"`
	Comment     string             `json:"comment,omitempty"`
}

type NewItem struct {
	ScanCode string `json:"scan_code"`
	Photo    string `json:"photo,omitempty"`
}

type NewOrder struct {
	SenderName      string              `json:"sender_name"`
	SenderPhone     string              `json:"sender_phone"`
	SenderAddress   string              `json:"sender_address"`
	ReceiverName    string              `json:"receiver_name"`
	ReceiverPhone   string              `json:"receiver_phone"`
	ReceiverAddress string              `json:"receiver_address"`
	ClientID        *int64              `json:"client_id,omitempty"`
	Description     string              `json:"description"`
	TotalWeight     float64             `json:"total_weight"`
	TotalVolume     float64             `json:"total_volume"`
	Insurance       decimal.Decimal     `json:"insurance"`
	CargoPickupType models.DeliveryType `json:"cargo_pickup_type"`
	DeliveryType    models.DeliveryType `json:"delivery_type"`
	DirectionID     int64               `json:"direction_id"`
	DistrictID      *int64              `json:"district_id,omitempty"`
	// DestinationWarehouseID is where the order is routed; arrival
	// overwrites it with the warehouse that actually received the cargo.
	DestinationWarehouseID *int64     `json:"destination_warehouse_id,omitempty"`
	ExpenseIDs             []int64    `json:"expenses"`
	Payment                NewPayment `json:"payment"`
	Items                  []NewItem  `json:"items"`
}

// OrderUpdate is a patch; nil fields are left alone.
type OrderUpdate struct {
	SenderName             *string              `json:"sender_name,omitempty"`
	SenderPhone            *string              `json:"sender_phone,omitempty"`
	SenderAddress          *string              `json:"sender_address,omitempty"`
	ReceiverName           *string              `json:"receiver_name,omitempty"`
	ReceiverPhone          *string              `json:"receiver_phone,omitempty"`
	ReceiverAddress        *string              `json:"receiver_address,omitempty"`
	Description            *string              `json:"description,omitempty"`
	TotalWeight            *float64             `json:"total_weight,omitempty"`
	TotalVolume            *float64             `json:"total_volume,omitempty"`
	Insurance              *decimal.Decimal     `json:"insurance,omitempty"`
	CargoPickupType        *models.DeliveryType `json:"cargo_pickup_type,omitempty"`
	DeliveryType           *models.DeliveryType `json:"delivery_type,omitempty"`
	DirectionID            *int64               `json:"direction_id,omitempty"`
	DistrictID             *int64               `json:"district_id,omitempty"`
	CourierID              *int64               `json:"courier_id,omitempty"`
	DestinationWarehouseID *int64               `json:"destination_warehouse_id,omitempty"`
	ExpenseIDs             *[]int64             `json:"expenses,omitempty"`
}

type QuoteRequest struct {
	tariff.Request
	ExpenseIDs []int64 `json:"expenses"`
}

type Controller struct {
	base
	ids         IDGenerator
	codes       CodeGenerator
	notifier    events.Notifier
	documents   Documents
	calculator  tariff.Calculator
	trackingURL string
}

func NewController(d Deps) *Controller {
	d = d.withDefaults()
	return &Controller{
		base:        newBase(d),
		ids:         d.IDs,
		codes:       d.Codes,
		notifier:    d.Notifier,
		documents:   d.Documents,
		trackingURL: d.TrackingURL,
	}
}

func (c *Controller) CreateOrder(ctx context.Context, actor auth.Actor, in NewOrder) (*models.Order, error) {
	if err := c.require(ctx, actor, auth.CreateOrder); err != nil {
		return nil, err
	}
	if in.TotalWeight <= 0 || in.TotalVolume < 0 {
		return nil, apperr.Precondition("invalid_size", "declared weight must be positive and volume not negative")
	}
	if in.CargoPickupType == "" {
		in.CargoPickupType = models.DeliveryTypePickup
	}
	if in.DeliveryType == "" {
		in.DeliveryType = models.DeliveryTypePickup
	}
	if !in.CargoPickupType.Valid() || !in.DeliveryType.Valid() {
		return nil, apperr.Precondition("invalid_delivery_type", "unknown pickup or delivery type")
	}

	var order *models.Order
	err := c.run(ctx, actor, func(sc *lifecycle.Scope) error {
		tx := sc.Tx()
		if _, err := tx.Reference().Direction(ctx, in.DirectionID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("direction", in.DirectionID)
			}
			return err
		}

		id, err := c.ids.Next(ctx, func(id int64) (bool, error) {
			return tx.Orders().Exists(ctx, id)
		})
		if err != nil {
			return apperr.Internal("failed to allocate order id", err)
		}

		if in.DestinationWarehouseID != nil {
			if err := requireWarehouse(ctx, tx, *in.DestinationWarehouseID); err != nil {
				return err
			}
		}

		expenses, total, err := expensesFor(ctx, tx, in.ExpenseIDs)
		if err != nil {
			return err
		}

		order = &models.Order{
			ID:              id,
			SenderName:      in.SenderName,
			SenderPhone:     in.SenderPhone,
			SenderAddress:   in.SenderAddress,
			ReceiverName:    in.ReceiverName,
			ReceiverPhone:   in.ReceiverPhone,
			ReceiverAddress: in.ReceiverAddress,
			ClientID:        in.ClientID,
			Description:     in.Description,
			TotalWeight:     in.TotalWeight,
			TotalVolume:     in.TotalVolume,
			Insurance:       in.Insurance,
			Status:          models.StatusCreated,
			CargoPickupType: in.CargoPickupType,
			DeliveryType:    in.DeliveryType,
			DirectionID:     in.DirectionID,
			DistrictID:      in.DistrictID,
			ExpensesPrice:   total,

			DestinationWarehouseID: in.DestinationWarehouseID,
		}
		if err := tx.Orders().Create(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		if err := tx.Expenses().SetForOrder(ctx, order.ID, idsOf(expenses)); err != nil {
			return fmt.Errorf("failed to attach expenses: %w", err)
		}

		amount := in.Payment.Amount
		if amount.IsZero() {
			quote, err := c.calculator.Calculate(ctx, tx.Tariffs(), requestFor(order))
			if err != nil {
				return err
			}
			amount = quote.Total
		}
		payment := &models.Payment{
			OrderID:     order.ID,
			Amount:      amount,
			Currency:    models.DefaultCurrency,
			Status:      models.PaymentNotPaid,
			PaymentType: in.Payment.PaymentType,
			PayerType:   in.Payment.PayerType,
			BIN:         in.Payment.BIN,
			Comment:     in.Payment.Comment,
		}
		if payment.PaymentType == "" {
			payment.PaymentType = models.PaymentCash
		}
		if payment.PayerType == "" {
			payment.PayerType = models.PayerIndividual
		}
		if err := tx.Payments().Create(ctx, payment); err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}

		created := history.Entry{Code: models.ActionOrderCreated, ClientID: value(in.ClientID)}
		if err := sc.Log(ctx, withOrder(created, order.ID)); err != nil {
			return err
		}
		for _, ni := range in.Items {
			item := &models.OrderItem{OrderID: order.ID, Status: models.StatusCreated, ScanCode: ni.ScanCode, Photo: ni.Photo}
			if err := createItem(ctx, tx, item); err != nil {
				return err
			}
			created.OrderItemID = item.ID
			if err := sc.Log(ctx, withOrder(created, order.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"direction_id": order.DirectionID,
		"items":        len(in.Items),
		"actor_id":     actor.ID,
	}).Info("Order created")
	return order, nil
}

func (c *Controller) ListOrders(ctx context.Context, actor auth.Actor, filter store.OrderFilter, group string) ([]models.Order, int, error) {
	if !auth.Has(ctx, c.authorizer, actor, auth.ViewOrders) {
		// Couriers without the general view see only their own orders.
		if err := c.require(ctx, actor, auth.DeliverOrder); err != nil {
			return nil, 0, err
		}
		id := actor.ID
		filter.CourierID = &id
	}
	if group != "" {
		statuses, ok := models.StatusGroups[group]
		if !ok {
			return nil, 0, apperr.Precondition("unknown_status_group", "unknown status group %q", group)
		}
		filter.Statuses = statuses
	}

	var (
		rows  []models.Order
		total int
	)
	err := c.store.WithTx(ctx, func(tx store.Tx) error {
		if filter.WarehouseID == nil {
			user, err := tx.Reference().User(ctx, actor.ID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if user != nil && user.WarehouseID != nil {
				filter.WarehouseID = user.WarehouseID
			}
		}
		var err error
		rows, total, err = tx.Orders().List(ctx, filter)
		return err
	})
	return rows, total, err
}

// UpdateOrder applies the patch and, for orders nobody has picked up yet,
// moves them one step forward depending on who is editing.
func (c *Controller) UpdateOrder(ctx context.Context, actor auth.Actor, id int64, u OrderUpdate) (*models.Order, error) {
	if err := c.require(ctx, actor, auth.UpdateOrder); err != nil {
		return nil, err
	}
	isCourier := auth.Has(ctx, c.authorizer, actor, auth.DeliverOrder)
	isWarehouse := auth.Has(ctx, c.authorizer, actor, auth.AcceptOrderToWarehouse)

	var (
		order       *models.Order
		notifyPhone string
	)
	err := c.run(ctx, actor, func(sc *lifecycle.Scope) error {
		tx := sc.Tx()
		var err error
		if order, err = lockOrder(ctx, tx, id); err != nil {
			return err
		}
		if order.Status.Terminal() {
			return apperr.Precondition("order_closed", "order %d is %s and cannot be edited", order.ID, order.Status)
		}
		if err := applyUpdate(ctx, tx, order, u); err != nil {
			return err
		}
		if err := tx.Orders().Update(ctx, order); err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}

		switch order.Status {
		case models.StatusCreated, models.StatusClientDeliveringToWarehouse, models.StatusAssignedToCourier:
		default:
			return nil
		}

		switch {
		case isCourier:
			if !order.Status.CanTransitionTo(models.StatusCourierDeliveringToWarehouse) {
				return nil
			}
			courier := actor.ID
			order.CourierID = &courier
			return moveWithItems(ctx, sc, order, models.StatusCourierDeliveringToWarehouse, history.Entry{CourierID: actor.ID})
		case isWarehouse:
			user, err := loadUser(ctx, tx, actor.ID)
			if err != nil {
				return err
			}
			if user.WarehouseID == nil {
				return nil
			}
			return acceptOrder(ctx, sc, order, *user.WarehouseID, actor.ID)
		case order.CargoPickupType == models.DeliveryTypePickup:
			if !order.Status.CanTransitionTo(models.StatusClientDeliveringToWarehouse) {
				return nil
			}
			return moveWithItems(ctx, sc, order, models.StatusClientDeliveringToWarehouse, history.Entry{ClientID: value(order.ClientID)})
		default:
			if !order.Status.CanTransitionTo(models.StatusAssignedToCourier) {
				return nil
			}
			if err := moveWithItems(ctx, sc, order, models.StatusAssignedToCourier, history.Entry{ManagerID: actor.ID}); err != nil {
				return err
			}
			if order.CourierID != nil {
				courier, err := loadUser(ctx, tx, *order.CourierID)
				if err != nil {
					return err
				}
				notifyPhone = courier.Phone
			}
			return nil
		}
	})
	if err != nil {
		return nil, err
	}

	if notifyPhone != "" {
		c.notify(ctx, events.Notification{
			Channel:   events.ChannelPush,
			Recipient: notifyPhone,
			Template:  events.TemplateCourierNewOrder,
			Params:    map[string]string{"order_id": fmt.Sprint(order.ID), "address": order.SenderAddress},
		})
	}
	return order, nil
}

func (c *Controller) Cancel(ctx context.Context, actor auth.Actor, id int64, reason string) (*models.Order, error) {
	if err := c.require(ctx, actor, auth.CancelOrder); err != nil {
		return nil, err
	}
	var order *models.Order
	err := c.run(ctx, actor, func(sc *lifecycle.Scope) error {
		var err error
		if order, err = lockOrder(ctx, sc.Tx(), id); err != nil {
			return err
		}
		items, err := sc.Tx().Items().ListByOrder(ctx, id)
		if err != nil {
			return err
		}
		entry := history.Entry{ManagerID: actor.ID}
		for i := range items {
			if err := sc.CancelItem(ctx, &items[i], reason, entry); err != nil {
				return err
			}
		}
		return sc.CancelOrder(ctx, order, reason, entry)
	})
	if err != nil {
		return nil, err
	}
	c.logger.WithFields(logrus.Fields{"order_id": id, "reason": reason}).Info("Order cancelled")
	return order, nil
}

func (c *Controller) Resume(ctx context.Context, actor auth.Actor, id int64) (*models.Order, error) {
	if err := c.require(ctx, actor, auth.CancelOrder); err != nil {
		return nil, err
	}
	var order *models.Order
	err := c.run(ctx, actor, func(sc *lifecycle.Scope) error {
		var err error
		if order, err = lockOrder(ctx, sc.Tx(), id); err != nil {
			return err
		}
		if err := sc.ResumeOrder(ctx, order, history.Entry{ManagerID: actor.ID}); err != nil {
			return err
		}
		items, err := sc.Tx().Items().ListByOrder(ctx, id)
		if err != nil {
			return err
		}
		for i := range items {
			if err := sc.ResumeItem(ctx, &items[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (c *Controller) MarkCourierDelivering(ctx context.Context, actor auth.Actor, id int64) (*models.Order, error) {
	return c.transition(ctx, actor, id, auth.DeliverOrder, func(ctx context.Context, sc *lifecycle.Scope, order *models.Order) error {
		courier := actor.ID
		order.CourierID = &courier
		return moveWithItems(ctx, sc, order, models.StatusCourierDeliveringToWarehouse, history.Entry{CourierID: actor.ID})
	})
}

func (c *Controller) MarkAcceptedToWarehouse(ctx context.Context, actor auth.Actor, id, warehouseID int64) (*models.Order, error) {
	return c.transition(ctx, actor, id, auth.AcceptOrderToWarehouse, func(ctx context.Context, sc *lifecycle.Scope, order *models.Order) error {
		if err := requireWarehouse(ctx, sc.Tx(), warehouseID); err != nil {
			return err
		}
		return acceptOrder(ctx, sc, order, warehouseID, actor.ID)
	})
}

func (c *Controller) MarkInTransit(ctx context.Context, actor auth.Actor, id int64) (*models.Order, error) {
	return c.transition(ctx, actor, id, auth.UpdateOrderStatus, func(ctx context.Context, sc *lifecycle.Scope, order *models.Order) error {
		entry, err := routeEntry(ctx, sc.Tx(), order.DirectionID)
		if err != nil {
			return err
		}
		order.WarehouseID = nil
		return moveWithItems(ctx, sc, order, models.StatusInTransit, entry)
	})
}

// MarkPartiallyInTransit moves only the order; its items keep their own
// statuses.
func (c *Controller) MarkPartiallyInTransit(ctx context.Context, actor auth.Actor, id int64) (*models.Order, error) {
	return c.transition(ctx, actor, id, auth.UpdateOrderStatus, func(ctx context.Context, sc *lifecycle.Scope, order *models.Order) error {
		return sc.MoveOrder(ctx, order, models.StatusPartiallyInTransit, history.Entry{})
	})
}

func (c *Controller) MarkDeliveringToRecipient(ctx context.Context, actor auth.Actor, id int64) (*models.Order, error) {
	return c.transition(ctx, actor, id, auth.DeliverOrder, func(ctx context.Context, sc *lifecycle.Scope, order *models.Order) error {
		courier := actor.ID
		order.CourierID = &courier
		return moveWithItems(ctx, sc, order, models.StatusDeliveringToRecipient, history.Entry{CourierID: actor.ID})
	})
}

func (c *Controller) MarkDelivered(ctx context.Context, actor auth.Actor, id int64) (*models.Order, error) {
	return c.transition(ctx, actor, id, auth.DeliverOrder, func(ctx context.Context, sc *lifecycle.Scope, order *models.Order) error {
		return moveWithItems(ctx, sc, order, models.StatusDelivered, deliveredEntry(order))
	})
}

// MarkNotDelivered closes the order and every item with the reason, one
// history row per item.
func (c *Controller) MarkNotDelivered(ctx context.Context, actor auth.Actor, id int64, reason string) (*models.Order, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperr.Precondition("reason_required", "a reason is required to mark order %d as not delivered", id)
	}
	return c.transition(ctx, actor, id, auth.DeliverOrder, func(ctx context.Context, sc *lifecycle.Scope, order *models.Order) error {
		order.NotDeliveredReason = reason
		return moveWithItems(ctx, sc, order, models.StatusNotDelivered, history.Entry{CourierID: value(order.CourierID), Note: reason})
	})
}

// AssignCourierDelivery hands a courier a batch of items. Orders cannot be
// split between couriers, so every item of each referenced order must be
// in the batch.
func (c *Controller) AssignCourierDelivery(ctx context.Context, actor auth.Actor, itemIDs []int64) ([]models.Order, error) {
	if err := c.require(ctx, actor, auth.DeliverOrder); err != nil {
		return nil, err
	}
	if len(itemIDs) == 0 {
		return nil, apperr.Precondition("empty_batch", "no items given")
	}

	var updated []models.Order
	err := c.run(ctx, actor, func(sc *lifecycle.Scope) error {
		tx := sc.Tx()
		items, err := tx.Items().GetMany(ctx, itemIDs)
		if err != nil {
			return err
		}
		requested := make(map[int64]bool, len(items))
		byOrder := make(map[int64]bool)
		for _, item := range items {
			requested[item.ID] = true
			byOrder[item.OrderID] = true
		}
		for _, id := range itemIDs {
			if !requested[id] {
				return apperr.NotFound("order_item", id)
			}
		}

		orderIDs := make([]int64, 0, len(byOrder))
		for id := range byOrder {
			orderIDs = append(orderIDs, id)
		}
		sort.Slice(orderIDs, func(i, j int) bool { return orderIDs[i] < orderIDs[j] })

		for _, orderID := range orderIDs {
			order, err := lockOrder(ctx, tx, orderID)
			if err != nil {
				return err
			}
			siblings, err := tx.Items().ListByOrder(ctx, orderID)
			if err != nil {
				return err
			}
			for _, sibling := range siblings {
				if !requested[sibling.ID] {
					return apperr.Precondition("not_all_items_loaded", "not all items of order %d are in the batch", orderID)
				}
			}

			courier := actor.ID
			order.CourierID = &courier
			switch order.Status {
			case models.StatusAcceptedToWarehouse:
				err = moveWithItems(ctx, sc, order, models.StatusCourierDeliveringToWarehouse, history.Entry{CourierID: actor.ID})
			case models.StatusArrivedToDestination:
				err = moveWithItems(ctx, sc, order, models.StatusDeliveringToRecipient, history.Entry{CourierID: actor.ID})
			default:
				err = apperr.Precondition("invalid_transition", "order %d in status %s cannot be handed to a courier", orderID, order.Status)
			}
			if err != nil {
				return err
			}
			updated = append(updated, *order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (c *Controller) Quote(ctx context.Context, req QuoteRequest) (*tariff.Breakdown, error) {
	var out *tariff.Breakdown
	err := c.store.WithTx(ctx, func(tx store.Tx) error {
		_, total, err := expensesFor(ctx, tx, req.ExpenseIDs)
		if err != nil {
			return err
		}
		r := req.Request
		r.Expenses = r.Expenses.Add(total)
		out, err = c.calculator.Calculate(ctx, tx.Tariffs(), r)
		return err
	})
	return out, err
}

func (c *Controller) ExpensesTotal(ctx context.Context, ids []int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := c.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		_, total, err = expensesFor(ctx, tx, ids)
		return err
	})
	return total, err
}

type orderStep func(ctx context.Context, sc *lifecycle.Scope, order *models.Order) error

func (c *Controller) transition(ctx context.Context, actor auth.Actor, id int64, capability auth.Capability, step orderStep) (*models.Order, error) {
	if err := c.require(ctx, actor, capability); err != nil {
		return nil, err
	}
	var order *models.Order
	err := c.run(ctx, actor, func(sc *lifecycle.Scope) error {
		var err error
		if order, err = lockOrder(ctx, sc.Tx(), id); err != nil {
			return err
		}
		return step(ctx, sc, order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (c *Controller) notify(ctx context.Context, n events.Notification) {
	if c.notifier == nil || n.Recipient == "" {
		return
	}
	if err := c.notifier.Notify(ctx, n); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"template":  n.Template,
			"recipient": n.Recipient,
		}).Error("Failed to queue notification")
	}
}

// moveWithItems moves the order and all of its items to status. Each item
// gets its own history row.
func moveWithItems(ctx context.Context, sc *lifecycle.Scope, order *models.Order, to models.OrderStatus, e history.Entry) error {
	items, err := sc.Tx().Items().ListByOrder(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to list items of order %d: %w", order.ID, err)
	}
	for i := range items {
		if to == models.StatusInTransit || to.Terminal() {
			items[i].WarehouseID = nil
		}
		if err := sc.MoveItem(ctx, &items[i], to, e); err != nil {
			return err
		}
	}
	return sc.MoveOrder(ctx, order, to, e)
}

// acceptOrder accepts the order and every item at one warehouse.
func acceptOrder(ctx context.Context, sc *lifecycle.Scope, order *models.Order, warehouseID, managerID int64) error {
	items, err := sc.Tx().Items().ListByOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	for i := range items {
		code, err := sc.AcceptCode(ctx, order.ID, items[i].ID, items[i].Status)
		if err != nil {
			return err
		}
		wh := warehouseID
		items[i].WarehouseID = &wh
		items[i].IsLoaded = false
		entry := history.Entry{Code: code, WarehouseID: warehouseID, WarehouseManagerID: managerID}
		if err := sc.MoveItem(ctx, &items[i], models.StatusAcceptedToWarehouse, entry); err != nil {
			return err
		}
	}
	code, err := sc.AcceptCode(ctx, order.ID, 0, order.Status)
	if err != nil {
		return err
	}
	wh := warehouseID
	order.WarehouseID = &wh
	if order.StartWarehouseID == nil {
		order.StartWarehouseID = &wh
	}
	return sc.MoveOrder(ctx, order, models.StatusAcceptedToWarehouse, history.Entry{
		Code:               code,
		WarehouseID:        warehouseID,
		WarehouseManagerID: managerID,
	})
}

func routeEntry(ctx context.Context, tx store.Tx, directionID int64) (history.Entry, error) {
	dir, err := tx.Reference().Direction(ctx, directionID)
	if errors.Is(err, store.ErrNotFound) {
		return history.Entry{}, nil
	}
	if err != nil {
		return history.Entry{}, err
	}
	return history.Entry{DepartureCityID: dir.DepartureCityID, ArrivalCityID: dir.ArrivalCityID}, nil
}

func deliveredEntry(order *models.Order) history.Entry {
	if order.DeliveryType == models.DeliveryTypeDelivery {
		return history.Entry{CourierID: value(order.CourierID)}
	}
	return history.Entry{}
}

func applyUpdate(ctx context.Context, tx store.Tx, o *models.Order, u OrderUpdate) error {
	setString(&o.SenderName, u.SenderName)
	setString(&o.SenderPhone, u.SenderPhone)
	setString(&o.SenderAddress, u.SenderAddress)
	setString(&o.ReceiverName, u.ReceiverName)
	setString(&o.ReceiverPhone, u.ReceiverPhone)
	setString(&o.ReceiverAddress, u.ReceiverAddress)
	setString(&o.Description, u.Description)
	if u.TotalWeight != nil {
		if *u.TotalWeight <= 0 {
			return apperr.Precondition("invalid_size", "declared weight must be positive")
		}
		o.TotalWeight = *u.TotalWeight
	}
	if u.TotalVolume != nil {
		o.TotalVolume = *u.TotalVolume
	}
	if u.Insurance != nil {
		o.Insurance = *u.Insurance
	}
	if u.CargoPickupType != nil {
		if !u.CargoPickupType.Valid() {
			return apperr.Precondition("invalid_delivery_type", "unknown pickup type %q", *u.CargoPickupType)
		}
		o.CargoPickupType = *u.CargoPickupType
	}
	if u.DeliveryType != nil {
		if !u.DeliveryType.Valid() {
			return apperr.Precondition("invalid_delivery_type", "unknown delivery type %q", *u.DeliveryType)
		}
		o.DeliveryType = *u.DeliveryType
	}
	if u.DirectionID != nil {
		if _, err := tx.Reference().Direction(ctx, *u.DirectionID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("direction", *u.DirectionID)
			}
			return err
		}
		o.DirectionID = *u.DirectionID
	}
	if u.DistrictID != nil {
		o.DistrictID = u.DistrictID
	}
	if u.DestinationWarehouseID != nil {
		if err := requireWarehouse(ctx, tx, *u.DestinationWarehouseID); err != nil {
			return err
		}
		o.DestinationWarehouseID = u.DestinationWarehouseID
	}
	if u.CourierID != nil {
		if _, err := loadUser(ctx, tx, *u.CourierID); err != nil {
			return err
		}
		o.CourierID = u.CourierID
	}
	if u.ExpenseIDs != nil {
		expenses, total, err := expensesFor(ctx, tx, *u.ExpenseIDs)
		if err != nil {
			return err
		}
		if err := tx.Expenses().SetForOrder(ctx, o.ID, idsOf(expenses)); err != nil {
			return err
		}
		o.ExpensesPrice = total
	}
	return nil
}

// expensesFor skips unknown ids.
func expensesFor(ctx context.Context, tx store.Tx, ids []int64) ([]models.Expense, decimal.Decimal, error) {
	if len(ids) == 0 {
		return nil, decimal.Zero, nil
	}
	expenses, err := tx.Expenses().GetMany(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to load expenses: %w", err)
	}
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Price)
	}
	return expenses, total, nil
}

func requestFor(o *models.Order) tariff.Request {
	return tariff.Request{
		DirectionID:  o.DirectionID,
		Weight:       o.TotalWeight,
		Volume:       o.TotalVolume,
		PickupType:   o.CargoPickupType,
		DeliveryType: o.DeliveryType,
		Expenses:     o.ExpensesPrice,
	}
}

func createItem(ctx context.Context, tx store.Tx, item *models.OrderItem) error {
	if strings.TrimSpace(item.ScanCode) == "" {
		return apperr.Precondition("scan_code_required", "order item needs a scan code")
	}
	err := tx.Items().Create(ctx, item)
	if errors.Is(err, store.ErrDuplicate) {
		return apperr.Conflict("duplicate_scan_code", "scan code %q is already used", item.ScanCode)
	}
	if err != nil {
		return fmt.Errorf("failed to create order item: %w", err)
	}
	return nil
}

func withOrder(e history.Entry, orderID int64) history.Entry {
	e.OrderID = orderID
	return e
}

func idsOf(expenses []models.Expense) []int64 {
	ids := make([]int64, len(expenses))
	for i, e := range expenses {
		ids[i] = e.ID
	}
	return ids
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
