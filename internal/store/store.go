// Package store defines the persistence boundary of the cargo service.
// Every mutating operation runs inside one Tx; repositories are only
// reachable through it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate key")
)

type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}

type Tx interface {
	Orders() OrderRepository
	Items() ItemRepository
	Payments() PaymentRepository
	Expenses() ExpenseRepository
	Shipments() ShipmentRepository
	Responses() ResponseRepository
	Tariffs() TariffRepository
	History() HistoryRepository
	Reference() ReferenceRepository
	SigningCodes() SigningCodeRepository
	Documents() PendingDocumentRepository
	Couriers() CourierRepository
}

type Page struct {
	Page  int
	Limit int
}

func (p Page) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Size()
}

func (p Page) Size() int {
	if p.Limit <= 0 || p.Limit > 200 {
		return 20
	}
	return p.Limit
}

type OrderFilter struct {
	Statuses      []models.OrderStatus
	WarehouseID   *int64
	DirectionID   *int64
	TransportType models.TransportType
	CourierID     *int64
	From          *time.Time
	To            *time.Time
	Search        string
	Page
}

type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	Get(ctx context.Context, id int64) (*models.Order, error)
	// GetForUpdate locks the order row until the transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*models.Order, error)
	GetMany(ctx context.Context, ids []int64) ([]models.Order, error)
	Exists(ctx context.Context, id int64) (bool, error)
	Update(ctx context.Context, order *models.Order) error
	List(ctx context.Context, filter OrderFilter) ([]models.Order, int, error)
	AttachShipment(ctx context.Context, orderID, shipmentID int64) error
	ShipmentIDs(ctx context.Context, orderID int64) ([]int64, error)
	IDsByShipment(ctx context.Context, shipmentID int64) ([]int64, error)
}

type ItemRepository interface {
	Create(ctx context.Context, item *models.OrderItem) error
	Get(ctx context.Context, id int64) (*models.OrderItem, error)
	GetMany(ctx context.Context, ids []int64) ([]models.OrderItem, error)
	ByScanCode(ctx context.Context, code string) (*models.OrderItem, error)
	ListByOrder(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	Update(ctx context.Context, item *models.OrderItem) error
	Delete(ctx context.Context, id int64) error
	AttachShipment(ctx context.Context, itemID, shipmentID int64) error
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByOrder(ctx context.Context, orderID int64) (*models.Payment, error)
	Update(ctx context.Context, payment *models.Payment) error
}

type ExpenseRepository interface {
	GetMany(ctx context.Context, ids []int64) ([]models.Expense, error)
	ListByOrder(ctx context.Context, orderID int64) ([]models.Expense, error)
	// SetForOrder replaces the order's expense set.
	SetForOrder(ctx context.Context, orderID int64, expenseIDs []int64) error
}

type ShipmentFilter struct {
	Status      models.ShipmentStatus
	Type        models.TransportType
	DriverID    *int64
	DirectionID *int64
	Page
}

type ShipmentRepository interface {
	Create(ctx context.Context, shipment *models.Shipment) error
	Get(ctx context.Context, id int64) (*models.Shipment, error)
	GetForUpdate(ctx context.Context, id int64) (*models.Shipment, error)
	Update(ctx context.Context, shipment *models.Shipment) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter ShipmentFilter) ([]models.Shipment, int, error)
	// MarkStopVisited reports whether the shipment has a stop at the
	// warehouse.
	MarkStopVisited(ctx context.Context, shipmentID, warehouseID int64) (bool, error)
}

type ResponseRepository interface {
	Create(ctx context.Context, response *models.ShipmentResponse) error
	Get(ctx context.Context, id int64) (*models.ShipmentResponse, error)
	ListByShipment(ctx context.Context, shipmentID int64, status models.ResponseStatus) ([]models.ShipmentResponse, error)
	Update(ctx context.Context, response *models.ShipmentResponse) error
}

type TariffFilter struct {
	Type        models.CalculationType
	DirectionID *int64
	Limits      bool
}

type TariffRepository interface {
	Bracket(ctx context.Context, calc models.CalculationType, directionID *int64, amount int) (*models.Tariff, error)
	Limit(ctx context.Context, calc models.CalculationType, directionID int64) (*models.Tariff, error)
	FirstForDirection(ctx context.Context, calc models.CalculationType, directionID int64) (*models.Tariff, error)
	// Upsert inserts the row or updates the price of the row with the same
	// type, direction and amount.
	Upsert(ctx context.Context, tariff *models.Tariff) error
	Get(ctx context.Context, id int64) (*models.Tariff, error)
	UpdatePrice(ctx context.Context, id int64, price decimal.Decimal) error
	List(ctx context.Context, filter TariffFilter) ([]models.Tariff, error)
}

type HistoryRepository interface {
	Create(ctx context.Context, entry *models.ActionHistory) error
	// Find looks up an item row when itemID is set, otherwise an
	// order-level row.
	Find(ctx context.Context, orderID, itemID *int64, code models.ActionCode) (*models.ActionHistory, error)
	ListByOrder(ctx context.Context, orderID int64) ([]models.ActionHistory, error)
	ListByItem(ctx context.Context, itemID int64) ([]models.ActionHistory, error)
}

type ReferenceRepository interface {
	Warehouse(ctx context.Context, id int64) (*models.Warehouse, error)
	Warehouses(ctx context.Context, ids []int64) ([]models.Warehouse, error)
	Cities(ctx context.Context, ids []int64) ([]models.City, error)
	Direction(ctx context.Context, id int64) (*models.Direction, error)
	Directions(ctx context.Context, ids []int64) ([]models.Direction, error)
	User(ctx context.Context, id int64) (*models.User, error)
	Users(ctx context.Context, ids []int64) ([]models.User, error)
}

type SigningCodeRepository interface {
	Create(ctx context.Context, code *models.SigningCode) error
	// FindUnused returns the newest unused code with this value.
	FindUnused(ctx context.Context, kind models.SigningKind, code string) (*models.SigningCode, error)
	MarkUsed(ctx context.Context, id int64) error
}

type PendingDocumentRepository interface {
	Add(ctx context.Context, doc *models.PendingDocument) error
	Due(ctx context.Context, maxAttempts, limit int) ([]models.PendingDocument, error)
	Fail(ctx context.Context, id int64, reason string) error
	Remove(ctx context.Context, id int64) error
}

type CourierRepository interface {
	Stats(ctx context.Context, courierID int64) (*models.CourierStats, error)
	AddAccepted(ctx context.Context, courierID int64) error
	AddDelivered(ctx context.Context, courierID int64, profit decimal.Decimal) error
}
