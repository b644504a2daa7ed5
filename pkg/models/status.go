package models

// OrderStatus is shared by orders and their items.
type OrderStatus string

const (
	StatusCreated                      OrderStatus = "CREATED"
	StatusAssignedToCourier            OrderStatus = "ASSIGNED_TO_COURIER"
	StatusCourierDeliveringToWarehouse OrderStatus = "COURIER_DELIVERING_TO_WAREHOUSE"
	StatusAcceptedToWarehouse          OrderStatus = "ACCEPTED_TO_WAREHOUSE"
	StatusClientDeliveringToWarehouse  OrderStatus = "CLIENT_DELIVERING_TO_WAREHOUSE"
	StatusInTransit                    OrderStatus = "IN_TRANSIT"
	StatusPartiallyInTransit           OrderStatus = "PARTIALLY_IN_TRANSIT"
	StatusArrivedToDestination         OrderStatus = "ARRIVED_TO_DESTINATION"
	StatusDeliveringToRecipient        OrderStatus = "DELIVERING_TO_RECIPIENT"
	StatusDelivered                    OrderStatus = "DELIVERED"
	StatusCancelled                    OrderStatus = "CANCELLED"
	StatusNotDelivered                 OrderStatus = "NOT_DELIVERED"
)

// Orders whose items were accepted one by one may still sit in a pre-warehouse
// status when the first of them is loaded, hence the PARTIALLY_IN_TRANSIT
// edges from those statuses.
// CANCELLED has no outgoing edges here: leaving it is only possible through
// resume, which restores the stored previous status.
var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusCreated: {
		StatusAssignedToCourier, StatusClientDeliveringToWarehouse,
		StatusCourierDeliveringToWarehouse, StatusAcceptedToWarehouse,
		StatusPartiallyInTransit, StatusCancelled,
	},
	StatusAssignedToCourier: {
		StatusCourierDeliveringToWarehouse, StatusAcceptedToWarehouse,
		StatusPartiallyInTransit, StatusCancelled,
	},
	StatusCourierDeliveringToWarehouse: {StatusAcceptedToWarehouse, StatusPartiallyInTransit, StatusCancelled},
	StatusClientDeliveringToWarehouse:  {StatusAcceptedToWarehouse, StatusPartiallyInTransit, StatusCancelled},
	StatusAcceptedToWarehouse: {
		StatusAcceptedToWarehouse, StatusCourierDeliveringToWarehouse, StatusInTransit,
		StatusPartiallyInTransit, StatusArrivedToDestination, StatusCancelled,
	},
	StatusPartiallyInTransit: {
		StatusInTransit, StatusPartiallyInTransit, StatusAcceptedToWarehouse, StatusArrivedToDestination,
	},
	StatusInTransit: {
		StatusInTransit, StatusAcceptedToWarehouse, StatusArrivedToDestination,
	},
	StatusArrivedToDestination:  {StatusDeliveringToRecipient, StatusDelivered, StatusNotDelivered},
	StatusDeliveringToRecipient: {StatusDelivered, StatusNotDelivered},
	StatusDelivered:             nil,
	StatusNotDelivered:          nil,
	StatusCancelled:             nil,
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusNotDelivered || s == StatusCancelled
}

// PreTransit reports whether the cargo has not yet left its first warehouse.
func (s OrderStatus) PreTransit() bool {
	return s.CanTransitionTo(StatusCancelled)
}

// StatusGroups are the list filters exposed to operators.
var StatusGroups = map[string][]OrderStatus{
	"new":       {StatusCreated, StatusAssignedToCourier, StatusCourierDeliveringToWarehouse, StatusClientDeliveringToWarehouse},
	"warehouse": {StatusAcceptedToWarehouse},
	"transit":   {StatusInTransit, StatusPartiallyInTransit},
	"arrived":   {StatusArrivedToDestination, StatusDeliveringToRecipient},
	"closed":    {StatusDelivered, StatusNotDelivered, StatusCancelled},
}

type ShipmentStatus string

const (
	ShipmentNew           ShipmentStatus = "NEW"
	ShipmentWaitingDriver ShipmentStatus = "WAITING_DRIVER"
	ShipmentInTransit     ShipmentStatus = "IN_TRANSIT"
	ShipmentFinished      ShipmentStatus = "FINISHED"
	ShipmentCanceled      ShipmentStatus = "CANCELED"
)

var shipmentTransitions = map[ShipmentStatus][]ShipmentStatus{
	ShipmentNew:           {ShipmentWaitingDriver, ShipmentInTransit, ShipmentFinished, ShipmentCanceled},
	ShipmentWaitingDriver: {ShipmentNew, ShipmentWaitingDriver, ShipmentInTransit, ShipmentFinished, ShipmentCanceled},
	ShipmentInTransit:     {ShipmentFinished},
	ShipmentFinished:      nil,
	ShipmentCanceled:      nil,
}

func (s ShipmentStatus) Valid() bool {
	_, ok := shipmentTransitions[s]
	return ok
}

func (s ShipmentStatus) CanTransitionTo(next ShipmentStatus) bool {
	for _, allowed := range shipmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s ShipmentStatus) Closed() bool {
	return s == ShipmentFinished || s == ShipmentCanceled
}

type ResponseStatus string

const (
	ResponseResponded ResponseStatus = "RESPONDED"
	ResponseConfirmed ResponseStatus = "CONFIRMED"
	ResponseCancel    ResponseStatus = "CANCEL"
	ResponseFinished  ResponseStatus = "FINISHED"
)

var responseTransitions = map[ResponseStatus][]ResponseStatus{
	ResponseResponded: {ResponseConfirmed, ResponseCancel},
	ResponseConfirmed: {ResponseFinished, ResponseCancel},
	ResponseCancel:    nil,
	ResponseFinished:  nil,
}

func (s ResponseStatus) Valid() bool {
	_, ok := responseTransitions[s]
	return ok
}

func (s ResponseStatus) CanTransitionTo(next ResponseStatus) bool {
	for _, allowed := range responseTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Active responses still compete for the shipment.
func (s ResponseStatus) Active() bool {
	return s == ResponseResponded || s == ResponseConfirmed
}

type DeliveryType string

const (
	DeliveryTypePickup   DeliveryType = "PICKUP"
	DeliveryTypeDelivery DeliveryType = "DELIVERY"
)

func (d DeliveryType) Valid() bool {
	return d == DeliveryTypePickup || d == DeliveryTypeDelivery
}

type TransportType string

const (
	TransportAir  TransportType = "AIR"
	TransportRail TransportType = "RAIL"
	TransportRoad TransportType = "ROAD"
)

func (t TransportType) Valid() bool {
	return t == TransportAir || t == TransportRail || t == TransportRoad
}

// Consolidated transports carry whole-direction cargo and aggregate the
// shipment weight from the loaded orders.
func (t TransportType) Consolidated() bool {
	return t == TransportAir || t == TransportRail
}
