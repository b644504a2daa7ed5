package models

import "time"

type ActionCode string

const (
	ActionOrderCreated                 ActionCode = "ORDER_CREATED"
	ActionManagerApproved              ActionCode = "MANAGER_APPROVED"
	ActionAcceptedToWarehouse          ActionCode = "ACCEPTED_TO_WAREHOUSE"
	ActionCourierDeliveringToWarehouse ActionCode = "COURIER_DELIVERING_TO_WAREHOUSE"
	ActionClientDeliveringToWarehouse  ActionCode = "CLIENT_DELIVERING_TO_WAREHOUSE"
	ActionArrivedMiddleWarehouse       ActionCode = "ARRIVED_MIDDLE_WAREHOUSE"
	ActionInTransit                    ActionCode = "IN_TRANSIT"
	ActionPartiallyInTransit           ActionCode = "PARTIALLY_IN_TRANSIT"
	ActionDeliveringToRecipient        ActionCode = "DELIVERING_TO_RECIPIENT"
	ActionArrivedToDestination         ActionCode = "ARRIVED_TO_DESTINATION"
	ActionDelivered                    ActionCode = "DELIVERED"
	ActionNotDelivered                 ActionCode = "NOT_DELIVERED"
	ActionCancelled                    ActionCode = "CANCELLED"
	ActionResumed                      ActionCode = "RESUMED"
)

// ActionHistory rows are append-only. Description is rendered when the row
// is written and never recomputed.
type ActionHistory struct {
	ID                 int64      `json:"id"`
	OrderID            *int64     `json:"order_id,omitempty"`
	OrderItemID        *int64     `json:"order_item_id,omitempty"`
	Code               ActionCode `json:"action_code"`
	Description        string     `json:"action_description"`
	ClientID           *int64     `json:"client_id,omitempty"`
	ManagerID          *int64     `json:"manager_id,omitempty"`
	CourierID          *int64     `json:"courier_id,omitempty"`
	WarehouseManagerID *int64     `json:"warehouse_manager_id,omitempty"`
	WarehouseID        *int64     `json:"warehouse_id,omitempty"`
	DepartureCityID    *int64     `json:"departure_city_id,omitempty"`
	ArrivalCityID      *int64     `json:"arrival_city_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}
