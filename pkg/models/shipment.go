package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Shipment struct {
	ID                       int64           `json:"id"`
	Type                     TransportType   `json:"shipping_type"`
	Status                   ShipmentStatus  `json:"status"`
	Price                    decimal.Decimal `json:"price"`
	DirectionID              *int64          `json:"direction_id,omitempty"`
	StartWarehouseID         *int64          `json:"start_warehouse_id,omitempty"`
	EndWarehouseID           *int64          `json:"end_warehouse_id,omitempty"`
	DriverID                 *int64          `json:"driver_id,omitempty"`
	TransportNumber          string          `json:"transport_number,omitempty"`
	CargoWeight              float64         `json:"cargo_weight"`
	CargoVolume              float64         `json:"cargo_volume"`
	DepartureDate            *time.Time      `json:"departure_date,omitempty"`
	ArrivalDate              *time.Time      `json:"arrival_date,omitempty"`
	Latitude                 *float64        `json:"latitude,omitempty"`
	Longitude                *float64        `json:"longitude,omitempty"`
	IsLoaded                 bool            `json:"is_loaded"`
	InvoiceNumber            string          `json:"invoice_number,omitempty"`
	DriverContractURL        string          `json:"driver_contract_url,omitempty"`
	IsDriverContractAccepted bool            `json:"is_driver_contract_accepted"`
	Stops                    []ShipmentStop  `json:"stops"`
	CreatedAt                time.Time       `json:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at"`
}

// OnRoute reports whether warehouseID is the end warehouse or one of the stops.
func (s *Shipment) OnRoute(warehouseID int64) bool {
	if s.EndWarehouseID != nil && *s.EndWarehouseID == warehouseID {
		return true
	}
	for _, stop := range s.Stops {
		if stop.WarehouseID == warehouseID {
			return true
		}
	}
	return false
}

func (s *Shipment) AllStopsVisited() bool {
	if len(s.Stops) == 0 {
		return false
	}
	for _, stop := range s.Stops {
		if !stop.Visited {
			return false
		}
	}
	return true
}

type ShipmentStop struct {
	ShipmentID  int64 `json:"shipment_id"`
	WarehouseID int64 `json:"warehouse_id"`
	Visited     bool  `json:"visited"`
}

type ShipmentResponse struct {
	ID         int64          `json:"id"`
	ShipmentID int64          `json:"shipment_id"`
	DriverID   int64          `json:"driver_id"`
	Status     ResponseStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
