package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID                        int64           `json:"id"`
	SenderName                string          `json:"sender_name"`
	SenderPhone               string          `json:"sender_phone"`
	SenderAddress             string          `json:"sender_address"`
	ReceiverName              string          `json:"receiver_name"`
	ReceiverPhone             string          `json:"receiver_phone"`
	ReceiverAddress           string          `json:"receiver_address"`
	ClientID                  *int64          `json:"client_id,omitempty"`
	Description               string          `json:"description"`
	TotalWeight               float64         `json:"total_weight"`
	TotalVolume               float64         `json:"total_volume"`
	Insurance                 decimal.Decimal `json:"insurance"`
	Status                    OrderStatus     `json:"status"`
	PreviousStatus            *OrderStatus    `json:"previous_status,omitempty"`
	CargoPickupType           DeliveryType    `json:"cargo_pickup_type"`
	DeliveryType              DeliveryType    `json:"delivery_type"`
	StartWarehouseID          *int64          `json:"start_warehouse_id,omitempty"`
	WarehouseID               *int64          `json:"warehouse_id,omitempty"`
	DestinationWarehouseID    *int64          `json:"destination_warehouse_id,omitempty"`
	DirectionID               int64           `json:"direction_id"`
	DistrictID                *int64          `json:"district_id,omitempty"`
	CourierID                 *int64          `json:"courier_id,omitempty"`
	ExpensesPrice             decimal.Decimal `json:"expenses_price"`
	CancellationReason        string          `json:"cancellation_reason,omitempty"`
	NotDeliveredReason        string          `json:"not_delivered_reason,omitempty"`
	IsPublicOfferAccepted     bool            `json:"is_public_offer_accepted"`
	IsWaiverAgreementAccepted bool            `json:"is_waiver_agreement_accepted"`
	PublicOfferURL            string          `json:"public_offer_url,omitempty"`
	WaiverAgreementURL        string          `json:"waiver_agreement_url,omitempty"`
	Version                   int64           `json:"version"`
	CreatedAt                 time.Time       `json:"created_at"`
	UpdatedAt                 time.Time       `json:"updated_at"`
}

type OrderItem struct {
	ID             int64        `json:"id"`
	OrderID        int64        `json:"order_id"`
	Status         OrderStatus  `json:"status"`
	PreviousStatus *OrderStatus `json:"previous_status,omitempty"`
	WarehouseID    *int64       `json:"warehouse_id,omitempty"`
	ScanCode       string       `json:"scan_code"`
	IsLoaded       bool         `json:"is_loaded"`
	Photo          string       `json:"photo,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

type PaymentStatus string

const (
	PaymentNotPaid PaymentStatus = "NOT_PAID"
	PaymentPaid    PaymentStatus = "PAID"
)

type PaymentType string

const (
	PaymentCash   PaymentType = "CASH"
	PaymentOnline PaymentType = "ONLINE"
)

// PayerType separates individuals (FL) from legal entities (UL).
type PayerType string

const (
	PayerIndividual PayerType = "FL"
	PayerLegal      PayerType = "UL"
)

const DefaultCurrency = "KZT"

type Payment struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Status      PaymentStatus   `json:"status"`
	PaymentType PaymentType     `json:"payment_type"`
	PayerType   PayerType       `json:"payer_type"`
	BIN         string          `json:"bin,omitempty"`
	Comment     string          `json:"comment,omitempty"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
}

type Expense struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type CourierStats struct {
	CourierID       int64           `json:"courier_id"`
	AcceptedOrders  int64           `json:"accepted_orders"`
	DeliveredOrders int64           `json:"delivered_orders"`
	Profit          decimal.Decimal `json:"profit"`
}

type OrderResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}
