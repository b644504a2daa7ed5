package models

import (
	"strings"
	"time"
)

type City struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Warehouse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	CityID  int64  `json:"city_id"`
}

type Direction struct {
	ID              int64         `json:"id"`
	DepartureCityID int64         `json:"departure_city_id"`
	ArrivalCityID   int64         `json:"arrival_city_id"`
	TransportType   TransportType `json:"transportation_type"`
	IsActive        bool          `json:"is_active"`
}

type User struct {
	ID          int64  `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	MiddleName  string `json:"middle_name,omitempty"`
	Phone       string `json:"phone"`
	WarehouseID *int64 `json:"warehouse_id,omitempty"`
}

// ShortName is "Last First".
func (u User) ShortName() string {
	return strings.TrimSpace(u.LastName + " " + u.FirstName)
}

func (u User) FullName() string {
	return strings.TrimSpace(u.ShortName() + " " + u.MiddleName)
}

type SigningKind string

const (
	SigningPublicOffer     SigningKind = "PUBLIC_OFFER"
	SigningWaiverAgreement SigningKind = "WAIVER_AGREEMENT"
	SigningDriverContract  SigningKind = "DRIVER_CONTRACT"
)

// SigningCode is a one-time code sent by SMS to confirm a document.
// OwnerID is an order id for offers and waivers and a shipment id for
// driver contracts.
type SigningCode struct {
	ID        int64       `json:"id"`
	Kind      SigningKind `json:"kind"`
	OwnerID   int64       `json:"owner_id"`
	Code      string      `json:"-"`
	Used      bool        `json:"used"`
	CreatedAt time.Time   `json:"created_at"`
}

type DocumentKind string

const (
	DocumentPublicOffer     DocumentKind = "PUBLIC_OFFER"
	DocumentWaiverAgreement DocumentKind = "WAIVER_AGREEMENT"
	DocumentDriverContract  DocumentKind = "DRIVER_CONTRACT"
)

// PendingDocument records a generation that failed after its transition
// committed.
type PendingDocument struct {
	ID        int64        `json:"id"`
	Kind      DocumentKind `json:"kind"`
	OwnerID   int64        `json:"owner_id"`
	Attempts  int          `json:"attempts"`
	LastError string       `json:"last_error"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
