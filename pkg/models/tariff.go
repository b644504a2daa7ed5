package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

type CalculationType string

const (
	CalcVolume                  CalculationType = "VOLUME"
	CalcWeight                  CalculationType = "WEIGHT"
	CalcHandling                CalculationType = "HANDLING"
	CalcDeliveryWeight          CalculationType = "DELIVERY_WEIGHT"
	CalcDeliveryVolume          CalculationType = "DELIVERY_VOLUME"
	CalcSenderCargoPickupWeight CalculationType = "SENDER_CARGO_PICKUP_WEIGHT"
	CalcSenderCargoPickupVolume CalculationType = "SENDER_CARGO_PICKUP_VOLUME"
)

func (c CalculationType) Valid() bool {
	switch c {
	case CalcVolume, CalcWeight, CalcHandling, CalcDeliveryWeight, CalcDeliveryVolume,
		CalcSenderCargoPickupWeight, CalcSenderCargoPickupVolume:
		return true
	}
	return false
}

func (c CalculationType) VolumeBased() bool {
	return strings.HasSuffix(string(c), "VOLUME")
}

// LastMile types price the courier legs rather than the trunk haul.
func (c CalculationType) LastMile() bool {
	return strings.HasPrefix(string(c), "DELIVERY_") || strings.HasPrefix(string(c), "SENDER_CARGO_PICKUP_")
}

const (
	// WeightBracketCeiling is the heaviest weight priced by brackets; the
	// remainder is charged at the limit rate.
	WeightBracketCeiling = 100
	MaxWeightAmount      = 500
	MaxVolumeAmount      = 15
)

type Tariff struct {
	ID          int64           `json:"id"`
	Type        CalculationType `json:"calculation_type"`
	DirectionID *int64          `json:"direction_id,omitempty"`
	Amount      int             `json:"amount"`
	Price       decimal.Decimal `json:"price"`
	IsLimit     bool            `json:"is_limit"`
}
