package tariff

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jogardn/cargo-lifecycle/internal/apperr"
	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/shopspring/decimal"
)

// Reader is the lookup surface the calculator needs. store.TariffRepository
// satisfies it.
type Reader interface {
	Bracket(ctx context.Context, calc models.CalculationType, directionID *int64, amount int) (*models.Tariff, error)
	Limit(ctx context.Context, calc models.CalculationType, directionID int64) (*models.Tariff, error)
	FirstForDirection(ctx context.Context, calc models.CalculationType, directionID int64) (*models.Tariff, error)
}

type Request struct {
	DirectionID  int64               `json:"direction_id"`
	Weight       float64             `json:"weight"`
	Volume       float64             `json:"volume"`
	PickupType   models.DeliveryType `json:"cargo_pickup_type"`
	DeliveryType models.DeliveryType `json:"delivery_type"`
	Expenses     decimal.Decimal     `json:"expenses"`
}

type Breakdown struct {
	VolumePrice     decimal.Decimal `json:"volume_price"`
	WeightPrice     decimal.Decimal `json:"weight_price"`
	HandlingPrice   decimal.Decimal `json:"handling_price"`
	WeightOverage   decimal.Decimal `json:"weight_overage"`
	HandlingOverage decimal.Decimal `json:"handling_overage"`
	Base            decimal.Decimal `json:"base"`
	PickupExtra     decimal.Decimal `json:"pickup_extra"`
	DeliveryExtra   decimal.Decimal `json:"delivery_extra"`
	Expenses        decimal.Decimal `json:"expenses"`
	Total           decimal.Decimal `json:"total"`
}

// Calculator prices a shipment request from the tariff tables. It holds no
// state.
type Calculator struct{}

func (Calculator) Calculate(ctx context.Context, r Reader, req Request) (*Breakdown, error) {
	if req.Weight < 0 || req.Volume < 0 {
		return nil, apperr.Precondition("invalid_cargo_size", "weight and volume must not be negative")
	}

	b := &Breakdown{Expenses: req.Expenses}
	dir := req.DirectionID
	weight := req.Weight

	weightLimit, err := limitPrice(ctx, r, models.CalcWeight, dir)
	if err != nil {
		return nil, err
	}
	handlingLimit, err := limitPrice(ctx, r, models.CalcHandling, dir)
	if err != nil {
		return nil, err
	}

	if weight > models.WeightBracketCeiling {
		over := decimal.NewFromFloat(weight - models.WeightBracketCeiling)
		b.WeightOverage = over.Mul(weightLimit)
		b.HandlingOverage = over.Mul(handlingLimit)
		weight = models.WeightBracketCeiling
	}

	amount := ceil(weight)
	weightTariff, err := bracket(ctx, r, models.CalcWeight, &dir, amount)
	if err != nil {
		return nil, err
	}
	handlingTariff, err := bracket(ctx, r, models.CalcHandling, &dir, amount)
	if err != nil {
		return nil, err
	}
	b.WeightPrice = weightTariff.Price
	b.HandlingPrice = handlingTariff.Price

	volumeTariff, err := r.FirstForDirection(ctx, models.CalcVolume, dir)
	switch {
	case err == nil:
		b.VolumePrice = volumeTariff.Price.Mul(decimal.NewFromFloat(req.Volume))
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to load volume tariff: %w", err)
	}

	b.Base = decimal.Max(b.VolumePrice, b.WeightPrice).Add(b.HandlingPrice)

	if req.PickupType == models.DeliveryTypeDelivery || req.DeliveryType == models.DeliveryTypeDelivery {
		extra, err := lastMileExtra(ctx, r, dir, req.Weight, req.Volume)
		if err != nil {
			return nil, err
		}
		if req.PickupType == models.DeliveryTypeDelivery {
			b.PickupExtra = extra
		}
		if req.DeliveryType == models.DeliveryTypeDelivery {
			b.DeliveryExtra = extra
		}
	}

	b.Total = b.Base.
		Add(b.WeightOverage).
		Add(b.HandlingOverage).
		Add(b.PickupExtra).
		Add(b.DeliveryExtra).
		Add(b.Expenses)
	return b, nil
}

// lastMileExtra prices one courier leg from the declared (unclamped) size.
func lastMileExtra(ctx context.Context, r Reader, dir int64, weight, volume float64) (decimal.Decimal, error) {
	byWeight, err := lastMileBracket(ctx, r, models.CalcDeliveryWeight, dir, ceil(weight))
	if err != nil {
		return decimal.Zero, err
	}
	byVolume, err := lastMileBracket(ctx, r, models.CalcDeliveryVolume, dir, ceil(volume))
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.Max(byWeight, byVolume), nil
}

// lastMileBracket prefers a direction specific bracket and falls back to the
// global one. Brackets stop at 500 kg and 15 m3, so a size with no bracket
// adds nothing.
func lastMileBracket(ctx context.Context, r Reader, calc models.CalculationType, dir int64, amount int) (decimal.Decimal, error) {
	if amount == 0 {
		return decimal.Zero, nil
	}
	t, err := r.Bracket(ctx, calc, &dir, amount)
	if errors.Is(err, store.ErrNotFound) {
		t, err = r.Bracket(ctx, calc, nil, amount)
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return decimal.Zero, nil
	case err != nil:
		return decimal.Zero, fmt.Errorf("failed to load %s tariff: %w", calc, err)
	}
	return t.Price, nil
}

func bracket(ctx context.Context, r Reader, calc models.CalculationType, dir *int64, amount int) (*models.Tariff, error) {
	t, err := r.Bracket(ctx, calc, dir, amount)
	if errors.Is(err, store.ErrNotFound) {
		direction := "any direction"
		if dir != nil {
			direction = fmt.Sprintf("direction %d", *dir)
		}
		return nil, apperr.Precondition("tariff_not_configured",
			"no %s tariff configured for %s and amount %d", calc, direction, amount)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s tariff: %w", calc, err)
	}
	return t, nil
}

func limitPrice(ctx context.Context, r Reader, calc models.CalculationType, dir int64) (decimal.Decimal, error) {
	t, err := r.Limit(ctx, calc, dir)
	if errors.Is(err, store.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load %s limit: %w", calc, err)
	}
	return t.Price, nil
}

func ceil(v float64) int {
	return int(math.Ceil(v))
}
