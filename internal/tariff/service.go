package tariff

import (
	"context"
	"errors"
	"fmt"

	"github.com/jogardn/cargo-lifecycle/internal/apperr"
	"github.com/jogardn/cargo-lifecycle/internal/auth"
	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// BracketRange authors one bracket per integer amount between Start and End,
// starting at StartPrice and growing by Increment per step.
type BracketRange struct {
	Type        models.CalculationType `json:"calculation_type"`
	DirectionID *int64                 `json:"direction_id"`
	StartAmount int                    `json:"starting_amount"`
	EndAmount   int                    `json:"ending_amount"`
	StartPrice  decimal.Decimal        `json:"starting_price"`
	Increment   decimal.Decimal        `json:"increment"`
}

// DeliveryRange is a flat price over an amount range for a last-mile type.
type DeliveryRange struct {
	Type        models.CalculationType `json:"calculation_type"`
	DirectionID *int64                 `json:"direction_id,omitempty"`
	StartAmount int                    `json:"starting_amount"`
	EndAmount   int                    `json:"ending_amount"`
	Price       decimal.Decimal        `json:"price"`
}

type PriceUpdate struct {
	ID    int64           `json:"id"`
	Price decimal.Decimal `json:"price"`
}

type Service struct {
	store      store.Store
	authorizer auth.Authorizer
	calculator Calculator
	logger     *logrus.Logger
}

func NewService(s store.Store, a auth.Authorizer, logger *logrus.Logger) *Service {
	return &Service{store: s, authorizer: a, logger: logger}
}

// Quote prices a request in its own read-only transaction.
func (s *Service) Quote(ctx context.Context, req Request) (*Breakdown, error) {
	var out *Breakdown
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = s.calculator.Calculate(ctx, tx.Tariffs(), req)
		return err
	})
	return out, err
}

func (s *Service) CreateBrackets(ctx context.Context, actor auth.Actor, r BracketRange) ([]models.Tariff, error) {
	if err := auth.Require(ctx, s.authorizer, actor, auth.EditTariff); err != nil {
		return nil, err
	}
	if !r.Type.Valid() || r.Type.LastMile() {
		return nil, apperr.Precondition("invalid_calculation_type", "calculation type %q cannot be authored as brackets", r.Type)
	}
	if err := checkRange(r.Type, r.StartAmount, r.EndAmount); err != nil {
		return nil, err
	}

	var rows []models.Tariff
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		price := r.StartPrice
		for amount := r.StartAmount; amount <= r.EndAmount; amount++ {
			t := models.Tariff{Type: r.Type, DirectionID: r.DirectionID, Amount: amount, Price: price}
			if err := tx.Tariffs().Upsert(ctx, &t); err != nil {
				return fmt.Errorf("failed to upsert tariff: %w", err)
			}
			rows = append(rows, t)
			price = price.Add(r.Increment)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"calculation_type": r.Type,
		"direction_id":     r.DirectionID,
		"count":            len(rows),
		"actor_id":         actor.ID,
	}).Info("Tariff brackets written")
	return rows, nil
}

func (s *Service) SetDeliveryBrackets(ctx context.Context, actor auth.Actor, r DeliveryRange) ([]models.Tariff, error) {
	if err := auth.Require(ctx, s.authorizer, actor, auth.EditTariff); err != nil {
		return nil, err
	}
	if !r.Type.LastMile() {
		return nil, apperr.Precondition("invalid_calculation_type", "calculation type %q is not a delivery or pickup type", r.Type)
	}
	if err := checkRange(r.Type, r.StartAmount, r.EndAmount); err != nil {
		return nil, err
	}

	var rows []models.Tariff
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		for amount := r.StartAmount; amount <= r.EndAmount; amount++ {
			t := models.Tariff{Type: r.Type, DirectionID: r.DirectionID, Amount: amount, Price: r.Price}
			if err := tx.Tariffs().Upsert(ctx, &t); err != nil {
				return fmt.Errorf("failed to upsert delivery tariff: %w", err)
			}
			rows = append(rows, t)
		}
		return nil
	})
	return rows, err
}

// SetLimit stores the marginal rate applied above the bracket ceiling.
func (s *Service) SetLimit(ctx context.Context, actor auth.Actor, calc models.CalculationType, directionID int64, price decimal.Decimal) (*models.Tariff, error) {
	if err := auth.Require(ctx, s.authorizer, actor, auth.EditTariff); err != nil {
		return nil, err
	}
	if calc != models.CalcWeight && calc != models.CalcHandling {
		return nil, apperr.Precondition("invalid_calculation_type", "limits exist only for WEIGHT and HANDLING, got %q", calc)
	}

	t := &models.Tariff{Type: calc, DirectionID: &directionID, Amount: 0, Price: price, IsLimit: true}
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.Tariffs().Upsert(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) UpdatePrices(ctx context.Context, actor auth.Actor, updates []PriceUpdate) error {
	if err := auth.Require(ctx, s.authorizer, actor, auth.EditTariff); err != nil {
		return err
	}
	return s.store.WithTx(ctx, func(tx store.Tx) error {
		for _, u := range updates {
			if u.Price.IsNegative() {
				return apperr.Precondition("invalid_price", "tariff %d price must not be negative", u.ID)
			}
			err := tx.Tariffs().UpdatePrice(ctx, u.ID, u.Price)
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("tariff", u.ID)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) List(ctx context.Context, actor auth.Actor, filter store.TariffFilter) ([]models.Tariff, error) {
	if err := auth.Require(ctx, s.authorizer, actor, auth.ViewTariff); err != nil {
		return nil, err
	}
	var rows []models.Tariff
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		rows, err = tx.Tariffs().List(ctx, filter)
		return err
	})
	return rows, err
}

// ListDelivery collapses consecutive brackets with the same price into
// ranges.
func (s *Service) ListDelivery(ctx context.Context, actor auth.Actor, calc models.CalculationType, directionID *int64) ([]DeliveryRange, error) {
	if !calc.LastMile() {
		return nil, apperr.Precondition("invalid_calculation_type", "calculation type %q is not a delivery or pickup type", calc)
	}
	rows, err := s.List(ctx, actor, store.TariffFilter{Type: calc, DirectionID: directionID})
	if err != nil {
		return nil, err
	}
	return collapse(rows), nil
}

func collapse(rows []models.Tariff) []DeliveryRange {
	var out []DeliveryRange
	for _, t := range rows {
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.EndAmount+1 == t.Amount && last.Price.Equal(t.Price) {
				last.EndAmount = t.Amount
				continue
			}
		}
		out = append(out, DeliveryRange{
			Type:        t.Type,
			DirectionID: t.DirectionID,
			StartAmount: t.Amount,
			EndAmount:   t.Amount,
			Price:       t.Price,
		})
	}
	return out
}

func checkRange(calc models.CalculationType, start, end int) error {
	if start < 1 || end < start {
		return apperr.Precondition("invalid_range", "range %d..%d is empty or starts below 1", start, end)
	}
	max := models.MaxWeightAmount
	if calc.VolumeBased() {
		max = models.MaxVolumeAmount
	}
	if end > max {
		return apperr.Precondition("range_too_large", "ending amount for %s must not exceed %d", calc, max)
	}
	return nil
}
