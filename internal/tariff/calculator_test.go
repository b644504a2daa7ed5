package tariff

import (
	"context"
	"testing"

	"github.com/jogardn/cargo-lifecycle/internal/apperr"
	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/internal/store/memstore"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/shopspring/decimal"
)

const direction = int64(4)

// fixture writes WEIGHT and HANDLING brackets 1..100, a VOLUME rate and
// global last-mile brackets.
func fixture(t *testing.T) *memstore.Store {
	t.Helper()
	s := memstore.New()
	dir := direction
	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		put := func(tr models.Tariff) {
			if err := tx.Tariffs().Upsert(context.Background(), &tr); err != nil {
				t.Fatalf("seed tariff: %v", err)
			}
		}
		for amount := 1; amount <= 100; amount++ {
			put(models.Tariff{Type: models.CalcWeight, DirectionID: &dir, Amount: amount, Price: decimal.NewFromInt(int64(1000 + amount*50))})
			put(models.Tariff{Type: models.CalcHandling, DirectionID: &dir, Amount: amount, Price: decimal.NewFromInt(int64(200 + amount*5))})
		}
		put(models.Tariff{Type: models.CalcVolume, DirectionID: &dir, Amount: 1, Price: decimal.NewFromInt(30000)})
		put(models.Tariff{Type: models.CalcWeight, DirectionID: &dir, IsLimit: true, Price: decimal.NewFromInt(40)})
		put(models.Tariff{Type: models.CalcHandling, DirectionID: &dir, IsLimit: true, Price: decimal.NewFromInt(4)})
		for amount := 1; amount <= 500; amount++ {
			put(models.Tariff{Type: models.CalcDeliveryWeight, Amount: amount, Price: decimal.NewFromInt(1500)})
		}
		for amount := 1; amount <= 15; amount++ {
			put(models.Tariff{Type: models.CalcDeliveryVolume, Amount: amount, Price: decimal.NewFromInt(int64(1000 + amount*200))})
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s
}

func calculate(t *testing.T, s *memstore.Store, req Request) (*Breakdown, error) {
	t.Helper()
	var out *Breakdown
	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		var err error
		out, err = Calculator{}.Calculate(context.Background(), tx.Tariffs(), req)
		return err
	})
	return out, err
}

func TestCalculateBasePrice(t *testing.T) {
	s := fixture(t)

	b, err := calculate(t, s, Request{DirectionID: direction, Weight: 9.2, Volume: 0.1,
		PickupType: models.DeliveryTypePickup, DeliveryType: models.DeliveryTypePickup})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// ceil(9.2) = 10: weight 1500, handling 250, volume 30000*0.1 = 3000.
	if !b.WeightPrice.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("unexpected weight price %s", b.WeightPrice)
	}
	if !b.Base.Equal(decimal.NewFromInt(3250)) {
		t.Errorf("expected base max(3000,1500)+250 = 3250, got %s", b.Base)
	}
	if !b.Total.Equal(b.Base) {
		t.Errorf("expected total to equal base without extras, got %s", b.Total)
	}
}

func TestCalculateOverageAboveCeiling(t *testing.T) {
	s := fixture(t)

	b, err := calculate(t, s, Request{DirectionID: direction, Weight: 130,
		PickupType: models.DeliveryTypePickup, DeliveryType: models.DeliveryTypePickup})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !b.WeightOverage.Equal(decimal.NewFromInt(30 * 40)) {
		t.Errorf("unexpected weight overage %s", b.WeightOverage)
	}
	if !b.HandlingOverage.Equal(decimal.NewFromInt(30 * 4)) {
		t.Errorf("unexpected handling overage %s", b.HandlingOverage)
	}
	// Brackets are read at the ceiling: 1000+100*50 and 200+100*5.
	want := decimal.NewFromInt(6000 + 700 + 1200 + 120)
	if !b.Total.Equal(want) {
		t.Errorf("expected total %s, got %s", want, b.Total)
	}
}

func TestCalculateLastMileLegs(t *testing.T) {
	s := fixture(t)

	b, err := calculate(t, s, Request{DirectionID: direction, Weight: 5, Volume: 2.5,
		PickupType: models.DeliveryTypeDelivery, DeliveryType: models.DeliveryTypeDelivery,
		Expenses: decimal.NewFromInt(700)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Delivery volume at ceil(2.5)=3 is 1600, delivery weight is 1500.
	if !b.PickupExtra.Equal(decimal.NewFromInt(1600)) || !b.DeliveryExtra.Equal(decimal.NewFromInt(1600)) {
		t.Errorf("unexpected extras pickup=%s delivery=%s", b.PickupExtra, b.DeliveryExtra)
	}
	want := b.Base.Add(decimal.NewFromInt(1600 * 2)).Add(decimal.NewFromInt(700))
	if !b.Total.Equal(want) {
		t.Errorf("expected total %s, got %s", want, b.Total)
	}
}

func TestCalculateLastMileBeyondBrackets(t *testing.T) {
	s := fixture(t)

	// Volume 20 has no DELIVERY_VOLUME bracket; the weight bracket still applies.
	b, err := calculate(t, s, Request{DirectionID: direction, Weight: 50, Volume: 20,
		PickupType: models.DeliveryTypeDelivery, DeliveryType: models.DeliveryTypePickup})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.PickupExtra.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("expected pickup extra 1500, got %s", b.PickupExtra)
	}

	// Neither 600 kg nor 20 m3 has a bracket: the leg adds nothing.
	b, err = calculate(t, s, Request{DirectionID: direction, Weight: 600, Volume: 20,
		PickupType: models.DeliveryTypePickup, DeliveryType: models.DeliveryTypeDelivery})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.DeliveryExtra.IsZero() {
		t.Errorf("expected no delivery extra, got %s", b.DeliveryExtra)
	}
	want := b.Base.Add(b.WeightOverage).Add(b.HandlingOverage)
	if !b.Total.Equal(want) {
		t.Errorf("expected total %s, got %s", want, b.Total)
	}
}

func TestCalculateMissingBracketFails(t *testing.T) {
	s := fixture(t)

	b, err := calculate(t, s, Request{DirectionID: 99, Weight: 3})
	if err == nil {
		t.Fatalf("expected failure, got total %s", b.Total)
	}
	if !apperr.Is(err, apperr.KindPrecondition) {
		t.Errorf("expected precondition error, got %v", err)
	}
}

func TestCalculateIsMonotonicInWeight(t *testing.T) {
	s := fixture(t)

	var previous decimal.Decimal
	for w := 0.5; w <= 160; w += 2.5 {
		b, err := calculate(t, s, Request{DirectionID: direction, Weight: w, Volume: 0.01})
		if err != nil {
			t.Fatalf("weight %.1f: unexpected error: %v", w, err)
		}
		if b.Total.LessThan(previous) {
			t.Fatalf("price dropped from %s to %s at weight %.1f", previous, b.Total, w)
		}
		previous = b.Total
	}
}

func TestCalculateRejectsNegativeSize(t *testing.T) {
	s := fixture(t)

	if _, err := calculate(t, s, Request{DirectionID: direction, Weight: -1}); !apperr.Is(err, apperr.KindPrecondition) {
		t.Errorf("expected precondition error, got %v", err)
	}
}
