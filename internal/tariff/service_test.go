package tariff

import (
	"context"
	"testing"

	"github.com/jogardn/cargo-lifecycle/internal/apperr"
	"github.com/jogardn/cargo-lifecycle/internal/auth"
	"github.com/jogardn/cargo-lifecycle/internal/logging"
	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/internal/store/memstore"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/shopspring/decimal"
)

var admin = auth.Actor{ID: 1}

func TestCreateBracketsIncrementsPrice(t *testing.T) {
	svc := NewService(memstore.New(), auth.AllowAll{}, logging.Discard())
	dir := int64(2)

	rows, err := svc.CreateBrackets(context.Background(), admin, BracketRange{
		Type: models.CalcWeight, DirectionID: &dir, StartAmount: 1, EndAmount: 5,
		StartPrice: decimal.NewFromInt(1000), Increment: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected 5 brackets, got %d", len(rows))
	}
	if !rows[4].Price.Equal(decimal.NewFromInt(1400)) {
		t.Errorf("expected last bracket at 1400, got %s", rows[4].Price)
	}
}

func TestCreateBracketsUpdatesExistingRows(t *testing.T) {
	svc := NewService(memstore.New(), auth.AllowAll{}, logging.Discard())
	ctx := context.Background()
	dir := int64(2)

	r := BracketRange{Type: models.CalcHandling, DirectionID: &dir, StartAmount: 1, EndAmount: 3, StartPrice: decimal.NewFromInt(10)}
	if _, err := svc.CreateBrackets(ctx, admin, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.StartPrice = decimal.NewFromInt(20)
	if _, err := svc.CreateBrackets(ctx, admin, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, err := svc.List(ctx, admin, store.TariffFilter{Type: models.CalcHandling, DirectionID: &dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected brackets to be updated in place, got %d rows", len(rows))
	}
	for _, row := range rows {
		if !row.Price.Equal(decimal.NewFromInt(20)) {
			t.Errorf("bracket %d still at %s", row.Amount, row.Price)
		}
	}
}

func TestRangeBounds(t *testing.T) {
	svc := NewService(memstore.New(), auth.AllowAll{}, logging.Discard())
	ctx := context.Background()

	_, err := svc.CreateBrackets(ctx, admin, BracketRange{Type: models.CalcWeight, StartAmount: 1, EndAmount: 501})
	if !apperr.Is(err, apperr.KindPrecondition) {
		t.Errorf("expected weight range above 500 to fail, got %v", err)
	}

	_, err = svc.SetDeliveryBrackets(ctx, admin, DeliveryRange{Type: models.CalcDeliveryVolume, StartAmount: 1, EndAmount: 16})
	if !apperr.Is(err, apperr.KindPrecondition) {
		t.Errorf("expected volume range above 15 to fail, got %v", err)
	}

	_, err = svc.SetDeliveryBrackets(ctx, admin, DeliveryRange{Type: models.CalcWeight, StartAmount: 1, EndAmount: 2})
	if !apperr.Is(err, apperr.KindPrecondition) {
		t.Errorf("expected trunk type to be rejected for delivery brackets, got %v", err)
	}
}

func TestListDeliveryCollapsesRanges(t *testing.T) {
	svc := NewService(memstore.New(), auth.AllowAll{}, logging.Discard())
	ctx := context.Background()

	for _, r := range []DeliveryRange{
		{Type: models.CalcDeliveryWeight, StartAmount: 1, EndAmount: 10, Price: decimal.NewFromInt(1000)},
		{Type: models.CalcDeliveryWeight, StartAmount: 11, EndAmount: 50, Price: decimal.NewFromInt(2500)},
	} {
		if _, err := svc.SetDeliveryBrackets(ctx, admin, r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	ranges, err := svc.ListDelivery(ctx, admin, models.CalcDeliveryWeight, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranges) != 2 {
		t.Fatalf("expected 2 ranges, got %+v", ranges)
	}
	if ranges[1].StartAmount != 11 || ranges[1].EndAmount != 50 {
		t.Errorf("unexpected second range %+v", ranges[1])
	}
}

func TestSetLimitAndUpdatePrices(t *testing.T) {
	svc := NewService(memstore.New(), auth.AllowAll{}, logging.Discard())
	ctx := context.Background()

	limit, err := svc.SetLimit(ctx, admin, models.CalcWeight, 3, decimal.NewFromInt(55))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !limit.IsLimit || limit.Amount != 0 {
		t.Errorf("unexpected limit row %+v", limit)
	}

	if _, err := svc.SetLimit(ctx, admin, models.CalcVolume, 3, decimal.NewFromInt(1)); !apperr.Is(err, apperr.KindPrecondition) {
		t.Errorf("expected VOLUME limit to be rejected, got %v", err)
	}

	if err := svc.UpdatePrices(ctx, admin, []PriceUpdate{{ID: limit.ID, Price: decimal.NewFromInt(60)}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.UpdatePrices(ctx, admin, []PriceUpdate{{ID: 999, Price: decimal.NewFromInt(1)}}); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestAuthoringRequiresCapability(t *testing.T) {
	svc := NewService(memstore.New(), auth.Static{}, logging.Discard())

	_, err := svc.CreateBrackets(context.Background(), admin, BracketRange{Type: models.CalcWeight, StartAmount: 1, EndAmount: 2})
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}
