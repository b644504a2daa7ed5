package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/shopspring/decimal"
)

func TestFailedTransactionLeavesNoTrace(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Orders().Create(ctx, &models.Order{ID: 100001, Status: models.StatusCreated}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	_ = s.WithTx(ctx, func(tx store.Tx) error {
		exists, _ := tx.Orders().Exists(ctx, 100001)
		if exists {
			t.Error("order from a rolled back transaction is visible")
		}
		return nil
	})
}

func TestShipmentStopsAreNotAliased(t *testing.T) {
	s := New()
	ctx := context.Background()

	var id int64
	_ = s.WithTx(ctx, func(tx store.Tx) error {
		sh := &models.Shipment{Status: models.ShipmentNew, Stops: []models.ShipmentStop{{WarehouseID: 5}}}
		if err := tx.Shipments().Create(ctx, sh); err != nil {
			return err
		}
		id = sh.ID
		got, _ := tx.Shipments().Get(ctx, id)
		got.Stops[0].Visited = true
		return nil
	})

	_ = s.WithTx(ctx, func(tx store.Tx) error {
		got, err := tx.Shipments().Get(ctx, id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Stops[0].Visited {
			t.Error("mutating a returned shipment changed stored stops")
		}
		visited, _ := tx.Shipments().MarkStopVisited(ctx, id, 5)
		if !visited {
			t.Error("expected stop at warehouse 5")
		}
		return nil
	})
}

func TestDuplicateScanCode(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Items().Create(ctx, &models.OrderItem{OrderID: 1, ScanCode: "KZ-1"}); err != nil {
			return err
		}
		return tx.Items().Create(ctx, &models.OrderItem{OrderID: 1, ScanCode: "KZ-1"})
	})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestTariffUpsertUpdatesInPlace(t *testing.T) {
	s := New()
	ctx := context.Background()
	dir := int64(3)

	_ = s.WithTx(ctx, func(tx store.Tx) error {
		first := &models.Tariff{Type: models.CalcWeight, DirectionID: &dir, Amount: 10, Price: decimal.NewFromInt(100)}
		if err := tx.Tariffs().Upsert(ctx, first); err != nil {
			return err
		}
		second := &models.Tariff{Type: models.CalcWeight, DirectionID: &dir, Amount: 10, Price: decimal.NewFromInt(150)}
		if err := tx.Tariffs().Upsert(ctx, second); err != nil {
			return err
		}
		if first.ID != second.ID {
			t.Errorf("expected the same row, got ids %d and %d", first.ID, second.ID)
		}

		rows, _ := tx.Tariffs().List(ctx, store.TariffFilter{Type: models.CalcWeight})
		if len(rows) != 1 || !rows[0].Price.Equal(decimal.NewFromInt(150)) {
			t.Errorf("unexpected rows %+v", rows)
		}
		return nil
	})
}

func TestHistoryFindSeparatesOrderAndItemRows(t *testing.T) {
	s := New()
	ctx := context.Background()
	orderID, itemID := int64(200200), int64(7)

	_ = s.WithTx(ctx, func(tx store.Tx) error {
		_ = tx.History().Create(ctx, &models.ActionHistory{OrderID: &orderID, OrderItemID: &itemID, Code: models.ActionInTransit})

		if _, err := tx.History().Find(ctx, &orderID, nil, models.ActionInTransit); !errors.Is(err, store.ErrNotFound) {
			t.Error("item row must not satisfy an order-level lookup")
		}
		if _, err := tx.History().Find(ctx, &orderID, &itemID, models.ActionInTransit); err != nil {
			t.Errorf("expected item row, got %v", err)
		}
		return nil
	})
}
