package history

import (
	"context"
	"testing"
	"time"

	"github.com/jogardn/cargo-lifecycle/internal/logging"
	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/internal/store/memstore"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
)

func seeded() *memstore.Store {
	s := memstore.New()
	s.PutCity(models.City{ID: 1, Name: "Almaty"})
	s.PutCity(models.City{ID: 2, Name: "Astana"})
	s.PutWarehouse(models.Warehouse{ID: 10, Name: "Central", CityID: 1})
	s.PutUser(models.User{ID: 50, FirstName: "Dana", LastName: "Ospanova"})
	s.PutUser(models.User{ID: 60, FirstName: "Arman", LastName: "Bekov", MiddleName: "Kairatovich"})
	return s
}

func TestAddIsIdempotentPerItemAndCode(t *testing.T) {
	s := seeded()
	log := New(logging.Discard())
	ctx := context.Background()

	entry := Entry{OrderID: 123456, OrderItemID: 7, Code: models.ActionAcceptedToWarehouse, WarehouseID: 10, WarehouseManagerID: 50}

	err := s.WithTx(ctx, func(tx store.Tx) error {
		first, err := log.Add(ctx, tx, entry)
		if err != nil {
			return err
		}
		second, err := log.Add(ctx, tx, entry)
		if err != nil {
			return err
		}
		if first.ID != second.ID {
			t.Errorf("expected the stored row back, got ids %d and %d", first.ID, second.ID)
		}

		rows, err := log.ForItem(ctx, tx, 7)
		if err != nil {
			return err
		}
		if len(rows) != 1 {
			t.Errorf("expected exactly one row, got %d", len(rows))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOrderAndItemRowsAreIndependent(t *testing.T) {
	s := seeded()
	log := New(logging.Discard())
	ctx := context.Background()

	_ = s.WithTx(ctx, func(tx store.Tx) error {
		if _, err := log.Add(ctx, tx, Entry{OrderID: 123456, OrderItemID: 7, Code: models.ActionInTransit}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := log.Add(ctx, tx, Entry{OrderID: 123456, Code: models.ActionInTransit}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		rows, _ := log.ForOrder(ctx, tx, 123456)
		if len(rows) != 2 {
			t.Errorf("expected item and order rows, got %d", len(rows))
		}
		return nil
	})
}

func TestDescriptionIsFrozenAtWriteTime(t *testing.T) {
	s := seeded()
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	log := New(logging.Discard()).WithClock(func() time.Time { return fixed })
	ctx := context.Background()

	var row *models.ActionHistory
	_ = s.WithTx(ctx, func(tx store.Tx) error {
		var err error
		row, err = log.Add(ctx, tx, Entry{
			OrderID: 123456, Code: models.ActionAcceptedToWarehouse, WarehouseID: 10, WarehouseManagerID: 50,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return nil
	})

	want := "Accepted at warehouse Central, Almaty - Ospanova Dana"
	if row.Description != want {
		t.Errorf("expected %q, got %q", want, row.Description)
	}
	if !row.CreatedAt.Equal(fixed) {
		t.Errorf("expected created_at %v, got %v", fixed, row.CreatedAt)
	}

	s.PutUser(models.User{ID: 50, FirstName: "Dana", LastName: "Serikova"})

	_ = s.WithTx(ctx, func(tx store.Tx) error {
		rows, _ := log.ForOrder(ctx, tx, 123456)
		if rows[0].Description != want {
			t.Errorf("stored description changed to %q", rows[0].Description)
		}
		return nil
	})
}

func TestRenderedDescriptions(t *testing.T) {
	s := seeded()
	log := New(logging.Discard())
	ctx := context.Background()

	tests := []struct {
		entry Entry
		want  string
	}{
		{Entry{OrderID: 1, Code: models.ActionManagerApproved, ManagerID: 60}, "Manager Bekov Arman Kairatovich approved the order"},
		{Entry{OrderID: 2, Code: models.ActionCourierDeliveringToWarehouse, CourierID: 50}, "Courier Ospanova Dana picked up the cargo"},
		{Entry{OrderID: 3, Code: models.ActionInTransit, DepartureCityID: 1, ArrivalCityID: 2}, "Cargo in transit Almaty - Astana"},
		{Entry{OrderID: 4, Code: models.ActionDelivered}, "Delivered, self pickup"},
		{Entry{OrderID: 5, Code: models.ActionDelivered, CourierID: 50}, "Delivered by courier Ospanova Dana"},
		{Entry{OrderID: 6, Code: models.ActionNotDelivered, Note: "recipient absent"}, "Not delivered: recipient absent"},
		{Entry{OrderID: 7, Code: models.ActionArrivedMiddleWarehouse, WarehouseID: 10}, "Cargo arrived at intermediate warehouse Central, Almaty"},
	}

	_ = s.WithTx(ctx, func(tx store.Tx) error {
		for _, tt := range tests {
			row, err := log.Add(ctx, tx, tt.entry)
			if err != nil {
				t.Fatalf("unexpected error for %s: %v", tt.entry.Code, err)
			}
			if row.Description != tt.want {
				t.Errorf("%s: expected %q, got %q", tt.entry.Code, tt.want, row.Description)
			}
		}
		return nil
	})
}

func TestAddRejectsEntryWithoutSubject(t *testing.T) {
	s := seeded()
	log := New(logging.Discard())
	ctx := context.Background()

	_ = s.WithTx(ctx, func(tx store.Tx) error {
		if _, err := log.Add(ctx, tx, Entry{Code: models.ActionOrderCreated}); err == nil {
			t.Error("expected an error for an entry without order or item")
		}
		return nil
	})
}
