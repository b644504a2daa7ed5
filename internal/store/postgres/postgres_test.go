package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jogardn/cargo-lifecycle/internal/logging"
	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
	prev := now
	now = func() time.Time { return fixedNow }
	t.Cleanup(func() { now = prev })
	return New(db, logging.Discard()), mock
}

func columns(list string) []string {
	var out []string
	for _, c := range strings.Split(list, ",") {
		out = append(out, strings.TrimSpace(c))
	}
	return out
}

func orderRow(id int64, status models.OrderStatus) []driver.Value {
	return []driver.Value{id, "Sender", "+77001112233", "", "Receiver", "+77004445566", "", nil, "",
		12.0, 0.4, "50000.00", string(status), nil, "PICKUP", "DELIVERY", nil, int64(10), int64(30),
		int64(1), nil, int64(7), "4000.00", "", "", true, false, "", "", int64(3), fixedNow, fixedNow}
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE signing_codes SET used = TRUE WHERE id = \$1`).
		WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	if err := s.WithTx(ctx, func(tx store.Tx) error {
		return tx.SigningCodes().MarkUsed(ctx, 5)
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()
	if err := s.WithTx(ctx, func(tx store.Tx) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("expected callback error, got %v", err)
	}
}

func TestGetForUpdateLocksRow(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM orders WHERE id = \$1 FOR UPDATE`).WithArgs(int64(100001)).
		WillReturnRows(sqlmock.NewRows(columns(orderColumns)).AddRow(orderRow(100001, models.StatusInTransit)...))
	mock.ExpectQuery(`SELECT .+ FROM orders WHERE id = \$1$`).WithArgs(int64(100002)).
		WillReturnRows(sqlmock.NewRows(columns(orderColumns)))
	mock.ExpectRollback()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		order, err := tx.Orders().GetForUpdate(ctx, 100001)
		if err != nil {
			return err
		}
		if order.Status != models.StatusInTransit || order.ClientID != nil || *order.CourierID != 7 {
			t.Errorf("unexpected order %+v", order)
		}
		if !order.Insurance.Equal(decimal.NewFromInt(50000)) || order.Version != 3 {
			t.Errorf("unexpected insurance %s or version %d", order.Insurance, order.Version)
		}
		_, err = tx.Orders().Get(ctx, 100002)
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUniqueViolationIsDuplicate(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO shipment_responses`).
		WithArgs(int64(3), int64(101), "RESPONDED", fixedNow).
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "shipment_responses_shipment_id_driver_id_key"})
	mock.ExpectRollback()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		return tx.Responses().Create(ctx, &models.ShipmentResponse{ShipmentID: 3, DriverID: 101, Status: models.ResponseResponded})
	})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestOrderListBuildsFilter(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()
	warehouse := int64(10)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM orders WHERE status = ANY\(\$1\) AND warehouse_id = \$2 AND \(id::text ILIKE \$3 OR sender_name ILIKE \$3`).
		WithArgs(sqlmock.AnyArg(), warehouse, "%7701%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(41))
	mock.ExpectQuery(`ORDER BY created_at DESC, id DESC LIMIT \$4 OFFSET \$5`).
		WithArgs(sqlmock.AnyArg(), warehouse, "%7701%", 20, 20).
		WillReturnRows(sqlmock.NewRows(columns(orderColumns)).AddRow(orderRow(100001, models.StatusAcceptedToWarehouse)...))
	mock.ExpectCommit()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		orders, total, err := tx.Orders().List(ctx, store.OrderFilter{
			Statuses:    []models.OrderStatus{models.StatusAcceptedToWarehouse},
			WarehouseID: &warehouse,
			Search:      " 7701 ",
			Page:        store.Page{Page: 2},
		})
		if err != nil {
			return err
		}
		if total != 41 || len(orders) != 1 || orders[0].ID != 100001 {
			t.Errorf("unexpected page: total %d, %+v", total, orders)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestShipmentLoadsStops(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	row := []driver.Value{int64(3), "ROAD", "IN_TRANSIT", "120000.00", nil, int64(10), int64(30), int64(101),
		"777ABC02", 800.0, 4.5, fixedNow, nil, 43.25, 76.9, true, "", "", true, fixedNow, fixedNow}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM shipments WHERE id = \$1`).WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(columns(shipmentColumns)).AddRow(row...))
	mock.ExpectQuery(`FROM shipment_stops WHERE shipment_id = ANY\(\$1\) ORDER BY shipment_id, position`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"shipment_id", "warehouse_id", "visited"}).
			AddRow(int64(3), int64(20), true).
			AddRow(int64(3), int64(30), false))
	mock.ExpectRollback()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		shipment, err := tx.Shipments().Get(ctx, 3)
		if err != nil {
			return err
		}
		if len(shipment.Stops) != 2 || !shipment.Stops[0].Visited || shipment.Stops[1].WarehouseID != 30 {
			t.Errorf("unexpected stops %+v", shipment.Stops)
		}
		if shipment.DirectionID != nil || *shipment.Latitude != 43.25 || shipment.AllStopsVisited() {
			t.Errorf("unexpected shipment %+v", shipment)
		}
		return errors.New("done")
	})
	if err == nil || err.Error() != "done" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMarkStopVisited(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM shipments WHERE id = \$1\)`).WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`UPDATE shipment_stops SET visited = TRUE WHERE shipment_id = \$1 AND warehouse_id = \$2`).
		WithArgs(int64(3), int64(99)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM shipments WHERE id = \$1\)`).WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		found, err := tx.Shipments().MarkStopVisited(ctx, 3, 99)
		if err != nil || found {
			t.Errorf("expected no stop at warehouse 99, got %v, %v", found, err)
		}
		_, err = tx.Shipments().MarkStopVisited(ctx, 4, 20)
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown shipment, got %v", err)
	}
}

func TestPendingDocumentsUpsertAndDue(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO pending_documents .+ ON CONFLICT \(kind, owner_id\) DO UPDATE`).
		WithArgs("WAIVER_AGREEMENT", int64(100001), "store down", fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id", "attempts", "created_at", "updated_at"}).AddRow(int64(9), 2, fixedNow, fixedNow))
	mock.ExpectQuery(`FROM pending_documents WHERE attempts < \$1 ORDER BY id LIMIT \$2`).
		WithArgs(10, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "owner_id", "attempts", "last_error", "created_at", "updated_at"}).
			AddRow(int64(9), "WAIVER_AGREEMENT", int64(100001), 2, "store down", fixedNow, fixedNow))
	mock.ExpectExec(`UPDATE pending_documents SET attempts = attempts \+ 1`).
		WithArgs(int64(9), "still down", fixedNow).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		doc := &models.PendingDocument{Kind: models.DocumentWaiverAgreement, OwnerID: 100001, LastError: "store down"}
		if err := tx.Documents().Add(ctx, doc); err != nil {
			return err
		}
		if doc.ID != 9 || doc.Attempts != 2 {
			t.Errorf("expected existing record to be returned, got %+v", doc)
		}
		due, err := tx.Documents().Due(ctx, 10, 0)
		if err != nil {
			return err
		}
		if len(due) != 1 || due[0].Kind != models.DocumentWaiverAgreement {
			t.Errorf("unexpected due list %+v", due)
		}
		return tx.Documents().Fail(ctx, 9, "still down")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCourierStatsDefaultsToZero(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT accepted_orders, delivered_orders, profit FROM courier_stats`).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"accepted_orders", "delivered_orders", "profit"}))
	mock.ExpectExec(`ON CONFLICT \(courier_id\) DO UPDATE SET delivered_orders = courier_stats.delivered_orders \+ 1`).
		WithArgs(int64(7), decimal.NewFromInt(1500)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		stats, err := tx.Couriers().Stats(ctx, 7)
		if err != nil {
			return err
		}
		if stats.CourierID != 7 || stats.AcceptedOrders != 0 || !stats.Profit.IsZero() {
			t.Errorf("unexpected stats %+v", stats)
		}
		return tx.Couriers().AddDelivered(ctx, 7, decimal.NewFromInt(1500))
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateTables(t *testing.T) {
	s, mock := newMock(t)
	for range schema {
		mock.ExpectExec(`CREATE`).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	if err := s.CreateTables(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
