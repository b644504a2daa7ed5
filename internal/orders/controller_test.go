package orders

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jogardn/cargo-lifecycle/internal/apperr"
	"github.com/jogardn/cargo-lifecycle/internal/auth"
	"github.com/jogardn/cargo-lifecycle/internal/events"
	"github.com/jogardn/cargo-lifecycle/internal/history"
	"github.com/jogardn/cargo-lifecycle/internal/lifecycle"
	"github.com/jogardn/cargo-lifecycle/internal/logging"
	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/internal/store/memstore"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/shopspring/decimal"
)

var manager = auth.Actor{ID: 1}

type sequentialIDs struct{ next int64 }

func (g *sequentialIDs) Next(ctx context.Context, exists func(int64) (bool, error)) (int64, error) {
	g.next++
	return g.next, nil
}

type fixedCode string

func (c fixedCode) Code() (string, error) { return string(c), nil }

type recordingNotifier struct {
	sent []events.Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, msg events.Notification) error {
	n.sent = append(n.sent, msg)
	return nil
}

type recordingDocuments struct {
	generated []models.DocumentKind
}

func (d *recordingDocuments) Generate(ctx context.Context, kind models.DocumentKind, ownerID int64) (string, error) {
	d.generated = append(d.generated, kind)
	return fmt.Sprintf("docs/%s/%d", kind, ownerID), nil
}

type fixture struct {
	store     *memstore.Store
	orders    *Controller
	items     *ItemService
	notifier  *recordingNotifier
	documents *recordingDocuments
	scans     int
}

func seeded() *memstore.Store {
	s := memstore.New()
	s.PutCity(models.City{ID: 1, Name: "Almaty"})
	s.PutCity(models.City{ID: 2, Name: "Astana"})
	s.PutWarehouse(models.Warehouse{ID: 10, Name: "Almaty hub", CityID: 1})
	s.PutWarehouse(models.Warehouse{ID: 20, Name: "Karaganda hub", CityID: 2})
	s.PutWarehouse(models.Warehouse{ID: 30, Name: "Astana hub", CityID: 2})
	s.PutDirection(models.Direction{ID: 1, DepartureCityID: 1, ArrivalCityID: 2, TransportType: models.TransportRoad, IsActive: true})
	s.PutUser(models.User{ID: 1, FirstName: "Aliya", LastName: "Manager"})
	s.PutUser(models.User{ID: 7, FirstName: "Timur", LastName: "Courier", Phone: "+77010000007"})
	s.PutExpense(models.Expense{ID: 1, Name: "Packaging", Price: decimal.NewFromInt(1500)})
	s.PutExpense(models.Expense{ID: 2, Name: "Pallet", Price: decimal.NewFromInt(2500)})
	return s
}

func newFixture(opts ...func(*Deps)) *fixture {
	s := seeded()
	logger := logging.Discard()
	f := &fixture{store: s, notifier: &recordingNotifier{}, documents: &recordingDocuments{}}
	d := Deps{
		Store:       s,
		Machine:     lifecycle.New(history.New(logger)),
		IDs:         &sequentialIDs{next: 100000},
		Codes:       fixedCode("123456"),
		Notifier:    f.notifier,
		Documents:   f.documents,
		TrackingURL: "https://track.example.kz/",
		Logger:      logger,
	}
	for _, opt := range opts {
		opt(&d)
	}
	f.orders = NewController(d)
	f.items = NewItemService(d, nil)
	return f
}

func (f *fixture) create(t *testing.T, items int) *models.Order {
	t.Helper()
	in := NewOrder{
		SenderName:             "Sender",
		SenderPhone:            "+77001112233",
		ReceiverName:           "Receiver",
		ReceiverPhone:          "+77004445566",
		TotalWeight:            12,
		TotalVolume:            0.4,
		DirectionID:            1,
		DestinationWarehouseID: ptr(30),
		Payment:                NewPayment{Amount: decimal.NewFromInt(9000)},
	}
	for i := 0; i < items; i++ {
		f.scans++
		in.Items = append(in.Items, NewItem{ScanCode: fmt.Sprintf("SC-%04d", f.scans)})
	}
	order, err := f.orders.CreateOrder(context.Background(), manager, in)
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}
	return order
}

func (f *fixture) load(t *testing.T, id int64) (*models.Order, []models.OrderItem) {
	t.Helper()
	var (
		order *models.Order
		items []models.OrderItem
	)
	err := f.store.WithTx(context.Background(), func(tx store.Tx) error {
		var err error
		if order, err = tx.Orders().Get(context.Background(), id); err != nil {
			return err
		}
		items, err = tx.Items().ListByOrder(context.Background(), id)
		return err
	})
	if err != nil {
		t.Fatalf("failed to load order %d: %v", id, err)
	}
	return order, items
}

// codes lists the action codes logged for the order itself or, with an
// item id, for that item.
func (f *fixture) codes(t *testing.T, orderID, itemID int64) []models.ActionCode {
	t.Helper()
	var out []models.ActionCode
	err := f.store.WithTx(context.Background(), func(tx store.Tx) error {
		rows, err := tx.History().ListByOrder(context.Background(), orderID)
		for _, h := range rows {
			switch {
			case itemID == 0 && h.OrderItemID == nil:
				out = append(out, h.Code)
			case itemID != 0 && h.OrderItemID != nil && *h.OrderItemID == itemID:
				out = append(out, h.Code)
			}
		}
		return err
	})
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	return out
}

func contains(codes []models.ActionCode, want models.ActionCode) bool {
	for _, c := range codes {
		if c == want {
			return true
		}
	}
	return false
}

func ptr(v int64) *int64 { return &v }

func TestCreateOrderRecordsItemsAndPayment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	order, err := f.orders.CreateOrder(ctx, manager, NewOrder{
		TotalWeight: 3,
		DirectionID: 1,
		ExpenseIDs:  []int64{1, 2, 99},
		Payment:     NewPayment{Amount: decimal.NewFromInt(5000)},
		Items:       []NewItem{{ScanCode: "A-1"}, {ScanCode: "A-2"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.ID != 100001 {
		t.Errorf("expected generated id 100001, got %d", order.ID)
	}
	if order.Status != models.StatusCreated {
		t.Errorf("expected CREATED, got %s", order.Status)
	}
	if !order.ExpensesPrice.Equal(decimal.NewFromInt(4000)) {
		t.Errorf("expected expenses 4000, got %s", order.ExpensesPrice)
	}

	view, err := f.orders.GetOrder(ctx, manager, order.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(view.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(view.Items))
	}
	if view.Payment == nil || view.Payment.Status != models.PaymentNotPaid || view.Payment.PaymentType != models.PaymentCash {
		t.Errorf("unexpected payment %+v", view.Payment)
	}
	if len(view.History) != 3 {
		t.Errorf("expected one creation row per order and item, got %d", len(view.History))
	}
	if view.Direction == nil || view.Direction.ID != 1 {
		t.Errorf("expected direction in view, got %+v", view.Direction)
	}
}

func TestCreateOrderQuotesMissingAmount(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	dir := int64(1)
	err := f.store.WithTx(ctx, func(tx store.Tx) error {
		for _, tr := range []models.Tariff{
			{Type: models.CalcWeight, DirectionID: &dir, Amount: 3, Price: decimal.NewFromInt(1000)},
			{Type: models.CalcHandling, DirectionID: &dir, Amount: 3, Price: decimal.NewFromInt(200)},
			{Type: models.CalcVolume, DirectionID: &dir, Amount: 1, Price: decimal.NewFromInt(30000)},
		} {
			tr := tr
			if err := tx.Tariffs().Upsert(ctx, &tr); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed tariffs: %v", err)
	}

	order, err := f.orders.CreateOrder(ctx, manager, NewOrder{TotalWeight: 2.4, DirectionID: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	view, _ := f.orders.GetOrder(ctx, manager, order.ID)
	if !view.Payment.Amount.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("expected quoted amount 1200, got %s", view.Payment.Amount)
	}
}

func TestCreateOrderWithoutTariffFails(t *testing.T) {
	f := newFixture()

	_, err := f.orders.CreateOrder(context.Background(), manager, NewOrder{TotalWeight: 2, DirectionID: 1})
	if !apperr.Is(err, apperr.KindPrecondition) {
		t.Fatalf("expected missing tariff to fail, got %v", err)
	}
	_, total, _ := f.orders.ListOrders(context.Background(), manager, store.OrderFilter{}, "")
	if total != 0 {
		t.Errorf("failed creation must not leave an order, found %d", total)
	}
}

func TestCreateOrderValidatesInput(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.orders.CreateOrder(ctx, manager, NewOrder{DirectionID: 1}); !apperr.Is(err, apperr.KindPrecondition) {
		t.Errorf("expected zero weight to fail, got %v", err)
	}
	if _, err := f.orders.CreateOrder(ctx, manager, NewOrder{TotalWeight: 1, DirectionID: 9}); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected unknown direction to fail, got %v", err)
	}
	_, err := f.orders.CreateOrder(ctx, manager, NewOrder{
		TotalWeight: 1, DirectionID: 1,
		Payment: NewPayment{Amount: decimal.NewFromInt(1)},
		Items:   []NewItem{{ScanCode: "DUP"}, {ScanCode: "DUP"}},
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("expected duplicate scan code conflict, got %v", err)
	}
}

func TestResumeNeverCancelledOrderFails(t *testing.T) {
	f := newFixture()
	order := f.create(t, 1)

	_, err := f.orders.Resume(context.Background(), manager, order.ID)
	if !apperr.Is(err, apperr.KindPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	if got, _ := f.load(t, order.ID); got.Status != models.StatusCreated {
		t.Errorf("order must stay CREATED, got %s", got.Status)
	}
}

func TestCancelAndResumeRestoreStatuses(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	order := f.create(t, 2)
	if _, err := f.orders.MarkAcceptedToWarehouse(ctx, manager, order.ID, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cancelled, err := f.orders.Cancel(ctx, manager, order.ID, "client changed their mind")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != models.StatusCancelled || cancelled.PreviousStatus == nil || *cancelled.PreviousStatus != models.StatusAcceptedToWarehouse {
		t.Fatalf("unexpected cancelled order %+v", cancelled)
	}
	if _, err := f.orders.Cancel(ctx, manager, order.ID, "again"); !apperr.Is(err, apperr.KindPrecondition) {
		t.Errorf("expected second cancel to fail, got %v", err)
	}

	resumed, err := f.orders.Resume(ctx, manager, order.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resumed.Status != models.StatusAcceptedToWarehouse || resumed.PreviousStatus != nil || resumed.CancellationReason != "" {
		t.Errorf("unexpected resumed order %+v", resumed)
	}
	_, items := f.load(t, order.ID)
	for _, item := range items {
		if item.Status != models.StatusAcceptedToWarehouse || item.PreviousStatus != nil {
			t.Errorf("item %d not restored: %+v", item.ID, item)
		}
	}
	codes := f.codes(t, order.ID, 0)
	if !contains(codes, models.ActionCancelled) || !contains(codes, models.ActionResumed) {
		t.Errorf("expected cancel and resume in history, got %v", codes)
	}
}

func TestCancelAfterDepartureFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	order := f.create(t, 1)
	if _, err := f.orders.MarkAcceptedToWarehouse(ctx, manager, order.ID, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.orders.MarkInTransit(ctx, manager, order.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := f.orders.Cancel(ctx, manager, order.ID, "late"); !apperr.Is(err, apperr.KindPrecondition) {
		t.Errorf("expected cancel in transit to fail, got %v", err)
	}
}

func TestUpdateOrderAdvancesByRole(t *testing.T) {
	ctx := context.Background()

	t.Run("client drop-off", func(t *testing.T) {
		f := newFixture(func(d *Deps) { d.Authorizer = auth.Static{1: {auth.UpdateOrder, auth.CreateOrder}} })
		order := f.create(t, 1)
		desc := "documents"
		updated, err := f.orders.UpdateOrder(ctx, manager, order.ID, OrderUpdate{Description: &desc})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.Status != models.StatusClientDeliveringToWarehouse || updated.Description != desc {
			t.Errorf("unexpected order %+v", updated)
		}
	})

	t.Run("courier pickup assigns and notifies", func(t *testing.T) {
		f := newFixture(func(d *Deps) { d.Authorizer = auth.Static{1: {auth.UpdateOrder, auth.CreateOrder}} })
		order := f.create(t, 1)
		pickup := models.DeliveryTypeDelivery
		updated, err := f.orders.UpdateOrder(ctx, manager, order.ID, OrderUpdate{CargoPickupType: &pickup, CourierID: ptr(7)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.Status != models.StatusAssignedToCourier {
			t.Errorf("expected ASSIGNED_TO_COURIER, got %s", updated.Status)
		}
		if len(f.notifier.sent) != 1 || f.notifier.sent[0].Template != events.TemplateCourierNewOrder || f.notifier.sent[0].Recipient != "+77010000007" {
			t.Errorf("expected courier notification, got %+v", f.notifier.sent)
		}
	})

	t.Run("warehouse staff accept", func(t *testing.T) {
		f := newFixture(func(d *Deps) {
			d.Authorizer = auth.Static{
				1: {auth.CreateOrder},
				5: {auth.UpdateOrder, auth.AcceptOrderToWarehouse},
			}
		})
		f.store.PutUser(models.User{ID: 5, FirstName: "Erlan", LastName: "Keeper", WarehouseID: ptr(10)})
		order := f.create(t, 2)
		updated, err := f.orders.UpdateOrder(ctx, auth.Actor{ID: 5}, order.ID, OrderUpdate{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.Status != models.StatusAcceptedToWarehouse || updated.StartWarehouseID == nil || *updated.StartWarehouseID != 10 {
			t.Errorf("unexpected order %+v", updated)
		}
	})
}

func TestMarkNotDeliveredClosesEveryItem(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	order := f.create(t, 2)
	if _, err := f.orders.MarkAcceptedToWarehouse(ctx, manager, order.ID, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.orders.MarkInTransit(ctx, manager, order.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, items := f.load(t, order.ID)
	for _, item := range items {
		if _, err := f.items.ArriveToDestination(ctx, manager, item.ID, 30); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if _, err := f.orders.MarkNotDelivered(ctx, manager, order.ID, "  "); !apperr.Is(err, apperr.KindPrecondition) {
		t.Errorf("expected a reason to be required, got %v", err)
	}
	closed, err := f.orders.MarkNotDelivered(ctx, manager, order.ID, "recipient refused")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closed.Status != models.StatusNotDelivered || closed.NotDeliveredReason != "recipient refused" {
		t.Errorf("unexpected order %+v", closed)
	}
	_, items = f.load(t, order.ID)
	for _, item := range items {
		if item.Status != models.StatusNotDelivered {
			t.Errorf("item %d: expected NOT_DELIVERED, got %s", item.ID, item.Status)
		}
		if !contains(f.codes(t, order.ID, item.ID), models.ActionNotDelivered) {
			t.Errorf("item %d has no NOT_DELIVERED history row", item.ID)
		}
	}
}

func TestAssignCourierDeliveryNeedsWholeOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	order := f.create(t, 2)
	if _, err := f.orders.MarkAcceptedToWarehouse(ctx, manager, order.ID, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, items := f.load(t, order.ID)

	_, err := f.orders.AssignCourierDelivery(ctx, auth.Actor{ID: 7}, []int64{items[0].ID})
	var e *apperr.Error
	if !errors.As(err, &e) || e.Code != "not_all_items_loaded" {
		t.Fatalf("expected not_all_items_loaded, got %v", err)
	}

	if _, err := f.orders.AssignCourierDelivery(ctx, auth.Actor{ID: 7}, []int64{424242}); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected unknown item to fail, got %v", err)
	}

	updated, err := f.orders.AssignCourierDelivery(ctx, auth.Actor{ID: 7}, []int64{items[0].ID, items[1].ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updated) != 1 || updated[0].CourierID == nil || *updated[0].CourierID != 7 {
		t.Errorf("expected courier 7 on the order, got %+v", updated)
	}
}

func TestWaiverSignatureDeliversOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	order := f.create(t, 1)
	delivery := models.DeliveryTypeDelivery
	if _, err := f.orders.UpdateOrder(ctx, manager, order.ID, OrderUpdate{DeliveryType: &delivery}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.orders.MarkAcceptedToWarehouse(ctx, manager, order.ID, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.orders.MarkInTransit(ctx, manager, order.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := f.orders.SendWaiverCode(ctx, manager, order.ID); !apperr.Is(err, apperr.KindPrecondition) {
		t.Errorf("expected waiver before arrival to fail, got %v", err)
	}

	_, items := f.load(t, order.ID)
	if _, err := f.items.ArriveToDestination(ctx, manager, items[0].ID, 30); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.orders.AssignCourierDelivery(ctx, auth.Actor{ID: 7}, []int64{items[0].ID}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.orders.SendWaiverCode(ctx, manager, order.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last := f.notifier.sent[len(f.notifier.sent)-1]; last.Recipient != "+77004445566" || last.Params["code"] != "123456" {
		t.Errorf("expected code sent to the receiver, got %+v", last)
	}

	if _, err := f.orders.AcceptWaiver(ctx, manager, order.ID, "654321"); !apperr.Is(err, apperr.KindPrecondition) {
		t.Errorf("expected wrong code to fail, got %v", err)
	}
	delivered, err := f.orders.AcceptWaiver(ctx, manager, order.ID, "123456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delivered.Status != models.StatusDelivered || !delivered.IsWaiverAgreementAccepted {
		t.Errorf("unexpected order %+v", delivered)
	}
	if len(f.documents.generated) != 1 || f.documents.generated[0] != models.DocumentWaiverAgreement {
		t.Errorf("expected waiver document, got %v", f.documents.generated)
	}

	var stats *models.CourierStats
	_ = f.store.WithTx(ctx, func(tx store.Tx) error {
		stats, err = tx.Couriers().Stats(ctx, 7)
		return err
	})
	if stats.DeliveredOrders != 1 {
		t.Errorf("expected courier delivery to be counted, got %+v", stats)
	}
}

func TestPublicOfferSendsTrackingLinks(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	order := f.create(t, 1)

	if err := f.orders.SendPublicOfferCode(ctx, manager, order.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.notifier.sent) != 3 {
		t.Fatalf("expected code plus two tracking links, got %+v", f.notifier.sent)
	}
	link := f.notifier.sent[2].Params["link"]
	if want := fmt.Sprintf("https://track.example.kz/%d", order.ID); link != want {
		t.Errorf("expected link %s, got %s", want, link)
	}

	signed, err := f.orders.AcceptPublicOffer(ctx, manager, order.ID, "123456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !signed.IsPublicOfferAccepted {
		t.Error("expected public offer to be accepted")
	}
	if err := f.orders.SendPublicOfferCode(ctx, manager, order.ID); !apperr.Is(err, apperr.KindPrecondition) {
		t.Errorf("expected signed offer to refuse a new code, got %v", err)
	}
}

func TestPaymentStatusNeedsPayerCapability(t *testing.T) {
	f := newFixture(func(d *Deps) {
		d.Authorizer = auth.Static{1: {auth.CreateOrder, auth.UpdateOrder, auth.UpdatePaymentStatusFL}}
	})
	ctx := context.Background()
	order := f.create(t, 1)

	paid, err := f.orders.MarkPaid(ctx, manager, order.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if paid.Status != models.PaymentPaid || paid.PaidAt == nil {
		t.Errorf("unexpected payment %+v", paid)
	}

	legal := models.PayerLegal
	if _, err := f.orders.UpdatePayment(ctx, manager, order.ID, PaymentUpdate{PayerType: &legal}); !apperr.Is(err, apperr.KindPrecondition) {
		t.Errorf("expected BIN to be required, got %v", err)
	}
	bin := "123456789012"
	if _, err := f.orders.UpdatePayment(ctx, manager, order.ID, PaymentUpdate{PayerType: &legal, BIN: &bin}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.orders.MarkNotPaid(ctx, manager, order.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("expected legal payments to need the UL capability, got %v", err)
	}
}

func TestListOrdersByGroup(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	first := f.create(t, 1)
	f.create(t, 1)
	if _, err := f.orders.MarkAcceptedToWarehouse(ctx, manager, first.ID, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, total, err := f.orders.ListOrders(ctx, manager, store.OrderFilter{}, "warehouse")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || rows[0].ID != first.ID {
		t.Errorf("expected only the accepted order, got %+v", rows)
	}
	if _, _, err := f.orders.ListOrders(ctx, manager, store.OrderFilter{}, "bogus"); !apperr.Is(err, apperr.KindPrecondition) {
		t.Errorf("expected unknown group to fail, got %v", err)
	}
}

func TestStorageFineInView(t *testing.T) {
	arrived := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(func(d *Deps) {
		d.Machine = lifecycle.New(history.New(logging.Discard()).WithClock(func() time.Time { return arrived }))
		d.Now = func() time.Time { return arrived.Add(5*24*time.Hour + time.Hour) }
	})
	ctx := context.Background()
	order := f.create(t, 2)
	if _, err := f.orders.MarkAcceptedToWarehouse(ctx, manager, order.ID, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.orders.MarkInTransit(ctx, manager, order.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, items := f.load(t, order.ID)
	if _, err := f.items.ArriveToDestination(ctx, manager, items[0].ID, 30); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	view, err := f.orders.GetOrder(ctx, manager, order.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !view.StorageFine.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected two fined days, got %s", view.StorageFine)
	}
	if !view.Items[1].StorageFine.IsZero() {
		t.Errorf("item still in transit must not be fined, got %s", view.Items[1].StorageFine)
	}
}
