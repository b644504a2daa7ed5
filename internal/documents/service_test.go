package documents

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jogardn/cargo-lifecycle/internal/logging"
	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/internal/store/memstore"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/shopspring/decimal"
)

var errStoreDown = errors.New("document store unavailable")

// flakyStorage fails while down is set.
type flakyStorage struct {
	*MemoryStorage
	mu   sync.Mutex
	down bool
}

func (f *flakyStorage) Store(ctx context.Context, name string, data []byte) (string, error) {
	f.mu.Lock()
	down := f.down
	f.mu.Unlock()
	if down {
		return "", errStoreDown
	}
	return f.MemoryStorage.Store(ctx, name, data)
}

func (f *flakyStorage) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

func newTestService(t *testing.T) (*Service, *memstore.Store, *flakyStorage) {
	t.Helper()
	s := memstore.New()
	s.PutDirection(models.Direction{ID: 1, DepartureCityID: 1, ArrivalCityID: 2, TransportType: models.TransportRoad, IsActive: true})
	s.PutDirection(models.Direction{ID: 2, DepartureCityID: 1, ArrivalCityID: 3, TransportType: models.TransportAir, IsActive: true})
	s.PutUser(models.User{ID: 5, FirstName: "Erlan", LastName: "Driver", Phone: "+77015550000"})

	storage := &flakyStorage{MemoryStorage: NewMemoryStorage()}
	svc := NewService(s, storage, logging.Discard())
	svc.now = func() time.Time { return time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC) }
	return svc, s, storage
}

func createOrder(t *testing.T, s store.Store, id, directionID int64) {
	t.Helper()
	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.Orders().Create(context.Background(), &models.Order{
			ID:            id,
			SenderName:    "Aigerim Sender",
			SenderPhone:   "+77001112233",
			ReceiverName:  "Daniyar Receiver",
			ReceiverPhone: "+77004445566",
			TotalWeight:   12,
			Insurance:     decimal.NewFromInt(50000),
			Status:        models.StatusDelivered,
			DirectionID:   directionID,
		})
	})
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}
}

func loadOrder(t *testing.T, s store.Store, id int64) *models.Order {
	t.Helper()
	var order *models.Order
	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		var err error
		order, err = tx.Orders().Get(context.Background(), id)
		return err
	})
	if err != nil {
		t.Fatalf("failed to load order: %v", err)
	}
	return order
}

func pending(t *testing.T, s store.Store) []models.PendingDocument {
	t.Helper()
	var docs []models.PendingDocument
	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		var err error
		docs, err = tx.Documents().Due(context.Background(), 100, 0)
		return err
	})
	if err != nil {
		t.Fatalf("failed to list pending documents: %v", err)
	}
	return docs
}

func TestGenerateStoresDocumentOnOrder(t *testing.T) {
	svc, s, storage := newTestService(t)
	ctx := context.Background()
	createOrder(t, s, 100001, 1)

	ref, err := svc.Generate(ctx, models.DocumentWaiverAgreement, 100001)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := loadOrder(t, s, 100001).WaiverAgreementURL; got != ref {
		t.Errorf("expected order to carry %q, got %q", ref, got)
	}

	data, err := storage.Fetch(ctx, ref)
	if err != nil {
		t.Fatalf("failed to fetch document: %v", err)
	}
	text := string(data)
	for _, want := range []string{"WAIVER AGREEMENT", "Order No. 100001 of 15.03.2024", "Daniyar Receiver (+77004445566)"} {
		if !strings.Contains(text, want) {
			t.Errorf("document is missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "AIR FREIGHT") {
		t.Error("road order rendered with air wording")
	}
}

func TestGenerateUsesAirWording(t *testing.T) {
	svc, s, storage := newTestService(t)
	ctx := context.Background()
	createOrder(t, s, 100002, 2)

	ref, err := svc.Generate(ctx, models.DocumentPublicOffer, 100002)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := storage.Fetch(ctx, ref)
	if !strings.Contains(string(data), "PUBLIC OFFER (AIR FREIGHT)") || !strings.Contains(string(data), "50000.00") {
		t.Errorf("unexpected document:\n%s", data)
	}
	if loadOrder(t, s, 100002).PublicOfferURL != ref {
		t.Error("public offer reference not recorded")
	}
}

func TestGenerateDriverContract(t *testing.T) {
	svc, s, storage := newTestService(t)
	ctx := context.Background()
	driver := int64(5)
	shipment := &models.Shipment{Type: models.TransportRoad, Status: models.ShipmentInTransit, DriverID: &driver, TransportNumber: "777ABC02", Price: decimal.NewFromInt(120000)}
	if err := s.WithTx(ctx, func(tx store.Tx) error { return tx.Shipments().Create(ctx, shipment) }); err != nil {
		t.Fatal(err)
	}

	ref, err := svc.Generate(ctx, models.DocumentDriverContract, shipment.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := storage.Fetch(ctx, ref)
	if !strings.Contains(string(data), "Driver: Driver Erlan (+77015550000)") {
		t.Errorf("unexpected contract:\n%s", data)
	}
}

func TestFailedGenerationIsRetried(t *testing.T) {
	svc, s, storage := newTestService(t)
	ctx := context.Background()
	createOrder(t, s, 100003, 1)

	storage.setDown(true)
	if _, err := svc.Generate(ctx, models.DocumentPublicOffer, 100003); !errors.Is(err, errStoreDown) {
		t.Fatalf("expected storage error, got %v", err)
	}
	// a second failure must not add a second record
	svc.Generate(ctx, models.DocumentPublicOffer, 100003)
	docs := pending(t, s)
	if len(docs) != 1 || docs[0].Kind != models.DocumentPublicOffer || docs[0].OwnerID != 100003 {
		t.Fatalf("expected one pending public offer, got %+v", docs)
	}

	if done, err := svc.RetryPending(ctx); err != nil || done != 0 {
		t.Fatalf("expected nothing generated while down, got %d, %v", done, err)
	}
	if docs := pending(t, s); docs[0].Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", docs[0].Attempts)
	}

	storage.setDown(false)
	if done, err := svc.RetryPending(ctx); err != nil || done != 1 {
		t.Fatalf("expected one document generated, got %d, %v", done, err)
	}
	if docs := pending(t, s); len(docs) != 0 {
		t.Errorf("expected no pending documents, got %+v", docs)
	}
	if loadOrder(t, s, 100003).PublicOfferURL == "" {
		t.Error("retried document not recorded on order")
	}
}

func TestRetryDropsMissingOwner(t *testing.T) {
	svc, s, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Generate(ctx, models.DocumentWaiverAgreement, 424242); err == nil {
		t.Fatal("expected error for unknown order")
	}
	if _, err := svc.RetryPending(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if docs := pending(t, s); len(docs) != 0 {
		t.Errorf("expected pending record dropped, got %+v", docs)
	}
}

func TestRetryStopsAtMaxAttempts(t *testing.T) {
	svc, s, storage := newTestService(t)
	ctx := context.Background()
	svc.MaxAttempts = 2
	createOrder(t, s, 100004, 1)
	storage.setDown(true)
	svc.Generate(ctx, models.DocumentPublicOffer, 100004)

	for i := 0; i < 3; i++ {
		svc.RetryPending(ctx)
	}
	docs := pending(t, s)
	if len(docs) != 1 || docs[0].Attempts != 2 {
		t.Errorf("expected retries to stop at 2 attempts, got %+v", docs)
	}
}
