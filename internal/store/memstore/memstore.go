// Package memstore keeps the whole dataset in memory. Transactions are
// serialized and work on a private copy that replaces the live state on
// commit, so a failed operation leaves nothing behind.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/shopspring/decimal"
)

type state struct {
	orders        map[int64]models.Order
	items         map[int64]models.OrderItem
	orderShip     map[int64]map[int64]bool
	itemShip      map[int64]map[int64]bool
	payments      map[int64]models.Payment
	expenses      map[int64]models.Expense
	orderExpenses map[int64][]int64
	shipments     map[int64]models.Shipment
	responses     map[int64]models.ShipmentResponse
	tariffs       map[int64]models.Tariff
	history       []models.ActionHistory
	warehouses    map[int64]models.Warehouse
	cities        map[int64]models.City
	directions    map[int64]models.Direction
	users         map[int64]models.User
	codes         map[int64]models.SigningCode
	pending       map[int64]models.PendingDocument
	couriers      map[int64]models.CourierStats

	seq int64
}

func newState() *state {
	return &state{
		orders:        make(map[int64]models.Order),
		items:         make(map[int64]models.OrderItem),
		orderShip:     make(map[int64]map[int64]bool),
		itemShip:      make(map[int64]map[int64]bool),
		payments:      make(map[int64]models.Payment),
		expenses:      make(map[int64]models.Expense),
		orderExpenses: make(map[int64][]int64),
		shipments:     make(map[int64]models.Shipment),
		responses:     make(map[int64]models.ShipmentResponse),
		tariffs:       make(map[int64]models.Tariff),
		warehouses:    make(map[int64]models.Warehouse),
		cities:        make(map[int64]models.City),
		directions:    make(map[int64]models.Direction),
		users:         make(map[int64]models.User),
		codes:         make(map[int64]models.SigningCode),
		pending:       make(map[int64]models.PendingDocument),
		couriers:      make(map[int64]models.CourierStats),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneLinks(m map[int64]map[int64]bool) map[int64]map[int64]bool {
	out := make(map[int64]map[int64]bool, len(m))
	for k, v := range m {
		out[k] = cloneMap(v)
	}
	return out
}

func (s *state) clone() *state {
	c := &state{
		orders:        cloneMap(s.orders),
		items:         cloneMap(s.items),
		orderShip:     cloneLinks(s.orderShip),
		itemShip:      cloneLinks(s.itemShip),
		payments:      cloneMap(s.payments),
		expenses:      cloneMap(s.expenses),
		orderExpenses: make(map[int64][]int64, len(s.orderExpenses)),
		shipments:     make(map[int64]models.Shipment, len(s.shipments)),
		responses:     cloneMap(s.responses),
		tariffs:       cloneMap(s.tariffs),
		history:       append([]models.ActionHistory(nil), s.history...),
		warehouses:    cloneMap(s.warehouses),
		cities:        cloneMap(s.cities),
		directions:    cloneMap(s.directions),
		users:         cloneMap(s.users),
		codes:         cloneMap(s.codes),
		pending:       cloneMap(s.pending),
		couriers:      cloneMap(s.couriers),
		seq:           s.seq,
	}
	for k, v := range s.orderExpenses {
		c.orderExpenses[k] = append([]int64(nil), v...)
	}
	for k, v := range s.shipments {
		c.shipments[k] = copyShipment(v)
	}
	return c
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

func copyShipment(s models.Shipment) models.Shipment {
	s.Stops = append([]models.ShipmentStop(nil), s.Stops...)
	return s
}

type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

func New() *Store {
	return &Store{state: newState(), now: time.Now}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(&memTx{st: working, now: s.now}); err != nil {
		return err
	}
	s.state = working
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) PutWarehouse(w models.Warehouse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.warehouses[w.ID] = w
}

func (s *Store) PutCity(c models.City) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.cities[c.ID] = c
}

func (s *Store) PutDirection(d models.Direction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.directions[d.ID] = d
}

func (s *Store) PutUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.users[u.ID] = u
}

func (s *Store) PutExpense(e models.Expense) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.expenses[e.ID] = e
}

type memTx struct {
	st  *state
	now func() time.Time
}

func (t *memTx) Orders() store.OrderRepository              { return orderRepo{t} }
func (t *memTx) Items() store.ItemRepository                { return itemRepo{t} }
func (t *memTx) Payments() store.PaymentRepository          { return paymentRepo{t} }
func (t *memTx) Expenses() store.ExpenseRepository          { return expenseRepo{t} }
func (t *memTx) Shipments() store.ShipmentRepository        { return shipmentRepo{t} }
func (t *memTx) Responses() store.ResponseRepository        { return responseRepo{t} }
func (t *memTx) Tariffs() store.TariffRepository            { return tariffRepo{t} }
func (t *memTx) History() store.HistoryRepository           { return historyRepo{t} }
func (t *memTx) Reference() store.ReferenceRepository       { return referenceRepo{t} }
func (t *memTx) SigningCodes() store.SigningCodeRepository  { return codeRepo{t} }
func (t *memTx) Documents() store.PendingDocumentRepository { return pendingRepo{t} }
func (t *memTx) Couriers() store.CourierRepository          { return courierRepo{t} }

func paginate[T any](rows []T, p store.Page) []T {
	start := p.Offset()
	if start >= len(rows) {
		return nil
	}
	end := start + p.Size()
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

func sameDirection(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sortedIDs[V any](m map[int64]V) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type courierRepo struct{ t *memTx }

func (r courierRepo) Stats(ctx context.Context, courierID int64) (*models.CourierStats, error) {
	s, ok := r.t.st.couriers[courierID]
	if !ok {
		s = models.CourierStats{CourierID: courierID}
	}
	return &s, nil
}

func (r courierRepo) AddAccepted(ctx context.Context, courierID int64) error {
	s, _ := r.Stats(ctx, courierID)
	s.AcceptedOrders++
	r.t.st.couriers[courierID] = *s
	return nil
}

func (r courierRepo) AddDelivered(ctx context.Context, courierID int64, profit decimal.Decimal) error {
	s, _ := r.Stats(ctx, courierID)
	s.DeliveredOrders++
	s.Profit = s.Profit.Add(profit)
	r.t.st.couriers[courierID] = *s
	return nil
}

// SetClock replaces the time source used for row timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
