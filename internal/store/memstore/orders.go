package memstore

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
)

type orderRepo struct{ t *memTx }

func (r orderRepo) Create(ctx context.Context, order *models.Order) error {
	if _, exists := r.t.st.orders[order.ID]; exists {
		return store.ErrDuplicate
	}
	now := r.t.now()
	order.CreatedAt, order.UpdatedAt = now, now
	order.Version = 1
	r.t.st.orders[order.ID] = *order
	return nil
}

func (r orderRepo) Get(ctx context.Context, id int64) (*models.Order, error) {
	o, ok := r.t.st.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

func (r orderRepo) GetForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return r.Get(ctx, id)
}

func (r orderRepo) GetMany(ctx context.Context, ids []int64) ([]models.Order, error) {
	var out []models.Order
	for _, id := range ids {
		if o, ok := r.t.st.orders[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r orderRepo) Exists(ctx context.Context, id int64) (bool, error) {
	_, ok := r.t.st.orders[id]
	return ok, nil
}

func (r orderRepo) Update(ctx context.Context, order *models.Order) error {
	current, ok := r.t.st.orders[order.ID]
	if !ok {
		return store.ErrNotFound
	}
	order.Version = current.Version + 1
	order.CreatedAt = current.CreatedAt
	order.UpdatedAt = r.t.now()
	r.t.st.orders[order.ID] = *order
	return nil
}

func (r orderRepo) List(ctx context.Context, f store.OrderFilter) ([]models.Order, int, error) {
	statuses := make(map[models.OrderStatus]bool, len(f.Statuses))
	for _, s := range f.Statuses {
		statuses[s] = true
	}
	search := strings.ToLower(strings.TrimSpace(f.Search))

	var rows []models.Order
	for _, o := range r.t.st.orders {
		if len(statuses) > 0 && !statuses[o.Status] {
			continue
		}
		if f.WarehouseID != nil && (o.WarehouseID == nil || *o.WarehouseID != *f.WarehouseID) {
			continue
		}
		if f.DirectionID != nil && o.DirectionID != *f.DirectionID {
			continue
		}
		if f.CourierID != nil && (o.CourierID == nil || *o.CourierID != *f.CourierID) {
			continue
		}
		if f.TransportType != "" && r.t.st.directions[o.DirectionID].TransportType != f.TransportType {
			continue
		}
		if f.From != nil && o.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && o.CreatedAt.After(*f.To) {
			continue
		}
		if search != "" && !matchesSearch(o, search) {
			continue
		}
		rows = append(rows, o)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].ID > rows[j].ID
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	return paginate(rows, f.Page), len(rows), nil
}

func matchesSearch(o models.Order, q string) bool {
	fields := []string{
		strconv.FormatInt(o.ID, 10), o.SenderName, o.SenderPhone, o.ReceiverName, o.ReceiverPhone,
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

func (r orderRepo) AttachShipment(ctx context.Context, orderID, shipmentID int64) error {
	links, ok := r.t.st.orderShip[orderID]
	if !ok {
		links = make(map[int64]bool)
		r.t.st.orderShip[orderID] = links
	}
	links[shipmentID] = true
	return nil
}

func (r orderRepo) ShipmentIDs(ctx context.Context, orderID int64) ([]int64, error) {
	return sortedIDs(r.t.st.orderShip[orderID]), nil
}

func (r orderRepo) IDsByShipment(ctx context.Context, shipmentID int64) ([]int64, error) {
	var ids []int64
	for orderID, links := range r.t.st.orderShip {
		if links[shipmentID] {
			ids = append(ids, orderID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

type itemRepo struct{ t *memTx }

func (r itemRepo) Create(ctx context.Context, item *models.OrderItem) error {
	for _, existing := range r.t.st.items {
		if existing.ScanCode == item.ScanCode {
			return store.ErrDuplicate
		}
	}
	item.ID = r.t.st.nextID()
	now := r.t.now()
	item.CreatedAt, item.UpdatedAt = now, now
	r.t.st.items[item.ID] = *item
	return nil
}

func (r itemRepo) Get(ctx context.Context, id int64) (*models.OrderItem, error) {
	item, ok := r.t.st.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

func (r itemRepo) GetMany(ctx context.Context, ids []int64) ([]models.OrderItem, error) {
	var out []models.OrderItem
	for _, id := range ids {
		if item, ok := r.t.st.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (r itemRepo) ByScanCode(ctx context.Context, code string) (*models.OrderItem, error) {
	for _, item := range r.t.st.items {
		if item.ScanCode == code {
			return &item, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r itemRepo) ListByOrder(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var out []models.OrderItem
	for _, id := range sortedIDs(r.t.st.items) {
		if item := r.t.st.items[id]; item.OrderID == orderID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (r itemRepo) Update(ctx context.Context, item *models.OrderItem) error {
	current, ok := r.t.st.items[item.ID]
	if !ok {
		return store.ErrNotFound
	}
	item.CreatedAt = current.CreatedAt
	item.UpdatedAt = r.t.now()
	r.t.st.items[item.ID] = *item
	return nil
}

func (r itemRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.t.st.items[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.t.st.items, id)
	delete(r.t.st.itemShip, id)
	return nil
}

func (r itemRepo) AttachShipment(ctx context.Context, itemID, shipmentID int64) error {
	links, ok := r.t.st.itemShip[itemID]
	if !ok {
		links = make(map[int64]bool)
		r.t.st.itemShip[itemID] = links
	}
	links[shipmentID] = true
	return nil
}

type paymentRepo struct{ t *memTx }

func (r paymentRepo) Create(ctx context.Context, p *models.Payment) error {
	if _, exists := r.t.st.payments[p.OrderID]; exists {
		return store.ErrDuplicate
	}
	p.ID = r.t.st.nextID()
	r.t.st.payments[p.OrderID] = *p
	return nil
}

func (r paymentRepo) GetByOrder(ctx context.Context, orderID int64) (*models.Payment, error) {
	p, ok := r.t.st.payments[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (r paymentRepo) Update(ctx context.Context, p *models.Payment) error {
	if _, ok := r.t.st.payments[p.OrderID]; !ok {
		return store.ErrNotFound
	}
	r.t.st.payments[p.OrderID] = *p
	return nil
}

type expenseRepo struct{ t *memTx }

func (r expenseRepo) GetMany(ctx context.Context, ids []int64) ([]models.Expense, error) {
	var out []models.Expense
	for _, id := range ids {
		if e, ok := r.t.st.expenses[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r expenseRepo) ListByOrder(ctx context.Context, orderID int64) ([]models.Expense, error) {
	return r.GetMany(ctx, r.t.st.orderExpenses[orderID])
}

func (r expenseRepo) SetForOrder(ctx context.Context, orderID int64, expenseIDs []int64) error {
	var kept []int64
	for _, id := range expenseIDs {
		if _, ok := r.t.st.expenses[id]; ok {
			kept = append(kept, id)
		}
	}
	r.t.st.orderExpenses[orderID] = kept
	return nil
}
