package memstore

import (
	"context"
	"sort"

	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/shopspring/decimal"
)

type tariffRepo struct{ t *memTx }

func (r tariffRepo) find(match func(models.Tariff) bool) *models.Tariff {
	var best *models.Tariff
	for _, id := range sortedIDs(r.t.st.tariffs) {
		tr := r.t.st.tariffs[id]
		if !match(tr) {
			continue
		}
		if best == nil || tr.Amount < best.Amount {
			found := tr
			best = &found
		}
	}
	return best
}

func (r tariffRepo) Bracket(ctx context.Context, calc models.CalculationType, directionID *int64, amount int) (*models.Tariff, error) {
	tr := r.find(func(t models.Tariff) bool {
		return !t.IsLimit && t.Type == calc && t.Amount == amount && sameDirection(t.DirectionID, directionID)
	})
	if tr == nil {
		return nil, store.ErrNotFound
	}
	return tr, nil
}

func (r tariffRepo) Limit(ctx context.Context, calc models.CalculationType, directionID int64) (*models.Tariff, error) {
	tr := r.find(func(t models.Tariff) bool {
		return t.IsLimit && t.Type == calc && sameDirection(t.DirectionID, &directionID)
	})
	if tr == nil {
		return nil, store.ErrNotFound
	}
	return tr, nil
}

func (r tariffRepo) FirstForDirection(ctx context.Context, calc models.CalculationType, directionID int64) (*models.Tariff, error) {
	tr := r.find(func(t models.Tariff) bool {
		return !t.IsLimit && t.Type == calc && sameDirection(t.DirectionID, &directionID)
	})
	if tr == nil {
		return nil, store.ErrNotFound
	}
	return tr, nil
}

func (r tariffRepo) Upsert(ctx context.Context, tariff *models.Tariff) error {
	for id, existing := range r.t.st.tariffs {
		if existing.Type == tariff.Type && existing.Amount == tariff.Amount &&
			sameDirection(existing.DirectionID, tariff.DirectionID) {
			existing.Price = tariff.Price
			existing.IsLimit = tariff.IsLimit
			r.t.st.tariffs[id] = existing
			*tariff = existing
			return nil
		}
	}
	tariff.ID = r.t.st.nextID()
	r.t.st.tariffs[tariff.ID] = *tariff
	return nil
}

func (r tariffRepo) Get(ctx context.Context, id int64) (*models.Tariff, error) {
	tr, ok := r.t.st.tariffs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &tr, nil
}

func (r tariffRepo) UpdatePrice(ctx context.Context, id int64, price decimal.Decimal) error {
	tr, ok := r.t.st.tariffs[id]
	if !ok {
		return store.ErrNotFound
	}
	tr.Price = price
	r.t.st.tariffs[id] = tr
	return nil
}

func (r tariffRepo) List(ctx context.Context, f store.TariffFilter) ([]models.Tariff, error) {
	var out []models.Tariff
	for _, tr := range r.t.st.tariffs {
		if f.Type != "" && tr.Type != f.Type {
			continue
		}
		if f.DirectionID != nil && !sameDirection(tr.DirectionID, f.DirectionID) {
			continue
		}
		if tr.IsLimit != f.Limits {
			continue
		}
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Amount < out[j].Amount
	})
	return out, nil
}

type historyRepo struct{ t *memTx }

func (r historyRepo) Create(ctx context.Context, entry *models.ActionHistory) error {
	entry.ID = r.t.st.nextID()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.t.now()
	}
	r.t.st.history = append(r.t.st.history, *entry)
	return nil
}

func (r historyRepo) Find(ctx context.Context, orderID, itemID *int64, code models.ActionCode) (*models.ActionHistory, error) {
	for _, h := range r.t.st.history {
		if h.Code != code {
			continue
		}
		if itemID != nil {
			if h.OrderItemID != nil && *h.OrderItemID == *itemID {
				return &h, nil
			}
			continue
		}
		if orderID != nil && h.OrderItemID == nil && h.OrderID != nil && *h.OrderID == *orderID {
			return &h, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r historyRepo) ListByOrder(ctx context.Context, orderID int64) ([]models.ActionHistory, error) {
	var out []models.ActionHistory
	for _, h := range r.t.st.history {
		if h.OrderID != nil && *h.OrderID == orderID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r historyRepo) ListByItem(ctx context.Context, itemID int64) ([]models.ActionHistory, error) {
	var out []models.ActionHistory
	for _, h := range r.t.st.history {
		if h.OrderItemID != nil && *h.OrderItemID == itemID {
			out = append(out, h)
		}
	}
	return out, nil
}

type referenceRepo struct{ t *memTx }

func (r referenceRepo) Warehouse(ctx context.Context, id int64) (*models.Warehouse, error) {
	w, ok := r.t.st.warehouses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &w, nil
}

func (r referenceRepo) Warehouses(ctx context.Context, ids []int64) ([]models.Warehouse, error) {
	var out []models.Warehouse
	for _, id := range ids {
		if w, ok := r.t.st.warehouses[id]; ok {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r referenceRepo) Cities(ctx context.Context, ids []int64) ([]models.City, error) {
	var out []models.City
	for _, id := range ids {
		if c, ok := r.t.st.cities[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r referenceRepo) Direction(ctx context.Context, id int64) (*models.Direction, error) {
	d, ok := r.t.st.directions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &d, nil
}

func (r referenceRepo) Directions(ctx context.Context, ids []int64) ([]models.Direction, error) {
	var out []models.Direction
	for _, id := range ids {
		if d, ok := r.t.st.directions[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r referenceRepo) User(ctx context.Context, id int64) (*models.User, error) {
	u, ok := r.t.st.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (r referenceRepo) Users(ctx context.Context, ids []int64) ([]models.User, error) {
	var out []models.User
	for _, id := range ids {
		if u, ok := r.t.st.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

type codeRepo struct{ t *memTx }

func (r codeRepo) Create(ctx context.Context, c *models.SigningCode) error {
	c.ID = r.t.st.nextID()
	c.CreatedAt = r.t.now()
	r.t.st.codes[c.ID] = *c
	return nil
}

func (r codeRepo) FindUnused(ctx context.Context, kind models.SigningKind, code string) (*models.SigningCode, error) {
	var found *models.SigningCode
	for _, id := range sortedIDs(r.t.st.codes) {
		c := r.t.st.codes[id]
		if c.Kind == kind && c.Code == code && !c.Used {
			found = &c
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (r codeRepo) MarkUsed(ctx context.Context, id int64) error {
	c, ok := r.t.st.codes[id]
	if !ok {
		return store.ErrNotFound
	}
	c.Used = true
	r.t.st.codes[id] = c
	return nil
}

type pendingRepo struct{ t *memTx }

func (r pendingRepo) Add(ctx context.Context, doc *models.PendingDocument) error {
	for id, existing := range r.t.st.pending {
		if existing.Kind == doc.Kind && existing.OwnerID == doc.OwnerID {
			existing.LastError = doc.LastError
			existing.UpdatedAt = r.t.now()
			r.t.st.pending[id] = existing
			*doc = existing
			return nil
		}
	}
	doc.ID = r.t.st.nextID()
	now := r.t.now()
	doc.CreatedAt, doc.UpdatedAt = now, now
	r.t.st.pending[doc.ID] = *doc
	return nil
}

func (r pendingRepo) Due(ctx context.Context, maxAttempts, limit int) ([]models.PendingDocument, error) {
	var out []models.PendingDocument
	for _, id := range sortedIDs(r.t.st.pending) {
		doc := r.t.st.pending[id]
		if doc.Attempts >= maxAttempts {
			continue
		}
		out = append(out, doc)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r pendingRepo) Fail(ctx context.Context, id int64, reason string) error {
	doc, ok := r.t.st.pending[id]
	if !ok {
		return store.ErrNotFound
	}
	doc.Attempts++
	doc.LastError = reason
	doc.UpdatedAt = r.t.now()
	r.t.st.pending[id] = doc
	return nil
}

func (r pendingRepo) Remove(ctx context.Context, id int64) error {
	delete(r.t.st.pending, id)
	return nil
}
