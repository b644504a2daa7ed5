package memstore

import (
	"context"
	"sort"

	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
)

type shipmentRepo struct{ t *memTx }

func (r shipmentRepo) Create(ctx context.Context, s *models.Shipment) error {
	s.ID = r.t.st.nextID()
	now := r.t.now()
	s.CreatedAt, s.UpdatedAt = now, now
	for i := range s.Stops {
		s.Stops[i].ShipmentID = s.ID
	}
	r.t.st.shipments[s.ID] = copyShipment(*s)
	return nil
}

func (r shipmentRepo) Get(ctx context.Context, id int64) (*models.Shipment, error) {
	s, ok := r.t.st.shipments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	s = copyShipment(s)
	return &s, nil
}

func (r shipmentRepo) GetForUpdate(ctx context.Context, id int64) (*models.Shipment, error) {
	return r.Get(ctx, id)
}

// Update writes the shipment row; stop visitation is owned by
// MarkStopVisited and is kept from the stored copy.
func (r shipmentRepo) Update(ctx context.Context, s *models.Shipment) error {
	current, ok := r.t.st.shipments[s.ID]
	if !ok {
		return store.ErrNotFound
	}
	updated := copyShipment(*s)
	updated.Stops = current.Stops
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = r.t.now()
	r.t.st.shipments[s.ID] = updated
	s.UpdatedAt = updated.UpdatedAt
	return nil
}

func (r shipmentRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.t.st.shipments[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.t.st.shipments, id)
	for _, links := range r.t.st.orderShip {
		delete(links, id)
	}
	for _, links := range r.t.st.itemShip {
		delete(links, id)
	}
	for rid, resp := range r.t.st.responses {
		if resp.ShipmentID == id {
			delete(r.t.st.responses, rid)
		}
	}
	return nil
}

func (r shipmentRepo) List(ctx context.Context, f store.ShipmentFilter) ([]models.Shipment, int, error) {
	var rows []models.Shipment
	for _, id := range sortedIDs(r.t.st.shipments) {
		s := r.t.st.shipments[id]
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		if f.Type != "" && s.Type != f.Type {
			continue
		}
		if f.DriverID != nil && (s.DriverID == nil || *s.DriverID != *f.DriverID) {
			continue
		}
		if f.DirectionID != nil && !sameDirection(s.DirectionID, f.DirectionID) {
			continue
		}
		rows = append(rows, copyShipment(s))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID > rows[j].ID })
	return paginate(rows, f.Page), len(rows), nil
}

func (r shipmentRepo) MarkStopVisited(ctx context.Context, shipmentID, warehouseID int64) (bool, error) {
	s, ok := r.t.st.shipments[shipmentID]
	if !ok {
		return false, store.ErrNotFound
	}
	found := false
	for i := range s.Stops {
		if s.Stops[i].WarehouseID == warehouseID {
			s.Stops[i].Visited = true
			found = true
		}
	}
	r.t.st.shipments[shipmentID] = s
	return found, nil
}

type responseRepo struct{ t *memTx }

func (r responseRepo) Create(ctx context.Context, resp *models.ShipmentResponse) error {
	for _, existing := range r.t.st.responses {
		if existing.ShipmentID == resp.ShipmentID && existing.DriverID == resp.DriverID {
			return store.ErrDuplicate
		}
	}
	resp.ID = r.t.st.nextID()
	now := r.t.now()
	resp.CreatedAt, resp.UpdatedAt = now, now
	r.t.st.responses[resp.ID] = *resp
	return nil
}

func (r responseRepo) Get(ctx context.Context, id int64) (*models.ShipmentResponse, error) {
	resp, ok := r.t.st.responses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &resp, nil
}

func (r responseRepo) ListByShipment(ctx context.Context, shipmentID int64, status models.ResponseStatus) ([]models.ShipmentResponse, error) {
	var out []models.ShipmentResponse
	for _, id := range sortedIDs(r.t.st.responses) {
		resp := r.t.st.responses[id]
		if resp.ShipmentID != shipmentID {
			continue
		}
		if status != "" && resp.Status != status {
			continue
		}
		out = append(out, resp)
	}
	return out, nil
}

func (r responseRepo) Update(ctx context.Context, resp *models.ShipmentResponse) error {
	current, ok := r.t.st.responses[resp.ID]
	if !ok {
		return store.ErrNotFound
	}
	resp.CreatedAt = current.CreatedAt
	resp.UpdatedAt = r.t.now()
	r.t.st.responses[resp.ID] = *resp
	return nil
}
