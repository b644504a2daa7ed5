package postgres

import (
	"context"
	"database/sql"

	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/lib/pq"
)

const shipmentColumns = `id, shipping_type, status, price, direction_id, start_warehouse_id, end_warehouse_id,
	driver_id, transport_number, cargo_weight, cargo_volume, departure_date, arrival_date, latitude,
	longitude, is_loaded, invoice_number, driver_contract_url, is_driver_contract_accepted,
	created_at, updated_at`

func scanShipment(s scanner) (models.Shipment, error) {
	var sh models.Shipment
	err := s.Scan(&sh.ID, &sh.Type, &sh.Status, &sh.Price, &sh.DirectionID, &sh.StartWarehouseID,
		&sh.EndWarehouseID, &sh.DriverID, &sh.TransportNumber, &sh.CargoWeight, &sh.CargoVolume,
		&sh.DepartureDate, &sh.ArrivalDate, &sh.Latitude, &sh.Longitude, &sh.IsLoaded,
		&sh.InvoiceNumber, &sh.DriverContractURL, &sh.IsDriverContractAccepted, &sh.CreatedAt,
		&sh.UpdatedAt)
	return sh, err
}

type shipmentRepo struct{ tx *sql.Tx }

func (r shipmentRepo) Create(ctx context.Context, s *models.Shipment) error {
	ts := now()
	err := r.tx.QueryRowContext(ctx, `INSERT INTO shipments (shipping_type, status, price, direction_id,
			start_warehouse_id, end_warehouse_id, driver_id, transport_number, cargo_weight, cargo_volume,
			departure_date, arrival_date, latitude, longitude, is_loaded, invoice_number,
			driver_contract_url, is_driver_contract_accepted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $19)
		RETURNING id`,
		s.Type, s.Status, s.Price, s.DirectionID, s.StartWarehouseID, s.EndWarehouseID, s.DriverID,
		s.TransportNumber, s.CargoWeight, s.CargoVolume, s.DepartureDate, s.ArrivalDate, s.Latitude,
		s.Longitude, s.IsLoaded, s.InvoiceNumber, s.DriverContractURL, s.IsDriverContractAccepted, ts,
	).Scan(&s.ID)
	if err != nil {
		return mapErr(err)
	}
	s.CreatedAt, s.UpdatedAt = ts, ts

	for i := range s.Stops {
		s.Stops[i].ShipmentID = s.ID
		if _, err := r.tx.ExecContext(ctx, `INSERT INTO shipment_stops (shipment_id, warehouse_id, position, visited)
			VALUES ($1, $2, $3, $4)`, s.ID, s.Stops[i].WarehouseID, i, s.Stops[i].Visited); err != nil {
			return mapErr(err)
		}
	}
	return nil
}

func (r shipmentRepo) get(ctx context.Context, id int64, lock string) (*models.Shipment, error) {
	s, err := scanShipment(r.tx.QueryRowContext(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = $1`+lock, id))
	if err != nil {
		return nil, mapErr(err)
	}
	if err := r.loadStops(ctx, []*models.Shipment{&s}); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r shipmentRepo) Get(ctx context.Context, id int64) (*models.Shipment, error) {
	return r.get(ctx, id, "")
}

func (r shipmentRepo) GetForUpdate(ctx context.Context, id int64) (*models.Shipment, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r shipmentRepo) loadStops(ctx context.Context, shipments []*models.Shipment) error {
	if len(shipments) == 0 {
		return nil
	}
	ids := make([]int64, len(shipments))
	byID := make(map[int64]*models.Shipment, len(shipments))
	for i, s := range shipments {
		ids[i] = s.ID
		s.Stops = []models.ShipmentStop{}
		byID[s.ID] = s
	}

	rows, err := r.tx.QueryContext(ctx, `SELECT shipment_id, warehouse_id, visited FROM shipment_stops
		WHERE shipment_id = ANY($1) ORDER BY shipment_id, position`, pq.Array(ids))
	stops, err := collect(rows, err, func(s scanner) (models.ShipmentStop, error) {
		var stop models.ShipmentStop
		err := s.Scan(&stop.ShipmentID, &stop.WarehouseID, &stop.Visited)
		return stop, err
	})
	if err != nil {
		return err
	}
	for _, stop := range stops {
		if s, ok := byID[stop.ShipmentID]; ok {
			s.Stops = append(s.Stops, stop)
		}
	}
	return nil
}

// Update writes the shipment row; stops are owned by MarkStopVisited.
func (r shipmentRepo) Update(ctx context.Context, s *models.Shipment) error {
	ts := now()
	err := r.tx.QueryRowContext(ctx, `UPDATE shipments SET shipping_type = $2, status = $3, price = $4,
			direction_id = $5, start_warehouse_id = $6, end_warehouse_id = $7, driver_id = $8,
			transport_number = $9, cargo_weight = $10, cargo_volume = $11, departure_date = $12,
			arrival_date = $13, latitude = $14, longitude = $15, is_loaded = $16, invoice_number = $17,
			driver_contract_url = $18, is_driver_contract_accepted = $19, updated_at = $20
		WHERE id = $1 RETURNING created_at`,
		s.ID, s.Type, s.Status, s.Price, s.DirectionID, s.StartWarehouseID, s.EndWarehouseID, s.DriverID,
		s.TransportNumber, s.CargoWeight, s.CargoVolume, s.DepartureDate, s.ArrivalDate, s.Latitude,
		s.Longitude, s.IsLoaded, s.InvoiceNumber, s.DriverContractURL, s.IsDriverContractAccepted, ts,
	).Scan(&s.CreatedAt)
	if err != nil {
		return mapErr(err)
	}
	s.UpdatedAt = ts
	return nil
}

// Delete relies on ON DELETE CASCADE for stops, links and responses.
func (r shipmentRepo) Delete(ctx context.Context, id int64) error {
	return affected(r.tx.ExecContext(ctx, `DELETE FROM shipments WHERE id = $1`, id))
}

func (r shipmentRepo) List(ctx context.Context, f store.ShipmentFilter) ([]models.Shipment, int, error) {
	w := &where{}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	if f.Type != "" {
		w.add("shipping_type = ?", string(f.Type))
	}
	if f.DriverID != nil {
		w.add("driver_id = ?", *f.DriverID)
	}
	if f.DirectionID != nil {
		w.add("direction_id = ?", *f.DirectionID)
	}

	var total int
	if err := r.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM shipments`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, mapErr(err)
	}
	query := `SELECT ` + shipmentColumns + ` FROM shipments` + w.String() + ` ORDER BY id DESC` + w.page(f.Page)
	rows, err := r.tx.QueryContext(ctx, query, w.args...)
	shipments, err := collect(rows, err, scanShipment)
	if err != nil {
		return nil, 0, err
	}

	ptrs := make([]*models.Shipment, len(shipments))
	for i := range shipments {
		ptrs[i] = &shipments[i]
	}
	if err := r.loadStops(ctx, ptrs); err != nil {
		return nil, 0, err
	}
	return shipments, total, nil
}

func (r shipmentRepo) MarkStopVisited(ctx context.Context, shipmentID, warehouseID int64) (bool, error) {
	var exists bool
	if err := r.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM shipments WHERE id = $1)`, shipmentID).Scan(&exists); err != nil {
		return false, mapErr(err)
	}
	if !exists {
		return false, store.ErrNotFound
	}
	res, err := r.tx.ExecContext(ctx, `UPDATE shipment_stops SET visited = TRUE
		WHERE shipment_id = $1 AND warehouse_id = $2`, shipmentID, warehouseID)
	if err != nil {
		return false, mapErr(err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

const responseColumns = `id, shipment_id, driver_id, status, created_at, updated_at`

func scanResponse(s scanner) (models.ShipmentResponse, error) {
	var resp models.ShipmentResponse
	err := s.Scan(&resp.ID, &resp.ShipmentID, &resp.DriverID, &resp.Status, &resp.CreatedAt, &resp.UpdatedAt)
	return resp, err
}

type responseRepo struct{ tx *sql.Tx }

func (r responseRepo) Create(ctx context.Context, resp *models.ShipmentResponse) error {
	ts := now()
	err := r.tx.QueryRowContext(ctx, `INSERT INTO shipment_responses (shipment_id, driver_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4) RETURNING id`, resp.ShipmentID, resp.DriverID, resp.Status, ts).Scan(&resp.ID)
	if err != nil {
		return mapErr(err)
	}
	resp.CreatedAt, resp.UpdatedAt = ts, ts
	return nil
}

func (r responseRepo) Get(ctx context.Context, id int64) (*models.ShipmentResponse, error) {
	resp, err := scanResponse(r.tx.QueryRowContext(ctx, `SELECT `+responseColumns+` FROM shipment_responses WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return &resp, nil
}

func (r responseRepo) ListByShipment(ctx context.Context, shipmentID int64, status models.ResponseStatus) ([]models.ShipmentResponse, error) {
	w := &where{}
	w.add("shipment_id = ?", shipmentID)
	if status != "" {
		w.add("status = ?", string(status))
	}
	rows, err := r.tx.QueryContext(ctx, `SELECT `+responseColumns+` FROM shipment_responses`+w.String()+` ORDER BY id`, w.args...)
	return collect(rows, err, scanResponse)
}

func (r responseRepo) Update(ctx context.Context, resp *models.ShipmentResponse) error {
	ts := now()
	err := r.tx.QueryRowContext(ctx, `UPDATE shipment_responses SET driver_id = $2, status = $3, updated_at = $4
		WHERE id = $1 RETURNING created_at`, resp.ID, resp.DriverID, resp.Status, ts).Scan(&resp.CreatedAt)
	if err != nil {
		return mapErr(err)
	}
	resp.UpdatedAt = ts
	return nil
}
