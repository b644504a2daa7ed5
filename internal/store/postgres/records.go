package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const tariffColumns = `id, calculation_type, direction_id, amount, price, is_limit`

func scanTariff(s scanner) (models.Tariff, error) {
	var t models.Tariff
	err := s.Scan(&t.ID, &t.Type, &t.DirectionID, &t.Amount, &t.Price, &t.IsLimit)
	return t, err
}

type tariffRepo struct{ tx *sql.Tx }

func (r tariffRepo) one(ctx context.Context, query string, args ...interface{}) (*models.Tariff, error) {
	t, err := scanTariff(r.tx.QueryRowContext(ctx, `SELECT `+tariffColumns+` FROM tariffs WHERE `+query+
		` ORDER BY amount, id LIMIT 1`, args...))
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (r tariffRepo) Bracket(ctx context.Context, calc models.CalculationType, directionID *int64, amount int) (*models.Tariff, error) {
	return r.one(ctx, `NOT is_limit AND calculation_type = $1 AND direction_id IS NOT DISTINCT FROM $2 AND amount = $3`,
		string(calc), directionID, amount)
}

func (r tariffRepo) Limit(ctx context.Context, calc models.CalculationType, directionID int64) (*models.Tariff, error) {
	return r.one(ctx, `is_limit AND calculation_type = $1 AND direction_id = $2`, string(calc), directionID)
}

func (r tariffRepo) FirstForDirection(ctx context.Context, calc models.CalculationType, directionID int64) (*models.Tariff, error) {
	return r.one(ctx, `NOT is_limit AND calculation_type = $1 AND direction_id = $2`, string(calc), directionID)
}

func (r tariffRepo) Upsert(ctx context.Context, t *models.Tariff) error {
	err := r.tx.QueryRowContext(ctx, `INSERT INTO tariffs (calculation_type, direction_id, amount, price, is_limit)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (calculation_type, (COALESCE(direction_id, 0)), amount)
		DO UPDATE SET price = EXCLUDED.price, is_limit = EXCLUDED.is_limit
		RETURNING id`, string(t.Type), t.DirectionID, t.Amount, t.Price, t.IsLimit).Scan(&t.ID)
	return mapErr(err)
}

func (r tariffRepo) Get(ctx context.Context, id int64) (*models.Tariff, error) {
	t, err := scanTariff(r.tx.QueryRowContext(ctx, `SELECT `+tariffColumns+` FROM tariffs WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (r tariffRepo) UpdatePrice(ctx context.Context, id int64, price decimal.Decimal) error {
	return affected(r.tx.ExecContext(ctx, `UPDATE tariffs SET price = $2 WHERE id = $1`, id, price))
}

func (r tariffRepo) List(ctx context.Context, f store.TariffFilter) ([]models.Tariff, error) {
	w := &where{}
	w.add("is_limit = ?", f.Limits)
	if f.Type != "" {
		w.add("calculation_type = ?", string(f.Type))
	}
	if f.DirectionID != nil {
		w.add("direction_id = ?", *f.DirectionID)
	}
	rows, err := r.tx.QueryContext(ctx, `SELECT `+tariffColumns+` FROM tariffs`+w.String()+
		` ORDER BY calculation_type, amount`, w.args...)
	return collect(rows, err, scanTariff)
}

const historyColumns = `id, order_id, order_item_id, action_code, action_description, client_id, manager_id,
	courier_id, warehouse_manager_id, warehouse_id, departure_city_id, arrival_city_id, created_at`

func scanHistory(s scanner) (models.ActionHistory, error) {
	var h models.ActionHistory
	err := s.Scan(&h.ID, &h.OrderID, &h.OrderItemID, &h.Code, &h.Description, &h.ClientID, &h.ManagerID,
		&h.CourierID, &h.WarehouseManagerID, &h.WarehouseID, &h.DepartureCityID, &h.ArrivalCityID, &h.CreatedAt)
	return h, err
}

type historyRepo struct{ tx *sql.Tx }

func (r historyRepo) Create(ctx context.Context, h *models.ActionHistory) error {
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now()
	}
	err := r.tx.QueryRowContext(ctx, `INSERT INTO action_history (order_id, order_item_id, action_code,
			action_description, client_id, manager_id, courier_id, warehouse_manager_id, warehouse_id,
			departure_city_id, arrival_city_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		h.OrderID, h.OrderItemID, h.Code, h.Description, h.ClientID, h.ManagerID, h.CourierID,
		h.WarehouseManagerID, h.WarehouseID, h.DepartureCityID, h.ArrivalCityID, h.CreatedAt,
	).Scan(&h.ID)
	return mapErr(err)
}

func (r historyRepo) Find(ctx context.Context, orderID, itemID *int64, code models.ActionCode) (*models.ActionHistory, error) {
	var row *sql.Row
	switch {
	case itemID != nil:
		row = r.tx.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM action_history
			WHERE order_item_id = $1 AND action_code = $2 ORDER BY id LIMIT 1`, *itemID, string(code))
	case orderID != nil:
		row = r.tx.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM action_history
			WHERE order_id = $1 AND order_item_id IS NULL AND action_code = $2 ORDER BY id LIMIT 1`, *orderID, string(code))
	default:
		return nil, store.ErrNotFound
	}
	h, err := scanHistory(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return &h, nil
}

func (r historyRepo) ListByOrder(ctx context.Context, orderID int64) ([]models.ActionHistory, error) {
	rows, err := r.tx.QueryContext(ctx, `SELECT `+historyColumns+` FROM action_history WHERE order_id = $1 ORDER BY id`, orderID)
	return collect(rows, err, scanHistory)
}

func (r historyRepo) ListByItem(ctx context.Context, itemID int64) ([]models.ActionHistory, error) {
	rows, err := r.tx.QueryContext(ctx, `SELECT `+historyColumns+` FROM action_history WHERE order_item_id = $1 ORDER BY id`, itemID)
	return collect(rows, err, scanHistory)
}

type referenceRepo struct{ tx *sql.Tx }

func scanWarehouse(s scanner) (models.Warehouse, error) {
	var w models.Warehouse
	err := s.Scan(&w.ID, &w.Name, &w.Address, &w.CityID)
	return w, err
}

func scanDirection(s scanner) (models.Direction, error) {
	var d models.Direction
	err := s.Scan(&d.ID, &d.DepartureCityID, &d.ArrivalCityID, &d.TransportType, &d.IsActive)
	return d, err
}

func scanUser(s scanner) (models.User, error) {
	var u models.User
	err := s.Scan(&u.ID, &u.FirstName, &u.LastName, &u.MiddleName, &u.Phone, &u.WarehouseID)
	return u, err
}

func (r referenceRepo) Warehouse(ctx context.Context, id int64) (*models.Warehouse, error) {
	w, err := scanWarehouse(r.tx.QueryRowContext(ctx, `SELECT id, name, address, city_id FROM warehouses WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return &w, nil
}

func (r referenceRepo) Warehouses(ctx context.Context, ids []int64) ([]models.Warehouse, error) {
	rows, err := r.tx.QueryContext(ctx, `SELECT id, name, address, city_id FROM warehouses WHERE id = ANY($1) ORDER BY id`, pq.Array(ids))
	return collect(rows, err, scanWarehouse)
}

func (r referenceRepo) Cities(ctx context.Context, ids []int64) ([]models.City, error) {
	rows, err := r.tx.QueryContext(ctx, `SELECT id, name FROM cities WHERE id = ANY($1) ORDER BY id`, pq.Array(ids))
	return collect(rows, err, func(s scanner) (models.City, error) {
		var c models.City
		err := s.Scan(&c.ID, &c.Name)
		return c, err
	})
}

func (r referenceRepo) Direction(ctx context.Context, id int64) (*models.Direction, error) {
	d, err := scanDirection(r.tx.QueryRowContext(ctx, `SELECT id, departure_city_id, arrival_city_id,
		transportation_type, is_active FROM directions WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return &d, nil
}

func (r referenceRepo) Directions(ctx context.Context, ids []int64) ([]models.Direction, error) {
	rows, err := r.tx.QueryContext(ctx, `SELECT id, departure_city_id, arrival_city_id, transportation_type,
		is_active FROM directions WHERE id = ANY($1) ORDER BY id`, pq.Array(ids))
	return collect(rows, err, scanDirection)
}

func (r referenceRepo) User(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(r.tx.QueryRowContext(ctx, `SELECT id, first_name, last_name, middle_name, phone,
		warehouse_id FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (r referenceRepo) Users(ctx context.Context, ids []int64) ([]models.User, error) {
	rows, err := r.tx.QueryContext(ctx, `SELECT id, first_name, last_name, middle_name, phone, warehouse_id
		FROM users WHERE id = ANY($1) ORDER BY id`, pq.Array(ids))
	return collect(rows, err, scanUser)
}

type codeRepo struct{ tx *sql.Tx }

func (r codeRepo) Create(ctx context.Context, c *models.SigningCode) error {
	c.CreatedAt = now()
	err := r.tx.QueryRowContext(ctx, `INSERT INTO signing_codes (kind, owner_id, code, used, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`, string(c.Kind), c.OwnerID, c.Code, c.Used, c.CreatedAt).Scan(&c.ID)
	return mapErr(err)
}

func (r codeRepo) FindUnused(ctx context.Context, kind models.SigningKind, code string) (*models.SigningCode, error) {
	var c models.SigningCode
	err := r.tx.QueryRowContext(ctx, `SELECT id, kind, owner_id, code, used, created_at FROM signing_codes
		WHERE kind = $1 AND code = $2 AND NOT used ORDER BY id DESC LIMIT 1`, string(kind), code).
		Scan(&c.ID, &c.Kind, &c.OwnerID, &c.Code, &c.Used, &c.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r codeRepo) MarkUsed(ctx context.Context, id int64) error {
	return affected(r.tx.ExecContext(ctx, `UPDATE signing_codes SET used = TRUE WHERE id = $1`, id))
}

type pendingRepo struct{ tx *sql.Tx }

// Add keeps one record per document; a repeated failure refreshes it.
func (r pendingRepo) Add(ctx context.Context, doc *models.PendingDocument) error {
	ts := now()
	err := r.tx.QueryRowContext(ctx, `INSERT INTO pending_documents (kind, owner_id, attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $4, $4)
		ON CONFLICT (kind, owner_id) DO UPDATE SET last_error = EXCLUDED.last_error, updated_at = EXCLUDED.updated_at
		RETURNING id, attempts, created_at, updated_at`, string(doc.Kind), doc.OwnerID, doc.LastError, ts).
		Scan(&doc.ID, &doc.Attempts, &doc.CreatedAt, &doc.UpdatedAt)
	return mapErr(err)
}

func (r pendingRepo) Due(ctx context.Context, maxAttempts, limit int) ([]models.PendingDocument, error) {
	var max interface{}
	if limit > 0 {
		max = limit
	}
	rows, err := r.tx.QueryContext(ctx, `SELECT id, kind, owner_id, attempts, last_error, created_at, updated_at
		FROM pending_documents WHERE attempts < $1 ORDER BY id LIMIT $2`, maxAttempts, max)
	return collect(rows, err, func(s scanner) (models.PendingDocument, error) {
		var d models.PendingDocument
		err := s.Scan(&d.ID, &d.Kind, &d.OwnerID, &d.Attempts, &d.LastError, &d.CreatedAt, &d.UpdatedAt)
		return d, err
	})
}

func (r pendingRepo) Fail(ctx context.Context, id int64, reason string) error {
	return affected(r.tx.ExecContext(ctx, `UPDATE pending_documents SET attempts = attempts + 1, last_error = $2,
		updated_at = $3 WHERE id = $1`, id, reason, now()))
}

func (r pendingRepo) Remove(ctx context.Context, id int64) error {
	_, err := r.tx.ExecContext(ctx, `DELETE FROM pending_documents WHERE id = $1`, id)
	return mapErr(err)
}

type courierRepo struct{ tx *sql.Tx }

func (r courierRepo) Stats(ctx context.Context, courierID int64) (*models.CourierStats, error) {
	s := models.CourierStats{CourierID: courierID}
	err := r.tx.QueryRowContext(ctx, `SELECT accepted_orders, delivered_orders, profit FROM courier_stats
		WHERE courier_id = $1`, courierID).Scan(&s.AcceptedOrders, &s.DeliveredOrders, &s.Profit)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (r courierRepo) AddAccepted(ctx context.Context, courierID int64) error {
	_, err := r.tx.ExecContext(ctx, `INSERT INTO courier_stats (courier_id, accepted_orders) VALUES ($1, 1)
		ON CONFLICT (courier_id) DO UPDATE SET accepted_orders = courier_stats.accepted_orders + 1`, courierID)
	return mapErr(err)
}

func (r courierRepo) AddDelivered(ctx context.Context, courierID int64, profit decimal.Decimal) error {
	_, err := r.tx.ExecContext(ctx, `INSERT INTO courier_stats (courier_id, delivered_orders, profit) VALUES ($1, 1, $2)
		ON CONFLICT (courier_id) DO UPDATE SET delivered_orders = courier_stats.delivered_orders + 1,
			profit = courier_stats.profit + EXCLUDED.profit`, courierID, profit)
	return mapErr(err)
}
