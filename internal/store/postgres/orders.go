package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/lib/pq"
)

var now = func() time.Time { return time.Now().UTC() }

const orderColumns = `id, sender_name, sender_phone, sender_address, receiver_name, receiver_phone,
	receiver_address, client_id, description, total_weight, total_volume, insurance, status,
	previous_status, cargo_pickup_type, delivery_type, start_warehouse_id, warehouse_id,
	destination_warehouse_id, direction_id, district_id, courier_id, expenses_price,
	cancellation_reason, not_delivered_reason, is_public_offer_accepted,
	is_waiver_agreement_accepted, public_offer_url, waiver_agreement_url, version,
	created_at, updated_at`

func scanOrder(s scanner) (models.Order, error) {
	var o models.Order
	err := s.Scan(&o.ID, &o.SenderName, &o.SenderPhone, &o.SenderAddress, &o.ReceiverName,
		&o.ReceiverPhone, &o.ReceiverAddress, &o.ClientID, &o.Description, &o.TotalWeight,
		&o.TotalVolume, &o.Insurance, &o.Status, &o.PreviousStatus, &o.CargoPickupType,
		&o.DeliveryType, &o.StartWarehouseID, &o.WarehouseID, &o.DestinationWarehouseID,
		&o.DirectionID, &o.DistrictID, &o.CourierID, &o.ExpensesPrice, &o.CancellationReason,
		&o.NotDeliveredReason, &o.IsPublicOfferAccepted, &o.IsWaiverAgreementAccepted,
		&o.PublicOfferURL, &o.WaiverAgreementURL, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

type orderRepo struct{ tx *sql.Tx }

func (r orderRepo) Create(ctx context.Context, o *models.Order) error {
	ts := now()
	_, err := r.tx.ExecContext(ctx, `INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, 1, $30, $30)`,
		o.ID, o.SenderName, o.SenderPhone, o.SenderAddress, o.ReceiverName, o.ReceiverPhone,
		o.ReceiverAddress, o.ClientID, o.Description, o.TotalWeight, o.TotalVolume, o.Insurance,
		o.Status, o.PreviousStatus, o.CargoPickupType, o.DeliveryType, o.StartWarehouseID,
		o.WarehouseID, o.DestinationWarehouseID, o.DirectionID, o.DistrictID, o.CourierID,
		o.ExpensesPrice, o.CancellationReason, o.NotDeliveredReason, o.IsPublicOfferAccepted,
		o.IsWaiverAgreementAccepted, o.PublicOfferURL, o.WaiverAgreementURL, ts)
	if err != nil {
		return mapErr(err)
	}
	o.Version, o.CreatedAt, o.UpdatedAt = 1, ts, ts
	return nil
}

func (r orderRepo) get(ctx context.Context, id int64, lock string) (*models.Order, error) {
	row := r.tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`+lock, id)
	o, err := scanOrder(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return &o, nil
}

func (r orderRepo) Get(ctx context.Context, id int64) (*models.Order, error) {
	return r.get(ctx, id, "")
}

func (r orderRepo) GetForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r orderRepo) GetMany(ctx context.Context, ids []int64) ([]models.Order, error) {
	rows, err := r.tx.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ANY($1) ORDER BY id`, pq.Array(ids))
	return collect(rows, err, scanOrder)
}

func (r orderRepo) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists)
	return exists, mapErr(err)
}

func (r orderRepo) Update(ctx context.Context, o *models.Order) error {
	ts := now()
	err := r.tx.QueryRowContext(ctx, `UPDATE orders SET
			sender_name = $2, sender_phone = $3, sender_address = $4, receiver_name = $5,
			receiver_phone = $6, receiver_address = $7, client_id = $8, description = $9,
			total_weight = $10, total_volume = $11, insurance = $12, status = $13,
			previous_status = $14, cargo_pickup_type = $15, delivery_type = $16,
			start_warehouse_id = $17, warehouse_id = $18, destination_warehouse_id = $19,
			direction_id = $20, district_id = $21, courier_id = $22, expenses_price = $23,
			cancellation_reason = $24, not_delivered_reason = $25, is_public_offer_accepted = $26,
			is_waiver_agreement_accepted = $27, public_offer_url = $28, waiver_agreement_url = $29,
			version = version + 1, updated_at = $30
		WHERE id = $1
		RETURNING version, created_at`,
		o.ID, o.SenderName, o.SenderPhone, o.SenderAddress, o.ReceiverName, o.ReceiverPhone,
		o.ReceiverAddress, o.ClientID, o.Description, o.TotalWeight, o.TotalVolume, o.Insurance,
		o.Status, o.PreviousStatus, o.CargoPickupType, o.DeliveryType, o.StartWarehouseID,
		o.WarehouseID, o.DestinationWarehouseID, o.DirectionID, o.DistrictID, o.CourierID,
		o.ExpensesPrice, o.CancellationReason, o.NotDeliveredReason, o.IsPublicOfferAccepted,
		o.IsWaiverAgreementAccepted, o.PublicOfferURL, o.WaiverAgreementURL, ts,
	).Scan(&o.Version, &o.CreatedAt)
	if err != nil {
		return mapErr(err)
	}
	o.UpdatedAt = ts
	return nil
}

// where accumulates filter clauses with their positional arguments.
type where struct {
	clauses []string
	args    []interface{}
}

func (w *where) add(clause string, arg interface{}) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (w *where) page(p store.Page) string {
	w.args = append(w.args, p.Size(), p.Offset())
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(w.args)-1, len(w.args))
}

func (r orderRepo) List(ctx context.Context, f store.OrderFilter) ([]models.Order, int, error) {
	w := &where{}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		w.add("status = ANY(?)", pq.Array(statuses))
	}
	if f.WarehouseID != nil {
		w.add("warehouse_id = ?", *f.WarehouseID)
	}
	if f.DirectionID != nil {
		w.add("direction_id = ?", *f.DirectionID)
	}
	if f.CourierID != nil {
		w.add("courier_id = ?", *f.CourierID)
	}
	if f.TransportType != "" {
		w.add("direction_id IN (SELECT id FROM directions WHERE transportation_type = ?)", string(f.TransportType))
	}
	if f.From != nil {
		w.add("created_at >= ?", *f.From)
	}
	if f.To != nil {
		w.add("created_at <= ?", *f.To)
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		w.add(`(id::text ILIKE ? OR sender_name ILIKE ? OR sender_phone ILIKE ?
			OR receiver_name ILIKE ? OR receiver_phone ILIKE ?)`, "%"+q+"%")
	}

	var total int
	if err := r.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, mapErr(err)
	}
	query := `SELECT ` + orderColumns + ` FROM orders` + w.String() + ` ORDER BY created_at DESC, id DESC`
	query += w.page(f.Page)
	rows, err := r.tx.QueryContext(ctx, query, w.args...)
	orders, err := collect(rows, err, scanOrder)
	return orders, total, err
}

func (r orderRepo) AttachShipment(ctx context.Context, orderID, shipmentID int64) error {
	_, err := r.tx.ExecContext(ctx, `INSERT INTO order_shipments (order_id, shipment_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, orderID, shipmentID)
	return mapErr(err)
}

func (r orderRepo) ShipmentIDs(ctx context.Context, orderID int64) ([]int64, error) {
	rows, err := r.tx.QueryContext(ctx, `SELECT shipment_id FROM order_shipments WHERE order_id = $1 ORDER BY shipment_id`, orderID)
	return collect(rows, err, scanID)
}

func (r orderRepo) IDsByShipment(ctx context.Context, shipmentID int64) ([]int64, error) {
	rows, err := r.tx.QueryContext(ctx, `SELECT order_id FROM order_shipments WHERE shipment_id = $1 ORDER BY order_id`, shipmentID)
	return collect(rows, err, scanID)
}

func scanID(s scanner) (int64, error) {
	var id int64
	err := s.Scan(&id)
	return id, err
}

const itemColumns = `id, order_id, status, previous_status, warehouse_id, scan_code, is_loaded, photo, created_at, updated_at`

func scanItem(s scanner) (models.OrderItem, error) {
	var i models.OrderItem
	err := s.Scan(&i.ID, &i.OrderID, &i.Status, &i.PreviousStatus, &i.WarehouseID, &i.ScanCode,
		&i.IsLoaded, &i.Photo, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

type itemRepo struct{ tx *sql.Tx }

func (r itemRepo) Create(ctx context.Context, item *models.OrderItem) error {
	ts := now()
	err := r.tx.QueryRowContext(ctx, `INSERT INTO order_items
			(order_id, status, previous_status, warehouse_id, scan_code, is_loaded, photo, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8) RETURNING id`,
		item.OrderID, item.Status, item.PreviousStatus, item.WarehouseID, item.ScanCode,
		item.IsLoaded, item.Photo, ts,
	).Scan(&item.ID)
	if err != nil {
		return mapErr(err)
	}
	item.CreatedAt, item.UpdatedAt = ts, ts
	return nil
}

func (r itemRepo) Get(ctx context.Context, id int64) (*models.OrderItem, error) {
	item, err := scanItem(r.tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM order_items WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return &item, nil
}

func (r itemRepo) GetMany(ctx context.Context, ids []int64) ([]models.OrderItem, error) {
	rows, err := r.tx.QueryContext(ctx, `SELECT `+itemColumns+` FROM order_items WHERE id = ANY($1) ORDER BY id`, pq.Array(ids))
	return collect(rows, err, scanItem)
}

func (r itemRepo) ByScanCode(ctx context.Context, code string) (*models.OrderItem, error) {
	item, err := scanItem(r.tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM order_items WHERE scan_code = $1`, code))
	if err != nil {
		return nil, mapErr(err)
	}
	return &item, nil
}

func (r itemRepo) ListByOrder(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	rows, err := r.tx.QueryContext(ctx, `SELECT `+itemColumns+` FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	return collect(rows, err, scanItem)
}

func (r itemRepo) Update(ctx context.Context, item *models.OrderItem) error {
	ts := now()
	err := r.tx.QueryRowContext(ctx, `UPDATE order_items SET status = $2, previous_status = $3,
			warehouse_id = $4, scan_code = $5, is_loaded = $6, photo = $7, updated_at = $8
		WHERE id = $1 RETURNING created_at`,
		item.ID, item.Status, item.PreviousStatus, item.WarehouseID, item.ScanCode, item.IsLoaded,
		item.Photo, ts,
	).Scan(&item.CreatedAt)
	if err != nil {
		return mapErr(err)
	}
	item.UpdatedAt = ts
	return nil
}

func (r itemRepo) Delete(ctx context.Context, id int64) error {
	return affected(r.tx.ExecContext(ctx, `DELETE FROM order_items WHERE id = $1`, id))
}

func (r itemRepo) AttachShipment(ctx context.Context, itemID, shipmentID int64) error {
	_, err := r.tx.ExecContext(ctx, `INSERT INTO item_shipments (item_id, shipment_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, itemID, shipmentID)
	return mapErr(err)
}

type paymentRepo struct{ tx *sql.Tx }

const paymentColumns = `id, order_id, amount, currency, status, payment_type, payer_type, bin, comment, paid_at`

func (r paymentRepo) Create(ctx context.Context, p *models.Payment) error {
	err := r.tx.QueryRowContext(ctx, `INSERT INTO payments
			(order_id, amount, currency, status, payment_type, payer_type, bin, comment, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		p.OrderID, p.Amount, p.Currency, p.Status, p.PaymentType, p.PayerType, p.BIN, p.Comment, p.PaidAt,
	).Scan(&p.ID)
	return mapErr(err)
}

func (r paymentRepo) GetByOrder(ctx context.Context, orderID int64) (*models.Payment, error) {
	var p models.Payment
	err := r.tx.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID).
		Scan(&p.ID, &p.OrderID, &p.Amount, &p.Currency, &p.Status, &p.PaymentType, &p.PayerType, &p.BIN, &p.Comment, &p.PaidAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (r paymentRepo) Update(ctx context.Context, p *models.Payment) error {
	return affected(r.tx.ExecContext(ctx, `UPDATE payments SET amount = $2, currency = $3, status = $4,
			payment_type = $5, payer_type = $6, bin = $7, comment = $8, paid_at = $9
		WHERE order_id = $1`,
		p.OrderID, p.Amount, p.Currency, p.Status, p.PaymentType, p.PayerType, p.BIN, p.Comment, p.PaidAt))
}

type expenseRepo struct{ tx *sql.Tx }

func scanExpense(s scanner) (models.Expense, error) {
	var e models.Expense
	err := s.Scan(&e.ID, &e.Name, &e.Price)
	return e, err
}

func (r expenseRepo) GetMany(ctx context.Context, ids []int64) ([]models.Expense, error) {
	rows, err := r.tx.QueryContext(ctx, `SELECT id, name, price FROM expenses WHERE id = ANY($1) ORDER BY id`, pq.Array(ids))
	return collect(rows, err, scanExpense)
}

func (r expenseRepo) ListByOrder(ctx context.Context, orderID int64) ([]models.Expense, error) {
	rows, err := r.tx.QueryContext(ctx, `SELECT e.id, e.name, e.price FROM expenses e
		JOIN order_expenses oe ON oe.expense_id = e.id
		WHERE oe.order_id = $1 ORDER BY e.id`, orderID)
	return collect(rows, err, scanExpense)
}

// SetForOrder silently skips ids that name no expense.
func (r expenseRepo) SetForOrder(ctx context.Context, orderID int64, expenseIDs []int64) error {
	if _, err := r.tx.ExecContext(ctx, `DELETE FROM order_expenses WHERE order_id = $1`, orderID); err != nil {
		return mapErr(err)
	}
	if len(expenseIDs) == 0 {
		return nil
	}
	_, err := r.tx.ExecContext(ctx, `INSERT INTO order_expenses (order_id, expense_id)
		SELECT $1, id FROM expenses WHERE id = ANY($2)`, orderID, pq.Array(expenseIDs))
	return mapErr(err)
}
