package postgres

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS cities (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS warehouses (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		city_id BIGINT NOT NULL REFERENCES cities(id)
	)`,
	`CREATE TABLE IF NOT EXISTS directions (
		id BIGSERIAL PRIMARY KEY,
		departure_city_id BIGINT NOT NULL REFERENCES cities(id),
		arrival_city_id BIGINT NOT NULL REFERENCES cities(id),
		transportation_type VARCHAR(20) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		first_name VARCHAR(255) NOT NULL DEFAULT '',
		last_name VARCHAR(255) NOT NULL DEFAULT '',
		middle_name VARCHAR(255) NOT NULL DEFAULT '',
		phone VARCHAR(50) NOT NULL DEFAULT '',
		warehouse_id BIGINT REFERENCES warehouses(id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id BIGINT PRIMARY KEY,
		sender_name VARCHAR(255) NOT NULL,
		sender_phone VARCHAR(50) NOT NULL,
		sender_address TEXT NOT NULL DEFAULT '',
		receiver_name VARCHAR(255) NOT NULL,
		receiver_phone VARCHAR(50) NOT NULL,
		receiver_address TEXT NOT NULL DEFAULT '',
		client_id BIGINT,
		description TEXT NOT NULL DEFAULT '',
		total_weight DOUBLE PRECISION NOT NULL,
		total_volume DOUBLE PRECISION NOT NULL,
		insurance NUMERIC(14,2) NOT NULL DEFAULT 0,
		status VARCHAR(50) NOT NULL,
		previous_status VARCHAR(50),
		cargo_pickup_type VARCHAR(20) NOT NULL,
		delivery_type VARCHAR(20) NOT NULL,
		start_warehouse_id BIGINT,
		warehouse_id BIGINT,
		destination_warehouse_id BIGINT,
		direction_id BIGINT NOT NULL REFERENCES directions(id),
		district_id BIGINT,
		courier_id BIGINT,
		expenses_price NUMERIC(14,2) NOT NULL DEFAULT 0,
		cancellation_reason TEXT NOT NULL DEFAULT '',
		not_delivered_reason TEXT NOT NULL DEFAULT '',
		is_public_offer_accepted BOOLEAN NOT NULL DEFAULT FALSE,
		is_waiver_agreement_accepted BOOLEAN NOT NULL DEFAULT FALSE,
		public_offer_url TEXT NOT NULL DEFAULT '',
		waiver_agreement_url TEXT NOT NULL DEFAULT '',
		version BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL REFERENCES orders(id),
		status VARCHAR(50) NOT NULL,
		previous_status VARCHAR(50),
		warehouse_id BIGINT,
		scan_code VARCHAR(64) NOT NULL UNIQUE,
		is_loaded BOOLEAN NOT NULL DEFAULT FALSE,
		photo TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL UNIQUE REFERENCES orders(id),
		amount NUMERIC(14,2) NOT NULL,
		currency VARCHAR(3) NOT NULL,
		status VARCHAR(20) NOT NULL,
		payment_type VARCHAR(20) NOT NULL,
		payer_type VARCHAR(2) NOT NULL,
		bin VARCHAR(12) NOT NULL DEFAULT '',
		comment TEXT NOT NULL DEFAULT '',
		paid_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS expenses (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		price NUMERIC(14,2) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS order_expenses (
		order_id BIGINT NOT NULL REFERENCES orders(id),
		expense_id BIGINT NOT NULL REFERENCES expenses(id),
		PRIMARY KEY (order_id, expense_id)
	)`,
	`CREATE TABLE IF NOT EXISTS shipments (
		id BIGSERIAL PRIMARY KEY,
		shipping_type VARCHAR(20) NOT NULL,
		status VARCHAR(30) NOT NULL,
		price NUMERIC(14,2) NOT NULL DEFAULT 0,
		direction_id BIGINT REFERENCES directions(id),
		start_warehouse_id BIGINT,
		end_warehouse_id BIGINT,
		driver_id BIGINT,
		transport_number VARCHAR(50) NOT NULL DEFAULT '',
		cargo_weight DOUBLE PRECISION NOT NULL DEFAULT 0,
		cargo_volume DOUBLE PRECISION NOT NULL DEFAULT 0,
		departure_date TIMESTAMPTZ,
		arrival_date TIMESTAMPTZ,
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION,
		is_loaded BOOLEAN NOT NULL DEFAULT FALSE,
		invoice_number VARCHAR(100) NOT NULL DEFAULT '',
		driver_contract_url TEXT NOT NULL DEFAULT '',
		is_driver_contract_accepted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS shipment_stops (
		shipment_id BIGINT NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
		warehouse_id BIGINT NOT NULL,
		position INTEGER NOT NULL,
		visited BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (shipment_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS order_shipments (
		order_id BIGINT NOT NULL REFERENCES orders(id),
		shipment_id BIGINT NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
		PRIMARY KEY (order_id, shipment_id)
	)`,
	`CREATE TABLE IF NOT EXISTS item_shipments (
		item_id BIGINT NOT NULL REFERENCES order_items(id) ON DELETE CASCADE,
		shipment_id BIGINT NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
		PRIMARY KEY (item_id, shipment_id)
	)`,
	`CREATE TABLE IF NOT EXISTS shipment_responses (
		id BIGSERIAL PRIMARY KEY,
		shipment_id BIGINT NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
		driver_id BIGINT NOT NULL,
		status VARCHAR(20) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (shipment_id, driver_id)
	)`,
	`CREATE TABLE IF NOT EXISTS tariffs (
		id BIGSERIAL PRIMARY KEY,
		calculation_type VARCHAR(40) NOT NULL,
		direction_id BIGINT REFERENCES directions(id),
		amount INTEGER NOT NULL,
		price NUMERIC(14,2) NOT NULL,
		is_limit BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_tariffs_bracket
		ON tariffs (calculation_type, (COALESCE(direction_id, 0)), amount)`,
	`CREATE TABLE IF NOT EXISTS action_history (
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT,
		order_item_id BIGINT,
		action_code VARCHAR(50) NOT NULL,
		action_description TEXT NOT NULL,
		client_id BIGINT,
		manager_id BIGINT,
		courier_id BIGINT,
		warehouse_manager_id BIGINT,
		warehouse_id BIGINT,
		departure_city_id BIGINT,
		arrival_city_id BIGINT,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS signing_codes (
		id BIGSERIAL PRIMARY KEY,
		kind VARCHAR(30) NOT NULL,
		owner_id BIGINT NOT NULL,
		code VARCHAR(12) NOT NULL,
		used BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pending_documents (
		id BIGSERIAL PRIMARY KEY,
		kind VARCHAR(30) NOT NULL,
		owner_id BIGINT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (kind, owner_id)
	)`,
	`CREATE TABLE IF NOT EXISTS courier_stats (
		courier_id BIGINT PRIMARY KEY,
		accepted_orders BIGINT NOT NULL DEFAULT 0,
		delivered_orders BIGINT NOT NULL DEFAULT 0,
		profit NUMERIC(14,2) NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_courier_id ON orders(courier_id)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id)`,
	`CREATE INDEX IF NOT EXISTS idx_action_history_order_id ON action_history(order_id)`,
	`CREATE INDEX IF NOT EXISTS idx_action_history_item_id ON action_history(order_item_id)`,
	`CREATE INDEX IF NOT EXISTS idx_signing_codes_code ON signing_codes(kind, code) WHERE NOT used`,
}

// CreateTables brings an empty database up to the current schema. Every
// statement is idempotent.
func (s *Store) CreateTables(ctx context.Context) error {
	for _, query := range schema {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	s.logger.WithField("statements", len(schema)).Info("Database schema ready")
	return nil
}
