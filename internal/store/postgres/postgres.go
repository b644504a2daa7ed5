// Package postgres is the production store: database/sql over lib/pq with
// one SQL transaction per store.Tx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const uniqueViolation = "23505"

type Store struct {
	db     *sql.DB
	logger *logrus.Logger
}

// Open connects and waits up to attempts*2s for the database to come up.
func Open(ctx context.Context, dsn string, attempts int, logger *logrus.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	for i := 0; ; i++ {
		err = db.PingContext(ctx)
		if err == nil {
			logger.Info("Database connection established")
			break
		}
		if i+1 >= attempts {
			db.Close()
			return nil, fmt.Errorf("database not reachable: %w", err)
		}
		logger.WithError(err).Info("Waiting for database...")
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		}
	}
	return New(db, logger), nil
}

func New(db *sql.DB, logger *logrus.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) Orders() store.OrderRepository              { return orderRepo{t.tx} }
func (t *pgTx) Items() store.ItemRepository                { return itemRepo{t.tx} }
func (t *pgTx) Payments() store.PaymentRepository          { return paymentRepo{t.tx} }
func (t *pgTx) Expenses() store.ExpenseRepository          { return expenseRepo{t.tx} }
func (t *pgTx) Shipments() store.ShipmentRepository        { return shipmentRepo{t.tx} }
func (t *pgTx) Responses() store.ResponseRepository        { return responseRepo{t.tx} }
func (t *pgTx) Tariffs() store.TariffRepository            { return tariffRepo{t.tx} }
func (t *pgTx) History() store.HistoryRepository           { return historyRepo{t.tx} }
func (t *pgTx) Reference() store.ReferenceRepository       { return referenceRepo{t.tx} }
func (t *pgTx) SigningCodes() store.SigningCodeRepository  { return codeRepo{t.tx} }
func (t *pgTx) Documents() store.PendingDocumentRepository { return pendingRepo{t.tx} }
func (t *pgTx) Couriers() store.CourierRepository          { return courierRepo{t.tx} }

// mapErr translates driver errors into the store's sentinel errors.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", store.ErrDuplicate, pqErr.Constraint)
	}
	return err
}

// affected reports ErrNotFound when an UPDATE or DELETE matched no row.
func affected(res sql.Result, err error) error {
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func collect[T any](rows *sql.Rows, err error, scan func(scanner) (T, error)) ([]T, error) {
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
