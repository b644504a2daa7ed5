package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jogardn/cargo-lifecycle/internal/apperr"
	"github.com/jogardn/cargo-lifecycle/internal/auth"
	"github.com/jogardn/cargo-lifecycle/internal/events"
	"github.com/jogardn/cargo-lifecycle/internal/lifecycle"
	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/sirupsen/logrus"
)

// Documents generates signed documents after the signing transaction has
// committed. Failures are kept for retry by the implementation.
type Documents interface {
	Generate(ctx context.Context, kind models.DocumentKind, ownerID int64) (string, error)
}

// StopVisitor marks the shipment stops touched by an order arriving at a
// warehouse. The shipping engine implements it.
type StopVisitor interface {
	VisitStops(ctx context.Context, sc *lifecycle.Scope, orderID, warehouseID int64) error
}

type Deps struct {
	Store       store.Store
	Authorizer  auth.Authorizer
	Machine     *lifecycle.Machine
	IDs         IDGenerator
	Codes       CodeGenerator
	Notifier    events.Notifier
	Emitter     *events.Emitter
	Documents   Documents
	TrackingURL string
	Logger      *logrus.Logger
	Now         func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.IDs == nil {
		d.IDs = NewRandomIDGenerator()
	}
	if d.Codes == nil {
		d.Codes = RandomCodes{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Authorizer == nil {
		d.Authorizer = auth.AllowAll{}
	}
	return d
}

type base struct {
	store      store.Store
	authorizer auth.Authorizer
	machine    *lifecycle.Machine
	emitter    *events.Emitter
	logger     *logrus.Logger
	now        func() time.Time
}

func newBase(d Deps) base {
	return base{
		store:      d.Store,
		authorizer: d.Authorizer,
		machine:    d.Machine,
		emitter:    d.Emitter,
		logger:     d.Logger,
		now:        d.Now,
	}
}

// run executes fn in one transaction and publishes the collected status
// changes once it has committed.
func (b *base) run(ctx context.Context, actor auth.Actor, fn func(sc *lifecycle.Scope) error) error {
	var sc *lifecycle.Scope
	err := b.store.WithTx(ctx, func(tx store.Tx) error {
		sc = b.machine.Begin(tx, actor.ID)
		return fn(sc)
	})
	if err != nil {
		return err
	}
	b.emitter.Emit(ctx, sc.Changes...)
	return nil
}

func (b *base) require(ctx context.Context, actor auth.Actor, c auth.Capability) error {
	return auth.Require(ctx, b.authorizer, actor, c)
}

func lockOrder(ctx context.Context, tx store.Tx, id int64) (*models.Order, error) {
	order, err := tx.Orders().GetForUpdate(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("order", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order %d: %w", id, err)
	}
	return order, nil
}

func loadItem(ctx context.Context, tx store.Tx, id int64) (*models.OrderItem, error) {
	item, err := tx.Items().Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("order_item", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order item %d: %w", id, err)
	}
	return item, nil
}

func loadUser(ctx context.Context, tx store.Tx, id int64) (*models.User, error) {
	user, err := tx.Reference().User(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", id, err)
	}
	return user, nil
}

func requireWarehouse(ctx context.Context, tx store.Tx, id int64) error {
	_, err := tx.Reference().Warehouse(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("warehouse", id)
	}
	return err
}

func value(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
