// Package auth answers one question for the domain services: does an actor
// hold a capability. Roles and their assignment live elsewhere.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/jogardn/cargo-lifecycle/internal/apperr"
)

type Capability string

const (
	CreateOrder            Capability = "CREATE_ORDER"
	UpdateOrder            Capability = "UPDATE_ORDER"
	ViewOrders             Capability = "VIEW_ORDERS"
	CancelOrder            Capability = "CANCEL_ORDER"
	SignOrder              Capability = "SIGN_ORDER"
	DeliverOrder           Capability = "DELIVER_ORDER"
	AcceptOrderToWarehouse Capability = "ACCEPT_ORDER_TO_WAREHOUSE"
	UpdateOrderStatus      Capability = "UPDATE_ORDER_STATUS"
	UpdatePaymentStatusFL  Capability = "UPDATE_PAYMENT_STATUS_FL"
	UpdatePaymentStatusUL  Capability = "UPDATE_PAYMENT_STATUS_UL"
	CreateShipping         Capability = "CREATE_SHIPPING"
	UpdateShipping         Capability = "UPDATE_SHIPPING"
	DeleteShipping         Capability = "DELETE_SHIPPING"
	ViewShipping           Capability = "VIEW_SHIPPING"
	RespondShipping        Capability = "RESPOND_SHIPPING"
	AcceptShippingRespond  Capability = "ACCEPT_SHIPPING_RESPOND"
	ViewTariff             Capability = "VIEW_TARIF"
	EditTariff             Capability = "EDIT_TARIF"
)

type Actor struct {
	ID int64 `json:"id"`
}

type Authorizer interface {
	HasCapability(ctx context.Context, actorID int64, c Capability) (bool, error)
}

// Require returns a forbidden error when the actor lacks the capability.
func Require(ctx context.Context, a Authorizer, actor Actor, c Capability) error {
	ok, err := a.HasCapability(ctx, actor.ID, c)
	if err != nil {
		return apperr.Internal("failed to check permissions", err)
	}
	if !ok {
		return apperr.Forbidden("actor %d lacks %s", actor.ID, c)
	}
	return nil
}

// Has is Require without the error wrapping, for branching on roles.
func Has(ctx context.Context, a Authorizer, actor Actor, c Capability) bool {
	ok, err := a.HasCapability(ctx, actor.ID, c)
	return err == nil && ok
}

type AllowAll struct{}

func (AllowAll) HasCapability(context.Context, int64, Capability) (bool, error) {
	return true, nil
}

// Static grants a fixed capability set per actor.
type Static map[int64][]Capability

func (s Static) HasCapability(_ context.Context, actorID int64, c Capability) (bool, error) {
	for _, held := range s[actorID] {
		if held == c {
			return true, nil
		}
	}
	return false, nil
}

// LoadStatic reads {"<actor id>": ["CAPABILITY", ...]} grants.
func LoadStatic(r io.Reader) (Static, error) {
	var raw map[string][]Capability
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode capabilities: %w", err)
	}
	out := make(Static, len(raw))
	for key, caps := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid actor id %q: %w", key, err)
		}
		out[id] = caps
	}
	return out, nil
}
