package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
)

// names holds everything a description can mention, fetched in one round
// per table.
type names struct {
	users     map[int64]models.User
	warehouse *models.Warehouse
	cities    map[int64]string
}

func (l *Log) lookup(ctx context.Context, tx store.Tx, e Entry) (*names, error) {
	ref := tx.Reference()
	n := &names{users: map[int64]models.User{}, cities: map[int64]string{}}

	var userIDs []int64
	for _, id := range []int64{e.ClientID, e.ManagerID, e.CourierID, e.WarehouseManagerID} {
		if id != 0 {
			userIDs = append(userIDs, id)
		}
	}
	if len(userIDs) > 0 {
		users, err := ref.Users(ctx, userIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load users for history: %w", err)
		}
		for _, u := range users {
			n.users[u.ID] = u
		}
	}

	var cityIDs []int64
	if e.WarehouseID != 0 {
		warehouses, err := ref.Warehouses(ctx, []int64{e.WarehouseID})
		if err != nil {
			return nil, fmt.Errorf("failed to load warehouse for history: %w", err)
		}
		if len(warehouses) > 0 {
			n.warehouse = &warehouses[0]
			cityIDs = append(cityIDs, warehouses[0].CityID)
		}
	}
	for _, id := range []int64{e.DepartureCityID, e.ArrivalCityID} {
		if id != 0 {
			cityIDs = append(cityIDs, id)
		}
	}
	if len(cityIDs) > 0 {
		cities, err := ref.Cities(ctx, cityIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load cities for history: %w", err)
		}
		for _, c := range cities {
			n.cities[c.ID] = c.Name
		}
	}
	return n, nil
}

func (n *names) short(id int64) string {
	return n.users[id].ShortName()
}

func (n *names) full(id int64) string {
	return n.users[id].FullName()
}

func (n *names) place() string {
	if n.warehouse == nil {
		return ""
	}
	return joinNonEmpty(", ", n.warehouse.Name, n.cities[n.warehouse.CityID])
}

func (l *Log) render(ctx context.Context, tx store.Tx, e Entry) (string, error) {
	n, err := l.lookup(ctx, tx, e)
	if err != nil {
		return "", err
	}

	switch e.Code {
	case models.ActionOrderCreated:
		return "Order created", nil
	case models.ActionManagerApproved:
		return sentence("Manager", n.full(e.ManagerID), "approved the order"), nil
	case models.ActionAcceptedToWarehouse:
		return joinNonEmpty(" - ", sentence("Accepted at warehouse", n.place()), n.short(e.WarehouseManagerID)), nil
	case models.ActionCourierDeliveringToWarehouse:
		return sentence("Courier", n.short(e.CourierID), "picked up the cargo"), nil
	case models.ActionClientDeliveringToWarehouse:
		return "Client is bringing the cargo to the warehouse", nil
	case models.ActionArrivedMiddleWarehouse:
		return sentence("Cargo arrived at intermediate warehouse", n.place()), nil
	case models.ActionInTransit:
		route := joinNonEmpty(" - ", n.cities[e.DepartureCityID], n.cities[e.ArrivalCityID])
		return sentence("Cargo in transit", route), nil
	case models.ActionPartiallyInTransit:
		return "Part of the cargo is in transit", nil
	case models.ActionDeliveringToRecipient:
		return sentence("Courier", n.short(e.CourierID), "is delivering the cargo to the recipient"), nil
	case models.ActionArrivedToDestination:
		return joinNonEmpty(" - ", sentence("Arrived at destination warehouse", n.place()), n.short(e.WarehouseManagerID)), nil
	case models.ActionDelivered:
		if courier := n.short(e.CourierID); courier != "" {
			return "Delivered by courier " + courier, nil
		}
		return "Delivered, self pickup", nil
	case models.ActionNotDelivered:
		return joinNonEmpty(": ", "Not delivered", e.Note), nil
	case models.ActionCancelled:
		return joinNonEmpty(": ", "Order cancelled", e.Note), nil
	case models.ActionResumed:
		return "Order resumed", nil
	}
	return joinNonEmpty(": ", string(e.Code), e.Note), nil
}

func sentence(parts ...string) string {
	return joinNonEmpty(" ", parts...)
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
