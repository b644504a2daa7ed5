package models

import "testing"

func TestOrderStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{StatusCreated, StatusAssignedToCourier, true},
		{StatusCreated, StatusInTransit, false},
		{StatusCreated, StatusPartiallyInTransit, true},
		{StatusClientDeliveringToWarehouse, StatusPartiallyInTransit, true},
		{StatusAcceptedToWarehouse, StatusAcceptedToWarehouse, true},
		{StatusAcceptedToWarehouse, StatusPartiallyInTransit, true},
		{StatusPartiallyInTransit, StatusInTransit, true},
		{StatusInTransit, StatusCancelled, false},
		{StatusArrivedToDestination, StatusNotDelivered, true},
		{StatusDeliveringToRecipient, StatusDelivered, true},
		{StatusDelivered, StatusNotDelivered, false},
		{StatusCancelled, StatusCreated, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.want, got)
		}
	}
}

func TestEveryTargetIsAKnownStatus(t *testing.T) {
	for from, targets := range orderTransitions {
		for _, to := range targets {
			if !to.Valid() {
				t.Errorf("%s lists unknown target %q", from, to)
			}
		}
	}
	for from, targets := range shipmentTransitions {
		for _, to := range targets {
			if !to.Valid() {
				t.Errorf("%s lists unknown target %q", from, to)
			}
		}
	}
}

func TestPreTransitMatchesCancellableStates(t *testing.T) {
	cancellable := []OrderStatus{
		StatusCreated, StatusAssignedToCourier, StatusCourierDeliveringToWarehouse,
		StatusClientDeliveringToWarehouse, StatusAcceptedToWarehouse,
	}
	for _, s := range cancellable {
		if !s.PreTransit() {
			t.Errorf("expected %s to be pre-transit", s)
		}
	}
	for _, s := range []OrderStatus{StatusInTransit, StatusArrivedToDestination, StatusDelivered, StatusCancelled} {
		if s.PreTransit() {
			t.Errorf("expected %s not to be pre-transit", s)
		}
	}
}

func TestResponseStatusTransitions(t *testing.T) {
	if !ResponseResponded.CanTransitionTo(ResponseConfirmed) {
		t.Error("responded response should be confirmable")
	}
	if ResponseCancel.CanTransitionTo(ResponseConfirmed) {
		t.Error("cancelled response must not be confirmable")
	}
	if !ResponseConfirmed.Active() || ResponseFinished.Active() {
		t.Error("unexpected Active result")
	}
}

func TestShipmentRoute(t *testing.T) {
	end := int64(9)
	s := Shipment{
		EndWarehouseID: &end,
		Stops: []ShipmentStop{
			{ShipmentID: 1, WarehouseID: 3},
			{ShipmentID: 1, WarehouseID: 4, Visited: true},
		},
	}
	if !s.OnRoute(9) || !s.OnRoute(3) {
		t.Error("expected end warehouse and stops to be on route")
	}
	if s.OnRoute(5) {
		t.Error("warehouse 5 is not on the route")
	}
	if s.AllStopsVisited() {
		t.Error("stop 3 is still unvisited")
	}
	s.Stops[0].Visited = true
	if !s.AllStopsVisited() {
		t.Error("expected all stops visited")
	}
}

func TestUserNames(t *testing.T) {
	u := User{FirstName: "Aidar", LastName: "Nurlanov", MiddleName: "Serikovich"}
	if got := u.ShortName(); got != "Nurlanov Aidar" {
		t.Errorf("unexpected short name %q", got)
	}
	if got := u.FullName(); got != "Nurlanov Aidar Serikovich" {
		t.Errorf("unexpected full name %q", got)
	}
}
