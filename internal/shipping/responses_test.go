package shipping

import (
	"context"
	"testing"

	"github.com/jogardn/cargo-lifecycle/internal/apperr"
	"github.com/jogardn/cargo-lifecycle/internal/auth"
	"github.com/jogardn/cargo-lifecycle/internal/events"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
)

func respondAll(t *testing.T, e *Engine, shipmentID int64, drivers ...int64) []*models.ShipmentResponse {
	t.Helper()
	var out []*models.ShipmentResponse
	for _, d := range drivers {
		resp, err := e.Respond(context.Background(), auth.Actor{ID: d}, shipmentID)
		if err != nil {
			t.Fatalf("driver %d failed to respond: %v", d, err)
		}
		out = append(out, resp)
	}
	return out
}

func TestAcceptResponseCancelsSiblings(t *testing.T) {
	s := seeded()
	e := newEngine(s)
	ctx := context.Background()
	shipment := roadShipment(t, e, 20)
	other := roadShipment(t, e, 20)

	bids := respondAll(t, e, shipment.ID, 101, 102, 103)
	foreign := respondAll(t, e, other.ID, 102)[0]

	accepted, err := e.AcceptResponse(ctx, staff, bids[0].ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accepted.Status != models.ResponseConfirmed {
		t.Errorf("expected CONFIRMED, got %s", accepted.Status)
	}

	rows, err := e.ListResponses(ctx, staff, shipment.ID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	confirmed := 0
	for _, r := range rows {
		switch {
		case r.Status == models.ResponseConfirmed:
			confirmed++
		case r.Status != models.ResponseCancel:
			t.Errorf("response %d should be cancelled, got %s", r.ID, r.Status)
		}
	}
	if confirmed != 1 {
		t.Errorf("expected exactly one confirmed response, got %d", confirmed)
	}

	updated, _ := e.Get(ctx, staff, shipment.ID)
	if updated.Status != models.ShipmentWaitingDriver || updated.DriverID == nil || *updated.DriverID != 101 {
		t.Errorf("expected driver 101 waiting, got %+v", updated)
	}

	untouched, _ := e.ListResponses(ctx, staff, other.ID, models.ResponseResponded)
	if len(untouched) != 1 || untouched[0].ID != foreign.ID {
		t.Errorf("responses of other shipments must not change, got %+v", untouched)
	}
}

func TestAcceptingAnotherResponseReplacesDriver(t *testing.T) {
	s := seeded()
	e := newEngine(s)
	ctx := context.Background()
	shipment := roadShipment(t, e, 20)
	bids := respondAll(t, e, shipment.ID, 101, 102)

	if _, err := e.AcceptResponse(ctx, staff, bids[0].ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// the second bid was cancelled by the first acceptance
	if _, err := e.AcceptResponse(ctx, staff, bids[1].ID); !apperr.Is(err, apperr.KindPrecondition) {
		t.Errorf("expected cancelled response to stay cancelled, got %v", err)
	}
	if _, err := e.AcceptResponse(ctx, staff, bids[0].ID); !apperr.Is(err, apperr.KindPrecondition) {
		t.Errorf("expected double accept to fail, got %v", err)
	}
}

func TestRespondTwiceConflicts(t *testing.T) {
	e := newEngine(seeded())
	shipment := roadShipment(t, e, 20)
	respondAll(t, e, shipment.ID, 101)

	_, err := e.Respond(context.Background(), auth.Actor{ID: 101}, shipment.ID)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestCancelConfirmedResponseFreesShipment(t *testing.T) {
	s := seeded()
	e := newEngine(s)
	ctx := context.Background()
	shipment := roadShipment(t, e, 20)
	bid := respondAll(t, e, shipment.ID, 101)[0]

	if _, err := e.AcceptResponse(ctx, staff, bid.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancelled, err := e.CancelResponse(ctx, auth.Actor{ID: 101}, bid.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != models.ResponseCancel {
		t.Errorf("expected CANCEL, got %s", cancelled.Status)
	}

	freed, _ := e.Get(ctx, staff, shipment.ID)
	if freed.Status != models.ShipmentNew || freed.DriverID != nil {
		t.Errorf("expected shipment back to NEW without driver, got %+v", freed)
	}
}

func TestResponsesOnMissingEntities(t *testing.T) {
	e := newEngine(seeded())
	ctx := context.Background()

	if _, err := e.Respond(ctx, auth.Actor{ID: 101}, 424242); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found for shipment, got %v", err)
	}
	if _, err := e.AcceptResponse(ctx, staff, 424242); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found for accept, got %v", err)
	}
	if _, err := e.CancelResponse(ctx, staff, 424242); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found for cancel, got %v", err)
	}
}

func TestDriverContractSigning(t *testing.T) {
	s := seeded()
	e := newEngine(s)
	notifier := &recordingNotifier{}
	docs := &recordingDocuments{}
	e.notifier, e.documents, e.codes = notifier, docs, fixedCode("424242")
	ctx := context.Background()
	driver := auth.Actor{ID: 101}

	shipment := roadShipment(t, e, 20)
	if err := e.SendDriverContractCode(ctx, driver, shipment.ID); !apperr.Is(err, apperr.KindPrecondition) {
		t.Fatalf("expected shipment without driver to fail, got %v", err)
	}

	bid := respondAll(t, e, shipment.ID, 101)[0]
	if _, err := e.AcceptResponse(ctx, staff, bid.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.SendDriverContractCode(ctx, driver, shipment.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Template != events.TemplateDriverContract || notifier.sent[0].Recipient != "+77000000101" {
		t.Fatalf("expected contract code sent to the driver, got %+v", notifier.sent)
	}

	if _, err := e.AcceptDriverContract(ctx, driver, shipment.ID, "000000"); !apperr.Is(err, apperr.KindPrecondition) {
		t.Errorf("expected wrong code to fail, got %v", err)
	}
	signed, err := e.AcceptDriverContract(ctx, driver, shipment.ID, "424242")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !signed.IsDriverContractAccepted {
		t.Error("expected contract to be accepted")
	}
	if len(docs.generated) != 1 || docs.generated[0] != models.DocumentDriverContract {
		t.Errorf("expected contract document, got %v", docs.generated)
	}
	if _, err := e.AcceptDriverContract(ctx, driver, shipment.ID, "424242"); !apperr.Is(err, apperr.KindPrecondition) {
		t.Errorf("expected second signature to fail, got %v", err)
	}
}
