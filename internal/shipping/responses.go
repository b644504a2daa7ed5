package shipping

import (
	"context"
	"errors"
	"fmt"

	"github.com/jogardn/cargo-lifecycle/internal/apperr"
	"github.com/jogardn/cargo-lifecycle/internal/auth"
	"github.com/jogardn/cargo-lifecycle/internal/events"
	"github.com/jogardn/cargo-lifecycle/internal/lifecycle"
	"github.com/jogardn/cargo-lifecycle/internal/orders"
	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/sirupsen/logrus"
)

// Respond records the driver's bid for a shipment that has no cargo on the
// road yet.
func (e *Engine) Respond(ctx context.Context, actor auth.Actor, shipmentID int64) (*models.ShipmentResponse, error) {
	if err := e.require(ctx, actor, auth.RespondShipping); err != nil {
		return nil, err
	}
	var resp *models.ShipmentResponse
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		shipment, err := loadShipment(ctx, tx, shipmentID, false)
		if err != nil {
			return err
		}
		if shipment.Status != models.ShipmentNew && shipment.Status != models.ShipmentWaitingDriver {
			return apperr.Precondition("shipment_unavailable", "shipment %d in status %s takes no responses", shipmentID, shipment.Status)
		}
		resp = &models.ShipmentResponse{ShipmentID: shipmentID, DriverID: actor.ID, Status: models.ResponseResponded}
		err = tx.Responses().Create(ctx, resp)
		if errors.Is(err, store.ErrDuplicate) {
			return apperr.Conflict("duplicate_response", "driver %d already responded to shipment %d", actor.ID, shipmentID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Engine) ListResponses(ctx context.Context, actor auth.Actor, shipmentID int64, status models.ResponseStatus) ([]models.ShipmentResponse, error) {
	if err := e.require(ctx, actor, auth.ViewShipping); err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, apperr.Precondition("invalid_status", "unknown response status %q", status)
	}
	var responses []models.ShipmentResponse
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := loadShipment(ctx, tx, shipmentID, false); err != nil {
			return err
		}
		var err error
		responses, err = tx.Responses().ListByShipment(ctx, shipmentID, status)
		return err
	})
	return responses, err
}

// AcceptResponse confirms one bid. Every other live bid on the same
// shipment is cancelled and the driver is put on the shipment.
func (e *Engine) AcceptResponse(ctx context.Context, actor auth.Actor, responseID int64) (*models.ShipmentResponse, error) {
	if err := e.require(ctx, actor, auth.AcceptShippingRespond); err != nil {
		return nil, err
	}
	var resp *models.ShipmentResponse
	err := e.run(ctx, actor, func(sc *lifecycle.Scope) error {
		tx := sc.Tx()
		var err error
		if resp, err = loadResponse(ctx, tx, responseID); err != nil {
			return err
		}
		shipment, err := loadShipment(ctx, tx, resp.ShipmentID, true)
		if err != nil {
			return err
		}
		if shipment.Status != models.ShipmentNew && shipment.Status != models.ShipmentWaitingDriver {
			return apperr.Precondition("shipment_unavailable", "shipment %d in status %s cannot change driver", shipment.ID, shipment.Status)
		}
		if err := sc.MoveResponse(ctx, resp, models.ResponseConfirmed); err != nil {
			return err
		}

		siblings, err := tx.Responses().ListByShipment(ctx, shipment.ID, "")
		if err != nil {
			return fmt.Errorf("failed to list responses of shipment %d: %w", shipment.ID, err)
		}
		for i := range siblings {
			if siblings[i].ID == resp.ID || !siblings[i].Status.Active() {
				continue
			}
			if err := sc.MoveResponse(ctx, &siblings[i], models.ResponseCancel); err != nil {
				return err
			}
		}

		driver := resp.DriverID
		shipment.DriverID = &driver
		shipment.IsDriverContractAccepted = false
		return sc.MoveShipment(ctx, shipment, models.ShipmentWaitingDriver)
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"response_id": responseID,
		"shipment_id": resp.ShipmentID,
		"driver_id":   resp.DriverID,
	}).Info("Driver response accepted")
	return resp, nil
}

// CancelResponse withdraws a bid. Withdrawing the confirmed bid frees the
// shipment for other drivers. Drivers may withdraw their own bids.
func (e *Engine) CancelResponse(ctx context.Context, actor auth.Actor, responseID int64) (*models.ShipmentResponse, error) {
	var resp *models.ShipmentResponse
	err := e.run(ctx, actor, func(sc *lifecycle.Scope) error {
		tx := sc.Tx()
		var err error
		if resp, err = loadResponse(ctx, tx, responseID); err != nil {
			return err
		}
		if resp.DriverID != actor.ID {
			if err := e.require(ctx, actor, auth.AcceptShippingRespond); err != nil {
				return err
			}
		}
		shipment, err := loadShipment(ctx, tx, resp.ShipmentID, true)
		if err != nil {
			return err
		}
		wasConfirmed := resp.Status == models.ResponseConfirmed
		if wasConfirmed && shipment.Status == models.ShipmentInTransit {
			return apperr.Precondition("shipment_departed", "shipment %d is already in transit", shipment.ID)
		}
		if err := sc.MoveResponse(ctx, resp, models.ResponseCancel); err != nil {
			return err
		}
		if !wasConfirmed || shipment.Status.Closed() {
			return nil
		}
		shipment.DriverID = nil
		shipment.IsDriverContractAccepted = false
		return sc.MoveShipment(ctx, shipment, models.ShipmentNew)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// SendDriverContractCode texts the assigned driver the code that signs the
// carriage contract.
func (e *Engine) SendDriverContractCode(ctx context.Context, actor auth.Actor, shipmentID int64) error {
	var (
		phone string
		code  string
	)
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		shipment, err := e.contractShipment(ctx, tx, actor, shipmentID)
		if err != nil {
			return err
		}
		driver, err := tx.Reference().User(ctx, *shipment.DriverID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("user", *shipment.DriverID)
		}
		if err != nil {
			return err
		}
		phone = driver.Phone
		code, err = orders.IssueCode(ctx, tx, e.codes, models.SigningDriverContract, shipmentID)
		return err
	})
	if err != nil {
		return err
	}
	if e.notifier == nil {
		return nil
	}
	if err := e.notifier.Notify(ctx, events.Notification{
		Channel:   events.ChannelSMS,
		Recipient: phone,
		Template:  events.TemplateDriverContract,
		Params:    map[string]string{"shipment_id": fmt.Sprint(shipmentID), "code": code},
	}); err != nil {
		e.logger.WithError(err).WithField("shipment_id", shipmentID).Warn("Failed to send driver contract code")
	}
	return nil
}

func (e *Engine) AcceptDriverContract(ctx context.Context, actor auth.Actor, shipmentID int64, code string) (*models.Shipment, error) {
	var shipment *models.Shipment
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if shipment, err = e.contractShipment(ctx, tx, actor, shipmentID); err != nil {
			return err
		}
		if err := orders.RedeemCode(ctx, tx, models.SigningDriverContract, shipmentID, code); err != nil {
			return err
		}
		shipment.IsDriverContractAccepted = true
		return tx.Shipments().Update(ctx, shipment)
	})
	if err != nil {
		return nil, err
	}
	if e.documents != nil {
		if _, err := e.documents.Generate(ctx, models.DocumentDriverContract, shipmentID); err != nil {
			e.logger.WithError(err).WithField("shipment_id", shipmentID).Warn("Document generation deferred")
		}
	}
	return shipment, nil
}

// contractShipment loads a shipment whose contract the actor may sign: the
// assigned driver, or shipping staff acting for them.
func (e *Engine) contractShipment(ctx context.Context, tx store.Tx, actor auth.Actor, shipmentID int64) (*models.Shipment, error) {
	shipment, err := loadShipment(ctx, tx, shipmentID, true)
	if err != nil {
		return nil, err
	}
	if shipment.DriverID == nil {
		return nil, apperr.Precondition("no_driver", "shipment %d has no driver", shipmentID)
	}
	if *shipment.DriverID != actor.ID {
		if err := e.require(ctx, actor, auth.UpdateShipping); err != nil {
			return nil, err
		}
	}
	if shipment.IsDriverContractAccepted {
		return nil, apperr.Precondition("already_signed", "driver contract of shipment %d is already accepted", shipmentID)
	}
	return shipment, nil
}

func loadResponse(ctx context.Context, tx store.Tx, id int64) (*models.ShipmentResponse, error) {
	resp, err := tx.Responses().Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("shipment_response", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load response %d: %w", id, err)
	}
	return resp, nil
}
