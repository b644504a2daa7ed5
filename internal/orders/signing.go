package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jogardn/cargo-lifecycle/internal/apperr"
	"github.com/jogardn/cargo-lifecycle/internal/auth"
	"github.com/jogardn/cargo-lifecycle/internal/events"
	"github.com/jogardn/cargo-lifecycle/internal/lifecycle"
	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// IssueCode stores a fresh one-time code for the owner and returns it.
func IssueCode(ctx context.Context, tx store.Tx, gen CodeGenerator, kind models.SigningKind, ownerID int64) (string, error) {
	code, err := gen.Code()
	if err != nil {
		return "", apperr.Internal("failed to generate signing code", err)
	}
	if err := tx.SigningCodes().Create(ctx, &models.SigningCode{Kind: kind, OwnerID: ownerID, Code: code}); err != nil {
		return "", fmt.Errorf("failed to store signing code: %w", err)
	}
	return code, nil
}

// RedeemCode marks a matching unused code as used. Codes issued for another
// owner are rejected like unknown ones.
func RedeemCode(ctx context.Context, tx store.Tx, kind models.SigningKind, ownerID int64, code string) error {
	sc, err := tx.SigningCodes().FindUnused(ctx, kind, strings.TrimSpace(code))
	if errors.Is(err, store.ErrNotFound) || (err == nil && sc.OwnerID != ownerID) {
		return apperr.Precondition("invalid_code", "signing code is invalid or already used")
	}
	if err != nil {
		return fmt.Errorf("failed to look up signing code: %w", err)
	}
	return tx.SigningCodes().MarkUsed(ctx, sc.ID)
}

// SendPublicOfferCode texts the sender a code to accept the public offer,
// together with the tracking link for sender and receiver.
func (c *Controller) SendPublicOfferCode(ctx context.Context, actor auth.Actor, orderID int64) error {
	if err := c.require(ctx, actor, auth.SignOrder); err != nil {
		return err
	}
	var (
		order *models.Order
		code  string
	)
	err := c.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if order, err = lockOrder(ctx, tx, orderID); err != nil {
			return err
		}
		if order.IsPublicOfferAccepted {
			return apperr.Precondition("already_signed", "public offer of order %d is already accepted", orderID)
		}
		code, err = IssueCode(ctx, tx, c.codes, models.SigningPublicOffer, orderID)
		return err
	})
	if err != nil {
		return err
	}

	id := fmt.Sprint(order.ID)
	c.notify(ctx, events.Notification{
		Channel:   events.ChannelSMS,
		Recipient: order.SenderPhone,
		Template:  events.TemplatePublicOffer,
		Params:    map[string]string{"order_id": id, "code": code},
	})
	link := strings.TrimRight(c.trackingURL, "/") + "/" + id
	for _, phone := range []string{order.SenderPhone, order.ReceiverPhone} {
		c.notify(ctx, events.Notification{
			Channel:   events.ChannelSMS,
			Recipient: phone,
			Template:  events.TemplateTracking,
			Params:    map[string]string{"order_id": id, "link": link},
		})
	}
	return nil
}

func (c *Controller) AcceptPublicOffer(ctx context.Context, actor auth.Actor, orderID int64, code string) (*models.Order, error) {
	if err := c.require(ctx, actor, auth.SignOrder); err != nil {
		return nil, err
	}
	var order *models.Order
	err := c.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if order, err = lockOrder(ctx, tx, orderID); err != nil {
			return err
		}
		if err := RedeemCode(ctx, tx, models.SigningPublicOffer, orderID, code); err != nil {
			return err
		}
		order.IsPublicOfferAccepted = true
		return tx.Orders().Update(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	c.generate(ctx, models.DocumentPublicOffer, orderID)
	return order, nil
}

// SendWaiverCode texts the receiver the code that confirms delivery.
func (c *Controller) SendWaiverCode(ctx context.Context, actor auth.Actor, orderID int64) error {
	if err := c.require(ctx, actor, auth.DeliverOrder); err != nil {
		return err
	}
	var (
		order *models.Order
		code  string
	)
	err := c.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if order, err = lockOrder(ctx, tx, orderID); err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(models.StatusDelivered) {
			return apperr.Precondition("not_deliverable", "order %d in status %s is not ready for delivery", orderID, order.Status)
		}
		code, err = IssueCode(ctx, tx, c.codes, models.SigningWaiverAgreement, orderID)
		return err
	})
	if err != nil {
		return err
	}
	c.notify(ctx, events.Notification{
		Channel:   events.ChannelSMS,
		Recipient: order.ReceiverPhone,
		Template:  events.TemplateWaiverAgreement,
		Params:    map[string]string{"order_id": fmt.Sprint(order.ID), "code": code},
	})
	return nil
}

// AcceptWaiver is the receiver's signature: the order and its items are
// delivered and the courier's counters are credited.
func (c *Controller) AcceptWaiver(ctx context.Context, actor auth.Actor, orderID int64, code string) (*models.Order, error) {
	if err := c.require(ctx, actor, auth.DeliverOrder); err != nil {
		return nil, err
	}
	var order *models.Order
	err := c.run(ctx, actor, func(sc *lifecycle.Scope) error {
		tx := sc.Tx()
		var err error
		if order, err = lockOrder(ctx, tx, orderID); err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(models.StatusDelivered) {
			return apperr.Precondition("not_deliverable", "order %d in status %s is not ready for delivery", orderID, order.Status)
		}
		if err := RedeemCode(ctx, tx, models.SigningWaiverAgreement, orderID, code); err != nil {
			return err
		}
		order.IsWaiverAgreementAccepted = true
		if err := moveWithItems(ctx, sc, order, models.StatusDelivered, deliveredEntry(order)); err != nil {
			return err
		}
		if order.CourierID != nil && order.DeliveryType == models.DeliveryTypeDelivery {
			return tx.Couriers().AddDelivered(ctx, *order.CourierID, c.courierProfit(ctx, tx, order))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.generate(ctx, models.DocumentWaiverAgreement, orderID)
	return order, nil
}

// courierProfit is the delivery leg of the order's price. A direction
// without delivery tariffs credits nothing.
func (c *Controller) courierProfit(ctx context.Context, tx store.Tx, order *models.Order) decimal.Decimal {
	quote, err := c.calculator.Calculate(ctx, tx.Tariffs(), requestFor(order))
	if err != nil {
		c.logger.WithError(err).WithField("order_id", order.ID).Warn("Could not price courier delivery")
		return decimal.Zero
	}
	return quote.DeliveryExtra
}

func (c *Controller) generate(ctx context.Context, kind models.DocumentKind, ownerID int64) {
	if c.documents == nil {
		return
	}
	if _, err := c.documents.Generate(ctx, kind, ownerID); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"kind":     kind,
			"owner_id": ownerID,
		}).Warn("Document generation deferred")
	}
}
