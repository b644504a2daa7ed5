package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jogardn/cargo-lifecycle/internal/apperr"
	"github.com/jogardn/cargo-lifecycle/internal/auth"
	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type PaymentUpdate struct {
	Amount      *decimal.Decimal    `json:"amount,omitempty"`
	PaymentType *models.PaymentType `json:"payment_type,omitempty"`
	PayerType   *models.PayerType   `json:"payer_type,omitempty"`
	BIN         *string             `json:"bin,omitempty"`
	Comment     *string             `json:"comment,omitempty"`
}

// MarkPaid records that the payment was received. Individuals and legal
// entities are confirmed by different roles.
func (c *Controller) MarkPaid(ctx context.Context, actor auth.Actor, orderID int64) (*models.Payment, error) {
	return c.setPaymentStatus(ctx, actor, orderID, models.PaymentPaid)
}

func (c *Controller) MarkNotPaid(ctx context.Context, actor auth.Actor, orderID int64) (*models.Payment, error) {
	return c.setPaymentStatus(ctx, actor, orderID, models.PaymentNotPaid)
}

func (c *Controller) setPaymentStatus(ctx context.Context, actor auth.Actor, orderID int64, status models.PaymentStatus) (*models.Payment, error) {
	var payment *models.Payment
	err := c.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if payment, err = loadPayment(ctx, tx, orderID); err != nil {
			return err
		}
		capability := auth.UpdatePaymentStatusFL
		if payment.PayerType == models.PayerLegal {
			capability = auth.UpdatePaymentStatusUL
		}
		if err := c.require(ctx, actor, capability); err != nil {
			return err
		}

		payment.Status = status
		payment.PaidAt = nil
		if status == models.PaymentPaid {
			now := c.now()
			payment.PaidAt = &now
		}
		return tx.Payments().Update(ctx, payment)
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"order_id": orderID,
		"status":   status,
		"actor_id": actor.ID,
	}).Info("Payment status changed")
	return payment, nil
}

func (c *Controller) UpdatePayment(ctx context.Context, actor auth.Actor, orderID int64, u PaymentUpdate) (*models.Payment, error) {
	if err := c.require(ctx, actor, auth.UpdateOrder); err != nil {
		return nil, err
	}
	var payment *models.Payment
	err := c.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if payment, err = loadPayment(ctx, tx, orderID); err != nil {
			return err
		}
		if u.Amount != nil {
			if u.Amount.IsNegative() {
				return apperr.Precondition("invalid_amount", "payment amount must not be negative")
			}
			payment.Amount = *u.Amount
		}
		if u.PaymentType != nil {
			payment.PaymentType = *u.PaymentType
		}
		if u.PayerType != nil {
			payment.PayerType = *u.PayerType
		}
		if u.BIN != nil {
			payment.BIN = *u.BIN
		}
		if u.Comment != nil {
			payment.Comment = *u.Comment
		}
		if payment.PayerType == models.PayerLegal && payment.BIN == "" {
			return apperr.Precondition("bin_required", "legal entity payments need a BIN")
		}
		return tx.Payments().Update(ctx, payment)
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

func loadPayment(ctx context.Context, tx store.Tx, orderID int64) (*models.Payment, error) {
	payment, err := tx.Payments().GetByOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("payment", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment of order %d: %w", orderID, err)
	}
	return payment, nil
}
