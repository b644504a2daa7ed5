package lifecycle

import (
	"context"
	"fmt"

	"github.com/jogardn/cargo-lifecycle/internal/apperr"
	"github.com/jogardn/cargo-lifecycle/internal/events"
	"github.com/jogardn/cargo-lifecycle/internal/history"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
)

// CancelOrder keeps the current status in the previous-status slot, which
// holds exactly one value. A cancelled order cannot be cancelled again, so
// the slot is never overwritten before a resume.
func (s *Scope) CancelOrder(ctx context.Context, order *models.Order, reason string, e history.Entry) error {
	if !order.Status.PreTransit() {
		return apperr.Precondition("order_not_cancellable", "order %d in status %s can no longer be cancelled", order.ID, order.Status)
	}
	prev := order.Status
	order.PreviousStatus = &prev
	order.CancellationReason = reason

	e.Code = models.ActionCancelled
	e.Note = reason
	return s.MoveOrder(ctx, order, models.StatusCancelled, e)
}

func (s *Scope) CancelItem(ctx context.Context, item *models.OrderItem, reason string, e history.Entry) error {
	if !item.Status.PreTransit() {
		return apperr.Precondition("item_not_cancellable", "order item %d in status %s can no longer be cancelled", item.ID, item.Status)
	}
	prev := item.Status
	item.PreviousStatus = &prev

	e.Code = models.ActionCancelled
	e.Note = reason
	return s.MoveItem(ctx, item, models.StatusCancelled, e)
}

// ResumeOrder restores the status saved by CancelOrder and clears the slot.
func (s *Scope) ResumeOrder(ctx context.Context, order *models.Order, e history.Entry) error {
	if order.PreviousStatus == nil {
		return apperr.Precondition("no_previous_status", "order %d has no status to resume", order.ID)
	}
	from, to := order.Status, *order.PreviousStatus
	order.Status = to
	order.PreviousStatus = nil
	order.CancellationReason = ""
	if err := s.tx.Orders().Update(ctx, order); err != nil {
		return fmt.Errorf("failed to update order %d: %w", order.ID, err)
	}

	e.OrderID = order.ID
	e.OrderItemID = 0
	e.Code = models.ActionResumed
	if err := s.Log(ctx, e); err != nil {
		return err
	}
	s.record(events.EntityOrder, order.ID, order.ID, string(from), string(to))
	return nil
}

// ResumeItem is a no-op for items that were not cancelled with the order.
func (s *Scope) ResumeItem(ctx context.Context, item *models.OrderItem) error {
	if item.Status != models.StatusCancelled || item.PreviousStatus == nil {
		return nil
	}
	from, to := item.Status, *item.PreviousStatus
	item.Status = to
	item.PreviousStatus = nil
	if err := s.tx.Items().Update(ctx, item); err != nil {
		return fmt.Errorf("failed to update order item %d: %w", item.ID, err)
	}
	s.record(events.EntityOrderItem, item.ID, item.OrderID, string(from), string(to))
	return nil
}
