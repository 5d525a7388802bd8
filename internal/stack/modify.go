package stack

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/amirphl/order-stack/internal/journal"
	"github.com/amirphl/order-stack/internal/order"
)

// ModifyOrderOnStack starts a quantity-change workflow: the proposed trade
// vector is staged on the order and tracked until fills satisfy it. The
// request is rejected while the order is locked, while another modification
// is in flight, when the new quantity contradicts fills already executed,
// or when it does not change the trade at all.
func (s *Stack) ModifyOrderOnStack(ctx context.Context, orderID int, newQty []int) error {
	existing, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if len(newQty) != len(existing.Trade) {
		return fmt.Errorf("modification for order %d has %d legs, trade has %d: %w",
			orderID, len(newQty), len(existing.Trade), order.ErrValidation)
	}
	if existing.Locked {
		return fmt.Errorf("order %d is locked against structural changes: %w", orderID, order.ErrConflict)
	}
	if existing.IsBeingModified() {
		return fmt.Errorf("order %d already has a modification in flight (%s): %w",
			orderID, existing.ModificationStatus, order.ErrConflict)
	}
	if existing.NewQtyLessThanFill(newQty) {
		return fmt.Errorf("new quantity %v for order %d contradicts recorded fill %v: %w",
			newQty, orderID, existing.Fill, order.ErrConflict)
	}
	if existing.SameTradeSize(&order.Order{Trade: newQty}) {
		return fmt.Errorf("modification for order %d does not change the trade %v: %w",
			orderID, existing.Trade, order.ErrValidation)
	}

	modified := existing.Copy()
	modified.ModificationStatus = order.ModificationRequested
	modified.ModificationQuantity = append([]int(nil), newQty...)

	if err := s.changeOrderOnStack(ctx, orderID, modified, true); err != nil {
		return err
	}
	s.orderLogger(modified).Info("modification requested",
		zap.Ints("trade", existing.Trade), zap.Ints("new_qty", newQty))
	s.journalEvent(ctx, journal.EventModify, "modification_requested", map[string]any{
		"order_id": orderID, "trade": existing.Trade, "new_qty": newQty,
	})
	return nil
}

// MarkModificationAsOnStack records that a requested modification has been
// passed downstream and is awaiting fills.
func (s *Stack) MarkModificationAsOnStack(ctx context.Context, orderID int) error {
	return s.advanceModification(ctx, orderID, order.ModificationOnStack,
		order.ModificationRequested)
}

// FailModification records that a modification was rejected downstream.
// The staged quantity is kept for inspection until cleared.
func (s *Stack) FailModification(ctx context.Context, orderID int) error {
	return s.advanceModification(ctx, orderID, order.ModificationFailed,
		order.ModificationRequested, order.ModificationOnStack)
}

// CompleteModification applies a fully satisfied modification: the staged
// quantity becomes the new trade vector. The modification must have been
// marked completed (by fills) or be fill-consistent at the time of the call.
func (s *Stack) CompleteModification(ctx context.Context, orderID int) error {
	existing, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if existing.ModificationQuantity == nil {
		return fmt.Errorf("order %d has no modification to complete: %w", orderID, order.ErrConflict)
	}
	if existing.ModificationStatus != order.ModificationCompleted && !existing.FillEqualsModificationQuantity() {
		return fmt.Errorf("order %d modification %v not yet satisfied by fills %v: %w",
			orderID, existing.ModificationQuantity, existing.Fill, order.ErrConflict)
	}

	modified := existing.Copy()
	modified.Trade = append([]int(nil), existing.ModificationQuantity...)
	modified.ModificationStatus = order.ModificationCompleted

	if err := s.changeOrderOnStack(ctx, orderID, modified, false); err != nil {
		return err
	}
	s.journalEvent(ctx, journal.EventModify, "modification_completed", map[string]any{
		"order_id": orderID, "trade": modified.Trade,
	})
	return nil
}

// ClearModification resets the workflow fields of a completed or failed
// modification, returning the order to its unmodified state.
func (s *Stack) ClearModification(ctx context.Context, orderID int) error {
	existing, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	switch existing.ModificationStatus {
	case order.ModificationCompleted, order.ModificationFailed:
	default:
		return fmt.Errorf("order %d modification is %s, only completed or failed can be cleared: %w",
			orderID, existing.ModificationStatus, order.ErrConflict)
	}

	modified := existing.Copy()
	modified.ModificationStatus = order.NoModification
	modified.ModificationQuantity = nil
	return s.changeOrderOnStack(ctx, orderID, modified, false)
}

func (s *Stack) advanceModification(ctx context.Context, orderID int, to order.ModificationStatus, from ...order.ModificationStatus) error {
	existing, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	allowed := false
	for _, status := range from {
		if existing.ModificationStatus == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("order %d modification is %s, cannot move to %s: %w",
			orderID, existing.ModificationStatus, to, order.ErrConflict)
	}

	modified := existing.Copy()
	modified.ModificationStatus = to
	return s.changeOrderOnStack(ctx, orderID, modified, false)
}
