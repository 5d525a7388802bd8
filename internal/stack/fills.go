package stack

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/amirphl/order-stack/internal/journal"
	"github.com/amirphl/order-stack/internal/order"
)

// ChangeFillQuantityForOrder records an incremental fill against an order.
// The fill is added elementwise to the recorded fill vector and rejected,
// never clamped, when the cumulative result would exceed the desired trade
// on any leg. Filled price and fill datetime are written together; the
// datetime defaults to now.
//
// Fills always win over pending modification bookkeeping, so the write
// bypasses the concurrent-modification check. When the cumulative fill
// fully satisfies a pending modification quantity, the modification is
// advanced to completed.
func (s *Stack) ChangeFillQuantityForOrder(ctx context.Context, orderID int, fillQty []int, filledPrice *float64, fillDatetime *time.Time) error {
	existing, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if len(fillQty) != len(existing.Trade) {
		return fmt.Errorf("fill for order %d has %d legs, trade has %d: %w",
			orderID, len(fillQty), len(existing.Trade), order.ErrValidation)
	}

	cumulative := make([]int, len(existing.Fill))
	for i, fill := range existing.Fill {
		cumulative[i] = fill + fillQty[i]
	}
	if !existing.FillLessThanOrEqualToDesiredTrade(cumulative) {
		return fmt.Errorf("order %d fill %v plus %v against trade %v: %w",
			orderID, existing.Fill, fillQty, existing.Trade, order.ErrFillExceedsTrade)
	}

	modified := existing.Copy()
	modified.Fill = cumulative
	modified.FilledPrice = filledPrice
	if fillDatetime == nil {
		now := time.Now().UTC()
		fillDatetime = &now
	}
	modified.FillDatetime = fillDatetime
	if modified.IsBeingModified() && modified.FillEqualsModificationQuantity() {
		modified.ModificationStatus = order.ModificationCompleted
	}

	if err := s.changeOrderOnStack(ctx, orderID, modified, false); err != nil {
		return err
	}
	s.orderLogger(modified).Info("fill recorded",
		zap.Ints("fill", modified.Fill), zap.Ints("trade", modified.Trade))
	s.journalEvent(ctx, journal.EventFill, "fill_recorded", map[string]any{
		"order_id": orderID, "fill": modified.Fill, "trade": modified.Trade,
	})
	return nil
}

// ManualFillForOrderID records a fill entered by a human operator: the
// generic fill mutation followed by flagging the order as manually filled.
func (s *Stack) ManualFillForOrderID(ctx context.Context, orderID int, fillQty []int, filledPrice *float64, fillDatetime *time.Time) error {
	if err := s.ChangeFillQuantityForOrder(ctx, orderID, fillQty, filledPrice, fillDatetime); err != nil {
		return err
	}

	// All good, show it was a manual fill.
	existing, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	modified := existing.Copy()
	modified.ManualFill = true
	return s.changeOrderOnStack(ctx, orderID, modified, false)
}
