package stack

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/amirphl/order-stack/internal/journal"
)

// AddControllingAlgoRef hands exclusive control of an order to an execution
// algorithm. An empty reference releases control instead. A missing order
// or an order already under another algo's control is a coordination bug
// upstream, surfaced as a hard error rather than swallowed.
func (s *Stack) AddControllingAlgoRef(ctx context.Context, orderID int, controlAlgoRef string) error {
	if controlAlgoRef == "" {
		return s.ReleaseOrderFromAlgoControl(ctx, orderID)
	}

	existing, err := s.store.Get(ctx, orderID)
	if err != nil {
		return fmt.Errorf("can't add controlling algo %s: %w", controlAlgoRef, err)
	}

	modified := existing.Copy()
	if err := modified.AddControllingAlgoRef(controlAlgoRef); err != nil {
		s.orderLogger(existing).Error("double algo control attempt",
			zap.String("control_algo_ref", controlAlgoRef),
			zap.String("existing_control_algo_ref", existing.ReferenceOfControllingAlgo))
		return err
	}

	if err := s.changeOrderOnStack(ctx, orderID, modified, false); err != nil {
		return fmt.Errorf("failed to add controlling algo %s to order %d: %w", controlAlgoRef, orderID, err)
	}
	s.journalEvent(ctx, journal.EventControl, "algo_control_added", map[string]any{
		"order_id": orderID, "control_algo_ref": controlAlgoRef,
	})
	return nil
}

// ReleaseOrderFromAlgoControl clears the controlling reference. Releasing
// an uncontrolled order is a no-op success; a missing order is a hard error.
func (s *Stack) ReleaseOrderFromAlgoControl(ctx context.Context, orderID int) error {
	existing, err := s.store.Get(ctx, orderID)
	if err != nil {
		return fmt.Errorf("can't release controlling algo: %w", err)
	}
	if !existing.IsOrderControlledByAlgo() {
		// No change required.
		return nil
	}

	modified := existing.Copy()
	modified.ReleaseOrderFromAlgoControl()

	if err := s.changeOrderOnStack(ctx, orderID, modified, false); err != nil {
		return fmt.Errorf("failed to release controlling algo for order %d: %w", orderID, err)
	}
	s.journalEvent(ctx, journal.EventControl, "algo_control_released", map[string]any{
		"order_id": orderID, "control_algo_ref": existing.ReferenceOfControllingAlgo,
	})
	return nil
}
