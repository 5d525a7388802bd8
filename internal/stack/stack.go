// Package stack implements the order stack engine: a keyed collection of
// orders with id allocation, optimistic conditional updates, batch insertion
// with compensating rollback, fill bookkeeping, lock discipline and
// controlling-algo handoff.
package stack

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/amirphl/order-stack/internal/journal"
	"github.com/amirphl/order-stack/internal/order"
)

// Stack is the order stack engine. All state lives in the backing store;
// the engine itself is stateless and safe for concurrent use to the extent
// the store is.
type Stack struct {
	store order.Store
	jnl   journal.Journaler
	log   *zap.Logger
}

// New builds a stack engine over an explicit backing store. The journaler
// may be nil, in which case events are not recorded.
func New(store order.Store, jnl journal.Journaler, log *zap.Logger) *Stack {
	if log == nil {
		log = zap.NewNop()
	}
	return &Stack{store: store, jnl: jnl, log: log}
}

// orderLogger attaches the order's identifying attributes to every log line.
func (s *Stack) orderLogger(o *order.Order) *zap.Logger {
	return s.log.With(
		zap.String("strategy_name", o.Tradeable.StrategyName()),
		zap.String("instrument_code", o.Tradeable.InstrumentCode()),
		zap.Int("order_id", o.OrderID),
		zap.Int("parent_order_id", o.Parent),
	)
}

// journalEvent records an event; journal failures never fail the operation
// that triggered them.
func (s *Stack) journalEvent(ctx context.Context, eventType, description string, data map[string]any) {
	if s.jnl == nil {
		return
	}
	err := s.jnl.LogEvent(ctx, journal.Event{
		Time:        time.Now().UTC(),
		Type:        eventType,
		Description: description,
		Data:        data,
	})
	if err != nil {
		s.log.Warn("failed to journal stack event",
			zap.String("event_type", eventType), zap.Error(err))
	}
}

// PutOrderOnStack allocates a fresh id, stores the order, and returns the
// id. Fails with a conflict if an active order with the same tradeable key
// (or alternate key) and the same trade vector is already on the stack.
func (s *Stack) PutOrderOnStack(ctx context.Context, o *order.Order) (int, error) {
	if o.HasOrderID() {
		return order.NoOrderID, fmt.Errorf("order %s already has id %d: %w", o.Key(), o.OrderID, order.ErrValidation)
	}
	existing, err := s.OrdersWithKey(ctx, o.Key())
	if err != nil {
		return order.NoOrderID, err
	}
	for _, other := range existing {
		if other.Active && o.SameTradeSize(other) {
			return order.NoOrderID, fmt.Errorf("order %s duplicates active order %d: %w",
				o.Key(), other.OrderID, order.ErrConflict)
		}
	}
	id, err := s.store.Insert(ctx, o)
	if err != nil {
		return order.NoOrderID, fmt.Errorf("failed to put order %s on stack: %w", o.Key(), err)
	}
	s.journalEvent(ctx, journal.EventOrder, "order_put_on_stack", map[string]any{
		"order_id": id, "key": o.Key(), "trade": o.Trade,
	})
	return id, nil
}

// PutListOfOrdersOnStack places a batch of new orders with all-or-nothing
// observable semantics. Each order is locked and inserted in input order;
// on the first failure every already-inserted order of this batch is rolled
// back (unlock, deactivate, remove) and the whole operation fails. On full
// success the orders are unlocked in a second pass when unlockWhenFinished
// is set, and the ordered list of new ids is returned.
//
// This is a sequential compensating-transaction pattern, not a true atomic
// commit: a crash between steps can leave a partial batch behind.
func (s *Stack) PutListOfOrdersOnStack(ctx context.Context, orders []*order.Order, unlockWhenFinished bool) ([]int, error) {
	if len(orders) == 0 {
		return []int{}, nil
	}
	log := s.orderLogger(orders[0])

	ids := make([]int, 0, len(orders))
	for _, o := range orders {
		o.LockOrder()
		id, err := s.PutOrderOnStack(ctx, o)
		if err != nil {
			log.Warn("failed to put order on stack, rolling back entire transaction",
				zap.String("order", o.String()),
				zap.String("contract_legs", o.Tradeable.ContractLegKey()),
				zap.Error(err))
			if rbErr := s.RollbackListOfOrdersOnStack(ctx, ids); rbErr != nil {
				log.Error("rollback of partial batch did not fully succeed", zap.Error(rbErr))
			}
			return nil, fmt.Errorf("batch insertion failed at order %s: %w", o.Key(), err)
		}
		o.OrderID = id
		ids = append(ids, id)
	}

	if unlockWhenFinished {
		if err := s.UnlockListOfOrders(ctx, ids); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// RollbackListOfOrdersOnStack compensates a failed batch: for each id, in
// order, unlock then deactivate then physically remove. Failures on one id
// are collected but never stop the remaining ids from being attempted.
func (s *Stack) RollbackListOfOrdersOnStack(ctx context.Context, orderIDs []int) error {
	s.log.Warn("rolling back batch insertion", zap.Ints("order_ids", orderIDs))
	s.journalEvent(ctx, journal.EventRollback, "rollback_orders", map[string]any{
		"order_ids": orderIDs,
	})
	var errs []error
	for _, orderID := range orderIDs {
		if err := s.UnlockOrderOnStack(ctx, orderID); err != nil {
			errs = append(errs, fmt.Errorf("unlock order %d: %w", orderID, err))
		}
		if err := s.DeactivateOrder(ctx, orderID); err != nil {
			errs = append(errs, fmt.Errorf("deactivate order %d: %w", orderID, err))
		}
		if err := s.store.Remove(ctx, orderID); err != nil {
			errs = append(errs, fmt.Errorf("remove order %d: %w", orderID, err))
		}
	}
	return errors.Join(errs...)
}

// UnlockListOfOrders unlocks each id. No ordering requirement between ids.
func (s *Stack) UnlockListOfOrders(ctx context.Context, orderIDs []int) error {
	var errs []error
	for _, orderID := range orderIDs {
		if err := s.UnlockOrderOnStack(ctx, orderID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// changeOrderOnStack is the optimistic conditional update every mutation
// goes through. With checkIfOrdersBeingModified set, the update fails with
// a conflict if the stored order has a modification workflow in flight the
// caller did not account for. With it clear the update is forced through;
// fills and algo-control changes use the bypass because they must not be
// blocked by unrelated quantity-modification bookkeeping.
func (s *Stack) changeOrderOnStack(ctx context.Context, orderID int, newOrder *order.Order, checkIfOrdersBeingModified bool) error {
	var expected func(*order.Order) bool
	if checkIfOrdersBeingModified {
		expected = func(existing *order.Order) bool {
			return !existing.IsBeingModified()
		}
	}
	if err := s.store.CompareAndSet(ctx, orderID, expected, newOrder); err != nil {
		return fmt.Errorf("failed to change order %d on stack: %w", orderID, err)
	}
	return nil
}

// GetOrder returns a private copy of the order with the given id.
func (s *Stack) GetOrder(ctx context.Context, orderID int) (*order.Order, error) {
	return s.store.Get(ctx, orderID)
}

// ListOfOrderIDs returns every id currently on the stack, ascending.
func (s *Stack) ListOfOrderIDs(ctx context.Context) ([]int, error) {
	return s.store.ListOrderIDs(ctx)
}

// OrdersWithKey returns the orders whose tradeable key matches the given
// key directly or through the alternate contract-date granularity.
func (s *Stack) OrdersWithKey(ctx context.Context, key string) ([]*order.Order, error) {
	orderIDs, err := s.store.ListOrderIDs(ctx)
	if err != nil {
		return nil, err
	}
	var out []*order.Order
	for _, orderID := range orderIDs {
		o, err := s.store.Get(ctx, orderID)
		if err != nil {
			if errors.Is(err, order.ErrNotFound) {
				// Removed between list and get.
				continue
			}
			return nil, err
		}
		if o.Key() == key || (o.Tradeable.AltKey() != "" && o.Tradeable.AltKey() == key) {
			out = append(out, o)
		}
	}
	return out, nil
}

// ActiveOrdersWithKey is OrdersWithKey restricted to active orders.
func (s *Stack) ActiveOrdersWithKey(ctx context.Context, key string) ([]*order.Order, error) {
	orders, err := s.OrdersWithKey(ctx, key)
	if err != nil {
		return nil, err
	}
	var out []*order.Order
	for _, o := range orders {
		if o.Active {
			out = append(out, o)
		}
	}
	return out, nil
}

// OrdersWithParent returns the ids of orders one level below the given
// parent in the decomposition hierarchy.
func (s *Stack) OrdersWithParent(ctx context.Context, parentID int) ([]int, error) {
	orderIDs, err := s.store.ListOrderIDs(ctx)
	if err != nil {
		return nil, err
	}
	var out []int
	for _, orderID := range orderIDs {
		o, err := s.store.Get(ctx, orderID)
		if err != nil {
			if errors.Is(err, order.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if o.Parent == parentID {
			out = append(out, orderID)
		}
	}
	return out, nil
}

// LockOrderOnStack sets the cooperative lock flag on a stored order.
func (s *Stack) LockOrderOnStack(ctx context.Context, orderID int) error {
	existing, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	modified := existing.Copy()
	modified.LockOrder()
	return s.changeOrderOnStack(ctx, orderID, modified, false)
}

// UnlockOrderOnStack clears the cooperative lock flag on a stored order.
func (s *Stack) UnlockOrderOnStack(ctx context.Context, orderID int) error {
	existing, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	modified := existing.Copy()
	modified.UnlockOrder()
	return s.changeOrderOnStack(ctx, orderID, modified, false)
}

// DeactivateOrder marks an order inactive: logically deleted, retained for
// audit until physically removed.
func (s *Stack) DeactivateOrder(ctx context.Context, orderID int) error {
	existing, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	modified := existing.Copy()
	modified.Active = false
	return s.changeOrderOnStack(ctx, orderID, modified, false)
}

// RemoveOrderWithIDFromStack physically removes an inactive order. Active
// orders must be deactivated first.
func (s *Stack) RemoveOrderWithIDFromStack(ctx context.Context, orderID int) error {
	existing, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if existing.Active {
		return fmt.Errorf("order %d is still active, deactivate before removing: %w", orderID, order.ErrConflict)
	}
	return s.store.Remove(ctx, orderID)
}

// AddChildrenToOrder links child order ids to a parent order. Fails if the
// parent already has children or a modification in flight.
func (s *Stack) AddChildrenToOrder(ctx context.Context, orderID int, childIDs []int) error {
	existing, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if existing.Children != nil {
		return fmt.Errorf("order %d already has children %v: %w", orderID, existing.Children, order.ErrConflict)
	}
	modified := existing.Copy()
	modified.Children = append([]int(nil), childIDs...)
	return s.changeOrderOnStack(ctx, orderID, modified, true)
}
