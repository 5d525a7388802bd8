package order

import (
	"fmt"
	"time"
)

// NoOrderID is the id of an order not yet placed on a stack. Stack-assigned
// ids start at 1 and are never reused.
const NoOrderID = 0

// NoParent marks an order with no parent in the decomposition hierarchy.
const NoParent = 0

// ModificationStatus tracks an in-flight quantity-change workflow.
type ModificationStatus string

const (
	// NoModification means no quantity change is in flight.
	NoModification ModificationStatus = "no_modification"
	// ModificationRequested means a new quantity has been proposed.
	ModificationRequested ModificationStatus = "requested"
	// ModificationOnStack means the proposed change has been passed
	// downstream and is awaiting fills.
	ModificationOnStack ModificationStatus = "on_stack"
	// ModificationCompleted means fills have fully satisfied the proposed
	// quantity; the new trade vector can be applied.
	ModificationCompleted ModificationStatus = "completed"
	// ModificationFailed means the change was rejected downstream.
	ModificationFailed ModificationStatus = "failed"
)

// Order is a requested trade against a tradeable identity. Orders are value
// objects from the stack's point of view: read a copy, mutate the copy,
// write it back. Never mutate an order shared with the stack in place.
type Order struct {
	Tradeable TradeableObject

	// Trade is the desired quantity, one signed entry per contract leg.
	Trade []int
	// Fill is the quantity done so far, same length as Trade.
	Fill []int

	// FilledPrice and FillDatetime are set together on the first fill and
	// stay nil until then.
	FilledPrice  *float64
	FillDatetime *time.Time

	LimitPrice     *float64
	ReferencePrice *float64

	// Locked rejects structural mutation (quantity changes) while true.
	// It is a cooperative flag enforced by the stack, not a mutex.
	Locked bool

	// OrderID is assigned by the stack on insertion; NoOrderID before.
	OrderID int

	ModificationStatus ModificationStatus
	// ModificationQuantity is the proposed post-modification trade vector,
	// nil while no modification is pending.
	ModificationQuantity []int

	// Parent is the order one level up the decomposition hierarchy,
	// NoParent if none. Children are the ids one level down.
	Parent   int
	Children []int

	// Active is false once the order is filled, cancelled or rolled back.
	// Inactive orders are logically deleted but may stay on the stack for
	// audit until physically removed.
	Active bool

	AlgoToUse string
	// ReferenceOfControllingAlgo identifies the sole execution algo
	// currently allowed to act on this order; "" means uncontrolled.
	ReferenceOfControllingAlgo string

	ManualTrade      bool
	ManualFill       bool
	RollOrder        bool
	InterSpreadOrder bool

	GeneratedDatetime time.Time
}

// New builds an order for a tradeable identity. The trade vector must have
// one entry per contract leg. Fill starts as the zero vector.
func New(tradeable TradeableObject, trade []int) (*Order, error) {
	if len(trade) != len(tradeable.contractLegs) {
		return nil, fmt.Errorf("order %s has %d trade legs for %d contract legs: %w",
			tradeable.Key(), len(trade), len(tradeable.contractLegs), ErrValidation)
	}
	tradeCopy := make([]int, len(trade))
	copy(tradeCopy, trade)
	return &Order{
		Tradeable:          tradeable,
		Trade:              tradeCopy,
		Fill:               make([]int, len(trade)),
		OrderID:            NoOrderID,
		ModificationStatus: NoModification,
		Parent:             NoParent,
		Active:             true,
		GeneratedDatetime:  time.Now().UTC(),
	}, nil
}

// NewFromKey is New with the identity given as a "strategy/instrument/legs"
// key string.
func NewFromKey(key string, trade []int) (*Order, error) {
	tradeable, err := TradeableObjectFromKey(key)
	if err != nil {
		return nil, err
	}
	return New(tradeable, trade)
}

// Key is the canonical key of the order's tradeable identity.
func (o *Order) Key() string { return o.Tradeable.Key() }

// IsCalendarSpread is true iff the order spans more than one contract leg.
// The flag is derived from the trade vector and cannot be set independently.
func (o *Order) IsCalendarSpread() bool { return len(o.Trade) > 1 }

// HasOrderID reports whether the order has been placed on a stack.
func (o *Order) HasOrderID() bool { return o.OrderID != NoOrderID }

// HasParent reports whether the order sits below another in the hierarchy.
func (o *Order) HasParent() bool { return o.Parent != NoParent }

// Copy returns a deep copy. The stack operates copy-on-write: every
// read-modify-write cycle goes through here.
func (o *Order) Copy() *Order {
	c := *o
	c.Trade = append([]int(nil), o.Trade...)
	c.Fill = append([]int(nil), o.Fill...)
	if o.ModificationQuantity != nil {
		c.ModificationQuantity = append([]int(nil), o.ModificationQuantity...)
	}
	if o.Children != nil {
		c.Children = append([]int(nil), o.Children...)
	}
	if o.FilledPrice != nil {
		p := *o.FilledPrice
		c.FilledPrice = &p
	}
	if o.FillDatetime != nil {
		d := *o.FillDatetime
		c.FillDatetime = &d
	}
	if o.LimitPrice != nil {
		p := *o.LimitPrice
		c.LimitPrice = &p
	}
	if o.ReferencePrice != nil {
		p := *o.ReferencePrice
		c.ReferencePrice = &p
	}
	return &c
}

// LockOrder sets the cooperative lock flag.
func (o *Order) LockOrder() { o.Locked = true }

// UnlockOrder clears the cooperative lock flag.
func (o *Order) UnlockOrder() { o.Locked = false }

// FillLessThanOrEqualToDesiredTrade is true iff every leg of the proposed
// fill is <= the corresponding trade leg. Comparison is elementwise numeric;
// the vectors must be the same length (a mismatch returns false).
func (o *Order) FillLessThanOrEqualToDesiredTrade(proposedFill []int) bool {
	if len(proposedFill) != len(o.Trade) {
		return false
	}
	for i, fill := range proposedFill {
		if fill > o.Trade[i] {
			return false
		}
	}
	return true
}

// FillEqualsZero is true iff no quantity has been filled on any leg.
func (o *Order) FillEqualsZero() bool {
	for _, fill := range o.Fill {
		if fill != 0 {
			return false
		}
	}
	return true
}

// FillEqualsDesiredTrade is true iff every leg is completely filled.
func (o *Order) FillEqualsDesiredTrade() bool {
	for i, fill := range o.Fill {
		if fill != o.Trade[i] {
			return false
		}
	}
	return true
}

// IsZeroTrade is true iff the desired trade is zero on every leg.
func (o *Order) IsZeroTrade() bool {
	for _, qty := range o.Trade {
		if qty != 0 {
			return false
		}
	}
	return true
}

// NewQtyLessThanFill is true if any leg of a proposed new quantity is
// strictly less than the fill already recorded for that leg. Used to reject
// modifications that would contradict executed fills.
func (o *Order) NewQtyLessThanFill(newQty []int) bool {
	for i, qty := range newQty {
		if i >= len(o.Fill) {
			break
		}
		if qty < o.Fill[i] {
			return true
		}
	}
	return false
}

// SameTradeSize is true iff both orders want the same trade vector,
// elementwise. Used to detect duplicate submissions.
func (o *Order) SameTradeSize(other *Order) bool {
	if len(o.Trade) != len(other.Trade) {
		return false
	}
	for i, qty := range o.Trade {
		if qty != other.Trade[i] {
			return false
		}
	}
	return true
}

// FillEqualsModificationQuantity is false while no modification is pending,
// otherwise true iff fills have fully satisfied the proposed new quantity.
func (o *Order) FillEqualsModificationQuantity() bool {
	if o.ModificationQuantity == nil {
		return false
	}
	if len(o.ModificationQuantity) != len(o.Fill) {
		return false
	}
	for i, qty := range o.ModificationQuantity {
		if qty != o.Fill[i] {
			return false
		}
	}
	return true
}

// IsBeingModified reports whether a quantity-change workflow is in flight.
func (o *Order) IsBeingModified() bool {
	return o.ModificationStatus != NoModification && o.ModificationStatus != ""
}

// IsOrderControlledByAlgo reports whether an execution algo holds control.
func (o *Order) IsOrderControlledByAlgo() bool {
	return o.ReferenceOfControllingAlgo != ""
}

// AddControllingAlgoRef hands exclusive control to an execution algo. Fails
// if another algo already holds control; the existing reference is kept.
// Side effect on the receiver only, the caller persists the change.
func (o *Order) AddControllingAlgoRef(controlAlgoRef string) error {
	if o.IsOrderControlledByAlgo() {
		return fmt.Errorf("order %d already controlled by %s: %w",
			o.OrderID, o.ReferenceOfControllingAlgo, ErrAlreadyControlled)
	}
	o.ReferenceOfControllingAlgo = controlAlgoRef
	return nil
}

// ReleaseOrderFromAlgoControl clears the controlling reference. Idempotent.
func (o *Order) ReleaseOrderFromAlgoControl() {
	o.ReferenceOfControllingAlgo = ""
}

func (o *Order) String() string {
	s := fmt.Sprintf("(ID %d) %s qty %v fill %v", o.OrderID, o.Key(), o.Trade, o.Fill)
	if o.FilledPrice != nil && o.FillDatetime != nil {
		s += fmt.Sprintf(" filled %.2f on %s", *o.FilledPrice, o.FillDatetime.Format(time.RFC3339))
	}
	return s
}
