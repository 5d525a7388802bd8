package order

import "context"

// Store is the backing-store contract the stack engine requires. Ids are
// assigned by the store on Insert, unique and monotonically increasing,
// never reused. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns a private copy of the stored order, or ErrNotFound.
	Get(ctx context.Context, orderID int) (*Order, error)

	// Insert stores the order under a freshly allocated id and returns it.
	Insert(ctx context.Context, o *Order) (int, error)

	// Remove deletes the order physically, or returns ErrNotFound.
	Remove(ctx context.Context, orderID int) error

	// CompareAndSet replaces the stored order with updated iff expected
	// returns true for the currently stored value. Returns ErrConflict
	// when the predicate rejects, ErrNotFound when the id is absent.
	CompareAndSet(ctx context.Context, orderID int, expected func(*Order) bool, updated *Order) error

	// ListOrderIDs returns every id currently on the stack, ascending.
	ListOrderIDs(ctx context.Context) ([]int, error)
}
