package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/amirphl/order-stack/internal/journal"
	"github.com/amirphl/order-stack/internal/order"
)

// MemoryStorage keeps the order stack and journal in process memory.
// Reads hand out deep copies so callers can never mutate stored state
// in place.
type MemoryStorage struct {
	mu sync.RWMutex

	// Orders by stack-assigned id
	orders map[int]*order.Order

	// Monotonic id counter, never reused even after removal
	lastOrderID int

	// Events (append-only)
	events []journal.Event
}

func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		orders: make(map[int]*order.Order),
		events: make([]journal.Event, 0, 1024),
	}
}

// GetDB returns nil for in-memory storage (no SQL database)
func (m *MemoryStorage) GetDB() *sql.DB { return nil }

func (m *MemoryStorage) Close() error { return nil }

// -------- Order store --------

func (m *MemoryStorage) Get(ctx context.Context, orderID int) (*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", orderID, order.ErrNotFound)
	}
	return o.Copy(), nil
}

func (m *MemoryStorage) Insert(ctx context.Context, o *order.Order) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastOrderID++
	id := m.lastOrderID
	stored := o.Copy()
	stored.OrderID = id
	m.orders[id] = stored
	return id, nil
}

func (m *MemoryStorage) Remove(ctx context.Context, orderID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[orderID]; !ok {
		return fmt.Errorf("order %d: %w", orderID, order.ErrNotFound)
	}
	delete(m.orders, orderID)
	return nil
}

func (m *MemoryStorage) CompareAndSet(ctx context.Context, orderID int, expected func(*order.Order) bool, updated *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, order.ErrNotFound)
	}
	if expected != nil && !expected(existing.Copy()) {
		return fmt.Errorf("order %d failed the update precondition: %w", orderID, order.ErrConflict)
	}
	stored := updated.Copy()
	stored.OrderID = orderID
	m.orders[orderID] = stored
	return nil
}

func (m *MemoryStorage) ListOrderIDs(ctx context.Context) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int, 0, len(m.orders))
	for id := range m.orders {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// -------- Journal --------

func (m *MemoryStorage) LogEvent(ctx context.Context, event journal.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.Time = event.Time.UTC()
	m.events = append(m.events, event)
	return nil
}

func (m *MemoryStorage) GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]journal.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	start = start.UTC()
	end = end.UTC()
	var out []journal.Event
	for _, e := range m.events {
		if e.Type == eventType && (e.Time.Equal(start) || e.Time.After(start)) && e.Time.Before(end) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}
