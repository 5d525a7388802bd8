package db

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/amirphl/order-stack/internal/journal"
	"github.com/amirphl/order-stack/internal/order"
)

// PebbleStorage backs the order stack with an embedded pebble KV store.
// Orders are JSON documents under o:<id>, events under e:<seq>, with the
// id counters under dedicated keys. A single mutex serializes writers so
// insert and compare-and-set stay atomic.
type PebbleStorage struct {
	mu sync.Mutex
	db *pebble.DB
}

// keys: o:<8-byte-id>, e:<8-byte-seq>, seq:orders, seq:events
func kOrder(id int) []byte     { return append([]byte("o:"), encodeID(id)...) }
func kEvent(seq uint64) []byte { return append([]byte("e:"), encodeID(int(seq))...) }
func kOrderSeq() []byte { return []byte("seq:orders") }
func kEventSeq() []byte { return []byte("seq:events") }

func encodeID(id int) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	return buf[:]
}

func NewPebble(path string) (*PebbleStorage, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store at %s: %w", path, err)
	}
	return &PebbleStorage{db: db}, nil
}

// GetDB returns nil for pebble storage (no SQL database)
func (s *PebbleStorage) GetDB() *sql.DB { return nil }

func (s *PebbleStorage) Close() error { return s.db.Close() }

func (s *PebbleStorage) nextSeq(key []byte) (uint64, error) {
	val, closer, err := s.db.Get(key)
	var seq uint64
	switch err {
	case nil:
		seq = binary.BigEndian.Uint64(val)
		closer.Close()
	case pebble.ErrNotFound:
		seq = 0
	default:
		return 0, fmt.Errorf("failed to read sequence: %w", err)
	}
	return seq + 1, nil
}

// -------- Order store --------

func (s *PebbleStorage) Get(ctx context.Context, orderID int) (*order.Order, error) {
	val, closer, err := s.db.Get(kOrder(orderID))
	if err == pebble.ErrNotFound {
		return nil, fmt.Errorf("order %d: %w", orderID, order.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read order %d: %w", orderID, err)
	}
	defer closer.Close()
	return unmarshalOrder(val, orderID)
}

func (s *PebbleStorage) Insert(ctx context.Context, o *order.Order) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.nextSeq(kOrderSeq())
	if err != nil {
		return order.NoOrderID, err
	}
	id := int(seq)

	stored := o.Copy()
	stored.OrderID = id
	doc, err := json.Marshal(stored)
	if err != nil {
		return order.NoOrderID, fmt.Errorf("failed to marshal order %s: %w", o.Key(), err)
	}

	batch := s.db.NewBatch()
	if err := batch.Set(kOrderSeq(), encodeID(id), nil); err != nil {
		return order.NoOrderID, fmt.Errorf("failed to advance order sequence: %w", err)
	}
	if err := batch.Set(kOrder(id), doc, nil); err != nil {
		return order.NoOrderID, fmt.Errorf("failed to store order %d: %w", id, err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return order.NoOrderID, fmt.Errorf("failed to insert order %d: %w", id, err)
	}
	return id, nil
}

func (s *PebbleStorage) Remove(ctx context.Context, orderID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, closer, err := s.db.Get(kOrder(orderID)); err == pebble.ErrNotFound {
		return fmt.Errorf("order %d: %w", orderID, order.ErrNotFound)
	} else if err != nil {
		return fmt.Errorf("failed to read order %d: %w", orderID, err)
	} else {
		closer.Close()
	}
	if err := s.db.Delete(kOrder(orderID), pebble.Sync); err != nil {
		return fmt.Errorf("failed to remove order %d: %w", orderID, err)
	}
	return nil
}

func (s *PebbleStorage) CompareAndSet(ctx context.Context, orderID int, expected func(*order.Order) bool, updated *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	val, closer, err := s.db.Get(kOrder(orderID))
	if err == pebble.ErrNotFound {
		return fmt.Errorf("order %d: %w", orderID, order.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read order %d: %w", orderID, err)
	}
	existing, uerr := unmarshalOrder(val, orderID)
	closer.Close()
	if uerr != nil {
		return uerr
	}
	if expected != nil && !expected(existing) {
		return fmt.Errorf("order %d failed the update precondition: %w", orderID, order.ErrConflict)
	}

	stored := updated.Copy()
	stored.OrderID = orderID
	doc, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal order %d: %w", orderID, err)
	}
	if err := s.db.Set(kOrder(orderID), doc, pebble.Sync); err != nil {
		return fmt.Errorf("failed to update order %d: %w", orderID, err)
	}
	return nil
}

func (s *PebbleStorage) ListOrderIDs(ctx context.Context) ([]int, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("o:"),
		UpperBound: []byte("o;"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	defer iter.Close()

	var ids []int
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) != 10 {
			continue
		}
		ids = append(ids, int(binary.BigEndian.Uint64(key[2:])))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return ids, nil
}

// -------- Journal --------

func (s *PebbleStorage) LogEvent(ctx context.Context, event journal.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.nextSeq(kEventSeq())
	if err != nil {
		return err
	}
	event.Time = event.Time.UTC()
	doc, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.Type, err)
	}

	batch := s.db.NewBatch()
	if err := batch.Set(kEventSeq(), encodeID(int(seq)), nil); err != nil {
		return fmt.Errorf("failed to advance event sequence: %w", err)
	}
	if err := batch.Set(kEvent(seq), doc, nil); err != nil {
		return fmt.Errorf("failed to store event: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to log event %s: %w", event.Type, err)
	}
	return nil
}

func (s *PebbleStorage) GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]journal.Event, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("e:"),
		UpperBound: []byte("e;"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	defer iter.Close()

	start = start.UTC()
	end = end.UTC()
	var out []journal.Event
	for iter.First(); iter.Valid(); iter.Next() {
		var e journal.Event
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		if e.Type != eventType {
			continue
		}
		if (e.Time.Equal(start) || e.Time.After(start)) && e.Time.Before(end) {
			out = append(out, e)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return out, nil
}
