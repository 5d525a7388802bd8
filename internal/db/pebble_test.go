package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/order-stack/internal/journal"
	"github.com/amirphl/order-stack/internal/order"
)

func newTestPebble(t *testing.T) *PebbleStorage {
	t.Helper()
	s, err := NewPebble(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPebbleStorageOrders(t *testing.T) {
	ctx := context.Background()

	t.Run("Insert get round trip", func(t *testing.T) {
		s := newTestPebble(t)
		o := testOrder(t, "stratA/EDOLLAR/201903_201906", []int{6, -6})
		price := 99.5
		o.ReferencePrice = &price

		id, err := s.Insert(ctx, o)
		require.NoError(t, err)
		assert.Equal(t, 1, id)

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, got.OrderID)
		assert.Equal(t, o.Key(), got.Key())
		assert.Equal(t, []int{6, -6}, got.Trade)
		assert.Equal(t, 99.5, *got.ReferencePrice)
	})

	t.Run("Ids survive removal without reuse", func(t *testing.T) {
		s := newTestPebble(t)
		id1, err := s.Insert(ctx, testOrder(t, "stratA/EDOLLAR/201903", []int{10}))
		require.NoError(t, err)
		require.NoError(t, s.Remove(ctx, id1))

		id2, err := s.Insert(ctx, testOrder(t, "stratA/EDOLLAR/201906", []int{5}))
		require.NoError(t, err)
		assert.Greater(t, id2, id1)

		ids, err := s.ListOrderIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int{id2}, ids)
	})

	t.Run("Missing ids", func(t *testing.T) {
		s := newTestPebble(t)
		_, err := s.Get(ctx, 99)
		assert.ErrorIs(t, err, order.ErrNotFound)
		assert.ErrorIs(t, s.Remove(ctx, 99), order.ErrNotFound)
	})

	t.Run("CompareAndSet honors the predicate", func(t *testing.T) {
		s := newTestPebble(t)
		id, err := s.Insert(ctx, testOrder(t, "stratA/EDOLLAR/201903", []int{10}))
		require.NoError(t, err)

		err = s.CompareAndSet(ctx, id, func(*order.Order) bool { return false },
			testOrder(t, "stratA/EDOLLAR/201903", []int{5}))
		assert.ErrorIs(t, err, order.ErrConflict)

		updated := testOrder(t, "stratA/EDOLLAR/201903", []int{10})
		updated.Locked = true
		require.NoError(t, s.CompareAndSet(ctx, id, nil, updated))

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.Locked)
	})
}

func TestPebbleStorageJournal(t *testing.T) {
	ctx := context.Background()
	s := newTestPebble(t)
	now := time.Now().UTC()

	require.NoError(t, s.LogEvent(ctx, journal.Event{
		Time: now, Type: journal.EventOrder, Description: "order_put_on_stack",
	}))
	require.NoError(t, s.LogEvent(ctx, journal.Event{
		Time: now, Type: journal.EventFill, Description: "fill_recorded",
	}))

	events, err := s.GetEvents(ctx, journal.EventFill, now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "fill_recorded", events[0].Description)
}
