package order

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustOrder(t *testing.T, key string, trade []int) *Order {
	t.Helper()
	o, err := NewFromKey(key, trade)
	require.NoError(t, err)
	return o
}

func TestNewOrder(t *testing.T) {
	t.Run("Fill starts as zero vector of trade length", func(t *testing.T) {
		o := mustOrder(t, "stratA/EDOLLAR/201903_201906", []int{6, -6})
		assert.Equal(t, []int{0, 0}, o.Fill)
		assert.Len(t, o.Fill, len(o.Trade))
		assert.True(t, o.Active)
		assert.False(t, o.HasOrderID())
		assert.False(t, o.HasParent())
		assert.Equal(t, NoModification, o.ModificationStatus)
	})

	t.Run("Trade length must match legs", func(t *testing.T) {
		_, err := NewFromKey("stratA/EDOLLAR/201903", []int{6, -6})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("Two legs imply calendar spread", func(t *testing.T) {
		spread := mustOrder(t, "stratA/EDOLLAR/201903_201906", []int{6, -6})
		assert.True(t, spread.IsCalendarSpread())

		outright := mustOrder(t, "stratA/EDOLLAR/201903", []int{6})
		assert.False(t, outright.IsCalendarSpread())
	})
}

func TestOrderPredicates(t *testing.T) {
	t.Run("FillLessThanOrEqualToDesiredTrade", func(t *testing.T) {
		o := mustOrder(t, "stratA/EDOLLAR/201903_201906", []int{6, 4})
		assert.True(t, o.FillLessThanOrEqualToDesiredTrade([]int{6, 4}))
		assert.True(t, o.FillLessThanOrEqualToDesiredTrade([]int{3, 0}))
		assert.False(t, o.FillLessThanOrEqualToDesiredTrade([]int{7, 0}))
		assert.False(t, o.FillLessThanOrEqualToDesiredTrade([]int{6}))
	})

	t.Run("Comparison is elementwise numeric for signed legs", func(t *testing.T) {
		// A short leg of -6 makes any partial fill above -6 "within" the
		// trade under plain numeric comparison. Directional semantics are
		// deliberately not inferred here.
		o := mustOrder(t, "stratA/EDOLLAR/201903_201906", []int{6, -6})
		assert.True(t, o.FillLessThanOrEqualToDesiredTrade([]int{3, -6}))
		assert.False(t, o.FillLessThanOrEqualToDesiredTrade([]int{3, -3}))
	})

	t.Run("FillEqualsZero and FillEqualsDesiredTrade", func(t *testing.T) {
		o := mustOrder(t, "stratA/EDOLLAR/201903", []int{10})
		assert.True(t, o.FillEqualsZero())
		assert.False(t, o.FillEqualsDesiredTrade())

		o.Fill = []int{10}
		assert.False(t, o.FillEqualsZero())
		assert.True(t, o.FillEqualsDesiredTrade())

		o.Fill = []int{9}
		assert.False(t, o.FillEqualsDesiredTrade())
	})

	t.Run("IsZeroTrade", func(t *testing.T) {
		assert.True(t, mustOrder(t, "s/i/201903_201906", []int{0, 0}).IsZeroTrade())
		assert.False(t, mustOrder(t, "s/i/201903_201906", []int{0, 1}).IsZeroTrade())
	})

	t.Run("NewQtyLessThanFill", func(t *testing.T) {
		o := mustOrder(t, "stratA/EDOLLAR/201903", []int{10})
		o.Fill = []int{4}
		assert.True(t, o.NewQtyLessThanFill([]int{3}))
		assert.False(t, o.NewQtyLessThanFill([]int{4}))
		assert.False(t, o.NewQtyLessThanFill([]int{7}))
	})

	t.Run("SameTradeSize", func(t *testing.T) {
		a := mustOrder(t, "stratA/EDOLLAR/201903", []int{10})
		b := mustOrder(t, "stratA/EDOLLAR/201903", []int{10})
		c := mustOrder(t, "stratA/EDOLLAR/201903", []int{5})
		assert.True(t, a.SameTradeSize(b))
		assert.False(t, a.SameTradeSize(c))
	})

	t.Run("FillEqualsModificationQuantity", func(t *testing.T) {
		o := mustOrder(t, "stratA/EDOLLAR/201903", []int{10})
		assert.False(t, o.FillEqualsModificationQuantity())

		o.ModificationQuantity = []int{4}
		o.Fill = []int{3}
		assert.False(t, o.FillEqualsModificationQuantity())

		o.Fill = []int{4}
		assert.True(t, o.FillEqualsModificationQuantity())
	})
}

func TestAlgoControl(t *testing.T) {
	t.Run("Double control rejected without overwriting", func(t *testing.T) {
		o := mustOrder(t, "stratA/EDOLLAR/201903", []int{10})
		require.NoError(t, o.AddControllingAlgoRef("algo-1"))
		assert.True(t, o.IsOrderControlledByAlgo())

		err := o.AddControllingAlgoRef("algo-2")
		assert.ErrorIs(t, err, ErrAlreadyControlled)
		assert.Equal(t, "algo-1", o.ReferenceOfControllingAlgo)
	})

	t.Run("Release is idempotent", func(t *testing.T) {
		o := mustOrder(t, "stratA/EDOLLAR/201903", []int{10})
		o.ReleaseOrderFromAlgoControl()
		assert.False(t, o.IsOrderControlledByAlgo())

		require.NoError(t, o.AddControllingAlgoRef("algo-1"))
		o.ReleaseOrderFromAlgoControl()
		o.ReleaseOrderFromAlgoControl()
		assert.False(t, o.IsOrderControlledByAlgo())
	})
}

func TestOrderCopy(t *testing.T) {
	o := mustOrder(t, "stratA/EDOLLAR/201903_201906", []int{6, -6})
	price := 99.5
	now := time.Now().UTC()
	o.FilledPrice = &price
	o.FillDatetime = &now
	o.Children = []int{7, 8}
	o.ModificationQuantity = []int{3, -3}

	c := o.Copy()
	c.Trade[0] = 100
	c.Fill[1] = 100
	c.Children[0] = 100
	c.ModificationQuantity[0] = 100
	*c.FilledPrice = 1.0

	assert.Equal(t, []int{6, -6}, o.Trade)
	assert.Equal(t, []int{0, 0}, o.Fill)
	assert.Equal(t, []int{7, 8}, o.Children)
	assert.Equal(t, []int{3, -3}, o.ModificationQuantity)
	assert.Equal(t, 99.5, *o.FilledPrice)
}

func TestOrderSerialization(t *testing.T) {
	t.Run("Fresh order round trips with explicit nulls", func(t *testing.T) {
		o := mustOrder(t, "stratA/EDOLLAR/201903_201906", []int{6, -6})

		data, err := json.Marshal(o)
		require.NoError(t, err)

		var wire map[string]any
		require.NoError(t, json.Unmarshal(data, &wire))
		assert.Nil(t, wire["order_id"])
		assert.Nil(t, wire["parent"])
		assert.Nil(t, wire["children"])
		assert.Nil(t, wire["filled_price"])
		assert.Nil(t, wire["fill_datetime"])
		assert.Nil(t, wire["modification_quantity"])
		assert.Nil(t, wire["reference_of_controlling_algo"])
		assert.Equal(t, true, wire["calendar_spread_order"])

		var back Order
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, o.Key(), back.Key())
		assert.Equal(t, o.Trade, back.Trade)
		assert.Equal(t, o.Fill, back.Fill)
		assert.Equal(t, NoOrderID, back.OrderID)
		assert.Equal(t, NoParent, back.Parent)
		assert.Nil(t, back.Children)
		assert.Equal(t, NoModification, back.ModificationStatus)
		assert.False(t, back.IsOrderControlledByAlgo())
	})

	t.Run("Populated order round trips", func(t *testing.T) {
		o := mustOrder(t, "stratA/EDOLLAR/201903", []int{10})
		o.OrderID = 42
		o.Parent = 7
		o.Children = []int{43, 44}
		o.Fill = []int{4}
		price := 101.25
		o.FilledPrice = &price
		ts := time.Date(2024, 3, 1, 15, 4, 5, 0, time.UTC)
		o.FillDatetime = &ts
		o.Locked = true
		o.ModificationStatus = ModificationRequested
		o.ModificationQuantity = []int{8}
		o.ManualFill = true
		require.NoError(t, o.AddControllingAlgoRef("algo-1"))

		data, err := json.Marshal(o)
		require.NoError(t, err)
		var back Order
		require.NoError(t, json.Unmarshal(data, &back))

		assert.Equal(t, 42, back.OrderID)
		assert.Equal(t, 7, back.Parent)
		assert.Equal(t, []int{43, 44}, back.Children)
		assert.Equal(t, []int{4}, back.Fill)
		assert.Equal(t, 101.25, *back.FilledPrice)
		assert.True(t, ts.Equal(*back.FillDatetime))
		assert.True(t, back.Locked)
		assert.Equal(t, ModificationRequested, back.ModificationStatus)
		assert.Equal(t, []int{8}, back.ModificationQuantity)
		assert.True(t, back.ManualFill)
		assert.Equal(t, "algo-1", back.ReferenceOfControllingAlgo)
		assert.False(t, back.IsCalendarSpread())
	})
}
