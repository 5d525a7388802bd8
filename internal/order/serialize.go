package order

import (
	"encoding/json"
	"time"
)

// orderJSON is the flat wire form of an Order. Sentinels (no id, no parent,
// no children, no fill yet, no pending modification) are explicit nulls
// rather than magic values.
type orderJSON struct {
	Key                        string     `json:"key"`
	Trade                      []int      `json:"trade"`
	Fill                       []int      `json:"fill"`
	FilledPrice                *float64   `json:"filled_price"`
	FillDatetime               *time.Time `json:"fill_datetime"`
	Locked                     bool       `json:"locked"`
	OrderID                    *int       `json:"order_id"`
	ModificationStatus         string     `json:"modification_status"`
	ModificationQuantity       []int      `json:"modification_quantity"`
	Parent                     *int       `json:"parent"`
	Children                   []int      `json:"children"`
	Active                     bool       `json:"active"`
	AlgoToUse                  string     `json:"algo_to_use"`
	ReferencePrice             *float64   `json:"reference_price"`
	LimitPrice                 *float64   `json:"limit_price"`
	ManualTrade                bool       `json:"manual_trade"`
	ManualFill                 bool       `json:"manual_fill"`
	RollOrder                  bool       `json:"roll_order"`
	CalendarSpreadOrder        bool       `json:"calendar_spread_order"`
	InterSpreadOrder           bool       `json:"inter_spread_order"`
	GeneratedDatetime          time.Time  `json:"generated_datetime"`
	ReferenceOfControllingAlgo *string    `json:"reference_of_controlling_algo"`
}

// MarshalJSON writes the flat wire form.
func (o *Order) MarshalJSON() ([]byte, error) {
	out := orderJSON{
		Key:                  o.Key(),
		Trade:                o.Trade,
		Fill:                 o.Fill,
		FilledPrice:          o.FilledPrice,
		FillDatetime:         o.FillDatetime,
		Locked:               o.Locked,
		ModificationStatus:   string(o.ModificationStatus),
		ModificationQuantity: o.ModificationQuantity,
		Active:               o.Active,
		AlgoToUse:            o.AlgoToUse,
		ReferencePrice:       o.ReferencePrice,
		LimitPrice:           o.LimitPrice,
		ManualTrade:          o.ManualTrade,
		ManualFill:           o.ManualFill,
		RollOrder:            o.RollOrder,
		CalendarSpreadOrder:  o.IsCalendarSpread(),
		InterSpreadOrder:     o.InterSpreadOrder,
		GeneratedDatetime:    o.GeneratedDatetime,
	}
	if o.HasOrderID() {
		id := o.OrderID
		out.OrderID = &id
	}
	if o.HasParent() {
		parent := o.Parent
		out.Parent = &parent
	}
	if o.Children != nil {
		out.Children = o.Children
	}
	if o.IsOrderControlledByAlgo() {
		ref := o.ReferenceOfControllingAlgo
		out.ReferenceOfControllingAlgo = &ref
	}
	return json.Marshal(out)
}

// UnmarshalJSON reconstructs an Order from the flat wire form, mapping
// nulls back to the in-memory sentinels. The calendar-spread flag is
// re-derived from the trade vector, never trusted from the wire.
func (o *Order) UnmarshalJSON(data []byte) error {
	var in orderJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	tradeable, err := TradeableObjectFromKey(in.Key)
	if err != nil {
		return err
	}
	o.Tradeable = tradeable
	o.Trade = in.Trade
	o.Fill = in.Fill
	o.FilledPrice = in.FilledPrice
	o.FillDatetime = in.FillDatetime
	o.Locked = in.Locked
	o.OrderID = NoOrderID
	if in.OrderID != nil {
		o.OrderID = *in.OrderID
	}
	o.ModificationStatus = ModificationStatus(in.ModificationStatus)
	if o.ModificationStatus == "" {
		o.ModificationStatus = NoModification
	}
	o.ModificationQuantity = in.ModificationQuantity
	o.Parent = NoParent
	if in.Parent != nil {
		o.Parent = *in.Parent
	}
	o.Children = in.Children
	o.Active = in.Active
	o.AlgoToUse = in.AlgoToUse
	o.ReferencePrice = in.ReferencePrice
	o.LimitPrice = in.LimitPrice
	o.ManualTrade = in.ManualTrade
	o.ManualFill = in.ManualFill
	o.RollOrder = in.RollOrder
	o.InterSpreadOrder = in.InterSpreadOrder
	o.GeneratedDatetime = in.GeneratedDatetime
	o.ReferenceOfControllingAlgo = ""
	if in.ReferenceOfControllingAlgo != nil {
		o.ReferenceOfControllingAlgo = *in.ReferenceOfControllingAlgo
	}
	return nil
}
