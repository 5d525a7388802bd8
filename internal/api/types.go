// Package api exposes the operations surface of the order stack: REST
// endpoints for inspection, batch submission, manual fills and algo-control
// handoff, plus a WebSocket feed of journal events.
package api

import "time"

// SubmitOrder is one order of a batch submission.
type SubmitOrder struct {
	Key              string   `json:"key"`
	Trade            []int    `json:"trade"`
	Parent           *int     `json:"parent,omitempty"`
	LimitPrice       *float64 `json:"limit_price,omitempty"`
	ReferencePrice   *float64 `json:"reference_price,omitempty"`
	AlgoToUse        string   `json:"algo_to_use,omitempty"`
	ManualTrade      bool     `json:"manual_trade,omitempty"`
	RollOrder        bool     `json:"roll_order,omitempty"`
	InterSpreadOrder bool     `json:"inter_spread_order,omitempty"`
}

// SubmitOrdersRequest submits a batch with all-or-nothing semantics.
type SubmitOrdersRequest struct {
	Orders             []SubmitOrder `json:"orders"`
	UnlockWhenFinished *bool         `json:"unlock_when_finished,omitempty"`
}

// SubmitOrdersResponse returns the ids allocated to a committed batch.
type SubmitOrdersResponse struct {
	OrderIDs []int `json:"order_ids"`
}

// ManualFillRequest records an operator-entered fill.
type ManualFillRequest struct {
	Fill         []int      `json:"fill"`
	FilledPrice  *float64   `json:"filled_price,omitempty"`
	FillDatetime *time.Time `json:"fill_datetime,omitempty"`
}

// ControlRequest claims algo control of an order.
type ControlRequest struct {
	AlgoRef string `json:"algo_ref"`
}

// ErrorResponse is the JSON body of every non-2xx reply.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// WSSubscribeRequest subscribes or unsubscribes a WebSocket client.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}
