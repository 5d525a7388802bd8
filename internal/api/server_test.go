package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amirphl/order-stack/internal/db"
	"github.com/amirphl/order-stack/internal/stack"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	storage := db.NewMemory()
	st := stack.New(storage, storage, zap.NewNop())
	return NewServer(st, nil, zap.NewNop())
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func submitOne(t *testing.T, handler http.Handler, key string, trade []int) int {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/orders", SubmitOrdersRequest{
		Orders: []SubmitOrder{{Key: key, Trade: trade}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp SubmitOrdersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.OrderIDs, 1)
	return resp.OrderIDs[0]
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestServer(t).Handler()
	rec := doJSON(t, handler, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSubmitOrders(t *testing.T) {
	t.Run("Batch returns allocated ids", func(t *testing.T) {
		handler := newTestServer(t).Handler()
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/orders", SubmitOrdersRequest{
			Orders: []SubmitOrder{
				{Key: "stratA/EDOLLAR/201903", Trade: []int{6}},
				{Key: "stratA/EDOLLAR/201906", Trade: []int{-6}},
			},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp SubmitOrdersResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, []int{1, 2}, resp.OrderIDs)
	})

	t.Run("Duplicate in batch rejects the whole batch", func(t *testing.T) {
		handler := newTestServer(t).Handler()
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/orders", SubmitOrdersRequest{
			Orders: []SubmitOrder{
				{Key: "stratA/EDOLLAR/201903", Trade: []int{6}},
				{Key: "stratA/EDOLLAR/201903", Trade: []int{6}},
			},
		})
		assert.Equal(t, http.StatusConflict, rec.Code)

		// Nothing from the failed batch is visible afterwards.
		rec = doJSON(t, handler, http.MethodGet, "/api/v1/orders", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("Malformed key rejected", func(t *testing.T) {
		handler := newTestServer(t).Handler()
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/orders", SubmitOrdersRequest{
			Orders: []SubmitOrder{{Key: "not-a-key", Trade: []int{1}}},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Malformed body rejected", func(t *testing.T) {
		handler := newTestServer(t).Handler()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetOrder(t *testing.T) {
	handler := newTestServer(t).Handler()
	id := submitOne(t, handler, "stratA/EDOLLAR/201903", []int{10})

	t.Run("Found", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/v1/orders/1", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "stratA/EDOLLAR/201903", body["key"])
		assert.Equal(t, float64(id), body["order_id"])
		assert.Nil(t, body["filled_price"], "unfilled order carries a null price")
	})

	t.Run("Missing id is a 404", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/v1/orders/99", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Non-numeric id is a 400", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/v1/orders/abc", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestManualFillEndpoint(t *testing.T) {
	handler := newTestServer(t).Handler()
	submitOne(t, handler, "stratA/EDOLLAR/201903", []int{10})

	price := 99.5
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/orders/1/fill", ManualFillRequest{
		Fill: []int{3}, FilledPrice: &price,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders/1/fill", ManualFillRequest{
		Fill: []int{4}, FilledPrice: &price,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []any{float64(7)}, body["fill"])
	assert.Equal(t, true, body["manual_fill"])

	// Overfill is rejected and leaves the order untouched.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders/1/fill", ManualFillRequest{
		Fill: []int{5}, FilledPrice: &price,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/orders/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []any{float64(7)}, body["fill"])
}

func TestControlEndpoints(t *testing.T) {
	handler := newTestServer(t).Handler()
	submitOne(t, handler, "stratA/EDOLLAR/201903", []int{10})

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/orders/1/control", ControlRequest{AlgoRef: "algo-1"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Second claim conflicts.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders/1/control", ControlRequest{AlgoRef: "algo-2"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Empty reference is a client error, not a release.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders/1/control", ControlRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/orders/1/control", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Release is idempotent.
	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/orders/1/control", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders/99/control", ControlRequest{AlgoRef: "algo-1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
