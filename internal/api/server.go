package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/amirphl/order-stack/internal/order"
	"github.com/amirphl/order-stack/internal/stack"
)

// Server handles REST API and WebSocket connections
type Server struct {
	stack  *stack.Stack
	router *mux.Router
	hub    *Hub
	log    *zap.Logger
}

// NewServer creates a new API server over the given stack engine. A nil
// hub gets a fresh one; pass a shared hub when the journal broadcaster is
// wired to it.
func NewServer(st *stack.Stack, hub *Hub, log *zap.Logger) *Server {
	if hub == nil {
		hub = NewHub(log)
	}
	s := &Server{
		stack:  st,
		router: mux.NewRouter(),
		hub:    hub,
		log:    log,
	}
	s.setupRoutes()
	return s
}

// Hub returns the WebSocket hub, for wiring the journal broadcaster.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders", s.handleListOrders).Methods("GET")
	api.HandleFunc("/orders", s.handleSubmitOrders).Methods("POST")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/fill", s.handleManualFill).Methods("POST")
	api.HandleFunc("/orders/{id}/control", s.handleAddControl).Methods("POST")
	api.HandleFunc("/orders/{id}/control", s.handleReleaseControl).Methods("DELETE")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the fully wired HTTP handler including CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.router)
}

// Start starts the API server
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	s.log.Info("api server starting", zap.String("addr", addr))
	return http.ListenAndServe(addr, s.Handler())
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ids, err := s.stack.ListOfOrderIDs(ctx)
	if err != nil {
		respondStackError(w, err)
		return
	}
	orders := make([]*order.Order, 0, len(ids))
	for _, id := range ids {
		o, err := s.stack.GetOrder(ctx, id)
		if err != nil {
			if errors.Is(err, order.ErrNotFound) {
				continue
			}
			respondStackError(w, err)
			return
		}
		orders = append(orders, o)
	}
	respondJSON(w, orders)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDFromRequest(w, r)
	if !ok {
		return
	}
	o, err := s.stack.GetOrder(r.Context(), id)
	if err != nil {
		respondStackError(w, err)
		return
	}
	respondJSON(w, o)
}

func (s *Server) handleSubmitOrders(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrdersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	orders := make([]*order.Order, 0, len(req.Orders))
	for _, so := range req.Orders {
		o, err := order.NewFromKey(so.Key, so.Trade)
		if err != nil {
			respondStackError(w, err)
			return
		}
		if so.Parent != nil {
			o.Parent = *so.Parent
		}
		o.LimitPrice = so.LimitPrice
		o.ReferencePrice = so.ReferencePrice
		o.AlgoToUse = so.AlgoToUse
		o.ManualTrade = so.ManualTrade
		o.RollOrder = so.RollOrder
		o.InterSpreadOrder = so.InterSpreadOrder
		orders = append(orders, o)
	}

	unlockWhenFinished := true
	if req.UnlockWhenFinished != nil {
		unlockWhenFinished = *req.UnlockWhenFinished
	}

	ids, err := s.stack.PutListOfOrdersOnStack(r.Context(), orders, unlockWhenFinished)
	if err != nil {
		respondStackError(w, err)
		return
	}
	respondJSON(w, SubmitOrdersResponse{OrderIDs: ids})
}

func (s *Server) handleManualFill(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDFromRequest(w, r)
	if !ok {
		return
	}
	var req ManualFillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := s.stack.ManualFillForOrderID(r.Context(), id, req.Fill, req.FilledPrice, req.FillDatetime); err != nil {
		respondStackError(w, err)
		return
	}
	o, err := s.stack.GetOrder(r.Context(), id)
	if err != nil {
		respondStackError(w, err)
		return
	}
	respondJSON(w, o)
}

func (s *Server) handleAddControl(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDFromRequest(w, r)
	if !ok {
		return
	}
	var req ControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.AlgoRef == "" {
		respondError(w, http.StatusBadRequest, "algo_ref is required", "")
		return
	}
	if err := s.stack.AddControllingAlgoRef(r.Context(), id, req.AlgoRef); err != nil {
		respondStackError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReleaseControl(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDFromRequest(w, r)
	if !ok {
		return
	}
	if err := s.stack.ReleaseOrderFromAlgoControl(r.Context(), id); err != nil {
		respondStackError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(w, r)
}

// ==============================
// Helpers
// ==============================

func orderIDFromRequest(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return 0, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg, Detail: detail})
}

// respondStackError maps domain error kinds to HTTP status codes.
func respondStackError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrNotFound):
		respondError(w, http.StatusNotFound, "order not found", err.Error())
	case errors.Is(err, order.ErrAlreadyControlled), errors.Is(err, order.ErrConflict):
		respondError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, order.ErrValidation), errors.Is(err, order.ErrFillExceedsTrade):
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}
