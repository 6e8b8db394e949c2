//go:generate mockgen -source ./server.go -destination=./mocks/server.go -package=mock_server
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/backend"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/cache"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/lifecycle"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/model"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/progress"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/stream"
)

type OrderStore interface {
	Get(orderID string) (model.Order, bool)
	List() []model.Order
	Len() int
}

// SnapshotLoader reports and retries the bulk orders load.
type SnapshotLoader interface {
	SnapshotErr() error
	LoadInitialData(ctx context.Context) (cache.SnapshotResult, error)
}

type ProgressSource interface {
	Current(orderID string) (progress.View, error)
}

type StateSource interface {
	Snapshot() (model.SystemState, error)
	Retry(ctx context.Context) error
}

type Liveness interface {
	State() stream.State
}

type Deps struct {
	Orders   OrderStore
	Snapshot SnapshotLoader
	Backend  backend.API
	Progress ProgressSource
	State    StateSource
	Liveness Liveness
}

type Server struct {
	orders   OrderStore
	snapshot SnapshotLoader
	backend  backend.API
	progress ProgressSource
	state    StateSource
	liveness Liveness
	logger   *zap.Logger

	mu           sync.Mutex
	server       *http.Server
	closed       bool
	AuditManager *AuditManager
}

func New(deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")
	return &Server{
		orders:       deps.Orders,
		snapshot:     deps.Snapshot,
		backend:      deps.Backend,
		progress:     deps.Progress,
		state:        deps.State,
		liveness:     deps.Liveness,
		logger:       logger,
		AuditManager: NewAuditManager(2, 5, 500*time.Millisecond, logger),
	}
}

// Run serves on addr until Shutdown is called. It returns at once when
// Shutdown came first.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.server = srv
	s.mu.Unlock()

	s.AuditManager.Start(ctx)

	s.logger.Info("Server starting", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	s.mu.Lock()
	s.closed = true
	srv := s.server
	s.mu.Unlock()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			return err
		}
	}
	s.logger.Info("HTTP server shutdown completed")

	s.AuditManager.Shutdown(ctx)
	return nil
}

func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.auditLogMiddleware)

	r.HandleFunc("/orders", s.handleListOrders).Methods(http.MethodGet).Name("listOrders")
	r.HandleFunc("/orders", s.handleCreateOrder).Methods(http.MethodPost).Name("createOrder")
	r.HandleFunc("/orders/retry", s.handleRetryOrders).Methods(http.MethodPost).Name("retryOrders")
	r.HandleFunc("/orders/{id}", s.handleGetOrder).Methods(http.MethodGet).Name("getOrder")
	r.HandleFunc("/orders/{id}/progress", s.handleGetProgress).Methods(http.MethodGet).Name("getProgress")
	r.HandleFunc("/orders/{id}/actions", s.handleGetActions).Methods(http.MethodGet).Name("getActions")
	r.HandleFunc("/orders/{id}/supplier-respond", s.handleSupplierRespond).Methods(http.MethodPost).Name("supplierRespond")
	r.HandleFunc("/orders/{id}/customer-accept", s.handleCustomerAccept).Methods(http.MethodPost).Name("customerAccept")
	r.HandleFunc("/orders/{id}/dispatch", s.handleDispatch).Methods(http.MethodPost).Name("dispatch")
	r.HandleFunc("/orders/{id}/status", s.handleUpdateStatus).Methods(http.MethodPost).Name("updateStatus")

	r.HandleFunc("/state", s.handleGetState).Methods(http.MethodGet).Name("getState")
	r.HandleFunc("/state/retry", s.handleRetryState).Methods(http.MethodPost).Name("retryState")

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet).Name("health")
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet).Name("metrics")

	return r
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondBackendError maps a failed relay to the operator. Rejections keep
// the backend's status and detail; anything else is a bad gateway.
func respondBackendError(w http.ResponseWriter, err error) {
	var (
		apiErr        *backend.APIError
		notDispatched *backend.NotDispatchedError
	)
	switch {
	case errors.Is(err, backend.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, backend.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "Error: "+err.Error())
	case errors.As(err, &notDispatched):
		respondError(w, http.StatusConflict, notDispatched.Error())
	case errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError:
		respondError(w, apiErr.StatusCode, apiErr.Detail)
	default:
		respondError(w, http.StatusBadGateway, "Backend unavailable: "+err.Error())
	}
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

type ordersError struct {
	Error  string        `json:"error"`
	Retry  string        `json:"retry"`
	Orders []model.Order `json:"orders"`
}

type ordersReloaded struct {
	cache.SnapshotResult
	Orders []model.Order `json:"orders"`
}

// handleListOrders answers 503 while the last snapshot load failed. The body
// still carries what the stream has delivered so far.
func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	snapErr := s.snapshot.SnapshotErr()
	orders := s.orders.List()

	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := lifecycle.Parse(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid value for 'status' parameter")
			return
		}
		filtered := make([]model.Order, 0, len(orders))
		for _, o := range orders {
			if o.Status == status {
				filtered = append(filtered, o)
			}
		}
		orders = filtered
	}

	if snapErr != nil {
		respondJSON(w, http.StatusServiceUnavailable, ordersError{Error: snapErr.Error(), Retry: "POST /orders/retry", Orders: orders})
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (s *Server) handleRetryOrders(w http.ResponseWriter, r *http.Request) {
	res, err := s.snapshot.LoadInitialData(r.Context())
	if err != nil {
		s.logger.Warn("Orders snapshot retry failed", zap.Error(err))
		respondJSON(w, http.StatusServiceUnavailable, ordersError{Error: err.Error(), Retry: "POST /orders/retry", Orders: s.orders.List()})
		return
	}
	respondJSON(w, http.StatusOK, ordersReloaded{SnapshotResult: res, Orders: s.orders.List()})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]
	order, found := s.orders.Get(orderID)
	if !found {
		respondError(w, http.StatusNotFound, "Error: order not found")
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]
	view, err := s.progress.Current(orderID)
	if err != nil {
		if errors.Is(err, progress.ErrUnknownOrder) {
			respondError(w, http.StatusNotFound, "Error: order not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Error: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, view)
}

type actionsResponse struct {
	OrderID      string             `json:"order_id"`
	Status       lifecycle.Status   `json:"status"`
	Label        string             `json:"label"`
	Terminal     bool               `json:"terminal"`
	ActionableBy []lifecycle.Role   `json:"actionable_by"`
	Next         []lifecycle.Status `json:"next"`
}

func (s *Server) handleGetActions(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]
	order, found := s.orders.Get(orderID)
	if !found {
		respondError(w, http.StatusNotFound, "Error: order not found")
		return
	}

	next := lifecycle.Next(order.Status)
	if next == nil {
		next = []lifecycle.Status{}
	}
	respondJSON(w, http.StatusOK, actionsResponse{
		OrderID:      order.ID,
		Status:       order.Status,
		Label:        lifecycle.Label(order.Status),
		Terminal:     lifecycle.IsTerminal(order.Status),
		ActionableBy: lifecycle.ActionableBy(order.Status),
		Next:         next,
	})
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req backend.NewOrder
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ev, err := s.backend.CreateOrder(r.Context(), req)
	if err != nil {
		respondBackendError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleSupplierRespond(w http.ResponseWriter, r *http.Request) {
	var req backend.SupplierResponse
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ev, err := s.backend.SupplierRespond(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		respondBackendError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ev)
}

func (s *Server) handleCustomerAccept(w http.ResponseWriter, r *http.Request) {
	var req backend.CustomerAcceptance
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ev, err := s.backend.CustomerAccept(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		respondBackendError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ev)
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DriverName string `json:"driver_name"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ev, err := s.backend.Dispatch(r.Context(), mux.Vars(r)["id"], req.DriverName)
	if err != nil {
		respondBackendError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ev)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	status, err := lifecycle.Parse(req.Status)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Error: "+err.Error())
		return
	}

	ev, err := s.backend.UpdateStatus(r.Context(), mux.Vars(r)["id"], status)
	if err != nil {
		respondBackendError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ev)
}

type stateError struct {
	Error     string             `json:"error"`
	Retry     string             `json:"retry"`
	LastState *model.SystemState `json:"last_state,omitempty"`
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	state, err := s.state.Snapshot()
	if err != nil {
		resp := stateError{Error: err.Error(), Retry: "POST /state/retry"}
		if !state.LastUpdated.IsZero() || state.OrdersByStatus != nil {
			resp.LastState = &state
		}
		respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleRetryState(w http.ResponseWriter, r *http.Request) {
	if err := s.state.Retry(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, stateError{Error: err.Error(), Retry: "POST /state/retry"})
		return
	}
	s.handleGetState(w, r)
}

type healthResponse struct {
	Connected   bool         `json:"connected"`
	StreamState stream.State `json:"stream_state"`
	Orders      int          `json:"orders"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.liveness.State()
	respondJSON(w, http.StatusOK, healthResponse{
		Connected:   state == stream.StateOpen,
		StreamState: state,
		Orders:      s.orders.Len(),
	})
}
