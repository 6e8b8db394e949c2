//go:generate mockgen -source ./client.go -destination=./mocks/client.go -package=mock_backend
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/lifecycle"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/model"
)

const (
	DefaultTimeout = 10 * time.Second

	RequestIDHeader = "X-Request-ID"
)

// API is the marketplace backend as seen by this client.
type API interface {
	ListOrders(ctx context.Context) ([]model.Order, error)
	CreateOrder(ctx context.Context, req NewOrder) (model.OrderEvent, error)
	SupplierRespond(ctx context.Context, orderID string, resp SupplierResponse) (model.OrderEvent, error)
	CustomerAccept(ctx context.Context, orderID string, acc CustomerAcceptance) (model.OrderEvent, error)
	UpdateStatus(ctx context.Context, orderID string, status lifecycle.Status) (model.OrderEvent, error)
	Dispatch(ctx context.Context, orderID, driverName string) (model.OrderEvent, error)
	GetDelivery(ctx context.Context, orderID string) (model.DeliveryInfo, error)
	GetState(ctx context.Context) (model.SystemState, error)
	Health(ctx context.Context) error
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

var _ API = (*Client)(nil)

// NewClient talks to the backend rooted at baseURL, e.g.
// http://localhost:8000/api. Health is served one level above the API root.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("backend")
	return c
}

func (c *Client) ListOrders(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	if err := c.do(ctx, "list_orders", http.MethodGet, "/orders", nil, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *Client) CreateOrder(ctx context.Context, req NewOrder) (model.OrderEvent, error) {
	if err := req.Validate(); err != nil {
		return model.OrderEvent{}, err
	}
	var ev model.OrderEvent
	err := c.do(ctx, "create_order", http.MethodPost, "/orders", nil, req, &ev)
	return ev, err
}

func (c *Client) SupplierRespond(ctx context.Context, orderID string, resp SupplierResponse) (model.OrderEvent, error) {
	q := url.Values{}
	q.Set("accept", strconv.FormatBool(resp.Accept))
	if resp.Notes != "" {
		q.Set("notes", resp.Notes)
	}
	if resp.EstimatedTime != nil {
		q.Set("estimated_time", strconv.Itoa(*resp.EstimatedTime))
	}
	return c.action(ctx, "supplier_respond", orderID, "supplier-respond", q)
}

func (c *Client) CustomerAccept(ctx context.Context, orderID string, acc CustomerAcceptance) (model.OrderEvent, error) {
	if err := acc.Validate(); err != nil {
		return model.OrderEvent{}, err
	}
	q := url.Values{}
	q.Set("customer_name", acc.CustomerName)
	q.Set("delivery_address", acc.DeliveryAddress)
	return c.action(ctx, "customer_accept", orderID, "customer-accept", q)
}

func (c *Client) UpdateStatus(ctx context.Context, orderID string, status lifecycle.Status) (model.OrderEvent, error) {
	if !status.Valid() {
		return model.OrderEvent{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	q := url.Values{}
	q.Set("status", string(status))
	return c.action(ctx, "update_status", orderID, "status", q)
}

func (c *Client) Dispatch(ctx context.Context, orderID, driverName string) (model.OrderEvent, error) {
	if strings.TrimSpace(driverName) == "" {
		return model.OrderEvent{}, fmt.Errorf("%w: driver name is required", ErrInvalidInput)
	}
	q := url.Values{}
	q.Set("driver_name", driverName)
	return c.action(ctx, "dispatch", orderID, "dispatch", q)
}

// GetDelivery returns tracking data of one order. An order that exists but
// has no driver yet yields *NotDispatchedError.
func (c *Client) GetDelivery(ctx context.Context, orderID string) (model.DeliveryInfo, error) {
	var info model.DeliveryInfo
	err := c.do(ctx, "get_delivery", http.MethodGet, "/orders/"+url.PathEscape(orderID)+"/delivery", nil, nil, &info)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
		return info, &NotDispatchedError{OrderID: orderID, Detail: apiErr.Detail}
	}
	return info, err
}

func (c *Client) GetState(ctx context.Context) (model.SystemState, error) {
	var state model.SystemState
	err := c.do(ctx, "get_state", http.MethodGet, "/state", nil, nil, &state)
	return state, err
}

func (c *Client) Health(ctx context.Context) error {
	root := strings.TrimSuffix(c.baseURL, "/api")
	return c.doURL(ctx, "health", http.MethodGet, root+"/health", nil, nil)
}

func (c *Client) action(ctx context.Context, op, orderID, verb string, q url.Values) (model.OrderEvent, error) {
	if strings.TrimSpace(orderID) == "" {
		return model.OrderEvent{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	var ev model.OrderEvent
	err := c.do(ctx, op, http.MethodPost, "/orders/"+url.PathEscape(orderID)+"/"+verb, q, nil, &ev)
	return ev, err
}

func (c *Client) do(ctx context.Context, op, method, path string, q url.Values, body, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return c.doURL(ctx, op, method, u, body, out)
}

func (c *Client) doURL(ctx context.Context, op, method, u string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log := c.logger.With(zap.String("operation", op), zap.String("request_id", requestID))
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.BackendRequestsTotal.WithLabelValues(op, "transport_error").Inc()
		log.Warn("Backend request failed", zap.Error(err))
		return fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.BackendRequestsTotal.WithLabelValues(op, "transport_error").Inc()
		return fmt.Errorf("%s: failed to read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.BackendRequestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()
		apiErr := &APIError{Operation: op, StatusCode: resp.StatusCode, Detail: detailOf(data)}
		log.Info("Backend rejected request", zap.Int("status", resp.StatusCode), zap.String("detail", apiErr.Detail))
		return apiErr
	}

	metrics.BackendRequestsTotal.WithLabelValues(op, "ok").Inc()
	log.Debug("Backend request done", zap.Int("status", resp.StatusCode), zap.Duration("took", time.Since(start)))

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}
