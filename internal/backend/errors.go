package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrInvalidInput  = errors.New("invalid input")
)

// APIError is a non-2xx answer from the backend. Detail carries the
// backend's explanation and is meant to be shown to the operator.
type APIError struct {
	Operation  string
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: backend responded %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s: backend responded %d: %s", e.Operation, e.StatusCode, e.Detail)
}

func (e *APIError) Is(target error) bool {
	return target == ErrOrderNotFound && e.StatusCode == http.StatusNotFound
}

// NotDispatchedError is returned for delivery info of an order that has no
// driver yet.
type NotDispatchedError struct {
	OrderID string
	Detail  string
}

func (e *NotDispatchedError) Error() string {
	return fmt.Sprintf("order %s has not been dispatched: %s", e.OrderID, e.Detail)
}

// IsRetryable reports whether err is a transport or server-side failure that
// may go away on its own, as opposed to a rejected request.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	var notDispatched *NotDispatchedError
	return !errors.As(err, &notDispatched) && !errors.Is(err, ErrInvalidInput)
}

// detailOf extracts the human readable part of an error body. The backend
// answers {"detail": "..."} but the detail may also be an object.
func detailOf(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(string(body))
	}
	if payload.Error != "" {
		return payload.Error
	}
	if len(payload.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}

	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload.Detail, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(payload.Detail)
}
