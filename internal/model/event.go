package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/lifecycle"
)

var (
	ErrMissingOrderID   = errors.New("order id is missing")
	ErrMissingTimestamp = errors.New("event timestamp is missing")
)

// OrderEvent wraps one observation of an order pushed by the backend.
type OrderEvent struct {
	EventType string `json:"event_type"`
	Order     Order  `json:"order"`
	Timestamp Time   `json:"timestamp"`
}

// DecodeEvent parses one push message. The order status is filled in from the
// event type when the payload omits it, and the order's updated_at stands in
// for a missing timestamp.
func DecodeEvent(data []byte) (OrderEvent, error) {
	var ev OrderEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return OrderEvent{}, fmt.Errorf("decode order event: %w", err)
	}
	if err := ev.Normalize(); err != nil {
		return OrderEvent{}, err
	}
	return ev, nil
}

func (e *OrderEvent) Normalize() error {
	if e.Order.ID == "" {
		return ErrMissingOrderID
	}
	if e.Order.Status == "" {
		if st, err := lifecycle.StatusFromEventType(e.EventType); err == nil {
			e.Order.Status = st
		}
	}
	if e.EventType == "" && e.Order.Status != "" {
		e.EventType = lifecycle.EventType(e.Order.Status)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = e.Order.ObservedAt()
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("order %s: %w", e.Order.ID, ErrMissingTimestamp)
	}
	return nil
}

// EventFromSnapshot builds the observation a snapshot entry stands for.
func EventFromSnapshot(o Order) OrderEvent {
	return OrderEvent{
		EventType: lifecycle.EventType(o.Status),
		Order:     o,
		Timestamp: o.ObservedAt(),
	}
}
