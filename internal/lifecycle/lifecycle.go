package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownStatus = errors.New("unknown order status")

type Status string

const (
	Created          Status = "created"
	PendingSupplier  Status = "pending_supplier"
	SupplierAccepted Status = "supplier_accepted"
	SupplierRejected Status = "supplier_rejected"
	CustomerAccepted Status = "customer_accepted"
	Preparing        Status = "preparing"
	Ready            Status = "ready"
	Dispatched       Status = "dispatched"
	InTransit        Status = "in_transit"
	Delivered        Status = "delivered"
	Cancelled        Status = "cancelled"
)

type Role string

const (
	Supplier   Role = "supplier"
	Customer   Role = "customer"
	Dispatcher Role = "dispatcher"
	Kitchen    Role = "kitchen"
)

const eventTypePrefix = "order."

// All lists every status in forward order, terminal branches included.
var All = []Status{
	Created,
	PendingSupplier,
	SupplierAccepted,
	SupplierRejected,
	CustomerAccepted,
	Preparing,
	Ready,
	Dispatched,
	InTransit,
	Delivered,
	Cancelled,
}

var forward = map[Status][]Status{
	Created:          {PendingSupplier, SupplierAccepted, SupplierRejected},
	PendingSupplier:  {SupplierAccepted, SupplierRejected},
	SupplierAccepted: {CustomerAccepted},
	CustomerAccepted: {Preparing},
	Preparing:        {Ready},
	Ready:            {Dispatched},
	Dispatched:       {InTransit},
	InTransit:        {Delivered},
}

var actors = map[Status][]Role{
	Created:          {Supplier},
	PendingSupplier:  {Supplier},
	SupplierAccepted: {Customer},
	CustomerAccepted: {Kitchen},
	Preparing:        {Kitchen},
	Ready:            {Dispatcher},
	Dispatched:       {Dispatcher},
	InTransit:        {Dispatcher},
}

var labels = map[Status]string{
	Created:          "Created",
	PendingSupplier:  "Pending Supplier",
	SupplierAccepted: "Supplier Accepted",
	SupplierRejected: "Supplier Rejected",
	CustomerAccepted: "Customer Accepted",
	Preparing:        "Preparing",
	Ready:            "Ready for Pickup",
	Dispatched:       "Dispatched",
	InTransit:        "In Transit",
	Delivered:        "Delivered",
	Cancelled:        "Cancelled",
}

func Parse(s string) (Status, error) {
	st := Status(strings.TrimSpace(strings.ToLower(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, ok := labels[s]
	return ok
}

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition can leave s.
func IsTerminal(s Status) bool {
	return s == SupplierRejected || s == Delivered || s == Cancelled
}

// ActionableBy returns the roles allowed to cause the next transition out of s.
// Terminal and unknown statuses have no actors.
func ActionableBy(s Status) []Role {
	roles := actors[s]
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}

// IsActionableBy reports whether role may move an order out of s.
func IsActionableBy(s Status, role Role) bool {
	for _, r := range actors[s] {
		if r == role {
			return true
		}
	}
	return false
}

// Next returns the statuses reachable from s. Cancellation is reachable from
// every non-terminal status.
func Next(s Status) []Status {
	if IsTerminal(s) || !s.Valid() {
		return nil
	}
	next := make([]Status, 0, len(forward[s])+1)
	next = append(next, forward[s]...)
	return append(next, Cancelled)
}

// CanTransition classifies a transition. It is never used to reject
// observations: the backend is authoritative for state changes.
func CanTransition(from, to Status) bool {
	for _, s := range Next(from) {
		if s == to {
			return true
		}
	}
	return false
}

func EventType(s Status) string {
	return eventTypePrefix + string(s)
}

func StatusFromEventType(eventType string) (Status, error) {
	if !strings.HasPrefix(eventType, eventTypePrefix) {
		return "", fmt.Errorf("%w: event type %q", ErrUnknownStatus, eventType)
	}
	return Parse(strings.TrimPrefix(eventType, eventTypePrefix))
}

func Label(s Status) string {
	if l, ok := labels[s]; ok {
		return l
	}
	return string(s)
}

// IsActiveDelivery reports whether a driver is currently carrying the order.
func IsActiveDelivery(s Status) bool {
	return s == Dispatched || s == InTransit
}

// HasDispatched reports whether delivery tracking data exists for s.
func HasDispatched(s Status) bool {
	return s == Dispatched || s == InTransit || s == Delivered
}
