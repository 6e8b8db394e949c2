package model

import (
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/lifecycle"
)

// Order is the client-side record of one marketplace order. Optional fields
// are pointers so that a partial observation can be told apart from one that
// carries an explicit value.
type Order struct {
	ID     string           `json:"id"`
	Status lifecycle.Status `json:"status,omitempty"`

	TrackingID         *string `json:"tracking_id,omitempty"`
	SupplierTrackingID *string `json:"supplier_tracking_id,omitempty"`

	SupplierName          *string  `json:"supplier_name,omitempty"`
	PizzaName             *string  `json:"pizza_name,omitempty"`
	SupplierPrice         *float64 `json:"supplier_price,omitempty"`
	MarkupPercentage      *float64 `json:"markup_percentage,omitempty"`
	SupplierNotes         *string  `json:"supplier_notes,omitempty"`
	EstimatedDeliveryTime *int     `json:"estimated_delivery_time,omitempty"`

	CustomerName    *string  `json:"customer_name,omitempty"`
	DeliveryAddress *string  `json:"delivery_address,omitempty"`
	CustomerPrice   *float64 `json:"customer_price,omitempty"`

	DriverName *string   `json:"driver_name,omitempty"`
	Timeline   *Timeline `json:"timeline,omitempty"`

	CreatedAt Time `json:"created_at"`
	UpdatedAt Time `json:"updated_at"`
}

type Timeline struct {
	DispatchedAt Time `json:"dispatched_at"`
	InTransitAt  Time `json:"in_transit_at"`
	DeliveredAt  Time `json:"delivered_at"`
}

// ObservedAt is the recency key of an order taken from a snapshot.
func (o Order) ObservedAt() Time {
	if !o.UpdatedAt.IsZero() {
		return o.UpdatedAt
	}
	return o.CreatedAt
}

// Merge copies every field obs specifies onto o. Fields obs leaves out are
// kept, so no known value is ever cleared. UpdatedAt never moves backwards.
func (o *Order) Merge(obs Order) {
	if o.ID == "" {
		o.ID = obs.ID
	}
	if obs.Status != "" {
		o.Status = obs.Status
	}

	mergeString(&o.TrackingID, obs.TrackingID)
	mergeString(&o.SupplierTrackingID, obs.SupplierTrackingID)
	mergeString(&o.SupplierName, obs.SupplierName)
	mergeString(&o.PizzaName, obs.PizzaName)
	mergeFloat(&o.SupplierPrice, obs.SupplierPrice)
	mergeFloat(&o.MarkupPercentage, obs.MarkupPercentage)
	mergeString(&o.SupplierNotes, obs.SupplierNotes)
	if obs.EstimatedDeliveryTime != nil {
		v := *obs.EstimatedDeliveryTime
		o.EstimatedDeliveryTime = &v
	}
	mergeString(&o.CustomerName, obs.CustomerName)
	mergeString(&o.DeliveryAddress, obs.DeliveryAddress)
	mergeFloat(&o.CustomerPrice, obs.CustomerPrice)
	mergeString(&o.DriverName, obs.DriverName)

	if obs.Timeline != nil {
		if o.Timeline == nil {
			o.Timeline = &Timeline{}
		}
		o.Timeline.merge(*obs.Timeline)
	}

	if o.CreatedAt.IsZero() {
		o.CreatedAt = obs.CreatedAt
	}
	o.UpdatedAt = Later(o.UpdatedAt, obs.UpdatedAt)
}

func (t *Timeline) merge(obs Timeline) {
	if !obs.DispatchedAt.IsZero() {
		t.DispatchedAt = obs.DispatchedAt
	}
	if !obs.InTransitAt.IsZero() {
		t.InTransitAt = obs.InTransitAt
	}
	if !obs.DeliveredAt.IsZero() {
		t.DeliveredAt = obs.DeliveredAt
	}
}

// Clone returns a deep copy that shares no pointers with o.
func (o Order) Clone() Order {
	c := o
	c.TrackingID = cloneString(o.TrackingID)
	c.SupplierTrackingID = cloneString(o.SupplierTrackingID)
	c.SupplierName = cloneString(o.SupplierName)
	c.PizzaName = cloneString(o.PizzaName)
	c.SupplierPrice = cloneFloat(o.SupplierPrice)
	c.MarkupPercentage = cloneFloat(o.MarkupPercentage)
	c.SupplierNotes = cloneString(o.SupplierNotes)
	if o.EstimatedDeliveryTime != nil {
		v := *o.EstimatedDeliveryTime
		c.EstimatedDeliveryTime = &v
	}
	c.CustomerName = cloneString(o.CustomerName)
	c.DeliveryAddress = cloneString(o.DeliveryAddress)
	c.CustomerPrice = cloneFloat(o.CustomerPrice)
	c.DriverName = cloneString(o.DriverName)
	if o.Timeline != nil {
		tl := *o.Timeline
		c.Timeline = &tl
	}
	return c
}

func mergeString(dst **string, src *string) {
	if src != nil {
		*dst = cloneString(src)
	}
}

func mergeFloat(dst **float64, src *float64) {
	if src != nil {
		*dst = cloneFloat(src)
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Str and Float build optional field values.
func Str(s string) *string { return &s }

func Float(f float64) *float64 { return &f }

func Int(i int) *int { return &i }

// Deref returns the value behind s, or "" when unset.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
