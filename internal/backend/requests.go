package backend

import (
	"fmt"
	"strings"
)

// NewOrder is the supplier-authored payload of a new order.
type NewOrder struct {
	SupplierName          string   `json:"supplier_name"`
	PizzaName             string   `json:"pizza_name"`
	SupplierPrice         float64  `json:"supplier_price"`
	MarkupPercentage      *float64 `json:"markup_percentage,omitempty"`
	EstimatedDeliveryTime *int     `json:"estimated_delivery_time,omitempty"`
	SupplierNotes         *string  `json:"supplier_notes,omitempty"`
}

func (o NewOrder) Validate() error {
	switch {
	case strings.TrimSpace(o.SupplierName) == "":
		return fmt.Errorf("%w: supplier name is required", ErrInvalidInput)
	case strings.TrimSpace(o.PizzaName) == "":
		return fmt.Errorf("%w: pizza name is required", ErrInvalidInput)
	case o.SupplierPrice <= 0:
		return fmt.Errorf("%w: supplier price must be positive", ErrInvalidInput)
	case o.MarkupPercentage != nil && *o.MarkupPercentage < 0:
		return fmt.Errorf("%w: markup percentage must not be negative", ErrInvalidInput)
	case o.EstimatedDeliveryTime != nil && *o.EstimatedDeliveryTime <= 0:
		return fmt.Errorf("%w: estimated delivery time must be positive", ErrInvalidInput)
	}
	return nil
}

type SupplierResponse struct {
	Accept        bool   `json:"accept"`
	Notes         string `json:"notes,omitempty"`
	EstimatedTime *int   `json:"estimated_time,omitempty"`
}

type CustomerAcceptance struct {
	CustomerName    string `json:"customer_name"`
	DeliveryAddress string `json:"delivery_address"`
}

func (a CustomerAcceptance) Validate() error {
	if strings.TrimSpace(a.CustomerName) == "" {
		return fmt.Errorf("%w: customer name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(a.DeliveryAddress) == "" {
		return fmt.Errorf("%w: delivery address is required", ErrInvalidInput)
	}
	return nil
}
