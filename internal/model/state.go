package model

import "gitlab.ozon.dev/pupkingeorgij/ordersync/internal/lifecycle"

// DeliveryInfo is the backend's tracking view of one dispatched order.
type DeliveryInfo struct {
	OrderID                 string           `json:"order_id"`
	TrackingID              string           `json:"tracking_id,omitempty"`
	CurrentStatus           lifecycle.Status `json:"current_status"`
	DriverName              string           `json:"driver_name"`
	DeliveryAddress         string           `json:"delivery_address,omitempty"`
	CustomerName            string           `json:"customer_name,omitempty"`
	EstimatedArrival        Time             `json:"estimated_arrival"`
	EstimatedArrivalMinutes *int             `json:"estimated_arrival_minutes,omitempty"`
	ProgressPercentage      int              `json:"progress_percentage,omitempty"`
	Timeline                Timeline         `json:"timeline"`
}

type Statistics struct {
	TotalOrders      int `json:"total_orders"`
	ActiveDeliveries int `json:"active_deliveries"`
	CompletedToday   int `json:"completed_today"`
	PendingSupplier  int `json:"pending_supplier"`
	Preparing        int `json:"preparing"`
	Ready            int `json:"ready"`
	Dispatched       int `json:"dispatched"`
	InTransit        int `json:"in_transit"`
	Delivered        int `json:"delivered"`
}

type ActiveDriver struct {
	DriverName string           `json:"driver_name"`
	OrderID    string           `json:"order_id"`
	Status     lifecycle.Status `json:"status"`
	AssignedAt Time             `json:"assigned_at"`
}

// SystemState is the aggregate served by the backend state endpoint.
type SystemState struct {
	Statistics     Statistics         `json:"statistics"`
	OrdersByStatus map[string][]Order `json:"orders_by_status"`
	ActiveDrivers  []ActiveDriver     `json:"active_drivers"`
	LastUpdated    Time               `json:"last_updated"`
}
