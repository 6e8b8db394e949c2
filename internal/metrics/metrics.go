package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReconciledObservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordersync_reconciled_observations_total",
		Help: "Total number of snapshot entries and stream events reconciled, by source and outcome.",
	},
		[]string{"source", "outcome"},
	)

	StreamMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordersync_stream_messages_total",
		Help: "Total number of push messages received, by result.",
	},
		[]string{"result"},
	)

	StreamReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ordersync_stream_reconnects_total",
		Help: "Total number of scheduled reconnection attempts.",
	})

	StreamConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ordersync_stream_connected",
		Help: "1 while the push connection is open, 0 otherwise.",
	})

	BackendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordersync_backend_requests_total",
		Help: "Total number of backend requests, by operation and outcome.",
	},
		[]string{"operation", "outcome"},
	)

	ChangeFeedPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ordersync_change_feed_published_total",
		Help: "Total number of reconciled changes published to the change feed.",
	})

	OperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordersync_operation_errors_total",
		Help: "Total number of errors encountered during specific operations.",
	},
		[]string{"operation"},
	)

	OrderCacheItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ordersync_order_cache_items",
		Help: "Current number of orders in the canonical collection.",
	})

	TrackedOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ordersync_tracked_orders",
		Help: "Current number of orders under delivery tracking.",
	})
)
