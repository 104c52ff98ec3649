package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersPlacedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_orders_placed_total",
		Help: "Total number of orders accepted at checkout.",
	},
		[]string{"mode"},
	)

	StatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_status_transitions_total",
		Help: "Total number of applied order status transitions.",
	},
		[]string{"from", "to"},
	)

	RejectedTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_rejected_transitions_total",
		Help: "Transitions refused before or during the conditional write.",
	},
		[]string{"reason"},
	)

	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_claims_total",
		Help: "Courier claim attempts by outcome.",
	},
		[]string{"outcome"},
	)

	ChangeEventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_change_events_published_total",
		Help: "Change events handed to the change feed.",
	},
		[]string{"table", "result"},
	)

	SyncRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_sync_refreshes_total",
		Help: "Client snapshot refreshes by loop and result.",
	},
		[]string{"loop", "result"},
	)

	AlarmsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delivery_alarms_started_total",
		Help: "Times the new-delivery alarm started ringing.",
	})

	OperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_operation_errors_total",
		Help: "Total number of errors encountered during specific operations.",
	},
		[]string{"operation"},
	)
)
