package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StockReservedUnits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pharmacy_stock_reserved_units_total",
		Help: "Base units reserved through the stock ledger.",
	})

	StockReleasedUnits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pharmacy_stock_released_units_total",
		Help: "Base units released back to available stock.",
	})

	StockDeductedUnits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pharmacy_stock_deducted_units_total",
		Help: "Base units permanently deducted on order confirmation.",
	})

	LedgerConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pharmacy_ledger_cas_conflicts_total",
		Help: "Compare-and-set conflicts retried by the stock ledger.",
	})

	SessionsReconciledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pharmacy_sessions_reconciled_total",
		Help: "Expired reservation sessions whose stock was returned by the sweeper.",
	})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pharmacy_orders_created_total",
		Help: "Total number of orders successfully created.",
	})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pharmacy_order_transitions_total",
		Help: "Order status transitions by target status.",
	},
		[]string{"status"},
	)

	RevenueRecordedCents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pharmacy_revenue_recorded_cents_total",
		Help: "Gross revenue recognised on delivery, in cents.",
	})

	OperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pharmacy_operation_errors_total",
		Help: "Total number of errors encountered during specific operations.",
	},
		[]string{"operation"},
	)
)
