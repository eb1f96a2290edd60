package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal tracks custody operations by name and result code
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_operations_total",
			Help: "Total number of custody operations",
		},
		[]string{"operation", "result"},
	)

	// OperationLatency tracks operation latency including storage commit
	OperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "custody_operation_latency_seconds",
			Help:    "Custody operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// TransfersRecorded tracks value recorded to the settlement outbox
	TransfersRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_transfers_recorded_total",
			Help: "Total amount recorded to the settlement outbox",
		},
		[]string{"kind"},
	)

	// IdentityCallsTotal tracks identity registry calls
	IdentityCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_identity_calls_total",
			Help: "Total number of identity registry calls",
		},
		[]string{"method", "result"},
	)

	// CredentialUseOrphaned counts credential uses recorded with the
	// identity service for operations that did not commit
	CredentialUseOrphaned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_credential_use_orphaned_total",
			Help: "Total number of credential uses recorded for rolled back operations",
		},
		[]string{"operation"},
	)

	// EventsEmitted tracks best-effort event delivery
	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_events_emitted_total",
			Help: "Total number of events emitted",
		},
		[]string{"emitter", "result"},
	)

	// RelayCursor tracks the last settled outbox sequence
	RelayCursor = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "custody_relay_cursor",
			Help: "Last transfer sequence delivered to the settlement sink",
		},
	)

	// RelayDelivered tracks transfers delivered by the relay
	RelayDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_relay_delivered_total",
			Help: "Total number of transfers delivered to the settlement sink",
		},
		[]string{"result"},
	)

	// DBConnectionPoolUsage is the percentage of open connections in use
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "custody_db_connection_pool_usage_percent",
			Help: "Database connection pool usage in percent",
		},
	)

	// DBTransactionsTotal tracks storage transaction outcomes
	DBTransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_db_transactions_total",
			Help: "Total number of database transactions",
		},
		[]string{"result"},
	)
)
