package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	IntentsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_intents_ingested_total",
		Help: "The total number of published intents stored by the solver",
	}, []string{"chain_id", "status"})

	StageResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_stage_results_total",
		Help: "Outcome of every pipeline stage run",
	}, []string{"stage", "result"})

	IntentProcessingTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "solver_intent_processing_seconds",
		Help:    "Time taken to fulfill intents",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // Start at 1s with 10 buckets doubling in size
	}, []string{"chain_id"})

	GasUsed = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "solver_gas_used",
		Help:    "Gas used for fulfilling intents",
		Buckets: prometheus.ExponentialBuckets(21000, 2, 10), // Start at 21000 with 10 buckets doubling in size
	}, []string{"chain_id"})

	GasPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "solver_gas_price_gwei",
		Help: "Current gas price in gwei",
	}, []string{"chain_id"})

	PendingIntents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "solver_pending_intents",
		Help: "The number of intents waiting for fulfillment",
	})

	FulfillmentErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_errors_total",
		Help: "Total number of errors by type",
	}, []string{"chain_id", "error_type"})

	PermanentErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_permanent_errors_total",
		Help: "Total number of permanent errors that won't be retried",
	}, []string{"chain_id", "error_type"})

	// FulfilledIntents tracks the number of intents successfully fulfilled by chain and path
	FulfilledIntents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_fulfilled_intents_total",
		Help: "The total number of successfully fulfilled intents by chain",
	}, []string{"chain_id", "path"})

	FailedIntents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_failed_intents_total",
		Help: "The total number of failed intent fulfillments by chain",
	}, []string{"chain_id"})

	CrowdLiquidityFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_crowd_liquidity_fallbacks_total",
		Help: "Crowd liquidity attempts that fell back to the solver wallet",
	}, []string{"chain_id"})

	WatcherBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "solver_watcher_block",
		Help: "Last block scanned for portal events",
	}, []string{"chain_id"})

	WithdrawnIntents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_withdrawn_intents_total",
		Help: "Rewards withdrawn for intents fulfilled by the solver",
	}, []string{"chain_id"})

	CircuitBreakerOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "solver_circuit_breaker_open",
		Help: "1 while the circuit breaker of a chain is tripped",
	}, []string{"chain_id"})

	TokenBalance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "solver_token_balance",
		Help: "Solver balance of a target token in base units",
	}, []string{"chain_id", "token"})
)
