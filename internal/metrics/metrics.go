package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaignrules_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campaignrules_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	// Rule evaluation metrics
	RuleEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaignrules_rule_evaluations_total",
			Help: "Total number of rule evaluations",
		},
		[]string{"result"}, // result: matched, unmatched
	)

	RuleDiagnosticsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaignrules_rule_diagnostics_total",
			Help: "Total number of invalid rule fragments evaluated",
		},
		[]string{"kind"},
	)

	RuleSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "campaignrules_rule_sweep_duration_seconds",
			Help:    "Time taken to evaluate every active rule against one snapshot",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)

	ProgramCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "campaignrules_program_cache_size",
			Help: "Number of compiled rule programs held in memory",
		},
	)

	// Ingest metrics
	SnapshotsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaignrules_snapshots_ingested_total",
			Help: "Total number of campaign snapshots received",
		},
		[]string{"source", "status"}, // status: accepted, rejected
	)

	PipelineQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "campaignrules_pipeline_queue_size",
			Help: "Current number of snapshots waiting for evaluation",
		},
	)

	// Action metrics
	ActionsTriggeredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaignrules_actions_triggered_total",
			Help: "Total number of rule actions triggered",
		},
		[]string{"action"},
	)

	NotifyFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaignrules_notify_failures_total",
			Help: "Total number of failed notification deliveries",
		},
		[]string{"notifier"},
	)

	// Live feed
	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "campaignrules_websocket_clients",
			Help: "Number of connected dashboard websocket clients",
		},
	)

	SnapshotsPrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campaignrules_snapshots_pruned_total",
			Help: "Total number of snapshots removed by retention",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaignrules_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
