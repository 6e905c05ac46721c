package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stream metrics
var (
	LogsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watcher_logs_received_total",
		Help: "Total number of raw logs received from the subscription",
	})

	LogsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcher_logs_dropped_total",
			Help: "Raw logs dropped before dispatch, by reason",
		},
		[]string{"reason"},
	)

	EventsDecoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcher_events_decoded_total",
			Help: "Logs decoded into tracked events, by event name",
		},
		[]string{"event"},
	)

	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watcher_reconnects_total",
		Help: "Number of reconnect attempts after a stream or connect failure",
	})
)

// Action metrics
var (
	ActionRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcher_action_runs_total",
			Help: "Action invocations by action and status",
		},
		[]string{"action", "status"},
	)

	ActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watcher_action_duration_seconds",
			Help:    "Time spent in each action handler",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	ValueAlerts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watcher_value_alerts_total",
		Help: "Transfers whose value crossed the configured threshold",
	})
)

// State metrics
var (
	EngineState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "watcher_engine_state",
		Help: "Subscription engine state: 0=disconnected 1=connecting 2=idle 3=subscribed 4=processing 5=halted",
	})

	TrackedTargets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "watcher_tracked_targets",
		Help: "Targets in the engine's active set",
	})

	RecentLogSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "watcher_recent_log_size",
		Help: "Entries currently held in the recent-event log",
	})

	SnapshotFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watcher_snapshot_failures_total",
		Help: "Failed recent-event snapshot writes",
	})
)
