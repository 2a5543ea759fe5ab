package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Alert engine metrics
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostwatch_alert_transitions_total",
			Help: "Alert transitions emitted by the engine",
		},
		[]string{"probe", "condition", "transition"},
	)

	ProbeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostwatch_probe_errors_total",
			Help: "Probe collection failures",
		},
		[]string{"probe"},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hostwatch_tick_duration_seconds",
			Help:    "Duration of a full probe tick",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// Confirmation protocol metrics
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostwatch_actions_total",
			Help: "Resolved action invocations by outcome",
		},
		[]string{"outcome"}, // executed, failed, rejected, cancelled, expired
	)

	PendingActions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hostwatch_pending_actions",
			Help: "Live (non-terminal) pending action tokens",
		},
	)

	// Notification channel metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostwatch_notifications_total",
			Help: "Notification sends by status",
		},
		[]string{"status"}, // sent, failed
	)
)
