// Package metrics defines the prometheus instruments for the dispatch
// pipeline. Everything registers on a private registry so tests never
// collide with the default one.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every voxdeck instrument.
var Registry = prometheus.NewRegistry()

var (
	Utterances = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "voxdeck_utterances_total",
		Help: "Transcript events received across all intake sources.",
	})

	Matches = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "voxdeck_matches_total",
		Help: "Match decisions by outcome.",
	}, []string{"outcome"})

	Executions = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "voxdeck_executions_total",
		Help: "Command executions by result.",
	}, []string{"result"})

	Debounced = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "voxdeck_debounced_total",
		Help: "Matched commands suppressed by the per-command cooldown.",
	})

	OSCSent = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "voxdeck_osc_sent_total",
		Help: "Outbound OSC messages issued.",
	})

	OSCSendErrors = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "voxdeck_osc_send_errors_total",
		Help: "Outbound OSC sends that reported an error.",
	})

	Feedback = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "voxdeck_feedback_total",
		Help: "Inbound OSC feedback messages handled.",
	})

	FeedbackDropped = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "voxdeck_feedback_dropped_total",
		Help: "Inbound datagrams dropped as malformed.",
	})

	RemoteBusy = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Name: "voxdeck_remote_busy",
		Help: "1 while the DAW reports recording, 0 otherwise.",
	})

	Events = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "voxdeck_events_total",
		Help: "Telemetry events by category.",
	}, []string{"category"})
)

// Handler returns the exposition endpoint for the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
