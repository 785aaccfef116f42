package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TranscriptEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "farum",
		Name:      "transcript_events_total",
		Help:      "Transcript events applied, by kind.",
	}, []string{"kind"})

	TranscriptEventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "farum",
		Name:      "transcript_events_dropped_total",
		Help:      "Transcript events dropped before reconciliation, by reason.",
	}, []string{"reason"})

	HistoryMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "farum",
		Name:      "history_messages_total",
		Help:      "Messages offered to the conversation store, by result.",
	}, []string{"result"})

	Handoffs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "farum",
		Name:      "handoffs_total",
		Help:      "Agent handoff attempts, by result.",
	}, []string{"result"})

	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "farum",
		Name:      "tool_calls_total",
		Help:      "Tool dispatches, by tool and result.",
	}, []string{"tool", "result"})
)

// MetricsHandler exposes the default registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
