// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for the sidecar, adapted from coreengine/observability's
// promauto.New*Vec + package-level Record* pattern and InitTracer shape.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// ACTION METRICS
// =============================================================================

var (
	actionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidecar_actions_total",
			Help: "Total number of Actions completed, by request msg_type and completion outcome",
		},
		[]string{"request_type", "outcome"}, // outcome: done, safety_net
	)

	actionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sidecar_actions_in_flight",
			Help: "Number of Actions currently armed or running",
		},
	)

	actionDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sidecar_action_duration_seconds",
			Help:    "Time from Action submission to done",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"request_type"},
	)
)

// =============================================================================
// HANDLER METRICS
// =============================================================================

var (
	handlerExceptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidecar_handler_exceptions_total",
			Help: "Total number of handler invocations that returned an error",
		},
		[]string{"msg_type"},
	)

	handlerTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidecar_handler_timeouts_total",
			Help: "Total number of handler pipelines that exceeded the configured timeout",
		},
		[]string{"msg_type"},
	)

	safetyNetTriggeredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidecar_safety_net_triggered_total",
			Help: "Total number of Actions force-completed by the safety net",
		},
		[]string{"request_type"},
	)

	lateMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidecar_late_messages_total",
			Help: "Total number of non-comm messages dropped for an Action already done",
		},
		[]string{"msg_type"},
	)
)

// =============================================================================
// TRANSPORT METRICS
// =============================================================================

var (
	channelDisconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidecar_channel_disconnects_total",
			Help: "Total number of channel-watcher reconnect cycles, by channel",
		},
		[]string{"channel"},
	)

	dispatchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sidecar_dispatch_duration_seconds",
			Help:    "Time spent dispatching a single inbound frame to its Action",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"msg_type"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordActionSubmitted increments the in-flight gauge; call when an Action
// is registered in Client.Send.
func RecordActionSubmitted() {
	actionsInFlight.Inc()
}

// RecordActionDone decrements the in-flight gauge and records the
// completion outcome/duration; call from the Action's done transition.
func RecordActionDone(requestType, outcome string, durationSeconds float64) {
	actionsInFlight.Dec()
	actionsTotal.WithLabelValues(requestType, outcome).Inc()
	actionDurationSeconds.WithLabelValues(requestType).Observe(durationSeconds)
}

// RecordHandlerException records a handler invocation that returned an error.
func RecordHandlerException(msgType string) {
	handlerExceptionsTotal.WithLabelValues(msgType).Inc()
}

// RecordHandlerTimeout records a handler pipeline that exceeded its timeout.
func RecordHandlerTimeout(msgType string) {
	handlerTimeoutsTotal.WithLabelValues(msgType).Inc()
}

// RecordSafetyNetTriggered records an Action force-completed by the safety net.
func RecordSafetyNetTriggered(requestType string) {
	safetyNetTriggeredTotal.WithLabelValues(requestType).Inc()
}

// RecordLateMessage records a non-comm message dropped for an Action that
// had already reached done.
func RecordLateMessage(msgType string) {
	lateMessagesTotal.WithLabelValues(msgType).Inc()
}

// RecordChannelDisconnect records one channel-watcher reconnect cycle.
func RecordChannelDisconnect(channel string) {
	channelDisconnectsTotal.WithLabelValues(channel).Inc()
}

// RecordDispatch records the time spent routing one inbound frame.
func RecordDispatch(msgType string, durationSeconds float64) {
	dispatchDurationSeconds.WithLabelValues(msgType).Observe(durationSeconds)
}
