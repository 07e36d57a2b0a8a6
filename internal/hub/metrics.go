package hub

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type hubMetrics struct {
	activeConnections prometheus.Gauge
	activeCalls       prometheus.Gauge
	connectionTotal   prometheus.Counter
	frameErrors       *prometheus.CounterVec
	frameLatency      *prometheus.HistogramVec
	messagesTotal     *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	callOutcomes      *prometheus.CounterVec
	signalsDropped    prometheus.Counter
}

func newHubMetrics(reg prometheus.Registerer) *hubMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &hubMetrics{
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "parley_connections_active",
			Help: "Current number of live client connections.",
		}),
		activeCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "parley_calls_active",
			Help: "Current number of active calls.",
		}),
		connectionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_connections_total",
			Help: "Total number of connections handled since start.",
		}),
		frameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_frame_errors_total",
			Help: "Frame validation or routing errors.",
		}, []string{"code"}),
		frameLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parley_frame_latency_seconds",
			Help:    "Latency for handling inbound frames.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"op"}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_messages_total",
			Help: "Direct-message operations by outcome.",
		}, []string{"op", "delivery"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_notifications_total",
			Help: "Durable notifications created by kind.",
		}, []string{"kind"}),
		callOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_call_outcomes_total",
			Help: "Call signaling outcomes.",
		}, []string{"outcome"}),
		signalsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_signals_dropped_total",
			Help: "Relay signals dropped because the target was unreachable.",
		}),
	}

	reg.MustRegister(
		m.activeConnections,
		m.activeCalls,
		m.connectionTotal,
		m.frameErrors,
		m.frameLatency,
		m.messagesTotal,
		m.notifications,
		m.callOutcomes,
		m.signalsDropped,
	)
	return m
}

func (m *hubMetrics) incConnection() {
	if m == nil {
		return
	}
	m.activeConnections.Inc()
	m.connectionTotal.Inc()
}

func (m *hubMetrics) decConnection() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

func (m *hubMetrics) incCall() {
	if m == nil {
		return
	}
	m.activeCalls.Inc()
}

func (m *hubMetrics) decCall() {
	if m == nil {
		return
	}
	m.activeCalls.Dec()
}

func (m *hubMetrics) recordError(code string) {
	if m == nil {
		return
	}
	m.frameErrors.WithLabelValues(code).Inc()
}

func (m *hubMetrics) observeLatency(op string, dur time.Duration) {
	if m == nil || op == "" {
		return
	}
	m.frameLatency.WithLabelValues(op).Observe(dur.Seconds())
}

func (m *hubMetrics) recordMessage(op, delivery string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(op, delivery).Inc()
}

func (m *hubMetrics) recordNotification(kind string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind).Inc()
}

func (m *hubMetrics) recordCallOutcome(outcome string) {
	if m == nil {
		return
	}
	m.callOutcomes.WithLabelValues(outcome).Inc()
}

func (m *hubMetrics) recordSignalDrop() {
	if m == nil {
		return
	}
	m.signalsDropped.Inc()
}
