// Package metrics exposes Prometheus collectors for dispatch and session activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the engine collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	inbound       *prometheus.CounterVec
	replies       *prometheus.CounterVec
	sendDuration  prometheus.Histogram
	reloads       *prometheus.CounterVec
	activeRules   *prometheus.GaugeVec
	channelState  *prometheus.GaugeVec
	reconnections prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		inbound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowbot_inbound_events_total",
				Help: "Inbound events handled by the dispatcher, by outcome",
			},
			[]string{"outcome"},
		),
		replies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowbot_replies_total",
				Help: "Automated replies, by match kind and result",
			},
			[]string{"kind", "result"},
		),
		sendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "flowbot_send_duration_seconds",
				Help:    "Duration of outbound sends",
				Buckets: prometheus.DefBuckets,
			},
		),
		reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowbot_rule_reloads_total",
				Help: "Rule index reloads, by result",
			},
			[]string{"result"},
		),
		activeRules: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flowbot_active_rules",
				Help: "Entries in the published rule index",
			},
			[]string{"kind"},
		),
		channelState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flowbot_channel_state",
				Help: "1 for the current event channel state, 0 otherwise",
			},
			[]string{"state"},
		),
		reconnections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "flowbot_reconnect_attempts_total",
				Help: "Reconnect attempts made by the event channel",
			},
		),
	}

	m.registry.MustRegister(
		m.inbound,
		m.replies,
		m.sendDuration,
		m.reloads,
		m.activeRules,
		m.channelState,
		m.reconnections,
	)

	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) InboundHandled(outcome string) {
	if m == nil {
		return
	}

	m.inbound.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ReplyRecorded(kind, result string, seconds float64) {
	if m == nil {
		return
	}

	m.replies.WithLabelValues(kind, result).Inc()
	m.sendDuration.Observe(seconds)
}

func (m *Metrics) RulesReloaded(result string, flows, templates int) {
	if m == nil {
		return
	}

	m.reloads.WithLabelValues(result).Inc()

	if result == "ok" {
		m.activeRules.WithLabelValues("flow").Set(float64(flows))
		m.activeRules.WithLabelValues("template").Set(float64(templates))
	}
}

func (m *Metrics) RulesCleared() {
	if m == nil {
		return
	}

	m.activeRules.WithLabelValues("flow").Set(0)
	m.activeRules.WithLabelValues("template").Set(0)
}

// ChannelState marks state as the current one among all.
func (m *Metrics) ChannelState(state string, all []string) {
	if m == nil {
		return
	}

	for _, s := range all {
		value := 0.0
		if s == state {
			value = 1
		}

		m.channelState.WithLabelValues(s).Set(value)
	}
}

func (m *Metrics) ReconnectAttempt() {
	if m == nil {
		return
	}

	m.reconnections.Inc()
}
