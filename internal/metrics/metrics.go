// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics holds the Prometheus metrics of a node. A nil *Metrics is
// valid and records nothing, so components can run without a registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hmtl"

// Metrics holds Prometheus metrics for the node
type Metrics struct {
	messagesReceived  *prometheus.CounterVec
	messagesDropped   *prometheus.CounterVec
	messagesForwarded *prometheus.CounterVec
	forwardSkipped    *prometheus.CounterVec
	configRejected    *prometheus.CounterVec
	ticks             prometheus.Counter
	updates           prometheus.Counter
	activeTrackers    prometheus.Gauge
}

// New creates and registers node metrics. It returns nil when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Messages received per transport",
		}, []string{"transport"}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Messages dropped by the router per reason",
		}, []string{"reason"}),
		messagesForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_forwarded_total",
			Help:      "Messages forwarded per socket",
		}, []string{"socket"}),
		forwardSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forward_skipped_total",
			Help:      "Forwards skipped because the message exceeded the socket send buffer",
		}, []string{"socket"}),
		configRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "program_config_rejected_total",
			Help:      "Program configurations rejected per reason",
		}, []string{"reason"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Program manager ticks",
		}),
		updates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_updates_total",
			Help:      "Output flushes triggered by ticks or messages",
		}),
		activeTrackers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_trackers",
			Help:      "Output slots with a running program",
		}),
	}

	reg.MustRegister(
		m.messagesReceived,
		m.messagesDropped,
		m.messagesForwarded,
		m.forwardSkipped,
		m.configRejected,
		m.ticks,
		m.updates,
		m.activeTrackers,
	)
	return m
}

func (m *Metrics) MessageReceived(transport string) {
	if m != nil {
		m.messagesReceived.WithLabelValues(transport).Inc()
	}
}

func (m *Metrics) MessageDropped(reason string) {
	if m != nil {
		m.messagesDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) MessageForwarded(socket string) {
	if m != nil {
		m.messagesForwarded.WithLabelValues(socket).Inc()
	}
}

func (m *Metrics) ForwardSkipped(socket string) {
	if m != nil {
		m.forwardSkipped.WithLabelValues(socket).Inc()
	}
}

func (m *Metrics) ConfigRejected(reason string) {
	if m != nil {
		m.configRejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Tick() {
	if m != nil {
		m.ticks.Inc()
	}
}

func (m *Metrics) Update() {
	if m != nil {
		m.updates.Inc()
	}
}

func (m *Metrics) SetActiveTrackers(n int) {
	if m != nil {
		m.activeTrackers.Set(float64(n))
	}
}
