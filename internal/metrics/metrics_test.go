// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NilRegistry(t *testing.T) {
	m := New(nil)
	assert.Nil(t, m)

	// Recording on nil metrics is a no-op
	m.MessageReceived("serial")
	m.MessageDropped("version")
	m.MessageForwarded("udp0")
	m.ForwardSkipped("udp0")
	m.ConfigRejected("unknown_program")
	m.Tick()
	m.Update()
	m.SetActiveTrackers(3)
}

func TestMetrics_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NotNil(t, m)

	m.MessageReceived("serial")
	m.MessageReceived("serial")
	m.ForwardSkipped("udp0")
	m.Tick()
	m.SetActiveTrackers(2)

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[f.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[f.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}

	assert.Equal(t, 2.0, values["hmtl_messages_received_total"])
	assert.Equal(t, 1.0, values["hmtl_forward_skipped_total"])
	assert.Equal(t, 1.0, values["hmtl_ticks_total"])
	assert.Equal(t, 2.0, values["hmtl_active_trackers"])
}
