// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/hmtlnode/internal/config"
	"github.com/Thermoquad/hmtlnode/pkg/handler"
	"github.com/Thermoquad/hmtlnode/pkg/hmtl"
	"github.com/Thermoquad/hmtlnode/pkg/node"
	"github.com/Thermoquad/hmtlnode/pkg/program"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamPrinter(t *testing.T) {
	var out bytes.Buffer
	p := newStreamPrinter(&out, true)
	p.now = func() time.Time { return time.Date(2025, 1, 1, 12, 30, 5, 0, time.UTC) }

	unknown, err := hmtl.NewMessage(0x09, 0, 5, nil)
	require.NoError(t, err)

	p.Feed([]byte("ready\r\n"))
	rgb := hmtl.NewRGBMessage(5, 1, 255, 0, 0).Raw
	// Split across reads
	p.Feed(rgb[:3])
	p.Feed(rgb[3:])
	p.Feed(unknown.Raw)

	got := out.String()
	assert.Contains(t, got, `[12:30:05.000] LINE "ready"`)
	assert.Contains(t, got, "[12:30:05.000] OUTPUT (0x01)")
	assert.Contains(t, got, "UNKNOWN (0x09)")
	assert.Contains(t, got, "[ANOMALY] Unknown message type=0x09")
	assert.Equal(t, 1, strings.Count(got, "[ANOMALY]"))
}

func TestStreamPrinterWithoutValidation(t *testing.T) {
	var out bytes.Buffer
	p := newStreamPrinter(&out, false)

	unknown, err := hmtl.NewMessage(0x09, 0, 5, nil)
	require.NoError(t, err)
	p.Feed(unknown.Raw)

	assert.Contains(t, out.String(), "UNKNOWN (0x09)")
	assert.NotContains(t, out.String(), "[ANOMALY]")
}

func pollResponse(t *testing.T, deviceID, address uint16) []byte {
	t.Helper()
	buf := make([]byte, 64)
	n, err := hmtl.FormatPollResponse(buf, hmtl.AddressAny, 0, hmtl.ModuleInfo{
		ProtocolVersion: hmtl.Version,
		HardwareVersion: 3,
		Baud:            115200,
		DeviceID:        deviceID,
		Address:         address,
		RecvLimit:       64,
		Outputs:         []hmtl.OutputKind{hmtl.OutputRGB, hmtl.OutputValue},
	})
	require.NoError(t, err)
	return buf[:n]
}

func TestPollCollector(t *testing.T) {
	c := newPollCollector()

	first := pollResponse(t, 100, 5)
	stream := append([]byte("ok\n"), first...)
	stream = append(stream, hmtl.NewPollMessage(5).Raw...)
	stream = append(stream, first...)
	stream = append(stream, pollResponse(t, 101, 6)...)

	var found []*hmtl.PollResponse
	for len(stream) > 0 {
		n := min(7, len(stream))
		found = append(found, c.Feed(stream[:n])...)
		stream = stream[n:]
	}

	require.Len(t, found, 2)
	assert.Equal(t, uint16(100), found[0].DeviceID)
	assert.Equal(t, uint16(5), found[0].Address)
	assert.Equal(t, uint8(2), found[0].NumOutputs)
	assert.Equal(t, []hmtl.OutputKind{hmtl.OutputRGB, hmtl.OutputValue}, found[0].Outputs)
	assert.Equal(t, uint16(101), found[1].DeviceID)

	// Same device after an address change is reported again
	assert.Len(t, c.Feed(pollResponse(t, 100, 7)), 1)
}

func TestParseColor(t *testing.T) {
	c, err := parseColor("255,0,16")
	require.NoError(t, err)
	assert.Equal(t, [3]uint8{255, 0, 16}, c)

	c, err = parseColor(" 1, 2 ,0x03")
	require.NoError(t, err)
	assert.Equal(t, [3]uint8{1, 2, 3}, c)

	for _, bad := range []string{"1,2", "256,0,0", "a,b,c", ""} {
		_, err := parseColor(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseTransition(t *testing.T) {
	period, start, stop, err := parseTransition([]string{"1500", "0,0,0", "255,255,255"})
	require.NoError(t, err)
	assert.Equal(t, uint32(1500), period)
	assert.Equal(t, [3]uint8{0, 0, 0}, start)
	assert.Equal(t, [3]uint8{255, 255, 255}, stop)

	_, _, _, err = parseTransition([]string{"-1", "0,0,0", "0,0,0"})
	assert.Error(t, err)
	_, _, _, err = parseTransition([]string{"10", "0,0,0", "0,0"})
	assert.Error(t, err)
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0 seconds"},
		{time.Second, "1 second"},
		{61 * time.Second, "1 minute and 1 second"},
		{2 * time.Hour, "2 hours"},
		{90061 * time.Second, "1 day, 1 hour, 1 minute, and 1 second"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatUptime(tt.d), tt.d.String())
	}
}

func TestModelApplyStatus(t *testing.T) {
	m := initialModel("test", nil)

	m.applyStatus(node.Status{
		Address: 5,
		Slots:   []program.SlotStatus{{Output: 0, Program: "-"}, {Output: 1, Program: "-"}},
	})
	require.Len(t, m.events, 1)
	assert.Equal(t, "Node running", m.events[0].message)

	m.applyStatus(node.Status{
		Address: 9,
		Slots:   []program.SlotStatus{{Output: 0, Program: "blink"}, {Output: 1, Program: "-"}},
		Stats:   handler.Stats{Dropped: 2},
	})
	require.Len(t, m.events, 4)
	assert.Equal(t, "Address changed 5 -> 9", m.events[1].message)
	assert.Equal(t, "Output 0: - -> blink", m.events[2].message)
	assert.Equal(t, "2 message(s) dropped", m.events[3].message)
	assert.True(t, m.events[3].isError)
	assert.Len(t, m.slots.Rows(), 2)

	view := m.View()
	assert.Contains(t, view, "HMTL NODE")
	assert.Contains(t, view, "blink")
}

func TestModelReportsLostSerialLine(t *testing.T) {
	m := initialModel("test", nil)
	m.applyStatus(node.Status{Address: 5})
	m.applyStatus(node.Status{Address: 5, SerialErr: io.EOF})
	m.applyStatus(node.Status{Address: 5, SerialErr: io.EOF})

	require.Len(t, m.events, 2)
	assert.Equal(t, "Serial line lost: EOF", m.events[1].message)
	assert.True(t, m.events[1].isError)
}

func TestModelKeepsRecentEvents(t *testing.T) {
	m := initialModel("test", nil)
	m.maxEvents = 3
	for i := range 5 {
		m.addEvent(fmt.Sprintf("event %d", i), false)
	}
	require.Len(t, m.events, 3)
	assert.Equal(t, "event 2", m.events[0].message)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))

	err := exitError(2, errors.New("no link"))
	assert.Equal(t, 2, ExitCode(err))
	assert.Equal(t, 2, ExitCode(fmt.Errorf("discover: %w", err)))
	assert.EqualError(t, err, "no link")
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hmtlnode", "config.yaml")
	initConfigPath, initConfigForce = path, false
	t.Cleanup(func() { initConfigPath, initConfigForce = "", false })

	var out bytes.Buffer
	initConfigCmd.SetOut(&out)
	t.Cleanup(func() { initConfigCmd.SetOut(nil) })

	require.NoError(t, runInitConfig(initConfigCmd, nil))
	assert.Contains(t, out.String(), path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	err = runInitConfig(initConfigCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	initConfigForce = true
	assert.NoError(t, runInitConfig(initConfigCmd, nil))
}
