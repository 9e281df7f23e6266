// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Thermoquad/hmtlnode/pkg/hmtl"
	"github.com/Thermoquad/hmtlnode/pkg/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
device_id: 4660
address: 5
object_type: 66
tick_ms: 20
log_level: debug
serial:
  port: /dev/ttyUSB0
  baud: 57600
sockets:
  - type: mqtt
    broker: tcp://localhost:1883
    topic: lights
  - type: websocket
    name: bridge
    url: wss://example.com/ws
    send_buffer: 64
outputs:
  - type: rgb
    pins: [3, 5, 6]
    values: [1, 2, 3]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint16(0x1234), cfg.DeviceID)
	assert.Equal(t, uint16(5), cfg.Address)
	assert.Equal(t, uint16(66), cfg.ObjectType)
	assert.Equal(t, 20*time.Millisecond, cfg.TickInterval())
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, 57600, cfg.Serial.Baud)
	assert.Equal(t, 128, cfg.Serial.Buffer, "unset keys keep their defaults")
	assert.Equal(t, 2000, cfg.ReadyThresholdMS)

	require.Len(t, cfg.Sockets, 2, "lists replace the defaults")
	assert.Equal(t, "mqtt0", cfg.Sockets[0].SocketName(0))
	assert.Equal(t, "bridge", cfg.Sockets[1].SocketName(1))
	assert.Equal(t, 64, cfg.Sockets[1].SendBuffer)

	require.Len(t, cfg.Outputs, 1)
	assert.Equal(t, []int{3, 5, 6}, cfg.Outputs[0].Pins)
	assert.Equal(t, []int{1, 2, 3}, cfg.Outputs[0].Values)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("HMTL_ADDRESS", "42")
	t.Setenv("HMTL_SERIAL_BAUD", "9600")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, uint16(42), cfg.Address)
	assert.Equal(t, 9600, cfg.Serial.Baud)
}

func TestLoad_LogLevels(t *testing.T) {
	for _, level := range []string{"trace", "debug", "info", "warn", "warning", "error", "WARN"} {
		t.Run(level, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, "log_level: "+level+"\n"))
			require.NoError(t, err)
			assert.Equal(t, level, cfg.LogLevel)
		})
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{"unknown socket", "sockets:\n  - type: carrier-pigeon\n"},
		{"unknown output", "outputs:\n  - type: pixels\n"},
		{"rgb pins", "outputs:\n  - type: rgb\n    pins: [1, 2]\n"},
		{"rgb value", "outputs:\n  - type: rgb\n    pins: [1, 2, 3]\n    values: [0, 0, 300]\n"},
		{"udp without broadcast", "sockets:\n  - type: udp\n    listen: :6000\n"},
		{"duplicate names", "sockets:\n  - type: mqtt\n    name: a\n    broker: tcp://x:1883\n  - type: mqtt\n    name: a\n    broker: tcp://y:1883\n"},
		{"tick", "tick_ms: 0\n"},
		{"log level", "log_level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.contents))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "address: [\n"))
	assert.Error(t, err)
}

func TestWrite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Address = 9
	cfg.Serial.Port = "/dev/ttyACM0"

	require.NoError(t, Write(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestOutputTable(t *testing.T) {
	cfg := Default()
	cfg.Outputs = []OutputConfig{
		{Type: OutputRGB, Pins: []int{1, 2, 3}, Values: []int{4, 5, 6}},
		{Type: OutputValue, Pin: 7, Value: 100},
	}

	table, err := cfg.OutputTable()
	require.NoError(t, err)
	assert.Equal(t, []hmtl.OutputKind{hmtl.OutputRGB, hmtl.OutputValue}, table.Kinds())

	rgb := table.Device(0).(*output.RGBOutput)
	assert.Equal(t, [3]uint8{4, 5, 6}, rgb.Color())
	assert.Equal(t, uint16(100), table.Device(1).(*output.ValueOutput).Value())

	cfg.Outputs = []OutputConfig{{Type: "servo"}}
	_, err = cfg.OutputTable()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestHandlerConfig(t *testing.T) {
	cfg := Default()
	hc := cfg.HandlerConfig()
	assert.Equal(t, cfg.Address, hc.Address)
	assert.Equal(t, 115200, hc.Baud)
	assert.Equal(t, 2*time.Second, hc.ReadyThreshold)
	assert.Equal(t, time.Second, hc.ReadyResend)
}

func TestOpenSockets_UDP(t *testing.T) {
	cfg := Default()
	cfg.Sockets = []SocketConfig{
		{Type: SocketUDP, Listen: "127.0.0.1:0", Broadcast: "127.0.0.1:9", SendBuffer: 48},
	}

	sockets, err := cfg.OpenSockets(t.Context(), nil)
	require.NoError(t, err)
	require.Len(t, sockets, 1)
	defer sockets[0].Close()

	assert.Equal(t, "udp0", sockets[0].Name())
	assert.Equal(t, 48, sockets[0].SendCapacity())
	assert.Equal(t, cfg.Address, sockets[0].SourceAddress())
}

func TestOpenSockets_FailureClosesOpened(t *testing.T) {
	cfg := Default()
	cfg.Sockets = []SocketConfig{
		{Type: SocketUDP, Listen: "127.0.0.1:0", Broadcast: "127.0.0.1:9"},
		{Type: SocketWebSocket, URL: "http://not-a-websocket"},
	}

	_, err := cfg.OpenSockets(t.Context(), nil)
	assert.ErrorContains(t, err, "websocket1")
}
