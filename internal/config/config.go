// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads and validates the node configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
	"pkt.systems/pslog"
)

// ErrInvalidConfig is returned when a configuration fails validation
var ErrInvalidConfig = errors.New("invalid config")

// Socket types
const (
	SocketUDP       = "udp"
	SocketMQTT      = "mqtt"
	SocketWebSocket = "websocket"
)

// Output types
const (
	OutputValue = "value"
	OutputRGB   = "rgb"
)

// Config is the node configuration
type Config struct {
	DeviceID         uint16 `mapstructure:"device_id" yaml:"device_id"`
	Address          uint16 `mapstructure:"address" yaml:"address"`
	HardwareVersion  uint8  `mapstructure:"hardware_version" yaml:"hardware_version"`
	ObjectType       uint16 `mapstructure:"object_type" yaml:"object_type"`
	TickMS           int    `mapstructure:"tick_ms" yaml:"tick_ms"`
	ReadyThresholdMS int    `mapstructure:"ready_threshold_ms" yaml:"ready_threshold_ms"`
	ReadyResendMS    int    `mapstructure:"ready_resend_ms" yaml:"ready_resend_ms"`
	LogLevel         string `mapstructure:"log_level" yaml:"log_level"`
	LogStructured    bool   `mapstructure:"log_structured" yaml:"log_structured"`
	MetricsAddr      string `mapstructure:"metrics_addr" yaml:"metrics_addr"`

	Serial  SerialConfig   `mapstructure:"serial" yaml:"serial"`
	Sockets []SocketConfig `mapstructure:"sockets" yaml:"sockets"`
	Outputs []OutputConfig `mapstructure:"outputs" yaml:"outputs"`
}

// SerialConfig configures the serial line. An empty port disables it.
type SerialConfig struct {
	Port   string `mapstructure:"port" yaml:"port"`
	Baud   int    `mapstructure:"baud" yaml:"baud"`
	Buffer int    `mapstructure:"buffer" yaml:"buffer"`
}

// SocketConfig configures one packet socket
type SocketConfig struct {
	Type          string `mapstructure:"type" yaml:"type"`
	Name          string `mapstructure:"name" yaml:"name,omitempty"`
	Listen        string `mapstructure:"listen" yaml:"listen,omitempty"`
	Broadcast     string `mapstructure:"broadcast" yaml:"broadcast,omitempty"`
	Broker        string `mapstructure:"broker" yaml:"broker,omitempty"`
	Topic         string `mapstructure:"topic" yaml:"topic,omitempty"`
	ClientID      string `mapstructure:"client_id" yaml:"client_id,omitempty"`
	URL           string `mapstructure:"url" yaml:"url,omitempty"`
	Username      string `mapstructure:"username" yaml:"username,omitempty"`
	Password      string `mapstructure:"password" yaml:"password,omitempty"`
	SkipSSLVerify bool   `mapstructure:"skip_ssl_verify" yaml:"skip_ssl_verify,omitempty"`
	SendBuffer    int    `mapstructure:"send_buffer" yaml:"send_buffer,omitempty"`
	RecvLimit     int    `mapstructure:"recv_limit" yaml:"recv_limit,omitempty"`
}

// OutputConfig configures one output slot. Value outputs use Pin and Value,
// RGB outputs use Pins and Values.
type OutputConfig struct {
	Type   string `mapstructure:"type" yaml:"type"`
	Pin    int    `mapstructure:"pin" yaml:"pin,omitempty"`
	Pins   []int  `mapstructure:"pins" yaml:"pins,omitempty"`
	Value  uint16 `mapstructure:"value" yaml:"value,omitempty"`
	Values []int  `mapstructure:"values" yaml:"values,omitempty"`
}

// Default returns the configuration used when no file is present
func Default() Config {
	return Config{
		DeviceID:         1,
		Address:          1,
		HardwareVersion:  1,
		TickMS:           10,
		ReadyThresholdMS: 2000,
		ReadyResendMS:    1000,
		LogLevel:         "info",
		Serial: SerialConfig{
			Baud:   115200,
			Buffer: 128,
		},
		Sockets: []SocketConfig{
			{Type: SocketUDP, Name: "udp0", Listen: ":6000", Broadcast: "255.255.255.255:6000"},
		},
		Outputs: []OutputConfig{
			{Type: OutputRGB, Pins: []int{9, 10, 11}},
			{Type: OutputValue, Pin: 13},
		},
	}
}

// DefaultConfigPath returns the per-user config file location
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "hmtlnode", "config.yaml"), nil
}

// Validate checks the configuration for unusable values
func (c Config) Validate() error {
	if c.TickMS <= 0 {
		return fmt.Errorf("%w: tick_ms must be positive", ErrInvalidConfig)
	}
	if c.Serial.Port != "" && c.Serial.Baud <= 0 {
		return fmt.Errorf("%w: serial.baud must be positive", ErrInvalidConfig)
	}
	if c.LogLevel != "" {
		if _, ok := pslog.ParseLevel(c.LogLevel); !ok {
			return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
		}
	}

	names := make(map[string]bool)
	for i, s := range c.Sockets {
		if err := s.validate(); err != nil {
			return fmt.Errorf("%w: sockets[%d]: %s", ErrInvalidConfig, i, err)
		}
		name := s.SocketName(i)
		if names[name] {
			return fmt.Errorf("%w: sockets[%d]: duplicate name %q", ErrInvalidConfig, i, name)
		}
		names[name] = true
	}
	for i, o := range c.Outputs {
		if err := o.validate(); err != nil {
			return fmt.Errorf("%w: outputs[%d]: %s", ErrInvalidConfig, i, err)
		}
	}
	return nil
}

// SocketName returns the configured name or one derived from the type and
// position
func (s SocketConfig) SocketName(index int) string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("%s%d", s.Type, index)
}

func (s SocketConfig) validate() error {
	switch s.Type {
	case SocketUDP:
		if s.Listen == "" || s.Broadcast == "" {
			return errors.New("udp requires listen and broadcast")
		}
	case SocketMQTT:
		if s.Broker == "" {
			return errors.New("mqtt requires broker")
		}
	case SocketWebSocket:
		if s.URL == "" {
			return errors.New("websocket requires url")
		}
	default:
		return fmt.Errorf("unknown type %q", s.Type)
	}
	if s.SendBuffer < 0 || s.RecvLimit < 0 {
		return errors.New("buffer sizes must not be negative")
	}
	return nil
}

func (o OutputConfig) validate() error {
	switch o.Type {
	case OutputValue:
		if len(o.Values) != 0 || len(o.Pins) != 0 {
			return errors.New("value outputs take pin and value")
		}
	case OutputRGB:
		if len(o.Pins) != 3 {
			return fmt.Errorf("rgb requires 3 pins, have %d", len(o.Pins))
		}
		if len(o.Values) != 0 && len(o.Values) != 3 {
			return fmt.Errorf("rgb values need 3 entries, have %d", len(o.Values))
		}
		for _, v := range o.Values {
			if v < 0 || v > 255 {
				return fmt.Errorf("rgb value %d out of range", v)
			}
		}
	default:
		return fmt.Errorf("unknown type %q", o.Type)
	}
	return nil
}

// Write stores cfg as YAML at path, creating parent directories
func Write(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
