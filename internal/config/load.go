// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. HMTL_ADDRESS or
// HMTL_SERIAL_PORT
const EnvPrefix = "HMTL"

// Load reads the configuration at path. A missing file yields the defaults.
// If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("device_id", cfg.DeviceID)
	v.SetDefault("address", cfg.Address)
	v.SetDefault("hardware_version", cfg.HardwareVersion)
	v.SetDefault("object_type", cfg.ObjectType)
	v.SetDefault("tick_ms", cfg.TickMS)
	v.SetDefault("ready_threshold_ms", cfg.ReadyThresholdMS)
	v.SetDefault("ready_resend_ms", cfg.ReadyResendMS)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_structured", cfg.LogStructured)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)
	v.SetDefault("serial.port", cfg.Serial.Port)
	v.SetDefault("serial.baud", cfg.Serial.Baud)
	v.SetDefault("serial.buffer", cfg.Serial.Buffer)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}

	// Lists replace the defaults wholesale
	sockets, outputs := cfg.Sockets, cfg.Outputs
	cfg.Sockets, cfg.Outputs = nil, nil
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if !v.IsSet("sockets") {
		cfg.Sockets = sockets
	}
	if !v.IsSet("outputs") {
		cfg.Outputs = outputs
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
