// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/hmtlnode/pkg/handler"
	"github.com/Thermoquad/hmtlnode/pkg/output"
	"github.com/Thermoquad/hmtlnode/pkg/transport"
	"pkt.systems/pslog"
)

// TickInterval returns the program tick period
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickMS) * time.Millisecond
}

// HandlerConfig returns the node identity and serial tuning
func (c Config) HandlerConfig() handler.Config {
	return handler.Config{
		Address:         c.Address,
		DeviceID:        c.DeviceID,
		HardwareVersion: c.HardwareVersion,
		ObjectType:      c.ObjectType,
		Baud:            c.Serial.Baud,
		SerialBuffer:    c.Serial.Buffer,
		ReadyThreshold:  time.Duration(c.ReadyThresholdMS) * time.Millisecond,
		ReadyResend:     time.Duration(c.ReadyResendMS) * time.Millisecond,
	}
}

// OutputTable builds the output devices in slot order
func (c Config) OutputTable() (*output.Table, error) {
	devices := make([]output.Device, 0, len(c.Outputs))
	for i, o := range c.Outputs {
		if err := o.validate(); err != nil {
			return nil, fmt.Errorf("%w: outputs[%d]: %s", ErrInvalidConfig, i, err)
		}
		switch o.Type {
		case OutputValue:
			devices = append(devices, output.NewValueOutput(o.Pin, o.Value))
		case OutputRGB:
			var color [3]uint8
			for j, v := range o.Values {
				color[j] = uint8(v)
			}
			devices = append(devices, output.NewRGBOutput([3]int{o.Pins[0], o.Pins[1], o.Pins[2]}, color))
		}
	}
	return output.NewTable(devices...), nil
}

// OpenSockets opens every configured socket. If one fails, the sockets
// opened so far are closed.
func (c Config) OpenSockets(ctx context.Context, logger pslog.Logger) ([]transport.Socket, error) {
	var sockets []transport.Socket
	for i, sc := range c.Sockets {
		s, err := sc.open(ctx, i, c.Address, logger)
		if err != nil {
			errs := []error{fmt.Errorf("socket %s: %w", sc.SocketName(i), err)}
			for _, opened := range sockets {
				errs = append(errs, opened.Close())
			}
			return nil, errors.Join(errs...)
		}
		sockets = append(sockets, s)
	}
	return sockets, nil
}

func (s SocketConfig) open(ctx context.Context, index int, address uint16, logger pslog.Logger) (transport.Socket, error) {
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	opts := transport.SocketOptions{
		Name:       s.SocketName(index),
		Source:     address,
		SendBuffer: s.SendBuffer,
		RecvLimit:  s.RecvLimit,
		Logger:     logger,
	}

	switch s.Type {
	case SocketUDP:
		return transport.ListenUDP(s.Listen, s.Broadcast, opts)
	case SocketMQTT:
		return transport.DialMQTT(transport.MQTTConfig{
			Broker:   s.Broker,
			Topic:    s.Topic,
			ClientID: s.ClientID,
			Username: s.Username,
			Password: s.Password,
		}, opts)
	default:
		return transport.DialWebSocket(ctx, transport.WebSocketConfig{
			URL:           s.URL,
			Username:      s.Username,
			Password:      s.Password,
			SkipSSLVerify: s.SkipSSLVerify,
		}, opts)
	}
}
