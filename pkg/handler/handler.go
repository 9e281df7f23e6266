// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package handler routes HMTL messages for a node.
//
// The Handler owns the node address. It decides whether a message is for
// this node, relays acknowledgements to the serial line, answers polls,
// applies address assignments, delivers sensor readings and hands output
// configuration to the program manager. It also polls the serial line and
// the packet sockets and forwards serial traffic onto the sockets.
package handler

import (
	"io"
	"time"

	"github.com/Thermoquad/hmtlnode/internal/logging"
	"github.com/Thermoquad/hmtlnode/internal/metrics"
	"github.com/Thermoquad/hmtlnode/pkg/hmtl"
	"github.com/Thermoquad/hmtlnode/pkg/output"
	"github.com/Thermoquad/hmtlnode/pkg/program"
	"github.com/Thermoquad/hmtlnode/pkg/transport"
	"pkt.systems/pslog"
)

// ProtocolVersion is reported in poll responses
const ProtocolVersion = 2

// Default serial timing
const (
	DefaultReadyThreshold = 2 * time.Second
	DefaultReadyResend    = time.Second
	DefaultSerialBuffer   = 128
)

// Config is the node identity and serial tuning used by the handler
type Config struct {
	Address         uint16
	DeviceID        uint16
	HardwareVersion uint8
	ObjectType      uint16
	Baud            int
	SerialBuffer    int
	ReadyThreshold  time.Duration
	ReadyResend     time.Duration
}

// ByteSource yields received serial bytes without blocking. Err reports
// why the source stopped once every byte before the failure was taken.
type ByteSource interface {
	ReadByte() (byte, bool)
	Err() error
}

// Params are the collaborators of a Handler. Serial, SerialIn and Sockets
// may be empty. Now and Sleep default to the wall clock.
type Params struct {
	Config   Config
	Manager  *program.Manager
	Outputs  *output.Table
	Serial   io.Writer
	SerialIn ByteSource
	Sockets  []transport.Socket
	Logger   pslog.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
	Sleep    func(time.Duration)
}

// Stats counts routing decisions since start
type Stats struct {
	Received  uint64
	Processed uint64
	Forwarded uint64
	Skipped   uint64
	Dropped   uint64
	AcksSent  uint64
}

// Handler routes messages for one node. It is not safe for concurrent use.
type Handler struct {
	address uint16
	cfg     Config

	manager  *program.Manager
	outputs  *output.Table
	serial   io.Writer
	serialIn ByteSource
	sockets  []transport.Socket
	framer   *hmtl.Framer

	lastSerial time.Time
	lastReady  time.Time
	serialErr  error
	stats      Stats

	now     func() time.Time
	sleep   func(time.Duration)
	logger  pslog.Logger
	metrics *metrics.Metrics
}

// New creates a handler
func New(p Params) *Handler {
	cfg := p.Config
	if cfg.SerialBuffer <= 0 {
		cfg.SerialBuffer = DefaultSerialBuffer
	}
	if cfg.ReadyThreshold <= 0 {
		cfg.ReadyThreshold = DefaultReadyThreshold
	}
	if cfg.ReadyResend <= 0 {
		cfg.ReadyResend = DefaultReadyResend
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.Sleep == nil {
		p.Sleep = time.Sleep
	}
	return &Handler{
		address:  cfg.Address,
		cfg:      cfg,
		manager:  p.Manager,
		outputs:  p.Outputs,
		serial:   p.Serial,
		serialIn: p.SerialIn,
		sockets:  p.Sockets,
		framer:   hmtl.NewFramer(cfg.SerialBuffer),
		now:      p.Now,
		sleep:    p.Sleep,
		logger:   logging.OrDiscard(p.Logger),
		metrics:  p.Metrics,
	}
}

// Address returns the node address
func (h *Handler) Address() uint16 {
	return h.address
}

// Sockets returns the packet sockets the handler polls
func (h *Handler) Sockets() []transport.Socket {
	return h.sockets
}

// SerialErr returns the error that stopped the serial line, or nil while
// it is up
func (h *Handler) SerialErr() error {
	return h.serialErr
}

// Stats returns the routing counters
func (h *Handler) Stats() Stats {
	return h.stats
}

// moduleInfo describes this node for poll responses
func (h *Handler) moduleInfo(recvLimit int) hmtl.ModuleInfo {
	return hmtl.ModuleInfo{
		ProtocolVersion: ProtocolVersion,
		HardwareVersion: h.cfg.HardwareVersion,
		Baud:            h.cfg.Baud,
		DeviceID:        h.cfg.DeviceID,
		Address:         h.address,
		ObjectType:      h.cfg.ObjectType,
		RecvLimit:       uint16(recvLimit),
		Outputs:         h.outputs.Kinds(),
	}
}

// writeSerial writes to the serial line if there is one
func (h *Handler) writeSerial(data []byte) bool {
	if h.serial == nil {
		return false
	}
	if _, err := h.serial.Write(data); err != nil {
		h.logger.Warn("serial write failed", "err", err, "len", len(data))
		return false
	}
	return true
}

func (h *Handler) drop(reason string, msg *hmtl.Message, kv ...any) {
	h.stats.Dropped++
	h.metrics.MessageDropped(reason)
	fields := append([]any{"reason", reason, "type", hmtl.FormatMessageType(msg.Type),
		"address", hmtl.FormatAddress(msg.Address)}, kv...)
	h.logger.Warn("message dropped", fields...)
}
