// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package handler

import (
	"time"

	"github.com/Thermoquad/hmtlnode/pkg/hmtl"
	"github.com/Thermoquad/hmtlnode/pkg/output"
	"github.com/Thermoquad/hmtlnode/pkg/transport"
)

// pollDelayUnit scales the node address into the broadcast poll delay
const pollDelayUnit = 2 * time.Millisecond

// Process handles one inbound message. src is the socket the message
// arrived on together with its frame, or nil for the serial line. It
// returns true when outputs may need to be refreshed.
func (h *Handler) Process(msg *hmtl.Message, src transport.Socket, frame *transport.Frame) bool {
	if msg.Version != hmtl.Version {
		h.drop("version", msg, "version", msg.Version)
		return false
	}

	// Acknowledgements for another node are relayed to the serial
	// controller that sent the request. Sensor data continues on to local
	// processing.
	if src != nil && msg.HasFlag(hmtl.FlagAck) && !msg.IsBroadcast() {
		if h.writeSerial(msg.Raw) {
			h.stats.AcksSent++
			h.logger.Debug("ack relayed to serial", "type", hmtl.FormatMessageType(msg.Type),
				"address", msg.Address, "socket", src.Name())
		}
		if msg.Type != hmtl.MsgTypeSensor {
			return false
		}
	}

	if msg.Address != h.address && !msg.IsBroadcast() {
		return false
	}
	h.stats.Processed++

	switch msg.Type {
	case hmtl.MsgTypeOutput:
		h.handleOutput(msg)
		return true
	case hmtl.MsgTypePoll:
		h.handlePoll(msg, src, frame)
	case hmtl.MsgTypeSetAddr:
		h.handleSetAddress(msg, src)
	case hmtl.MsgTypeSensor:
		h.handleSensor(msg)
	default:
		h.drop("unknown_type", msg)
	}
	return false
}

func (h *Handler) handleOutput(msg *hmtl.Message) {
	hdr, err := hmtl.DecodeOutputHeader(msg)
	if err != nil {
		h.drop("malformed", msg, "err", err)
		return
	}

	if hdr.Kind == hmtl.OutputProgram {
		cfg, err := hmtl.DecodeProgramConfig(msg)
		if err != nil {
			h.drop("malformed", msg, "err", err)
			return
		}
		if err := h.manager.HandleConfiguration(cfg); err != nil {
			h.logger.Warn("program configuration failed", "output", cfg.Output, "err", err)
		}
		return
	}

	if err := output.HandleMessage(msg, h.outputs); err != nil {
		h.logger.Warn("output message failed", "output", hdr.Output, "kind", hmtl.FormatOutputKind(hdr.Kind), "err", err)
	}
}

func (h *Handler) handlePoll(msg *hmtl.Message, src transport.Socket, frame *transport.Frame) {
	size, recvLimit := h.cfg.SerialBuffer, h.cfg.SerialBuffer
	if src != nil {
		size, recvLimit = src.SendCapacity(), src.RecvLimit()
	}

	// Serial replies go to the host on the other end of the line, address 0
	buf := make([]byte, size)
	var dest uint16
	if src != nil && frame != nil {
		dest = src.SourceFromData(frame)
	}
	n, err := hmtl.FormatPollResponse(buf, dest, msg.Flags, h.moduleInfo(recvLimit))
	if err != nil {
		h.logger.Warn("poll response failed", "err", err)
		return
	}

	if src == nil {
		h.writeSerial(buf[:n])
		h.logger.Debug("poll answered", "transport", "serial", "len", n)
		return
	}

	// Stagger replies to a broadcast poll so that nodes do not answer at
	// the same time. A node without an address answers immediately.
	if msg.IsBroadcast() && h.address != hmtl.AddressInvalid {
		h.sleep(time.Duration(h.address) * pollDelayUnit)
	}
	if err := src.SendTo(dest, buf[:n]); err != nil {
		h.logger.Warn("poll response send failed", "socket", src.Name(), "dest", dest, "err", err)
		return
	}
	h.logger.Debug("poll answered", "socket", src.Name(), "dest", dest, "len", n)
}

func (h *Handler) handleSetAddress(msg *hmtl.Message, src transport.Socket) {
	sa, err := hmtl.DecodeSetAddress(msg)
	if err != nil {
		h.drop("malformed", msg, "err", err)
		return
	}
	if sa.DeviceID != 0 && sa.DeviceID != h.cfg.DeviceID {
		return
	}

	old := h.address
	h.address = sa.Address
	if src != nil {
		src.SetSourceAddress(sa.Address)
	} else {
		for _, s := range h.sockets {
			s.SetSourceAddress(sa.Address)
		}
	}
	h.logger.Info("address changed", "from", old, "to", sa.Address, "device", h.cfg.DeviceID)
}

func (h *Handler) handleSensor(msg *hmtl.Message) {
	if !msg.HasFlag(hmtl.FlagAck) {
		return
	}
	for _, reading := range hmtl.SensorReadings(msg) {
		if _, err := h.manager.RunStandalone(hmtl.ProgramSensorData, reading); err != nil {
			h.logger.Debug("sensor reading not delivered", "sensor", reading.Type, "err", err)
		}
	}
}
