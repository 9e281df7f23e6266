// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package handler

import (
	"errors"

	"github.com/Thermoquad/hmtlnode/pkg/hmtl"
	"github.com/Thermoquad/hmtlnode/pkg/transport"
)

var (
	serialAckLine   = []byte(hmtl.SerialAck + "\n")
	serialReadyLine = []byte(hmtl.SerialReady + "\n")
)

// CheckSerial takes pending serial bytes until a message completes, then
// acknowledges it, forwards it to the sockets and processes it. Bytes after
// the message stay queued for the next call.
func (h *Handler) CheckSerial() bool {
	if h.serialIn == nil {
		return false
	}
	for {
		b, ok := h.serialIn.ReadByte()
		if !ok {
			h.checkSerialErr()
			return false
		}
		msg, err := h.framer.FeedByte(b)
		if err != nil {
			h.logger.Warn("serial framing error", "err", err)
			continue
		}
		if msg == nil {
			continue
		}

		h.stats.Received++
		h.metrics.MessageReceived("serial")
		h.writeSerial(serialAckLine)
		for _, s := range h.sockets {
			h.CheckAndForward(msg, s)
		}
		updated := h.Process(msg, nil, nil)
		h.lastSerial = h.now()
		return updated
	}
}

// checkSerialErr records and reports a failed serial line once
func (h *Handler) checkSerialErr() {
	if h.serialErr != nil {
		return
	}
	if err := h.serialIn.Err(); err != nil {
		h.serialErr = err
		h.logger.Warn("serial line lost", "err", err)
	}
}

// CheckSocket takes one pending frame from sock and processes it
func (h *Handler) CheckSocket(sock transport.Socket) bool {
	frame, err := sock.Poll()
	if err != nil {
		if !errors.Is(err, transport.ErrClosed) {
			h.logger.Warn("socket poll failed", "socket", sock.Name(), "err", err)
		}
		return false
	}
	if frame == nil {
		return false
	}

	h.stats.Received++
	h.metrics.MessageReceived(sock.Name())
	msg, err := hmtl.Decode(frame.Data)
	if err != nil {
		h.stats.Dropped++
		h.metrics.MessageDropped("malformed")
		h.logger.Warn("socket message dropped", "socket", sock.Name(), "source", frame.Source, "err", err)
		return false
	}
	return h.Process(msg, sock, frame)
}

// Check polls the serial line and then every socket once
func (h *Handler) Check() bool {
	updated := h.CheckSerial()
	for _, s := range h.sockets {
		if h.CheckSocket(s) {
			updated = true
		}
	}
	return updated
}

// CheckAndForward sends msg on sock unless it is addressed to this node
// alone. Messages larger than the socket's send buffer are skipped.
func (h *Handler) CheckAndForward(msg *hmtl.Message, sock transport.Socket) bool {
	if msg.Address == h.address && !msg.IsBroadcast() {
		return false
	}
	if msg.Len() > sock.SendCapacity() {
		h.stats.Skipped++
		h.metrics.ForwardSkipped(sock.Name())
		h.logger.Warn("forward skipped", "socket", sock.Name(), "len", msg.Len(), "capacity", sock.SendCapacity())
		return false
	}
	if err := sock.SendTo(msg.Address, msg.Raw); err != nil {
		h.logger.Warn("forward failed", "socket", sock.Name(), "address", msg.Address, "err", err)
		return false
	}
	h.stats.Forwarded++
	h.metrics.MessageForwarded(sock.Name())
	h.logger.Debug("message forwarded", "socket", sock.Name(), "address", hmtl.FormatAddress(msg.Address), "len", msg.Len())
	return true
}

// SerialReady announces the node on the serial line when nothing has been
// received recently and the last announcement is old enough
func (h *Handler) SerialReady() {
	if h.serial == nil {
		return
	}
	now := h.now()
	quiet := h.lastSerial.IsZero() || now.Sub(h.lastSerial) > h.cfg.ReadyThreshold
	due := h.lastReady.IsZero() || now.Sub(h.lastReady) > h.cfg.ReadyResend
	if quiet && due {
		if h.writeSerial(serialReadyLine) {
			h.lastReady = now
		}
	}
}
