// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport provides the links a node exchanges HMTL messages over:
// addressable packet sockets (UDP, MQTT, WebSocket) and the serial line.
//
// Packet sockets wrap every HMTL message in a small CBOR envelope carrying
// the sender's address, the destination address and the message bytes.
// Each socket receives on its own goroutine and queues frames; Poll never
// blocks.
package transport

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"

	"github.com/Thermoquad/hmtlnode/internal/logging"
	"pkt.systems/pslog"
)

// Errors returned by sockets
var (
	ErrClosed   = errors.New("transport: socket closed")
	ErrTooLarge = errors.New("transport: message exceeds send buffer")
)

// Default sizes
const (
	DefaultSendBuffer = 128
	DefaultRecvLimit  = 128
	DefaultQueueSize  = 32
)

// Frame is a message received on a packet socket
type Frame struct {
	Source uint16
	Dest   uint16
	Data   []byte
}

// Socket is an addressable packet transport
type Socket interface {
	// Name identifies the socket in logs and metrics
	Name() string
	// SendCapacity is the largest message SendTo accepts
	SendCapacity() int
	// RecvLimit is the largest message accepted from the network
	RecvLimit() int
	// SourceAddress is the address this node sends from
	SourceAddress() uint16
	SetSourceAddress(address uint16)
	// SourceFromData returns the address replies to frame should go to
	SourceFromData(frame *Frame) uint16
	SendTo(dest uint16, data []byte) error
	// Poll returns a queued frame, or nil when nothing is pending
	Poll() (*Frame, error)
	Close() error
}

// Line is a byte stream link such as a serial port
type Line interface {
	io.Reader
	io.Writer
	io.Closer
}

// SocketOptions are the settings shared by every packet socket
type SocketOptions struct {
	Name       string
	Source     uint16
	SendBuffer int
	RecvLimit  int
	QueueSize  int
	Logger     pslog.Logger
}

// packetSocket holds the state common to packet sockets: addressing,
// limits and the receive queue filled by the reader goroutine.
type packetSocket struct {
	name         string
	sendCapacity int
	recvLimit    int
	origin       uint32
	logger       pslog.Logger

	mu     sync.Mutex
	source uint16

	frames    chan *Frame
	closeOnce sync.Once
	closed    chan struct{}
}

func newPacketSocket(kind string, opts SocketOptions) *packetSocket {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	if opts.RecvLimit <= 0 {
		opts.RecvLimit = DefaultRecvLimit
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Name == "" {
		opts.Name = kind
	}
	return &packetSocket{
		name:         opts.Name,
		sendCapacity: opts.SendBuffer,
		recvLimit:    opts.RecvLimit,
		origin:       rand.Uint32(),
		logger:       logging.OrDiscard(opts.Logger).With("socket", opts.Name),
		source:       opts.Source,
		frames:       make(chan *Frame, opts.QueueSize),
		closed:       make(chan struct{}),
	}
}

func (p *packetSocket) Name() string      { return p.name }
func (p *packetSocket) SendCapacity() int { return p.sendCapacity }
func (p *packetSocket) RecvLimit() int    { return p.recvLimit }

func (p *packetSocket) SourceAddress() uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source
}

func (p *packetSocket) SetSourceAddress(address uint16) {
	p.mu.Lock()
	p.source = address
	p.mu.Unlock()
}

func (p *packetSocket) SourceFromData(frame *Frame) uint16 {
	return frame.Source
}

func (p *packetSocket) Poll() (*Frame, error) {
	select {
	case f := <-p.frames:
		return f, nil
	default:
	}
	select {
	case <-p.closed:
		return nil, ErrClosed
	default:
		return nil, nil
	}
}

// seal checks a message against the send buffer and wraps it for the wire
func (p *packetSocket) seal(dest uint16, data []byte) ([]byte, error) {
	select {
	case <-p.closed:
		return nil, ErrClosed
	default:
	}
	if len(data) > p.sendCapacity {
		return nil, fmt.Errorf("%w: %d bytes (capacity %d)", ErrTooLarge, len(data), p.sendCapacity)
	}
	return EncodeEnvelope(Envelope{
		Source: p.SourceAddress(),
		Dest:   dest,
		Data:   data,
		Origin: p.origin,
	})
}

// deliver decodes a datagram from the network and queues it. Our own
// datagrams, malformed envelopes and oversized messages are dropped, as are
// frames arriving while the queue is full.
func (p *packetSocket) deliver(data []byte) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		p.logger.Warn("envelope dropped", "err", err, "len", len(data))
		return
	}
	if env.Origin == p.origin {
		return
	}
	if len(env.Data) > p.recvLimit {
		p.logger.Warn("frame dropped", "reason", "recv_limit", "len", len(env.Data), "limit", p.recvLimit)
		return
	}
	frame := &Frame{Source: env.Source, Dest: env.Dest, Data: env.Data}
	select {
	case p.frames <- frame:
	default:
		p.logger.Warn("frame dropped", "reason", "queue_full", "source", env.Source)
	}
}

// markClosed reports whether this call closed the socket
func (p *packetSocket) markClosed() bool {
	first := false
	p.closeOnce.Do(func() {
		close(p.closed)
		first = true
	})
	return first
}
