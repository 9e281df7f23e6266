// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// envelopeOverhead covers the CBOR framing around a message
const envelopeOverhead = 32

// Read failure handling. The retry delay doubles from readRetryMin up to
// readRetryMax; maxReadFailures failures in a row stop the socket.
const (
	readRetryMin    = 10 * time.Millisecond
	readRetryMax    = time.Second
	maxReadFailures = 10
)

// UDPSocket exchanges envelopes as UDP datagrams. Every send goes to the
// broadcast address; receivers filter by the envelope destination.
type UDPSocket struct {
	*packetSocket
	conn      *net.UDPConn
	broadcast *net.UDPAddr
}

// ListenUDP binds listen (host:port) and sends to broadcast (host:port)
func ListenUDP(listen, broadcast string, opts SocketOptions) (*UDPSocket, error) {
	laddr, err := net.ResolveUDPAddr("udp", listen)
	if err != nil {
		return nil, fmt.Errorf("invalid listen address %q: %w", listen, err)
	}
	baddr, err := net.ResolveUDPAddr("udp", broadcast)
	if err != nil {
		return nil, fmt.Errorf("invalid broadcast address %q: %w", broadcast, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", listen, err)
	}

	s := &UDPSocket{
		packetSocket: newPacketSocket("udp", opts),
		conn:         conn,
		broadcast:    baddr,
	}
	go s.readLoop()
	s.logger.Info("udp socket listening", "listen", conn.LocalAddr().String(), "broadcast", baddr.String())
	return s, nil
}

// LocalAddr returns the bound address
func (s *UDPSocket) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// SendTo broadcasts data addressed to dest
func (s *UDPSocket) SendTo(dest uint16, data []byte) error {
	datagram, err := s.seal(dest, data)
	if err != nil {
		return err
	}
	if _, err := s.conn.WriteToUDP(datagram, s.broadcast); err != nil {
		return fmt.Errorf("udp send failed: %w", err)
	}
	return nil
}

// Close stops the reader and releases the port
func (s *UDPSocket) Close() error {
	if !s.markClosed() {
		return nil
	}
	return s.conn.Close()
}

func (s *UDPSocket) readLoop() {
	read := func(buf []byte) (int, error) {
		n, _, err := s.conn.ReadFromUDP(buf)
		return n, err
	}
	if s.readDatagrams(read, s.recvLimit+envelopeOverhead, time.Sleep) {
		s.Close()
	}
}

// readDatagrams delivers what read returns until the connection is closed.
// It reports true when it gave up after repeated read failures.
func (p *packetSocket) readDatagrams(read func([]byte) (int, error), size int, sleep func(time.Duration)) bool {
	buf := make([]byte, size)
	failures := 0
	delay := readRetryMin
	for {
		n, err := read(buf)
		if err == nil {
			failures, delay = 0, readRetryMin
			p.deliver(append([]byte(nil), buf[:n]...))
			continue
		}
		if errors.Is(err, net.ErrClosed) {
			return false
		}

		failures++
		if failures >= maxReadFailures {
			p.logger.Error("read failed, socket stopped", "err", err, "failures", failures)
			return true
		}
		p.logger.Warn("read failed", "err", err, "retry", delay)
		sleep(delay)
		delay = min(delay*2, readRetryMax)
	}
}
