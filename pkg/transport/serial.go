// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
)

// SerialLine wraps a serial port
type SerialLine struct {
	port serial.Port
}

func (s *SerialLine) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialLine) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialLine) Close() error {
	return s.port.Close()
}

// OpenSerial opens a serial port at 8N1
func OpenSerial(portName string, baudRate int) (*SerialLine, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return &SerialLine{port: port}, nil
}

// ByteQueue reads a line on its own goroutine so that bytes can be taken
// without blocking
type ByteQueue struct {
	chunks  chan []byte
	pending []byte

	errOnce sync.Once
	err     error
	done    chan struct{}
}

// NewByteQueue starts reading r in chunks of up to chunkSize bytes
func NewByteQueue(r io.Reader, chunkSize int) *ByteQueue {
	if chunkSize <= 0 {
		chunkSize = DefaultRecvLimit
	}
	q := &ByteQueue{
		chunks: make(chan []byte, DefaultQueueSize),
		done:   make(chan struct{}),
	}
	go q.readLoop(r, chunkSize)
	return q
}

func (q *ByteQueue) readLoop(r io.Reader, chunkSize int) {
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			q.chunks <- append([]byte(nil), buf[:n]...)
		}
		if err != nil {
			q.errOnce.Do(func() {
				q.err = err
				close(q.done)
			})
			return
		}
	}
}

// ReadByte returns the next received byte, or false when none is pending
func (q *ByteQueue) ReadByte() (byte, bool) {
	if len(q.pending) == 0 {
		select {
		case chunk := <-q.chunks:
			q.pending = chunk
		default:
			return 0, false
		}
	}
	b := q.pending[0]
	q.pending = q.pending[1:]
	return b, true
}

// Err returns the error that stopped the reader once every byte read
// before it has been taken
func (q *ByteQueue) Err() error {
	select {
	case <-q.done:
	default:
		return nil
	}
	if len(q.pending) > 0 || len(q.chunks) > 0 {
		return nil
	}
	return q.err
}
