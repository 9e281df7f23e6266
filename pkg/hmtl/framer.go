// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hmtl

import "fmt"

// Framer states (internal)
const (
	frameIdle = iota
	frameHeader
	frameBody
)

// Framer assembles HMTL messages from a serial byte stream. Bytes before a
// start code are skipped. A header whose length is smaller than the header
// or larger than the framer buffer resets the framer.
type Framer struct {
	state  int
	buffer []byte
	offset int
	length int
}

// NewFramer creates a framer that accepts messages up to size bytes
func NewFramer(size int) *Framer {
	if size <= 0 || size > MaxMsgSize {
		size = MaxMsgSize
	}
	return &Framer{buffer: make([]byte, size)}
}

// Reset discards any partially received message
func (f *Framer) Reset() {
	f.state = frameIdle
	f.offset = 0
	f.length = 0
}

// Offset returns the number of bytes of the current partial message
func (f *Framer) Offset() int {
	return f.offset
}

// FeedByte processes a single byte. It returns a completed message, or nil
// if the message is incomplete. An error is returned when the byte stream
// cannot form a valid message; the framer is reset in that case.
func (f *Framer) FeedByte(b byte) (*Message, error) {
	switch f.state {
	case frameIdle:
		if b != StartCode {
			return nil, nil
		}
		f.buffer[0] = b
		f.offset = 1
		f.state = frameHeader
		return nil, nil

	case frameHeader:
		f.buffer[f.offset] = b
		f.offset++
		if f.offset == 4 {
			f.length = int(b)
			if f.length < HeaderSize || f.length > len(f.buffer) {
				f.Reset()
				return nil, fmt.Errorf("invalid length: %d (min %d, max %d)", b, HeaderSize, len(f.buffer))
			}
		}
		if f.offset == HeaderSize {
			if f.length == HeaderSize {
				return f.complete()
			}
			f.state = frameBody
		}
		return nil, nil

	case frameBody:
		f.buffer[f.offset] = b
		f.offset++
		if f.offset >= f.length {
			return f.complete()
		}
		return nil, nil

	default:
		f.Reset()
		return nil, fmt.Errorf("invalid state: %d", f.state)
	}
}

// Feed processes bytes until a message completes. It returns the message
// and the number of bytes consumed; remaining bytes must be fed again.
func (f *Framer) Feed(data []byte) (*Message, int, error) {
	for i, b := range data {
		msg, err := f.FeedByte(b)
		if err != nil {
			return nil, i + 1, err
		}
		if msg != nil {
			return msg, i + 1, nil
		}
	}
	return nil, len(data), nil
}

func (f *Framer) complete() (*Message, error) {
	msg, err := Decode(f.buffer[:f.length])
	f.Reset()
	return msg, err
}
