// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hmtl

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Decode errors
var (
	ErrShortMessage    = errors.New("hmtl: message shorter than header")
	ErrBadStartCode    = errors.New("hmtl: bad start code")
	ErrLengthMismatch  = errors.New("hmtl: header length does not match data")
	ErrPayloadTooShort = errors.New("hmtl: payload too short")
	ErrTooLarge        = errors.New("hmtl: message exceeds maximum size")
)

// Header is the fixed header carried by every HMTL message
type Header struct {
	StartCode uint8
	CRC       uint8
	Version   uint8
	Length    uint8
	Type      uint8
	Flags     uint8
	Address   uint16
}

// HasFlag reports whether all bits of flag are set
func (h Header) HasFlag(flag uint8) bool {
	return h.Flags&flag == flag
}

// IsBroadcast returns true if the message is addressed to all modules
func (h Header) IsBroadcast() bool {
	return h.Address == AddressAny
}

// Message is a decoded HMTL message. Raw holds exactly Header.Length bytes
// and is what gets forwarded unchanged between transports.
type Message struct {
	Header
	Raw []byte
}

// Payload returns the bytes following the header
func (m *Message) Payload() []byte {
	return m.Raw[HeaderSize:]
}

// Len returns the total message length in bytes
func (m *Message) Len() int {
	return len(m.Raw)
}

// DecodeHeader parses the fixed header at the start of data
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrShortMessage, len(data))
	}
	h := Header{
		StartCode: data[0],
		CRC:       data[1],
		Version:   data[2],
		Length:    data[3],
		Type:      data[4],
		Flags:     data[5],
		Address:   binary.LittleEndian.Uint16(data[6:8]),
	}
	if h.StartCode != StartCode {
		return Header{}, fmt.Errorf("%w: 0x%02X", ErrBadStartCode, h.StartCode)
	}
	return h, nil
}

// Decode parses a complete message. The header length must not exceed the
// available data; trailing bytes beyond the header length are ignored.
// The returned message owns a copy of the data.
func Decode(data []byte) (*Message, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	if int(h.Length) < HeaderSize || int(h.Length) > len(data) {
		return nil, fmt.Errorf("%w: header says %d, have %d", ErrLengthMismatch, h.Length, len(data))
	}
	raw := make([]byte, h.Length)
	copy(raw, data[:h.Length])
	return &Message{Header: h, Raw: raw}, nil
}

// EncodeHeader writes h into the first HeaderSize bytes of buf
func EncodeHeader(buf []byte, h Header) {
	buf[0] = h.StartCode
	buf[1] = h.CRC
	buf[2] = h.Version
	buf[3] = h.Length
	buf[4] = h.Type
	buf[5] = h.Flags
	binary.LittleEndian.PutUint16(buf[6:8], h.Address)
}

// NewMessage assembles a message from a type, flags, destination address
// and payload. Start code, version and length are filled in.
func NewMessage(msgType uint8, flags uint8, address uint16, payload []byte) (*Message, error) {
	total := HeaderSize + len(payload)
	if total > MaxMsgSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, total, MaxMsgSize)
	}
	h := Header{
		StartCode: StartCode,
		Version:   Version,
		Length:    uint8(total),
		Type:      msgType,
		Flags:     flags,
		Address:   address,
	}
	raw := make([]byte, total)
	EncodeHeader(raw, h)
	copy(raw[HeaderSize:], payload)
	return &Message{Header: h, Raw: raw}, nil
}
