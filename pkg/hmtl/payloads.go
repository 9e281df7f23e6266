// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hmtl

import (
	"encoding/binary"
	"fmt"
)

// OutputHeader is the sub-header at the start of every OUTPUT payload
type OutputHeader struct {
	Kind   OutputKind
	Output uint8
}

// DecodeOutputHeader reads the output sub-header of an OUTPUT message
func DecodeOutputHeader(m *Message) (OutputHeader, error) {
	p := m.Payload()
	if len(p) < OutputHeaderSize {
		return OutputHeader{}, fmt.Errorf("%w: output header needs %d bytes, have %d",
			ErrPayloadTooShort, OutputHeaderSize, len(p))
	}
	return OutputHeader{Kind: OutputKind(p[0]), Output: p[1]}, nil
}

// ValuePayload sets a single value output
type ValuePayload struct {
	OutputHeader
	Value uint16
}

// DecodeValue decodes a value OUTPUT message
func DecodeValue(m *Message) (ValuePayload, error) {
	hdr, err := DecodeOutputHeader(m)
	if err != nil {
		return ValuePayload{}, err
	}
	p := m.Payload()
	if len(p) < OutputHeaderSize+2 {
		return ValuePayload{}, fmt.Errorf("%w: value payload", ErrPayloadTooShort)
	}
	return ValuePayload{OutputHeader: hdr, Value: binary.LittleEndian.Uint16(p[2:4])}, nil
}

// RGBPayload sets an RGB output
type RGBPayload struct {
	OutputHeader
	Color [3]uint8
}

// DecodeRGB decodes an RGB OUTPUT message
func DecodeRGB(m *Message) (RGBPayload, error) {
	hdr, err := DecodeOutputHeader(m)
	if err != nil {
		return RGBPayload{}, err
	}
	p := m.Payload()
	if len(p) < OutputHeaderSize+3 {
		return RGBPayload{}, fmt.Errorf("%w: rgb payload", ErrPayloadTooShort)
	}
	return RGBPayload{OutputHeader: hdr, Color: [3]uint8{p[2], p[3], p[4]}}, nil
}

// ProgramConfig is a program-configuration record carried by an OUTPUT
// message whose output kind is OutputProgram.
type ProgramConfig struct {
	Output uint8
	Type   uint8
	Data   []byte // Program specific parameters, at most ProgramDataMax bytes
}

// DecodeProgramConfig decodes the program-configuration payload of an
// OUTPUT message. Missing parameter bytes are treated as zero by the
// parameter accessors.
func DecodeProgramConfig(m *Message) (*ProgramConfig, error) {
	hdr, err := DecodeOutputHeader(m)
	if err != nil {
		return nil, err
	}
	if hdr.Kind != OutputProgram {
		return nil, fmt.Errorf("hmtl: output kind %d is not a program", hdr.Kind)
	}
	p := m.Payload()
	if len(p) < OutputHeaderSize+1 {
		return nil, fmt.Errorf("%w: program type missing", ErrPayloadTooShort)
	}
	data := p[OutputHeaderSize+1:]
	if len(data) > ProgramDataMax {
		data = data[:ProgramDataMax]
	}
	cfg := &ProgramConfig{Output: hdr.Output, Type: p[OutputHeaderSize]}
	cfg.Data = append([]byte(nil), data...)
	return cfg, nil
}

// Uint8 returns the parameter byte at offset, zero when out of range
func (c *ProgramConfig) Uint8(offset int) uint8 {
	if offset < 0 || offset >= len(c.Data) {
		return 0
	}
	return c.Data[offset]
}

// Uint16 returns the little-endian parameter at offset
func (c *ProgramConfig) Uint16(offset int) uint16 {
	return uint16(c.Uint8(offset)) | uint16(c.Uint8(offset+1))<<8
}

// Uint32 returns the little-endian parameter at offset
func (c *ProgramConfig) Uint32(offset int) uint32 {
	return uint32(c.Uint16(offset)) | uint32(c.Uint16(offset+2))<<16
}

// RGB returns three consecutive parameter bytes as a color
func (c *ProgramConfig) RGB(offset int) [3]uint8 {
	return [3]uint8{c.Uint8(offset), c.Uint8(offset + 1), c.Uint8(offset + 2)}
}

// SetAddress is the payload of a SET_ADDR message
type SetAddress struct {
	DeviceID uint16
	Address  uint16
}

// DecodeSetAddress decodes a SET_ADDR message
func DecodeSetAddress(m *Message) (SetAddress, error) {
	p := m.Payload()
	if len(p) < SetAddrPayloadSize {
		return SetAddress{}, fmt.Errorf("%w: set address needs %d bytes, have %d",
			ErrPayloadTooShort, SetAddrPayloadSize, len(p))
	}
	return SetAddress{
		DeviceID: binary.LittleEndian.Uint16(p[0:2]),
		Address:  binary.LittleEndian.Uint16(p[2:4]),
	}, nil
}

// SensorReading is one entry of a SENSOR payload
type SensorReading struct {
	Type uint8
	Data []byte
}

// Uint16 interprets the reading data as a little-endian value. Single byte
// readings are widened.
func (r SensorReading) Uint16() uint16 {
	switch len(r.Data) {
	case 0:
		return 0
	case 1:
		return uint16(r.Data[0])
	default:
		return binary.LittleEndian.Uint16(r.Data[:2])
	}
}

// SensorReadings iterates the readings packed into a SENSOR payload. The
// count is variable and iteration ends when the payload is exhausted; a
// truncated trailing entry is dropped.
func SensorReadings(m *Message) []SensorReading {
	p := m.Payload()
	var readings []SensorReading
	for offset := 0; offset+SensorEntryHeader <= len(p); {
		n := int(p[offset+1])
		start := offset + SensorEntryHeader
		if start+n > len(p) {
			break
		}
		readings = append(readings, SensorReading{
			Type: p[offset],
			Data: append([]byte(nil), p[start:start+n]...),
		})
		offset = start + n
	}
	return readings
}
