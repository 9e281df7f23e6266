// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hmtl

import (
	"encoding/binary"
	"fmt"
)

// ModuleInfo describes the module answering a POLL
type ModuleInfo struct {
	ProtocolVersion uint8
	HardwareVersion uint8
	Baud            int
	Flags           uint8
	DeviceID        uint16
	Address         uint16
	ObjectType      uint16
	RecvLimit       uint16
	Outputs         []OutputKind
}

// PollResponse is a decoded POLL response payload
type PollResponse struct {
	ModuleInfo
	NumOutputs uint8
	MsgVersion uint8
}

// FormatPollResponse writes a POLL response addressed to dest into buf and
// returns its length. The fixed part must fit; output kinds are appended as
// far as buf and the maximum message size allow.
func FormatPollResponse(buf []byte, dest uint16, reqFlags uint8, info ModuleInfo) (int, error) {
	limit := len(buf)
	if limit > MaxMsgSize {
		limit = MaxMsgSize
	}
	need := HeaderSize + PollResponseFixed
	if limit < need {
		return 0, fmt.Errorf("hmtl: poll response needs %d bytes, buffer has %d", need, limit)
	}

	p := buf[HeaderSize:]
	p[0] = ConfigMagic
	p[1] = info.ProtocolVersion
	p[2] = info.HardwareVersion
	p[3] = uint8(info.Baud / 1200)
	p[4] = uint8(len(info.Outputs))
	p[5] = info.Flags
	binary.LittleEndian.PutUint16(p[6:8], info.DeviceID)
	binary.LittleEndian.PutUint16(p[8:10], info.Address)
	binary.LittleEndian.PutUint16(p[10:12], info.ObjectType)
	binary.LittleEndian.PutUint16(p[12:14], info.RecvLimit)
	p[14] = Version

	n := need
	for _, kind := range info.Outputs {
		if n >= limit {
			break
		}
		buf[n] = byte(kind)
		n++
	}

	EncodeHeader(buf, Header{
		StartCode: StartCode,
		Version:   Version,
		Length:    uint8(n),
		Type:      MsgTypePoll,
		Flags:     reqFlags | FlagAck,
		Address:   dest,
	})
	return n, nil
}

// DecodePollResponse decodes the payload of a POLL response
func DecodePollResponse(m *Message) (*PollResponse, error) {
	p := m.Payload()
	if len(p) < PollResponseFixed {
		return nil, fmt.Errorf("%w: poll response needs %d bytes, have %d",
			ErrPayloadTooShort, PollResponseFixed, len(p))
	}
	if p[0] != ConfigMagic {
		return nil, fmt.Errorf("hmtl: bad config magic 0x%02X", p[0])
	}
	r := &PollResponse{
		ModuleInfo: ModuleInfo{
			ProtocolVersion: p[1],
			HardwareVersion: p[2],
			Baud:            int(p[3]) * 1200,
			Flags:           p[5],
			DeviceID:        binary.LittleEndian.Uint16(p[6:8]),
			Address:         binary.LittleEndian.Uint16(p[8:10]),
			ObjectType:      binary.LittleEndian.Uint16(p[10:12]),
			RecvLimit:       binary.LittleEndian.Uint16(p[12:14]),
		},
		NumOutputs: p[4],
		MsgVersion: p[14],
	}
	for _, b := range p[PollResponseFixed:] {
		r.Outputs = append(r.Outputs, OutputKind(b))
	}
	return r, nil
}
