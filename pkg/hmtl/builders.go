// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hmtl

import (
	"encoding/binary"
	"fmt"
)

// Message builder functions create Message structs ready for transmission.
// These are convenience wrappers around NewMessage that lay out each payload
// the way modules expect it.

// NewValueMessage creates an OUTPUT message setting a value output
func NewValueMessage(address uint16, output uint8, value uint16) *Message {
	payload := make([]byte, OutputHeaderSize+2)
	payload[0] = byte(OutputValue)
	payload[1] = output
	binary.LittleEndian.PutUint16(payload[2:], value)
	return mustMessage(MsgTypeOutput, 0, address, payload)
}

// NewRGBMessage creates an OUTPUT message setting an RGB output
func NewRGBMessage(address uint16, output uint8, r, g, b uint8) *Message {
	payload := []byte{byte(OutputRGB), output, r, g, b}
	return mustMessage(MsgTypeOutput, 0, address, payload)
}

// NewProgramMessage creates an OUTPUT message configuring a program.
// Program data longer than ProgramDataMax bytes is rejected; shorter data is
// zero padded so that the message has the fixed program size.
func NewProgramMessage(address uint16, output uint8, program uint8, data []byte) (*Message, error) {
	if len(data) > ProgramDataMax {
		return nil, fmt.Errorf("program data must be at most %d bytes, got %d", ProgramDataMax, len(data))
	}
	payload := make([]byte, ProgramConfigSize)
	payload[0] = byte(OutputProgram)
	payload[1] = output
	payload[2] = program
	copy(payload[3:], data)
	return NewMessage(MsgTypeOutput, 0, address, payload)
}

// NewProgramNoneMessage creates a program message that clears an output
func NewProgramNoneMessage(address uint16, output uint8) *Message {
	msg, _ := NewProgramMessage(address, output, ProgramNone, nil)
	return msg
}

// NewBlinkMessage creates a blink program message.
// The output alternates between on and off colors for the given periods.
func NewBlinkMessage(address uint16, output uint8, onPeriod uint16, on [3]uint8, offPeriod uint16, off [3]uint8) *Message {
	data := make([]byte, 10)
	binary.LittleEndian.PutUint16(data[0:], onPeriod)
	copy(data[2:5], on[:])
	binary.LittleEndian.PutUint16(data[5:], offPeriod)
	copy(data[7:10], off[:])
	msg, _ := NewProgramMessage(address, output, ProgramBlink, data)
	return msg
}

// NewTimedChangeMessage creates a timed change program message.
// The output shows start until period elapses, then stop.
func NewTimedChangeMessage(address uint16, output uint8, periodMs uint32, start, stop [3]uint8) *Message {
	data := make([]byte, 10)
	binary.LittleEndian.PutUint32(data[0:], periodMs)
	copy(data[4:7], start[:])
	copy(data[7:10], stop[:])
	msg, _ := NewProgramMessage(address, output, ProgramTimedChange, data)
	return msg
}

// NewFadeMessage creates a fade program message.
// The output fades linearly from start to stop over period.
func NewFadeMessage(address uint16, output uint8, periodMs uint32, start, stop [3]uint8, flags uint8) *Message {
	data := make([]byte, 11)
	binary.LittleEndian.PutUint32(data[0:], periodMs)
	copy(data[4:7], start[:])
	copy(data[7:10], stop[:])
	data[10] = flags
	msg, _ := NewProgramMessage(address, output, ProgramFade, data)
	return msg
}

// NewColorMessage creates a static color program message
func NewColorMessage(address uint16, output uint8, r, g, b uint8) *Message {
	msg, _ := NewProgramMessage(address, output, ProgramColor, []byte{r, g, b})
	return msg
}

// NewPollMessage creates a POLL request.
// Modules respond with a POLL response describing themselves.
func NewPollMessage(address uint16) *Message {
	return mustMessage(MsgTypePoll, FlagResponse, address, nil)
}

// NewSetAddressMessage creates a SET_ADDR message.
// A deviceID of zero matches every module that receives it.
func NewSetAddressMessage(address uint16, deviceID uint16, newAddress uint16) *Message {
	payload := make([]byte, SetAddrPayloadSize)
	binary.LittleEndian.PutUint16(payload[0:], deviceID)
	binary.LittleEndian.PutUint16(payload[2:], newAddress)
	return mustMessage(MsgTypeSetAddr, 0, address, payload)
}

// NewSensorMessage creates a SENSOR message carrying readings.
// Sensor responses carry the ACK flag.
func NewSensorMessage(address uint16, flags uint8, readings ...SensorReading) (*Message, error) {
	var payload []byte
	for _, r := range readings {
		if len(r.Data) > 255 {
			return nil, fmt.Errorf("sensor reading too large: %d bytes", len(r.Data))
		}
		payload = append(payload, r.Type, uint8(len(r.Data)))
		payload = append(payload, r.Data...)
	}
	return NewMessage(MsgTypeSensor, flags, address, payload)
}

// mustMessage builds messages whose size is fixed and known to fit
func mustMessage(msgType, flags uint8, address uint16, payload []byte) *Message {
	msg, err := NewMessage(msgType, flags, address, payload)
	if err != nil {
		panic(fmt.Sprintf("hmtl: build error: %v", err))
	}
	return msg
}
