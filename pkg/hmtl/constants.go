// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hmtl provides a Go implementation of the HMTL message protocol.
//
// HMTL is a small binary protocol used by networked lighting and sensor
// modules. Every message starts with a fixed 8 byte header followed by a
// type specific payload. This package provides message decoding/encoding,
// serial framing, payload helpers, poll response formatting and a human
// readable formatter.
package hmtl

// Framing and versioning
const (
	StartCode   = 0xFC
	Version     = 2
	HeaderSize  = 8
	MaxMsgSize  = 255 // length is a single byte on the wire
	ConfigMagic = 0x5C
)

// Special addresses
const (
	AddressAny     uint16 = 0xFFFF // Broadcast
	AddressInvalid uint16 = 0xFFFE // Unset
)

// Message types
const (
	MsgTypeOutput     = 0x01
	MsgTypePoll       = 0x02
	MsgTypeSetAddr    = 0x03
	MsgTypeSensor     = 0x04
	MsgTypeDumpConfig = 0xE0
)

// Message flags
const (
	FlagAck      = 1 << 0
	FlagResponse = 1 << 1
	FlagMoreData = 1 << 2
	FlagError    = 1 << 3
)

// OutputKind identifies the payload carried by an OUTPUT message and the
// type of an output device.
type OutputKind uint8

// Output kinds, matching the module configuration types
const (
	OutputNone    OutputKind = 0x00
	OutputValue   OutputKind = 0x01
	OutputRGB     OutputKind = 0x02
	OutputProgram OutputKind = 0x03
	OutputPixels  OutputKind = 0x04
	OutputMPR121  OutputKind = 0x05
	OutputRS485   OutputKind = 0x06
	OutputXBee    OutputKind = 0x07
)

// OutputAll addresses every output of a module in an OUTPUT message
const OutputAll = 254

// Program type ids
const (
	ProgramNone        = 0x00
	ProgramBlink       = 0x01
	ProgramTimedChange = 0x02
	ProgramLevelValue  = 0x03
	ProgramSoundValue  = 0x04
	ProgramFade        = 0x05
	ProgramSparkle     = 0x06
	ProgramSensorData  = 0x10 // Out-of-band sensor delivery, never bound to an output
	ProgramBrightness  = 0x30
	ProgramColor       = 0x31
)

// Payload sizes
const (
	OutputHeaderSize   = 2
	ProgramDataMax     = 32
	ProgramConfigSize  = OutputHeaderSize + 1 + ProgramDataMax
	SetAddrPayloadSize = 4
	SensorEntryHeader  = 2
	PollResponseFixed  = 15 // config header (10) + object type + buffer size + msg version
)

// Sensor types carried in SENSOR payload entries
const (
	SensorLevel = 0x01
	SensorLight = 0x02
	SensorSound = 0x03
	SensorTouch = 0x04
)

// Serial text lines exchanged with a serial-attached controller
const (
	SerialReady = "ready"
	SerialAck   = "ok"
	SerialFail  = "fail"
)
