// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hmtl

import (
	"fmt"
	"strings"
)

// FormatMessage formats a message into a human-readable string
func FormatMessage(m *Message) string {
	result := fmt.Sprintf("%s (0x%02X) addr=%s len=%d ver=%d flags=%s\n",
		FormatMessageType(m.Type), m.Type, FormatAddress(m.Address), m.Length, m.Version, FormatFlags(m.Flags))
	return result + FormatPayload(m)
}

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(msgType uint8) string {
	switch msgType {
	case MsgTypeOutput:
		return "OUTPUT"
	case MsgTypePoll:
		return "POLL"
	case MsgTypeSetAddr:
		return "SET_ADDR"
	case MsgTypeSensor:
		return "SENSOR"
	case MsgTypeDumpConfig:
		return "DUMPCONFIG"
	default:
		return "UNKNOWN"
	}
}

// FormatFlags returns flag names joined by '|', or "-" when none are set
func FormatFlags(flags uint8) string {
	names := []string{}
	if flags&FlagAck != 0 {
		names = append(names, "ACK")
	}
	if flags&FlagResponse != 0 {
		names = append(names, "RESPONSE")
	}
	if flags&FlagMoreData != 0 {
		names = append(names, "MORE_DATA")
	}
	if flags&FlagError != 0 {
		names = append(names, "ERROR")
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, "|")
}

// FormatAddress renders an address, naming the reserved values
func FormatAddress(address uint16) string {
	switch address {
	case AddressAny:
		return "ANY"
	case AddressInvalid:
		return "INVALID"
	default:
		return fmt.Sprintf("%d", address)
	}
}

// FormatOutputKind returns the human-readable name for an output kind
func FormatOutputKind(kind OutputKind) string {
	switch kind {
	case OutputNone:
		return "none"
	case OutputValue:
		return "value"
	case OutputRGB:
		return "rgb"
	case OutputProgram:
		return "program"
	case OutputPixels:
		return "pixels"
	case OutputMPR121:
		return "mpr121"
	case OutputRS485:
		return "rs485"
	case OutputXBee:
		return "xbee"
	default:
		return "unknown"
	}
}

// FormatProgramType returns the human-readable name for a program type
func FormatProgramType(program uint8) string {
	switch program {
	case ProgramNone:
		return "none"
	case ProgramBlink:
		return "blink"
	case ProgramTimedChange:
		return "timed_change"
	case ProgramLevelValue:
		return "level_value"
	case ProgramSoundValue:
		return "sound_value"
	case ProgramFade:
		return "fade"
	case ProgramSparkle:
		return "sparkle"
	case ProgramSensorData:
		return "sensor_data"
	case ProgramBrightness:
		return "brightness"
	case ProgramColor:
		return "color"
	default:
		return fmt.Sprintf("program_0x%02X", program)
	}
}

// FormatPayload formats the payload based on message type
func FormatPayload(m *Message) string {
	switch m.Type {
	case MsgTypeOutput:
		hdr, err := DecodeOutputHeader(m)
		if err != nil {
			return fmt.Sprintf("  (malformed: %v)\n", err)
		}
		switch hdr.Kind {
		case OutputValue:
			if v, err := DecodeValue(m); err == nil {
				return fmt.Sprintf("  Output: %s, Value: %d\n", formatOutputIndex(hdr.Output), v.Value)
			}
		case OutputRGB:
			if v, err := DecodeRGB(m); err == nil {
				return fmt.Sprintf("  Output: %s, RGB: %d,%d,%d\n", formatOutputIndex(hdr.Output), v.Color[0], v.Color[1], v.Color[2])
			}
		case OutputProgram:
			if cfg, err := DecodeProgramConfig(m); err == nil {
				return fmt.Sprintf("  Output: %s, Program: %s (0x%02X)\n%s",
					formatOutputIndex(cfg.Output), FormatProgramType(cfg.Type), cfg.Type, hexDump(cfg.Data))
			}
		}
		return fmt.Sprintf("  Output: %s, Kind: %s\n%s", formatOutputIndex(hdr.Output), FormatOutputKind(hdr.Kind), hexDump(m.Payload()))

	case MsgTypePoll:
		if len(m.Payload()) == 0 {
			return "  (no payload)\n"
		}
		r, err := DecodePollResponse(m)
		if err != nil {
			return fmt.Sprintf("  (malformed: %v)\n", err)
		}
		kinds := make([]string, 0, len(r.Outputs))
		for _, k := range r.Outputs {
			kinds = append(kinds, FormatOutputKind(k))
		}
		return fmt.Sprintf("  Device: %d, Address: %s, Object: %d, Protocol: %d, Hardware: %d, Baud: %d, Buffer: %d\n  Outputs (%d): %s\n",
			r.DeviceID, FormatAddress(r.Address), r.ObjectType, r.ProtocolVersion, r.HardwareVersion, r.Baud, r.RecvLimit,
			r.NumOutputs, strings.Join(kinds, ", "))

	case MsgTypeSetAddr:
		sa, err := DecodeSetAddress(m)
		if err != nil {
			return fmt.Sprintf("  (malformed: %v)\n", err)
		}
		return fmt.Sprintf("  Device: %d, New Address: %s\n", sa.DeviceID, FormatAddress(sa.Address))

	case MsgTypeSensor:
		readings := SensorReadings(m)
		if len(readings) == 0 {
			return "  (no readings)\n"
		}
		var sb strings.Builder
		for _, r := range readings {
			sb.WriteString(fmt.Sprintf("  Sensor %s: %d (%d bytes)\n", formatSensorType(r.Type), r.Uint16(), len(r.Data)))
		}
		return sb.String()
	}

	return hexDump(m.Payload())
}

func formatOutputIndex(output uint8) string {
	if output == OutputAll {
		return "ALL"
	}
	return fmt.Sprintf("%d", output)
}

func formatSensorType(t uint8) string {
	switch t {
	case SensorLevel:
		return "LEVEL"
	case SensorLight:
		return "LIGHT"
	case SensorSound:
		return "SOUND"
	case SensorTouch:
		return "TOUCH"
	default:
		return fmt.Sprintf("0x%02X", t)
	}
}

// hexDump renders bytes 16 per line
func hexDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	result := "  Payload: "
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			result += "\n           "
		}
		result += fmt.Sprintf("%02X ", b)
	}
	return result + "\n"
}
