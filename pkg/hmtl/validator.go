// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hmtl

import "fmt"

// AnomalyType represents different types of message anomalies
type AnomalyType int

const (
	AnomalyVersion AnomalyType = iota
	AnomalyUnknownType
	AnomalyLengthMismatch
	AnomalyInvalidValue
)

// ValidationError represents a message validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateMessage checks a decoded message for protocol anomalies.
// Returns a slice of validation errors (empty if the message is valid)
func ValidateMessage(m *Message) []ValidationError {
	errors := []ValidationError{}

	if m.Version != Version {
		errors = append(errors, ValidationError{
			Type:    AnomalyVersion,
			Message: fmt.Sprintf("Unsupported version=%d (expected %d)", m.Version, Version),
			Details: map[string]interface{}{"version": m.Version, "expected": Version},
		})
	}

	switch m.Type {
	case MsgTypeOutput:
		errors = append(errors, validateOutput(m)...)
	case MsgTypeSetAddr:
		if len(m.Payload()) < SetAddrPayloadSize {
			errors = append(errors, lengthError("SET_ADDR", len(m.Payload()), SetAddrPayloadSize))
		}
	case MsgTypeSensor:
		errors = append(errors, validateSensor(m)...)
	case MsgTypePoll, MsgTypeDumpConfig:
	default:
		errors = append(errors, ValidationError{
			Type:    AnomalyUnknownType,
			Message: fmt.Sprintf("Unknown message type=0x%02X", m.Type),
			Details: map[string]interface{}{"type": m.Type},
		})
	}

	return errors
}

func validateOutput(m *Message) []ValidationError {
	hdr, err := DecodeOutputHeader(m)
	if err != nil {
		return []ValidationError{lengthError("OUTPUT", len(m.Payload()), OutputHeaderSize)}
	}

	need := OutputHeaderSize
	switch hdr.Kind {
	case OutputValue:
		need += 2
	case OutputRGB:
		need += 3
	case OutputProgram:
		need++
	default:
		return []ValidationError{{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("Unsupported output kind=%d", hdr.Kind),
			Details: map[string]interface{}{"kind": hdr.Kind},
		}}
	}
	if len(m.Payload()) < need {
		return []ValidationError{lengthError("OUTPUT "+FormatOutputKind(hdr.Kind), len(m.Payload()), need)}
	}
	return nil
}

func validateSensor(m *Message) []ValidationError {
	consumed := 0
	for _, r := range SensorReadings(m) {
		consumed += SensorEntryHeader + len(r.Data)
	}
	if consumed != len(m.Payload()) {
		return []ValidationError{{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("SENSOR payload has %d trailing bytes", len(m.Payload())-consumed),
			Details: map[string]interface{}{"length": len(m.Payload()), "consumed": consumed},
		}}
	}
	return nil
}

func lengthError(what string, have, want int) ValidationError {
	return ValidationError{
		Type:    AnomalyLengthMismatch,
		Message: fmt.Sprintf("%s payload too short (expected %d bytes, got %d)", what, want, have),
		Details: map[string]interface{}{"length": have, "expected": want},
	}
}
