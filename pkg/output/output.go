// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package output models the output devices of a node and applies OUTPUT
// messages to them.
package output

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/hmtlnode/pkg/hmtl"
)

// Errors returned by HandleMessage
var (
	ErrInvalidOutput = errors.New("output: invalid output")
	ErrKindMismatch  = errors.New("output: message kind does not match output")
)

// Device is an output device bound to a slot. Programs drive every device
// through SetColor; each device maps the color onto its own hardware.
type Device interface {
	Kind() hmtl.OutputKind
	SetColor(color [3]uint8)
	String() string
}

// changeTracker is implemented by devices that remember whether they were
// written since the last flush
type changeTracker interface {
	takeChanged() bool
}

// ValueOutput is a single channel output such as a PWM pin
type ValueOutput struct {
	Pin     int
	value   uint16
	changed bool
}

// NewValueOutput creates a value output with an initial value
func NewValueOutput(pin int, value uint16) *ValueOutput {
	return &ValueOutput{Pin: pin, value: value, changed: true}
}

func (v *ValueOutput) Kind() hmtl.OutputKind { return hmtl.OutputValue }

// Value returns the current output value
func (v *ValueOutput) Value() uint16 { return v.value }

// SetValue sets the output value
func (v *ValueOutput) SetValue(value uint16) {
	if v.value != value {
		v.value = value
		v.changed = true
	}
}

// SetColor drives a value output from the first color channel
func (v *ValueOutput) SetColor(color [3]uint8) {
	v.SetValue(uint16(color[0]))
}

func (v *ValueOutput) String() string {
	return fmt.Sprintf("value pin=%d value=%d", v.Pin, v.value)
}

func (v *ValueOutput) takeChanged() bool {
	c := v.changed
	v.changed = false
	return c
}

// RGBOutput is a three channel color output
type RGBOutput struct {
	Pins    [3]int
	color   [3]uint8
	changed bool
}

// NewRGBOutput creates an RGB output with an initial color
func NewRGBOutput(pins [3]int, color [3]uint8) *RGBOutput {
	return &RGBOutput{Pins: pins, color: color, changed: true}
}

func (o *RGBOutput) Kind() hmtl.OutputKind { return hmtl.OutputRGB }

// Color returns the current color
func (o *RGBOutput) Color() [3]uint8 { return o.color }

func (o *RGBOutput) SetColor(color [3]uint8) {
	if o.color != color {
		o.color = color
		o.changed = true
	}
}

func (o *RGBOutput) String() string {
	return fmt.Sprintf("rgb pins=%d,%d,%d color=%d,%d,%d",
		o.Pins[0], o.Pins[1], o.Pins[2], o.color[0], o.color[1], o.color[2])
}

func (o *RGBOutput) takeChanged() bool {
	c := o.changed
	o.changed = false
	return c
}

// Table holds the output slots of a node. A nil device marks an unbound
// slot. Objects carries an optional per-slot context passed to programs.
type Table struct {
	Devices []Device
	Objects []any
}

// NewTable creates a table with one slot per device
func NewTable(devices ...Device) *Table {
	return &Table{Devices: devices, Objects: make([]any, len(devices))}
}

// Len returns the number of slots
func (t *Table) Len() int {
	return len(t.Devices)
}

// Device returns the device at slot i, or nil when out of range or unbound
func (t *Table) Device(i int) Device {
	if i < 0 || i >= len(t.Devices) {
		return nil
	}
	return t.Devices[i]
}

// Object returns the context object at slot i
func (t *Table) Object(i int) any {
	if i < 0 || i >= len(t.Objects) {
		return nil
	}
	return t.Objects[i]
}

// Kinds lists the kind of every slot, OutputNone for unbound slots
func (t *Table) Kinds() []hmtl.OutputKind {
	kinds := make([]hmtl.OutputKind, len(t.Devices))
	for i, d := range t.Devices {
		if d != nil {
			kinds[i] = d.Kind()
		}
	}
	return kinds
}

// HandleMessage applies a value or RGB OUTPUT message to the table. Output
// hmtl.OutputAll applies the message to every bound output of the matching
// kind; a single output must exist and match the message kind.
func HandleMessage(m *hmtl.Message, t *Table) error {
	hdr, err := hmtl.DecodeOutputHeader(m)
	if err != nil {
		return err
	}

	var apply func(Device) bool
	switch hdr.Kind {
	case hmtl.OutputValue:
		v, err := hmtl.DecodeValue(m)
		if err != nil {
			return err
		}
		apply = func(d Device) bool {
			vo, ok := d.(*ValueOutput)
			if ok {
				vo.SetValue(v.Value)
			}
			return ok
		}
	case hmtl.OutputRGB:
		c, err := hmtl.DecodeRGB(m)
		if err != nil {
			return err
		}
		apply = func(d Device) bool {
			if d.Kind() != hmtl.OutputRGB {
				return false
			}
			d.SetColor(c.Color)
			return true
		}
	default:
		return fmt.Errorf("%w: unsupported kind %s", ErrKindMismatch, hmtl.FormatOutputKind(hdr.Kind))
	}

	if hdr.Output == hmtl.OutputAll {
		for _, d := range t.Devices {
			if d != nil {
				apply(d)
			}
		}
		return nil
	}

	d := t.Device(int(hdr.Output))
	if d == nil {
		return fmt.Errorf("%w: %d", ErrInvalidOutput, hdr.Output)
	}
	if !apply(d) {
		return fmt.Errorf("%w: output %d is %s", ErrKindMismatch, hdr.Output, hmtl.FormatOutputKind(d.Kind()))
	}
	return nil
}
