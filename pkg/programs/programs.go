// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package programs is the catalogue of program behaviors a node can run.
//
// Parameter layouts (little-endian, following the program type byte):
//
//	blink         on_period u16, on rgb, off_period u16, off rgb
//	timed_change  period u32, start rgb, stop rgb
//	fade          period u32, start rgb, stop rgb, flags u8
//	color         rgb
//	level_value   (none)
package programs

import (
	"time"

	"github.com/Thermoquad/hmtlnode/pkg/hmtl"
	"github.com/Thermoquad/hmtlnode/pkg/output"
	"github.com/Thermoquad/hmtlnode/pkg/program"
)

// FadeCycle restarts a fade from its start color once it completes
const FadeCycle = 0x01

// Catalogue builds the program descriptors. Now is the clock used for all
// program timing; Sensors receives readings delivered to the sensor program.
type Catalogue struct {
	Now     func() time.Time
	Sensors *SensorStore
}

// New creates a catalogue using the wall clock
func New(sensors *SensorStore) *Catalogue {
	return &Catalogue{Now: time.Now, Sensors: sensors}
}

// Registry returns a registry holding every program of the catalogue
func (c *Catalogue) Registry() (*program.Registry, error) {
	return program.NewRegistry(c.Descriptors()...)
}

// Descriptors lists the catalogue's programs
func (c *Catalogue) Descriptors() []program.Descriptor {
	return []program.Descriptor{
		{Type: hmtl.ProgramNone, Name: "none", Execute: executeNone},
		{Type: hmtl.ProgramBlink, Name: "blink", Setup: setupBlink, Execute: c.executeBlink},
		{Type: hmtl.ProgramTimedChange, Name: "timed_change", Setup: setupTimedChange, Execute: c.executeTimedChange},
		{Type: hmtl.ProgramLevelValue, Name: "level_value", Setup: setupLevelValue, Execute: c.executeLevelValue},
		{Type: hmtl.ProgramFade, Name: "fade", Setup: setupFade, Execute: c.executeFade},
		{Type: hmtl.ProgramSensorData, Name: "sensor_data", Execute: c.executeSensorData},
		{Type: hmtl.ProgramColor, Name: "color", Setup: setupColor, Execute: executeColor},
	}
}

func executeNone(output.Device, any, *program.Tracker) bool {
	return false
}

// ============================================================
// blink
// ============================================================

type blinkState struct {
	onPeriod   time.Duration
	offPeriod  time.Duration
	on         [3]uint8
	off        [3]uint8
	lit        bool
	lastChange time.Time
}

func setupBlink(cfg *hmtl.ProgramConfig, t *program.Tracker) error {
	t.State = &blinkState{
		onPeriod:  time.Duration(cfg.Uint16(0)) * time.Millisecond,
		on:        cfg.RGB(2),
		offPeriod: time.Duration(cfg.Uint16(5)) * time.Millisecond,
		off:       cfg.RGB(7),
	}
	return nil
}

func (c *Catalogue) executeBlink(dev output.Device, _ any, t *program.Tracker) bool {
	s := t.State.(*blinkState)
	now := c.Now()

	if s.lastChange.IsZero() {
		s.lit = true
	} else {
		period := s.offPeriod
		if s.lit {
			period = s.onPeriod
		}
		if now.Sub(s.lastChange) < period {
			return false
		}
		s.lit = !s.lit
	}

	s.lastChange = now
	if s.lit {
		dev.SetColor(s.on)
	} else {
		dev.SetColor(s.off)
	}
	return true
}

// ============================================================
// timed_change
// ============================================================

type timedChangeState struct {
	period  time.Duration
	start   [3]uint8
	stop    [3]uint8
	started time.Time
}

func setupTimedChange(cfg *hmtl.ProgramConfig, t *program.Tracker) error {
	t.State = &timedChangeState{
		period: time.Duration(cfg.Uint32(0)) * time.Millisecond,
		start:  cfg.RGB(4),
		stop:   cfg.RGB(7),
	}
	return nil
}

func (c *Catalogue) executeTimedChange(dev output.Device, _ any, t *program.Tracker) bool {
	s := t.State.(*timedChangeState)
	now := c.Now()

	if s.started.IsZero() {
		s.started = now
		dev.SetColor(s.start)
		return true
	}
	if now.Sub(s.started) >= s.period {
		dev.SetColor(s.stop)
		t.Flags |= program.FlagDone
		return true
	}
	return false
}

// ============================================================
// fade
// ============================================================

type fadeState struct {
	period  time.Duration
	start   [3]uint8
	stop    [3]uint8
	flags   uint8
	started time.Time
	last    [3]uint8
}

func setupFade(cfg *hmtl.ProgramConfig, t *program.Tracker) error {
	t.State = &fadeState{
		period: time.Duration(cfg.Uint32(0)) * time.Millisecond,
		start:  cfg.RGB(4),
		stop:   cfg.RGB(7),
		flags:  cfg.Uint8(10),
	}
	return nil
}

func (c *Catalogue) executeFade(dev output.Device, _ any, t *program.Tracker) bool {
	s := t.State.(*fadeState)
	now := c.Now()

	if s.started.IsZero() {
		s.started = now
		s.last = s.start
		dev.SetColor(s.start)
		return true
	}

	elapsed := now.Sub(s.started)
	if elapsed >= s.period {
		s.last = s.stop
		dev.SetColor(s.stop)
		if s.flags&FadeCycle != 0 {
			s.started = now
		} else {
			t.Flags |= program.FlagDone
		}
		return true
	}

	var color [3]uint8
	for i := range color {
		from, to := int64(s.start[i]), int64(s.stop[i])
		color[i] = uint8(from + (to-from)*int64(elapsed)/int64(s.period))
	}
	if color == s.last {
		return false
	}
	s.last = color
	dev.SetColor(color)
	return true
}

// ============================================================
// color
// ============================================================

type colorState struct {
	color [3]uint8
	set   bool
}

func setupColor(cfg *hmtl.ProgramConfig, t *program.Tracker) error {
	t.State = &colorState{color: cfg.RGB(0)}
	return nil
}

func executeColor(dev output.Device, _ any, t *program.Tracker) bool {
	s := t.State.(*colorState)
	if s.set {
		return false
	}
	s.set = true
	dev.SetColor(s.color)
	return true
}

// ============================================================
// level_value and sensor_data
// ============================================================

type levelState struct {
	level uint16
	seen  bool
}

func setupLevelValue(_ *hmtl.ProgramConfig, t *program.Tracker) error {
	t.State = &levelState{}
	return nil
}

// executeLevelValue shows the latest level reading as a grey level. Level
// readings are 10 bit.
func (c *Catalogue) executeLevelValue(dev output.Device, _ any, t *program.Tracker) bool {
	s := t.State.(*levelState)
	if c.Sensors == nil {
		return false
	}
	level, ok := c.Sensors.Level()
	if !ok || (s.seen && level == s.level) {
		return false
	}
	s.level = level
	s.seen = true

	v := level >> 2
	if v > 255 {
		v = 255
	}
	dev.SetColor([3]uint8{uint8(v), uint8(v), uint8(v)})
	return true
}

// executeSensorData records a reading delivered outside of any output
func (c *Catalogue) executeSensorData(_ output.Device, arg any, _ *program.Tracker) bool {
	reading, ok := arg.(hmtl.SensorReading)
	if !ok || c.Sensors == nil {
		return false
	}
	c.Sensors.Record(reading, c.Now())
	return true
}
