// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package programs

import (
	"testing"
	"time"

	"github.com/Thermoquad/hmtlnode/pkg/hmtl"
	"github.com/Thermoquad/hmtlnode/pkg/output"
	"github.com/Thermoquad/hmtlnode/pkg/program"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	clock   *fakeClock
	sensors *SensorStore
	manager *program.Manager
	rgb     *output.RGBOutput
	value   *output.ValueOutput
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	sensors := NewSensorStore()
	cat := &Catalogue{Now: clock.Now, Sensors: sensors}
	reg, err := cat.Registry()
	require.NoError(t, err)

	rgb := output.NewRGBOutput([3]int{1, 2, 3}, [3]uint8{})
	value := output.NewValueOutput(9, 0)
	return &fixture{
		clock:   clock,
		sensors: sensors,
		manager: program.NewManager(output.NewTable(rgb, value), reg, nil, nil),
		rgb:     rgb,
		value:   value,
	}
}

func (f *fixture) configure(t *testing.T, msg *hmtl.Message) {
	t.Helper()
	cfg, err := hmtl.DecodeProgramConfig(msg)
	require.NoError(t, err)
	require.NoError(t, f.manager.HandleConfiguration(cfg))
}

func TestCatalogue_RegistersAllPrograms(t *testing.T) {
	reg, err := New(NewSensorStore()).Registry()
	require.NoError(t, err)

	for _, id := range []uint8{
		hmtl.ProgramNone, hmtl.ProgramBlink, hmtl.ProgramTimedChange, hmtl.ProgramLevelValue,
		hmtl.ProgramFade, hmtl.ProgramSensorData, hmtl.ProgramColor,
	} {
		d, ok := reg.Lookup(id)
		require.True(t, ok, "program 0x%02X", id)
		assert.Equal(t, hmtl.FormatProgramType(id), d.Name)
	}
}

func TestBlink(t *testing.T) {
	f := newFixture(t)
	on := [3]uint8{255, 0, 0}
	off := [3]uint8{0, 0, 16}
	f.configure(t, hmtl.NewBlinkMessage(1, 0, 100, on, 300, off))

	assert.True(t, f.manager.RunTick())
	assert.Equal(t, on, f.rgb.Color())

	f.clock.Advance(50 * time.Millisecond)
	assert.False(t, f.manager.RunTick())

	f.clock.Advance(50 * time.Millisecond)
	assert.True(t, f.manager.RunTick())
	assert.Equal(t, off, f.rgb.Color())

	f.clock.Advance(200 * time.Millisecond)
	assert.False(t, f.manager.RunTick(), "off period not elapsed")

	f.clock.Advance(100 * time.Millisecond)
	assert.True(t, f.manager.RunTick())
	assert.Equal(t, on, f.rgb.Color())
}

func TestTimedChange(t *testing.T) {
	f := newFixture(t)
	start := [3]uint8{1, 2, 3}
	stop := [3]uint8{9, 8, 7}
	f.configure(t, hmtl.NewTimedChangeMessage(1, 0, 1000, start, stop))

	assert.True(t, f.manager.RunTick())
	assert.Equal(t, start, f.rgb.Color())

	f.clock.Advance(999 * time.Millisecond)
	assert.False(t, f.manager.RunTick())

	f.clock.Advance(time.Millisecond)
	assert.True(t, f.manager.RunTick())
	assert.Equal(t, stop, f.rgb.Color())
	assert.True(t, f.manager.Tracker(0).Flags.Has(program.FlagDone))

	assert.False(t, f.manager.RunTick())
	assert.Nil(t, f.manager.Tracker(0))
	assert.Equal(t, stop, f.rgb.Color())
}

func TestFade(t *testing.T) {
	f := newFixture(t)
	f.configure(t, hmtl.NewFadeMessage(1, 0, 1000, [3]uint8{0, 100, 200}, [3]uint8{200, 100, 0}, 0))

	assert.True(t, f.manager.RunTick())
	assert.Equal(t, [3]uint8{0, 100, 200}, f.rgb.Color())

	f.clock.Advance(500 * time.Millisecond)
	assert.True(t, f.manager.RunTick())
	assert.Equal(t, [3]uint8{100, 100, 100}, f.rgb.Color())

	assert.False(t, f.manager.RunTick(), "no time passed, no change")

	f.clock.Advance(500 * time.Millisecond)
	assert.True(t, f.manager.RunTick())
	assert.Equal(t, [3]uint8{200, 100, 0}, f.rgb.Color())
	assert.True(t, f.manager.Tracker(0).Flags.Has(program.FlagDone))
}

func TestFade_Cycle(t *testing.T) {
	f := newFixture(t)
	f.configure(t, hmtl.NewFadeMessage(1, 0, 100, [3]uint8{0, 0, 0}, [3]uint8{100, 0, 0}, FadeCycle))

	f.manager.RunTick()
	f.clock.Advance(100 * time.Millisecond)
	assert.True(t, f.manager.RunTick())
	assert.Equal(t, [3]uint8{100, 0, 0}, f.rgb.Color())
	assert.False(t, f.manager.Tracker(0).Flags.Has(program.FlagDone))

	f.clock.Advance(50 * time.Millisecond)
	assert.True(t, f.manager.RunTick())
	assert.Equal(t, [3]uint8{50, 0, 0}, f.rgb.Color())
}

func TestColor(t *testing.T) {
	f := newFixture(t)
	f.configure(t, hmtl.NewColorMessage(1, 1, 33, 0, 0))

	assert.True(t, f.manager.RunTick())
	assert.Equal(t, uint16(33), f.value.Value())
	assert.False(t, f.manager.RunTick())
}

func TestLevelValueFollowsSensor(t *testing.T) {
	f := newFixture(t)
	f.configure(t, hmtl.NewProgramNoneMessage(1, 0))
	msg, err := hmtl.NewProgramMessage(1, 0, hmtl.ProgramLevelValue, nil)
	require.NoError(t, err)
	f.configure(t, msg)

	assert.False(t, f.manager.RunTick(), "no reading yet")

	ran, err := f.manager.RunStandalone(hmtl.ProgramSensorData,
		hmtl.SensorReading{Type: hmtl.SensorLevel, Data: []byte{0x00, 0x02}})
	require.NoError(t, err)
	assert.True(t, ran)

	assert.True(t, f.manager.RunTick())
	assert.Equal(t, [3]uint8{128, 128, 128}, f.rgb.Color())
	assert.False(t, f.manager.RunTick(), "unchanged reading")

	f.sensors.Record(hmtl.SensorReading{Type: hmtl.SensorLevel, Data: []byte{0xFF, 0x0F}}, f.clock.Now())
	assert.True(t, f.manager.RunTick())
	assert.Equal(t, [3]uint8{255, 255, 255}, f.rgb.Color())
}

func TestSensorData_IgnoresOtherArguments(t *testing.T) {
	f := newFixture(t)
	ran, err := f.manager.RunStandalone(hmtl.ProgramSensorData, "not a reading")
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, 0, f.sensors.Len())
}

func TestSensorStore(t *testing.T) {
	s := NewSensorStore()
	_, ok := s.Level()
	assert.False(t, ok)

	at := time.Unix(5, 0)
	data := []byte{7}
	s.Record(hmtl.SensorReading{Type: hmtl.SensorLight, Data: data}, at)
	data[0] = 0

	v, ok := s.Get(hmtl.SensorLight)
	require.True(t, ok)
	assert.Equal(t, uint16(7), v.Value)
	assert.Equal(t, []byte{7}, v.Data)
	assert.Equal(t, at, v.At)
	assert.Equal(t, 1, s.Len())

	s.Record(hmtl.SensorReading{Type: hmtl.SensorLevel, Data: []byte{1, 0}}, at)
	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, uint8(hmtl.SensorLevel), all[0].Type)
	assert.Equal(t, uint8(hmtl.SensorLight), all[1].Type)
}
