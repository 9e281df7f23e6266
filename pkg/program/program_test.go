// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package program

import (
	"errors"
	"testing"

	"github.com/Thermoquad/hmtlnode/pkg/hmtl"
	"github.com/Thermoquad/hmtlnode/pkg/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Test programs
// ============================================================

// countingState counts executions and how often it was closed
type countingState struct {
	runs   int
	closed int
	doneAt int
}

func (s *countingState) Close() error {
	s.closed++
	return nil
}

const (
	testBlink    = hmtl.ProgramBlink
	testFailing  = 0x20
	testSensor   = hmtl.ProgramSensorData
	testNoChange = 0x21
)

// testHarness records the states handed out by the test programs
type testHarness struct {
	states   []*countingState
	standArg []any
}

func (h *testHarness) registry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(
		Descriptor{
			Type:    hmtl.ProgramNone,
			Name:    "none",
			Execute: func(output.Device, any, *Tracker) bool { return false },
		},
		Descriptor{
			Type: testBlink,
			Name: "blink",
			Setup: func(cfg *hmtl.ProgramConfig, tr *Tracker) error {
				s := &countingState{doneAt: int(cfg.Uint8(0))}
				h.states = append(h.states, s)
				tr.State = s
				return nil
			},
			Execute: func(dev output.Device, _ any, tr *Tracker) bool {
				s := tr.State.(*countingState)
				s.runs++
				dev.SetColor([3]uint8{uint8(s.runs), 0, 0})
				if s.doneAt > 0 && s.runs >= s.doneAt {
					tr.Flags |= FlagDone
				}
				return true
			},
		},
		Descriptor{
			Type: testFailing,
			Name: "failing",
			Setup: func(_ *hmtl.ProgramConfig, tr *Tracker) error {
				s := &countingState{}
				h.states = append(h.states, s)
				tr.State = s
				return errors.New("out of memory")
			},
			Execute: func(output.Device, any, *Tracker) bool { return true },
		},
		Descriptor{
			Type:    testNoChange,
			Name:    "idle",
			Execute: func(output.Device, any, *Tracker) bool { return false },
		},
		Descriptor{
			Type: testSensor,
			Name: "sensor",
			Execute: func(dev output.Device, arg any, tr *Tracker) bool {
				if dev != nil || tr != nil {
					panic("standalone program received a device or tracker")
				}
				h.standArg = append(h.standArg, arg)
				return true
			},
		},
	)
	require.NoError(t, err)
	return reg
}

// newTestManager creates a manager over two RGB outputs and one unbound slot
func newTestManager(t *testing.T) (*Manager, *testHarness, *output.Table) {
	t.Helper()
	h := &testHarness{}
	table := output.NewTable(
		output.NewRGBOutput([3]int{1, 2, 3}, [3]uint8{}),
		output.NewRGBOutput([3]int{4, 5, 6}, [3]uint8{}),
		nil,
	)
	return NewManager(table, h.registry(t), nil, nil), h, table
}

func programConfig(t *testing.T, outputIndex, program uint8, data ...byte) *hmtl.ProgramConfig {
	t.Helper()
	msg, err := hmtl.NewProgramMessage(5, outputIndex, program, data)
	require.NoError(t, err)
	cfg, err := hmtl.DecodeProgramConfig(msg)
	require.NoError(t, err)
	return cfg
}

// ============================================================
// Registry
// ============================================================

func TestRegistry_Lookup(t *testing.T) {
	reg := (&testHarness{}).registry(t)

	d, ok := reg.Lookup(testBlink)
	require.True(t, ok)
	assert.Equal(t, "blink", d.Name)

	_, ok = reg.Lookup(0x77)
	assert.False(t, ok)
	assert.Equal(t, 5, reg.Len())
	assert.Len(t, reg.Descriptors(), 5)
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	exec := func(output.Device, any, *Tracker) bool { return false }
	_, err := NewRegistry(
		Descriptor{Type: 1, Execute: exec},
		Descriptor{Type: 1, Execute: exec},
	)
	assert.ErrorIs(t, err, ErrDuplicateProgram)
}

func TestRegistry_RequiresExecute(t *testing.T) {
	_, err := NewRegistry(Descriptor{Type: 1})
	assert.Error(t, err)
}

func TestDescriptor_StringFallsBackToTypeName(t *testing.T) {
	d := &Descriptor{Type: hmtl.ProgramFade}
	assert.Equal(t, "fade", d.String())
}

// ============================================================
// Configuration
// ============================================================

func TestHandleConfiguration_InstallsTracker(t *testing.T) {
	m, _, _ := newTestManager(t)

	require.NoError(t, m.HandleConfiguration(programConfig(t, 0, testBlink)))

	tr := m.Tracker(0)
	require.NotNil(t, tr)
	want, _ := m.Registry().Lookup(testBlink)
	assert.Same(t, want, tr.Program)
	assert.Equal(t, Flags(0), tr.Flags)
	assert.NotNil(t, tr.State)
	assert.Nil(t, m.Tracker(1))
}

func TestHandleConfiguration_Validation(t *testing.T) {
	tests := []struct {
		name    string
		output  uint8
		program uint8
		wantErr error
	}{
		{name: "unknown program", output: 0, program: 0x77, wantErr: ErrUnknownProgram},
		{name: "output beyond table", output: 9, program: testBlink, wantErr: ErrInvalidOutput},
		{name: "output equal to slot count", output: 3, program: testBlink, wantErr: ErrInvalidOutput},
		{name: "unbound output", output: 2, program: testBlink, wantErr: ErrInvalidOutput},
		{name: "unbound output with none", output: 2, program: hmtl.ProgramNone, wantErr: ErrInvalidOutput},
		{name: "setup failure", output: 0, program: testFailing, wantErr: ErrProgramSetup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, _ := newTestManager(t)
			require.NoError(t, m.HandleConfiguration(programConfig(t, 1, testBlink)))
			before := m.Tracker(1)

			err := m.HandleConfiguration(programConfig(t, tt.output, tt.program))
			assert.ErrorIs(t, err, tt.wantErr)

			// Rejected configurations never mutate any slot
			assert.Nil(t, m.Tracker(0))
			assert.Same(t, before, m.Tracker(1))
			assert.Nil(t, m.Tracker(2))
		})
	}
}

func TestHandleConfiguration_SetupFailureKeepsExistingTracker(t *testing.T) {
	m, h, _ := newTestManager(t)
	require.NoError(t, m.HandleConfiguration(programConfig(t, 0, testBlink)))
	existing := m.Tracker(0)

	err := m.HandleConfiguration(programConfig(t, 0, testFailing))
	require.ErrorIs(t, err, ErrProgramSetup)

	assert.Same(t, existing, m.Tracker(0))
	require.Len(t, h.states, 2)
	assert.Equal(t, 0, h.states[0].closed, "existing state must survive")
	assert.Equal(t, 1, h.states[1].closed, "state from failed setup is released")
}

func TestHandleConfiguration_ReplaceReleasesOldStateOnce(t *testing.T) {
	m, h, _ := newTestManager(t)
	require.NoError(t, m.HandleConfiguration(programConfig(t, 0, testBlink)))
	m.Tracker(0).Flags = 0x80

	require.NoError(t, m.HandleConfiguration(programConfig(t, 0, testBlink)))

	require.Len(t, h.states, 2)
	assert.Equal(t, 1, h.states[0].closed)
	assert.Equal(t, 0, h.states[1].closed)
	assert.Same(t, h.states[1], m.Tracker(0).State)
	assert.Equal(t, Flags(0), m.Tracker(0).Flags, "flags reset on replacement")
}

func TestHandleConfiguration_NoneClearsSlot(t *testing.T) {
	m, h, _ := newTestManager(t)
	require.NoError(t, m.HandleConfiguration(programConfig(t, 0, testBlink)))

	require.NoError(t, m.HandleConfiguration(programConfig(t, 0, hmtl.ProgramNone)))
	assert.Nil(t, m.Tracker(0))
	assert.Equal(t, 1, h.states[0].closed)

	// Clearing an empty slot still succeeds
	require.NoError(t, m.HandleConfiguration(programConfig(t, 0, hmtl.ProgramNone)))
	assert.Nil(t, m.Tracker(0))
	assert.Equal(t, 1, h.states[0].closed)
}

// ============================================================
// Tracker lifecycle
// ============================================================

func TestFreeTracker_Idempotent(t *testing.T) {
	m, h, _ := newTestManager(t)
	require.NoError(t, m.HandleConfiguration(programConfig(t, 1, testBlink)))

	for slot := 0; slot < m.NumOutputs(); slot++ {
		m.FreeTracker(slot)
		assert.Nil(t, m.Tracker(slot))
		m.FreeTracker(slot)
		assert.Nil(t, m.Tracker(slot))
	}
	assert.Equal(t, 1, h.states[0].closed)

	// Out of range slots are ignored
	m.FreeTracker(-1)
	m.FreeTracker(100)
}

func TestClose_ReleasesAllState(t *testing.T) {
	m, h, _ := newTestManager(t)
	require.NoError(t, m.HandleConfiguration(programConfig(t, 0, testBlink)))
	require.NoError(t, m.HandleConfiguration(programConfig(t, 1, testBlink)))

	require.NoError(t, m.Close())
	for _, s := range h.states {
		assert.Equal(t, 1, s.closed)
	}
	assert.Nil(t, m.Tracker(0))
	assert.Nil(t, m.Tracker(1))
}

// ============================================================
// Ticks
// ============================================================

func TestRunTick_ExecutesActiveTrackers(t *testing.T) {
	m, h, table := newTestManager(t)
	assert.False(t, m.RunTick(), "empty manager reports no change")

	require.NoError(t, m.HandleConfiguration(programConfig(t, 1, testBlink)))
	assert.True(t, m.RunTick())
	assert.True(t, m.RunTick())

	assert.Equal(t, 2, h.states[0].runs)
	rgb := table.Device(1).(*output.RGBOutput)
	assert.Equal(t, [3]uint8{2, 0, 0}, rgb.Color())
}

func TestRunTick_AggregatesResults(t *testing.T) {
	m, _, _ := newTestManager(t)
	require.NoError(t, m.HandleConfiguration(programConfig(t, 0, testNoChange)))
	assert.False(t, m.RunTick())

	require.NoError(t, m.HandleConfiguration(programConfig(t, 1, testBlink)))
	assert.True(t, m.RunTick())
}

func TestRunTick_DoneTrackerFreedWithoutExecution(t *testing.T) {
	m, h, _ := newTestManager(t)
	// Done after the first run
	require.NoError(t, m.HandleConfiguration(programConfig(t, 0, testBlink, 1)))

	assert.True(t, m.RunTick())
	require.NotNil(t, m.Tracker(0))
	assert.True(t, m.Tracker(0).Flags.Has(FlagDone))

	assert.False(t, m.RunTick())
	assert.Nil(t, m.Tracker(0))
	assert.Equal(t, 1, h.states[0].runs, "done tracker must not run again")
	assert.Equal(t, 1, h.states[0].closed)

	assert.False(t, m.RunTick())
	assert.Equal(t, 1, h.states[0].runs)
}

func TestRunStandalone(t *testing.T) {
	m, h, _ := newTestManager(t)
	reading := hmtl.SensorReading{Type: hmtl.SensorLevel, Data: []byte{1, 2}}

	ran, err := m.RunStandalone(testSensor, reading)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, []any{reading}, h.standArg)

	ran, err = m.RunStandalone(0x77, reading)
	assert.ErrorIs(t, err, ErrUnknownProgram)
	assert.False(t, ran)
	assert.Len(t, h.standArg, 1)
}

// ============================================================
// Snapshot
// ============================================================

func TestSnapshot(t *testing.T) {
	m, _, _ := newTestManager(t)
	require.NoError(t, m.HandleConfiguration(programConfig(t, 1, testBlink)))

	snap := m.Snapshot()
	require.Len(t, snap, 3)

	assert.False(t, snap[0].Active)
	assert.Equal(t, "-", snap[0].Program)
	assert.Equal(t, hmtl.OutputRGB, snap[0].Kind)

	assert.True(t, snap[1].Active)
	assert.Equal(t, "blink", snap[1].Program)

	assert.Equal(t, hmtl.OutputNone, snap[2].Kind)
	assert.Empty(t, snap[2].Device)
}

// ============================================================
// Example: node with two slots and blink/none programs
// ============================================================

func TestExampleTwoSlotNode(t *testing.T) {
	exec := func(dev output.Device, _ any, _ *Tracker) bool {
		dev.SetColor([3]uint8{255, 255, 255})
		return true
	}
	reg, err := NewRegistry(
		Descriptor{Type: 1, Name: "blink", Execute: exec},
		Descriptor{Type: 0, Name: "none", Execute: exec},
	)
	require.NoError(t, err)
	table := output.NewTable(
		output.NewRGBOutput([3]int{}, [3]uint8{}),
		output.NewValueOutput(9, 0),
	)
	m := NewManager(table, reg, nil, nil)

	require.NoError(t, m.HandleConfiguration(programConfig(t, 0, 1)))
	assert.Equal(t, "blink", m.Tracker(0).Program.Name)

	require.NoError(t, m.HandleConfiguration(programConfig(t, 0, 0)))
	assert.Nil(t, m.Tracker(0))

	require.NoError(t, m.HandleConfiguration(programConfig(t, 1, 1)))
	assert.NotNil(t, m.Tracker(1))

	assert.ErrorIs(t, m.HandleConfiguration(programConfig(t, 9, 1)), ErrInvalidOutput)
}
