// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package program

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/hmtlnode/internal/logging"
	"github.com/Thermoquad/hmtlnode/internal/metrics"
	"github.com/Thermoquad/hmtlnode/pkg/hmtl"
	"github.com/Thermoquad/hmtlnode/pkg/output"
	"pkt.systems/pslog"
)

// SlotStatus is a read-only view of one output slot
type SlotStatus struct {
	Output  int
	Kind    hmtl.OutputKind
	Device  string
	Program string
	Flags   Flags
	Active  bool
}

// Manager owns the trackers of a node's output slots. It is not safe for
// concurrent use; configuration and ticks must run on the same goroutine.
type Manager struct {
	table    *output.Table
	registry *Registry
	trackers []*Tracker
	logger   pslog.Logger
	metrics  *metrics.Metrics
}

// NewManager creates a manager with one empty slot per output in table
func NewManager(table *output.Table, registry *Registry, logger pslog.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		table:    table,
		registry: registry,
		trackers: make([]*Tracker, table.Len()),
		logger:   logging.OrDiscard(logger),
		metrics:  m,
	}
}

// NumOutputs returns the fixed number of slots
func (m *Manager) NumOutputs() int {
	return len(m.trackers)
}

// Tracker returns the tracker bound to slot, or nil
func (m *Manager) Tracker(slot int) *Tracker {
	if slot < 0 || slot >= len(m.trackers) {
		return nil
	}
	return m.trackers[slot]
}

// Registry returns the program registry
func (m *Manager) Registry() *Registry {
	return m.registry
}

// FreeTracker releases the tracker at slot and its state. Freeing an empty
// or out of range slot does nothing.
func (m *Manager) FreeTracker(slot int) {
	if slot < 0 || slot >= len(m.trackers) {
		return
	}
	t := m.trackers[slot]
	if t == nil {
		return
	}
	if err := t.release(); err != nil {
		m.logger.Warn("program state release failed", "output", slot, "program", t.Program.String(), "err", err)
	}
	m.trackers[slot] = nil
	m.metrics.SetActiveTrackers(m.activeCount())
}

// HandleConfiguration applies a program configuration to its output slot.
//
// The none program clears the slot. Any other program is set up against a
// fresh tracker which replaces the existing one only when setup succeeds;
// a rejected configuration leaves the slot untouched.
func (m *Manager) HandleConfiguration(cfg *hmtl.ProgramConfig) error {
	prog, ok := m.registry.Lookup(cfg.Type)
	if !ok {
		m.reject("unknown_program", cfg)
		return fmt.Errorf("%w: 0x%02X", ErrUnknownProgram, cfg.Type)
	}

	slot := int(cfg.Output)
	if slot >= len(m.trackers) {
		m.reject("output_range", cfg)
		return fmt.Errorf("%w: %d (have %d)", ErrInvalidOutput, slot, len(m.trackers))
	}
	if m.table.Device(slot) == nil {
		m.reject("output_unbound", cfg)
		return fmt.Errorf("%w: %d is not bound", ErrInvalidOutput, slot)
	}

	if prog.Type == hmtl.ProgramNone {
		m.FreeTracker(slot)
		m.logger.Debug("program cleared", "output", slot)
		return nil
	}

	t := &Tracker{Program: prog}
	if prog.Setup != nil {
		if err := prog.Setup(cfg, t); err != nil {
			if rerr := t.release(); rerr != nil {
				m.logger.Warn("program state release failed", "output", slot, "program", prog.String(), "err", rerr)
			}
			m.reject("setup", cfg)
			return fmt.Errorf("%w: %s on output %d: %w", ErrProgramSetup, prog.String(), slot, err)
		}
	}

	m.FreeTracker(slot)
	m.trackers[slot] = t
	m.metrics.SetActiveTrackers(m.activeCount())
	m.logger.Info("program configured", "output", slot, "program", prog.String())
	return nil
}

// RunTick advances every active tracker in slot order. Trackers marked done
// are freed instead of executed. It reports whether any program changed an
// output.
func (m *Manager) RunTick() bool {
	updated := false
	for slot, t := range m.trackers {
		if t == nil {
			continue
		}
		if t.Flags.Has(FlagDone) {
			m.logger.Debug("program done", "output", slot, "program", t.Program.String())
			m.FreeTracker(slot)
			continue
		}
		if t.Program.Execute(m.table.Device(slot), m.table.Object(slot), t) {
			updated = true
		}
	}
	m.metrics.Tick()
	return updated
}

// RunStandalone executes a program without a device or tracker, passing arg
// as its context object. It reports the program's result, or
// ErrUnknownProgram when typeID is not registered.
func (m *Manager) RunStandalone(typeID uint8, arg any) (bool, error) {
	prog, ok := m.registry.Lookup(typeID)
	if !ok {
		return false, fmt.Errorf("%w: 0x%02X", ErrUnknownProgram, typeID)
	}
	return prog.Execute(nil, arg, nil), nil
}

// Snapshot returns the status of every slot
func (m *Manager) Snapshot() []SlotStatus {
	status := make([]SlotStatus, len(m.trackers))
	for slot, t := range m.trackers {
		s := SlotStatus{Output: slot, Program: "-"}
		if dev := m.table.Device(slot); dev != nil {
			s.Kind = dev.Kind()
			s.Device = dev.String()
		}
		if t != nil {
			s.Program = t.Program.String()
			s.Flags = t.Flags
			s.Active = true
		}
		status[slot] = s
	}
	return status
}

// Close frees every tracker
func (m *Manager) Close() error {
	var errs []error
	for slot, t := range m.trackers {
		if t == nil {
			continue
		}
		errs = append(errs, t.release())
		m.trackers[slot] = nil
	}
	m.metrics.SetActiveTrackers(0)
	return errors.Join(errs...)
}

func (m *Manager) activeCount() int {
	n := 0
	for _, t := range m.trackers {
		if t != nil {
			n++
		}
	}
	return n
}

func (m *Manager) reject(reason string, cfg *hmtl.ProgramConfig) {
	m.metrics.ConfigRejected(reason)
	m.logger.Warn("program configuration rejected", "reason", reason, "output", cfg.Output,
		"program", hmtl.FormatProgramType(cfg.Type))
}
