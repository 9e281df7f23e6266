// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package program runs program behaviors against the output slots of a node.
//
// A Registry holds the fixed set of program descriptors known to the node.
// The Manager binds at most one Tracker to each output slot, applies
// program-configuration messages, and advances every active tracker on each
// control tick.
package program

import (
	"errors"
	"fmt"
	"io"

	"github.com/Thermoquad/hmtlnode/pkg/hmtl"
	"github.com/Thermoquad/hmtlnode/pkg/output"
)

// Errors returned by the registry and the manager
var (
	ErrUnknownProgram   = errors.New("program: unknown program type")
	ErrInvalidOutput    = errors.New("program: invalid output")
	ErrProgramSetup     = errors.New("program: setup failed")
	ErrDuplicateProgram = errors.New("program: duplicate program type")
)

// Flags is the tracker flag bitset
type Flags uint8

// Tracker flags
const (
	FlagDone Flags = 1 << 0 // Set by a program when it has finished
)

// Has reports whether all bits of f are set
func (fl Flags) Has(f Flags) bool {
	return fl&f == f
}

func (fl Flags) String() string {
	if fl.Has(FlagDone) {
		return "DONE"
	}
	return "-"
}

// SetupFunc initialises a tracker from a program configuration. It is
// expected to store the program's state in tracker.State.
type SetupFunc func(cfg *hmtl.ProgramConfig, tracker *Tracker) error

// ExecuteFunc advances a program by one step and reports whether it changed
// any output. Standalone invocations pass a nil device and tracker.
type ExecuteFunc func(dev output.Device, obj any, tracker *Tracker) bool

// Descriptor registers a program behavior under a type id
type Descriptor struct {
	Type    uint8
	Name    string
	Setup   SetupFunc
	Execute ExecuteFunc
}

func (d *Descriptor) String() string {
	if d.Name != "" {
		return d.Name
	}
	return hmtl.FormatProgramType(d.Type)
}

// Tracker records that a program runs on an output slot. State is owned by
// the tracker; when it implements io.Closer it is closed exactly once, when
// the tracker releases it.
type Tracker struct {
	Program *Descriptor
	Flags   Flags
	State   any
}

// release drops the state, closing it when it holds resources
func (t *Tracker) release() error {
	state := t.State
	t.State = nil
	if c, ok := state.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Registry is the fixed table of known programs
type Registry struct {
	programs []Descriptor
}

// NewRegistry creates a registry from descriptors. Type ids must be unique.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{programs: make([]Descriptor, 0, len(descs))}
	for _, d := range descs {
		if _, ok := r.Lookup(d.Type); ok {
			return nil, fmt.Errorf("%w: %s (0x%02X)", ErrDuplicateProgram, d.String(), d.Type)
		}
		if d.Execute == nil {
			return nil, fmt.Errorf("program %s (0x%02X) has no execute function", d.String(), d.Type)
		}
		r.programs = append(r.programs, d)
	}
	return r, nil
}

// Lookup returns the descriptor registered for typeID
func (r *Registry) Lookup(typeID uint8) (*Descriptor, bool) {
	for i := range r.programs {
		if r.programs[i].Type == typeID {
			return &r.programs[i], true
		}
	}
	return nil, false
}

// Len returns the number of registered programs
func (r *Registry) Len() int {
	return len(r.programs)
}

// Descriptors returns a copy of the registered descriptors in registration order
func (r *Registry) Descriptors() []Descriptor {
	return append([]Descriptor(nil), r.programs...)
}
