// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package output

import (
	"pkt.systems/pslog"
)

// Driver pushes the state of a table to hardware
type Driver interface {
	Flush(t *Table) error
}

// LogDriver is a driver for nodes without attached hardware. Every flush
// logs the outputs that changed since the previous flush.
type LogDriver struct {
	logger  pslog.Logger
	flushes int
}

// NewLogDriver creates a driver logging through logger
func NewLogDriver(logger pslog.Logger) *LogDriver {
	return &LogDriver{logger: logger}
}

// Flush logs the outputs changed since the previous flush
func (d *LogDriver) Flush(t *Table) error {
	d.flushes++
	for i, dev := range t.Devices {
		if ChangedSinceFlush(dev) {
			d.logger.Info("output updated", "output", i, "state", dev.String())
		}
	}
	return nil
}

// Flushes returns the number of flushes performed
func (d *LogDriver) Flushes() int {
	return d.flushes
}

// ChangedSinceFlush reports and clears the changed marker of a device.
// Devices that do not track changes always report true.
func ChangedSinceFlush(dev Device) bool {
	if dev == nil {
		return false
	}
	if ct, ok := dev.(changeTracker); ok {
		return ct.takeChanged()
	}
	return true
}
