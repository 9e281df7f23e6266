// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package node runs the main loop of an HMTL node.
//
// Each iteration polls the serial line and every socket through the
// handler, announces the node on an idle serial line, advances the program
// trackers when the tick period has elapsed and flushes the outputs through
// the driver whenever something changed. A status snapshot is published
// periodically for observers such as the terminal dashboard.
package node

import (
	"context"
	"time"

	"github.com/Thermoquad/hmtlnode/internal/logging"
	"github.com/Thermoquad/hmtlnode/internal/metrics"
	"github.com/Thermoquad/hmtlnode/pkg/handler"
	"github.com/Thermoquad/hmtlnode/pkg/output"
	"github.com/Thermoquad/hmtlnode/pkg/program"
	"github.com/Thermoquad/hmtlnode/pkg/programs"
	"pkt.systems/pslog"
)

// Loop timing defaults
const (
	DefaultTickInterval   = 10 * time.Millisecond
	DefaultPollInterval   = time.Millisecond
	DefaultStatusInterval = 250 * time.Millisecond
)

// Options wires a node together. Handler, Manager and Outputs are required.
type Options struct {
	Handler *handler.Handler
	Manager *program.Manager
	Outputs *output.Table
	Driver  output.Driver
	Sensors *programs.SensorStore

	TickInterval   time.Duration
	PollInterval   time.Duration
	StatusInterval time.Duration

	Logger  pslog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Status is a point in time view of the node
type Status struct {
	At      time.Time
	Address uint16
	Slots   []program.SlotStatus
	Stats   handler.Stats
	Sensors []programs.SensorValue
	Flushes int

	// SerialErr is set once the serial line has stopped
	SerialErr error
}

// Node owns the handler and program manager while Run is active
type Node struct {
	opts   Options
	logger pslog.Logger

	nextTick   time.Time
	nextStatus time.Time
	flushes    int

	status chan Status
}

// New creates a node
func New(opts Options) *Node {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = DefaultStatusInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Driver == nil {
		opts.Driver = output.NewLogDriver(logging.OrDiscard(opts.Logger))
	}
	return &Node{
		opts:   opts,
		logger: logging.OrDiscard(opts.Logger),
		status: make(chan Status, 1),
	}
}

// Updates delivers status snapshots. Only the most recent snapshot is kept
// when the reader falls behind.
func (n *Node) Updates() <-chan Status {
	return n.status
}

// Step runs one loop iteration and reports whether the outputs were flushed
func (n *Node) Step() bool {
	now := n.opts.Now()

	updated := n.opts.Handler.Check()
	n.opts.Handler.SerialReady()

	if !now.Before(n.nextTick) {
		if n.opts.Manager.RunTick() {
			updated = true
		}
		n.nextTick = now.Add(n.opts.TickInterval)
	}

	flushed := false
	if updated {
		if err := n.opts.Driver.Flush(n.opts.Outputs); err != nil {
			n.logger.Warn("output flush failed", "err", err)
		} else {
			flushed = true
			n.flushes++
			n.opts.Metrics.Update()
		}
	}

	if !now.Before(n.nextStatus) {
		n.publish(n.Status())
		n.nextStatus = now.Add(n.opts.StatusInterval)
	}
	return flushed
}

// Status builds a snapshot. It must be called from the goroutine running the
// node.
func (n *Node) Status() Status {
	s := Status{
		At:      n.opts.Now(),
		Address: n.opts.Handler.Address(),
		Slots:   n.opts.Manager.Snapshot(),
		Stats:   n.opts.Handler.Stats(),
		Flushes: n.flushes,

		SerialErr: n.opts.Handler.SerialErr(),
	}
	if n.opts.Sensors != nil {
		s.Sensors = n.opts.Sensors.All()
	}
	return s
}

// Run loops until ctx is cancelled
func (n *Node) Run(ctx context.Context) error {
	n.logger.Info("node started", "address", n.opts.Handler.Address(),
		"outputs", n.opts.Outputs.Len(), "sockets", len(n.opts.Handler.Sockets()),
		"tick", n.opts.TickInterval)

	ticker := time.NewTicker(n.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			n.logger.Info("node stopped", "stats", n.opts.Handler.Stats())
			return nil
		case <-ticker.C:
			n.Step()
		}
	}
}

func (n *Node) publish(s Status) {
	select {
	case n.status <- s:
		return
	default:
	}
	// Replace the stale snapshot
	select {
	case <-n.status:
	default:
	}
	select {
	case n.status <- s:
	default:
	}
}
