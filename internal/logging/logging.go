// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logging builds the pslog loggers used by the node and the CLI.
package logging

import (
	"io"

	"pkt.systems/pslog"
)

// New returns a logger writing to w at the named level, as understood by
// pslog.ParseLevel. Unknown level names fall back
// to info. Structured output is JSON, otherwise console lines.
func New(w io.Writer, level string, structured bool) pslog.Logger {
	opts := pslog.Options{Mode: pslog.ModeConsole, MinLevel: pslog.InfoLevel}
	if structured {
		opts.Mode = pslog.ModeStructured
		opts.NoColor = true
		opts.VerboseFields = true
	}
	if lvl, ok := pslog.ParseLevel(level); ok {
		opts.MinLevel = lvl
	}
	return pslog.NewWithOptions(w, opts)
}

// Discard returns a logger that drops everything.
func Discard() pslog.Logger {
	return pslog.NewWithOptions(io.Discard, pslog.Options{Mode: pslog.ModeStructured, NoColor: true, MinLevel: pslog.ErrorLevel})
}

// OrDiscard returns logger, or a discarding logger when logger is nil.
func OrDiscard(logger pslog.Logger) pslog.Logger {
	if logger == nil {
		return Discard()
	}
	return logger
}
