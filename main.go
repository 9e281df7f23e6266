// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// hmtlnode - HMTL lighting and sensor node
//
// Runs an HMTL node and provides the tools to monitor, discover and
// address nodes over a serial line or a WebSocket bridge.

package main

import (
	"context"
	"log"
	"os"

	"github.com/Thermoquad/hmtlnode/cmd"
	"pkt.systems/psi"
	"pkt.systems/pslog"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	if err := cmd.ExecuteContext(ctx); err != nil {
		pslog.Ctx(ctx).With("err", err).Error("hmtlnode command failed")
		return cmd.ExitCode(err)
	}
	return 0
}
