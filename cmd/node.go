// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/Thermoquad/hmtlnode/internal/config"
	"github.com/Thermoquad/hmtlnode/internal/logging"
	"github.com/Thermoquad/hmtlnode/internal/metrics"
	"github.com/Thermoquad/hmtlnode/pkg/handler"
	"github.com/Thermoquad/hmtlnode/pkg/node"
	"github.com/Thermoquad/hmtlnode/pkg/program"
	"github.com/Thermoquad/hmtlnode/pkg/programs"
	"github.com/Thermoquad/hmtlnode/pkg/transport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"pkt.systems/pslog"
)

var (
	nodeConfigPath string
	nodeTUI        bool
	nodeLogFile    string
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run an HMTL node",
	Long: `Run an HMTL node from a configuration file.

The node reads messages from its serial line (serial.port) and from every
configured socket, applies the ones addressed to it to its outputs and
relays the rest. Outputs are refreshed every tick_ms milliseconds while a
program is running.

Every configuration key can be overridden from the environment with the
HMTL_ prefix, e.g. HMTL_ADDRESS=12 or HMTL_SERIAL_PORT=/dev/ttyUSB0.
The --port and --baud flags override the serial settings of the file.

With --tui a dashboard shows the outputs, program slots and counters. Logs
are then written to --log-file, or dropped when no file is given.`,
	Args: cobra.NoArgs,
	RunE: runNode,
}

func init() {
	rootCmd.AddCommand(nodeCmd)
	nodeCmd.Flags().StringVarP(&nodeConfigPath, "config", "c", "", "Config file (default: user config dir)")
	nodeCmd.Flags().BoolVar(&nodeTUI, "tui", false, "Show the interactive dashboard")
	nodeCmd.Flags().StringVar(&nodeLogFile, "log-file", "", "Write logs to this file")
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(nodeConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Serial.Port = portName
	}
	if cmd.Flags().Changed("baud") {
		cfg.Serial.Baud = baudRate
	}

	logger, closeLog, err := nodeLogger(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, reg, logger)
	}

	table, err := cfg.OutputTable()
	if err != nil {
		return err
	}
	sensors := programs.NewSensorStore()
	registry, err := programs.New(sensors).Registry()
	if err != nil {
		return err
	}
	manager := program.NewManager(table, registry, logger, m)
	defer manager.Close()

	sockets, err := cfg.OpenSockets(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range sockets {
			s.Close()
		}
	}()

	params := handler.Params{
		Config:  cfg.HandlerConfig(),
		Manager: manager,
		Outputs: table,
		Sockets: sockets,
		Logger:  logger,
		Metrics: m,
	}
	if cfg.Serial.Port != "" {
		line, err := transport.OpenSerial(cfg.Serial.Port, cfg.Serial.Baud)
		if err != nil {
			return err
		}
		defer line.Close()
		params.Serial = line
		params.SerialIn = transport.NewByteQueue(line, cfg.Serial.Buffer)
		logger.Info("serial line open", "port", cfg.Serial.Port, "baud", cfg.Serial.Baud)
	}

	n := node.New(node.Options{
		Handler:      handler.New(params),
		Manager:      manager,
		Outputs:      table,
		Sensors:      sensors,
		TickInterval: cfg.TickInterval(),
		Logger:       logger,
		Metrics:      m,
	})

	if !nodeTUI {
		return n.Run(ctx)
	}

	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	title := fmt.Sprintf("Device %d", cfg.DeviceID)
	if cfg.Serial.Port != "" {
		title += " | Serial: " + cfg.Serial.Port
	}
	p := tea.NewProgram(initialModel(title, n.Updates()))
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return fmt.Errorf("dashboard: %w", err)
	}
	cancel()
	return <-done
}

// nodeLogger builds the node logger from the configuration. The dashboard
// owns the terminal, so logs only go to a file while it runs.
func nodeLogger(ctx context.Context, cfg config.Config) (pslog.Logger, func(), error) {
	var w io.Writer = os.Stderr
	closeLog := func() {}
	switch {
	case nodeLogFile != "":
		f, err := os.OpenFile(nodeLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closeLog = func() { f.Close() }
	case nodeTUI:
		w = io.Discard
	}

	logger := logging.New(w, cfg.LogLevel, cfg.LogStructured)
	pslog.Ctx(ctx).Debug("node logger ready", "level", cfg.LogLevel, "structured", cfg.LogStructured)
	return logger, closeLog, nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger pslog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "err", err)
	}
}
