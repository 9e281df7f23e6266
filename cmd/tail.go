// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/Thermoquad/hmtlnode/pkg/hmtl"
	"github.com/spf13/cobra"
)

var tailValidate bool

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Display HMTL traffic in human-readable format",
	Long: `Continuously decode and display HMTL messages as they arrive.

Text lines sent by a node on the serial line ("ready", "ok") are shown
between the decoded messages. With --validate, each message is also checked
for protocol anomalies such as length mismatches and unknown types.

Supports both serial and WebSocket connections.`,
	RunE: runTail,
}

func init() {
	rootCmd.AddCommand(tailCmd)
	tailCmd.Flags().BoolVar(&tailValidate, "validate", false, "Report protocol anomalies for each message")
}

func runTail(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection(cmd.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "hmtlnode - Message Log\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Press Ctrl+C to exit\n\n")

	go func() {
		<-cmd.Context().Done()
		conn.Close()
	}()

	printer := newStreamPrinter(out, tailValidate)
	buf := make([]byte, 128)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			printer.Feed(buf[:n])
		}
		if err != nil {
			if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) || cmd.Context().Err() != nil {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			return err
		}
	}
}

// streamPrinter renders a mixed stream of text lines and HMTL messages
type streamPrinter struct {
	out      io.Writer
	framer   *hmtl.Framer
	line     []byte
	validate bool
	now      func() time.Time
}

func newStreamPrinter(out io.Writer, validate bool) *streamPrinter {
	return &streamPrinter{
		out:      out,
		framer:   hmtl.NewFramer(hmtl.MaxMsgSize),
		validate: validate,
		now:      time.Now,
	}
}

// Feed processes received bytes
func (p *streamPrinter) Feed(data []byte) {
	for _, b := range data {
		if p.framer.Offset() == 0 && b != hmtl.StartCode {
			p.text(b)
			continue
		}

		msg, err := p.framer.FeedByte(b)
		if err != nil {
			fmt.Fprintf(p.out, "[ERROR] %v\n", err)
			continue
		}
		if msg == nil {
			continue
		}

		fmt.Fprintf(p.out, "[%s] %s", p.now().Format("15:04:05.000"), hmtl.FormatMessage(msg))
		if p.validate {
			for _, v := range hmtl.ValidateMessage(msg) {
				fmt.Fprintf(p.out, "  [ANOMALY] %s\n", v.Message)
			}
		}
	}
}

func (p *streamPrinter) text(b byte) {
	switch {
	case b == '\n':
		if len(p.line) > 0 {
			fmt.Fprintf(p.out, "[%s] LINE %q\n", p.now().Format("15:04:05.000"), string(p.line))
		}
		p.line = p.line[:0]
	case b == '\r':
	case b >= 0x20 && b < 0x7F && len(p.line) < 80:
		p.line = append(p.line, b)
	}
}
