// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/hmtlnode/pkg/hmtl"
	"github.com/spf13/cobra"
)

var (
	discoverTimeout int
	discoverAddress uint16
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover nodes with a POLL",
	Long: `Send a POLL and list every node that answers.

By default the POLL is broadcast. Nodes answer after a delay proportional to
their address so responses arrive in address order. The node on the serial
line answers directly and relays the responses it receives from nodes on its
sockets.

Examples:
  hmtlnode discover --port /dev/ttyUSB0
  hmtlnode discover --url ws://bridge.local/hmtl --address 12

Exit codes:
  0 - Discovery successful (at least one node found)
  1 - No node responded before the timeout
  2 - Connection error`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().IntVar(&discoverTimeout, "timeout", 3, "Timeout in seconds for discovery")
	discoverCmd.Flags().Uint16Var(&discoverAddress, "address", hmtl.AddressAny, "Address to poll")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection(cmd.Context())
	if err != nil {
		return exitError(2, fmt.Errorf("connection error: %w", err))
	}
	defer conn.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "hmtlnode - Node Discovery\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Timeout: %d seconds\n\n", discoverTimeout)

	poll := hmtl.NewPollMessage(discoverAddress)
	fmt.Fprintf(out, "Sending POLL (address=%s)...\n", hmtl.FormatAddress(discoverAddress))
	if _, err := conn.Write(poll.Raw); err != nil {
		return exitError(2, fmt.Errorf("send failed: %w", err))
	}

	collector := newPollCollector()
	found := make(chan *hmtl.PollResponse, 16)
	errChan := make(chan error, 1)

	go func() {
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			for _, r := range collector.Feed(buf[:n]) {
				found <- r
			}
			if err != nil {
				errChan <- err
				return
			}
		}
	}()

	deadline := time.After(time.Duration(discoverTimeout) * time.Second)
	var nodes []*hmtl.PollResponse
	for {
		select {
		case r := <-found:
			nodes = append(nodes, r)
			printNode(cmd, r)
		case err := <-errChan:
			return exitError(2, fmt.Errorf("read failed: %w", err))
		case <-cmd.Context().Done():
			return nil
		case <-deadline:
			fmt.Fprintf(out, "\n--- Discovery summary ---\n")
			fmt.Fprintf(out, "Nodes found: %d\n", len(nodes))
			if len(nodes) == 0 {
				return exitError(1, fmt.Errorf("no nodes responded in %ds", discoverTimeout))
			}
			return nil
		}
	}
}

func printNode(cmd *cobra.Command, r *hmtl.PollResponse) {
	kinds := make([]string, 0, len(r.Outputs))
	for _, k := range r.Outputs {
		kinds = append(kinds, hmtl.FormatOutputKind(k))
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nNode found:\n")
	fmt.Fprintf(out, "  Address: %s\n", hmtl.FormatAddress(r.Address))
	fmt.Fprintf(out, "  Device ID: %d\n", r.DeviceID)
	fmt.Fprintf(out, "  Object type: %d\n", r.ObjectType)
	fmt.Fprintf(out, "  Hardware: %d, Protocol: %d, Message version: %d\n", r.HardwareVersion, r.ProtocolVersion, r.MsgVersion)
	fmt.Fprintf(out, "  Baud: %d, Receive buffer: %d\n", r.Baud, r.RecvLimit)
	fmt.Fprintf(out, "  Outputs (%d): %s\n", r.NumOutputs, strings.Join(kinds, ", "))
}

// pollCollector extracts POLL responses from a byte stream, reporting each
// device once
type pollCollector struct {
	framer *hmtl.Framer
	seen   map[[2]uint16]bool
}

func newPollCollector() *pollCollector {
	return &pollCollector{
		framer: hmtl.NewFramer(hmtl.MaxMsgSize),
		seen:   make(map[[2]uint16]bool),
	}
}

// Feed processes received bytes and returns the new responses
func (c *pollCollector) Feed(data []byte) []*hmtl.PollResponse {
	var found []*hmtl.PollResponse
	for len(data) > 0 {
		msg, n, err := c.framer.Feed(data)
		data = data[n:]
		if err != nil || msg == nil {
			continue
		}
		if msg.Type != hmtl.MsgTypePoll || len(msg.Payload()) == 0 {
			continue
		}
		r, err := hmtl.DecodePollResponse(msg)
		if err != nil {
			continue
		}
		key := [2]uint16{r.DeviceID, r.Address}
		if c.seen[key] {
			continue
		}
		c.seen[key] = true
		found = append(found, r)
	}
	return found
}
