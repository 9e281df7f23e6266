// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/hmtlnode/pkg/hmtl"
	"github.com/spf13/cobra"
)

var (
	pingTimeout int
	pingCount   int
	pingAddress uint16
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure the round trip to a node with directed POLLs",
	Long: `Send POLL messages to one node and wait for each response.

A directed POLL is answered without the address-proportional delay of a
broadcast POLL, so the round trip time covers the link and the node's
message loop.

This is useful for verifying:
  - The serial line or WebSocket bridge is working
  - The node answers on the expected address
  - Messages are relayed between the serial line and the sockets

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 2, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().Uint16VarP(&pingAddress, "address", "a", 0, "Address of the node")
}

func runPing(cmd *cobra.Command, args []string) error {
	if pingAddress == hmtl.AddressAny {
		return errors.New("ping needs a node address, use discover for broadcast POLLs")
	}

	conn, connInfo, err := OpenConnection(cmd.Context())
	if err != nil {
		return exitError(2, fmt.Errorf("connection error: %w", err))
	}
	defer conn.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "hmtlnode - Ping\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Address: %s, timeout %d seconds per ping\n\n", hmtl.FormatAddress(pingAddress), pingTimeout)

	responses := make(chan *hmtl.PollResponse, 4)
	errChan := make(chan error, 1)
	go func() {
		framer := hmtl.NewFramer(hmtl.MaxMsgSize)
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			for _, b := range buf[:n] {
				msg, ferr := framer.FeedByte(b)
				if ferr != nil || msg == nil || msg.Type != hmtl.MsgTypePoll || len(msg.Payload()) == 0 {
					continue
				}
				if r, derr := hmtl.DecodePollResponse(msg); derr == nil && r.Address == pingAddress {
					responses <- r
				}
			}
			if err != nil {
				errChan <- err
				return
			}
		}
	}()

	successCount := 0
	failCount := 0
	poll := hmtl.NewPollMessage(pingAddress)

	for i := 1; i <= pingCount; i++ {
		fmt.Fprintf(out, "Ping %d/%d: ", i, pingCount)

		startTime := time.Now()
		if _, err := conn.Write(poll.Raw); err != nil {
			fmt.Fprintf(out, "SEND FAILED: %v\n", err)
			failCount++
			continue
		}

		select {
		case r := <-responses:
			fmt.Fprintf(out, "reply from device %d, rtt=%v\n", r.DeviceID, time.Since(startTime).Round(time.Millisecond))
			successCount++

		case err := <-errChan:
			fmt.Fprintf(out, "READ FAILED: %v\n", err)
			return exitError(2, err)

		case <-cmd.Context().Done():
			return nil

		case <-time.After(time.Duration(pingTimeout) * time.Second):
			fmt.Fprintf(out, "TIMEOUT (no response in %ds)\n", pingTimeout)
			failCount++
		}

		// Small delay between pings
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Fprintf(out, "\n--- Ping statistics ---\n")
	fmt.Fprintf(out, "%d pings sent, %d responses received, %.0f%% packet loss\n",
		pingCount, successCount, float64(failCount)/float64(max(pingCount, 1))*100)

	if failCount > 0 {
		return exitError(1, fmt.Errorf("%d of %d pings failed", failCount, pingCount))
	}
	return nil
}
