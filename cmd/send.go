// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/hmtlnode/pkg/hmtl"
	"github.com/Thermoquad/hmtlnode/pkg/programs"
	"github.com/spf13/cobra"
)

var (
	sendAddress uint16
	sendOutput  uint8
	sendTimeout int
	sendFlags   uint8
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send an HMTL message",
	Long: `Build an HMTL message and write it to the connection.

The message is addressed with --address (broadcast by default) and targets
output --output. Use --output 254 to address every output of a node.

Colors are written as r,g,b with each channel 0-255.

Examples:
  hmtlnode send rgb 255,0,0 --port /dev/ttyUSB0 --address 5
  hmtlnode send blink 500 255,0,0 500 0,0,255 --port /dev/ttyUSB0
  hmtlnode send setaddr 0 12 --url ws://bridge.local/hmtl`,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.PersistentFlags().Uint16VarP(&sendAddress, "address", "a", hmtl.AddressAny, "Destination address")
	sendCmd.PersistentFlags().Uint8VarP(&sendOutput, "output", "o", 0, "Output index")
	sendCmd.PersistentFlags().Uint8Var(&sendFlags, "flags", 0, "Message flags (1=ack)")
	sendCmd.PersistentFlags().IntVar(&sendTimeout, "timeout", 2, "Seconds to wait for a reply (0 to not wait)")

	sendCmd.AddCommand(
		&cobra.Command{
			Use:   "value VALUE",
			Short: "Set a value output",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.ParseUint(args[0], 0, 16)
				if err != nil {
					return fmt.Errorf("invalid value %q: %w", args[0], err)
				}
				return sendMessage(cmd, hmtl.NewValueMessage(sendAddress, sendOutput, uint16(v)))
			},
		},
		&cobra.Command{
			Use:   "rgb R,G,B",
			Short: "Set an RGB output",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := parseColor(args[0])
				if err != nil {
					return err
				}
				return sendMessage(cmd, hmtl.NewRGBMessage(sendAddress, sendOutput, c[0], c[1], c[2]))
			},
		},
		&cobra.Command{
			Use:   "program TYPE [HEX]",
			Short: "Configure a program from its type id and raw parameters",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				t, err := strconv.ParseUint(args[0], 0, 8)
				if err != nil {
					return fmt.Errorf("invalid program type %q: %w", args[0], err)
				}
				var data []byte
				if len(args) == 2 {
					if data, err = hex.DecodeString(args[1]); err != nil {
						return fmt.Errorf("invalid program data: %w", err)
					}
				}
				msg, err := hmtl.NewProgramMessage(sendAddress, sendOutput, uint8(t), data)
				if err != nil {
					return err
				}
				return sendMessage(cmd, msg)
			},
		},
		&cobra.Command{
			Use:   "none",
			Short: "Clear the program of an output",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return sendMessage(cmd, hmtl.NewProgramNoneMessage(sendAddress, sendOutput))
			},
		},
		&cobra.Command{
			Use:   "color R,G,B",
			Short: "Run the color program",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := parseColor(args[0])
				if err != nil {
					return err
				}
				return sendMessage(cmd, hmtl.NewColorMessage(sendAddress, sendOutput, c[0], c[1], c[2]))
			},
		},
		&cobra.Command{
			Use:   "blink ON_MS ON_COLOR OFF_MS OFF_COLOR",
			Short: "Run the blink program",
			Args:  cobra.ExactArgs(4),
			RunE: func(cmd *cobra.Command, args []string) error {
				onMS, err := parsePeriod(args[0], 16)
				if err != nil {
					return err
				}
				on, err := parseColor(args[1])
				if err != nil {
					return err
				}
				offMS, err := parsePeriod(args[2], 16)
				if err != nil {
					return err
				}
				off, err := parseColor(args[3])
				if err != nil {
					return err
				}
				return sendMessage(cmd, hmtl.NewBlinkMessage(sendAddress, sendOutput, uint16(onMS), on, uint16(offMS), off))
			},
		},
		&cobra.Command{
			Use:   "timed PERIOD_MS START_COLOR STOP_COLOR",
			Short: "Run the timed change program",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				period, start, stop, err := parseTransition(args)
				if err != nil {
					return err
				}
				return sendMessage(cmd, hmtl.NewTimedChangeMessage(sendAddress, sendOutput, period, start, stop))
			},
		},
		newFadeCmd(),
		&cobra.Command{
			Use:   "setaddr DEVICE_ID ADDRESS",
			Short: "Assign an address to a device (device id 0 matches any device)",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := strconv.ParseUint(args[0], 0, 16)
				if err != nil {
					return fmt.Errorf("invalid device id %q: %w", args[0], err)
				}
				addr, err := strconv.ParseUint(args[1], 0, 16)
				if err != nil {
					return fmt.Errorf("invalid address %q: %w", args[1], err)
				}
				return sendMessage(cmd, hmtl.NewSetAddressMessage(sendAddress, uint16(id), uint16(addr)))
			},
		},
		&cobra.Command{
			Use:   "poll",
			Short: "Poll a node and print the replies",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return sendMessage(cmd, hmtl.NewPollMessage(sendAddress))
			},
		},
	)
}

func newFadeCmd() *cobra.Command {
	var cycle bool
	c := &cobra.Command{
		Use:   "fade PERIOD_MS START_COLOR STOP_COLOR",
		Short: "Run the fade program",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			period, start, stop, err := parseTransition(args)
			if err != nil {
				return err
			}
			var flags uint8
			if cycle {
				flags |= programs.FadeCycle
			}
			return sendMessage(cmd, hmtl.NewFadeMessage(sendAddress, sendOutput, period, start, stop, flags))
		},
	}
	c.Flags().BoolVar(&cycle, "cycle", false, "Restart the fade when it completes")
	return c
}

// sendMessage writes msg and prints replies until the timeout
func sendMessage(cmd *cobra.Command, msg *hmtl.Message) error {
	if sendFlags != 0 {
		var err error
		if msg, err = hmtl.NewMessage(msg.Type, sendFlags, msg.Address, msg.Payload()); err != nil {
			return err
		}
	}

	conn, connInfo, err := OpenConnection(cmd.Context())
	if err != nil {
		return exitError(2, fmt.Errorf("connection error: %w", err))
	}
	defer conn.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Sending %s", hmtl.FormatMessage(msg))
	if _, err := conn.Write(msg.Raw); err != nil {
		return exitError(2, fmt.Errorf("send failed: %w", err))
	}
	if sendTimeout <= 0 {
		return nil
	}

	// Print replies until the timeout
	printer := newStreamPrinter(out, false)
	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			printer.Feed(buf[:n])
			if err != nil {
				done <- err
				return
			}
		}
	}()

	select {
	case <-done:
	case <-cmd.Context().Done():
	case <-time.After(time.Duration(sendTimeout) * time.Second):
	}
	return nil
}

func parseColor(s string) ([3]uint8, error) {
	var c [3]uint8
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return c, fmt.Errorf("invalid color %q (want r,g,b)", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 0, 8)
		if err != nil {
			return c, fmt.Errorf("invalid color %q: %w", s, err)
		}
		c[i] = uint8(v)
	}
	return c, nil
}

func parsePeriod(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid period %q: %w", s, err)
	}
	return v, nil
}

func parseTransition(args []string) (uint32, [3]uint8, [3]uint8, error) {
	var start, stop [3]uint8
	period, err := parsePeriod(args[0], 32)
	if err != nil {
		return 0, start, stop, err
	}
	if start, err = parseColor(args[1]); err != nil {
		return 0, start, stop, err
	}
	if stop, err = parseColor(args[2]); err != nil {
		return 0, start, stop, err
	}
	return uint32(period), start, stop, nil
}
