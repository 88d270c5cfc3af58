// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/abilitylab/armctl/pkg/cubemars"
	"github.com/abilitylab/armctl/pkg/transport"
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Display raw CAN frames in human-readable format",
	Long: `Continuously decode and display the frames seen on one motor's channel.

Reserved frames, commands addressed to the motor and motor responses are
decoded with that motor's limits; anything else is shown as a hex dump.
Nothing is sent, so this can run next to another armctl process on the
same bus.`,
	RunE: runDump,
}

var (
	dumpMotor   string
	dumpTimeout time.Duration
)

const dumpPoll = 100 * time.Millisecond

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().StringVarP(&dumpMotor, "motor", "m", "shoulder", "Motor whose channel and limits to use")
	dumpCmd.Flags().DurationVar(&dumpTimeout, "timeout", 0, "Exit after this long without frames (0 = never)")
}

func runDump(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	l, err := limitsFor(dumpMotor)
	if err != nil {
		return err
	}
	tr, err := OpenTransport(false)
	if err != nil {
		return err
	}
	ch, err := tr.Open(l.Channel)
	if err != nil {
		return err
	}
	defer ch.Close()

	fmt.Printf("armctl - Raw Frame Log\n")
	fmt.Printf("Bus: %s, channel %s, decoding as %s\n", tr.Describe(), l.Channel, l)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	frames := 0
	last := time.Now()
	for ctx.Err() == nil {
		f, err := ch.Recv(dumpPoll)
		switch {
		case err == nil:
			frames++
			last = time.Now()
			ts := f.Time
			if ts.IsZero() {
				ts = last
			}
			fmt.Print(cubemars.FormatFrame(ts, f.ID, f.Data, l))
		case errors.Is(err, transport.ErrTimeout):
			if dumpTimeout > 0 && time.Since(last) >= dumpTimeout {
				fmt.Printf("No frames for %v\n", dumpTimeout)
				return nil
			}
		case errors.Is(err, transport.ErrClosed):
			logger.Infow("channel closed", "channel", l.Channel, "error", err)
			return nil
		default:
			fmt.Printf("[ERROR] %v\n", err)
		}
	}
	fmt.Printf("\n%d frames\n", frames)
	return nil
}
