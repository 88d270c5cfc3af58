// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/abilitylab/armctl/pkg/cubemars"
	"github.com/abilitylab/armctl/pkg/motor"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Handshake one motor and print its telemetry",
	Long: `Enter motor mode on a single motor, optionally set its zero position,
then exchange --count zero-torque commands and print each response.

Useful to check wiring, CAN ids and the channel mapping before running the
arm. The motor always leaves motor mode on exit.`,
	RunE: runProbe,
}

var (
	probeMotor    string
	probeZero     bool
	probeCount    int
	probeInterval time.Duration
)

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().StringVarP(&probeMotor, "motor", "m", "shoulder", "Motor: shoulder, elbow or a model name")
	probeCmd.Flags().BoolVar(&probeZero, "zero", false, "Set the current position as zero")
	probeCmd.Flags().IntVarP(&probeCount, "count", "n", 10, "Zero-torque exchanges to perform")
	probeCmd.Flags().DurationVar(&probeInterval, "interval", 100*time.Millisecond, "Delay between exchanges")
}

func runProbe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	l, err := limitsFor(probeMotor)
	if err != nil {
		return err
	}
	tr, err := OpenTransport(false)
	if err != nil {
		return err
	}
	s, err := motor.NewSession(tr, l, sessionOptions(probeZero))
	if err != nil {
		return err
	}

	fmt.Printf("Probing %s via %s (Ctrl+C to abort)\n", l, tr.Describe())
	if err := s.Open(ctx); err != nil {
		return err
	}
	defer func() {
		s.Close()
		st := s.Stats()
		fmt.Printf("\n%s", st.String())
	}()

	fmt.Printf("Connected: %s\n\n", cubemars.FormatTelemetry(s.Last()))
	for i := 0; i < probeCount; i++ {
		tel, err := s.SendTorque(0)
		if err != nil {
			return err
		}
		if tel.Valid {
			fmt.Printf("[%3d] %s\n", i, cubemars.FormatTelemetry(tel))
		} else {
			fmt.Printf("[%3d] no response\n", i)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(probeInterval):
		}
	}
	return nil
}
