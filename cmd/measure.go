// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"

	"github.com/abilitylab/armctl/pkg/control"
	"github.com/abilitylab/armctl/pkg/profile"
)

var measureCmd = &cobra.Command{
	Use:   "measure",
	Short: "Show the end-effector pose with both motors back-drivable",
	Long: `Hold both motors at zero torque and print the end-effector pose.

With --profile, the nearest profile row by position and orientation is shown
as well, which helps to check a calibration by moving the arm by hand.`,
	RunE: runMeasure,
}

var (
	measureProfile  string
	measureDuration time.Duration
	measureZero     bool
)

func init() {
	rootCmd.AddCommand(measureCmd)
	measureCmd.Flags().StringVar(&measureProfile, "profile", "", "Torque profile CSV for nearest-row lookup")
	measureCmd.Flags().DurationVar(&measureDuration, "duration", 0, "Stop after this long (0 = until Ctrl+C)")
	measureCmd.Flags().BoolVar(&measureZero, "zero", false, "Set the current pose as zero before starting")
}

func runMeasure(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	controller := control.ZeroTorqueController{Geometry: cfg.Geometry}
	if measureProfile != "" {
		p, err := profile.Load(measureProfile)
		if err != nil {
			return err
		}
		controller.Profile = p
	}

	tr, err := OpenTransport(false)
	if err != nil {
		return err
	}
	arm, err := OpenArm(ctx, tr, measureZero)
	if err != nil {
		return err
	}
	defer printStatistics(arm)

	ticker, err := control.NewClockTicker(clock.New(), cfg.Frequency)
	if err != nil {
		return err
	}
	loop := &control.Loop{
		Motors:     arm,
		Controller: controller,
		Ticker:     ticker,
		Duration:   measureDuration,
		Status: func(s control.Status) {
			line := fmt.Sprintf("EE x: %7.4f  y: %7.4f  theta: %7.2f deg | th1 %7.2f deg  th2 %7.2f deg",
				s.Target.Pose.X, s.Target.Pose.Y, s.Target.Pose.Theta*180/math.Pi,
				s.Joints[0].Degrees(), s.Joints[1].Degrees())
			if s.Target.Row >= 0 {
				line += fmt.Sprintf(" | nearest row %d (%.1f%%)", s.Target.Row, s.Target.Percentage)
			}
			fmt.Printf("\r\x1b[2K%s", line)
		},
		Logger: logger,
	}

	fmt.Printf("Motors at zero torque, move the arm by hand. Press Ctrl+C to stop\n\n")
	_, err = loop.Run(ctx)
	fmt.Println()
	return err
}
