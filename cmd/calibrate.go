// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/abilitylab/armctl/pkg/calibration"
	"github.com/abilitylab/armctl/pkg/control"
	"github.com/abilitylab/armctl/pkg/motor"
	"github.com/abilitylab/armctl/pkg/profile"
	"github.com/abilitylab/armctl/pkg/telemetry"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Fit the torque profile to the user's sit-to-stand",
	Long: `Record one unassisted sit-to-stand and rescale the reference profile.

Both motors are held at zero torque. After the go-ahead and a short countdown
the end-effector X position is recorded for --window. The means of the first
and last 30 samples become the new 0% and 100% endpoints, the reference
profile's EE_X column is rescaled onto them and written to --out. The range
and the trimmed trajectory are stored next to the session log as YAML.

Pressing Ctrl+C before the window ends aborts the calibration and nothing is
written.`,
	RunE: runCalibrate,
}

var (
	calibrateReference string
	calibrateOut       string
	calibrateWindow    time.Duration
	calibratePlot      string
	calibrateZero      bool
	calibrateYes       bool
)

const countdownSeconds = 2

func init() {
	rootCmd.AddCommand(calibrateCmd)
	calibrateCmd.Flags().StringVar(&calibrateReference, "reference", "torque_profiles/optimal_profile.csv", "Reference profile CSV")
	calibrateCmd.Flags().StringVar(&calibrateOut, "out", "torque_profiles/scaled_optimal_profile.csv", "Calibrated profile CSV")
	calibrateCmd.Flags().DurationVar(&calibrateWindow, "window", 0, "Recording window (default from config, 8s)")
	calibrateCmd.Flags().StringVar(&calibratePlot, "plot", "", "Also save a plot of the recording (png, svg or pdf)")
	calibrateCmd.Flags().BoolVar(&calibrateZero, "zero", false, "Set the current pose as zero before starting")
	calibrateCmd.Flags().BoolVarP(&calibrateYes, "yes", "y", false, "Start recording without asking")
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	return calibrate(ctx)
}

func calibrate(ctx context.Context) error {
	reference, err := profile.Load(calibrateReference)
	if err != nil {
		return err
	}
	window := calibrateWindow
	if window <= 0 {
		window = cfg.Calibration.Window
	}
	opts := cfg.CalibrationOptions()
	if window <= opts.Settle {
		return errors.Errorf("--window %v must exceed the %v settle period", window, opts.Settle)
	}

	sink, logPath, err := openSink("calibrate")
	if err != nil {
		return err
	}
	defer sink.Close()

	tr, err := OpenTransport(true)
	if err != nil {
		return err
	}
	arm, err := OpenArm(ctx, tr, calibrateZero)
	if err != nil {
		return err
	}
	defer printStatistics(arm)
	defer motor.CloseAll(arm[:]...)

	var recorded *calibration.Recorder
	proc := &calibration.Procedure{
		Reference: reference,
		Options:   opts,
		Logger:    logger,
		Baseline: func() error {
			for _, s := range arm {
				if _, err := s.SendTorque(0); err != nil {
					return err
				}
			}
			return nil
		},
		Confirm: confirmRecording,
		Record: func(ctx context.Context, rec *calibration.Recorder) error {
			recorded = rec
			ticker, err := control.NewClockTicker(clock.New(), cfg.Frequency)
			if err != nil {
				return err
			}
			loop := &control.Loop{
				Motors:     arm,
				Controller: control.ZeroTorqueController{Geometry: cfg.Geometry},
				Ticker:     ticker,
				Duration:   window,
				Sink:       telemetry.MultiSink{sink, rec.Sink()},
				Status: func(s control.Status) {
					fmt.Printf("\r\x1b[2K[%5.2fs] EE x: %.4f  y: %.4f", s.Elapsed.Seconds(), s.Target.Pose.X, s.Target.Pose.Y)
				},
				Logger: logger,
			}
			pterm.Info.Printf("Recording for %v. Please perform the sit-to-stand motion.\n", window)
			pterm.Info.Println("Press Ctrl+C to abort.")
			_, err = loop.Run(ctx)
			fmt.Println()
			return err
		},
	}

	res, err := proc.Run(ctx)
	if err != nil {
		if errors.Is(err, calibration.ErrAborted) {
			pterm.Warning.Println("Calibration aborted, nothing was saved.")
		}
		return err
	}

	oldMin, oldMax := reference.XRange()
	pterm.Success.Println("Calibration completed.")
	pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
		{"", "reference", "calibrated"},
		{"EE_X min", fmt.Sprintf("%.4f", oldMin), fmt.Sprintf("%.4f", res.Min)},
		{"EE_X max", fmt.Sprintf("%.4f", oldMax), fmt.Sprintf("%.4f", res.Max)},
		{"motion", "", fmt.Sprintf("samples %d-%d", res.Onset, res.Offset)},
	}).Render()

	artifactPath := strings.TrimSuffix(logPath, ".csv") + ".yaml"
	artifact := res.Artifact(calibrateReference, calibrateOut, time.Now())
	if err := calibration.Persist(res, artifact, calibrateOut, artifactPath); err != nil {
		return err
	}
	pterm.Info.Printf("Profile written to %s\n", calibrateOut)
	pterm.Info.Printf("Calibration record written to %s\n", artifactPath)

	if calibratePlot != "" {
		if err := calibration.Plot(recorded.Samples(), res, opts.Period, calibratePlot); err != nil {
			logger.Warnw("plot failed", "error", err)
		} else {
			pterm.Info.Printf("Plot written to %s\n", calibratePlot)
		}
	}
	return nil
}

// confirmRecording waits for the operator's go-ahead, then counts down.
// Declining or interrupting aborts the calibration.
func confirmRecording(ctx context.Context) error {
	if !calibrateYes {
		answer := make(chan bool, 1)
		go func() {
			ok, _ := pterm.DefaultInteractiveConfirm.WithDefaultValue(true).Show("Start recording the sit-to-stand motion?")
			answer <- ok
		}()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ok := <-answer:
			if !ok {
				return calibration.ErrAborted
			}
		}
	}

	for i := countdownSeconds; i > 0; i-- {
		fmt.Printf("\rRecording in %d seconds...", i)
		select {
		case <-ctx.Done():
			fmt.Println()
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	fmt.Println("\rGO!                       ")
	return nil
}
