// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/abilitylab/armctl/pkg/calibration"
)

const (
	menuCalibrate = "Calibrate height"
	menuAssist    = "Run assistance"
	menuExit      = "Exit"
)

// sessionLogs holds every telemetry log created by this process, so the
// operator can discard them on exit.
var sessionLogs []string

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Interactive operator menu (default)",
	Long: `Offer calibration and assistance runs in a loop until Exit is chosen.

On exit the operator is asked whether to keep the telemetry logs written
during the session. This is also what armctl runs without a subcommand.`,
	RunE: runMenu,
}

func init() {
	rootCmd.AddCommand(menuCmd)
	rootCmd.RunE = runMenu
}

func runMenu(cmd *cobra.Command, args []string) error {
	pterm.DefaultHeader.Println("Assistive arm control")
	for {
		choice, err := pterm.DefaultInteractiveSelect.
			WithOptions([]string{menuCalibrate, menuAssist, menuExit}).
			Show("Select an option")
		if err != nil {
			return err
		}

		switch choice {
		case menuCalibrate:
			err = runMenuItem(func(ctx context.Context, _ context.CancelFunc) error {
				return calibrate(ctx)
			})
		case menuAssist:
			err = runMenuItem(assist)
		case menuExit:
			return cleanupSessionLogs()
		}

		switch {
		case err == nil:
		case errors.Is(err, calibration.ErrAborted):
			// already reported
		default:
			pterm.Error.Println(err)
			logger.Errorw("menu item failed", "choice", choice, "error", err)
		}
	}
}

// runMenuItem gives each run its own interrupt scope, so Ctrl+C returns to
// the menu instead of ending the process.
func runMenuItem(fn func(context.Context, context.CancelFunc) error) error {
	ctx, cancel := signalContext()
	defer cancel()
	return fn(ctx, cancel)
}

func cleanupSessionLogs() error {
	if len(sessionLogs) == 0 {
		return nil
	}
	keep, err := pterm.DefaultInteractiveConfirm.WithDefaultValue(true).Show("Keep log file?")
	if err != nil || keep {
		return err
	}

	var errs error
	for _, path := range sessionLogs {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = multierr.Append(errs, err)
			continue
		}
		logger.Infow("removed session log", "path", path)
	}
	sessionLogs = nil
	return errs
}
