// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"

	"github.com/abilitylab/armctl/pkg/control"
	"github.com/abilitylab/armctl/pkg/profile"
	"github.com/abilitylab/armctl/pkg/telemetry"
)

var assistCmd = &cobra.Command{
	Use:   "assist",
	Short: "Run sit-to-stand assistance",
	Long: `Run the fixed-rate assistance loop.

Each tick reads both joint angles, computes the end-effector position, looks
up the nearest row of the torque profile and commands the resulting joint
torques. Every tick is logged to <log-dir>/<Month>_<DD>/assist_<time>.csv.

The loop stops on Ctrl+C, after --duration, or immediately when either motor
trips its safety envelope. Both motors always leave motor mode on exit.`,
	RunE: runAssist,
}

var (
	assistProfile    string
	assistDuration   time.Duration
	assistTUI        bool
	assistZero       bool
	assistMQTTBroker string
	assistMQTTTopic  string
)

func init() {
	rootCmd.AddCommand(assistCmd)
	assistCmd.Flags().StringVar(&assistProfile, "profile", "torque_profiles/scaled_optimal_profile.csv", "Torque profile CSV")
	assistCmd.Flags().DurationVar(&assistDuration, "duration", 0, "Stop after this long (0 = until Ctrl+C)")
	assistCmd.Flags().BoolVar(&assistTUI, "tui", false, "Show the live dashboard")
	assistCmd.Flags().BoolVar(&assistZero, "zero", false, "Set the current pose as zero before starting")
	assistCmd.Flags().StringVar(&assistMQTTBroker, "mqtt-broker", "", "Also publish telemetry to this broker (tcp://host:1883)")
	assistCmd.Flags().StringVar(&assistMQTTTopic, "mqtt-topic", "", "MQTT topic (default armctl/telemetry)")
}

func runAssist(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	return assist(ctx, cancel)
}

func assist(ctx context.Context, cancel context.CancelFunc) error {
	p, err := profile.Load(assistProfile)
	if err != nil {
		return err
	}
	lo, hi := p.XRange()
	logger.Infow("profile loaded", "path", assistProfile, "rows", p.Len(), "mode", p.Mode(), "x_min", lo, "x_max", hi)

	sink, logPath, err := openSink("assist")
	if err != nil {
		return err
	}
	defer sink.Close()

	tr, err := OpenTransport(false)
	if err != nil {
		return err
	}
	arm, err := OpenArm(ctx, tr, assistZero)
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
		Controller: control.AssistController{Profile: p, Geometry: cfg.Geometry},
		Ticker:     ticker,
		Duration:   assistDuration,
		Sink:       sink,
		Logger:     logger,
	}

	fmt.Printf("Assisting at %.0f Hz, logging to %s\n", cfg.Frequency, logPath)
	var sum control.Summary
	if assistTUI {
		sum, err = runAssistTUI(ctx, cancel, loop, "ASSIST")
	} else {
		fmt.Printf("Press Ctrl+C to stop\n\n")
		loop.Status = printStatus
		sum, err = loop.Run(ctx)
		fmt.Println()
	}
	fmt.Printf("\nLoop: %s\n", sum.Timing)
	return err
}

// openSink creates the CSV session log and, when a broker is configured,
// the MQTT fan-out.
func openSink(command string) (telemetry.Sink, string, error) {
	path := telemetry.LogPath(cfg.LogDir, command, time.Now())
	csvSink, err := telemetry.CreateCSV(path)
	if err != nil {
		return nil, "", err
	}
	sessionLogs = append(sessionLogs, path)

	broker := assistMQTTBroker
	if broker == "" {
		broker = cfg.MQTT.Broker
	}
	if broker == "" {
		return csvSink, path, nil
	}
	topic := assistMQTTTopic
	if topic == "" {
		topic = cfg.MQTT.Topic
	}
	mq, err := telemetry.DialMQTT(telemetry.MQTTOptions{
		Broker: broker,
		Topic:  topic,
		Every:  cfg.MQTT.Every,
		Logger: logger,
	})
	if err != nil {
		logger.Warnw("MQTT disabled", "error", err)
		return csvSink, path, nil
	}
	return telemetry.MultiSink{csvSink, mq}, path, nil
}

// printStatus rewrites a single status line in place.
func printStatus(s control.Status) {
	fmt.Printf("\r\x1b[2K%s", s)
}
