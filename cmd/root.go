// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/abilitylab/armctl/pkg/config"
)

var (
	// Bus flags
	interfaceName string
	portName      string
	baudRate      int
	bitrate       int
	setupLink     bool

	// WebSocket gateway flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Run flags
	configPath string
	frequency  float64
	logDir     string
	verbose    bool

	cfg    config.Config
	logger *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "armctl",
	Short: "Assistive arm actuator control",
	Long: `armctl - Control core for the two-joint sit-to-stand assistive arm.

Drives the shoulder (AK70-10) and elbow (AK60-6) Cubemars actuators over CAN,
calibrates the assistance profile to a user and runs the fixed-rate
assistance loop with the safety envelope always engaged.

Bus interfaces:
  SocketCAN: --interface socketcan [--setup-link] [--bitrate 1000000]
  SLCAN:     --interface slcan --port can0=/dev/ttyACM0,can1=/dev/ttyACM1
  WebSocket: --interface ws --url ws://host/can [--username user]
  Simulated: --interface sim

For WebSocket authentication, the password is read from the ARMCTL_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&interfaceName, "interface", "i", "socketcan", "Bus interface: socketcan, slcan, ws or sim")
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "SLCAN adapters as channel=device pairs")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (slcan only)")
	rootCmd.PersistentFlags().IntVar(&bitrate, "bitrate", 1000000, "CAN bitrate")
	rootCmd.PersistentFlags().BoolVar(&setupLink, "setup-link", false, "Configure and bring up SocketCAN links (needs CAP_NET_ADMIN)")

	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket gateway URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML file overriding limits, geometry and loop settings")
	rootCmd.PersistentFlags().Float64Var(&frequency, "freq", 0, "Control frequency in Hz (default from config, 200)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Directory for session logs (default from config, motor_logs)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging on the console")
}

// setup loads the configuration, applies flag overrides and builds the
// logger shared by every command.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("freq") {
		cfg.Frequency = frequency
	}
	if cmd.Flags().Changed("log-dir") {
		cfg.LogDir = logDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	l, err := newLogger(cfg.LogDir, verbose)
	if err != nil {
		return err
	}
	logger = l.Sugar()
	return nil
}

// newLogger writes human-readable logs to stderr and JSON debug logs to a
// rotated file under dir.
func newLogger(dir string, debug bool) (*zap.Logger, error) {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	consoleConfig := zap.NewDevelopmentEncoderConfig()
	consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	console := zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfig), zapcore.Lock(os.Stderr), level)
	if dir == "" {
		return zap.New(console), nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create log directory")
	}
	file := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "armctl.log"),
		MaxSize:    10, // MB
		MaxBackups: 5,
		Compress:   true,
	}
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(file), zap.DebugLevel)
	return zap.New(zapcore.NewTee(console, fileCore)), nil
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
