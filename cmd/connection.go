// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/abilitylab/armctl/pkg/cubemars"
	"github.com/abilitylab/armctl/pkg/motor"
	"github.com/abilitylab/armctl/pkg/sim"
	"github.com/abilitylab/armctl/pkg/transport"
)

// Simulated sit-to-stand: joint angles at rest and standing, and when the
// scripted motion happens inside the recording window.
const (
	simShoulderSeated   = 0.2
	simShoulderStanding = 0.6
	simElbowSeated      = 1.6
	simElbowStanding    = 0.6
	simMotionStart      = 1500 * time.Millisecond
	simMotionLength     = 3 * time.Second
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("ARMCTL_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// OpenTransport builds the bus selected by --interface. With scripted set,
// the simulated arm performs a sit-to-stand on its own.
func OpenTransport(scripted bool) (transport.Transport, error) {
	switch interfaceName {
	case "socketcan":
		return &transport.SocketCAN{SetupLink: setupLink, Bitrate: bitrate, Logger: logger}, nil

	case "slcan":
		if portName == "" {
			return nil, fmt.Errorf("--port is required for slcan (e.g. can0=/dev/ttyACM0,can1=/dev/ttyACM1)")
		}
		ports, err := transport.ParsePorts(portName)
		if err != nil {
			return nil, err
		}
		return &transport.SLCAN{Ports: ports, BaudRate: baudRate, Bitrate: bitrate, Logger: logger}, nil

	case "ws":
		if wsURL == "" {
			return nil, fmt.Errorf("--url is required for ws")
		}
		password := ""
		if wsUsername != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, err
			}
		}
		return &transport.WebSocket{
			URL:           wsURL,
			Username:      wsUsername,
			Password:      password,
			SkipSSLVerify: wsNoSSLVerify,
			Logger:        logger,
		}, nil

	case "sim":
		return newSimArm(scripted), nil
	}
	return nil, fmt.Errorf("unknown interface %q (use socketcan, slcan, ws or sim)", interfaceName)
}

func newSimArm(scripted bool) *sim.Transport {
	shoulder := sim.NewMotor(cfg.Shoulder)
	elbow := sim.NewMotor(cfg.Elbow)
	shoulder.SetPosition(simShoulderSeated)
	elbow.SetPosition(simElbowSeated)
	if scripted {
		shoulder.Script = sim.Ramp(simShoulderSeated, simShoulderStanding, simMotionStart, simMotionLength)
		elbow.Script = sim.Ramp(simElbowSeated, simElbowStanding, simMotionStart, simMotionLength)
	}
	return sim.New(cfg.Period(), shoulder, elbow)
}

// sessionOptions returns the per-motor options derived from the config.
func sessionOptions(zero bool) motor.Options {
	return motor.Options{
		Zero:      zero,
		Tolerance: cfg.Safety.Tolerance,
		MaxMissed: cfg.Safety.MaxMissed,
		Logger:    logger,
	}
}

// OpenArm connects both joints concurrently. The returned sessions are
// Active; callers close them with motor.CloseAll (the control loop does so
// itself).
func OpenArm(ctx context.Context, tr transport.Transport, zero bool) ([2]*motor.Session, error) {
	var arm [2]*motor.Session
	for i, l := range []cubemars.Limits{cfg.Shoulder, cfg.Elbow} {
		s, err := motor.NewSession(tr, l, sessionOptions(zero))
		if err != nil {
			return arm, err
		}
		arm[i] = s
	}

	fmt.Printf("Connecting to %s and %s via %s (Ctrl+C to abort)\n", cfg.Shoulder, cfg.Elbow, tr.Describe())
	if err := motor.OpenAll(ctx, arm[:]...); err != nil {
		return arm, err
	}
	return arm, nil
}

// limitsFor resolves a joint name or motor model to its configured limits.
func limitsFor(name string) (cubemars.Limits, error) {
	switch strings.ToLower(name) {
	case "shoulder", "1", strings.ToLower(cfg.Shoulder.Model):
		return cfg.Shoulder, nil
	case "elbow", "2", strings.ToLower(cfg.Elbow.Model):
		return cfg.Elbow, nil
	}
	return cubemars.Limits{}, fmt.Errorf("unknown motor %q (use shoulder, elbow, %s or %s)", name, cfg.Shoulder.Model, cfg.Elbow.Model)
}

func printStatistics(arm [2]*motor.Session) {
	for _, s := range arm {
		if s == nil {
			continue
		}
		st := s.Stats()
		fmt.Printf("\n%s\n%s", s.Limits(), st.String())
		if err := s.StopReason(); err != nil {
			fmt.Printf("Emergency stop:     %v\n", err)
		}
	}
}
