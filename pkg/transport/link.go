// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultBitrate is the bus speed of the Cubemars motors.
const DefaultBitrate = 1000000

type commandRunner func(name string, args ...string) ([]byte, error)

func execRunner(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// link brings a SocketCAN interface up and down with iproute2. The process
// needs CAP_NET_ADMIN.
type link struct {
	run     commandRunner
	bitrate int
	logger  *zap.SugaredLogger
}

func (l link) up(iface string) error {
	bitrate := l.bitrate
	if bitrate <= 0 {
		bitrate = DefaultBitrate
	}
	if err := l.ip("link", "set", iface, "type", "can", "bitrate", strconv.Itoa(bitrate)); err != nil {
		return err
	}
	return l.ip("link", "set", iface, "up")
}

func (l link) down(iface string) error {
	return l.ip("link", "set", iface, "down")
}

func (l link) ip(args ...string) error {
	run := l.run
	if run == nil {
		run = execRunner
	}
	l.logger.Debugw("running ip", "args", strings.Join(args, " "))
	out, err := run("ip", args...)
	if err != nil {
		return errors.Wrapf(err, "ip %s: %s", strings.Join(args, " "), strings.TrimSpace(string(out)))
	}
	return nil
}
