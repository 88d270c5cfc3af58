// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const slcanPollInterval = 100 * time.Millisecond

// SLCAN drives USB-serial CAN adapters speaking the Lawicel ASCII protocol.
// Every CAN channel is a separate adapter.
type SLCAN struct {
	// Ports maps channel names to serial devices.
	Ports    map[string]string
	BaudRate int
	Bitrate  int
	Logger   *zap.SugaredLogger
}

// ParsePorts parses "can0=/dev/ttyACM0,can1=/dev/ttyACM1".
func ParsePorts(list string) (map[string]string, error) {
	ports := make(map[string]string)
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		channel, device, ok := strings.Cut(part, "=")
		if !ok || channel == "" || device == "" {
			return nil, errors.Errorf("invalid port mapping %q (want channel=device)", part)
		}
		if _, dup := ports[channel]; dup {
			return nil, errors.Errorf("channel %s mapped twice", channel)
		}
		ports[channel] = device
	}
	if len(ports) == 0 {
		return nil, errors.New("no serial ports given")
	}
	return ports, nil
}

func (s *SLCAN) Describe() string {
	channels := make([]string, 0, len(s.Ports))
	for ch, dev := range s.Ports {
		channels = append(channels, ch+"="+dev)
	}
	sort.Strings(channels)
	return fmt.Sprintf("SLCAN: %s @ %d baud", strings.Join(channels, ","), s.BaudRate)
}

func (s *SLCAN) logger() *zap.SugaredLogger {
	if s.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return s.Logger
}

// Open opens the adapter mapped to channel and starts the CAN link.
func (s *SLCAN) Open(channel string) (Channel, error) {
	device, ok := s.Ports[channel]
	if !ok {
		return nil, errors.Errorf("no serial adapter mapped to %s", channel)
	}
	bitrate := s.Bitrate
	if bitrate <= 0 {
		bitrate = DefaultBitrate
	}
	setup, err := slcanBitrateCommand(bitrate)
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: s.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial port %s", device)
	}
	if err := port.SetReadTimeout(slcanPollInterval); err != nil {
		port.Close()
		return nil, errors.Wrapf(err, "set read timeout on %s", device)
	}

	// Close first in case the adapter was left open by a previous run.
	for _, cmd := range []string{"C\r", setup, "O\r"} {
		if _, err := port.Write([]byte(cmd)); err != nil {
			port.Close()
			return nil, errors.Wrapf(err, "%s: write %q", device, strings.TrimSpace(cmd))
		}
	}

	c := &slcanChannel{
		name:    channel,
		device:  device,
		port:    port,
		decoder: newSLCANDecoder(),
		logger:  s.logger(),
	}
	c.rx = newRxQueue(c.read)
	s.logger().Infow("SLCAN channel open", "channel", channel, "device", device)
	return c, nil
}

type slcanChannel struct {
	name    string
	device  string
	port    serial.Port
	decoder *slcanDecoder
	rx      *rxQueue
	logger  *zap.SugaredLogger

	buf     [64]byte
	pending []byte
	closed  atomic.Bool
}

func (c *slcanChannel) Name() string { return c.name }

func (c *slcanChannel) read() (Frame, error) {
	for {
		for len(c.pending) > 0 {
			b := c.pending[0]
			c.pending = c.pending[1:]
			f, err := c.decoder.DecodeByte(b)
			if err != nil {
				c.logger.Debugw("SLCAN decode error", "channel", c.name, "error", err)
				continue
			}
			if f != nil {
				f.Time = time.Now()
				return *f, nil
			}
		}

		if c.closed.Load() {
			return Frame{}, ErrClosed
		}
		n, err := c.port.Read(c.buf[:])
		if err != nil {
			return Frame{}, err
		}
		c.pending = c.buf[:n]
	}
}

func (c *slcanChannel) Send(id uint32, data []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := checkFrame(id, data); err != nil {
		return err
	}
	c.rx.drain()
	if _, err := c.port.Write(encodeSLCANFrame(id, data)); err != nil {
		return errors.Wrapf(err, "%s: send 0x%03X", c.name, id)
	}
	return nil
}

func (c *slcanChannel) Recv(timeout time.Duration) (Frame, error) {
	if c.closed.Load() {
		return Frame{}, ErrClosed
	}
	return c.rx.recv(timeout)
}

func (c *slcanChannel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	_, err := c.port.Write([]byte("C\r"))
	// Let the reader observe the flag before the port goes away.
	time.Sleep(slcanPollInterval)
	return multierr.Append(err, c.port.Close())
}
