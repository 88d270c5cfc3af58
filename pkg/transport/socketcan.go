// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build linux

package transport

import (
	"fmt"
	"time"

	"github.com/go-daq/canbus"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// SocketCAN opens kernel CAN interfaces.
type SocketCAN struct {
	// SetupLink configures the bitrate and brings the interface up on Open
	// and down on Close.
	SetupLink bool
	Bitrate   int
	Logger    *zap.SugaredLogger

	run commandRunner
}

func (s *SocketCAN) Describe() string {
	if s.SetupLink {
		return fmt.Sprintf("SocketCAN (link setup @ %d bit/s)", s.bitrate())
	}
	return "SocketCAN"
}

func (s *SocketCAN) bitrate() int {
	if s.Bitrate <= 0 {
		return DefaultBitrate
	}
	return s.Bitrate
}

func (s *SocketCAN) logger() *zap.SugaredLogger {
	if s.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return s.Logger
}

// Open binds a raw CAN socket to the named interface.
func (s *SocketCAN) Open(channel string) (Channel, error) {
	l := link{run: s.run, bitrate: s.bitrate(), logger: s.logger()}
	if s.SetupLink {
		if err := l.up(channel); err != nil {
			return nil, errors.Wrapf(err, "bring up %s", channel)
		}
	}

	sock, err := canbus.New()
	if err != nil {
		return nil, s.abort(l, channel, errors.Wrap(err, "create CAN socket"))
	}
	if err := sock.Bind(channel); err != nil {
		sock.Close()
		return nil, s.abort(l, channel, errors.Wrapf(err, "bind %s", channel))
	}

	c := &socketCANChannel{
		name:      channel,
		sock:      sock,
		link:      l,
		setupLink: s.SetupLink,
	}
	c.rx = newRxQueue(c.read)
	s.logger().Infow("CAN channel open", "channel", channel)
	return c, nil
}

func (s *SocketCAN) abort(l link, channel string, err error) error {
	if s.SetupLink {
		err = multierr.Append(err, l.down(channel))
	}
	return err
}

type socketCANChannel struct {
	name      string
	sock      *canbus.Socket
	rx        *rxQueue
	link      link
	setupLink bool
	closed    bool
}

func (c *socketCANChannel) Name() string { return c.name }

func (c *socketCANChannel) read() (Frame, error) {
	for {
		f, err := c.sock.Recv()
		if err != nil {
			return Frame{}, err
		}
		if f.Kind != canbus.SFF {
			continue
		}
		return Frame{ID: f.ID, Data: f.Data, Time: time.Now()}, nil
	}
}

func (c *socketCANChannel) Send(id uint32, data []byte) error {
	if c.closed {
		return ErrClosed
	}
	if err := checkFrame(id, data); err != nil {
		return err
	}
	c.rx.drain()
	if _, err := c.sock.Send(canbus.Frame{ID: id, Data: data, Kind: canbus.SFF}); err != nil {
		return errors.Wrapf(err, "%s: send 0x%03X", c.name, id)
	}
	return nil
}

func (c *socketCANChannel) Recv(timeout time.Duration) (Frame, error) {
	if c.closed {
		return Frame{}, ErrClosed
	}
	return c.rx.recv(timeout)
}

func (c *socketCANChannel) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.sock.Close()
	if c.setupLink {
		err = multierr.Append(err, c.link.down(c.name))
	}
	return err
}
