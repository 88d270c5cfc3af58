// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport moves raw CAN frames between the host and the bus.
//
// A Transport opens named channels (can0, can1, ...). Each Channel carries
// 11-bit standard frames with at most 8 data bytes. Recv is bounded: it
// returns ErrTimeout when nothing arrives within the timeout, never blocks
// forever, and never returns a frame that was already on the wire before
// the preceding Send.
package transport

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// MaxDataSize is the largest classic CAN payload.
const MaxDataSize = 8

var (
	// ErrTimeout is returned by Recv when no frame arrived in time.
	ErrTimeout = errors.New("transport: receive timeout")
	// ErrClosed is returned after the channel has been closed or the
	// underlying connection failed.
	ErrClosed = errors.New("transport: channel closed")
)

// Frame is one CAN frame.
type Frame struct {
	ID   uint32
	Data []byte
	Time time.Time
}

func (f Frame) String() string {
	return fmt.Sprintf("0x%03X [%d] % X", f.ID, len(f.Data), f.Data)
}

// Channel is an open CAN channel. A Channel is used by a single session and
// is not safe for concurrent Send calls.
type Channel interface {
	// Name returns the channel name, e.g. "can0".
	Name() string
	// Send transmits one frame. Frames already queued for receive are
	// discarded first so the next Recv only sees the reply.
	Send(id uint32, data []byte) error
	// Recv waits up to timeout for the next frame.
	Recv(timeout time.Duration) (Frame, error)
	Close() error
}

// Transport opens channels by name.
type Transport interface {
	Open(channel string) (Channel, error)
	// Describe returns a human readable summary for startup banners.
	Describe() string
}

func checkFrame(id uint32, data []byte) error {
	if id > 0x7FF {
		return errors.Errorf("transport: id 0x%X exceeds 11 bits", id)
	}
	if len(data) > MaxDataSize {
		return errors.Errorf("transport: %d data bytes exceeds %d", len(data), MaxDataSize)
	}
	return nil
}
