// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Handler answers a frame sent on a fake channel. The returned frames are
// queued for Recv.
type Handler func(channel string, f Frame) []Frame

// Fake is an in-memory Transport. Recv never waits: it returns ErrTimeout
// immediately when nothing is queued.
type Fake struct {
	Handler Handler
	// OpenErr makes Open fail for the named channels.
	OpenErr map[string]error

	mu       sync.Mutex
	channels map[string]*FakeChannel
}

// NewFake returns a fake transport answering frames with h.
func NewFake(h Handler) *Fake {
	return &Fake{Handler: h}
}

func (f *Fake) Describe() string { return "fake" }

func (f *Fake) Open(channel string) (Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.OpenErr[channel]; err != nil {
		return nil, err
	}
	if f.channels == nil {
		f.channels = make(map[string]*FakeChannel)
	}
	if c, ok := f.channels[channel]; ok && !c.isClosed() {
		return nil, errors.Errorf("channel %s already open", channel)
	}
	c := &FakeChannel{name: channel, handler: f.Handler}
	f.channels[channel] = c
	return c, nil
}

// Channel returns the most recently opened channel with the given name.
func (f *Fake) Channel(name string) *FakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[name]
}

// FakeChannel records sent frames and replays queued replies.
type FakeChannel struct {
	name    string
	handler Handler

	mu     sync.Mutex
	sent   []Frame
	queue  []Frame
	closed bool
}

func (c *FakeChannel) Name() string { return c.name }

func (c *FakeChannel) Send(id uint32, data []byte) error {
	if err := checkFrame(id, data); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	f := Frame{ID: id, Data: append([]byte(nil), data...), Time: time.Now()}
	c.sent = append(c.sent, f)
	c.queue = c.queue[:0]
	if c.handler != nil {
		c.queue = append(c.queue, c.handler(c.name, f)...)
	}
	return nil
}

func (c *FakeChannel) Recv(timeout time.Duration) (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Frame{}, ErrClosed
	}
	if len(c.queue) == 0 {
		return Frame{}, ErrTimeout
	}
	f := c.queue[0]
	c.queue = c.queue[1:]
	return f, nil
}

func (c *FakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Inject queues a frame as if it arrived from the bus.
func (c *FakeChannel) Inject(f Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, f)
}

// Sent returns a copy of every frame sent so far.
func (c *FakeChannel) Sent() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.sent...)
}

// Closed reports whether Close was called.
func (c *FakeChannel) Closed() bool {
	return c.isClosed()
}

func (c *FakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
