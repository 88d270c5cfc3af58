// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"sync"
	"time"
)

const queueSize = 64

// rxQueue decouples a blocking reader from bounded Recv calls. A background
// goroutine feeds frames into a buffered channel; when the buffer is full the
// oldest frame is dropped.
type rxQueue struct {
	frames chan Frame
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func newRxQueue(read func() (Frame, error)) *rxQueue {
	q := &rxQueue{
		frames: make(chan Frame, queueSize),
		done:   make(chan struct{}),
	}
	go q.run(read)
	return q
}

func (q *rxQueue) run(read func() (Frame, error)) {
	defer close(q.done)
	for {
		f, err := read()
		if err != nil {
			q.mu.Lock()
			q.err = err
			q.mu.Unlock()
			return
		}
		if f.Time.IsZero() {
			f.Time = time.Now()
		}
		q.push(f)
	}
}

func (q *rxQueue) push(f Frame) {
	for {
		select {
		case q.frames <- f:
			return
		default:
		}
		select {
		case <-q.frames:
		default:
		}
	}
}

// recv returns the next queued frame, ErrTimeout, or ErrClosed once the
// reader has stopped and the buffer is empty.
func (q *rxQueue) recv(timeout time.Duration) (Frame, error) {
	select {
	case f := <-q.frames:
		return f, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-q.frames:
		return f, nil
	case <-q.done:
		select {
		case f := <-q.frames:
			return f, nil
		default:
		}
		return Frame{}, q.closedErr()
	case <-timer.C:
		return Frame{}, ErrTimeout
	}
}

// drain discards every frame currently queued.
func (q *rxQueue) drain() int {
	n := 0
	for {
		select {
		case <-q.frames:
			n++
		default:
			return n
		}
	}
}

func (q *rxQueue) closedErr() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err == nil {
		return ErrClosed
	}
	return wrapClosed(q.err)
}

// stopped reports whether the reader goroutine has exited.
func (q *rxQueue) stopped() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}
