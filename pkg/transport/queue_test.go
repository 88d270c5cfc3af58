// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"io"
	"testing"
	"time"
)

// chanReader feeds a queue from a test-controlled channel.
type chanReader struct {
	frames chan Frame
	errs   chan error
}

func newChanReader() *chanReader {
	return &chanReader{frames: make(chan Frame), errs: make(chan error, 1)}
}

func (r *chanReader) read() (Frame, error) {
	select {
	case f := <-r.frames:
		return f, nil
	case err := <-r.errs:
		return Frame{}, err
	}
}

func TestRxQueue_Timeout(t *testing.T) {
	r := newChanReader()
	q := newRxQueue(r.read)

	start := time.Now()
	_, err := q.recv(20 * time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("recv returned after %v, expected to wait for the timeout", elapsed)
	}
}

func TestRxQueue_DeliversFrames(t *testing.T) {
	r := newChanReader()
	q := newRxQueue(r.read)

	r.frames <- Frame{ID: 0x01, Data: []byte{1}}
	f, err := q.recv(time.Second)
	if err != nil {
		t.Fatalf("recv failed: %v", err)
	}
	if f.ID != 0x01 {
		t.Errorf("ID = 0x%X, want 0x01", f.ID)
	}
	if f.Time.IsZero() {
		t.Error("frame time was not stamped")
	}
}

func TestRxQueue_Drain(t *testing.T) {
	r := newChanReader()
	q := newRxQueue(r.read)

	for i := 0; i < 3; i++ {
		r.frames <- Frame{ID: uint32(i)}
	}
	// The third frame may still be in flight between reader and buffer.
	deadline := time.Now().Add(time.Second)
	for len(q.frames) < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if n := q.drain(); n != 3 {
		t.Errorf("drain() = %d, want 3", n)
	}
	if _, err := q.recv(5 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("recv after drain error = %v, want ErrTimeout", err)
	}
}

func TestRxQueue_ReaderFailure(t *testing.T) {
	r := newChanReader()
	q := newRxQueue(r.read)

	r.frames <- Frame{ID: 0x02}
	r.errs <- io.EOF

	f, err := q.recv(time.Second)
	if err != nil || f.ID != 0x02 {
		t.Fatalf("recv = (%v, %v), want buffered frame first", f, err)
	}

	_, err = q.recv(time.Second)
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("error = %v, want ErrClosed", err)
	}
	if !errors.Is(err, io.EOF) {
		t.Errorf("error %v lost its cause", err)
	}
	if !q.stopped() {
		t.Error("queue should report stopped")
	}
}

func TestRxQueue_DropsOldestWhenFull(t *testing.T) {
	r := newChanReader()
	q := newRxQueue(r.read)

	total := queueSize + 5
	for i := 0; i < total; i++ {
		r.frames <- Frame{ID: uint32(i)}
	}
	r.errs <- io.EOF
	<-q.done

	f, err := q.recv(time.Second)
	if err != nil {
		t.Fatalf("recv failed: %v", err)
	}
	if want := uint32(total - queueSize); f.ID != want {
		t.Errorf("oldest kept frame = %d, want %d", f.ID, want)
	}
}
