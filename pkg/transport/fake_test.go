// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"testing"
	"time"
)

func TestFake_SendClearsStaleFrames(t *testing.T) {
	f := NewFake(func(channel string, fr Frame) []Frame {
		return []Frame{{ID: fr.ID + 1, Data: fr.Data}}
	})
	ch, err := f.Open("can0")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	f.Channel("can0").Inject(Frame{ID: 0x99})
	if err := ch.Send(0x01, []byte{7}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	got, err := ch.Recv(time.Millisecond)
	if err != nil {
		t.Fatalf("Recv failed: %v", err)
	}
	if got.ID != 0x02 {
		t.Errorf("Recv ID = 0x%X, want the reply 0x02", got.ID)
	}
	if _, err := ch.Recv(time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("second Recv error = %v, want ErrTimeout", err)
	}
}

func TestFake_Lifecycle(t *testing.T) {
	f := NewFake(nil)
	ch, err := f.Open("can1")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := f.Open("can1"); err == nil {
		t.Error("expected error opening the same channel twice")
	}

	if err := ch.Send(0x800, nil); err == nil {
		t.Error("expected error for 12-bit id")
	}

	ch.Close()
	if !f.Channel("can1").Closed() {
		t.Error("channel should be closed")
	}
	if err := ch.Send(0x01, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after close error = %v, want ErrClosed", err)
	}
	if _, err := f.Open("can1"); err != nil {
		t.Errorf("reopen after close failed: %v", err)
	}
}
