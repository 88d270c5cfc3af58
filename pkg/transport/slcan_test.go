// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func decodeString(t *testing.T, d *slcanDecoder, s string) ([]Frame, []error) {
	t.Helper()
	var frames []Frame
	var errs []error
	for _, b := range []byte(s) {
		f, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
		}
		if f != nil {
			frames = append(frames, *f)
		}
	}
	return frames, errs
}

func TestSLCANDecoder(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantFrames []Frame
		wantErrs   int
	}{
		{
			name:       "standard frame",
			input:      "t0016018000800800\r",
			wantFrames: []Frame{{ID: 0x001, Data: []byte{0x01, 0x80, 0x00, 0x80, 0x08, 0x00}}},
		},
		{
			name:       "frame with timestamp",
			input:      "t00220102ABCD\r",
			wantFrames: []Frame{{ID: 0x002, Data: []byte{0x01, 0x02}}},
		},
		{
			name:       "empty frame",
			input:      "t7FF0\r",
			wantFrames: []Frame{{ID: 0x7FF, Data: []byte{}}},
		},
		{
			name:  "acks are ignored",
			input: "\rz\rZ\r",
		},
		{
			name:  "extended and remote frames are ignored",
			input: "T0000000121122\rr0010\r",
		},
		{
			name:     "bell is an error",
			input:    "\a",
			wantErrs: 1,
		},
		{
			name:     "bad hex",
			input:    "t001201ZZ\r",
			wantErrs: 1,
		},
		{
			name:     "length mismatch",
			input:    "t0013AABB\r",
			wantErrs: 1,
		},
		{
			name:       "recovers after error",
			input:      "t00\rt0011FF\r",
			wantFrames: []Frame{{ID: 0x001, Data: []byte{0xFF}}},
			wantErrs:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, errs := decodeString(t, newSLCANDecoder(), tt.input)
			if diff := cmp.Diff(tt.wantFrames, frames, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("frames mismatch (-want +got):\n%s", diff)
			}
			if len(errs) != tt.wantErrs {
				t.Errorf("got %d errors (%v), want %d", len(errs), errs, tt.wantErrs)
			}
		})
	}
}

func TestSLCANDecoder_Overflow(t *testing.T) {
	d := newSLCANDecoder()
	_, errs := decodeString(t, d, "t"+string(bytes.Repeat([]byte{'0'}, slcanMaxLine+4)))
	if len(errs) == 0 {
		t.Fatal("expected overflow error")
	}
	frames, errs := decodeString(t, d, "\rt0010\r")
	if len(errs) != 0 || len(frames) != 1 {
		t.Errorf("decoder did not recover: frames=%v errs=%v", frames, errs)
	}
}

func TestEncodeSLCANFrame(t *testing.T) {
	got := encodeSLCANFrame(0x02, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFC})
	want := "t0028FFFFFFFFFFFFFFFC\r"
	if string(got) != want {
		t.Errorf("encodeSLCANFrame() = %q, want %q", got, want)
	}

	frames, errs := decodeString(t, newSLCANDecoder(), string(got))
	if len(errs) != 0 || len(frames) != 1 || frames[0].ID != 0x02 {
		t.Errorf("round trip failed: frames=%v errs=%v", frames, errs)
	}
}

func TestSLCANBitrateCommand(t *testing.T) {
	if cmd, err := slcanBitrateCommand(1000000); err != nil || cmd != "S8\r" {
		t.Errorf("slcanBitrateCommand(1M) = (%q, %v), want S8", cmd, err)
	}
	if _, err := slcanBitrateCommand(123); err == nil {
		t.Error("expected error for unsupported bitrate")
	}
}

func TestParsePorts(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[string]string
		wantErr bool
	}{
		{
			name:  "two adapters",
			input: "can0=/dev/ttyACM0, can1=/dev/ttyACM1",
			want:  map[string]string{"can0": "/dev/ttyACM0", "can1": "/dev/ttyACM1"},
		},
		{name: "missing device", input: "can0=", wantErr: true},
		{name: "bare device", input: "/dev/ttyACM0", wantErr: true},
		{name: "duplicate", input: "can0=/dev/a,can0=/dev/b", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePorts(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePorts failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
