// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"encoding/hex"
	"fmt"
	"strconv"
)

const (
	slcanMaxLine = 32 // "T" + 8 id + 1 dlc + 16 data, with slack for timestamps
	slcanCR      = '\r'
	slcanBell    = 0x07
)

// slcanDecoder assembles Lawicel ASCII lines into frames.
type slcanDecoder struct {
	line []byte
}

func newSLCANDecoder() *slcanDecoder {
	return &slcanDecoder{line: make([]byte, 0, slcanMaxLine)}
}

// Reset discards a partial line.
func (d *slcanDecoder) Reset() {
	d.line = d.line[:0]
}

// DecodeByte processes one byte from the adapter.
// Returns a completed standard data frame, or nil if the line is incomplete
// or carries something else (acks, extended or remote frames).
// Returns an error for adapter NAKs and malformed lines.
func (d *slcanDecoder) DecodeByte(b byte) (*Frame, error) {
	switch b {
	case slcanBell:
		d.Reset()
		return nil, fmt.Errorf("adapter rejected command")
	case slcanCR:
		line := string(d.line)
		d.Reset()
		return parseSLCANLine(line)
	}

	if len(d.line) >= slcanMaxLine {
		d.Reset()
		return nil, fmt.Errorf("line overflow (max %d bytes)", slcanMaxLine)
	}
	d.line = append(d.line, b)
	return nil, nil
}

func parseSLCANLine(line string) (*Frame, error) {
	if len(line) == 0 || line[0] != 't' {
		return nil, nil
	}
	if len(line) < 5 {
		return nil, fmt.Errorf("short frame line %q", line)
	}

	id, err := strconv.ParseUint(line[1:4], 16, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid id in %q", line)
	}
	dlc := int(line[4] - '0')
	if dlc < 0 || dlc > MaxDataSize {
		return nil, fmt.Errorf("invalid length in %q", line)
	}
	// Adapters with timestamps enabled append 4 hex digits.
	if len(line) != 5+2*dlc && len(line) != 9+2*dlc {
		return nil, fmt.Errorf("length mismatch in %q", line)
	}
	data, err := hex.DecodeString(line[5 : 5+2*dlc])
	if err != nil {
		return nil, fmt.Errorf("invalid data in %q", line)
	}
	return &Frame{ID: uint32(id), Data: data}, nil
}

// encodeSLCANFrame returns the transmit line for a standard frame.
func encodeSLCANFrame(id uint32, data []byte) []byte {
	return []byte(fmt.Sprintf("t%03X%d%X\r", id, len(data), data))
}

// slcanBitrateCommand returns the "Sn" setup command for a bitrate.
func slcanBitrateCommand(bitrate int) (string, error) {
	codes := map[int]string{
		10000:   "S0",
		20000:   "S1",
		50000:   "S2",
		100000:  "S3",
		125000:  "S4",
		250000:  "S5",
		500000:  "S6",
		800000:  "S7",
		1000000: "S8",
	}
	code, ok := codes[bitrate]
	if !ok {
		return "", fmt.Errorf("unsupported SLCAN bitrate %d", bitrate)
	}
	return code + "\r", nil
}
