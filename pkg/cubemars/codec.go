// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cubemars

import (
	"math"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidLength is returned for payloads of an unexpected size.
	ErrInvalidLength = errors.New("cubemars: invalid payload length")
	// ErrAddressMismatch is returned when a response names another motor.
	ErrAddressMismatch = errors.New("cubemars: response address mismatch")
)

// EncodeCommand packs a command into an 8-byte payload. Each field is clamped
// to its range in l and linearly quantized:
//
//	p[16] | v[12] | kp[12] | kd[12] | t[12]
//
// packed big-endian without gaps. Encoding never fails; NaN fields encode
// as zero (or the nearest range edge if zero is outside the range).
func EncodeCommand(cmd Command, l Limits) []byte {
	p := floatToUint(cmd.Position, l.PMin, l.PMax, PositionBits)
	v := floatToUint(cmd.Velocity, l.VMin, l.VMax, VelocityBits)
	kp := floatToUint(cmd.Kp, l.KpMin, l.KpMax, KpBits)
	kd := floatToUint(cmd.Kd, l.KdMin, l.KdMax, KdBits)
	t := floatToUint(cmd.Torque, l.TMin, l.TMax, TorqueBits)

	return []byte{
		byte(p >> 8),
		byte(p),
		byte(v >> 4),
		byte((v&0xF)<<4 | kp>>8),
		byte(kp),
		byte(kd >> 4),
		byte((kd&0xF)<<4 | t>>8),
		byte(t),
	}
}

// DecodeCommand unpacks a command payload produced by EncodeCommand.
func DecodeCommand(payload []byte, l Limits) (Command, error) {
	if len(payload) != PayloadSize {
		return Command{}, errors.Wrapf(ErrInvalidLength, "command: got %d bytes, want %d", len(payload), PayloadSize)
	}
	if ReservedName(payload) != "" {
		return Command{}, errors.Errorf("command: payload is reserved frame %s", ReservedName(payload))
	}

	p := uint32(payload[0])<<8 | uint32(payload[1])
	v := uint32(payload[2])<<4 | uint32(payload[3])>>4
	kp := uint32(payload[3]&0xF)<<8 | uint32(payload[4])
	kd := uint32(payload[5])<<4 | uint32(payload[6])>>4
	t := uint32(payload[6]&0xF)<<8 | uint32(payload[7])

	return Command{
		Position: uintToFloat(p, l.PMin, l.PMax, PositionBits),
		Velocity: uintToFloat(v, l.VMin, l.VMax, VelocityBits),
		Kp:       uintToFloat(kp, l.KpMin, l.KpMax, KpBits),
		Kd:       uintToFloat(kd, l.KdMin, l.KdMax, KdBits),
		Torque:   uintToFloat(t, l.TMin, l.TMax, TorqueBits),
	}, nil
}

// DecodeTelemetry unpacks a motor response:
//
//	id[8] | p[16] | v[12] | t[12] [| temp[8] | fault[8]]
//
// It fails when the length is neither 6 nor 8 bytes or when the id does not
// match l.Address.
func DecodeTelemetry(payload []byte, l Limits) (Telemetry, error) {
	if len(payload) != ResponseSize && len(payload) != ExtendedResponseSize {
		return InvalidTelemetry, errors.Wrapf(ErrInvalidLength, "response: got %d bytes", len(payload))
	}
	if payload[0] != l.Address {
		return InvalidTelemetry, errors.Wrapf(ErrAddressMismatch, "response from 0x%02X, want 0x%02X", payload[0], l.Address)
	}

	p := uint32(payload[1])<<8 | uint32(payload[2])
	v := uint32(payload[3])<<4 | uint32(payload[4])>>4
	t := uint32(payload[4]&0xF)<<8 | uint32(payload[5])

	tel := Telemetry{
		Position: uintToFloat(p, l.PMin, l.PMax, PositionBits),
		Velocity: uintToFloat(v, l.VMin, l.VMax, VelocityBits),
		Torque:   uintToFloat(t, l.TMin, l.TMax, TorqueBits),
		Valid:    true,
	}
	if len(payload) == ExtendedResponseSize {
		tel.Extended = true
		tel.Temperature = int(payload[6]) - temperatureOffset
		tel.Fault = payload[7]
	}
	return tel, nil
}

// EncodeTelemetry builds a response payload. Motors produce these; the
// simulator and tests use it to answer commands.
func EncodeTelemetry(tel Telemetry, l Limits) []byte {
	p := floatToUint(tel.Position, l.PMin, l.PMax, PositionBits)
	v := floatToUint(tel.Velocity, l.VMin, l.VMax, VelocityBits)
	t := floatToUint(tel.Torque, l.TMin, l.TMax, TorqueBits)

	payload := []byte{
		l.Address,
		byte(p >> 8),
		byte(p),
		byte(v >> 4),
		byte((v&0xF)<<4 | t>>8),
		byte(t),
	}
	if tel.Extended {
		payload = append(payload, byte(tel.Temperature+temperatureOffset), tel.Fault)
	}
	return payload
}

// Clamp limits x to [min, max].
func Clamp(x, min, max float64) float64 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}

func floatToUint(x, min, max float64, bits uint) uint32 {
	if math.IsNaN(x) {
		x = 0
	}
	x = Clamp(x, min, max)
	scale := float64(uint32(1)<<bits - 1)
	return uint32(math.Round((x - min) / (max - min) * scale))
}

func uintToFloat(v uint32, min, max float64, bits uint) float64 {
	scale := float64(uint32(1)<<bits - 1)
	return float64(v)*(max-min)/scale + min
}
