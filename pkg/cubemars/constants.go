// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package cubemars implements the CubeMars AK-series MIT-mode CAN protocol.
//
// A command is a single 8-byte CAN payload carrying five quantized fields
// (position, velocity, Kp, Kd, feed-forward torque). The motor answers every
// command with a telemetry payload (motor id, position, velocity, torque).
// Three reserved all-0xFF payloads switch the motor into and out of motor
// mode and reset its zero position.
package cubemars

// Payload sizes
const (
	PayloadSize          = 8 // every command, including reserved frames
	ResponseSize         = 6 // id + position + velocity + torque
	ExtendedResponseSize = 8 // newer firmware appends temperature and fault code
)

// Field widths of a command payload, most significant bits first.
const (
	PositionBits = 16
	VelocityBits = 12
	KpBits       = 12
	KdBits       = 12
	TorqueBits   = 12
)

// Terminal byte of the reserved frames (bytes 0-6 are 0xFF).
const (
	modeEnter = 0xFC
	modeExit  = 0xFD
	modeZero  = 0xFE
)

// Firmware reports temperature with a +40 °C offset in extended responses.
const temperatureOffset = 40

// Command presets used by the angle and velocity helpers.
const (
	AngleKp    = 10.0
	AngleKd    = 0.2
	VelocityKd = 2.5
)
