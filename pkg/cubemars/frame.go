// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cubemars

import "math"

// Command is one MIT-mode setpoint in physical units.
type Command struct {
	Position float64 // rad
	Velocity float64 // rad/s
	Kp       float64
	Kd       float64
	Torque   float64 // N·m, feed-forward
}

// Telemetry is one decoded motor response. Valid is false when the motor did
// not answer or the payload was malformed; the other fields are then zero.
type Telemetry struct {
	Position    float64 // rad
	Velocity    float64 // rad/s
	Torque      float64 // N·m
	Temperature int     // °C, extended responses only
	Fault       uint8   // extended responses only
	Extended    bool
	Valid       bool
}

// InvalidTelemetry is the sample recorded for a tick without a usable response.
var InvalidTelemetry = Telemetry{}

// TorqueCommand returns a pure feed-forward torque command.
func TorqueCommand(torque float64) Command {
	return Command{Torque: torque}
}

// VelocityCommand returns a damped velocity command.
func VelocityCommand(velocity float64) Command {
	return Command{Velocity: velocity, Kd: VelocityKd}
}

// AngleCommand returns a stiff position command for an angle in degrees.
func AngleCommand(degrees float64) Command {
	return Command{Position: degrees * math.Pi / 180.0, Kp: AngleKp, Kd: AngleKd}
}

// Degrees converts the telemetry position to degrees.
func (t Telemetry) Degrees() float64 {
	return t.Position * 180.0 / math.Pi
}

// EnterMotorMode returns the reserved payload that enables motor mode.
func EnterMotorMode() []byte {
	return reserved(modeEnter)
}

// ExitMotorMode returns the reserved payload that disables motor mode.
func ExitMotorMode() []byte {
	return reserved(modeExit)
}

// SetZeroPosition returns the reserved payload that makes the current
// position the new zero reference.
func SetZeroPosition() []byte {
	return reserved(modeZero)
}

// ReservedName returns the name of a reserved payload, or "" if the payload
// is an ordinary command.
func ReservedName(payload []byte) string {
	if len(payload) != PayloadSize {
		return ""
	}
	for _, b := range payload[:PayloadSize-1] {
		if b != 0xFF {
			return ""
		}
	}
	switch payload[PayloadSize-1] {
	case modeEnter:
		return "ENTER_MOTOR_MODE"
	case modeExit:
		return "EXIT_MOTOR_MODE"
	case modeZero:
		return "SET_ZERO_POSITION"
	}
	return ""
}

func reserved(mode byte) []byte {
	return []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, mode}
}
