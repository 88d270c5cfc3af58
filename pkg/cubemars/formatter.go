// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cubemars

import (
	"fmt"
	"time"
)

// FormatCommand formats a command in physical units
func FormatCommand(cmd Command) string {
	return fmt.Sprintf("p=%.3f rad v=%.3f rad/s kp=%.1f kd=%.2f t=%.3f Nm",
		cmd.Position, cmd.Velocity, cmd.Kp, cmd.Kd, cmd.Torque)
}

// FormatTelemetry formats a telemetry sample, angle in degrees
func FormatTelemetry(tel Telemetry) string {
	if !tel.Valid {
		return "no response"
	}
	result := fmt.Sprintf("Angle: %.3f° Velocity: %.3f rad/s Torque: %.3f Nm", tel.Degrees(), tel.Velocity, tel.Torque)
	if tel.Extended {
		result += fmt.Sprintf(" Temp: %d°C Fault: %s", tel.Temperature, FormatFault(tel.Fault))
	}
	return result
}

// FormatFault returns the name of an extended-response fault code
func FormatFault(code uint8) string {
	switch code {
	case 0:
		return "NONE"
	case 1:
		return "OVER_TEMPERATURE"
	case 2:
		return "OVER_CURRENT"
	case 3:
		return "OVER_VOLTAGE"
	case 4:
		return "UNDER_VOLTAGE"
	case 5:
		return "ENCODER"
	case 6:
		return "PHASE_CURRENT_UNBALANCE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", code)
	}
}

// FormatFrame formats a raw frame seen on the bus. Reserved payloads and
// commands (8 bytes addressed to the motor) and responses (id byte matches the
// motor) are decoded; anything else falls back to a hex dump.
func FormatFrame(ts time.Time, id uint32, payload []byte, l Limits) string {
	timestamp := ts.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] id=0x%03X len=%d ", timestamp, id, len(payload))

	if name := ReservedName(payload); name != "" {
		return result + name + "\n"
	}

	if id == uint32(l.Address) && len(payload) == PayloadSize {
		if cmd, err := DecodeCommand(payload, l); err == nil {
			return result + "COMMAND\n  " + FormatCommand(cmd) + "\n"
		}
	}

	if tel, err := DecodeTelemetry(payload, l); err == nil {
		return result + "RESPONSE\n  " + FormatTelemetry(tel) + "\n"
	}

	return result + "UNKNOWN\n" + FormatPayload(payload)
}

// FormatPayload returns a hex dump of the payload
func FormatPayload(payload []byte) string {
	result := "  Payload: "
	for i, b := range payload {
		if i > 0 && i%16 == 0 {
			result += "\n           "
		}
		result += fmt.Sprintf("%02X ", b)
	}
	return result + "\n"
}
