// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package safety enforces the actuator limits on every command and every
// telemetry sample.
package safety

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/abilitylab/armctl/pkg/cubemars"
)

const (
	// DefaultTolerance is how far (in field units) a measured value may
	// exceed its rated range before it is a violation.
	DefaultTolerance = 0.5
	// DefaultMaxMissed is the number of consecutive invalid samples treated
	// as bus silence. At 200 Hz this is 50 ms.
	DefaultMaxMissed = 10
)

// ErrNonFinite is returned for commands carrying NaN or Inf.
var ErrNonFinite = errors.New("safety: non-finite command value")

// ViolationType classifies a safety violation
type ViolationType int

const (
	VIOLATION_NON_FINITE ViolationType = iota
	VIOLATION_POSITION
	VIOLATION_VELOCITY
	VIOLATION_TORQUE
	VIOLATION_SILENCE
)

func (t ViolationType) String() string {
	switch t {
	case VIOLATION_NON_FINITE:
		return "NON_FINITE"
	case VIOLATION_POSITION:
		return "POSITION"
	case VIOLATION_VELOCITY:
		return "VELOCITY"
	case VIOLATION_TORQUE:
		return "TORQUE"
	case VIOLATION_SILENCE:
		return "SILENCE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(t))
	}
}

// Violation describes why a command or sample was rejected
type Violation struct {
	Type    ViolationType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *Violation) Error() string {
	return v.Message
}

// Is makes non-finite violations match ErrNonFinite.
func (v *Violation) Is(target error) bool {
	return target == ErrNonFinite && v.Type == VIOLATION_NON_FINITE
}

// ClampCommand clips every field of cmd to its range in l and reports how
// many fields were changed. NaN and Inf cannot be clamped meaningfully and
// yield a VIOLATION_NON_FINITE error instead.
func ClampCommand(cmd cubemars.Command, l cubemars.Limits) (cubemars.Command, int, error) {
	fields := []struct {
		name     string
		value    *float64
		min, max float64
	}{
		{"position", &cmd.Position, l.PMin, l.PMax},
		{"velocity", &cmd.Velocity, l.VMin, l.VMax},
		{"kp", &cmd.Kp, l.KpMin, l.KpMax},
		{"kd", &cmd.Kd, l.KdMin, l.KdMax},
		{"torque", &cmd.Torque, l.TMin, l.TMax},
	}

	clipped := 0
	for _, f := range fields {
		x := *f.value
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return cubemars.Command{}, 0, &Violation{
				Type:    VIOLATION_NON_FINITE,
				Message: fmt.Sprintf("%s: commanded %s is %v", l.Model, f.name, x),
				Details: map[string]interface{}{"field": f.name, "value": x},
			}
		}
		if c := cubemars.Clamp(x, f.min, f.max); c != x {
			*f.value = c
			clipped++
		}
	}
	return cmd, clipped, nil
}

// CheckRange flags a valid sample whose position, velocity or torque is
// outside its rated range by more than tolerance. Invalid samples pass.
func CheckRange(tel cubemars.Telemetry, l cubemars.Limits, tolerance float64) error {
	if !tel.Valid {
		return nil
	}
	checks := []struct {
		kind     ViolationType
		name     string
		value    float64
		min, max float64
	}{
		{VIOLATION_POSITION, "position", tel.Position, l.PMin, l.PMax},
		{VIOLATION_VELOCITY, "velocity", tel.Velocity, l.VMin, l.VMax},
		{VIOLATION_TORQUE, "torque", tel.Torque, l.TMin, l.TMax},
	}
	for _, c := range checks {
		if c.value < c.min-tolerance || c.value > c.max+tolerance || math.IsNaN(c.value) {
			return &Violation{
				Type: c.kind,
				Message: fmt.Sprintf("%s: measured %s=%.3f outside [%g, %g] (tolerance %g)",
					l.Model, c.name, c.value, c.min, c.max, tolerance),
				Details: map[string]interface{}{
					"field": c.name, "value": c.value, "min": c.min, "max": c.max, "tolerance": tolerance,
				},
			}
		}
	}
	return nil
}
