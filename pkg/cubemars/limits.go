// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cubemars

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// Supported motor models
const (
	ModelAK7010 = "AK70-10"
	ModelAK606  = "AK60-6"
)

// Limits holds the physical ranges used to quantize one motor model's
// commands and telemetry, plus its CAN addressing.
type Limits struct {
	Model string `yaml:"model"`

	PMin float64 `yaml:"p_min"` // rad
	PMax float64 `yaml:"p_max"`
	VMin float64 `yaml:"v_min"` // rad/s
	VMax float64 `yaml:"v_max"`
	TMin float64 `yaml:"t_min"` // N·m
	TMax float64 `yaml:"t_max"`

	KpMin float64 `yaml:"kp_min"`
	KpMax float64 `yaml:"kp_max"`
	KdMin float64 `yaml:"kd_min"`
	KdMax float64 `yaml:"kd_max"`

	Channel string `yaml:"channel"` // bus channel, e.g. can0
	Address uint8  `yaml:"address"` // device id, also the command arbitration id

	// Reference only, not used by the codec.
	TorqueConstant float64 `yaml:"kt"`
	GearRatio      float64 `yaml:"gear_ratio"`
}

// Models is the built-in limit table.
var Models = map[string]Limits{
	ModelAK7010: {
		Model:          ModelAK7010,
		PMin:           -12.5,
		PMax:           12.5,
		VMin:           -50.0,
		VMax:           50.0,
		TMin:           -25.0,
		TMax:           25.0,
		KpMin:          0.0,
		KpMax:          500.0,
		KdMin:          0.0,
		KdMax:          5.0,
		Channel:        "can0",
		Address:        0x01,
		TorqueConstant: 0.095,
		GearRatio:      10.0,
	},
	ModelAK606: {
		Model:          ModelAK606,
		PMin:           -12.5,
		PMax:           12.5,
		VMin:           -50.0,
		VMax:           50.0,
		TMin:           -15.0,
		TMax:           15.0,
		KpMin:          0.0,
		KpMax:          500.0,
		KdMin:          0.0,
		KdMax:          5.0,
		Channel:        "can1",
		Address:        0x02,
		TorqueConstant: 0.068,
		GearRatio:      6.0,
	},
}

// LimitsFor returns the built-in limits for a model.
func LimitsFor(model string) (Limits, error) {
	l, ok := Models[model]
	if !ok {
		return Limits{}, errors.Errorf("unknown motor model %q (known: %v)", model, ModelNames())
	}
	return l, nil
}

// ModelNames returns the known model names in sorted order.
func ModelNames() []string {
	names := make([]string, 0, len(Models))
	for name := range Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every range is well formed.
func (l Limits) Validate() error {
	if l.Model == "" {
		return errors.New("limits: model name is required")
	}
	ranges := []struct {
		name     string
		min, max float64
	}{
		{"position", l.PMin, l.PMax},
		{"velocity", l.VMin, l.VMax},
		{"torque", l.TMin, l.TMax},
		{"kp", l.KpMin, l.KpMax},
		{"kd", l.KdMin, l.KdMax},
	}
	for _, r := range ranges {
		if !(r.min < r.max) {
			return errors.Errorf("limits %s: %s range [%g, %g] is empty", l.Model, r.name, r.min, r.max)
		}
	}
	if l.Channel == "" {
		return errors.Errorf("limits %s: channel is required", l.Model)
	}
	return nil
}

// Quantum returns the size of one quantization step for every command field.
func (l Limits) Quantum() Command {
	return Command{
		Position: step(l.PMin, l.PMax, PositionBits),
		Velocity: step(l.VMin, l.VMax, VelocityBits),
		Kp:       step(l.KpMin, l.KpMax, KpBits),
		Kd:       step(l.KdMin, l.KdMax, KdBits),
		Torque:   step(l.TMin, l.TMax, TorqueBits),
	}
}

// String returns a short identifier for logs.
func (l Limits) String() string {
	return fmt.Sprintf("%s@%s/0x%02X", l.Model, l.Channel, l.Address)
}

func step(min, max float64, bits uint) float64 {
	return (max - min) / float64(uint32(1)<<bits-1)
}
