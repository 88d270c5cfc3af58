// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sim provides an in-process arm: Cubemars motors that answer the MIT
// protocol over a fake transport and follow simple rigid-body dynamics.
package sim

import (
	"math"
	"sync"
	"time"

	"github.com/abilitylab/armctl/pkg/cubemars"
	"github.com/abilitylab/armctl/pkg/transport"
)

const (
	DefaultPeriod  = 5 * time.Millisecond
	DefaultInertia = 0.05 // kg·m²
	DefaultDamping = 0.5  // N·m·s/rad
)

// Script drives a motor's position from outside, e.g. a person standing up
// while the motor is back-driven. It receives the time since the motor
// entered motor mode.
type Script func(t time.Duration) float64

// Motor is one simulated actuator.
type Motor struct {
	Limits  cubemars.Limits
	Inertia float64
	Damping float64
	// Script, when set, overrides the dynamics for position and velocity.
	Script Script

	mu       sync.Mutex
	enabled  bool
	silent   bool
	steps    int
	position float64
	velocity float64
	torque   float64
	commands []cubemars.Command
}

// NewMotor returns a resting motor with default dynamics.
func NewMotor(l cubemars.Limits) *Motor {
	return &Motor{Limits: l, Inertia: DefaultInertia, Damping: DefaultDamping}
}

// SetPosition moves the rotor without dynamics.
func (m *Motor) SetPosition(rad float64) {
	m.mu.Lock()
	m.position = rad
	m.mu.Unlock()
}

// SetSilent makes the motor ignore every frame while true.
func (m *Motor) SetSilent(silent bool) {
	m.mu.Lock()
	m.silent = silent
	m.mu.Unlock()
}

// Enabled reports whether the motor is in motor mode.
func (m *Motor) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Position returns the rotor position in rad.
func (m *Motor) Position() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

// Commands returns every decoded command received in motor mode.
func (m *Motor) Commands() []cubemars.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]cubemars.Command(nil), m.commands...)
}

func (m *Motor) handle(f transport.Frame, dt time.Duration) []transport.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.silent || f.ID != uint32(m.Limits.Address) {
		return nil
	}

	switch cubemars.ReservedName(f.Data) {
	case "ENTER_MOTOR_MODE":
		m.enabled = true
		m.steps = 0
	case "EXIT_MOTOR_MODE":
		m.enabled = false
		m.velocity, m.torque = 0, 0
	case "SET_ZERO_POSITION":
		if !m.enabled {
			return nil
		}
		m.position = 0
	default:
		if !m.enabled {
			return nil
		}
		cmd, err := cubemars.DecodeCommand(f.Data, m.Limits)
		if err != nil {
			return nil
		}
		m.commands = append(m.commands, cmd)
		m.step(cmd, dt)
	}
	return []transport.Frame{m.reply()}
}

func (m *Motor) step(cmd cubemars.Command, dt time.Duration) {
	l := m.Limits
	h := dt.Seconds()
	m.steps++

	tau := cmd.Kp*(cmd.Position-m.position) + cmd.Kd*(cmd.Velocity-m.velocity) + cmd.Torque
	m.torque = cubemars.Clamp(tau, l.TMin, l.TMax)

	if m.Script != nil {
		next := m.Script(time.Duration(m.steps) * dt)
		m.velocity = cubemars.Clamp((next-m.position)/h, l.VMin, l.VMax)
		m.position = cubemars.Clamp(next, l.PMin, l.PMax)
		return
	}

	inertia := m.Inertia
	if inertia <= 0 {
		inertia = DefaultInertia
	}
	acc := (m.torque - m.Damping*m.velocity) / inertia
	m.velocity = cubemars.Clamp(m.velocity+acc*h, l.VMin, l.VMax)
	m.position = cubemars.Clamp(m.position+m.velocity*h, l.PMin, l.PMax)
}

func (m *Motor) reply() transport.Frame {
	tel := cubemars.Telemetry{
		Position: m.position,
		Velocity: m.velocity,
		Torque:   m.torque,
		Valid:    true,
	}
	return transport.Frame{ID: 0, Data: cubemars.EncodeTelemetry(tel, m.Limits)}
}

// Transport is a fake bus with one simulated motor per channel.
type Transport struct {
	*transport.Fake

	period time.Duration
	motors map[string]*Motor
}

// New wires the motors to their configured channels. Each command advances
// the dynamics by period.
func New(period time.Duration, motors ...*Motor) *Transport {
	if period <= 0 {
		period = DefaultPeriod
	}
	t := &Transport{period: period, motors: make(map[string]*Motor, len(motors))}
	for _, m := range motors {
		t.motors[m.Limits.Channel] = m
	}
	t.Fake = transport.NewFake(t.handle)
	return t
}

func (t *Transport) Describe() string { return "simulated arm" }

// Motor returns the motor on channel, or nil.
func (t *Transport) Motor(channel string) *Motor {
	return t.motors[channel]
}

func (t *Transport) handle(channel string, f transport.Frame) []transport.Frame {
	m, ok := t.motors[channel]
	if !ok {
		return nil
	}
	return m.handle(f, t.period)
}

// Ramp returns a script moving smoothly from `from` to `to` between start and
// start+length, resting at the ends.
func Ramp(from, to float64, start, length time.Duration) Script {
	return func(t time.Duration) float64 {
		if length <= 0 {
			return to
		}
		s := float64(t-start) / float64(length)
		s = math.Max(0, math.Min(1, s))
		s = s * s * (3 - 2*s)
		return from + (to-from)*s
	}
}
