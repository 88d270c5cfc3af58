// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motor

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/abilitylab/armctl/pkg/cubemars"
	"github.com/abilitylab/armctl/pkg/safety"
	"github.com/abilitylab/armctl/pkg/transport"
)

var ak606 = cubemars.Models[cubemars.ModelAK606]

// echoMotor answers every command with telemetry reporting the commanded
// torque and mirrors reserved frames with a resting sample.
func echoMotor(l cubemars.Limits) transport.Handler {
	return func(channel string, f transport.Frame) []transport.Frame {
		tel := cubemars.Telemetry{Valid: true}
		if cubemars.ReservedName(f.Data) == "" {
			cmd, err := cubemars.DecodeCommand(f.Data, l)
			if err != nil {
				return nil
			}
			tel.Torque = cmd.Torque
		}
		return []transport.Frame{{ID: 0, Data: cubemars.EncodeTelemetry(tel, l)}}
	}
}

func newTestSession(t *testing.T, tr transport.Transport, opts Options) *Session {
	t.Helper()
	if opts.RetryInterval == 0 {
		opts.RetryInterval = -1
	}
	s, err := NewSession(tr, ak606, opts)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return s
}

func openActive(t *testing.T, h transport.Handler) (*Session, *transport.Fake) {
	t.Helper()
	tr := transport.NewFake(h)
	s := newTestSession(t, tr, Options{})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s, tr
}

func TestSession_HandshakeTimeoutsNeverActivate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var s *Session
	attempts := 0
	states := map[State]bool{}
	tr := transport.NewFake(func(channel string, f transport.Frame) []transport.Frame {
		if cubemars.ReservedName(f.Data) == "ENTER_MOTOR_MODE" {
			attempts++
			states[s.State()] = true
			if attempts == 50 {
				cancel()
			}
		}
		return nil
	})
	s = newTestSession(t, tr, Options{})

	err := s.Open(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Open error = %v, want context.Canceled", err)
	}
	if attempts != 50 {
		t.Errorf("attempts = %d, want 50", attempts)
	}
	if len(states) != 1 || !states[StateHandshaking] {
		t.Errorf("states seen during handshake = %v, want only HANDSHAKING", states)
	}
	if s.State() != StateDisconnected {
		t.Errorf("State() = %v, want DISCONNECTED", s.State())
	}
	if !tr.Channel(ak606.Channel).Closed() {
		t.Error("channel was not released")
	}
	if got := s.Stats().HandshakeAttempts; got != 50 {
		t.Errorf("HandshakeAttempts = %d, want 50", got)
	}
}

func TestSession_FirstValidResponseActivates(t *testing.T) {
	other := ak606
	other.Address = 0x05

	attempts := 0
	tr := transport.NewFake(func(channel string, f transport.Frame) []transport.Frame {
		attempts++
		switch attempts {
		case 1:
			return nil
		case 2:
			return []transport.Frame{{Data: []byte{0x02, 0x80}}}
		case 3:
			return []transport.Frame{{Data: cubemars.EncodeTelemetry(cubemars.Telemetry{}, other)}}
		default:
			return []transport.Frame{{Data: cubemars.EncodeTelemetry(cubemars.Telemetry{Position: 0.5}, ak606)}}
		}
	})
	s := newTestSession(t, tr, Options{})

	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if s.State() != StateActive {
		t.Errorf("State() = %v, want ACTIVE", s.State())
	}
	if attempts != 4 {
		t.Errorf("attempts = %d, want 4", attempts)
	}
	if last := s.Last(); !last.Valid || math.Abs(last.Position-0.5) > ak606.Quantum().Position {
		t.Errorf("Last() = %+v, want the handshake reply", last)
	}
}

func TestSession_OpenFailure(t *testing.T) {
	tr := transport.NewFake(nil)
	tr.OpenErr = map[string]error{ak606.Channel: errors.New("no such device")}
	s := newTestSession(t, tr, Options{})

	if err := s.Open(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if s.State() != StateDisconnected {
		t.Errorf("State() = %v, want DISCONNECTED", s.State())
	}
}

func TestSession_Zeroing(t *testing.T) {
	tr := transport.NewFake(echoMotor(ak606))
	s := newTestSession(t, tr, Options{Zero: true})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	sent := tr.Channel(ak606.Channel).Sent()
	if len(sent) != 3 {
		t.Fatalf("sent %d frames, want 3", len(sent))
	}
	want := []string{"ENTER_MOTOR_MODE", "SET_ZERO_POSITION", ""}
	for i, name := range want {
		if got := cubemars.ReservedName(sent[i].Data); got != name {
			t.Errorf("frame %d = %q, want %q", i, got, name)
		}
		if sent[i].ID != uint32(ak606.Address) {
			t.Errorf("frame %d id = 0x%X, want 0x%X", i, sent[i].ID, ak606.Address)
		}
	}
	if s.State() != StateActive {
		t.Errorf("State() = %v, want ACTIVE", s.State())
	}
}

func TestSession_SendTorqueClamps(t *testing.T) {
	s, tr := openActive(t, echoMotor(ak606))
	q := ak606.Quantum().Torque

	tel, err := s.SendTorque(20)
	if err != nil {
		t.Fatalf("SendTorque failed: %v", err)
	}

	sent := tr.Channel(ak606.Channel).Sent()
	cmd, err := cubemars.DecodeCommand(sent[len(sent)-1].Data, ak606)
	if err != nil {
		t.Fatalf("DecodeCommand failed: %v", err)
	}
	if math.Abs(cmd.Torque-15) > q {
		t.Errorf("encoded torque = %v, want 15 ± %v", cmd.Torque, q)
	}
	if math.Abs(tel.Torque-15) > 2*q {
		t.Errorf("reported torque = %v, want about 15", tel.Torque)
	}
	if got := s.Stats().ClampedCommands; got != 1 {
		t.Errorf("ClampedCommands = %d, want 1", got)
	}
}

func TestSession_Presets(t *testing.T) {
	s, tr := openActive(t, echoMotor(ak606))
	ch := tr.Channel(ak606.Channel)

	tests := []struct {
		name string
		send func() (cubemars.Telemetry, error)
		want cubemars.Command
	}{
		{"angle", func() (cubemars.Telemetry, error) { return s.SendAngle(90) }, cubemars.Command{Position: math.Pi / 2, Kp: 10, Kd: 0.2}},
		{"velocity", func() (cubemars.Telemetry, error) { return s.SendVelocity(1.5) }, cubemars.Command{Velocity: 1.5, Kd: 2.5}},
		{"torque", func() (cubemars.Telemetry, error) { return s.SendTorque(-3) }, cubemars.Command{Torque: -3}},
	}

	q := ak606.Quantum()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.send(); err != nil {
				t.Fatalf("send failed: %v", err)
			}
			sent := ch.Sent()
			got, err := cubemars.DecodeCommand(sent[len(sent)-1].Data, ak606)
			if err != nil {
				t.Fatalf("DecodeCommand failed: %v", err)
			}
			if math.Abs(got.Position-tt.want.Position) > q.Position ||
				math.Abs(got.Velocity-tt.want.Velocity) > q.Velocity ||
				math.Abs(got.Kp-tt.want.Kp) > q.Kp ||
				math.Abs(got.Kd-tt.want.Kd) > q.Kd ||
				math.Abs(got.Torque-tt.want.Torque) > q.Torque {
				t.Errorf("sent %s, want %s", cubemars.FormatCommand(got), cubemars.FormatCommand(tt.want))
			}
		})
	}
}

func TestSession_MissingReplyIsInvalidNotError(t *testing.T) {
	mute := false
	h := echoMotor(ak606)
	s, _ := openActive(t, func(channel string, f transport.Frame) []transport.Frame {
		if mute {
			return nil
		}
		return h(channel, f)
	})

	mute = true
	tel, err := s.SendTorque(1)
	if err != nil {
		t.Fatalf("SendTorque error = %v, want nil for a single missed reply", err)
	}
	if tel.Valid || tel != cubemars.InvalidTelemetry {
		t.Errorf("telemetry = %+v, want zero invalid sample", tel)
	}
	if got := s.Stats().Timeouts; got != 1 {
		t.Errorf("Timeouts = %d, want 1", got)
	}
}

func TestSession_SilenceTripsOnce(t *testing.T) {
	mute := false
	h := echoMotor(ak606)
	s, tr := openActive(t, func(channel string, f transport.Frame) []transport.Frame {
		if mute {
			return nil
		}
		return h(channel, f)
	})
	ch := tr.Channel(ak606.Channel)
	mute = true

	var err error
	sends := 0
	for err == nil && sends < 100 {
		_, err = s.SendTorque(0)
		sends++
	}
	if sends != safety.DefaultMaxMissed+1 {
		t.Errorf("tripped after %d sends, want %d", sends, safety.DefaultMaxMissed+1)
	}
	if !errors.Is(err, ErrEmergencyStop) {
		t.Fatalf("error = %v, want ErrEmergencyStop", err)
	}
	var v *safety.Violation
	if !errors.As(err, &v) || v.Type != safety.VIOLATION_SILENCE {
		t.Errorf("error %v does not carry the silence violation", err)
	}
	if s.State() != StateEmergencyStopped {
		t.Errorf("State() = %v, want EMERGENCY_STOPPED", s.State())
	}

	before := len(ch.Sent())
	if _, err := s.SendTorque(1); !errors.Is(err, ErrEmergencyStop) {
		t.Errorf("Send after trip error = %v, want ErrEmergencyStop", err)
	}
	if len(ch.Sent()) != before {
		t.Error("a tripped session must not transmit commands")
	}
	if s.Trip(errors.New("again")) {
		t.Error("second trip should report false")
	}
	if got := s.Stats().Violations; got != 1 {
		t.Errorf("Violations = %d, want 1", got)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	sent := ch.Sent()
	if cubemars.ReservedName(sent[len(sent)-1].Data) != "EXIT_MOTOR_MODE" {
		t.Error("Close did not send exit motor mode")
	}
}

func TestSession_NonFiniteTrips(t *testing.T) {
	s, _ := openActive(t, echoMotor(ak606))

	_, err := s.SendTorque(math.NaN())
	if !errors.Is(err, ErrEmergencyStop) || !errors.Is(err, safety.ErrNonFinite) {
		t.Fatalf("error = %v, want emergency stop caused by ErrNonFinite", err)
	}
	if !s.EmergencyStopped() {
		t.Error("session should be stopped")
	}
}

func TestSession_NotActive(t *testing.T) {
	s := newTestSession(t, transport.NewFake(nil), Options{})
	if _, err := s.SendTorque(1); !errors.Is(err, ErrNotActive) {
		t.Errorf("error = %v, want ErrNotActive", err)
	}
}

func TestSession_CloseIdempotent(t *testing.T) {
	s, tr := openActive(t, echoMotor(ak606))

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if s.State() != StateDisconnected {
		t.Errorf("State() = %v, want DISCONNECTED", s.State())
	}
	exits := 0
	for _, f := range tr.Channel(ak606.Channel).Sent() {
		if cubemars.ReservedName(f.Data) == "EXIT_MOTOR_MODE" {
			exits++
		}
	}
	if exits != 1 {
		t.Errorf("exit frames = %d, want 1", exits)
	}
}

// downBus opens channels whose Send always fails, like an interface that is
// down.
type downBus struct{}

func (downBus) Describe() string { return "down" }

func (downBus) Open(channel string) (transport.Channel, error) {
	return downChannel(channel), nil
}

type downChannel string

func (c downChannel) Name() string { return string(c) }

func (c downChannel) Send(id uint32, data []byte) error {
	return errors.New("network is down")
}

func (c downChannel) Recv(timeout time.Duration) (transport.Frame, error) {
	return transport.Frame{}, transport.ErrTimeout
}

func (c downChannel) Close() error { return nil }

func TestSession_HandshakeWaitsBetweenAttempts(t *testing.T) {
	s, err := NewSession(downBus{}, ak606, Options{})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	if err := s.Open(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Open error = %v, want context.DeadlineExceeded", err)
	}

	// Attempts at 0, 100 and 200 ms with the default retry interval.
	if n := s.Stats().HandshakeAttempts; n < 1 || n > 4 {
		t.Errorf("HandshakeAttempts = %d in 250ms, want at most one per %v", n, DefaultRetryInterval)
	}
	if s.State() != StateDisconnected {
		t.Errorf("State() = %v, want DISCONNECTED", s.State())
	}
}

func TestStopError_NilReason(t *testing.T) {
	err := &StopError{Motor: ak606.Model}
	if got, want := err.Error(), ak606.Model+": emergency stop"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrEmergencyStop) {
		t.Error("StopError should match ErrEmergencyStop")
	}
}
