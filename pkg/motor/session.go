// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package motor runs the lifecycle of one Cubemars actuator over a CAN
// channel: handshake, optional zeroing, synchronous command exchanges and a
// guaranteed exit-motor-mode on shutdown.
package motor

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/abilitylab/armctl/pkg/cubemars"
	"github.com/abilitylab/armctl/pkg/safety"
	"github.com/abilitylab/armctl/pkg/transport"
)

const (
	DefaultHandshakeWait = 100 * time.Millisecond
	DefaultRetryInterval = 100 * time.Millisecond
	DefaultReplyTimeout  = 2 * time.Millisecond
	DefaultZeroSettle    = 1500 * time.Millisecond
)

var (
	// ErrEmergencyStop is returned by every command after the session tripped.
	ErrEmergencyStop = errors.New("motor: emergency stop")
	// ErrNotActive is returned for commands outside the Active state.
	ErrNotActive = errors.New("motor: session not active")
)

// StopError carries the violation that tripped a session.
type StopError struct {
	Motor  string
	Reason error
}

func (e *StopError) Error() string {
	if e.Reason == nil {
		return e.Motor + ": emergency stop"
	}
	return e.Motor + ": emergency stop: " + e.Reason.Error()
}

func (e *StopError) Is(target error) bool { return target == ErrEmergencyStop }

func (e *StopError) Unwrap() error { return e.Reason }

// Options configures a session. Zero values select the defaults; a negative
// RetryInterval retries the handshake without waiting.
type Options struct {
	// Zero sets the current position as the new zero reference after the
	// handshake.
	Zero bool

	HandshakeWait time.Duration
	RetryInterval time.Duration
	ReplyTimeout  time.Duration
	ZeroSettle    time.Duration

	Tolerance float64
	MaxMissed int

	Clock  clock.Clock
	Logger *zap.SugaredLogger
}

func (o *Options) setDefaults() {
	if o.HandshakeWait <= 0 {
		o.HandshakeWait = DefaultHandshakeWait
	}
	if o.RetryInterval == 0 {
		o.RetryInterval = DefaultRetryInterval
	} else if o.RetryInterval < 0 {
		o.RetryInterval = 0
	}
	if o.ReplyTimeout <= 0 {
		o.ReplyTimeout = DefaultReplyTimeout
	}
	if o.ZeroSettle <= 0 {
		o.ZeroSettle = DefaultZeroSettle
	}
	if o.Tolerance <= 0 {
		o.Tolerance = safety.DefaultTolerance
	}
	if o.MaxMissed <= 0 {
		o.MaxMissed = safety.DefaultMaxMissed
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
}

// Session owns one motor and its channel. Commands must be issued from a
// single goroutine; State, Last and EmergencyStopped may be read from any.
type Session struct {
	limits    cubemars.Limits
	transport transport.Transport
	opts      Options
	logger    *zap.SugaredLogger

	ch       transport.Channel
	envelope *safety.Envelope
	latch    safety.Latch
	stats    Statistics

	mu    sync.Mutex
	state State
	last  cubemars.Telemetry
}

// NewSession prepares a session in the Disconnected state.
func NewSession(tr transport.Transport, l cubemars.Limits, opts Options) (*Session, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	opts.setDefaults()
	env := safety.NewEnvelope(l)
	env.Tolerance = opts.Tolerance
	env.MaxMissed = opts.MaxMissed

	return &Session{
		limits:    l,
		transport: tr,
		opts:      opts,
		logger:    opts.Logger.With("motor", l.Model, "channel", l.Channel),
		envelope:  env,
		state:     StateDisconnected,
	}, nil
}

// Limits returns the motor limits.
func (s *Session) Limits() cubemars.Limits { return s.limits }

// Name returns the motor model.
func (s *Session) Name() string { return s.limits.Model }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Last returns the most recent telemetry sample.
func (s *Session) Last() cubemars.Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	if !st.StartTime.IsZero() {
		st.Elapsed = s.opts.Clock.Since(st.StartTime)
	}
	return st
}

// EmergencyStopped reports whether the session has tripped.
func (s *Session) EmergencyStopped() bool { return s.latch.Tripped() }

// StopReason returns the violation that tripped the session, if any.
func (s *Session) StopReason() error { return s.latch.Reason() }

func (s *Session) transition(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CanTransition(next) {
		return errors.Errorf("%s: invalid transition %s -> %s", s.limits.Model, s.state, next)
	}
	s.logger.Debugw("state change", "from", s.state, "to", next)
	s.state = next
	return nil
}

// Open opens the channel and repeats the enter-motor-mode handshake until
// the motor answers with a valid response or ctx is done. On cancellation
// the channel is released and ctx.Err() is returned.
func (s *Session) Open(ctx context.Context) error {
	if err := s.transition(StateHandshaking); err != nil {
		return err
	}

	ch, err := s.transport.Open(s.limits.Channel)
	if err != nil {
		s.forceState(StateDisconnected)
		return errors.Wrapf(err, "%s: open %s", s.limits.Model, s.limits.Channel)
	}
	s.ch = ch
	s.mu.Lock()
	s.stats.StartTime = s.opts.Clock.Now()
	s.mu.Unlock()

	tel, err := s.handshake(ctx)
	if err != nil {
		return multiErr(err, s.Close())
	}
	s.setLast(tel)
	s.logger.Infow("motor connected", "telemetry", cubemars.FormatTelemetry(tel))

	if s.opts.Zero {
		if err := s.zero(ctx); err != nil {
			return multiErr(err, s.Close())
		}
	}
	return s.transition(StateActive)
}

func (s *Session) handshake(ctx context.Context) (cubemars.Telemetry, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return cubemars.InvalidTelemetry, err
		}
		s.mu.Lock()
		s.stats.HandshakeAttempts++
		s.mu.Unlock()

		tel, err := s.exchange(cubemars.EnterMotorMode(), s.opts.HandshakeWait)
		if err == nil {
			return tel, nil
		}
		if stderrors.Is(err, transport.ErrClosed) {
			return cubemars.InvalidTelemetry, err
		}
		s.logger.Warnw("no response to enter motor mode", "attempt", attempt, "error", err)

		if s.opts.RetryInterval > 0 {
			select {
			case <-ctx.Done():
				return cubemars.InvalidTelemetry, ctx.Err()
			case <-s.opts.Clock.After(s.opts.RetryInterval):
			}
		}
	}
}

func (s *Session) zero(ctx context.Context) error {
	if err := s.transition(StateZeroing); err != nil {
		return err
	}
	s.logger.Infow("zeroing position")

	tel, err := s.exchange(cubemars.SetZeroPosition(), s.opts.ZeroSettle)
	if err != nil {
		s.logger.Warnw("no response to set zero", "error", err)
	} else {
		s.logger.Infow("zero response", "telemetry", cubemars.FormatTelemetry(tel))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tel, err = s.exchange(cubemars.EncodeCommand(cubemars.Command{}, s.limits), s.opts.ReplyTimeout)
	if err != nil {
		s.logger.Warnw("no response to zero command", "error", err)
		tel = cubemars.InvalidTelemetry
	}
	s.setLast(tel)
	return nil
}

// exchange sends one payload and waits up to timeout for the reply.
func (s *Session) exchange(payload []byte, timeout time.Duration) (cubemars.Telemetry, error) {
	if err := s.ch.Send(uint32(s.limits.Address), payload); err != nil {
		return cubemars.InvalidTelemetry, err
	}
	f, err := s.ch.Recv(timeout)
	if err != nil {
		return cubemars.InvalidTelemetry, err
	}
	return cubemars.DecodeTelemetry(f.Data, s.limits)
}

// SendTorque commands a pure feed-forward torque.
func (s *Session) SendTorque(torque float64) (cubemars.Telemetry, error) {
	return s.Send(cubemars.TorqueCommand(torque))
}

// SendVelocity commands a damped velocity in rad/s.
func (s *Session) SendVelocity(velocity float64) (cubemars.Telemetry, error) {
	return s.Send(cubemars.VelocityCommand(velocity))
}

// SendAngle commands a stiff position hold at an angle in degrees.
func (s *Session) SendAngle(degrees float64) (cubemars.Telemetry, error) {
	return s.Send(cubemars.AngleCommand(degrees))
}

// Send clamps cmd, exchanges it with the motor and checks the reply against
// the safety envelope. A missing or malformed reply is not an error: it
// yields InvalidTelemetry. Safety violations trip the session and return a
// *StopError.
func (s *Session) Send(cmd cubemars.Command) (cubemars.Telemetry, error) {
	if s.latch.Tripped() {
		return cubemars.InvalidTelemetry, s.stopError()
	}
	if st := s.State(); st != StateActive {
		return cubemars.InvalidTelemetry, errors.Wrapf(ErrNotActive, "%s is %s", s.limits.Model, st)
	}

	clamped, clipped, err := safety.ClampCommand(cmd, s.limits)
	if err != nil {
		return cubemars.InvalidTelemetry, s.trip(err)
	}
	if clipped > 0 {
		s.mu.Lock()
		s.stats.ClampedCommands++
		s.mu.Unlock()
		s.logger.Debugw("command clamped", "requested", cubemars.FormatCommand(cmd), "sent", cubemars.FormatCommand(clamped))
	}

	tel, err := s.exchange(cubemars.EncodeCommand(clamped, s.limits), s.opts.ReplyTimeout)
	s.record(err)
	if err != nil {
		s.logger.Debugw("exchange failed", "error", err)
		tel = cubemars.InvalidTelemetry
	}

	if verr := s.envelope.CheckTelemetry(tel); verr != nil {
		s.setLast(tel)
		return tel, s.trip(verr)
	}
	s.setLast(tel)
	return tel, nil
}

// Trip stops the session from outside, e.g. when the controller produced an
// unusable target. It reports whether this call tripped the session.
func (s *Session) Trip(reason error) bool {
	if !s.latch.Trip(reason) {
		return false
	}
	s.mu.Lock()
	s.stats.Violations++
	if s.state == StateActive {
		s.state = StateEmergencyStopped
	}
	s.mu.Unlock()
	s.logger.Errorw("emergency stop", "reason", reason)
	return true
}

func (s *Session) trip(reason error) error {
	s.Trip(reason)
	return s.stopError()
}

func (s *Session) stopError() error {
	return &StopError{Motor: s.limits.Model, Reason: s.latch.Reason()}
}

func (s *Session) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err == nil:
		s.stats.Record(true, false, false, false)
	case stderrors.Is(err, transport.ErrTimeout):
		s.stats.Record(false, true, false, false)
	case stderrors.Is(err, cubemars.ErrInvalidLength), stderrors.Is(err, cubemars.ErrAddressMismatch):
		s.stats.Record(false, false, true, false)
	default:
		s.stats.Record(false, false, false, true)
	}
}

func (s *Session) setLast(tel cubemars.Telemetry) {
	s.mu.Lock()
	s.last = tel
	s.mu.Unlock()
}

func (s *Session) forceState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Close sends exit-motor-mode once, releases the channel and returns to
// Disconnected. Transport errors while sending the exit frame are logged,
// not returned. Close is idempotent.
func (s *Session) Close() error {
	if s.State() == StateDisconnected {
		return nil
	}
	if err := s.transition(StateStopping); err != nil {
		return err
	}

	var closeErr error
	if s.ch != nil {
		if err := s.ch.Send(uint32(s.limits.Address), cubemars.ExitMotorMode()); err != nil {
			s.logger.Warnw("failed to send exit motor mode", "error", err)
		}
		closeErr = s.ch.Close()
		s.ch = nil
	}

	stats := s.Stats()
	s.logger.Infow("motor shut down", "exchanges", stats.Exchanges, "valid", stats.ValidResponses,
		"timeouts", stats.Timeouts, "violations", stats.Violations)

	if err := s.transition(StateDisconnected); err != nil {
		return err
	}
	if closeErr != nil {
		return errors.Wrapf(closeErr, "%s: close %s", s.limits.Model, s.limits.Channel)
	}
	return nil
}
