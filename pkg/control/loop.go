// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package control runs the fixed-rate assistance loop over the shoulder and
// elbow motor sessions.
package control

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/abilitylab/armctl/pkg/cubemars"
	"github.com/abilitylab/armctl/pkg/kinematics"
	"github.com/abilitylab/armctl/pkg/motor"
	"github.com/abilitylab/armctl/pkg/profile"
	"github.com/abilitylab/armctl/pkg/telemetry"
)

// DefaultStatusEvery is the status cadence in elapsed loop time.
const DefaultStatusEvery = 50 * time.Millisecond

// Status is the state of one tick, handed to the status callback.
type Status struct {
	Tick    int
	Elapsed time.Duration
	Target  profile.Target
	Joints  [2]cubemars.Telemetry
	// ZeroTorque is set when a motor had no valid telemetry and the tick
	// commanded zero torque instead of the controller output.
	ZeroTorque bool
	// HeldPose is set when Target.Pose repeats the last pose computed from
	// valid telemetry instead of one computed this tick.
	HeldPose bool
}

func (s Status) String() string {
	row := "-"
	if s.Target.Row >= 0 {
		row = fmt.Sprintf("%d (%.1f%%)", s.Target.Row, s.Target.Percentage)
	}
	line := fmt.Sprintf("[%7.3fs] row %-12s EE (%.3f, %.3f) | tau1 %6.2f/%6.2f th1 %7.2f deg | tau2 %6.2f/%6.2f th2 %7.2f deg",
		s.Elapsed.Seconds(), row, s.Target.Pose.X, s.Target.Pose.Y,
		s.Target.Tau1, s.Joints[0].Torque, s.Joints[0].Degrees(),
		s.Target.Tau2, s.Joints[1].Torque, s.Joints[1].Degrees())
	if s.ZeroTorque {
		line += " [no telemetry]"
	}
	return line
}

// Record converts the tick into a log row.
func (s Status) Record() telemetry.Record {
	return telemetry.Record{
		Time:         s.Elapsed.Seconds(),
		Index:        s.Target.Row,
		TargetTau1:   s.Target.Tau1,
		MeasuredTau1: s.Joints[0].Torque,
		Theta1:       s.Joints[0].Position,
		Velocity1:    s.Joints[0].Velocity,
		TargetTau2:   s.Target.Tau2,
		MeasuredTau2: s.Joints[1].Torque,
		Theta2:       s.Joints[1].Position,
		Velocity2:    s.Joints[1].Velocity,
		X:            s.Target.Pose.X,
		Y:            s.Target.Pose.Y,
		Stale:        s.HeldPose,
	}
}

// Summary describes a finished run.
type Summary struct {
	Ticks           int
	ZeroTorqueTicks int
	SinkErrors      int
	Elapsed         time.Duration
	Interrupted     bool
	Timing          TickStats
}

// Loop drives the shoulder (Motors[0]) and elbow (Motors[1]) sessions. Both
// sessions must be Active when Run starts; Run closes them when it returns.
type Loop struct {
	Motors     [2]*motor.Session
	Controller Controller
	Ticker     Ticker

	// Duration bounds the run; zero runs until ctx is done.
	Duration time.Duration
	// StatusEvery is the cadence of Status calls in elapsed loop time.
	StatusEvery time.Duration
	Status      func(Status)
	Sink        telemetry.Sink

	// Clock measures the work done per tick.
	Clock  clock.Clock
	Logger *zap.SugaredLogger
}

func (l *Loop) validate() error {
	for i, m := range l.Motors {
		if m == nil {
			return errors.Errorf("control: motor %d not set", i+1)
		}
	}
	if l.Controller == nil {
		return errors.New("control: no controller")
	}
	if l.Ticker == nil {
		return errors.New("control: no ticker")
	}
	return nil
}

// Run executes ticks until the duration elapses, ctx is done or a session
// trips. An operator interrupt is a clean exit and returns a nil error; a
// trip returns the session's *motor.StopError. Every session is closed
// before Run returns.
func (l *Loop) Run(ctx context.Context) (sum Summary, err error) {
	if err := l.validate(); err != nil {
		return sum, err
	}
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	clk := l.Clock
	if clk == nil {
		clk = clock.New()
	}
	sink := l.Sink
	if sink == nil {
		sink = telemetry.Discard
	}
	statusEvery := l.StatusEvery
	if statusEvery <= 0 {
		statusEvery = DefaultStatusEvery
	}

	var work []float64
	defer func() {
		l.Ticker.Stop()
		sum.Timing = summarize(work, l.Ticker.Period())
		if cerr := motor.CloseAll(l.Motors[:]...); cerr != nil {
			err = multierr.Append(err, errors.Wrap(cerr, "close motors"))
		}
		logger.Infow("control loop finished",
			"ticks", sum.Ticks, "elapsed", sum.Elapsed, "zero_torque_ticks", sum.ZeroTorqueTicks,
			"interrupted", sum.Interrupted, "timing", sum.Timing.String())
	}()

	logger.Infow("control loop started", "period", l.Ticker.Period(), "duration", l.Duration)
	var (
		lastStatus time.Duration
		pose       kinematics.Pose
	)
	for tick := 0; ; tick++ {
		elapsed, terr := l.Ticker.Next(ctx)
		if terr != nil {
			if ctx.Err() != nil {
				sum.Interrupted = true
				return sum, nil
			}
			return sum, terr
		}
		if l.Duration > 0 && elapsed > l.Duration {
			return sum, nil
		}

		start := clk.Now()
		st, serr := l.step(tick, elapsed, pose)
		sum.Ticks++
		sum.Elapsed = elapsed
		if st.ZeroTorque {
			sum.ZeroTorqueTicks++
		}
		if !st.HeldPose {
			pose = st.Target.Pose
		}

		if werr := sink.Write(st.Record()); werr != nil {
			if sum.SinkErrors == 0 {
				logger.Warnw("telemetry write failed", "tick", tick, "error", werr)
			}
			sum.SinkErrors++
		}
		if serr != nil {
			work = append(work, clk.Since(start).Seconds())
			logger.Errorw("control loop stopped", "tick", tick, "elapsed", elapsed, "error", serr)
			return sum, serr
		}
		if l.Status != nil && (tick == 0 || elapsed-lastStatus >= statusEvery) {
			lastStatus = elapsed
			l.Status(st)
		}
		work = append(work, clk.Since(start).Seconds())
	}
}

// step runs one tick: stop check, target computation and one exchange per
// motor. held is the last pose computed from valid telemetry; ticks without
// it report held instead.
func (l *Loop) step(tick int, elapsed time.Duration, held kinematics.Pose) (Status, error) {
	st := Status{
		Tick:     tick,
		Elapsed:  elapsed,
		Target:   profile.Target{Row: -1, Pose: held},
		HeldPose: true,
	}
	for _, m := range l.Motors {
		if m.EmergencyStopped() {
			return st, &motor.StopError{Motor: m.Name(), Reason: m.StopReason()}
		}
	}

	j1, j2 := l.Motors[0].Last(), l.Motors[1].Last()
	if j1.Valid && j2.Valid {
		st.Target = l.Controller.Update(j1.Position, j2.Position)
		st.HeldPose = false
	} else {
		st.ZeroTorque = true
	}

	tel, err := l.Motors[0].SendTorque(st.Target.Tau1)
	st.Joints[0] = tel
	if err != nil {
		return st, err
	}
	tel, err = l.Motors[1].SendTorque(st.Target.Tau2)
	st.Joints[1] = tel
	if err != nil {
		return st, err
	}
	return st, nil
}
