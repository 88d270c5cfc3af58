// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package calibration

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/abilitylab/armctl/pkg/profile"
)

// Procedure runs one calibration. The hooks connect it to the arm and the
// operator; Run never persists anything itself.
type Procedure struct {
	Reference *profile.Profile
	Options   Options

	// Baseline commands zero torque on both motors.
	Baseline func() error
	// Confirm blocks until the operator gives the go-ahead.
	Confirm func(ctx context.Context) error
	// Record samples the end-effector X into r for the recording window. It
	// returns ctx.Err() when interrupted before the window ends.
	Record func(ctx context.Context, r *Recorder) error

	Logger *zap.SugaredLogger
}

// Run executes baseline, go-ahead, recording and computation. Interrupting
// before the recording window completes returns ErrAborted.
func (p *Procedure) Run(ctx context.Context) (*Result, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if p.Reference == nil {
		return nil, errors.New("calibration: no reference profile")
	}

	if p.Baseline != nil {
		if err := p.Baseline(); err != nil {
			return nil, errors.Wrap(err, "zero torque baseline")
		}
	}

	if p.Confirm != nil {
		if err := p.Confirm(ctx); err != nil {
			return nil, aborted("waiting for go-ahead", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, aborted("waiting for go-ahead", err)
	}

	rec := NewRecorder(p.Options)
	if err := p.Record(ctx, rec); err != nil {
		return nil, aborted("recording", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, aborted("recording", err)
	}
	logger.Infow("recording complete", "samples", rec.Len())

	res, err := Compute(rec.Samples(), p.Reference, p.Options)
	if err != nil {
		return nil, err
	}
	logger.Infow("calibration computed", "min", res.Min, "max", res.Max,
		"onset", res.Onset, "offset", res.Offset, "duration", res.Duration)
	return res, nil
}

func aborted(step string, cause error) error {
	if errors.Is(cause, ErrAborted) {
		return cause
	}
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return errors.Wrapf(ErrAborted, "%s: %v", step, cause)
	}
	return errors.Wrap(cause, step)
}
