// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package calibration fits the reference sit-to-stand profile to one user by
// recording their unassisted motion and rescaling the profile's X column to
// the observed range.
package calibration

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/abilitylab/armctl/pkg/profile"
	"github.com/abilitylab/armctl/pkg/telemetry"
)

const (
	DefaultSettle            = 500 * time.Millisecond
	DefaultEndpointSamples   = 30
	DefaultVelocityThreshold = 0.05 // m/s
	DefaultPeriod            = 5 * time.Millisecond
)

var (
	// ErrAborted is returned when the operator interrupts before the
	// recording window completed. Nothing is persisted.
	ErrAborted = errors.New("calibration: aborted")
	// ErrNoMotion is returned when the recording holds no usable motion.
	ErrNoMotion = errors.New("calibration: no motion detected")
)

// Options tunes the computation. Zero values select the defaults.
type Options struct {
	// Period is the sampling interval used to turn differences into
	// velocities.
	Period            time.Duration
	Settle            time.Duration
	EndpointSamples   int
	VelocityThreshold float64
}

func (o *Options) setDefaults() {
	if o.Period <= 0 {
		o.Period = DefaultPeriod
	}
	if o.Settle < 0 {
		o.Settle = 0
	} else if o.Settle == 0 {
		o.Settle = DefaultSettle
	}
	if o.EndpointSamples <= 0 {
		o.EndpointSamples = DefaultEndpointSamples
	}
	if o.VelocityThreshold <= 0 {
		o.VelocityThreshold = DefaultVelocityThreshold
	}
}

// Recorder collects end-effector X samples, dropping those taken during the
// settle period.
type Recorder struct {
	settle  time.Duration
	samples []float64
}

// NewRecorder returns a recorder discarding samples before opts.Settle.
func NewRecorder(opts Options) *Recorder {
	opts.setDefaults()
	return &Recorder{settle: opts.Settle}
}

// Add records x taken at elapsed time since the start of the window.
func (r *Recorder) Add(elapsed time.Duration, x float64) {
	if elapsed < r.settle {
		return
	}
	r.samples = append(r.samples, x)
}

// Sink feeds the recorder from control loop records. Stale records carry a
// held pose rather than a measurement and are skipped.
func (r *Recorder) Sink() telemetry.Sink {
	return telemetry.SinkFunc(func(rec telemetry.Record) error {
		if !rec.Stale {
			r.Add(time.Duration(rec.Time*float64(time.Second)), rec.X)
		}
		return nil
	})
}

// Samples returns the recorded series.
func (r *Recorder) Samples() []float64 {
	return append([]float64(nil), r.samples...)
}

// Len returns the number of recorded samples.
func (r *Recorder) Len() int { return len(r.samples) }

// Result is the outcome of one calibration.
type Result struct {
	// Min and Max are the new 0%/100% X endpoints.
	Min float64
	Max float64
	// Trajectory is the trimmed motion resampled to the profile length.
	Trajectory []float64
	// Onset and Offset index the trimmed window in the raw samples.
	Onset  int
	Offset int
	// Duration is the length of the raw recording.
	Duration time.Duration
	Profile  *profile.Profile
}

// Compute derives the new range from the recorded samples and rescales
// reference onto it.
//
// The endpoints are the means of the first and last EndpointSamples
// samples. The usable motion runs from the first to the last sample whose
// speed (central differences over Period) exceeds VelocityThreshold; that
// window is resampled to the reference row count by uniform index stepping.
func Compute(samples []float64, reference *profile.Profile, opts Options) (*Result, error) {
	opts.setDefaults()
	n := opts.EndpointSamples
	if len(samples) < 2*n {
		return nil, errors.Wrapf(ErrNoMotion, "%d samples recorded, need at least %d", len(samples), 2*n)
	}
	for i, x := range samples {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, errors.Errorf("calibration: sample %d is not finite", i)
		}
	}

	first := stat.Mean(samples[:n], nil)
	last := stat.Mean(samples[len(samples)-n:], nil)

	velocity := Gradient(samples, opts.Period.Seconds())
	onset, offset := -1, -1
	for i, v := range velocity {
		if math.Abs(v) > opts.VelocityThreshold {
			if onset < 0 {
				onset = i
			}
			offset = i
		}
	}
	if onset < 0 || offset <= onset {
		return nil, errors.Wrapf(ErrNoMotion, "speed never exceeded %g m/s", opts.VelocityThreshold)
	}

	window := samples[onset : offset+1]
	rows := reference.Len()
	trajectory := Resample(window, rows)

	min, max := math.Min(first, last), math.Max(first, last)
	scaled, err := reference.Rescale(min, max)
	if err != nil {
		return nil, err
	}

	return &Result{
		Min:        min,
		Max:        max,
		Trajectory: trajectory,
		Onset:      onset,
		Offset:     offset,
		Duration:   time.Duration(len(samples)) * opts.Period,
		Profile:    scaled,
	}, nil
}

// Gradient returns the derivative of xs sampled every dt seconds, using
// central differences inside and one-sided differences at the ends.
func Gradient(xs []float64, dt float64) []float64 {
	g := make([]float64, len(xs))
	switch len(xs) {
	case 0, 1:
		return g
	}
	g[0] = (xs[1] - xs[0]) / dt
	g[len(xs)-1] = (xs[len(xs)-1] - xs[len(xs)-2]) / dt
	for i := 1; i < len(xs)-1; i++ {
		g[i] = (xs[i+1] - xs[i-1]) / (2 * dt)
	}
	return g
}

// Resample picks n samples from xs at indices int(i·len(xs)/n).
func Resample(xs []float64, n int) []float64 {
	out := make([]float64, n)
	if len(xs) == 0 {
		return out
	}
	step := float64(len(xs)) / float64(n)
	for i := range out {
		out[i] = xs[int(step*float64(i))]
	}
	return out
}
