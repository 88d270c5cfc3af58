// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package profile holds the assistance torque profile: a table indexed by
// sit-to-stand percentage and looked up by end-effector position, not time.
package profile

import (
	"math"

	"github.com/pkg/errors"

	"github.com/abilitylab/armctl/pkg/kinematics"
)

// ErrNotMonotonic is returned when the Percentage column does not strictly
// increase.
var ErrNotMonotonic = errors.New("profile: percentage index not strictly increasing")

// Mode selects how a row becomes joint torques.
type Mode int

const (
	// ModeForce maps the row's Cartesian force through −Jᵀ.
	ModeForce Mode = iota
	// ModeTorque applies the row's joint torques directly.
	ModeTorque
)

func (m Mode) String() string {
	if m == ModeTorque {
		return "torque"
	}
	return "force"
}

// Row is one sample of the reference motion.
type Row struct {
	Percentage float64
	X          float64
	Y          float64
	Theta      float64 // θ1+θ2, optional
	ForceX     float64
	ForceY     float64
	Tau1       float64
	Tau2       float64
}

// Profile is an immutable, ordered set of rows.
type Profile struct {
	rows     []Row
	mode     Mode
	hasTheta bool
	hasForce bool
	hasTau   bool

	// extra holds columns Read did not recognise, written back unchanged
	// after the known ones. extraRows[i] belongs to rows[i].
	extra     []string
	extraRows [][]string
}

// New validates rows and builds a profile.
func New(rows []Row, mode Mode) (*Profile, error) {
	if len(rows) == 0 {
		return nil, errors.New("profile: no rows")
	}
	for i := 1; i < len(rows); i++ {
		if !(rows[i].Percentage > rows[i-1].Percentage) {
			return nil, errors.Wrapf(ErrNotMonotonic, "row %d: %g after %g", i, rows[i].Percentage, rows[i-1].Percentage)
		}
	}
	for i, r := range rows {
		for _, v := range []float64{r.Percentage, r.X, r.Y, r.Theta, r.ForceX, r.ForceY, r.Tau1, r.Tau2} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.Errorf("profile: row %d has a non-finite value", i)
			}
		}
	}
	p := &Profile{
		rows:     append([]Row(nil), rows...),
		mode:     mode,
		hasForce: mode == ModeForce,
		hasTau:   mode == ModeTorque,
	}
	return p, nil
}

// Len returns the number of rows.
func (p *Profile) Len() int { return len(p.rows) }

// Row returns row i.
func (p *Profile) Row(i int) Row { return p.rows[i] }

// Rows returns a copy of all rows.
func (p *Profile) Rows() []Row { return append([]Row(nil), p.rows...) }

// Mode returns how targets are computed.
func (p *Profile) Mode() Mode { return p.mode }

// XRange returns the smallest and largest end-effector X.
func (p *Profile) XRange() (min, max float64) {
	min, max = p.rows[0].X, p.rows[0].X
	for _, r := range p.rows[1:] {
		min = math.Min(min, r.X)
		max = math.Max(max, r.X)
	}
	return min, max
}

// Nearest returns the index of the row whose X is closest to x. Ties go to
// the lower index.
func (p *Profile) Nearest(x float64) int {
	best, bestDist := 0, math.Abs(p.rows[0].X-x)
	for i, r := range p.rows[1:] {
		if d := math.Abs(r.X - x); d < bestDist {
			best, bestDist = i+1, d
		}
	}
	return best
}

// NearestPose returns the index of the row closest to pose by Euclidean
// distance over (X, Y, θ1+θ2). θ is ignored when the profile has no theta
// column. Ties go to the lower index.
func (p *Profile) NearestPose(pose kinematics.Pose) int {
	dist := func(r Row) float64 {
		dx, dy := r.X-pose.X, r.Y-pose.Y
		d := dx*dx + dy*dy
		if p.hasTheta {
			dt := r.Theta - pose.Theta
			d += dt * dt
		}
		return d
	}
	best, bestDist := 0, dist(p.rows[0])
	for i, r := range p.rows[1:] {
		if d := dist(r); d < bestDist {
			best, bestDist = i+1, d
		}
	}
	return best
}

// Target is the assistance for the current arm configuration.
type Target struct {
	Tau1       float64
	Tau2       float64
	Pose       kinematics.Pose
	Row        int
	Percentage float64
}

// Target computes the end-effector pose for the joint angles, looks up the
// nearest row by X and returns its joint torques.
func (p *Profile) Target(g kinematics.Geometry, theta1, theta2 float64) Target {
	pose := g.Forward(theta1, theta2)
	i := p.Nearest(pose.X)
	r := p.rows[i]

	t := Target{Pose: pose, Row: i, Percentage: r.Percentage}
	switch p.mode {
	case ModeTorque:
		t.Tau1, t.Tau2 = r.Tau1, r.Tau2
	default:
		t.Tau1, t.Tau2 = g.JointTorques(theta1, theta2, r.ForceX, r.ForceY)
	}
	return t
}

// Rescale returns a copy with X mapped linearly from the current range to
// [newMin, newMax]: x' = newMin + (x − min)·(newMax − newMin)/(max − min).
func (p *Profile) Rescale(newMin, newMax float64) (*Profile, error) {
	min, max := p.XRange()
	if max == min {
		return nil, errors.New("profile: cannot rescale a profile with constant X")
	}
	scale := (newMax - newMin) / (max - min)

	out := *p
	out.rows = make([]Row, len(p.rows))
	for i, r := range p.rows {
		r.X = newMin + (r.X-min)*scale
		out.rows[i] = r
	}
	// Pin the extremes so the column spans exactly [newMin, newMax].
	for i, r := range p.rows {
		switch r.X {
		case min:
			out.rows[i].X = newMin
		case max:
			out.rows[i].X = newMax
		}
	}
	return &out, nil
}
