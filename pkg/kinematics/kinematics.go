// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package kinematics maps the two joint angles of the planar arm to the
// end-effector pose and Cartesian forces to joint torques.
package kinematics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultL1 is the upper link length in meters.
	DefaultL1 = 0.44
	// DefaultL2 is the lower link length in meters.
	DefaultL2 = 0.41
)

// Geometry holds the link lengths of the arm.
type Geometry struct {
	L1 float64 `yaml:"l1"`
	L2 float64 `yaml:"l2"`
}

// DefaultGeometry returns the geometry of the built arm.
func DefaultGeometry() Geometry {
	return Geometry{L1: DefaultL1, L2: DefaultL2}
}

// Validate rejects non-positive link lengths.
func (g Geometry) Validate() error {
	if !(g.L1 > 0) || !(g.L2 > 0) {
		return fmt.Errorf("link lengths must be positive (l1=%g, l2=%g)", g.L1, g.L2)
	}
	return nil
}

// Pose is the end-effector position and orientation.
type Pose struct {
	X     float64 // m
	Y     float64 // m
	Theta float64 // rad, θ1+θ2
}

// Forward returns the end-effector pose for joint angles in radians.
func (g Geometry) Forward(theta1, theta2 float64) Pose {
	t12 := theta1 + theta2
	return Pose{
		X:     g.L1*math.Cos(theta1) + g.L2*math.Cos(t12),
		Y:     g.L1*math.Sin(theta1) + g.L2*math.Sin(t12),
		Theta: t12,
	}
}

// Jacobian returns ∂(x,y)/∂(θ1,θ2).
func (g Geometry) Jacobian(theta1, theta2 float64) *mat.Dense {
	t12 := theta1 + theta2
	return mat.NewDense(2, 2, []float64{
		-g.L1*math.Sin(theta1) - g.L2*math.Sin(t12), -g.L2 * math.Sin(t12),
		g.L1*math.Cos(theta1) + g.L2*math.Cos(t12), g.L2 * math.Cos(t12),
	})
}

// JointTorques maps a Cartesian force at the end effector to joint torques
// with τ = −Jᵀ·F. The sign makes a positive force assist the motion.
func (g Geometry) JointTorques(theta1, theta2, fx, fy float64) (tau1, tau2 float64) {
	j := g.Jacobian(theta1, theta2)
	f := mat.NewVecDense(2, []float64{fx, fy})

	var tau mat.VecDense
	tau.MulVec(j.T(), f)
	tau.ScaleVec(-1, &tau)
	return tau.AtVec(0), tau.AtVec(1)
}
