// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

import (
	"github.com/abilitylab/armctl/pkg/kinematics"
	"github.com/abilitylab/armctl/pkg/profile"
)

// Controller maps measured joint angles (rad) to target joint torques.
type Controller interface {
	Update(theta1, theta2 float64) profile.Target
}

// AssistController follows a torque profile, looking up the row nearest to
// the current end-effector X.
type AssistController struct {
	Profile  *profile.Profile
	Geometry kinematics.Geometry
}

func (c AssistController) Update(theta1, theta2 float64) profile.Target {
	return c.Profile.Target(c.Geometry, theta1, theta2)
}

// ZeroTorqueController leaves the arm back-drivable and only reports the
// pose. With a profile set, Row is the nearest row by full pose; otherwise
// it is -1.
type ZeroTorqueController struct {
	Geometry kinematics.Geometry
	Profile  *profile.Profile
}

func (c ZeroTorqueController) Update(theta1, theta2 float64) profile.Target {
	t := profile.Target{Pose: c.Geometry.Forward(theta1, theta2), Row: -1}
	if c.Profile != nil {
		t.Row = c.Profile.NearestPose(t.Pose)
		t.Percentage = c.Profile.Row(t.Row).Percentage
	}
	return t
}
