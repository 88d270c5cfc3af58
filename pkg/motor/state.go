// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motor

import "fmt"

// State is the lifecycle state of a motor session.
type State int

const (
	StateDisconnected State = iota
	StateHandshaking
	StateZeroing
	StateActive
	StateStopping
	StateEmergencyStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateZeroing:
		return "ZEROING"
	case StateActive:
		return "ACTIVE"
	case StateStopping:
		return "STOPPING"
	case StateEmergencyStopped:
		return "EMERGENCY_STOPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// transitions lists the allowed successors of every state. EmergencyStopped
// only leaves through an explicit Close.
var transitions = map[State][]State{
	StateDisconnected:     {StateHandshaking},
	StateHandshaking:      {StateZeroing, StateActive, StateStopping},
	StateZeroing:          {StateActive, StateStopping},
	StateActive:           {StateStopping, StateEmergencyStopped},
	StateEmergencyStopped: {StateStopping},
	StateStopping:         {StateDisconnected},
}

// CanTransition reports whether s may move to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
