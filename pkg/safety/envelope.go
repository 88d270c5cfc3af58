// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package safety

import (
	"fmt"

	"github.com/abilitylab/armctl/pkg/cubemars"
)

// Envelope checks the telemetry stream of one motor. It is not safe for
// concurrent use; each session owns its own.
type Envelope struct {
	Limits    cubemars.Limits
	Tolerance float64
	MaxMissed int

	missed int
}

// NewEnvelope returns an envelope with the default tolerance and silence
// bound.
func NewEnvelope(l cubemars.Limits) *Envelope {
	return &Envelope{Limits: l, Tolerance: DefaultTolerance, MaxMissed: DefaultMaxMissed}
}

// CheckTelemetry returns a *Violation when the sample is out of range or when
// more than MaxMissed consecutive samples were invalid.
func (e *Envelope) CheckTelemetry(tel cubemars.Telemetry) error {
	if !tel.Valid {
		e.missed++
		if e.MaxMissed > 0 && e.missed > e.MaxMissed {
			return &Violation{
				Type:    VIOLATION_SILENCE,
				Message: fmt.Sprintf("%s: no valid response for %d consecutive exchanges", e.Limits.Model, e.missed),
				Details: map[string]interface{}{"missed": e.missed, "max": e.MaxMissed},
			}
		}
		return nil
	}
	e.missed = 0
	return CheckRange(tel, e.Limits, e.Tolerance)
}

// Missed returns the current run of consecutive invalid samples.
func (e *Envelope) Missed() int {
	return e.missed
}
