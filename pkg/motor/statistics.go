// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motor

import (
	"fmt"
	"time"
)

// Statistics tracks the exchanges of one session
type Statistics struct {
	StartTime time.Time
	Elapsed   time.Duration

	// Counters
	HandshakeAttempts uint64
	Exchanges         uint64
	ValidResponses    uint64
	Timeouts          uint64
	Malformed         uint64
	SendErrors        uint64
	ClampedCommands   uint64
	Violations        uint64
}

// Record counts one command exchange.
func (s *Statistics) Record(valid bool, timeout bool, malformed bool, sendErr bool) {
	s.Exchanges++
	switch {
	case valid:
		s.ValidResponses++
	case sendErr:
		s.SendErrors++
	case timeout:
		s.Timeouts++
	case malformed:
		s.Malformed++
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	var validPercent, timeoutPercent, malformedPercent float64
	if s.Exchanges > 0 {
		validPercent = float64(s.ValidResponses) * 100.0 / float64(s.Exchanges)
		timeoutPercent = float64(s.Timeouts) * 100.0 / float64(s.Exchanges)
		malformedPercent = float64(s.Malformed) * 100.0 / float64(s.Exchanges)
	}

	result := fmt.Sprintf("=== Statistics (%.1f seconds) ===\n", s.Elapsed.Seconds())
	result += fmt.Sprintf("Handshake Attempts: %8d\n", s.HandshakeAttempts)
	result += fmt.Sprintf("Exchanges:          %8d\n", s.Exchanges)
	result += fmt.Sprintf("Valid Responses:    %8d (%.1f%%)\n", s.ValidResponses, validPercent)

	if s.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:           %8d (%.1f%%)\n", s.Timeouts, timeoutPercent)
	}
	if s.Malformed > 0 {
		result += fmt.Sprintf("Malformed:          %8d (%.1f%%)\n", s.Malformed, malformedPercent)
	}
	if s.SendErrors > 0 {
		result += fmt.Sprintf("Send Errors:        %8d\n", s.SendErrors)
	}
	if s.ClampedCommands > 0 {
		result += fmt.Sprintf("Clamped Commands:   %8d\n", s.ClampedCommands)
	}
	if s.Violations > 0 {
		result += fmt.Sprintf("Safety Violations:  %8d\n", s.Violations)
	}
	if s.Elapsed > 0 {
		result += fmt.Sprintf("Exchange Rate:      %8.1f /s\n", float64(s.Exchanges)/s.Elapsed.Seconds())
	}
	return result
}
