// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package safety

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// ErrTripped is the reason recorded when a latch is tripped without one.
var ErrTripped = errors.New("safety: tripped")

// Latch is a one-way emergency-stop flag. Once tripped it stays tripped; a
// fresh session gets a fresh latch. Safe for concurrent use.
type Latch struct {
	mu      sync.Mutex
	tripped atomic.Bool
	reason  atomic.Error
}

// Trip records reason and sets the flag. It reports true only for the call
// that actually tripped the latch. The reason is stored before the flag, so
// Reason is never nil once Tripped reports true.
func (l *Latch) Trip(reason error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tripped.Load() {
		return false
	}
	if reason == nil {
		reason = ErrTripped
	}
	l.reason.Store(reason)
	l.tripped.Store(true)
	return true
}

// Tripped reports whether the latch has been tripped.
func (l *Latch) Tripped() bool {
	return l.tripped.Load()
}

// Reason returns the error passed to the tripping call.
func (l *Latch) Reason() error {
	return l.reason.Load()
}
