// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

type closedError struct {
	cause error
}

func (e *closedError) Error() string {
	return ErrClosed.Error() + ": " + e.cause.Error()
}

func (e *closedError) Is(target error) bool {
	return target == ErrClosed
}

func (e *closedError) Unwrap() error {
	return e.cause
}

// wrapClosed marks a reader failure as ErrClosed while keeping the cause.
func wrapClosed(err error) error {
	if stderrors.Is(err, ErrClosed) {
		return err
	}
	return errors.WithStack(&closedError{cause: err})
}
