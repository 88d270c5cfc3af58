// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motor

import (
	"context"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// OpenAll handshakes every session concurrently. The sessions use separate
// channels and share no state. If any handshake fails the others are
// cancelled and every session is closed again.
func OpenAll(ctx context.Context, sessions ...*Session) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range sessions {
		s := s
		g.Go(func() error {
			return s.Open(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return multierr.Append(err, CloseAll(sessions...))
	}
	return nil
}

// CloseAll closes every session and combines their errors.
func CloseAll(sessions ...*Session) error {
	var err error
	for _, s := range sessions {
		if s == nil {
			continue
		}
		err = multierr.Append(err, s.Close())
	}
	return err
}

func multiErr(errs ...error) error {
	return multierr.Combine(errs...)
}
