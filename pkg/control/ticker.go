// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// DefaultFrequency is the control rate in Hz.
const DefaultFrequency = 200.0

// Ticker paces the loop.
type Ticker interface {
	// Next blocks until the next tick and returns the time elapsed since
	// the ticker started. It returns ctx.Err() when ctx is done first.
	Next(ctx context.Context) (time.Duration, error)
	Period() time.Duration
	Stop()
}

type clockTicker struct {
	clk    clock.Clock
	ticker *clock.Ticker
	start  time.Time
	period time.Duration
}

// NewClockTicker returns a ticker firing freq times per second on clk.
// Missed ticks are dropped, not queued.
func NewClockTicker(clk clock.Clock, freq float64) (Ticker, error) {
	if freq <= 0 {
		return nil, errors.Errorf("control frequency must be positive, got %v", freq)
	}
	if clk == nil {
		clk = clock.New()
	}
	period := time.Duration(float64(time.Second) / freq)
	return &clockTicker{
		clk:    clk,
		ticker: clk.Ticker(period),
		start:  clk.Now(),
		period: period,
	}, nil
}

func (t *clockTicker) Next(ctx context.Context) (time.Duration, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-t.ticker.C:
		return t.clk.Since(t.start), nil
	}
}

func (t *clockTicker) Period() time.Duration { return t.period }

func (t *clockTicker) Stop() { t.ticker.Stop() }
