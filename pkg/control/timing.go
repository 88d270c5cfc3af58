// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

import (
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
)

// TickStats summarizes how long the work of each tick took.
type TickStats struct {
	Ticks    int
	Mean     time.Duration
	P99      time.Duration
	Max      time.Duration
	Overruns int // ticks whose work took longer than the period
}

func summarize(work []float64, period time.Duration) TickStats {
	ts := TickStats{Ticks: len(work)}
	if len(work) == 0 {
		return ts
	}
	data := stats.Float64Data(work)
	seconds := func(v float64) time.Duration { return time.Duration(v * float64(time.Second)) }

	if mean, err := stats.Mean(data); err == nil {
		ts.Mean = seconds(mean)
	}
	if p99, err := stats.Percentile(data, 99); err == nil {
		ts.P99 = seconds(p99)
	}
	if max, err := stats.Max(data); err == nil {
		ts.Max = seconds(max)
	}
	limit := period.Seconds()
	for _, w := range work {
		if period > 0 && w > limit {
			ts.Overruns++
		}
	}
	return ts
}

func (ts TickStats) String() string {
	return fmt.Sprintf("%d ticks, work mean %v p99 %v max %v, %d overruns",
		ts.Ticks, ts.Mean, ts.P99, ts.Max, ts.Overruns)
}
