// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package calibration

import (
	"image/color"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	markerColor = color.Gray{Y: 128}
	rangeColor  = color.RGBA{R: 200, G: 60, B: 40, A: 255}
)

// Plot renders the recorded X trajectory with the detected motion window and
// the new range. The image format follows the file extension (png, svg, pdf).
func Plot(samples []float64, r *Result, period time.Duration, path string) error {
	if len(samples) == 0 {
		return errors.New("calibration: nothing to plot")
	}
	if period <= 0 {
		period = DefaultPeriod
	}
	dt := period.Seconds()
	end := float64(len(samples)-1) * dt

	p := plot.New()
	p.Title.Text = "Calibration recording"
	p.X.Label.Text = "Time [s]"
	p.Y.Label.Text = "EE X [m]"
	p.Add(plotter.NewGrid())

	xy := make(plotter.XYs, len(samples))
	for i, x := range samples {
		xy[i].X = float64(i) * dt
		xy[i].Y = x
	}
	trajectory, err := plotter.NewLine(xy)
	if err != nil {
		return errors.Wrap(err, "trajectory")
	}
	p.Add(trajectory)
	p.Legend.Add("EE X", trajectory)

	if r != nil {
		lo, hi := r.Min, r.Max
		for _, i := range []int{r.Onset, r.Offset} {
			t := float64(i) * dt
			marker, err := plotter.NewLine(plotter.XYs{{X: t, Y: lo}, {X: t, Y: hi}})
			if err != nil {
				return errors.Wrap(err, "motion window")
			}
			marker.Color = markerColor
			marker.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
			p.Add(marker)
		}
		for _, y := range []float64{lo, hi} {
			bound, err := plotter.NewLine(plotter.XYs{{X: 0, Y: y}, {X: end, Y: y}})
			if err != nil {
				return errors.Wrap(err, "range")
			}
			bound.Color = rangeColor
			p.Add(bound)
			if y == lo {
				p.Legend.Add("new range", bound)
			}
		}
	}

	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "save plot %s", path)
	}
	return nil
}
