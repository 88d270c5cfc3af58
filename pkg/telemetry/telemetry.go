// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telemetry records one row per control tick to the session log and
// optionally fans the rows out to an MQTT broker.
package telemetry

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Header is the column order of the session log.
var Header = []string{
	"time", "index",
	"target_tau_1", "measured_tau_1", "theta_1", "velocity_1",
	"target_tau_2", "measured_tau_2", "theta_2", "velocity_2",
	"EE_X", "EE_Y",
}

// Record is one control tick.
type Record struct {
	Time         float64 `json:"time"` // s since loop start
	Index        int     `json:"index"`
	TargetTau1   float64 `json:"target_tau_1"`
	MeasuredTau1 float64 `json:"measured_tau_1"`
	Theta1       float64 `json:"theta_1"`
	Velocity1    float64 `json:"velocity_1"`
	TargetTau2   float64 `json:"target_tau_2"`
	MeasuredTau2 float64 `json:"measured_tau_2"`
	Theta2       float64 `json:"theta_2"`
	Velocity2    float64 `json:"velocity_2"`
	X            float64 `json:"ee_x"`
	Y            float64 `json:"ee_y"`
	// Stale marks a tick without fresh telemetry on both motors. X and Y
	// then repeat the last known pose and Index is -1. Not written to CSV.
	Stale bool `json:"stale,omitempty"`
}

func (r Record) fields() []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	return []string{
		f(r.Time), strconv.Itoa(r.Index),
		f(r.TargetTau1), f(r.MeasuredTau1), f(r.Theta1), f(r.Velocity1),
		f(r.TargetTau2), f(r.MeasuredTau2), f(r.Theta2), f(r.Velocity2),
		f(r.X), f(r.Y),
	}
}

// Sink consumes records. Write is called from the control loop goroutine.
type Sink interface {
	Write(Record) error
	Close() error
}

// LogPath returns <dir>/<Month>_<DD>/<command>_<MM-DD-HH-MM-SS>.csv.
func LogPath(dir, command string, now time.Time) string {
	return filepath.Join(dir,
		now.Format("January_02"),
		command+"_"+now.Format("01-02-15-04-05")+".csv")
}

const flushEvery = 50

// CSVSink writes records as CSV rows after a single header line.
type CSVSink struct {
	w       *csv.Writer
	closer  io.Closer
	pending int
}

// NewCSVSink writes the header to w.
func NewCSVSink(w io.Writer) (*CSVSink, error) {
	s := &CSVSink{w: csv.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	if err := s.w.Write(Header); err != nil {
		return nil, errors.Wrap(err, "write header")
	}
	s.w.Flush()
	return s, s.w.Error()
}

// CreateCSV creates path, including parent directories, and returns a sink
// writing to it.
func CreateCSV(path string) (*CSVSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "create log directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create log")
	}
	s, err := NewCSVSink(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// Write appends one row. Rows are flushed in batches and on Close.
func (s *CSVSink) Write(r Record) error {
	if err := s.w.Write(r.fields()); err != nil {
		return err
	}
	s.pending++
	if s.pending >= flushEvery {
		s.pending = 0
		s.w.Flush()
		return s.w.Error()
	}
	return nil
}

// Close flushes buffered rows and closes the underlying writer if it is a
// Closer.
func (s *CSVSink) Close() error {
	s.w.Flush()
	err := s.w.Error()
	if s.closer != nil {
		err = multierr.Append(err, s.closer.Close())
	}
	return err
}

// MultiSink writes every record to all sinks.
type MultiSink []Sink

// Write forwards r to every sink and combines their errors.
func (m MultiSink) Write(r Record) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Write(r))
	}
	return err
}

// Close closes every sink.
func (m MultiSink) Close() error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Close())
	}
	return err
}

// Discard drops every record.
var Discard Sink = discard{}

type discard struct{}

func (discard) Write(Record) error { return nil }
func (discard) Close() error       { return nil }

// SinkFunc adapts a function to a Sink with a no-op Close.
type SinkFunc func(Record) error

func (f SinkFunc) Write(r Record) error { return f(r) }
func (f SinkFunc) Close() error         { return nil }
