// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package profile

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Column names of the profile CSV.
const (
	ColPercentage = "Percentage"
	ColX          = "EE_X"
	ColY          = "EE_Y"
	ColTheta      = "theta_1_2"
	ColForceX     = "force_X"
	ColForceY     = "force_Y"
	ColTau1       = "tau_1"
	ColTau2       = "tau_2"
)

var known = map[string]bool{
	ColPercentage: true, ColX: true, ColY: true, ColTheta: true,
	ColForceX: true, ColForceY: true, ColTau1: true, ColTau2: true,
}

// Load reads a profile CSV file.
func Load(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open profile")
	}
	defer f.Close()

	p, err := Read(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return p, nil
}

// Read parses a profile CSV. Percentage, EE_X and EE_Y are required. Force
// columns select ModeForce; otherwise tau columns select ModeTorque. Unknown
// columns are kept verbatim and written back by Write.
func Read(r io.Reader) (*Profile, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	var extra []string
	var extraIdx []int
	for i, name := range header {
		if name = strings.TrimSpace(name); !known[name] {
			extra = append(extra, name)
			extraIdx = append(extraIdx, i)
		}
	}

	for _, required := range []string{ColPercentage, ColX, ColY} {
		if _, ok := cols[required]; !ok {
			return nil, errors.Errorf("missing column %q", required)
		}
	}
	_, hasFX := cols[ColForceX]
	_, hasFY := cols[ColForceY]
	_, hasT1 := cols[ColTau1]
	_, hasT2 := cols[ColTau2]
	_, hasTheta := cols[ColTheta]

	var mode Mode
	switch {
	case hasFX && hasFY:
		mode = ModeForce
	case hasT1 && hasT2:
		mode = ModeTorque
	default:
		return nil, errors.New("need force_X/force_Y or tau_1/tau_2 columns")
	}

	var (
		rows      []Row
		extraRows [][]string
	)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}

		get := func(name string) (float64, error) {
			i, ok := cols[name]
			if !ok {
				return 0, nil
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				return 0, errors.Wrapf(err, "line %d column %s", line, name)
			}
			return v, nil
		}

		var row Row
		fields := []struct {
			name string
			dst  *float64
		}{
			{ColPercentage, &row.Percentage},
			{ColX, &row.X},
			{ColY, &row.Y},
			{ColTheta, &row.Theta},
			{ColForceX, &row.ForceX},
			{ColForceY, &row.ForceY},
			{ColTau1, &row.Tau1},
			{ColTau2, &row.Tau2},
		}
		for _, f := range fields {
			if *f.dst, err = get(f.name); err != nil {
				return nil, err
			}
		}
		rows = append(rows, row)
		if len(extra) > 0 {
			vals := make([]string, len(extraIdx))
			for j, i := range extraIdx {
				vals[j] = rec[i]
			}
			extraRows = append(extraRows, vals)
		}
	}

	p, err := New(rows, mode)
	if err != nil {
		return nil, err
	}
	p.hasTheta = hasTheta
	p.hasForce = hasFX && hasFY
	p.hasTau = hasT1 && hasT2
	p.extra, p.extraRows = extra, extraRows
	return p, nil
}

// Write emits the profile as CSV with the columns it was loaded with.
func (p *Profile) Write(w io.Writer) error {
	header := []string{ColPercentage, ColX, ColY}
	if p.hasTheta {
		header = append(header, ColTheta)
	}
	if p.hasForce {
		header = append(header, ColForceX, ColForceY)
	}
	if p.hasTau {
		header = append(header, ColTau1, ColTau2)
	}
	header = append(header, p.extra...)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	format := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for i, r := range p.rows {
		rec := []string{format(r.Percentage), format(r.X), format(r.Y)}
		if p.hasTheta {
			rec = append(rec, format(r.Theta))
		}
		if p.hasForce {
			rec = append(rec, format(r.ForceX), format(r.ForceY))
		}
		if p.hasTau {
			rec = append(rec, format(r.Tau1), format(r.Tau2))
		}
		if len(p.extra) > 0 {
			rec = append(rec, p.extraRows[i]...)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Save writes the profile to path atomically: the data goes to a temporary
// file in the same directory which is then renamed over path.
func (p *Profile) Save(path string) error {
	return WriteFileAtomic(path, p.Write)
}

// WriteFileAtomic creates path through a temporary file and rename so that
// readers never see a partial file.
func WriteFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "create directory")
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, "create temporary file")
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "rename to %s", path)
	}
	return nil
}
