// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package profile

import (
	"bytes"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/abilitylab/armctl/pkg/kinematics"
)

func linearRows(n int, x0, x1 float64) []Row {
	rows := make([]Row, n)
	for i := range rows {
		frac := float64(i) / float64(n-1)
		rows[i] = Row{
			Percentage: 100 * frac,
			X:          x0 + (x1-x0)*frac,
			Y:          0.5 + 0.1*frac,
			ForceX:     float64(i),
			ForceY:     -float64(i),
			Tau1:       float64(i) / 10,
			Tau2:       -float64(i) / 10,
		}
	}
	return rows
}

func mustNew(t *testing.T, rows []Row, mode Mode) *Profile {
	t.Helper()
	p, err := New(rows, mode)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func TestNew_RejectsNonMonotonic(t *testing.T) {
	tests := []struct {
		name string
		pct  []float64
	}{
		{"repeated", []float64{0, 50, 50, 100}},
		{"decreasing", []float64{0, 60, 40, 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := make([]Row, len(tt.pct))
			for i, p := range tt.pct {
				rows[i].Percentage = p
			}
			if _, err := New(rows, ModeForce); !errors.Is(err, ErrNotMonotonic) {
				t.Errorf("error = %v, want ErrNotMonotonic", err)
			}
		})
	}

	if _, err := New(nil, ModeForce); err == nil {
		t.Error("expected error for empty profile")
	}
	if _, err := New([]Row{{X: math.NaN()}}, ModeForce); err == nil {
		t.Error("expected error for NaN")
	}
}

func TestNearest_MidpointBoundaries(t *testing.T) {
	// Binary-exact positions so the midpoints are true ties.
	p := mustNew(t, []Row{
		{Percentage: 0, X: 0.0},
		{Percentage: 50, X: 0.25},
		{Percentage: 100, X: 0.75},
	}, ModeForce)

	tests := []struct {
		x    float64
		want int
	}{
		{-1, 0},
		{0, 0},
		{0.124, 0},
		{0.125, 0}, // tie between rows 0 and 1 goes to the lower index
		{0.126, 1},
		{0.25, 1},
		{0.499, 1},
		{0.5, 1}, // tie
		{0.501, 2},
		{5, 2},
	}

	for _, tt := range tests {
		if got := p.Nearest(tt.x); got != tt.want {
			t.Errorf("Nearest(%v) = %d, want %d", tt.x, got, tt.want)
		}
	}
}

func TestNearest_StableBetweenMidpoints(t *testing.T) {
	p := mustNew(t, linearRows(11, 0.1, 0.6), ModeForce)

	for i := 0; i < p.Len()-1; i++ {
		lo, hi := p.Row(i).X, p.Row(i+1).X
		mid := (lo + hi) / 2
		for _, x := range []float64{lo, lo + (mid-lo)*0.5, mid - 1e-9} {
			if got := p.Nearest(x); got != i {
				t.Errorf("Nearest(%v) = %d, want %d", x, got, i)
			}
		}
		if got := p.Nearest(mid + 1e-9); got != i+1 {
			t.Errorf("Nearest(%v) = %d, want %d", mid+1e-9, got, i+1)
		}
	}
}

func TestNearestPose(t *testing.T) {
	p := mustNew(t, []Row{
		{Percentage: 0, X: 0.1, Y: 0.0},
		{Percentage: 1, X: 0.1, Y: 1.0},
		{Percentage: 2, X: 0.9, Y: 0.5},
	}, ModeForce)

	if got := p.NearestPose(kinematics.Pose{X: 0.12, Y: 0.9}); got != 1 {
		t.Errorf("NearestPose = %d, want 1 (X alone would pick 0)", got)
	}
	if got := p.NearestPose(kinematics.Pose{X: 0.1, Y: 0.5}); got != 0 {
		t.Errorf("NearestPose tie = %d, want 0", got)
	}
}

func TestTarget_Modes(t *testing.T) {
	g := kinematics.DefaultGeometry()
	rows := []Row{
		{Percentage: 0, X: 0.85, ForceX: 0, ForceY: 10, Tau1: 1, Tau2: 2},
		{Percentage: 100, X: 0.0, ForceX: 5, ForceY: 5, Tau1: 3, Tau2: 4},
	}

	force := mustNew(t, rows, ModeForce)
	tgt := force.Target(g, 0, 0)
	if tgt.Row != 0 || tgt.Percentage != 0 {
		t.Errorf("Row = %d (%v%%), want 0", tgt.Row, tgt.Percentage)
	}
	wantTau1, wantTau2 := g.JointTorques(0, 0, 0, 10)
	if tgt.Tau1 != wantTau1 || tgt.Tau2 != wantTau2 {
		t.Errorf("force mode torques = (%v, %v), want (%v, %v)", tgt.Tau1, tgt.Tau2, wantTau1, wantTau2)
	}
	if math.Abs(tgt.Pose.X-0.85) > 1e-12 {
		t.Errorf("Pose.X = %v, want 0.85", tgt.Pose.X)
	}

	torque := mustNew(t, rows, ModeTorque)
	tgt = torque.Target(g, 0, 0)
	if tgt.Tau1 != 1 || tgt.Tau2 != 2 {
		t.Errorf("torque mode torques = (%v, %v), want (1, 2)", tgt.Tau1, tgt.Tau2)
	}
}

func TestRescale(t *testing.T) {
	p := mustNew(t, linearRows(101, -0.6, -0.2), ModeForce)

	out, err := p.Rescale(0.10, 0.40)
	if err != nil {
		t.Fatalf("Rescale failed: %v", err)
	}
	min, max := out.XRange()
	if min != 0.10 || max != 0.40 {
		t.Errorf("XRange() = [%v, %v], want exactly [0.10, 0.40]", min, max)
	}
	if out.Len() != p.Len() {
		t.Errorf("Len() = %d, want %d", out.Len(), p.Len())
	}
	// Only X changes.
	for i := 0; i < p.Len(); i++ {
		a, b := p.Row(i), out.Row(i)
		a.X, b.X = 0, 0
		if diff := cmp.Diff(a, b); diff != "" {
			t.Fatalf("row %d changed beyond X:\n%s", i, diff)
		}
	}
	if mid := out.Row(50).X; math.Abs(mid-0.25) > 1e-12 {
		t.Errorf("midpoint X = %v, want 0.25", mid)
	}
	// The source is untouched.
	if min, _ := p.XRange(); min != -0.6 {
		t.Errorf("source profile modified: min %v", min)
	}

	flat := mustNew(t, []Row{{Percentage: 0, X: 1}, {Percentage: 1, X: 1}}, ModeForce)
	if _, err := flat.Rescale(0, 1); err == nil {
		t.Error("expected error rescaling constant X")
	}
}

const sampleCSV = `Percentage,EE_X,EE_Y,theta_1_2,force_X,force_Y,tau_1,tau_2
0,-0.6,0.5,1.2,0,10,1,2
50,-0.4,0.6,1.3,5,5,3,4
100,-0.2,0.7,1.4,10,0,5,6
`

func TestRead(t *testing.T) {
	p, err := Read(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if p.Mode() != ModeForce {
		t.Errorf("Mode() = %v, want force", p.Mode())
	}
	want := []Row{
		{Percentage: 0, X: -0.6, Y: 0.5, Theta: 1.2, ForceX: 0, ForceY: 10, Tau1: 1, Tau2: 2},
		{Percentage: 50, X: -0.4, Y: 0.6, Theta: 1.3, ForceX: 5, ForceY: 5, Tau1: 3, Tau2: 4},
		{Percentage: 100, X: -0.2, Y: 0.7, Theta: 1.4, ForceX: 10, ForceY: 0, Tau1: 5, Tau2: 6},
	}
	if diff := cmp.Diff(want, p.Rows()); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"missing EE_X", "Percentage,EE_Y,tau_1,tau_2\n0,1,2,3\n"},
		{"no target columns", "Percentage,EE_X,EE_Y\n0,1,2\n"},
		{"bad number", "Percentage,EE_X,EE_Y,tau_1,tau_2\n0,abc,2,3,4\n"},
		{"not monotonic", "Percentage,EE_X,EE_Y,tau_1,tau_2\n1,0,0,0,0\n0,0,0,0,0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Read(strings.NewReader(tt.input)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRead_TorqueMode(t *testing.T) {
	p, err := Read(strings.NewReader("Percentage,EE_X,EE_Y,tau_1,tau_2\n0,0.1,0.2,3,4\n"))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if p.Mode() != ModeTorque {
		t.Errorf("Mode() = %v, want torque", p.Mode())
	}
}

func TestSaveLoad(t *testing.T) {
	p, err := Read(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "profiles", "scaled.csv")
	if err := p.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(p.Rows(), got.Rows(), cmpopts.EquateApprox(0, 1e-15)); diff != "" {
		t.Errorf("rows mismatch after save/load:\n%s", diff)
	}

	var a, b bytes.Buffer
	p.Write(&a)
	got.Write(&b)
	if a.String() != b.String() {
		t.Errorf("CSV differs after save/load:\n%s\nvs\n%s", a.String(), b.String())
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the profile (temporary file left behind?)", len(entries))
	}
}

func TestRescale_KeepsExtraColumns(t *testing.T) {
	const input = `Percentage,EE_X,phase,EE_Y,tau_1,tau_2,note
0,-0.5,seat,0.5,1,2,start
50,-0.25,rise,0.6,3,4,
100,0,stand,0.7,5,6,"end, upright"
`
	p, err := Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	scaled, err := p.Rescale(0.25, 0.5)
	if err != nil {
		t.Fatalf("Rescale failed: %v", err)
	}

	var buf bytes.Buffer
	if err := scaled.Write(&buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	want := `Percentage,EE_X,EE_Y,tau_1,tau_2,phase,note
0,0.25,0.5,1,2,seat,start
50,0.375,0.6,3,4,rise,
100,0.5,0.7,5,6,stand,"end, upright"
`
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("CSV mismatch (-want +got):\n%s", diff)
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("re-Read failed: %v", err)
	}
	if diff := cmp.Diff(scaled.Rows(), got.Rows()); diff != "" {
		t.Errorf("rows mismatch after write/read (-want +got):\n%s", diff)
	}
}

func TestWriteFileAtomic_FailureKeepsOriginal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact.csv")
	if err := os.WriteFile(path, []byte("original"), 0644); err != nil {
		t.Fatal(err)
	}

	err := WriteFileAtomic(path, func(w io.Writer) error {
		w.Write([]byte("partial"))
		return errors.New("interrupted")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	data, _ := os.ReadFile(path)
	if string(data) != "original" {
		t.Errorf("file content = %q, want original", data)
	}
}
