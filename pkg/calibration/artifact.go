// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package calibration

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/abilitylab/armctl/pkg/profile"
)

// Range is the calibrated X range.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Artifact is the persisted calibration record.
type Artifact struct {
	NewRange  Range     `yaml:"new_range"`
	EEValues  []float64 `yaml:"EE_values"`
	Samples   int       `yaml:"samples"`
	Duration  float64   `yaml:"duration_s"`
	Reference string    `yaml:"reference,omitempty"`
	Profile   string    `yaml:"profile,omitempty"`
	CreatedAt time.Time `yaml:"created_at"`
}

// Artifact builds the persisted record for r.
func (r *Result) Artifact(referencePath, profilePath string, now time.Time) Artifact {
	return Artifact{
		NewRange:  Range{Min: r.Min, Max: r.Max},
		EEValues:  append([]float64(nil), r.Trajectory...),
		Samples:   len(r.Trajectory),
		Duration:  r.Duration.Seconds(),
		Reference: referencePath,
		Profile:   profilePath,
		CreatedAt: now,
	}
}

// Persist writes the artifact to artifactPath and then the rescaled profile
// to profilePath, each through a temporary file and rename. The artifact
// goes first so a calibrated profile never exists without its record; a
// failed profile write leaves an artifact whose profile path is missing.
func Persist(r *Result, a Artifact, profilePath, artifactPath string) error {
	err := profile.WriteFileAtomic(artifactPath, func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(a); err != nil {
			return err
		}
		return enc.Close()
	})
	if err != nil {
		return errors.Wrap(err, "save calibration artifact")
	}
	return errors.Wrap(r.Profile.Save(profilePath), "save calibrated profile")
}

// LoadArtifact reads a persisted calibration record.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read calibration artifact")
	}
	var a Artifact
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	if a.NewRange.Min > a.NewRange.Max {
		return nil, errors.Errorf("%s: min %g above max %g", path, a.NewRange.Min, a.NewRange.Max)
	}
	return &a, nil
}
