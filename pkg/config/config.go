// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the optional YAML file that overrides the built-in
// motor limits, arm geometry and loop settings.
package config

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/abilitylab/armctl/pkg/calibration"
	"github.com/abilitylab/armctl/pkg/control"
	"github.com/abilitylab/armctl/pkg/cubemars"
	"github.com/abilitylab/armctl/pkg/kinematics"
	"github.com/abilitylab/armctl/pkg/safety"
)

const (
	DefaultLogDir = "motor_logs"
	DefaultWindow = 8 * time.Second
)

// Safety tunes the telemetry envelope.
type Safety struct {
	Tolerance float64 `yaml:"tolerance"`
	MaxMissed int     `yaml:"max_missed"`
}

// Calibration tunes the calibration procedure.
type Calibration struct {
	Window            time.Duration `yaml:"window"`
	Settle            time.Duration `yaml:"settle"`
	EndpointSamples   int           `yaml:"endpoint_samples"`
	VelocityThreshold float64       `yaml:"velocity_threshold"`
}

// MQTT configures the optional telemetry fan-out.
type MQTT struct {
	Broker string `yaml:"broker,omitempty"`
	Topic  string `yaml:"topic,omitempty"`
	Every  int    `yaml:"every,omitempty"`
}

// Config is the effective configuration.
type Config struct {
	Frequency   float64             `yaml:"frequency"` // Hz
	LogDir      string              `yaml:"log_dir"`
	Geometry    kinematics.Geometry `yaml:"geometry"`
	Shoulder    cubemars.Limits     `yaml:"shoulder"`
	Elbow       cubemars.Limits     `yaml:"elbow"`
	Safety      Safety              `yaml:"safety"`
	Calibration Calibration         `yaml:"calibration"`
	MQTT        MQTT                `yaml:"mqtt,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Frequency: control.DefaultFrequency,
		LogDir:    DefaultLogDir,
		Geometry:  kinematics.DefaultGeometry(),
		Shoulder:  cubemars.Models[cubemars.ModelAK7010],
		Elbow:     cubemars.Models[cubemars.ModelAK606],
		Safety: Safety{
			Tolerance: safety.DefaultTolerance,
			MaxMissed: safety.DefaultMaxMissed,
		},
		Calibration: Calibration{
			Window:            DefaultWindow,
			Settle:            calibration.DefaultSettle,
			EndpointSamples:   calibration.DefaultEndpointSamples,
			VelocityThreshold: calibration.DefaultVelocityThreshold,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Naming a different motor model for a
// joint starts that joint from the model's built-in limits before applying
// the remaining fields.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	var models struct {
		Shoulder struct {
			Model string `yaml:"model"`
		} `yaml:"shoulder"`
		Elbow struct {
			Model string `yaml:"model"`
		} `yaml:"elbow"`
	}
	if err := yaml.Unmarshal(data, &models); err != nil {
		return Config{}, errors.Wrap(err, "parse")
	}
	for _, j := range []struct {
		model string
		dst   *cubemars.Limits
	}{
		{models.Shoulder.Model, &cfg.Shoulder},
		{models.Elbow.Model, &cfg.Elbow},
	} {
		if j.model == "" || j.model == j.dst.Model {
			continue
		}
		l, err := cubemars.LimitsFor(j.model)
		if err != nil {
			return Config{}, err
		}
		*j.dst = l
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings no session or loop can run with.
func (c Config) Validate() error {
	if !(c.Frequency > 0) {
		return errors.Errorf("frequency must be positive, got %g", c.Frequency)
	}
	if err := c.Geometry.Validate(); err != nil {
		return errors.Wrap(err, "geometry")
	}
	if err := c.Shoulder.Validate(); err != nil {
		return errors.Wrap(err, "shoulder")
	}
	if err := c.Elbow.Validate(); err != nil {
		return errors.Wrap(err, "elbow")
	}
	if c.Shoulder.Channel == c.Elbow.Channel {
		return errors.Errorf("shoulder and elbow share channel %s; each motor needs its own", c.Shoulder.Channel)
	}
	if c.Safety.Tolerance < 0 {
		return errors.Errorf("safety tolerance must not be negative, got %g", c.Safety.Tolerance)
	}
	if c.Safety.MaxMissed < 1 {
		return errors.Errorf("safety max_missed must be at least 1, got %d", c.Safety.MaxMissed)
	}
	if c.Calibration.Window <= c.Calibration.Settle {
		return errors.Errorf("calibration window %v must exceed settle %v", c.Calibration.Window, c.Calibration.Settle)
	}
	return nil
}

// Period returns the control tick period.
func (c Config) Period() time.Duration {
	return time.Duration(float64(time.Second) / c.Frequency)
}

// CalibrationOptions returns the options for calibration.Compute.
func (c Config) CalibrationOptions() calibration.Options {
	return calibration.Options{
		Period:            c.Period(),
		Settle:            c.Calibration.Settle,
		EndpointSamples:   c.Calibration.EndpointSamples,
		VelocityThreshold: c.Calibration.VelocityThreshold,
	}
}

// Write emits the configuration as YAML.
func (c Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
