// Package config builds the automation configuration that parameterizes the
// commit gate and the release pipeline. The configuration is produced by an
// explicit layered merge with documented precedence, low to high: compiled
// defaults, persisted profile-derived settings, the project override file,
// and per-invocation flag overrides. Each leaf is overridden independently;
// the merge is a pure function so precedence is testable without a
// filesystem.
package config

import (
	"fmt"
	"time"
)

// TestingConfig controls whether and how tests run inside the gate and the
// release pipeline.
type TestingConfig struct {
	Enabled           bool     `yaml:"enabled"`
	StrictMode        bool     `yaml:"strictMode"`
	AutoDetect        bool     `yaml:"autoDetect"`
	Command           []string `yaml:"perEcosystemCommand,omitempty"`
	CoverageThreshold float64  `yaml:"coverageThreshold"`
}

// ReleaseConfig controls the optional tail of the release pipeline.
type ReleaseConfig struct {
	AutoTag       bool `yaml:"autoTag"`
	AutoChangelog bool `yaml:"autoChangelog"`
	AutoPublish   bool `yaml:"autoPublish"`
}

// TimeoutConfig bounds the external-process suspension points.
type TimeoutConfig struct {
	TestRun time.Duration `yaml:"testRun"`
	Step    time.Duration `yaml:"step"`
}

// Automation is the fully merged configuration passed by value into every
// component call. No component reads ambient global state.
type Automation struct {
	Testing  TestingConfig `yaml:"testing"`
	Release  ReleaseConfig `yaml:"release"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// Defaults returns the compiled-in lowest-precedence layer.
func Defaults() Automation {
	return Automation{
		Testing: TestingConfig{
			Enabled:           true,
			StrictMode:        false,
			AutoDetect:        true,
			CoverageThreshold: 0,
		},
		Release: ReleaseConfig{
			AutoTag:       true,
			AutoChangelog: true,
			AutoPublish:   false,
		},
		Timeouts: TimeoutConfig{
			TestRun: 10 * time.Minute,
			Step:    5 * time.Minute,
		},
	}
}

// Layer is one precedence layer of the merge. Nil leaves mean "no opinion";
// a set leaf replaces the value from every lower layer. The yaml tags are the
// on-disk schema of the project override file.
type Layer struct {
	Testing struct {
		Enabled           *bool    `yaml:"enabled"`
		StrictMode        *bool    `yaml:"strictMode"`
		AutoDetect        *bool    `yaml:"autoDetect"`
		Command           []string `yaml:"perEcosystemCommand"`
		CoverageThreshold *float64 `yaml:"coverageThreshold"`
	} `yaml:"testing"`
	Release struct {
		AutoTag       *bool `yaml:"autoTag"`
		AutoChangelog *bool `yaml:"autoChangelog"`
		AutoPublish   *bool `yaml:"autoPublish"`
	} `yaml:"release"`
	Timeouts struct {
		TestRun *time.Duration `yaml:"testRun"`
		Step    *time.Duration `yaml:"step"`
	} `yaml:"timeouts"`
}

// Merge applies layers to base in order, highest precedence last. Each leaf
// setting is overridden independently: a layer that sets testing.enabled does
// not disturb testing.coverageThreshold from a lower layer.
func Merge(base Automation, layers ...Layer) Automation {
	out := base

	for _, l := range layers {
		if l.Testing.Enabled != nil {
			out.Testing.Enabled = *l.Testing.Enabled
		}
		if l.Testing.StrictMode != nil {
			out.Testing.StrictMode = *l.Testing.StrictMode
		}
		if l.Testing.AutoDetect != nil {
			out.Testing.AutoDetect = *l.Testing.AutoDetect
		}
		if len(l.Testing.Command) > 0 {
			out.Testing.Command = append([]string(nil), l.Testing.Command...)
		}
		if l.Testing.CoverageThreshold != nil {
			out.Testing.CoverageThreshold = *l.Testing.CoverageThreshold
		}
		if l.Release.AutoTag != nil {
			out.Release.AutoTag = *l.Release.AutoTag
		}
		if l.Release.AutoChangelog != nil {
			out.Release.AutoChangelog = *l.Release.AutoChangelog
		}
		if l.Release.AutoPublish != nil {
			out.Release.AutoPublish = *l.Release.AutoPublish
		}
		if l.Timeouts.TestRun != nil {
			out.Timeouts.TestRun = *l.Timeouts.TestRun
		}
		if l.Timeouts.Step != nil {
			out.Timeouts.Step = *l.Timeouts.Step
		}
	}

	return out
}

// ParseError reports a malformed configuration layer. It is a warning, not a
// failure: the store skips the layer and falls back to the next-lower one.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse config %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
