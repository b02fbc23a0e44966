package config

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/relkit/relkit/pkg/logger"
	"github.com/relkit/relkit/pkg/project"
	"gopkg.in/yaml.v3"
)

const (
	// OverrideFileName is the project-local configuration override file.
	OverrideFileName = ".relkit.yaml"
	// ProfileCacheFileName persists the last detected profile with its
	// detection timestamp.
	ProfileCacheFileName = ".relkit-profile.yaml"
)

// Store merges configuration layers and owns the persisted files at the
// repository root. Reads may happen concurrently from the gate and the
// pipeline; writes go through Persist, which callers guard with the same
// per-repository lock releases take.
type Store struct {
	root string
}

// NewStore creates a Store for the given repository root.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Load produces the merged Automation config for this invocation. The flag
// layer has the highest precedence. A malformed override file is surfaced as
// a warning and skipped, never fatal.
func (s *Store) Load(ctx context.Context, flags Layer) (Automation, []string) {
	var warnings []string
	layers := []Layer{}

	if profile, ok := s.CachedProfile(ctx); ok {
		layers = append(layers, profileLayer(profile))
	}

	fileLayer, err := s.readOverrideFile()
	if err != nil {
		warnings = append(warnings, err.Error())
		logger.G(ctx).WithError(err).Warn("skipping malformed override file")
	} else if fileLayer != nil {
		layers = append(layers, *fileLayer)
	}

	layers = append(layers, flags)

	return Merge(Defaults(), layers...), warnings
}

// profileLayer derives configuration from a detected profile: a generic
// profile disables test auto-detection since there is nothing to probe.
// Testing.Command stays unset here; perEcosystemCommand belongs to the
// explicit user layers (override file, flags) only, so the resolver's primary
// framework candidate stays in charge by default.
func profileLayer(profile project.Profile) Layer {
	var l Layer

	if profile.IsGeneric() {
		off := false
		l.Testing.AutoDetect = &off
	}
	return l
}

func (s *Store) readOverrideFile() (*Layer, error) {
	path := filepath.Join(s.root, OverrideFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	var l Layer
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &l, nil
}

// Persist writes the detected profile to the cache file. Callers hold the
// per-repository lock when a release may run concurrently.
func (s *Store) Persist(profile project.Profile) error {
	data, err := yaml.Marshal(profile)
	if err != nil {
		return errors.Wrap(err, "failed to marshal profile")
	}

	path := filepath.Join(s.root, ProfileCacheFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write profile cache %s", path)
	}
	return nil
}

// CachedProfile returns the persisted profile when it exists and is still
// fresh. A profile is stale when any ecosystem marker file is newer than the
// detection timestamp.
func (s *Store) CachedProfile(ctx context.Context) (project.Profile, bool) {
	path := filepath.Join(s.root, ProfileCacheFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return project.Profile{}, false
	}

	var profile project.Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		logger.G(ctx).WithError(err).Warn("discarding unreadable profile cache")
		return project.Profile{}, false
	}

	if s.isStale(profile) {
		logger.G(ctx).Debug("profile cache is stale")
		return project.Profile{}, false
	}

	return profile, true
}

func (s *Store) isStale(profile project.Profile) bool {
	newest := project.NewestMarkerModTime(s.root)
	return !newest.IsZero() && newest.After(profile.DetectedAt)
}

// InvalidateIfStale removes the profile cache when it no longer reflects the
// working tree, forcing the next Load to re-detect.
func (s *Store) InvalidateIfStale() error {
	path := filepath.Join(s.root, ProfileCacheFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to read profile cache %s", path)
	}

	var profile project.Profile
	if err := yaml.Unmarshal(data, &profile); err == nil && !s.isStale(profile) {
		return nil
	}

	if err := os.Remove(path); err != nil {
		return errors.Wrapf(err, "failed to remove stale profile cache %s", path)
	}
	return nil
}
