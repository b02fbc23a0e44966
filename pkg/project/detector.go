// Package project detects what kind of software project a working tree holds.
// Detection evaluates a fixed, ordered registry of ecosystem marker files and
// produces an immutable Profile; re-detection supersedes, never mutates.
package project

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/relkit/relkit/pkg/logger"
)

// Profile is the result of one detection pass over a repository root.
type Profile struct {
	EcosystemKind Kind      `yaml:"ecosystemKind" json:"ecosystemKind"`
	ManifestPath  string    `yaml:"manifestPath" json:"manifestPath"`
	LockFilePath  string    `yaml:"lockFilePath,omitempty" json:"lockFilePath,omitempty"`
	BuildToolHint string    `yaml:"buildToolHint" json:"buildToolHint"`
	Confidence    float64   `yaml:"confidence" json:"confidence"`
	DetectedAt    time.Time `yaml:"detectedAt" json:"detectedAt"`
}

// IsGeneric reports whether this is the no-ecosystem fallback profile.
func (p Profile) IsGeneric() bool {
	return p.EcosystemKind == KindGeneric
}

// Detector inspects a repository root for ecosystem markers.
type Detector struct {
	root string
}

// NewDetector creates a Detector for the given repository root.
func NewDetector(root string) *Detector {
	return &Detector{root: root}
}

// Detect evaluates the adapter registry in priority order and returns the
// profile of the first ecosystem whose manifest is present. When markers for
// several ecosystems coexist the priority order decides and the ambiguity is
// logged, never fatal. No marker at all yields the generic profile with zero
// confidence. The only error is an inaccessible root.
func (d *Detector) Detect(ctx context.Context) (Profile, error) {
	if _, err := os.Stat(d.root); err != nil {
		return Profile{}, errors.Wrapf(err, "cannot access repository root %s", d.root)
	}

	var matches []Adapter
	for _, adapter := range registry {
		if _, err := os.Stat(filepath.Join(d.root, adapter.Manifest)); err == nil {
			matches = append(matches, adapter)
		}
	}

	if len(matches) == 0 {
		logger.G(ctx).WithField("root", d.root).Debug("no ecosystem marker found, using generic profile")
		return Profile{
			EcosystemKind: KindGeneric,
			BuildToolHint: genericAdapter.BuildTool,
			Confidence:    0,
			DetectedAt:    time.Now(),
		}, nil
	}

	if len(matches) > 1 {
		kinds := make([]Kind, len(matches))
		for i, m := range matches {
			kinds[i] = m.Kind
		}
		logger.G(ctx).WithField("kinds", kinds).Warn("multiple ecosystem markers present, priority order decides")
	}

	winner := matches[0]
	profile := Profile{
		EcosystemKind: winner.Kind,
		ManifestPath:  winner.Manifest,
		BuildToolHint: winner.BuildTool,
		Confidence:    0.8,
		DetectedAt:    time.Now(),
	}

	for _, lock := range winner.LockFiles {
		if _, err := os.Stat(filepath.Join(d.root, lock)); err == nil {
			profile.LockFilePath = lock
			profile.Confidence = 1.0
			break
		}
	}

	return profile, nil
}

// NewestMarkerModTime returns the most recent modification time among every
// known ecosystem marker present under root. The config store compares it to
// a persisted profile's detection timestamp to decide staleness. The zero
// time means no marker exists.
func NewestMarkerModTime(root string) time.Time {
	var newest time.Time

	probe := func(name string) {
		info, err := os.Stat(filepath.Join(root, name))
		if err != nil {
			return
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
	}

	for _, adapter := range registry {
		probe(adapter.Manifest)
		for _, lock := range adapter.LockFiles {
			probe(lock)
		}
	}

	return newest
}
