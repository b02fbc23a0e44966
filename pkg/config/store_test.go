package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/relkit/relkit/pkg/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNothingPersisted(t *testing.T) {
	store := NewStore(t.TempDir())

	cfg, warnings := store.Load(context.Background(), Layer{})

	assert.Empty(t, warnings)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoad_OverrideFileApplies(t *testing.T) {
	dir := t.TempDir()
	override := `
testing:
  enabled: false
  coverageThreshold: 75
release:
  autoPublish: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, OverrideFileName), []byte(override), 0o644))

	cfg, warnings := NewStore(dir).Load(context.Background(), Layer{})

	assert.Empty(t, warnings)
	assert.False(t, cfg.Testing.Enabled)
	assert.Equal(t, 75.0, cfg.Testing.CoverageThreshold)
	assert.True(t, cfg.Release.AutoPublish)
	// untouched leaves keep defaults
	assert.True(t, cfg.Release.AutoTag)
}

func TestLoad_FlagsOutrankOverrideFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, OverrideFileName),
		[]byte("testing:\n  enabled: false\n"), 0o644))

	var flags Layer
	flags.Testing.Enabled = boolPtr(true)

	cfg, _ := NewStore(dir).Load(context.Background(), flags)

	assert.True(t, cfg.Testing.Enabled)
}

func TestLoad_MalformedOverrideWarnsAndFallsBack(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, OverrideFileName),
		[]byte("testing: [not: a: mapping"), 0o644))

	cfg, warnings := NewStore(dir).Load(context.Background(), Layer{})

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], OverrideFileName)
	assert.Equal(t, Defaults(), cfg)
}

func TestPersistAndCachedProfile(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	profile := project.Profile{
		EcosystemKind: project.KindGo,
		ManifestPath:  "go.mod",
		BuildToolHint: "go",
		Confidence:    1.0,
		DetectedAt:    time.Now(),
	}
	require.NoError(t, store.Persist(profile))

	cached, ok := store.CachedProfile(context.Background())
	require.True(t, ok)
	assert.Equal(t, profile.EcosystemKind, cached.EcosystemKind)
	assert.Equal(t, profile.ManifestPath, cached.ManifestPath)
	assert.InDelta(t, profile.Confidence, cached.Confidence, 0.001)
}

func TestCachedProfile_StaleWhenMarkerIsNewer(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	profile := project.Profile{
		EcosystemKind: project.KindGo,
		DetectedAt:    time.Now().Add(-time.Hour),
	}
	require.NoError(t, store.Persist(profile))

	// marker file newer than the detection timestamp
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module m"), 0o644))

	_, ok := store.CachedProfile(context.Background())
	assert.False(t, ok)
}

func TestCachedProfile_MissingOrUnreadable(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	_, ok := store.CachedProfile(context.Background())
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ProfileCacheFileName), []byte("{{{"), 0o644))
	_, ok = store.CachedProfile(context.Background())
	assert.False(t, ok)
}

func TestInvalidateIfStale(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	// no cache file is a no-op
	require.NoError(t, store.InvalidateIfStale())

	profile := project.Profile{EcosystemKind: project.KindGo, DetectedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, store.Persist(profile))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module m"), 0o644))

	require.NoError(t, store.InvalidateIfStale())
	_, err := os.Stat(filepath.Join(dir, ProfileCacheFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestInvalidateIfStale_KeepsFreshCache(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	require.NoError(t, store.Persist(project.Profile{
		EcosystemKind: project.KindGeneric,
		DetectedAt:    time.Now(),
	}))

	require.NoError(t, store.InvalidateIfStale())
	_, err := os.Stat(filepath.Join(dir, ProfileCacheFileName))
	assert.NoError(t, err)
}

func TestLoad_ProfileLayerLeavesTestCommandUnset(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	require.NoError(t, store.Persist(project.Profile{
		EcosystemKind: project.KindGo,
		ManifestPath:  "go.mod",
		DetectedAt:    time.Now(),
	}))

	cfg, _ := store.Load(context.Background(), Layer{})

	// the resolved framework candidate stays in charge unless the user sets
	// perEcosystemCommand explicitly
	assert.Empty(t, cfg.Testing.Command)
	assert.True(t, cfg.Testing.AutoDetect)
}

func TestLoad_GenericProfileDisablesAutoDetect(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	require.NoError(t, store.Persist(project.Profile{
		EcosystemKind: project.KindGeneric,
		DetectedAt:    time.Now(),
	}))

	cfg, _ := store.Load(context.Background(), Layer{})
	assert.False(t, cfg.Testing.AutoDetect)
}
