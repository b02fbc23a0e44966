package main

import (
	"context"

	"github.com/relkit/relkit/pkg/config"
	"github.com/relkit/relkit/pkg/lock"
	"github.com/relkit/relkit/pkg/logger"
	"github.com/relkit/relkit/pkg/presenter"
	"github.com/relkit/relkit/pkg/project"
)

// loadProfile returns the repository's profile, re-detecting and persisting
// it when there is no fresh cache.
func loadProfile(ctx context.Context, root string, store *config.Store) (project.Profile, error) {
	if profile, ok := store.CachedProfile(ctx); ok {
		return profile, nil
	}

	profile, err := project.NewDetector(root).Detect(ctx)
	if err != nil {
		return project.Profile{}, err
	}
	if err := persistProfile(ctx, root, store, profile); err != nil {
		return project.Profile{}, err
	}
	return profile, nil
}

// persistProfile writes the profile cache under the per-repository lock so a
// concurrently running release never observes a partial write. When the lock
// is held the write is skipped; the profile is still usable in memory.
func persistProfile(ctx context.Context, root string, store *config.Store, profile project.Profile) error {
	lk := lock.New(root)
	if err := lk.Acquire(); err != nil {
		logger.G(ctx).WithError(err).Warn("repository locked, skipping profile persistence")
		return nil
	}
	defer lk.Release()

	return store.Persist(profile)
}

// loadConfig merges the configuration layers and surfaces any warnings, such
// as a malformed override file that was skipped.
func loadConfig(ctx context.Context, store *config.Store, flags config.Layer) config.Automation {
	cfg, warnings := store.Load(ctx, flags)
	for _, w := range warnings {
		presenter.Warning(w)
	}
	return cfg
}
