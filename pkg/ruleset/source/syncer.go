package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mercator-hq/minerva/pkg/ruleset"
)

// Syncer applies ruleset definition files to a version manager.
// Files declaring a version the store already holds are skipped, so a
// re-sync after a watcher event only publishes genuinely new versions.
type Syncer struct {
	loader  *Loader
	manager *ruleset.VersionManager
	store   ruleset.Store
	logger  *slog.Logger

	// AutoActivate controls whether newly created drafts are activated
	// immediately. Disabled deployments publish through the CLI instead.
	AutoActivate bool
}

// NewSyncer creates a syncer that publishes loaded rulesets through mgr.
func NewSyncer(loader *Loader, mgr *ruleset.VersionManager, store ruleset.Store, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		loader:       loader,
		manager:      mgr,
		store:        store,
		logger:       logger.With("component", "ruleset.syncer"),
		AutoActivate: true,
	}
}

// SyncDir loads every ruleset file under dir and publishes new versions.
// Returns the number of versions applied.
func (s *Syncer) SyncDir(ctx context.Context, dir string) (int, error) {
	loaded, err := s.loader.LoadDir(dir)
	if err != nil {
		return 0, err
	}

	var applied int
	for _, rs := range loaded {
		ok, err := s.apply(ctx, rs)
		if err != nil {
			return applied, err
		}
		if ok {
			applied++
		}
	}
	return applied, nil
}

// SyncFile loads a single ruleset file and publishes it if it declares a
// version the store does not hold yet.
func (s *Syncer) SyncFile(ctx context.Context, path string) (bool, error) {
	rs, err := s.loader.LoadFile(path)
	if err != nil {
		return false, err
	}
	return s.apply(ctx, rs)
}

func (s *Syncer) apply(ctx context.Context, rs *ruleset.Ruleset) (bool, error) {
	scope := ruleset.ScopeKey{TenantID: rs.TenantID, Code: rs.Code}

	if _, err := s.store.GetVersion(ctx, scope, rs.Version); err == nil {
		// Already published; files are immutable per version.
		return false, nil
	} else {
		var notFound *ruleset.NotFoundError
		if !errors.As(err, &notFound) {
			return false, err
		}
	}

	if err := s.manager.CreateDraft(ctx, rs); err != nil {
		// A file declaring an older version than the current maximum is a
		// stale file, not an error worth failing the sync over.
		if errors.Is(err, ruleset.ErrVersionExists) {
			s.logger.Warn("skipping stale ruleset file version",
				"scope", scope.String(), "version", rs.Version)
			return false, nil
		}
		return false, fmt.Errorf("create draft %s v%d: %w", scope, rs.Version, err)
	}

	if !s.AutoActivate {
		return true, nil
	}
	if _, err := s.manager.Activate(ctx, scope, rs.Version); err != nil {
		return false, fmt.Errorf("activate %s v%d: %w", scope, rs.Version, err)
	}
	return true, nil
}
