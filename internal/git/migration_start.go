package git

import (
	"context"

	"github.com/rohankatakam/migtrack/internal/errors"
	"github.com/rohankatakam/migtrack/internal/temporal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// AppearanceFinder locates the first commit that introduced a path.
type AppearanceFinder interface {
	FindFirstAppearance(ctx context.Context, relativePath string) (temporal.Commit, bool, error)
}

// MigrationStartResolver finds the first commit at which both tracked paths
// exist in history.
type MigrationStartResolver struct {
	finder AppearanceFinder
	logger logrus.FieldLogger
}

// NewMigrationStartResolver creates a resolver backed by finder.
func NewMigrationStartResolver(finder AppearanceFinder, logger logrus.FieldLogger) *MigrationStartResolver {
	return &MigrationStartResolver{finder: finder, logger: logger}
}

// Resolve looks up both first appearances concurrently and returns the
// later one. Either path never having been added is a configuration error
// naming that path.
func (r *MigrationStartResolver) Resolve(ctx context.Context, oldPath, newPath string) (temporal.Commit, error) {
	var (
		oldCommit, newCommit temporal.Commit
		oldFound, newFound   bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		oldCommit, oldFound, err = r.finder.FindFirstAppearance(gctx, oldPath)
		return err
	})
	g.Go(func() error {
		var err error
		newCommit, newFound, err = r.finder.FindFirstAppearance(gctx, newPath)
		return err
	})
	if err := g.Wait(); err != nil {
		return temporal.Commit{}, err
	}

	if !oldFound {
		return temporal.Commit{}, errors.MigrationNotStarted("old", oldPath)
	}
	if !newFound {
		return temporal.Commit{}, errors.MigrationNotStarted("new", newPath)
	}

	start := LaterAppearance(oldCommit, newCommit)
	r.logger.WithFields(logrus.Fields{
		"old_first": oldCommit.ShortHash(),
		"new_first": newCommit.ShortHash(),
		"start":     start.ShortHash(),
	}).Debug("resolved migration start")

	return start, nil
}

// LaterAppearance picks the commit at which both paths coexist. On equal
// timestamps the old path's commit wins; the tie-break is arbitrary and kept
// only so results stay stable across runs.
func LaterAppearance(oldCommit, newCommit temporal.Commit) temporal.Commit {
	if oldCommit.Timestamp >= newCommit.Timestamp {
		return oldCommit
	}
	return newCommit
}
