// Package publish commits the series file to the repository that contains
// it, and optionally pushes, but only when its content actually changed.
package publish

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rohankatakam/migtrack/internal/git"
	"github.com/sirupsen/logrus"
)

// DefaultMessage is used when no commit message is configured.
const DefaultMessage = "Update migration progress data"

// Publisher commits one file in its enclosing repository.
type Publisher struct {
	runner  *git.Runner
	repo    *git.Repo
	timeout time.Duration
	push    bool
	logger  logrus.FieldLogger
}

// New locates the repository containing filePath. The file itself need not
// exist yet.
func New(ctx context.Context, filePath string, push bool, timeout time.Duration, logger logrus.FieldLogger) (*Publisher, error) {
	dir, err := filepath.Abs(filepath.Dir(filePath))
	if err != nil {
		return nil, err
	}

	probe := git.NewRepo(git.NewRunner(dir, logger), timeout)
	top, err := probe.TopLevel(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s is not inside a git repository: %w", dir, err)
	}

	runner := git.NewRunner(top, logger)
	return &Publisher{
		runner:  runner,
		repo:    git.NewRepo(runner, timeout),
		timeout: timeout,
		push:    push,
		logger:  logger,
	}, nil
}

// Root returns the repository the file is published to.
func (p *Publisher) Root() string {
	return p.runner.RepoPath()
}

// CommitIfChanged commits filePath when it differs from its last committed
// version (an untracked file counts as changed). It reports whether a
// commit was made.
func (p *Publisher) CommitIfChanged(ctx context.Context, filePath, message string) (bool, error) {
	rel, err := p.relative(filePath)
	if err != nil {
		return false, err
	}

	changed, err := p.repo.HasFileChanged(ctx, rel)
	if err != nil {
		return false, fmt.Errorf("checking %s for changes: %w", rel, err)
	}
	if !changed {
		p.logger.WithField("file", rel).Info("no changes, skipping commit")
		return false, nil
	}

	if err := p.commitAndPush(ctx, rel, message); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Publisher) commitAndPush(ctx context.Context, rel, message string) error {
	if message == "" {
		message = DefaultMessage
	}

	if _, err := p.runner.Run(ctx, p.timeout, "add", "--", rel); err != nil {
		return fmt.Errorf("git commit/push failed for %s: %w", rel, err)
	}
	if _, err := p.runner.Run(ctx, p.timeout, "commit", "--quiet", "-m", message, "--", rel); err != nil {
		return fmt.Errorf("git commit/push failed for %s: %w", rel, err)
	}
	p.logger.WithFields(logrus.Fields{"file": rel, "message": message}).Info("committed series file")

	if !p.push {
		return nil
	}
	if _, err := p.runner.Run(ctx, p.timeout, "push", "--quiet"); err != nil {
		return fmt.Errorf("git commit/push failed for %s: %w", rel, err)
	}
	p.logger.Info("pushed to remote")
	return nil
}

func (p *Publisher) relative(filePath string) (string, error) {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		abs = filepath.Join(resolved, filepath.Base(abs))
	}

	rel, err := filepath.Rel(p.Root(), abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
