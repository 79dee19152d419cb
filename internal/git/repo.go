package git

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Repo answers metadata questions about a repository.
type Repo struct {
	runner  *Runner
	timeout time.Duration
}

// NewRepo creates a Repo. timeout bounds each git query.
func NewRepo(runner *Runner, timeout time.Duration) *Repo {
	if timeout <= 0 {
		timeout = DefaultTimeouts().Query
	}
	return &Repo{runner: runner, timeout: timeout}
}

// Path returns the repository path.
func (r *Repo) Path() string {
	return r.runner.RepoPath()
}

// EnsureWorkTree fails unless the path is inside a git working tree.
func (r *Repo) EnsureWorkTree(ctx context.Context) error {
	out, err := r.runner.Run(ctx, r.timeout, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return fmt.Errorf("not a git repository: %w", err)
	}
	if strings.TrimSpace(string(out)) != "true" {
		return fmt.Errorf("not a git working tree: %s", r.Path())
	}
	return nil
}

// TopLevel returns the root of the working tree containing the runner's path.
func (r *Repo) TopLevel(ctx context.Context) (string, error) {
	out, err := r.runner.Run(ctx, r.timeout, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// GitDir returns the absolute path of the repository's git directory.
func (r *Repo) GitDir(ctx context.Context) (string, error) {
	out, err := r.runner.Run(ctx, r.timeout, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// CurrentRef returns the checked-out branch name, or the exact commit hash
// when HEAD is detached, so it can be restored verbatim later.
func (r *Repo) CurrentRef(ctx context.Context) (string, error) {
	out, err := r.runner.Run(ctx, r.timeout, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}

	branch := strings.TrimSpace(string(out))
	if branch != "HEAD" {
		return branch, nil
	}

	return r.HeadCommit(ctx)
}

// HeadCommit returns the full hash of the checked-out commit.
func (r *Repo) HeadCommit(ctx context.Context) (string, error) {
	out, err := r.runner.Run(ctx, r.timeout, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// RemoteURL returns the URL of the origin remote.
func (r *Repo) RemoteURL(ctx context.Context) (string, error) {
	out, err := r.runner.Run(ctx, r.timeout, "remote", "get-url", "origin")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// CommitExists reports whether hash still names a commit object. It is
// false after a history rewrite dropped the commit.
func (r *Repo) CommitExists(ctx context.Context, hash string) (bool, error) {
	if hash == "" {
		return false, nil
	}
	code, err := r.runner.RunExitCode(ctx, r.timeout, "cat-file", "-e", hash+"^{commit}")
	if err != nil {
		return false, err
	}
	return code == 0, nil
}
