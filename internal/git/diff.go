package git

import (
	"context"
	"fmt"
	"strings"
)

// HasUncommittedChanges reports whether tracked files differ from HEAD.
// Exit status 1 of `git diff --quiet` means "differs", not a failure.
func (r *Repo) HasUncommittedChanges(ctx context.Context) (bool, error) {
	code, err := r.runner.RunExitCode(ctx, r.timeout, "diff", "--quiet", "HEAD")
	if err != nil {
		return false, err
	}
	switch code {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("git diff --quiet HEAD exited with status %d", code)
	}
}

// HasFileChanged reports whether relPath differs from its last committed
// version. A file git does not track yet counts as changed.
func (r *Repo) HasFileChanged(ctx context.Context, relPath string) (bool, error) {
	tracked, err := r.IsTracked(ctx, relPath)
	if err != nil {
		return false, err
	}
	if !tracked {
		return true, nil
	}

	code, err := r.runner.RunExitCode(ctx, r.timeout, "diff", "--quiet", "HEAD", "--", relPath)
	if err != nil {
		return false, err
	}
	switch code {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("git diff --quiet %s exited with status %d", relPath, code)
	}
}

// IsTracked reports whether relPath is in the index.
func (r *Repo) IsTracked(ctx context.Context, relPath string) (bool, error) {
	code, err := r.runner.RunExitCode(ctx, r.timeout, "ls-files", "--error-unmatch", "--", relPath)
	if err != nil {
		return false, err
	}
	return code == 0, nil
}

// UntrackedFiles lists files git does not track and does not ignore. A
// forced checkout's `clean -fdx` would delete them.
func (r *Repo) UntrackedFiles(ctx context.Context) ([]string, error) {
	out, err := r.runner.Run(ctx, r.timeout, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}

	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// IsDirty reports whether checking out another commit would lose work:
// tracked changes against HEAD or untracked files.
func (r *Repo) IsDirty(ctx context.Context) (bool, error) {
	changed, err := r.HasUncommittedChanges(ctx)
	if err != nil || changed {
		return changed, err
	}
	untracked, err := r.UntrackedFiles(ctx)
	if err != nil {
		return false, err
	}
	return len(untracked) > 0, nil
}
