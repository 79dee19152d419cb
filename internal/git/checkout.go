package git

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rohankatakam/migtrack/internal/errors"
	"github.com/rohankatakam/migtrack/internal/temporal"
	"github.com/sirupsen/logrus"
)

// State is the position of the working tree in the checkout lifecycle.
type State int

const (
	// StateClean: the tree is on the ref it started on.
	StateClean State = iota
	// StateCheckedOut: the tree has been forced onto a historical commit.
	StateCheckedOut
	// StateRestored: the tree is back on the original ref. Terminal.
	StateRestored
)

func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateCheckedOut:
		return "checked-out"
	case StateRestored:
		return "restored"
	default:
		return "unknown"
	}
}

// originalRefFile lives in the git directory, which `clean -fdx` never
// touches. Its presence at startup means a previous run died before
// restoring the tree.
const originalRefFile = "MIGTRACK_ORIGINAL_REF"

// CheckoutManager moves the working tree onto historical commits and back.
// Every transition first sweeps stale processes and locks, then runs
// reset --hard, clean -fdx and a forced checkout, each under its own
// timeout. Not safe for concurrent use: the working tree is a single
// shared resource.
type CheckoutManager struct {
	runner   *Runner
	repo     *Repo
	timeouts Timeouts
	logger   logrus.FieldLogger

	sweeper  *Sweeper
	gitDir   string
	state    State
	original string
	current  string
}

// NewCheckoutManager creates a manager for the repository behind runner.
// Checkouts skip large-file smudging and submodule recursion.
func NewCheckoutManager(runner *Runner, timeouts Timeouts, logger logrus.FieldLogger) *CheckoutManager {
	lfsSafe := runner.WithEnv("GIT_LFS_SKIP_SMUDGE=1")
	return &CheckoutManager{
		runner:   lfsSafe,
		repo:     NewRepo(lfsSafe, timeouts.Query),
		timeouts: timeouts,
		logger:   logger,
	}
}

// State returns the current lifecycle state.
func (m *CheckoutManager) State() State {
	return m.state
}

// Original returns the ref captured by CaptureOriginalRef.
func (m *CheckoutManager) Original() string {
	return m.original
}

// Current returns the commit the tree was last forced onto.
func (m *CheckoutManager) Current() string {
	return m.current
}

// CaptureOriginalRef records the ref to restore later: the branch name, or
// the exact commit hash when HEAD is detached. If an earlier run crashed
// while on a historical commit, the ref it recorded is reused instead of
// the commit the tree happens to be on now.
func (m *CheckoutManager) CaptureOriginalRef(ctx context.Context) (string, error) {
	gitDir, err := m.repo.GitDir(ctx)
	if err != nil {
		return "", err
	}
	m.gitDir = gitDir
	m.sweeper = NewSweeper(m.repo.Path(), gitDir, m.logger)

	if recorded, ok := m.readRecordedRef(); ok {
		m.logger.WithField("ref", recorded).Warn("previous run was interrupted; will restore its original ref")
		m.original = recorded
		m.state = StateClean
		return recorded, nil
	}

	ref, err := m.repo.CurrentRef(ctx)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(m.markerPath(), []byte(ref+"\n"), 0644); err != nil {
		return "", errors.FileSystemErrorf(err, "failed to record original ref in %s", m.markerPath())
	}

	m.original = ref
	m.state = StateClean
	return ref, nil
}

// InterruptedRunDetected reports whether CaptureOriginalRef found a ref
// left behind by a crashed run.
func (m *CheckoutManager) InterruptedRunDetected(ctx context.Context) (bool, error) {
	gitDir, err := m.repo.GitDir(ctx)
	if err != nil {
		return false, err
	}
	_, statErr := os.Stat(filepath.Join(gitDir, originalRefFile))
	return statErr == nil, nil
}

// CheckoutCommit forces the working tree onto hash.
func (m *CheckoutManager) CheckoutCommit(ctx context.Context, hash string) error {
	if m.sweeper == nil {
		return errors.InternalErrorf("checkout of %s before the original ref was captured", hash)
	}
	if m.state == StateRestored {
		return errors.InternalErrorf("checkout of %s after restore", hash)
	}

	if err := m.force(ctx, hash); err != nil {
		return errors.CheckoutFailed(err, hash)
	}

	m.current = hash
	m.state = StateCheckedOut
	return nil
}

// Restore runs the same defensive sequence to put the tree back on the
// captured ref. It succeeds trivially when nothing was ever checked out.
func (m *CheckoutManager) Restore(ctx context.Context) error {
	if m.sweeper == nil || m.state == StateRestored {
		return nil
	}

	if m.state == StateClean && !m.markerDiverged(ctx) {
		m.clearMarker()
		m.state = StateRestored
		return nil
	}

	if err := m.force(ctx, m.original); err != nil {
		return errors.CheckoutFailed(err, m.original).WithContext("phase", "restore")
	}

	m.clearMarker()
	m.current = ""
	m.state = StateRestored
	m.logger.WithField("ref", m.original).Info("restored working tree")
	return nil
}

// Visit checks out each day's commit in turn and calls fn while the tree is
// on it. The original ref is restored afterwards no matter how the loop
// ends, including cancellation of ctx; a restore failure is joined to any
// error from the loop.
func (m *CheckoutManager) Visit(ctx context.Context, days []temporal.DailyCommit, fn func(ctx context.Context, day temporal.DailyCommit) error) (err error) {
	if len(days) == 0 {
		return nil
	}

	if _, err := m.CaptureOriginalRef(ctx); err != nil {
		return err
	}

	defer func() {
		if rerr := m.Restore(context.WithoutCancel(ctx)); rerr != nil {
			err = stderrors.Join(err, rerr)
		}
	}()

	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return err
		}

		m.logger.WithFields(logrus.Fields{
			"date":   day.Date,
			"commit": temporal.Short(day.Hash),
		}).Info("checking out daily commit")

		if err := m.CheckoutCommit(ctx, day.Hash); err != nil {
			return fmt.Errorf("day %s: %w", day.Date, err)
		}
		if err := fn(ctx, day); err != nil {
			return fmt.Errorf("day %s: %w", day.Date, err)
		}
	}

	return nil
}

// force is the defensive transition shared by checkout and restore. Once
// started it runs to completion even if ctx is cancelled; each step is still
// bounded by its timeout.
func (m *CheckoutManager) force(ctx context.Context, ref string) error {
	ctx = context.WithoutCancel(ctx)
	if err := m.sweeper.Sweep(); err != nil {
		return fmt.Errorf("removing stale locks: %w", err)
	}

	if _, err := m.runner.Run(ctx, m.timeouts.Reset, "reset", "--hard", "--quiet", "HEAD"); err != nil {
		return err
	}
	if _, err := m.runner.Run(ctx, m.timeouts.Clean, "clean", "-fdxq"); err != nil {
		return err
	}
	_, err := m.runner.Run(ctx, m.timeouts.Checkout,
		"checkout", "--force", "--quiet", "--no-recurse-submodules", ref, "--")
	return err
}

func (m *CheckoutManager) markerPath() string {
	return filepath.Join(m.gitDir, originalRefFile)
}

func (m *CheckoutManager) readRecordedRef() (string, bool) {
	data, err := os.ReadFile(m.markerPath())
	if err != nil {
		return "", false
	}
	ref := strings.TrimSpace(string(data))
	return ref, ref != ""
}

// markerDiverged reports whether the tree sits somewhere other than the
// original ref, which happens when the ref came from a crashed run.
func (m *CheckoutManager) markerDiverged(ctx context.Context) bool {
	current, err := m.repo.CurrentRef(ctx)
	if err != nil {
		return true
	}
	return current != m.original
}

func (m *CheckoutManager) clearMarker() {
	if err := os.Remove(m.markerPath()); err != nil && !os.IsNotExist(err) {
		m.logger.WithError(err).Warn("failed to remove original ref marker")
	}
}
