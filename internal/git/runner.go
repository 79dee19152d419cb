package git

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/rohankatakam/migtrack/internal/errors"
	"github.com/sirupsen/logrus"
)

// Timeouts bounds every git subprocess. Exceeding one is a hard failure of
// that step; nothing is retried here.
type Timeouts struct {
	Query    time.Duration // history and metadata queries
	Reset    time.Duration // reset --hard
	Clean    time.Duration // clean -fdx
	Checkout time.Duration // checkout --force
}

// DefaultTimeouts returns the timeouts used when none are configured.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Query:    120 * time.Second,
		Reset:    30 * time.Second,
		Clean:    60 * time.Second,
		Checkout: 60 * time.Second,
	}
}

// waitDelay caps how long Wait blocks on inherited pipes after the process
// has been killed.
const waitDelay = 5 * time.Second

// Runner executes git in a single repository.
type Runner struct {
	repoPath string
	env      []string
	logger   logrus.FieldLogger
}

// NewRunner creates a Runner bound to repoPath.
func NewRunner(repoPath string, logger logrus.FieldLogger) *Runner {
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	return &Runner{repoPath: repoPath, logger: logger}
}

// RepoPath returns the repository the runner is bound to.
func (r *Runner) RepoPath() string {
	return r.repoPath
}

// WithEnv returns a copy of the runner that adds KEY=VALUE pairs to the
// environment of every command.
func (r *Runner) WithEnv(kv ...string) *Runner {
	env := make([]string, 0, len(r.env)+len(kv))
	env = append(env, r.env...)
	env = append(env, kv...)
	return &Runner{repoPath: r.repoPath, env: env, logger: r.logger}
}

func (r *Runner) command(ctx context.Context, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.repoPath
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.Env = append(cmd.Env, r.env...)
	cmd.WaitDelay = waitDelay
	return cmd
}

// Run executes git with args and returns stdout. A non-zero exit status or
// an exceeded timeout is reported as a git command error.
func (r *Runner) Run(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := r.command(tctx, args)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	r.logger.WithFields(logrus.Fields{
		"args":     args,
		"duration": time.Since(start).String(),
	}).Debug("git command finished")

	if err != nil {
		return stdout.Bytes(), r.wrap(tctx, err, args, stderr.String())
	}
	return stdout.Bytes(), nil
}

// RunExitCode executes git and returns its exit status for commands whose
// non-zero status carries meaning (diff --quiet, cat-file -e). Only a spawn
// failure or a timeout is an error.
func (r *Runner) RunExitCode(ctx context.Context, timeout time.Duration, args ...string) (int, error) {
	_, err := r.Run(ctx, timeout, args...)
	if err == nil {
		return 0, nil
	}
	if errors.IsTimeout(err) {
		return -1, err
	}
	if code, ok := errors.GitExitCode(err); ok && code > 0 {
		return code, nil
	}
	return -1, err
}

// Stream executes git and hands stdout to onLine one line at a time, so
// output of any size is consumed without buffering it whole.
func (r *Runner) Stream(ctx context.Context, timeout time.Duration, onLine func(line string) error, args ...string) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := r.command(tctx, args)
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.GitCommand(err, args, -1, "", false)
	}
	if err := cmd.Start(); err != nil {
		return errors.GitCommand(err, args, -1, "", false)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var callbackErr error
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if callbackErr = onLine(line); callbackErr != nil {
			cancel()
			break
		}
	}
	scanErr := scanner.Err()
	// Drain so Wait does not block on a full pipe after an early stop.
	io.Copy(io.Discard, stdout)

	waitErr := cmd.Wait()
	if callbackErr != nil {
		return callbackErr
	}
	if waitErr != nil {
		return r.wrap(tctx, waitErr, args, stderr.String())
	}
	if scanErr != nil {
		return errors.GitCommand(fmt.Errorf("reading output: %w", scanErr), args, 0, stderr.String(), false)
	}
	return nil
}

func (r *Runner) wrap(ctx context.Context, err error, args []string, stderr string) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.GitCommand(err, args, -1, stderr, true)
	}

	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		return errors.GitCommand(err, args, exitErr.ExitCode(), stderr, false)
	}
	return errors.GitCommand(err, args, -1, stderr, false)
}
