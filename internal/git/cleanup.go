package git

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// staticLocks are the lock files git leaves behind when killed mid-write.
var staticLocks = []string{
	"index.lock",
	"HEAD.lock",
	"ORIG_HEAD.lock",
	"packed-refs.lock",
	"shallow.lock",
	"config.lock",
}

// ProcessFinder lists pids of git processes working on repoPath.
type ProcessFinder func(repoPath string) ([]int, error)

// Sweeper clears state an interrupted run leaves behind: orphaned git
// processes and stale lock files.
type Sweeper struct {
	repoPath string
	gitDir   string
	find     ProcessFinder
	logger   logrus.FieldLogger
}

// NewSweeper creates a Sweeper for the repository at repoPath whose git
// directory is gitDir.
func NewSweeper(repoPath, gitDir string, logger logrus.FieldLogger) *Sweeper {
	return &Sweeper{
		repoPath: repoPath,
		gitDir:   gitDir,
		find:     FindGitProcesses,
		logger:   logger,
	}
}

// Sweep kills stale git processes and then removes lock files. Lock removal
// failures are returned; a process that refuses to die is only logged.
func (s *Sweeper) Sweep() error {
	s.KillStaleProcesses()
	_, err := s.RemoveLocks()
	return err
}

// KillStaleProcesses terminates leftover git processes bound to the
// repository and returns how many were signalled.
func (s *Sweeper) KillStaleProcesses() int {
	pids, err := s.find(s.repoPath)
	if err != nil {
		s.logger.WithError(err).Debug("could not list git processes")
		return 0
	}

	killed := 0
	for _, pid := range pids {
		proc, err := os.FindProcess(pid)
		if err != nil {
			continue
		}
		if err := proc.Kill(); err != nil {
			s.logger.WithError(err).WithField("pid", pid).Debug("stale git process already gone")
			continue
		}
		killed++
		s.logger.WithField("pid", pid).Warn("killed stale git process")
	}

	if killed > 0 {
		// Give the kernel a moment to release file handles before locks go.
		time.Sleep(100 * time.Millisecond)
	}
	return killed
}

// RemoveLocks deletes stale lock files in the git directory, including ref
// locks under refs/. It returns the removed paths.
func (s *Sweeper) RemoveLocks() ([]string, error) {
	var removed []string

	for _, name := range staticLocks {
		p := filepath.Join(s.gitDir, name)
		if err := os.Remove(p); err == nil {
			removed = append(removed, p)
		} else if !os.IsNotExist(err) {
			return removed, err
		}
	}

	refsDir := filepath.Join(s.gitDir, "refs")
	err := filepath.WalkDir(refsDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".lock") {
			return nil
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
		removed = append(removed, p)
		return nil
	})

	for _, p := range removed {
		s.logger.WithField("lock", p).Warn("removed stale lock file")
	}
	return removed, err
}

// FindGitProcesses scans /proc for git processes whose working directory or
// arguments point into repoPath. Where /proc is unavailable it falls back
// to pgrep. The current process and its parent are never returned.
func FindGitProcesses(repoPath string) ([]int, error) {
	absRepo, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir("/proc")
	if err != nil {
		return pgrepGitProcesses(absRepo)
	}

	self, parent := os.Getpid(), os.Getppid()
	var pids []int

	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid == self || pid == parent {
			continue
		}

		raw, err := os.ReadFile(filepath.Join("/proc", entry.Name(), "cmdline"))
		if err != nil || len(raw) == 0 {
			continue
		}
		argv := strings.Split(strings.TrimRight(string(raw), "\x00"), "\x00")
		if !isGitBinary(argv[0]) {
			continue
		}

		cwd, _ := os.Readlink(filepath.Join("/proc", entry.Name(), "cwd"))
		if within(cwd, absRepo) || mentions(argv, absRepo) {
			pids = append(pids, pid)
		}
	}

	return pids, nil
}

func pgrepGitProcesses(absRepo string) ([]int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "pgrep", "-f", "git.*"+regexp.QuoteMeta(absRepo)).Output()
	if err != nil {
		// pgrep exits 1 when nothing matches.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, err
	}

	self := os.Getpid()
	var pids []int
	for _, field := range bytes.Fields(out) {
		pid, err := strconv.Atoi(string(field))
		if err == nil && pid != self {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

func isGitBinary(argv0 string) bool {
	base := filepath.Base(argv0)
	return base == "git" || strings.HasPrefix(base, "git-")
}

func within(p, root string) bool {
	if p == "" {
		return false
	}
	rel, err := filepath.Rel(root, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func mentions(argv []string, root string) bool {
	for _, arg := range argv[1:] {
		if within(arg, root) {
			return true
		}
	}
	return false
}
