// Package tracker runs one migration progress measurement end to end:
// resolve where the migration started, find the days not yet in the
// series, measure both folders at each day's last commit, then merge,
// validate, save and optionally publish the series.
package tracker

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rohankatakam/migtrack/internal/cache"
	"github.com/rohankatakam/migtrack/internal/config"
	"github.com/rohankatakam/migtrack/internal/errors"
	"github.com/rohankatakam/migtrack/internal/git"
	"github.com/rohankatakam/migtrack/internal/logging"
	"github.com/rohankatakam/migtrack/internal/measure"
	"github.com/rohankatakam/migtrack/internal/publish"
	"github.com/rohankatakam/migtrack/internal/series"
	"github.com/rohankatakam/migtrack/internal/storage"
	"github.com/rohankatakam/migtrack/internal/temporal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Options is everything one run needs, already validated.
type Options struct {
	RepoPath   string // absolute
	OldPath    string // repository-relative, slash-separated
	NewPath    string
	OutputPath string // absolute
	CachePath  string
	MemoPath   string // empty disables the measurement memo

	Force      bool
	AllowDirty bool

	IgnoreOld []string
	IgnoreNew []string

	Mode         measure.Mode
	MaxTextBytes int64

	Timeouts git.Timeouts
	Pace     time.Duration

	Publish        bool
	PublishMessage string
	Push           bool

	UI *series.UI
}

// OptionsFromConfig converts a configuration that passed
// config.ValidationContextRun.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	mode, err := measure.ParseMode(cfg.Measure.Mode)
	if err != nil {
		return Options{}, errors.ConfigErrorf("%v", err)
	}
	maxText, err := measure.ParseMaxTextSize(cfg.Measure.MaxTextSize)
	if err != nil {
		return Options{}, errors.ConfigErrorf("%v", err)
	}

	repo, err := filepath.Abs(cfg.Repo)
	if err != nil {
		return Options{}, errors.FileSystemErrorf(err, "invalid repo path %s", cfg.Repo)
	}
	output, err := filepath.Abs(cfg.Output)
	if err != nil {
		return Options{}, errors.FileSystemErrorf(err, "invalid output path %s", cfg.Output)
	}

	opts := Options{
		RepoPath:       repo,
		OldPath:        git.NormalizePath(cfg.Old),
		NewPath:        git.NormalizePath(cfg.New),
		OutputPath:     output,
		CachePath:      cfg.Cache,
		Force:          cfg.Force,
		AllowDirty:     cfg.Git.AllowDirty,
		IgnoreOld:      cfg.IgnoreOld,
		IgnoreNew:      cfg.IgnoreNew,
		Mode:           mode,
		MaxTextBytes:   maxText,
		Timeouts:       cfg.GitTimeouts(),
		Pace:           cfg.Git.Pace,
		Publish:        cfg.Publish.Enabled,
		PublishMessage: cfg.Publish.Message,
		Push:           cfg.Publish.Push,
	}
	if opts.CachePath == "" {
		opts.CachePath = cache.DefaultPath(output)
	}
	if cfg.Memo.Enabled {
		opts.MemoPath = cfg.Memo.Path
		if opts.MemoPath == "" {
			opts.MemoPath = cache.DefaultMemoPath(output)
		}
	}

	ui := series.UI{
		Title:          cfg.UI.Title,
		OldLabel:       cfg.UI.OldLabel,
		NewLabel:       cfg.UI.NewLabel,
		OldDescription: cfg.UI.OldDescription,
		NewDescription: cfg.UI.NewDescription,
	}
	if ui != (series.UI{}) {
		opts.UI = &ui
	}

	return opts, nil
}

// Result summarizes a finished run.
type Result struct {
	RunID          string
	MigrationStart temporal.Commit
	FromCache      bool
	Commits        int // commits at or after the migration start
	Days           int // distinct UTC days among them
	DaysMeasured   int
	SeriesLength   int
	Committed      bool
	Duration       time.Duration
}

// Tracker coordinates one run.
type Tracker struct {
	opts   Options
	logger *logging.Logger
	ledger storage.Ledger

	now   func() time.Time
	newID func() string

	runner   *git.Runner
	repo     *git.Repo
	measurer *measure.Measurer
	ignore   struct{ old, new *measure.Ignore }
	memo     *cache.Memo
}

// New creates a tracker. A nil ledger records nothing.
func New(opts Options, logger *logging.Logger, ledger storage.Ledger) (*Tracker, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if ledger == nil {
		ledger = storage.NopLedger{}
	}

	ignoreOld, err := measure.NewIgnore(opts.IgnoreOld)
	if err != nil {
		return nil, errors.ConfigErrorf("ignore_old: %v", err)
	}
	ignoreNew, err := measure.NewIgnore(opts.IgnoreNew)
	if err != nil {
		return nil, errors.ConfigErrorf("ignore_new: %v", err)
	}

	runner := git.NewRunner(opts.RepoPath, logger.Stage(logging.StageGit))
	t := &Tracker{
		opts:     opts,
		logger:   logger,
		ledger:   ledger,
		now:      time.Now,
		newID:    uuid.NewString,
		runner:   runner,
		repo:     git.NewRepo(runner, opts.Timeouts.Query),
		measurer: measure.New(opts.Mode, opts.MaxTextBytes),
	}
	t.ignore.old = ignoreOld
	t.ignore.new = ignoreNew
	return t, nil
}

// Run performs the whole run. Every error it returns is fatal for the run;
// cache, memo and ledger problems are logged and never surface here.
func (t *Tracker) Run(ctx context.Context) (res *Result, err error) {
	started := t.now()
	res = &Result{RunID: t.newID()}

	run := &storage.Run{
		ID:        res.RunID,
		Repo:      t.opts.RepoPath,
		OldPath:   t.opts.OldPath,
		NewPath:   t.opts.NewPath,
		Output:    t.opts.OutputPath,
		Force:     t.opts.Force,
		StartedAt: started.UTC(),
	}
	t.startRun(ctx, run)
	defer func() {
		res.Duration = t.now().Sub(started)
		t.finishRun(ctx, run, res, err)
	}()

	initLog := t.logger.Stage(logging.StageInit)
	initLog.WithFields(logrus.Fields{
		"run_id":     res.RunID,
		"repo":       t.opts.RepoPath,
		"old_path":   t.opts.OldPath,
		"new_path":   t.opts.NewPath,
		"output":     t.opts.OutputPath,
		"cache":      t.opts.CachePath,
		"ignore_old": t.opts.IgnoreOld,
		"ignore_new": t.opts.IgnoreNew,
		"mode":       t.opts.Mode,
		"force":      t.opts.Force,
	}).Info("starting analysis")

	if err := t.prepareRepo(ctx); err != nil {
		return res, err
	}

	existing, err := t.loadExisting()
	if err != nil {
		return res, err
	}

	if err := t.openMemo(); err != nil {
		return res, err
	}
	defer t.memo.Close()

	start, fromCache, err := t.migrationStart(ctx)
	if err != nil {
		return res, err
	}
	res.MigrationStart, res.FromCache = start, fromCache

	pending, err := t.pendingDays(ctx, start, existing, res)
	if err != nil {
		return res, err
	}

	points, err := t.measureDays(ctx, pending)
	res.DaysMeasured = len(points)
	if err != nil {
		return res, err
	}

	final, err := t.save(ctx, existing, points)
	if err != nil {
		return res, err
	}
	res.SeriesLength = len(final.Data)

	if t.opts.Publish {
		committed, err := t.publish(ctx)
		if err != nil {
			return res, err
		}
		res.Committed = committed
	}

	t.logger.Stage(logging.StageDone).WithFields(logrus.Fields{
		"run_id":        res.RunID,
		"days_measured": res.DaysMeasured,
		"points":        res.SeriesLength,
		"duration":      t.now().Sub(started).Round(time.Millisecond).String(),
	}).Info("completed successfully")

	return res, nil
}

// prepareRepo checks the repository, puts back a tree left on a historical
// commit by a crashed run, and refuses to discard uncommitted work.
func (t *Tracker) prepareRepo(ctx context.Context) error {
	if err := t.repo.EnsureWorkTree(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeGit, errors.SeverityCritical,
			fmt.Sprintf("%s is not a git working tree", t.opts.RepoPath))
	}

	checkoutLog := t.logger.Stage(logging.StageCheckout)
	recovery := git.NewCheckoutManager(t.runner, t.opts.Timeouts, checkoutLog)
	interrupted, err := recovery.InterruptedRunDetected(ctx)
	if err != nil {
		return err
	}
	if interrupted {
		ref, err := recovery.CaptureOriginalRef(ctx)
		if err != nil {
			return err
		}
		if err := recovery.Restore(ctx); err != nil {
			return err
		}
		checkoutLog.WithField("ref", ref).Warn("recovered working tree from an interrupted run")
	}

	if t.opts.AllowDirty {
		return nil
	}
	dirty, err := t.repo.IsDirty(ctx)
	if err != nil {
		return err
	}
	if dirty {
		return errors.New(errors.ErrorTypeCheckout, errors.SeverityCritical,
			"working tree has uncommitted or untracked files that historical checkouts would discard; commit or stash them, or set git.allow_dirty").
			WithContext("repo", t.opts.RepoPath)
	}
	return nil
}

func (t *Tracker) loadExisting() (*series.Series, error) {
	initLog := t.logger.Stage(logging.StageInit)

	if t.opts.Force {
		store := cache.NewMigrationStartCache(t.opts.CachePath, t.logger.Stage(logging.StageCache))
		if err := store.Clear(); err != nil {
			initLog.WithError(err).Warn("failed to clear migration start cache")
		}
		initLog.Info("force mode: recomputing from the migration start")
		return nil, nil
	}

	existing, err := series.Load(t.opts.OutputPath)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		initLog.WithFields(logrus.Fields{
			"points":    existing.Len(),
			"last_time": existing.LastTime(),
		}).Info("loaded existing data")
	}
	return existing, nil
}

// openMemo opens the measurement memo. Failing to open it only disables it.
func (t *Tracker) openMemo() error {
	if t.opts.MemoPath == "" {
		return nil
	}

	cacheLog := t.logger.Stage(logging.StageCache)
	memo, err := cache.OpenMemo(t.opts.MemoPath, cacheLog)
	if err != nil {
		cacheLog.WithError(err).Warn("measurement memo unavailable; measuring every day from scratch")
		return nil
	}
	if t.opts.Force {
		if err := memo.Clear(); err != nil {
			cacheLog.WithError(err).Warn("failed to clear measurement memo")
		}
	}
	t.memo = memo
	return nil
}

// migrationStart consults the cache unless forced, otherwise resolves from
// history and caches the answer.
func (t *Tracker) migrationStart(ctx context.Context) (temporal.Commit, bool, error) {
	cacheLog := t.logger.Stage(logging.StageCache)
	store := cache.NewMigrationStartCache(t.opts.CachePath, cacheLog)

	if !t.opts.Force {
		if rec, ok := store.Load(); ok && store.Validate(ctx, rec, t.repo, t.opts.OldPath, t.opts.NewPath) {
			start := rec.Commit()
			cacheLog.WithField("commit", start.ShortHash()).Info("using cached migration start")
			return start, true, nil
		}
	}

	gitLog := t.logger.Stage(logging.StageGit)
	gitLog.Info("finding migration start point")

	history := git.NewHistoryReader(t.runner, t.opts.Timeouts.Query)
	start, err := git.NewMigrationStartResolver(history, gitLog).Resolve(ctx, t.opts.OldPath, t.opts.NewPath)
	if err != nil {
		return temporal.Commit{}, false, err
	}

	store.Save(cache.NewRecord(start, t.opts.OldPath, t.opts.NewPath, t.now()))

	gitLog.WithFields(logrus.Fields{
		"commit": start.ShortHash(),
		"date":   temporal.UTCDate(start.Timestamp),
	}).Info("migration started")
	return start, false, nil
}

// pendingDays lists the representative commits of the days that still need
// measuring.
func (t *Tracker) pendingDays(ctx context.Context, start temporal.Commit, existing *series.Series, res *Result) ([]temporal.DailyCommit, error) {
	gitLog := t.logger.Stage(logging.StageGit)
	gitLog.Info("fetching commit history")

	commits, err := git.NewHistoryReader(t.runner, t.opts.Timeouts.Query).ListCommits(ctx)
	if err != nil {
		return nil, err
	}
	relevant := temporal.FilterSince(commits, start.Timestamp)
	res.Commits = len(relevant)
	gitLog.WithField("commits", len(relevant)).Info("found commits since migration start")

	aggLog := t.logger.Stage(logging.StageAggregate)
	days := temporal.AggregateByDay(relevant)
	res.Days = len(days)
	aggLog.WithField("days", len(days)).Info("aggregated to daily data points")

	pending := temporal.DaysAfter(days, existing.LastTime())
	if len(pending) == 0 {
		aggLog.Info("no new data points to process")
	} else {
		aggLog.WithField("days", len(pending)).Info("processing new days")
	}
	return pending, nil
}

// measureDays visits every pending day. The working tree is restored before
// it returns, whatever happened. Points measured before a failure are
// returned alongside the error.
func (t *Tracker) measureDays(ctx context.Context, days []temporal.DailyCommit) ([]series.DataPoint, error) {
	if len(days) == 0 {
		return nil, nil
	}

	var limiter *rate.Limiter
	if t.opts.Pace > 0 {
		limiter = rate.NewLimiter(rate.Every(t.opts.Pace), 1)
	}

	countLog := t.logger.Stage(logging.StageCount)
	checkout := git.NewCheckoutManager(t.runner, t.opts.Timeouts, t.logger.Stage(logging.StageCheckout))

	points := make([]series.DataPoint, 0, len(days))
	err := checkout.Visit(ctx, days, func(ctx context.Context, day temporal.DailyCommit) error {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}

		point, oldStats, newStats, err := t.measureDay(day)
		if err != nil {
			return err
		}
		points = append(points, point)

		countLog.WithFields(logrus.Fields{
			"date":      day.Date,
			"commit":    temporal.Short(day.Hash),
			"old":       oldStats.String(),
			"new":       newStats.String(),
			"old_bytes": humanize.Comma(oldStats.Bytes),
			"new_bytes": humanize.Comma(newStats.Bytes),
		}).Info("measured")
		return nil
	})
	if err != nil {
		return points, err
	}

	t.logger.Stage(logging.StageCheckout).WithField("ref", checkout.Original()).Info("restored original ref")
	return points, nil
}

func (t *Tracker) measureDay(day temporal.DailyCommit) (series.DataPoint, measure.Stats, measure.Stats, error) {
	dayStart, err := day.DayStart()
	if err != nil {
		return series.DataPoint{}, measure.Stats{}, measure.Stats{}, errors.InternalErrorf("bad day %q: %v", day.Date, err)
	}

	oldStats, err := t.measureFolder(day.Hash, t.opts.OldPath, t.ignore.old)
	if err != nil {
		return series.DataPoint{}, measure.Stats{}, measure.Stats{}, err
	}
	newStats, err := t.measureFolder(day.Hash, t.opts.NewPath, t.ignore.new)
	if err != nil {
		return series.DataPoint{}, measure.Stats{}, measure.Stats{}, err
	}

	point := series.DataPoint{
		Time:      dayStart,
		OldSizeKB: oldStats.SizeKB,
		NewSizeKB: newStats.SizeKB,
		OldFiles:  oldStats.Files,
		NewFiles:  newStats.Files,
	}
	if t.measurer.Mode() == measure.ModeLines {
		point.OldLines = series.Int64(oldStats.Lines)
		point.NewLines = series.Int64(newStats.Lines)
	}
	return point, oldStats, newStats, nil
}

func (t *Tracker) measureFolder(hash, rel string, ignore *measure.Ignore) (measure.Stats, error) {
	key := cache.MemoKey{
		Commit:       hash,
		Path:         rel,
		Ignored:      ignore.Patterns(),
		Mode:         t.measurer.Mode(),
		MaxTextBytes: t.measurer.MaxTextBytes(),
	}
	if stats, ok := t.memo.Get(key); ok {
		return stats, nil
	}

	stats, err := t.measurer.Measure(filepath.Join(t.opts.RepoPath, filepath.FromSlash(rel)), ignore)
	if err != nil {
		return measure.Stats{}, errors.FileSystemErrorf(err, "failed to measure %s at %s", rel, temporal.Short(hash))
	}
	t.memo.Put(key, stats)
	return stats, nil
}

// save merges, validates and writes the series. Nothing is written unless
// validation passes.
func (t *Tracker) save(ctx context.Context, existing *series.Series, points []series.DataPoint) (series.Series, error) {
	final := series.Merge(existing, points, t.meta(ctx), t.opts.Force)

	validateLog := t.logger.Stage(logging.StageValidate)
	validateLog.Info("validating data")
	if err := series.Validate(final); err != nil {
		return series.Series{}, err
	}
	validateLog.Info("validation passed")

	if err := series.Write(t.opts.OutputPath, final); err != nil {
		return series.Series{}, err
	}
	t.logger.Stage(logging.StageSave).WithFields(logrus.Fields{
		"points": len(final.Data),
		"output": t.opts.OutputPath,
	}).Info("saved data points")
	return final, nil
}

func (t *Tracker) meta(ctx context.Context) series.Meta {
	source, err := t.repo.RemoteURL(ctx)
	if err != nil || source == "" {
		source = t.opts.RepoPath
	}

	meta := series.Meta{
		SourceRepo:  source,
		OldPath:     t.opts.OldPath,
		NewPath:     t.opts.NewPath,
		GeneratedAt: t.now().UTC().Format(time.RFC3339),
		Version:     series.MetaVersion,
		UI:          t.opts.UI,
	}
	if !t.ignore.old.Empty() || !t.ignore.new.Empty() {
		meta.IgnoredSubfolders = &series.IgnoredSubfolders{
			Old: t.ignore.old.Patterns(),
			New: t.ignore.new.Patterns(),
		}
	}
	return meta
}

func (t *Tracker) publish(ctx context.Context) (bool, error) {
	publishLog := t.logger.Stage(logging.StagePublish)

	p, err := publish.New(ctx, t.opts.OutputPath, t.opts.Push, t.opts.Timeouts.Query, publishLog)
	if err != nil {
		return false, err
	}
	committed, err := p.CommitIfChanged(ctx, t.opts.OutputPath, t.opts.PublishMessage)
	if err != nil {
		return false, err
	}
	if committed {
		publishLog.WithField("push", t.opts.Push).Info("changes committed")
	} else {
		publishLog.Info("no changes to commit")
	}
	return committed, nil
}

func (t *Tracker) startRun(ctx context.Context, run *storage.Run) {
	if err := t.ledger.StartRun(context.WithoutCancel(ctx), run); err != nil {
		t.logger.Stage(logging.StageLedger).WithError(err).Warn("failed to record run start")
	}
}

func (t *Tracker) finishRun(ctx context.Context, run *storage.Run, res *Result, runErr error) {
	run.FinishedAt.Time = t.now().UTC()
	run.FinishedAt.Valid = true
	run.MigrationStart = res.MigrationStart.Hash
	run.DaysMeasured = res.DaysMeasured
	run.SeriesLength = res.SeriesLength
	run.Status = storage.RunSucceeded
	if runErr != nil {
		run.Status = storage.RunFailed
		run.Error = runErr.Error()
	}

	if err := t.ledger.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		t.logger.Stage(logging.StageLedger).WithError(err).Warn("failed to record run result")
	}
}
