package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"musicsync/internal/catalog"
	"musicsync/internal/logging"
	"musicsync/internal/pipeline"
	"musicsync/internal/plan"
	"musicsync/internal/reconcile"
	"musicsync/internal/services"
	"musicsync/internal/target"
)

const component = "session"

// ErrLocked is returned when another run holds the session lock.
var ErrLocked = errors.New("another musicsync run is in progress")

// Decision is the caller's answer to a pending plan.
type Decision int

const (
	DecisionProceed Decision = iota
	DecisionAbort
	DecisionPreview
)

func (d Decision) String() string {
	switch d {
	case DecisionProceed:
		return "proceed"
	case DecisionAbort:
		return "abort"
	case DecisionPreview:
		return "preview"
	default:
		return "unknown"
	}
}

// ConfirmFunc asks whether to apply ops.
type ConfirmFunc func(ctx context.Context, summary plan.Summary, ops []plan.Operation) (Decision, error)

// PreviewFunc shows ops to the operator.
type PreviewFunc func(ops []plan.Operation)

// Lister enumerates source keys under a root.
type Lister interface {
	List(ctx context.Context, root string) ([]string, error)
}

// Fingerprints resolves and fingerprints source files.
type Fingerprints interface {
	pipeline.Fingerprints
}

// Options carry the per-run settings.
type Options struct {
	SourceDir       string
	WorkDir         string
	TempDir         string
	CatalogName     string
	OutputExtension string
	Workers         int
	IsolateFailures bool
	DryRun          bool
}

// Dependencies are the collaborators a Controller drives.
type Dependencies struct {
	Lister       Lister
	Fingerprints Fingerprints
	Decider      reconcile.Decider
	Transcoder   pipeline.Transcoder
	Store        target.Store
	Mapper       plan.PathMapper
	Confirm      ConfirmFunc
	Preview      PreviewFunc
}

// Report describes a finished run.
type Report struct {
	RunID           string
	Sources         int
	CatalogRestored bool
	Operations      []plan.Operation
	Summary         plan.Summary
	Decision        Decision
	Executed        bool
	Result          pipeline.Result
	Uploaded        bool
	DryRun          bool
	Elapsed         time.Duration
}

// Controller runs sync sessions.
type Controller struct {
	deps   Dependencies
	store  target.Store
	opts   Options
	logger *slog.Logger
}

// New builds a controller.
func New(deps Dependencies, opts Options, logger *slog.Logger) *Controller {
	if opts.CatalogName == "" {
		opts.CatalogName = "synchronized.sqlite"
	}
	return &Controller{
		deps:   deps,
		store:  deps.Store,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, component),
	}
}

// CatalogPath returns the local snapshot location.
func (c *Controller) CatalogPath() string {
	return filepath.Join(c.opts.WorkDir, c.opts.CatalogName)
}

// LockPath returns the session lock location.
func (c *Controller) LockPath() string {
	return filepath.Join(c.opts.WorkDir, "musicsync.lock")
}

// Run executes one session. The catalog is uploaded at every clean end,
// including an aborted confirmation. A fatal error leaves the target's
// snapshot untouched. With failure isolation a partial batch is still
// uploaded before its *pipeline.BatchError is returned.
func (c *Controller) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	report := Report{RunID: uuid.NewString(), DryRun: c.opts.DryRun}
	ctx = services.WithRunID(ctx, report.RunID)
	logger := logging.WithContext(ctx, c.logger)

	if err := os.MkdirAll(c.opts.WorkDir, 0o755); err != nil {
		return report, services.Wrap(services.ErrStorage, component, "prepare work dir", c.opts.WorkDir, err)
	}
	lock := flock.New(c.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return report, services.Wrap(services.ErrStorage, component, "lock", c.LockPath(), err)
	}
	if !locked {
		return report, fmt.Errorf("%w (lock file %s)", ErrLocked, c.LockPath())
	}
	defer func() { _ = lock.Unlock() }()

	logger.Info("sync session started",
		logging.String(logging.FieldEventType, "session_started"),
		logging.String("source", c.opts.SourceDir),
		logging.String("target", c.store.Describe()),
		logging.Bool("dry_run", c.opts.DryRun),
	)

	sources, err := c.deps.Lister.List(services.WithPhase(ctx, "list"), c.opts.SourceDir)
	if err != nil {
		return report, err
	}
	report.Sources = len(sources)

	bootCtx := services.WithPhase(ctx, "bootstrap")
	cat, restored, err := c.bootstrap(bootCtx, logger)
	if err != nil {
		return report, err
	}
	report.CatalogRestored = restored

	runErr := c.runWithCatalog(ctx, logger, cat, sources, &report)
	var batchErr *pipeline.BatchError
	clean := runErr == nil || errors.As(runErr, &batchErr)

	if closeErr := cat.Close(); closeErr != nil && runErr == nil {
		runErr = closeErr
		clean = false
	}

	if clean && !c.opts.DryRun {
		if err := c.uploadSnapshot(services.WithPhase(ctx, "upload"), logger); err != nil {
			report.Elapsed = time.Since(start)
			return report, err
		}
		report.Uploaded = true
	}
	if !clean {
		logging.ErrorWithContext(logger, "sync session failed; catalog not uploaded", "session_failed",
			logging.String(logging.FieldErrorKind, services.Classify(runErr)),
			logging.String(logging.FieldErrorHint, services.Hint(runErr)),
			logging.Error(runErr),
		)
	}

	report.Elapsed = time.Since(start)
	logger.Info("sync session finished",
		logging.String(logging.FieldEventType, "session_finished"),
		logging.String("decision", report.Decision.String()),
		logging.Bool("executed", report.Executed),
		logging.Bool("uploaded", report.Uploaded),
		logging.Duration("elapsed", report.Elapsed),
	)
	return report, runErr
}

func (c *Controller) bootstrap(ctx context.Context, logger *slog.Logger) (*catalog.Store, bool, error) {
	path := c.CatalogPath()
	rotated, err := rotateSnapshot(path)
	if err != nil {
		return nil, false, err
	}
	if rotated {
		logger.Debug("previous local snapshot rotated", logging.String("backup", BackupPath(path)))
	}
	restored, err := c.restoreSnapshot(ctx, path, logger)
	if err != nil {
		return nil, false, err
	}
	cat, err := catalog.Open(ctx, path, logger)
	if err != nil {
		return nil, false, err
	}
	return cat, restored, nil
}

func (c *Controller) runWithCatalog(ctx context.Context, logger *slog.Logger, cat *catalog.Store, sources []string, report *Report) error {
	rec := reconcile.New(cat, c.deps.Fingerprints, c.deps.Decider, c.deps.Mapper, c.opts.Workers, logger)
	ops, err := rec.Reconcile(services.WithPhase(ctx, "reconcile"), sources)
	if err != nil {
		return err
	}
	report.Operations = ops
	report.Summary = plan.Summarize(ops)

	if len(ops) == 0 {
		logger.Info("target is up to date", logging.String(logging.FieldEventType, "nothing_to_do"))
		report.Decision = DecisionProceed
		return nil
	}

	if c.opts.DryRun {
		if c.deps.Preview != nil {
			c.deps.Preview(ops)
		}
		report.Decision = DecisionAbort
		return nil
	}

	decision, err := c.confirm(ctx, report.Summary, ops)
	if err != nil {
		return err
	}
	report.Decision = decision
	if decision != DecisionProceed {
		logger.Info("sync aborted by operator", logging.String(logging.FieldEventType, "sync_aborted"))
		return nil
	}

	executor := pipeline.New(c.store, c.deps.Transcoder, cat, c.deps.Fingerprints, pipeline.Options{
		TempDir:         c.opts.TempDir,
		OutputExtension: c.opts.OutputExtension,
		Workers:         c.opts.Workers,
		IsolateFailures: c.opts.IsolateFailures,
	}, logger)
	result, err := executor.Execute(services.WithPhase(ctx, "execute"), ops)
	report.Result = result
	report.Executed = true
	return err
}

func (c *Controller) confirm(ctx context.Context, summary plan.Summary, ops []plan.Operation) (Decision, error) {
	if c.deps.Confirm == nil {
		return DecisionAbort, nil
	}
	for {
		decision, err := c.deps.Confirm(ctx, summary, ops)
		if err != nil {
			return DecisionAbort, err
		}
		if decision != DecisionPreview {
			return decision, nil
		}
		if c.deps.Preview != nil {
			c.deps.Preview(ops)
		}
		if err := ctx.Err(); err != nil {
			return DecisionAbort, err
		}
	}
}

func (c *Controller) uploadSnapshot(ctx context.Context, logger *slog.Logger) error {
	n, err := c.store.Upload(ctx, c.CatalogPath(), c.opts.CatalogName)
	if err != nil {
		return err
	}
	logger.Info("catalog uploaded to target",
		logging.String(logging.FieldEventType, "catalog_uploaded"),
		logging.String("target", c.store.Describe()),
		logging.Int64("bytes", n),
	)
	return nil
}
