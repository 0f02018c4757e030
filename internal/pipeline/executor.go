package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"musicsync/internal/catalog"
	"musicsync/internal/fileutil"
	"musicsync/internal/logging"
	"musicsync/internal/plan"
	"musicsync/internal/services"
	"musicsync/internal/target"
)

const component = "pipeline"

// CatalogWriter is the write side of the catalog. Lookup finds the record a
// copy replaces.
type CatalogWriter interface {
	Lookup(ctx context.Context, sourcePath string) (*catalog.Record, error)
	Upsert(ctx context.Context, rec catalog.Record) (catalog.Record, error)
	Delete(ctx context.Context, sourcePath string) error
}

// Fingerprints resolves and fingerprints source files.
type Fingerprints interface {
	Path(sourcePath string) string
	ModifiedAt(ctx context.Context, sourcePath string) (time.Time, error)
	ContentHash(ctx context.Context, sourcePath string) ([]byte, error)
}

// Transcoder re-encodes input into output.
type Transcoder interface {
	Transcode(ctx context.Context, input, output string) error
}

// Options tune execution.
type Options struct {
	TempDir         string
	OutputExtension string
	Workers         int
	IsolateFailures bool
}

// Failure is one operation that did not complete.
type Failure struct {
	Operation plan.Operation
	Err       error
}

// Result tallies what a run applied.
type Result struct {
	Copied        int
	Transcoded    int
	Deleted       int
	BytesUploaded int64
	Failures      []Failure
}

// Applied returns the number of operations that completed.
func (r Result) Applied() int {
	return r.Copied + r.Deleted
}

// Executor applies operations to a target store.
type Executor struct {
	store        target.Store
	transcoder   Transcoder
	catalog      CatalogWriter
	fingerprints Fingerprints
	opts         Options
	logger       *slog.Logger
}

// New builds an executor.
func New(store target.Store, transcoder Transcoder, cat CatalogWriter, fingerprints Fingerprints, opts Options, logger *slog.Logger) *Executor {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	opts.OutputExtension = strings.TrimPrefix(opts.OutputExtension, ".")
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Executor{
		store:        store,
		transcoder:   transcoder,
		catalog:      cat,
		fingerprints: fingerprints,
		opts:         opts,
		logger:       logging.NewComponentLogger(logger, component),
	}
}

// Execute runs ops and returns what was applied. Without failure isolation
// the first error cancels the remaining work and is returned. With isolation,
// transcode, transfer, and media failures are collected and returned joined
// after every operation has been attempted; catalog failures still abort.
//
// A target path written by a copy in ops is never removed by another
// operation in the same batch: a delete of that path only forgets its record.
func (e *Executor) Execute(ctx context.Context, ops []plan.Operation) (Result, error) {
	var (
		mu     sync.Mutex
		result Result
	)
	if len(ops) == 0 {
		return result, nil
	}
	if err := os.MkdirAll(e.opts.TempDir, 0o755); err != nil {
		return result, services.Wrap(services.ErrTranscode, component, "prepare temp dir", e.opts.TempDir, err)
	}

	claimed := mapset.NewThreadUnsafeSet[string]()
	for _, op := range ops {
		if op.Kind() == plan.KindCopy {
			claimed.Add(op.TargetPath())
		}
	}

	start := time.Now()
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(e.opts.Workers)
	for _, op := range ops {
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcome, err := e.apply(gctx, op, claimed)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if e.opts.IsolateFailures && isolatable(err) && gctx.Err() == nil {
					result.Failures = append(result.Failures, Failure{Operation: op, Err: err})
					logging.ErrorWithContext(e.logger, "operation failed; continuing", "operation_failed",
						logging.String(logging.FieldOperation, op.Label()),
						logging.String(logging.FieldTargetPath, op.TargetPath()),
						logging.String(logging.FieldErrorKind, services.Classify(err)),
						logging.String(logging.FieldErrorHint, services.Hint(err)),
						logging.Error(err),
					)
					return nil
				}
				return err
			}
			result.Copied += outcome.copied
			result.Transcoded += outcome.transcoded
			result.Deleted += outcome.deleted
			result.BytesUploaded += outcome.bytes
			return nil
		})
	}
	err := group.Wait()

	mu.Lock()
	defer mu.Unlock()
	e.logger.Info("execution finished",
		logging.String(logging.FieldEventType, "execution_finished"),
		logging.Int("copied", result.Copied),
		logging.Int("transcoded", result.Transcoded),
		logging.Int("deleted", result.Deleted),
		logging.Int("failed", len(result.Failures)),
		logging.String("uploaded", humanize.Bytes(uint64(result.BytesUploaded))),
		logging.Duration("elapsed", time.Since(start)),
	)

	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, err
	}
	if len(result.Failures) > 0 {
		return result, &BatchError{Failures: append([]Failure(nil), result.Failures...), Total: len(ops)}
	}
	return result, nil
}

// BatchError reports the operations that failed under failure isolation.
// Every other operation in the batch completed.
type BatchError struct {
	Failures []Failure
	Total    int
}

func (b *BatchError) Error() string {
	errs := make([]error, len(b.Failures))
	for i, f := range b.Failures {
		errs[i] = fmt.Errorf("%s %s: %w", f.Operation.Label(), f.Operation.TargetPath(), f.Err)
	}
	return fmt.Sprintf("%d of %d operations failed:\n%s", len(b.Failures), b.Total, errors.Join(errs...))
}

// Unwrap exposes each failure to errors.Is and errors.As.
func (b *BatchError) Unwrap() []error {
	errs := make([]error, len(b.Failures))
	for i, f := range b.Failures {
		errs[i] = f.Err
	}
	return errs
}

func isolatable(err error) bool {
	return errors.Is(err, services.ErrTranscode) ||
		errors.Is(err, services.ErrTransfer) ||
		errors.Is(err, services.ErrMedia)
}

type outcome struct {
	copied     int
	transcoded int
	deleted    int
	bytes      int64
}

// apply runs one operation. claimed holds every copy target of the batch and
// is read-only once execution starts.
func (e *Executor) apply(ctx context.Context, op plan.Operation, claimed mapset.Set[string]) (outcome, error) {
	switch op.Kind() {
	case plan.KindCopy:
		return e.copy(ctx, op, claimed)
	case plan.KindDelete:
		return e.delete(ctx, op, claimed.Contains(op.TargetPath()))
	default:
		return outcome{}, fmt.Errorf("unknown operation kind %d", op.Kind())
	}
}

func (e *Executor) copy(ctx context.Context, op plan.Operation, claimed mapset.Set[string]) (outcome, error) {
	prior, err := e.catalog.Lookup(ctx, op.SourcePath())
	if err != nil {
		return outcome{}, err
	}
	source := e.fingerprints.Path(op.SourcePath())
	upload := source
	if op.RequiresTranscode() {
		tmp := filepath.Join(e.opts.TempDir, uuid.NewString()+"."+e.opts.OutputExtension)
		defer func() {
			if err := fileutil.RemoveIfExists(tmp); err != nil {
				e.logger.Warn("failed to remove temp file",
					logging.String("path", tmp),
					logging.Error(err),
					logging.String(logging.FieldEventType, "temp_cleanup_failed"),
					logging.String(logging.FieldErrorHint, "remove the file from the temp directory manually"),
					logging.String(logging.FieldImpact, "disk space is not reclaimed"),
				)
			}
		}()
		if err := e.transcoder.Transcode(ctx, source, tmp); err != nil {
			return outcome{}, err
		}
		upload = tmp
	}

	written, err := e.store.Upload(ctx, upload, op.TargetPath())
	if err != nil {
		return outcome{}, err
	}

	modified, err := e.fingerprints.ModifiedAt(ctx, op.SourcePath())
	if err != nil {
		return outcome{}, err
	}
	hash, err := e.fingerprints.ContentHash(ctx, op.SourcePath())
	if err != nil {
		return outcome{}, err
	}
	fileName := path.Base(op.TargetPath())
	if _, err := e.catalog.Upsert(ctx, catalog.Record{
		SourcePath:     op.SourcePath(),
		ModifiedAt:     modified,
		ContentHash:    hash,
		TargetFileName: fileName,
	}); err != nil {
		return outcome{}, err
	}
	if prior != nil && prior.TargetFileName != "" && prior.TargetFileName != fileName {
		e.removeReplaced(ctx, op, path.Join(path.Dir(op.TargetPath()), prior.TargetFileName), claimed)
	}

	msg := "Copied to device"
	out := outcome{copied: 1, bytes: written}
	if op.RequiresTranscode() {
		msg = "Transcoded to device"
		out.transcoded = 1
	}
	e.logger.Info(msg,
		logging.String(logging.FieldEventType, "file_"+op.Label()),
		logging.String(logging.FieldSourcePath, op.SourcePath()),
		logging.String(logging.FieldTargetPath, op.TargetPath()),
		logging.String("size", humanize.Bytes(uint64(written))),
	)
	return out, nil
}

// removeReplaced deletes the file a source was previously stored under once
// its new target name is recorded. Failure is only logged; the record
// already names the new file.
func (e *Executor) removeReplaced(ctx context.Context, op plan.Operation, stale string, claimed mapset.Set[string]) {
	if claimed.Contains(stale) {
		return
	}
	if err := e.store.Delete(ctx, stale); err != nil {
		logging.WarnWithContext(e.logger, "failed to remove replaced target file", "replaced_cleanup_failed",
			logging.String(logging.FieldSourcePath, op.SourcePath()),
			logging.String(logging.FieldTargetPath, stale),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "delete the file from the target manually"),
			logging.String(logging.FieldImpact, "an outdated copy stays on the target"),
		)
		return
	}
	e.logger.Info("Removed replaced target file",
		logging.String(logging.FieldEventType, "file_replaced"),
		logging.String(logging.FieldSourcePath, op.SourcePath()),
		logging.String(logging.FieldTargetPath, stale),
	)
}

// delete removes the target file and then the record. When another copy in
// the batch writes the same target path only the record is dropped.
func (e *Executor) delete(ctx context.Context, op plan.Operation, claimed bool) (outcome, error) {
	if claimed {
		if err := e.catalog.Delete(ctx, op.SourcePath()); err != nil {
			return outcome{}, err
		}
		e.logger.Info("Forgot record; target path reused",
			logging.String(logging.FieldEventType, "record_forgotten"),
			logging.String(logging.FieldSourcePath, op.SourcePath()),
			logging.String(logging.FieldTargetPath, op.TargetPath()),
		)
		return outcome{deleted: 1}, nil
	}
	if err := e.store.Delete(ctx, op.TargetPath()); err != nil {
		return outcome{}, err
	}
	if err := e.catalog.Delete(ctx, op.SourcePath()); err != nil {
		return outcome{}, err
	}
	e.logger.Info("Deleted from device",
		logging.String(logging.FieldEventType, "file_delete"),
		logging.String(logging.FieldSourcePath, op.SourcePath()),
		logging.String(logging.FieldTargetPath, op.TargetPath()),
	)
	return outcome{deleted: 1}, nil
}
