// Package reconcile diffs the source file set against the catalog and derives
// the ordered list of operations that brings the target up to date.
package reconcile

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"

	"musicsync/internal/catalog"
	"musicsync/internal/logging"
	"musicsync/internal/plan"
	"musicsync/internal/services"
)

const component = "reconcile"

// CatalogReader is the read side of the catalog.
type CatalogReader interface {
	Lookup(ctx context.Context, sourcePath string) (*catalog.Record, error)
	ListAll(ctx context.Context) ([]catalog.Record, error)
}

// Fingerprints reads the current state of a source file.
type Fingerprints interface {
	ModifiedAt(ctx context.Context, sourcePath string) (time.Time, error)
	ContentHash(ctx context.Context, sourcePath string) ([]byte, error)
}

// Decider reports whether a source file is re-encoded before transfer.
type Decider interface {
	RequiresTranscode(ctx context.Context, sourcePath string) (bool, error)
}

// Reconciler classifies source paths against the catalog.
type Reconciler struct {
	catalog      CatalogReader
	fingerprints Fingerprints
	decider      Decider
	mapper       plan.PathMapper
	workers      int
	logger       *slog.Logger
}

// New builds a reconciler. workers bounds concurrent classification and
// falls back to 1 when not positive.
func New(cat CatalogReader, fingerprints Fingerprints, decider Decider, mapper plan.PathMapper, workers int, logger *slog.Logger) *Reconciler {
	if workers <= 0 {
		workers = 1
	}
	return &Reconciler{
		catalog:      cat,
		fingerprints: fingerprints,
		decider:      decider,
		mapper:       mapper,
		workers:      workers,
		logger:       logging.NewComponentLogger(logger, component),
	}
}

// Reconcile returns the operations needed for sourcePaths, sorted by target
// path. Unchanged files produce nothing; catalog records whose source is no
// longer listed produce a Delete. The first fingerprint, decider, or catalog
// failure cancels the remaining work and is returned.
//
// Reconcile never writes to the catalog.
func (r *Reconciler) Reconcile(ctx context.Context, sourcePaths []string) ([]plan.Operation, error) {
	start := time.Now()
	present := mapset.NewSet[string](sourcePaths...)
	retained := mapset.NewSet[string]()
	copies := make([]*plan.Operation, len(sourcePaths))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(r.workers)
	for i, sourcePath := range sourcePaths {
		group.Go(func() error {
			op, keep, err := r.classify(gctx, sourcePath)
			if err != nil {
				return err
			}
			if keep {
				retained.Add(sourcePath)
				return nil
			}
			copies[i] = &op
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	records, err := r.catalog.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	ops := make([]plan.Operation, 0, len(sourcePaths))
	for _, op := range copies {
		if op != nil {
			ops = append(ops, *op)
		}
	}
	for _, rec := range records {
		if present.Contains(rec.SourcePath) {
			continue
		}
		ops = append(ops, plan.Delete(rec, r.mapper.RecordTargetPath(rec)))
	}
	plan.Sort(ops)

	summary := plan.Summarize(ops)
	elapsed := time.Since(start)
	r.logger.Info("reconciliation complete",
		logging.String(logging.FieldEventType, "reconcile_complete"),
		logging.Int("sources", len(sourcePaths)),
		logging.Int("unchanged", retained.Cardinality()),
		logging.Int("copies", summary.Copies),
		logging.Int("transcodes", summary.Transcodes),
		logging.Int("deletes", summary.Deletes),
		logging.Duration("elapsed", elapsed),
		logging.Float64("files_per_second", filesPerSecond(len(sourcePaths), elapsed)),
	)
	return ops, nil
}

// classify reports whether sourcePath is unchanged (keep) or returns the Copy
// it needs. The content hash is only computed when the timestamps differ.
func (r *Reconciler) classify(ctx context.Context, sourcePath string) (plan.Operation, bool, error) {
	rec, err := r.catalog.Lookup(ctx, sourcePath)
	if err != nil {
		return plan.Operation{}, false, err
	}
	if rec != nil {
		modified, err := r.fingerprints.ModifiedAt(ctx, sourcePath)
		if err != nil {
			return plan.Operation{}, false, mediaError(ctx, "modification time", sourcePath, err)
		}
		if modified.Equal(rec.ModifiedAt) {
			return plan.Operation{}, true, nil
		}
		hash, err := r.fingerprints.ContentHash(ctx, sourcePath)
		if err != nil {
			return plan.Operation{}, false, mediaError(ctx, "content hash", sourcePath, err)
		}
		if bytes.Equal(hash, rec.ContentHash) {
			r.logger.Debug("timestamp changed but content identical",
				logging.String(logging.FieldSourcePath, sourcePath),
			)
			return plan.Operation{}, true, nil
		}
	}

	transcode, err := r.decider.RequiresTranscode(ctx, sourcePath)
	if err != nil {
		return plan.Operation{}, false, mediaError(ctx, "transcode decision", sourcePath, err)
	}
	return plan.Copy(sourcePath, transcode, r.mapper.CopyTargetPath(sourcePath, transcode)), false, nil
}

func mediaError(ctx context.Context, operation, sourcePath string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	if errors.Is(err, services.ErrMedia) {
		return err
	}
	return services.Wrap(services.ErrMedia, component, operation, sourcePath, err)
}

func filesPerSecond(count int, elapsed time.Duration) float64 {
	if seconds := elapsed.Seconds(); seconds > 0 {
		return float64(count) / seconds
	}
	return float64(count)
}
