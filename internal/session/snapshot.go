package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"musicsync/internal/fileutil"
	"musicsync/internal/logging"
	"musicsync/internal/services"
)

// BackupPath returns where the previous local snapshot is kept.
func BackupPath(catalogPath string) string {
	return fileutil.ChangeExtension(catalogPath, "bak")
}

// rotateSnapshot moves the local snapshot aside, replacing any older backup.
// It reports whether a snapshot was rotated.
func rotateSnapshot(catalogPath string) (bool, error) {
	if _, err := os.Stat(catalogPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, services.Wrap(services.ErrStorage, component, "rotate snapshot", catalogPath, err)
	}
	backup := BackupPath(catalogPath)
	if err := fileutil.RemoveIfExists(backup); err != nil {
		return false, services.Wrap(services.ErrStorage, component, "rotate snapshot", backup, err)
	}
	if err := os.Rename(catalogPath, backup); err != nil {
		return false, services.Wrap(services.ErrStorage, component, "rotate snapshot", catalogPath, err)
	}
	for _, sidecar := range []string{"-journal", "-wal", "-shm"} {
		_ = fileutil.RemoveIfExists(catalogPath + sidecar)
	}
	return true, nil
}

// restoreSnapshot downloads the target's snapshot into catalogPath. It reports
// false when the target has none.
func (c *Controller) restoreSnapshot(ctx context.Context, catalogPath string, logger *slog.Logger) (bool, error) {
	name := c.opts.CatalogName
	exists, err := c.store.Exists(ctx, name)
	if err != nil {
		return false, err
	}
	if !exists {
		logging.WarnWithContext(logger, "no catalog found on target; starting empty", "catalog_missing",
			logging.String("target", c.store.Describe()),
			logging.String("catalog", name),
			logging.String(logging.FieldImpact, "every source file will be copied"),
			logging.String(logging.FieldErrorHint, fmt.Sprintf(
				"this is expected for a fresh target; if this is not the case, place the %s file at the root of %s",
				name, c.store.Describe())),
		)
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(catalogPath), 0o755); err != nil {
		return false, services.Wrap(services.ErrStorage, component, "restore snapshot", catalogPath, err)
	}
	n, err := c.store.Download(ctx, name, catalogPath)
	if err != nil {
		return false, err
	}
	logger.Info("catalog restored from target",
		logging.String(logging.FieldEventType, "catalog_restored"),
		logging.String("target", c.store.Describe()),
		logging.Int64("bytes", n),
	)
	return true, nil
}
