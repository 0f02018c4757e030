package target

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"musicsync/internal/fileutil"
	"musicsync/internal/logging"
	"musicsync/internal/services"
)

// Device stores files on a mounted filesystem.
type Device struct {
	fs     billy.Filesystem
	root   string
	logger *slog.Logger
}

// OpenDevice returns a device rooted at mountPoint.
func OpenDevice(mountPoint string, logger *slog.Logger) (*Device, error) {
	info, err := os.Stat(mountPoint)
	if err != nil {
		return nil, services.Wrap(services.ErrDevice, component, "open device", mountPoint, err)
	}
	if !info.IsDir() {
		return nil, services.Wrap(services.ErrDevice, component, "open device", mountPoint, errors.New("mount point is not a directory"))
	}
	return NewDevice(osfs.New(mountPoint), mountPoint, logger), nil
}

// NewDevice wraps an existing filesystem. root is only used for display.
func NewDevice(filesystem billy.Filesystem, root string, logger *slog.Logger) *Device {
	return &Device{
		fs:     filesystem,
		root:   root,
		logger: logging.NewComponentLogger(logger, "device"),
	}
}

// Root returns the mount point.
func (d *Device) Root() string { return d.root }

func (d *Device) Describe() string { return "device " + d.root }

func (d *Device) Exists(_ context.Context, targetPath string) (bool, error) {
	key := cleanKey(targetPath)
	if _, err := d.fs.Stat(key); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, services.Wrap(services.ErrTransfer, component, "exists", key, err)
	}
	return true, nil
}

// Upload writes into a temporary file beside the destination, removes any
// existing file, then renames the temporary file into place. Parent
// directories are created as needed.
func (d *Device) Upload(ctx context.Context, localPath, targetPath string) (int64, error) {
	key := cleanKey(targetPath)
	src, err := os.Open(localPath)
	if err != nil {
		return 0, services.Wrap(services.ErrTransfer, component, "upload", key, fmt.Errorf("open source: %w", err))
	}
	defer src.Close()

	dir := path.Dir(key)
	if dir != "." {
		if err := d.fs.MkdirAll(dir, 0o755); err != nil {
			return 0, services.Wrap(services.ErrTransfer, component, "upload", key, fmt.Errorf("create directory: %w", err))
		}
	}

	tmp, err := util.TempFile(d.fs, dir, ".musicsync-")
	if err != nil {
		return 0, services.Wrap(services.ErrTransfer, component, "upload", key, fmt.Errorf("create temp file: %w", err))
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, contextReader{ctx: ctx, r: src})
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = d.fs.Remove(tmpName)
		if ctx.Err() != nil {
			return written, ctx.Err()
		}
		return written, services.Wrap(services.ErrTransfer, component, "upload", key, err)
	}

	if err := d.fs.Remove(key); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_ = d.fs.Remove(tmpName)
		return written, services.Wrap(services.ErrTransfer, component, "upload", key, fmt.Errorf("remove existing file: %w", err))
	}
	if err := d.fs.Rename(tmpName, key); err != nil {
		_ = d.fs.Remove(tmpName)
		return written, services.Wrap(services.ErrTransfer, component, "upload", key, fmt.Errorf("rename into place: %w", err))
	}
	return written, nil
}

func (d *Device) Download(ctx context.Context, targetPath, localPath string) (int64, error) {
	key := cleanKey(targetPath)
	src, err := d.fs.Open(key)
	if err != nil {
		return 0, services.Wrap(services.ErrTransfer, component, "download", key, err)
	}
	defer src.Close()

	written, err := fileutil.WriteAtomic(localPath, contextReader{ctx: ctx, r: src}, 0o644)
	if err != nil {
		if ctx.Err() != nil {
			return written, ctx.Err()
		}
		return written, services.Wrap(services.ErrTransfer, component, "download", key, err)
	}
	return written, nil
}

// Delete removes the file and prunes the directories it leaves empty below
// the top-level directory.
func (d *Device) Delete(_ context.Context, targetPath string) error {
	key := cleanKey(targetPath)
	if err := d.fs.Remove(key); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return services.Wrap(services.ErrTransfer, component, "delete", key, err)
	}
	d.pruneEmptyParents(key)
	return nil
}

func (d *Device) pruneEmptyParents(key string) {
	for dir := path.Dir(key); dir != "." && path.Dir(dir) != "."; dir = path.Dir(dir) {
		entries, err := d.fs.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := d.fs.Remove(dir); err != nil {
			d.logger.Debug("could not prune empty directory",
				logging.String("path", dir),
				logging.Error(err),
			)
			return
		}
	}
}
