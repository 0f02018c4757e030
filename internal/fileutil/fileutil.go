// Package fileutil holds small local filesystem helpers shared by the target
// backends and the execution pipeline.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ChangeExtension replaces the extension of a slash or OS path. ext may be
// given with or without the leading dot; an empty ext strips the extension.
func ChangeExtension(p, ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	base := p
	if idx := strings.LastIndexAny(p, `/\`); idx >= 0 {
		base = p[idx+1:]
	}
	if dot := strings.LastIndex(base, "."); dot > 0 {
		p = p[:len(p)-len(base)+dot]
	}
	if ext == "" {
		return p
	}
	return p + "." + ext
}

// RemoveIfExists deletes path and treats a missing file as success.
func RemoveIfExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// WriteAtomic streams r into a temporary file next to dst and renames it into
// place once fully written, so readers never observe a partial file.
func WriteAtomic(dst string, r io.Reader, mode os.FileMode) (int64, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create parent directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	written, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return written, err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return written, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return written, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		_ = os.Remove(tmpName)
		return written, fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return written, fmt.Errorf("rename into place: %w", err)
	}
	return written, nil
}
