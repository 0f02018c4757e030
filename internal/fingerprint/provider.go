// Package fingerprint reads the (modification time, content hash) pair used to
// detect changed source files.
package fingerprint

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/text/unicode/norm"

	"musicsync/internal/services"
)

const component = "fingerprint"

const chunkSize = 1 << 20

// Provider resolves catalog keys against a source root.
type Provider struct {
	root string
}

// New returns a provider for files under root.
func New(root string) *Provider {
	return &Provider{root: root}
}

// Path returns the absolute location of a source key. Keys are NFC; a file
// stored under its decomposed name is found through the NFD spelling.
func (p *Provider) Path(sourcePath string) string {
	composed := filepath.Join(p.root, filepath.FromSlash(sourcePath))
	if _, err := os.Lstat(composed); err == nil {
		return composed
	}
	decomposed := filepath.Join(p.root, filepath.FromSlash(norm.NFD.String(sourcePath)))
	if decomposed != composed {
		if _, err := os.Lstat(decomposed); err == nil {
			return decomposed
		}
	}
	return composed
}

// ModifiedAt returns the file's modification time in UTC.
func (p *Provider) ModifiedAt(_ context.Context, sourcePath string) (time.Time, error) {
	info, err := os.Stat(p.Path(sourcePath))
	if err != nil {
		return time.Time{}, services.Wrap(services.ErrMedia, component, "stat", sourcePath, err)
	}
	if info.IsDir() {
		return time.Time{}, services.Wrap(services.ErrMedia, component, "stat", sourcePath, errors.New("is a directory"))
	}
	return info.ModTime().UTC(), nil
}

// ContentHash returns the MD5 of the file bytes. Cancellation is checked
// between chunks so large files do not pin a worker after the run aborts.
func (p *Provider) ContentHash(ctx context.Context, sourcePath string) ([]byte, error) {
	f, err := os.Open(p.Path(sourcePath))
	if err != nil {
		return nil, services.Wrap(services.ErrMedia, component, "hash", sourcePath, err)
	}
	defer f.Close()

	h := md5.New()
	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, readErr := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return nil, services.Wrap(services.ErrMedia, component, "hash", sourcePath, fmt.Errorf("read: %w", readErr))
		}
	}
	return h.Sum(nil), nil
}
