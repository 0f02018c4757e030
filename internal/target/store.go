package target

import (
	"context"
	"io"
	"strings"
)

const component = "target"

// Store is a target the sync writes to.
type Store interface {
	// Exists reports whether targetPath is present.
	Exists(ctx context.Context, targetPath string) (bool, error)
	// Upload writes the local file to targetPath, replacing any existing file,
	// and returns the number of bytes written.
	Upload(ctx context.Context, localPath, targetPath string) (int64, error)
	// Download copies targetPath into the local file.
	Download(ctx context.Context, targetPath, localPath string) (int64, error)
	// Delete removes targetPath. A missing file is not an error.
	Delete(ctx context.Context, targetPath string) error
	// Describe names the target for logs.
	Describe() string
}

var (
	_ Store = (*Device)(nil)
	_ Store = (*S3)(nil)
	_ Store = (*Serial)(nil)
)

func cleanKey(targetPath string) string {
	return strings.TrimLeft(strings.ReplaceAll(targetPath, `\`, "/"), "/")
}

// contextReader stops a copy once ctx is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
