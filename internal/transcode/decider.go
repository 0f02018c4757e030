package transcode

import (
	"context"
	"log/slog"
	"path/filepath"

	"musicsync/internal/logging"
	"musicsync/internal/media/ffprobe"
	"musicsync/internal/services"
)

// ProbeFunc inspects a media file.
type ProbeFunc func(ctx context.Context, binary, path string) (ffprobe.Result, error)

// BitrateDecider flags files whose audio bitrate is at or above MinBitrate.
type BitrateDecider struct {
	root       string
	binary     string
	minBitrate int64
	probe      ProbeFunc
	resolve    func(sourcePath string) string
	logger     *slog.Logger
}

// DeciderOption customizes a BitrateDecider.
type DeciderOption func(*BitrateDecider)

// WithProbe replaces the ffprobe invocation.
func WithProbe(fn ProbeFunc) DeciderOption {
	return func(d *BitrateDecider) {
		if fn != nil {
			d.probe = fn
		}
	}
}

// WithPathResolver maps source keys to local paths. The fingerprint
// provider's Path finds files stored under a decomposed name.
func WithPathResolver(fn func(sourcePath string) string) DeciderOption {
	return func(d *BitrateDecider) {
		if fn != nil {
			d.resolve = fn
		}
	}
}

// NewBitrateDecider resolves source keys under root and compares their bitrate
// against minBitrate (bits per second).
func NewBitrateDecider(root, ffprobeBinary string, minBitrate int64, logger *slog.Logger, opts ...DeciderOption) *BitrateDecider {
	d := &BitrateDecider{
		root:       root,
		binary:     ffprobeBinary,
		minBitrate: minBitrate,
		probe:      ffprobe.Inspect,
		logger:     logging.NewComponentLogger(logger, "transcode"),
	}
	d.resolve = func(sourcePath string) string {
		return filepath.Join(d.root, filepath.FromSlash(sourcePath))
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RequiresTranscode reports whether sourcePath should be re-encoded.
func (d *BitrateDecider) RequiresTranscode(ctx context.Context, sourcePath string) (bool, error) {
	result, err := d.probe(ctx, d.binary, d.resolve(sourcePath))
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, services.Wrap(services.ErrMedia, "transcode", "probe bitrate", sourcePath, err)
	}
	bitrate := result.AudioBitRate()
	if bitrate <= 0 {
		d.logger.Debug("bitrate unavailable; copying as is",
			logging.String(logging.FieldSourcePath, sourcePath),
		)
		return false, nil
	}
	return bitrate >= d.minBitrate, nil
}
