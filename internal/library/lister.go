// Package library enumerates the eligible music files under a source root.
package library

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/text/unicode/norm"

	"musicsync/internal/logging"
	"musicsync/internal/services"
)

const component = "library"

// Lister walks a source root and keeps files with a music extension that are
// not excluded by glob patterns or the ignore file.
type Lister struct {
	extensions map[string]struct{}
	exclude    []string
	ignoreFile string
	logger     *slog.Logger
}

// NewLister builds a lister. Extensions are matched case-insensitively and
// must include the leading dot. ignoreFile names a gitignore-syntax file that
// is read from the source root when present.
func NewLister(extensions, exclude []string, ignoreFile string, logger *slog.Logger) *Lister {
	exts := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = struct{}{}
	}
	return &Lister{
		extensions: exts,
		exclude:    append([]string(nil), exclude...),
		ignoreFile: strings.TrimSpace(ignoreFile),
		logger:     logging.NewComponentLogger(logger, component),
	}
}

// List returns the eligible files under root as sorted, slash-separated,
// NFC-normalized paths relative to root.
func (l *Lister) List(ctx context.Context, root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, services.Wrap(services.ErrMedia, component, "list", root, err)
	}
	if !info.IsDir() {
		return nil, services.Wrap(services.ErrMedia, component, "list", root, errors.New("source is not a directory"))
	}

	rules, err := l.loadIgnore(root)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var paths []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			l.logger.Warn("skipping unreadable entry",
				logging.String(logging.FieldEventType, "source_entry_unreadable"),
				logging.String(logging.FieldErrorHint, "check file permissions under the source directory"),
				logging.String(logging.FieldImpact, "entry is not synchronized this run"),
				logging.String("path", path),
				logging.Error(err),
			)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == root {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || l.excluded(rel+"/", rules) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if _, ok := l.extensions[strings.ToLower(filepath.Ext(d.Name()))]; !ok {
			return nil
		}
		if l.excluded(rel, rules) {
			return nil
		}
		paths = append(paths, norm.NFC.String(rel))
		return nil
	})
	if walkErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrMedia, component, "list", root, walkErr)
	}

	sort.Strings(paths)
	elapsed := time.Since(start)
	l.logger.Info("source files listed",
		logging.String(logging.FieldEventType, "source_listed"),
		logging.Int("files", len(paths)),
		logging.Duration("elapsed", elapsed),
		logging.Float64("files_per_second", rate(len(paths), elapsed)),
	)
	return paths, nil
}

func (l *Lister) excluded(rel string, rules *ignore.GitIgnore) bool {
	trimmed := strings.TrimSuffix(rel, "/")
	for _, pattern := range l.exclude {
		if ok, _ := doublestar.Match(pattern, trimmed); ok {
			return true
		}
		if strings.HasSuffix(rel, "/") {
			if ok, _ := doublestar.Match(pattern, rel); ok {
				return true
			}
		}
	}
	return rules != nil && rules.MatchesPath(rel)
}

func (l *Lister) loadIgnore(root string) (*ignore.GitIgnore, error) {
	if l.ignoreFile == "" {
		return nil, nil
	}
	path := l.ignoreFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrMedia, component, "read ignore file", path, err)
	}
	rules, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrMedia, component, "read ignore file", path, err)
	}
	l.logger.Debug("ignore rules loaded", logging.String("path", path))
	return rules, nil
}

func rate(count int, elapsed time.Duration) float64 {
	seconds := elapsed.Seconds()
	if seconds <= 0 {
		return float64(count)
	}
	return float64(count) / seconds
}
