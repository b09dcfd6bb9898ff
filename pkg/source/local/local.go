package local

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

// LocalSource walks files and directories on disk.
type LocalSource struct {
	paths  []string
	logger logger.Logger
}

func New(paths []string, log logger.Logger) *LocalSource {
	return &LocalSource{paths: paths, logger: log.Named("source.local")}
}

// List returns every regular file under the configured paths whose path
// relative to its root starts with prefix. Hidden entries are skipped.
func (s *LocalSource) List(ctx context.Context, prefix string) ([]models.File, error) {
	var files []models.File
	seen := make(map[string]struct{})

	for _, root := range s.paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", root, err)
		}

		if !info.IsDir() {
			if !strings.HasPrefix(filepath.Base(root), prefix) {
				continue
			}
			if markSeen(seen, absPath(root)) {
				files = append(files, fileFor(root, info.Size()))
			}
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if path != root && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			if !strings.HasPrefix(filepath.ToSlash(rel), prefix) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			if markSeen(seen, absPath(path)) {
				files = append(files, fileFor(path, info.Size()))
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", root, err)
		}
	}

	s.logger.Debug("Listed local files", logger.Int("count", len(files)))
	return files, nil
}

func fileFor(path string, size int64) models.File {
	return models.File{
		Name:   filepath.Base(path),
		Size:   size,
		Origin: path,
		Opener: func(context.Context) (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// markSeen records key and reports whether it is new.
func markSeen(seen map[string]struct{}, key string) bool {
	if _, ok := seen[key]; ok {
		return false
	}
	seen[key] = struct{}{}
	return true
}
