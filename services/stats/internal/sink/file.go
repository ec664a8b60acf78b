package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/humanimpact/hii-stats/services/stats/internal/apperr"
	"github.com/humanimpact/hii-stats/services/stats/internal/models"
)

// FileSink writes encoded batches below a root directory.
type FileSink struct {
	root   string
	format Format
	mu     sync.Mutex
}

// NewFileSink returns a sink rooted at dir.
func NewFileSink(dir string, format Format) *FileSink {
	return &FileSink{root: dir, format: format}
}

// Name implements Sink.
func (s *FileSink) Name() string { return "file" }

// Write implements Sink.
func (s *FileSink) Write(ctx context.Context, batch models.OutputBatch, dataset, path string, overwrite bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := Encode(s.format, batch)
	if err != nil {
		return "", apperr.SinkWrite(path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base := filepath.Join(s.root, dataset, filepath.FromSlash(path))
	target := base + s.format.Ext()
	if !overwrite {
		free, err := freePath(base, func(candidate string) (bool, error) {
			_, err := os.Stat(candidate + s.format.Ext())
			switch {
			case err == nil:
				return true, nil
			case errors.Is(err, os.ErrNotExist):
				return false, nil
			default:
				return false, err
			}
		})
		if err != nil {
			return "", apperr.SinkWrite(path, err)
		}
		target = free + s.format.Ext()
	}

	if err := writeAtomic(target, data); err != nil {
		return "", apperr.SinkWrite(path, err)
	}
	if overwrite {
		if err := s.removeVersions(base); err != nil {
			return "", apperr.SinkWrite(path, err)
		}
	}
	return target, nil
}

// removeVersions deletes the {base}_{n} files left by earlier runs.
func (s *FileSink) removeVersions(base string) error {
	entries, err := os.ReadDir(filepath.Dir(base))
	if err != nil {
		return err
	}
	name := filepath.Base(base)
	for _, e := range entries {
		if e.IsDir() || !isVersionOf(e.Name(), name, s.format.Ext()) {
			continue
		}
		if err := os.Remove(filepath.Join(filepath.Dir(base), e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// writeAtomic writes through a temp file and renames it into place.
func writeAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}
