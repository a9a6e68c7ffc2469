package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// LocalStorage implements BlobStorage on the local filesystem. Writes
// go through a temp file in the destination directory and an atomic
// rename, so a crashed promotion never leaves a half-written box
// visible at its final path. Box paths are unique, so no locking is
// needed: two promotions never race on the same destination.
type LocalStorage struct {
	root string
}

// NewLocalStorage initializes storage rooted at the given directory,
// creating it if needed.
func NewLocalStorage(root string) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", root, err)
	}
	log.Info().Str("root", root).Msg("local box storage ready")
	return &LocalStorage{root: root}, nil
}

func (ls *LocalStorage) resolve(path string) string {
	return filepath.Join(ls.root, filepath.FromSlash(path))
}

// Store streams content into a temp file next to the destination and
// renames it into place once fully synced.
func (ls *LocalStorage) Store(ctx context.Context, path string, content io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dst := ls.resolve(path)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".box-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	written, err := io.Copy(tmp, content)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("finalize %s: %w", path, err)
	}

	log.Info().Str("path", path).Int64("bytes", written).Msg("box file stored")
	return nil
}

// Retrieve opens the box file at the given path.
func (ls *LocalStorage) Retrieve(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(ls.resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("box file not found: %s", path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// Delete removes the box file at the given path, tolerating a path
// that is already gone.
func (ls *LocalStorage) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(ls.resolve(path)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("delete %s: %w", path, err)
	}
	log.Info().Str("path", path).Msg("box file deleted")
	return nil
}

// Exists reports whether a box file is present at the given path.
func (ls *LocalStorage) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := os.Stat(ls.resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return true, nil
}
