package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ChunkStore is the append-only spool for in-flight uploads. Every
// append opens the backing file, writes, syncs and closes it again, so
// no descriptor survives between chunk requests and sessions survive
// process restarts mid-upload.
type ChunkStore struct {
	dir string
}

// NewChunkStore creates the spool directory if needed.
func NewChunkStore(dir string) (*ChunkStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}
	return &ChunkStore{dir: dir}, nil
}

// Path returns the backing file path for an upload session.
func (cs *ChunkStore) Path(id uuid.UUID) string {
	return filepath.Join(cs.dir, id.String()+".part")
}

// Append writes payload to the end of the session's backing file,
// creating it on first use, and returns the file's new size. The file
// only ever grows under Append; Truncate exists solely to drop bytes a
// failed request left unacknowledged.
func (cs *ChunkStore) Append(id uuid.UUID, payload []byte) (int64, error) {
	f, err := os.OpenFile(cs.Path(id), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to open spool file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(payload); err != nil {
		return 0, fmt.Errorf("failed to append chunk: %w", err)
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync spool file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat spool file: %w", err)
	}

	log.Debug().
		Str("upload_id", id.String()).
		Int("chunk_size", len(payload)).
		Int64("file_size", info.Size()).
		Msg("chunk appended")

	return info.Size(), nil
}

// Size returns the current size of the session's backing file, zero if
// no chunk has been written yet.
func (cs *ChunkStore) Size(id uuid.UUID) (int64, error) {
	info, err := os.Stat(cs.Path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to stat spool file: %w", err)
	}
	return info.Size(), nil
}

// Truncate cuts the session's backing file back to size. A missing
// file is fine when size is zero.
func (cs *ChunkStore) Truncate(id uuid.UUID, size int64) error {
	if err := os.Truncate(cs.Path(id), size); err != nil {
		if os.IsNotExist(err) && size == 0 {
			return nil
		}
		return fmt.Errorf("failed to truncate spool file: %w", err)
	}
	return nil
}

// Open returns a reader over the assembled bytes for checksum
// verification and promotion.
func (cs *ChunkStore) Open(id uuid.UUID) (io.ReadCloser, error) {
	f, err := os.Open(cs.Path(id))
	if err != nil {
		return nil, fmt.Errorf("failed to open spool file: %w", err)
	}
	return f, nil
}

// Remove deletes the session's backing file. Removing a file that was
// never written is not an error.
func (cs *ChunkStore) Remove(id uuid.UUID) error {
	if err := os.Remove(cs.Path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove spool file: %w", err)
	}
	return nil
}
