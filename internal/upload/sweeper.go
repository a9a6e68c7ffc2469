package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/boxvault/boxvault/internal/common"
	"github.com/boxvault/boxvault/pkg/types"
	"github.com/rs/zerolog/log"
)

// Sweeper removes uploads that will never accept another byte:
// completed sessions, whose bytes now live in durable storage, and
// sessions past the TTL window. Spool files go with the rows; the
// durable box files are never touched.
type Sweeper struct {
	db     *common.Database
	chunks *ChunkStore
	ttl    time.Duration
	now    func() time.Time
}

// NewSweeper creates a sweeper with the given session TTL.
func NewSweeper(db *common.Database, chunks *ChunkStore, ttl time.Duration) *Sweeper {
	return &Sweeper{
		db:     db,
		chunks: chunks,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Sweep deletes all completed or expired uploads and their spool files,
// returning how many were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.ttl)

	var uploads []types.BoxUpload
	err := s.db.WithContext(ctx).
		Where("status = ? OR date_created < ?", types.UploadCompleted, cutoff).
		Find(&uploads).Error
	if err != nil {
		return 0, fmt.Errorf("failed to list stale uploads: %w", err)
	}

	removed := 0
	for _, up := range uploads {
		if err := s.chunks.Remove(up.ID); err != nil {
			log.Error().Err(err).Str("upload_id", up.ID.String()).Msg("failed to remove spool file")
			continue
		}
		if err := s.db.WithContext(ctx).Delete(&types.BoxUpload{}, "id = ?", up.ID).Error; err != nil {
			log.Error().Err(err).Str("upload_id", up.ID.String()).Msg("failed to delete upload row")
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Info().Int("count", removed).Msg("removed expired and completed uploads")
	}
	return removed, nil
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				log.Error().Err(err).Msg("upload sweep failed")
			}
		}
	}
}
