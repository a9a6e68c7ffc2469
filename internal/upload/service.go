package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boxvault/boxvault/internal/common"
	"github.com/boxvault/boxvault/pkg/types"
	"github.com/boxvault/boxvault/pkg/version"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service is the resumable upload engine. Each chunk request is an
// independent read-validate-append-persist cycle; the session row lock
// taken inside the transaction serializes concurrent requests for the
// same session, and different sessions never contend.
type Service struct {
	db       *common.Database
	chunks   *ChunkStore
	promoter *Promoter
	ttl      time.Duration
	now      func() time.Time
}

// NewService creates an upload service with the given session TTL.
func NewService(db *common.Database, chunks *ChunkStore, promoter *Promoter, ttl time.Duration) *Service {
	return &Service{
		db:       db,
		chunks:   chunks,
		promoter: promoter,
		ttl:      ttl,
		now:      time.Now,
	}
}

// StartRequest declares an upload's target and transfer parameters.
type StartRequest struct {
	Version      string             `json:"version" binding:"required"`
	Provider     string             `json:"provider" binding:"required"`
	FileSize     int64              `json:"file_size" binding:"required"`
	Checksum     string             `json:"checksum" binding:"required"`
	ChecksumType types.ChecksumType `json:"checksum_type" binding:"required"`
}

// Start opens a new upload session for a (version, provider) pair under
// the given box. It refuses duplicates before any byte is accepted.
func (s *Service) Start(ctx context.Context, box *types.Box, req *StartRequest) (*types.BoxUpload, error) {
	if !version.IsValid(req.Version) {
		return nil, fmt.Errorf("invalid version %q: must be of the format X.Y.Z where X, Y, and Z are all positive integers", req.Version)
	}
	if req.Provider == "" {
		return nil, fmt.Errorf("provider must not be empty")
	}
	if req.FileSize <= 0 {
		return nil, fmt.Errorf("file size must be a positive integer")
	}
	if !req.ChecksumType.Valid() {
		return nil, fmt.Errorf("unsupported checksum type: %s", req.ChecksumType)
	}
	if req.Checksum == "" {
		return nil, fmt.Errorf("checksum must not be empty")
	}

	exists, err := s.variantExists(box.ID, req.Version, req.Provider)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &DuplicateVariantError{Version: req.Version, Provider: req.Provider}
	}

	now := s.now()
	up := &types.BoxUpload{
		BoxID:        box.ID,
		Version:      req.Version,
		Provider:     req.Provider,
		FileSize:     req.FileSize,
		Checksum:     req.Checksum,
		ChecksumType: req.ChecksumType,
		Status:       types.UploadStarted,
		DateCreated:  now,
		DateModified: now,
	}

	if err := s.db.WithContext(ctx).Create(up).Error; err != nil {
		return nil, fmt.Errorf("failed to create upload: %w", err)
	}

	log.Info().
		Str("upload_id", up.ID.String()).
		Str("version", up.Version).
		Str("provider", up.Provider).
		Int64("file_size", up.FileSize).
		Msg("upload started")

	up.Box = *box
	return up, nil
}

func (s *Service) variantExists(boxID uuid.UUID, versionStr, provider string) (bool, error) {
	var count int64
	err := s.db.Model(&types.BoxProvider{}).
		Joins("JOIN box_versions ON box_versions.id = box_providers.version_id").
		Where("box_versions.box_id = ? AND box_versions.version = ? AND box_providers.provider = ?",
			boxID, versionStr, provider).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check existing provider: %w", err)
	}
	return count > 0, nil
}

// Get returns the current session state.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*types.BoxUpload, error) {
	var up types.BoxUpload
	err := s.db.WithContext(ctx).
		Preload("Box.Owner").
		First(&up, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUploadNotFound
		}
		return nil, fmt.Errorf("failed to load upload: %w", err)
	}
	return &up, nil
}

// AcceptChunk validates and appends one chunk. It returns the session's
// post-append state, the promoted provider when this chunk completed
// the file, and an error from the taxonomy otherwise.
//
// Validation order: completed, expired, range shape, start==offset,
// total==declared size, end inside the file, payload length exact.
// Nothing is appended unless every check passes.
func (s *Service) AcceptChunk(ctx context.Context, id uuid.UUID, rangeHeader string, payload []byte) (*types.BoxUpload, *types.BoxProvider, error) {
	if len(payload) == 0 {
		return nil, nil, ErrEmptyPayload
	}

	var (
		up       types.BoxUpload
		provider *types.BoxProvider
		// Promotion failures that leave the session resumable must not
		// roll back the offset advance, so they are carried out of the
		// transaction instead of returned through it.
		promoteErr error
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).
			First(&up, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUploadNotFound
			}
			return fmt.Errorf("failed to load upload: %w", err)
		}
		if err := tx.Preload("Owner").First(&up.Box, "id = ?", up.BoxID).Error; err != nil {
			return fmt.Errorf("failed to load box: %w", err)
		}

		if up.Status == types.UploadCompleted {
			return ErrAlreadyCompleted
		}
		if up.Expired(s.now(), s.ttl) {
			return ErrUploadExpired
		}

		crange, ok := ParseContentRange(rangeHeader)
		if !ok {
			return s.rangeError(&up, `"Content-Range" header is missing or invalid`)
		}
		if crange.Start != up.Offset {
			return s.rangeError(&up, fmt.Sprintf(
				"first byte position (%d) doesn't match current offset (%d)",
				crange.Start, up.Offset))
		}
		if crange.Total != up.FileSize {
			return s.rangeError(&up, fmt.Sprintf(
				"complete length (%d) specified in header doesn't match file size (%d) specified when upload was initiated",
				crange.Total, up.FileSize))
		}
		if crange.End >= crange.Total {
			return s.rangeError(&up, fmt.Sprintf(
				"last byte position (%d) is beyond complete length (%d)",
				crange.End, crange.Total))
		}
		if int64(len(payload)) != crange.Length() {
			return s.rangeError(&up, fmt.Sprintf(
				"uploaded content length (%d) doesn't match content range (%d) specified in the header",
				len(payload), crange.Length()))
		}

		if err := s.reconcileSpool(&up); err != nil {
			return err
		}

		newSize, err := s.chunks.Append(up.ID, payload)
		if err != nil {
			return err
		}

		up.Offset = newSize
		up.DateModified = s.now()

		if up.Offset == up.FileSize {
			// Run promotion on a savepoint so a failed attempt rolls
			// back its version/provider rows without losing the offset
			// advance: the bytes are already on disk and must stay
			// reflected in the session row.
			promoteErr = tx.Transaction(func(ptx *gorm.DB) error {
				p, err := s.promoter.Promote(ctx, ptx, &up)
				if err != nil {
					return err
				}
				provider = p
				return nil
			})
			if promoteErr == nil {
				now := s.now()
				up.Status = types.UploadCompleted
				up.DateCompleted = &now
			} else if !isPromotionRejection(promoteErr) {
				// Storage or database failure: abandon the whole chunk
				// so the client can retry it at the same offset.
				return promoteErr
			} else {
				up.Status = types.UploadInProgress
			}
		} else {
			up.Status = types.UploadInProgress
		}

		if err := tx.Save(&up).Error; err != nil {
			return fmt.Errorf("failed to persist upload state: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if promoteErr != nil {
		return &up, nil, promoteErr
	}
	return &up, provider, nil
}

// lockForUpdate takes the per-session row lock that serializes the
// read-validate-append-persist cycle. SQLite has no SELECT FOR UPDATE
// and serializes writers on its own, so the clause is postgres-only.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// reconcileSpool brings the backing file back in line with the
// session's recorded offset before a chunk is appended. A request that
// wrote to the spool and then failed (short write, or the transaction
// rolling back after the append) leaves bytes the database never
// acknowledged; appending the retried chunk on top of them would
// corrupt the stream and push the offset past the declared range, so
// the stray tail is dropped first. A spool shorter than the recorded
// offset means acknowledged bytes are gone, which nothing can repair.
func (s *Service) reconcileSpool(up *types.BoxUpload) error {
	size, err := s.chunks.Size(up.ID)
	if err != nil {
		return err
	}
	if size == up.Offset {
		return nil
	}
	if size < up.Offset {
		return fmt.Errorf("spool file holds %d bytes but %d are recorded for upload %s", size, up.Offset, up.ID)
	}

	log.Warn().
		Str("upload_id", up.ID.String()).
		Int64("spool_size", size).
		Int64("offset", up.Offset).
		Msg("dropping unacknowledged spool bytes")
	return s.chunks.Truncate(up.ID, up.Offset)
}

// rangeError snapshots the session's authoritative counters into the
// rejection so the client can resynchronize.
func (s *Service) rangeError(up *types.BoxUpload, detail string) error {
	return &RangeError{
		Detail:   detail,
		Offset:   up.Offset,
		FileSize: up.FileSize,
	}
}

// isPromotionRejection reports whether a promotion failure is a final
// verdict on this completion attempt rather than a transient fault. The
// session keeps its bytes but stays non-completed; since no further
// chunk can ever be valid at offset == file_size, the client must abort
// and start a new session.
func isPromotionRejection(err error) bool {
	var mismatch *ChecksumMismatchError
	var dup *DuplicateVariantError
	return errors.As(err, &mismatch) || errors.As(err, &dup)
}

// Abort deletes the session and its spooled bytes.
func (s *Service) Abort(ctx context.Context, id uuid.UUID) error {
	var up types.BoxUpload
	err := s.db.WithContext(ctx).First(&up, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUploadNotFound
		}
		return fmt.Errorf("failed to load upload: %w", err)
	}

	if err := s.chunks.Remove(up.ID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&up).Error; err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}

	log.Info().Str("upload_id", id.String()).Msg("upload aborted")
	return nil
}
