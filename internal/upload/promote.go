package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boxvault/boxvault/internal/storage"
	"github.com/boxvault/boxvault/pkg/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Promoter converts a fully-received upload into a durable BoxProvider.
// All database work runs on the transaction handed in by the caller;
// the unique index on (version, provider) is the last line of defense
// against two concurrent promotions for the same variant.
type Promoter struct {
	blobs  storage.BlobStorage
	chunks *ChunkStore
	now    func() time.Time
}

// NewPromoter creates a promoter over the given stores.
func NewPromoter(blobs storage.BlobStorage, chunks *ChunkStore) *Promoter {
	return &Promoter{
		blobs:  blobs,
		chunks: chunks,
		now:    time.Now,
	}
}

// boxFilePath is where the durable copy lives, addressed by
// owner/box/version/provider.
func boxFilePath(up *types.BoxUpload) string {
	return fmt.Sprintf("boxes/%s/%s/%s/%s.box",
		up.Box.Owner.Username, up.Box.Name, up.Version, up.Provider)
}

// Promote verifies the assembled file against the declared checksum,
// gets or creates the BoxVersion, creates the BoxProvider and copies
// the spooled bytes into durable storage. The caller is expected to
// invoke it only when offset == file_size, inside a transaction it can
// roll back on error.
func (p *Promoter) Promote(ctx context.Context, tx *gorm.DB, up *types.BoxUpload) (*types.BoxProvider, error) {
	if err := p.verifyChecksum(up); err != nil {
		return nil, err
	}

	now := p.now()

	boxVersion, err := p.getOrCreateVersion(tx, up, now)
	if err != nil {
		return nil, err
	}

	// The session-opening step already refused duplicates; this guards
	// against a second session racing to the same variant.
	var count int64
	if err := tx.Model(&types.BoxProvider{}).
		Where("version_id = ? AND provider = ?", boxVersion.ID, up.Provider).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check existing provider: %w", err)
	}
	if count > 0 {
		return nil, &DuplicateVariantError{Version: up.Version, Provider: up.Provider}
	}

	provider := &types.BoxProvider{
		VersionID:    boxVersion.ID,
		Provider:     up.Provider,
		FileSize:     up.FileSize,
		ChecksumType: up.ChecksumType,
		Checksum:     up.Checksum,
		StoragePath:  boxFilePath(up),
		DateCreated:  now,
		DateModified: now,
	}

	if err := tx.Create(provider).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, &DuplicateVariantError{Version: up.Version, Provider: up.Provider}
		}
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	if err := p.storeBoxFile(ctx, up, provider.StoragePath); err != nil {
		return nil, err
	}

	// Propagate the modification time up the ancestor chain in the
	// same transaction as the provider row.
	if err := tx.Model(&types.BoxVersion{}).Where("id = ?", boxVersion.ID).
		Update("date_modified", now).Error; err != nil {
		return nil, fmt.Errorf("failed to touch version: %w", err)
	}
	if err := tx.Model(&types.Box{}).Where("id = ?", up.BoxID).
		Update("date_modified", now).Error; err != nil {
		return nil, fmt.Errorf("failed to touch box: %w", err)
	}

	log.Info().
		Str("upload_id", up.ID.String()).
		Str("box", up.Box.Tag()).
		Str("version", up.Version).
		Str("provider", up.Provider).
		Int64("file_size", up.FileSize).
		Msg("new box promoted")

	return provider, nil
}

func (p *Promoter) verifyChecksum(up *types.BoxUpload) error {
	f, err := p.chunks.Open(up.ID)
	if err != nil {
		return err
	}
	defer f.Close()

	return Verify(f, up.ChecksumType, up.Checksum)
}

func (p *Promoter) getOrCreateVersion(tx *gorm.DB, up *types.BoxUpload, now time.Time) (*types.BoxVersion, error) {
	boxVersion := &types.BoxVersion{}
	err := tx.Where(&types.BoxVersion{BoxID: up.BoxID, Version: up.Version}).
		Attrs(&types.BoxVersion{DateCreated: now, DateModified: now}).
		FirstOrCreate(boxVersion).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get or create version: %w", err)
	}
	return boxVersion, nil
}

func (p *Promoter) storeBoxFile(ctx context.Context, up *types.BoxUpload, path string) error {
	exists, err := p.blobs.Exists(ctx, path)
	if err != nil {
		return err
	}
	if exists {
		return &DuplicateVariantError{Version: up.Version, Provider: up.Provider}
	}

	f, err := p.chunks.Open(up.ID)
	if err != nil {
		return err
	}
	defer f.Close()

	return p.blobs.Store(ctx, path, f)
}

// isUniqueViolation recognizes unique-constraint failures from both
// postgres and the sqlite driver used in tests.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
